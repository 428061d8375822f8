package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"tubbly/core"
	"tubbly/core/ledger"
	"tubbly/crypto"
	"tubbly/observability"
	"tubbly/storage"
)

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func testIdentity(fill byte) ledger.Identity {
	var id ledger.Identity
	for i := range id {
		id[i] = fill
	}
	return id
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *Server) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	srv := &Server{
		node:      core.NewNode(db),
		metrics:   observability.Instructions(),
		authToken: token,
		limiters:  make(map[string]*rate.Limiter),
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, srv
}

func call(t *testing.T, ts *httptest.Server, token, method string, params interface{}) (*http.Response, testResponse) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestRPCEndToEndFlow(t *testing.T) {
	ts, _ := newTestServer(t, "")
	owner := crypto.EncodeIdentity(testIdentity(1))
	user := crypto.EncodeIdentity(testIdentity(2))

	resp, decoded := call(t, ts, "", "ledger_initialize", map[string]string{"caller": owner})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
	var st stateJSON
	require.NoError(t, json.Unmarshal(decoded.Result, &st))
	require.Equal(t, owner, st.Owner)
	require.Equal(t, "0", st.RequestCounter)

	_, decoded = call(t, ts, "", "ledger_submit", map[string]string{
		"caller": user,
		"id":     "1",
		"amount": "1000000000",
	})
	require.Nil(t, decoded.Error)
	var req requestJSON
	require.NoError(t, json.Unmarshal(decoded.Result, &req))
	require.True(t, req.Active)
	require.Equal(t, "1000000000", req.Amount)

	_, decoded = call(t, ts, "", "ledger_confirm", map[string]string{
		"caller": owner,
		"id":     "1",
	})
	require.Nil(t, decoded.Error)
	var confirmed confirmJSON
	require.NoError(t, json.Unmarshal(decoded.Result, &confirmed))
	require.False(t, confirmed.Request.Active)
	require.Equal(t, "1000000000", confirmed.NewBalance)

	_, decoded = call(t, ts, "", "ledger_balanceOf", map[string]string{"user": user})
	require.Nil(t, decoded.Error)
	var balance balanceJSON
	require.NoError(t, json.Unmarshal(decoded.Result, &balance))
	require.Equal(t, "1000000000", balance.Balance)

	_, decoded = call(t, ts, "", "ledger_state", nil)
	require.Nil(t, decoded.Error)
	require.NoError(t, json.Unmarshal(decoded.Result, &st))
	require.Equal(t, "1", st.RequestCounter)

	_, decoded = call(t, ts, "", "ledger_events", map[string]int{"limit": 10})
	require.Nil(t, decoded.Error)
	var tail []map[string]interface{}
	require.NoError(t, json.Unmarshal(decoded.Result, &tail))
	require.Len(t, tail, 3)
}

func TestRPCRequestIDForms(t *testing.T) {
	ts, _ := newTestServer(t, "")
	owner := crypto.EncodeIdentity(testIdentity(1))
	user := crypto.EncodeIdentity(testIdentity(2))

	_, decoded := call(t, ts, "", "ledger_initialize", map[string]string{"caller": owner})
	require.Nil(t, decoded.Error)

	// Decimal ids serialize little-endian, so 7 becomes 07 followed by
	// fifteen zero bytes. The hex form must address the same record.
	_, decoded = call(t, ts, "", "ledger_submit", map[string]string{
		"caller": user,
		"id":     "7",
		"amount": "50",
	})
	require.Nil(t, decoded.Error)

	_, decoded = call(t, ts, "", "ledger_getRequest", map[string]string{
		"id": "07000000000000000000000000000000",
	})
	require.Nil(t, decoded.Error)
	var req requestJSON
	require.NoError(t, json.Unmarshal(decoded.Result, &req))
	require.Equal(t, "50", req.Amount)

	// UUIDs are valid 128-bit ids too.
	_, decoded = call(t, ts, "", "ledger_submit", map[string]string{
		"caller": user,
		"id":     "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"amount": "60",
	})
	require.Nil(t, decoded.Error)
	_, decoded = call(t, ts, "", "ledger_getRequest", map[string]string{
		"id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	})
	require.Nil(t, decoded.Error)
	require.NoError(t, json.Unmarshal(decoded.Result, &req))
	require.Equal(t, "60", req.Amount)
}

func TestRPCErrorCodes(t *testing.T) {
	ts, _ := newTestServer(t, "")
	owner := crypto.EncodeIdentity(testIdentity(1))
	user := crypto.EncodeIdentity(testIdentity(2))

	// Reads against an uninitialized ledger surface not_found.
	resp, decoded := call(t, ts, "", "ledger_state", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeLedgerNotFound, decoded.Error.Code)

	_, decoded = call(t, ts, "", "ledger_initialize", map[string]string{"caller": owner})
	require.Nil(t, decoded.Error)

	resp, decoded = call(t, ts, "", "ledger_initialize", map[string]string{"caller": user})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeLedgerConflict, decoded.Error.Code)

	_, decoded = call(t, ts, "", "ledger_submit", map[string]string{
		"caller": user, "id": "1", "amount": "10",
	})
	require.Nil(t, decoded.Error)

	resp, decoded = call(t, ts, "", "ledger_submit", map[string]string{
		"caller": user, "id": "1", "amount": "20",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeLedgerConflict, decoded.Error.Code)

	resp, decoded = call(t, ts, "", "ledger_confirm", map[string]string{
		"caller": user, "id": "1",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, codeLedgerUnauthorized, decoded.Error.Code)

	resp, decoded = call(t, ts, "", "ledger_confirm", map[string]string{
		"caller": owner, "id": "2",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, codeLedgerNotFound, decoded.Error.Code)

	resp, decoded = call(t, ts, "", "ledger_submit", map[string]string{
		"caller": user, "id": "2", "amount": "0",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeLedgerInvalid, decoded.Error.Code)

	resp, decoded = call(t, ts, "", "ledger_nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)

	resp, decoded = call(t, ts, "", "ledger_submit", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)
}

func TestRPCBearerAuth(t *testing.T) {
	ts, _ := newTestServer(t, "s3cret")
	owner := crypto.EncodeIdentity(testIdentity(1))

	resp, decoded := call(t, ts, "", "ledger_initialize", map[string]string{"caller": owner})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)

	resp, decoded = call(t, ts, "wrong", "ledger_initialize", map[string]string{"caller": owner})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)

	resp, decoded = call(t, ts, "s3cret", "ledger_initialize", map[string]string{"caller": owner})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)

	// Reads never require the token.
	resp, decoded = call(t, ts, "", "ledger_state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
}

func TestRPCHealthz(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
