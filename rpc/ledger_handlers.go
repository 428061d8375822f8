package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tubbly/core/events"
	"tubbly/core/ledger"
	"tubbly/core/state"
	"tubbly/crypto"
)

type initializeParams struct {
	Caller       string `json:"caller"`
	StateAddress string `json:"stateAddress,omitempty"`
}

type submitParams struct {
	Caller  string `json:"caller"`
	ID      string `json:"id"`
	Amount  string `json:"amount"`
	Address string `json:"address,omitempty"`
}

type confirmParams struct {
	Caller  string `json:"caller"`
	ID      string `json:"id"`
	Address string `json:"address,omitempty"`
}

type balanceOfParams struct {
	User    string `json:"user"`
	Address string `json:"address,omitempty"`
}

type getRequestParams struct {
	Viewer  string `json:"viewer,omitempty"`
	ID      string `json:"id"`
	Address string `json:"address,omitempty"`
}

type changeOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type reclaimParams struct {
	Caller  string `json:"caller"`
	ID      string `json:"id"`
	Address string `json:"address,omitempty"`
}

type eventsParams struct {
	Limit int `json:"limit,omitempty"`
}

type stateJSON struct {
	Owner          string `json:"owner"`
	RequestCounter string `json:"requestCounter"`
	Address        string `json:"address"`
}

type requestJSON struct {
	ID      string `json:"id"`
	Caller  string `json:"caller"`
	Amount  string `json:"amount"`
	Active  bool   `json:"active"`
	Address string `json:"address"`
}

type balanceJSON struct {
	User    string `json:"user"`
	Balance string `json:"balance"`
	Address string `json:"address"`
}

type confirmJSON struct {
	Request    requestJSON `json:"request"`
	NewBalance string      `json:"newBalance"`
}

type okJSON struct {
	OK bool `json:"ok"`
}

func newRequestJSON(r *ledger.Request) requestJSON {
	return requestJSON{
		ID:      hex.EncodeToString(r.ID[:]),
		Caller:  crypto.EncodeIdentity(r.Caller),
		Amount:  strconv.FormatUint(r.Amount, 10),
		Active:  r.Active,
		Address: state.RequestAddress(r.ID).String(),
	}
}

func newStateJSON(st *ledger.ProgramState) stateJSON {
	return stateJSON{
		Owner:          crypto.EncodeIdentity(st.Owner),
		RequestCounter: strconv.FormatUint(st.RequestCounter, 10),
		Address:        state.StateAddress().String(),
	}
}

// decodeParams expects exactly one parameter object.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// parseRequestID accepts a UUID (canonical 128-bit id form), 32-character
// hex, or a decimal integer no wider than 128 bits.
func parseRequestID(s string) (ledger.RequestID, error) {
	var id ledger.RequestID
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return id, fmt.Errorf("request id must not be empty")
	}
	if strings.Contains(trimmed, "-") {
		parsed, err := uuid.Parse(trimmed)
		if err != nil {
			return id, fmt.Errorf("invalid uuid request id: %w", err)
		}
		copy(id[:], parsed[:])
		return id, nil
	}
	if strings.HasPrefix(trimmed, "0x") || len(trimmed) == 32 {
		raw, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
		if err == nil {
			if len(raw) != len(id) {
				return id, fmt.Errorf("hex request id must be %d bytes, got %d", len(id), len(raw))
			}
			copy(id[:], raw)
			return id, nil
		}
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return id, fmt.Errorf("invalid request id %q", s)
	}
	return ledger.RequestIDFromBig(n)
}

func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	return amount, nil
}

// parseAddressOr decodes a supplied 32-byte hex address or falls back to the
// derived one when the field is omitted.
func parseAddressOr(s string, derived state.Address) (state.Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return derived, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil {
		return state.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	if len(raw) != 32 {
		return state.Address{}, fmt.Errorf("address must be 32 bytes, got %d", len(raw))
	}
	var addr state.Address
	copy(addr[:], raw)
	return addr, nil
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	var params initializeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeIdentity(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddressOr(params.StateAddress, state.StateAddress())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	st, err := s.node.Initialize(caller, addr)
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, newStateJSON(st))
}

func (s *Server) handleSubmit(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	var params submitParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeIdentity(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseRequestID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddressOr(params.Address, state.RequestAddress(id))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	created, err := s.node.Submit(caller, id, amount, addr)
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, newRequestJSON(created))
}

func (s *Server) handleConfirm(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	var params confirmParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeIdentity(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseRequestID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddressOr(params.Address, state.RequestAddress(id))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	confirmed, newBalance, err := s.node.Confirm(caller, id, addr)
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, confirmJSON{
		Request:    newRequestJSON(confirmed),
		NewBalance: strconv.FormatUint(newBalance, 10),
	})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	var params balanceOfParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := crypto.DecodeIdentity(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddressOr(params.Address, state.UserAddress(user))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.BalanceOf(user, addr)
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, balanceJSON{
		User:    crypto.EncodeIdentity(user),
		Balance: strconv.FormatUint(balance, 10),
		Address: state.UserAddress(user).String(),
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	var params getRequestParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var viewer ledger.Identity
	if strings.TrimSpace(params.Viewer) != "" {
		parsed, err := crypto.DecodeIdentity(params.Viewer)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		viewer = parsed
	}
	id, err := parseRequestID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddressOr(params.Address, state.RequestAddress(id))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stored, err := s.node.GetRequest(viewer, id, addr)
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, newRequestJSON(stored))
}

func (s *Server) handleChangeOwnership(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	var params changeOwnershipParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeIdentity(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	newOwner, err := crypto.DecodeIdentity(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	st, err := s.node.ChangeOwnership(caller, newOwner)
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, newStateJSON(st))
}

func (s *Server) handleReclaim(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	var params reclaimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeIdentity(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseRequestID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddressOr(params.Address, state.RequestAddress(id))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	err = s.node.Reclaim(caller, id, addr)
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, okJSON{OK: true})
}

func (s *Server) handleState(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	st, err := s.node.StateInfo()
	s.observe(req.Method, started, err)
	if err != nil {
		status, code := ledgerErrorCode(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, newStateJSON(st))
}

func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest, started time.Time) {
	limit := 0
	if len(req.Params) == 1 {
		var params eventsParams
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		limit = params.Limit
	}
	recent := s.node.Events(limit)
	if recent == nil {
		recent = []events.Event{}
	}
	s.observe(req.Method, started, nil)
	writeResult(w, req.ID, recent)
}
