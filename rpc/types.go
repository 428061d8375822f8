package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"tubbly/core/ledger"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeLedgerInternal     = -32050
	codeLedgerUnauthorized = -32051
	codeLedgerNotFound     = -32052
	codeLedgerConflict     = -32053
	codeLedgerMismatch     = -32054
	codeLedgerInactive     = -32055
	codeLedgerOverflow     = -32056
	codeLedgerInvalid      = -32057
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// ledgerErrorCode maps the ledger error taxonomy onto the RPC error block.
// Errors surface verbatim in the message; nothing is retried server-side.
func ledgerErrorCode(err error) (int, int) {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden, codeLedgerUnauthorized
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, codeLedgerNotFound
	case errors.Is(err, ledger.ErrAlreadyExists), errors.Is(err, ledger.ErrAlreadyInitialized):
		return http.StatusConflict, codeLedgerConflict
	case errors.Is(err, ledger.ErrAddressMismatch):
		return http.StatusBadRequest, codeLedgerMismatch
	case errors.Is(err, ledger.ErrRequestNotActive), errors.Is(err, ledger.ErrRequestStillActive):
		return http.StatusConflict, codeLedgerInactive
	case errors.Is(err, ledger.ErrBalanceOverflow):
		return http.StatusConflict, codeLedgerOverflow
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidRequestID), errors.Is(err, ledger.ErrZeroOwner):
		return http.StatusBadRequest, codeLedgerInvalid
	default:
		return http.StatusInternalServerError, codeLedgerInternal
	}
}
