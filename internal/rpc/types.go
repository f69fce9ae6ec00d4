package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Client types - communication protocols used by node providers
const (
	ClientTypeRPC  = "rpc"  // JSON-RPC protocol
	ClientTypeREST = "rest" // REST API protocol
)

const NetworkEVM = "evm"

// RPCRequest represents a JSON-RPC request
type RPCRequest struct {
	ID      any    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC response
type RPCResponse struct {
	ID      any             `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (r *RPCResponse) IDInt64() (int64, bool) {
	switch v := r.ID.(type) {
	case float64: // default JSON number
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return n, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// IsNull reports whether the node answered with no result.
func (r *RPCResponse) IsNull() bool {
	return len(r.Result) == 0 || string(r.Result) == "null"
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Permanent reports whether the node rejected the request itself, so the
// same call would fail again on any node.
func (e *RPCError) Permanent() bool {
	return IsPermanentCode(e.Code)
}

// IsPermanentCode reports whether a JSON-RPC error code means a malformed or
// unsupported request.
func IsPermanentCode(code int) bool {
	switch code {
	case -32700, -32600, -32601, -32602:
		return true
	}
	return false
}
