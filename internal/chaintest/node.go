// Package chaintest provides an in-process JSON-RPC node for tests. Each
// method is answered by a registered handler; unregistered methods return
// the standard "method not found" error.
package chaintest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Handler answers one JSON-RPC method. Returning an *Error produces a
// JSON-RPC error object with that code.
type Handler func(params []json.RawMessage) (any, error)

// Error is a JSON-RPC error response.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Node is a fake Ethereum node served over HTTP.
type Node struct {
	URL string

	srv      *httptest.Server
	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
}

// NewNode starts a node that is shut down when the test ends.
func NewNode(t testing.TB) *Node {
	t.Helper()
	n := &Node{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))
	n.URL = n.srv.URL
	t.Cleanup(n.srv.Close)
	return n
}

// Handle registers (or replaces) the handler for method.
func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// Value registers a handler that always returns v.
func (n *Node) Value(method string, v any) {
	n.Handle(method, func([]json.RawMessage) (any, error) { return v, nil })
}

// Fail registers a handler that always fails with code.
func (n *Node) Fail(method string, code int, message string) {
	n.Handle(method, func([]json.RawMessage) (any, error) {
		return nil, &Error{Code: code, Message: message}
	})
}

// Contract answers eth_call by method selector, packing results[name] with
// the method's outputs. Unknown selectors revert.
func (n *Node) Contract(contractABI abi.ABI, results map[string][]any) {
	n.Handle("eth_call", func(params []json.RawMessage) (any, error) {
		if len(params) == 0 {
			return nil, &Error{Code: -32602, Message: "missing call object"}
		}
		var call struct {
			Data  hexutil.Bytes `json:"data"`
			Input hexutil.Bytes `json:"input"`
		}
		if err := json.Unmarshal(params[0], &call); err != nil {
			return nil, &Error{Code: -32602, Message: err.Error()}
		}
		data := call.Input
		if len(data) == 0 {
			data = call.Data
		}
		if len(data) < 4 {
			return nil, &Error{Code: 3, Message: "execution reverted"}
		}
		method, err := contractABI.MethodById(data[:4])
		if err != nil {
			return nil, &Error{Code: 3, Message: "execution reverted"}
		}
		out, ok := results[method.Name]
		if !ok {
			return nil, &Error{Code: 3, Message: "execution reverted"}
		}
		packed, err := method.Outputs.Pack(out...)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(packed), nil
	})
}

// Calls reports how often method was requested.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// Dial opens an RPC client against the node.
func (n *Node) Dial(t testing.TB) *rpc.Client {
	t.Helper()
	c, err := rpc.Dial(n.URL)
	if err != nil {
		t.Fatalf("failed to dial fake node: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	h := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = rpcError{Code: -32601, Message: "the method " + req.Method + " does not exist/is not available"}
	} else if result, err := h(req.Params); err != nil {
		code := -32000
		if e, ok := err.(*Error); ok {
			code = e.Code
		}
		resp["error"] = rpcError{Code: code, Message: err.Error()}
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
