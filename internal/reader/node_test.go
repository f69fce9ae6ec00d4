package reader

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type rpcReq struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// fakeNode is a minimal Ethereum JSON-RPC endpoint over a fixed storage map.
type fakeNode struct {
	mu       sync.Mutex
	words    map[common.Hash]common.Hash
	head     uint64
	status   int
	rpcError *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	requests int
	batches  []int
	tags     []string
	headers  http.Header
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{words: map[common.Hash]common.Hash{}, head: 100}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) set(slot, word common.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.words[slot] = word
}

func (n *fakeNode) answer(req rpcReq) map[string]any {
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if n.rpcError != nil {
		resp["error"] = n.rpcError
		return resp
	}
	switch req.Method {
	case "eth_blockNumber":
		resp["result"] = "0x" + strconv.FormatUint(n.head, 16)
	case "eth_getStorageAt":
		slot := common.HexToHash(req.Params[1].(string))
		n.tags = append(n.tags, req.Params[2].(string))
		resp["result"] = n.words[slot].Hex()
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}
	return resp
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests++
	n.headers = r.Header.Clone()

	if n.status != 0 {
		w.WriteHeader(n.status)
		_, _ = w.Write([]byte("too many requests"))
		return
	}

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		var reqs []rpcReq
		_ = json.Unmarshal(body, &reqs)
		n.batches = append(n.batches, len(reqs))
		out := make([]map[string]any, len(reqs))
		for i, req := range reqs {
			out[i] = n.answer(req)
		}
		_ = json.NewEncoder(w).Encode(out)
		return
	}

	var req rpcReq
	_ = json.Unmarshal(body, &req)
	_ = json.NewEncoder(w).Encode(n.answer(req))
}

func (n *fakeNode) stats() (requests int, batches []int, tags []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests, append([]int(nil), n.batches...), append([]string(nil), n.tags...)
}
