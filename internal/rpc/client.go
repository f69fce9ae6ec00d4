package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fystack/storage-inspector/pkg/common/logger"
	"github.com/fystack/storage-inspector/pkg/ratelimiter"
)

var ErrNotRPC = errors.New("client is not a JSON-RPC client")

type NetworkClient interface {
	CallRPC(ctx context.Context, method string, params any) (*RPCResponse, error)
	DoBatch(ctx context.Context, requests []*RPCRequest) ([]*RPCResponse, error)
	NextRequestIDs(n int) []int64
	IsHealthy(ctx context.Context) bool
	GetURL() string
	Close() error
}

type BaseClient struct {
	httpClient  *http.Client
	baseURL     string
	auth        *AuthConfig
	network     string
	clientType  string
	rateLimiter *ratelimiter.PooledRateLimiter

	rpcID int64
	mutex sync.Mutex
}

func NewBaseClient(
	baseURL, network, clientType string,
	auth *AuthConfig,
	timeout time.Duration,
	rateLimiter *ratelimiter.PooledRateLimiter,
) *BaseClient {
	return &BaseClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		auth:        auth,
		network:     network,
		clientType:  clientType,
		rateLimiter: rateLimiter,
		rpcID:       1,
	}
}

// NextRequestIDs reserves n consecutive JSON-RPC ids.
func (c *BaseClient) NextRequestIDs(n int) []int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = c.rpcID
		c.rpcID++
	}
	return ids
}

func (c *BaseClient) CallRPC(ctx context.Context, method string, params any) (*RPCResponse, error) {
	if c.clientType != ClientTypeRPC {
		return nil, ErrNotRPC
	}
	reqID := c.NextRequestIDs(1)[0]

	req := &RPCRequest{ID: reqID, JSONRPC: "2.0", Method: method, Params: params}
	raw, err := c.Do(ctx, http.MethodPost, "", req, nil)
	if err != nil {
		return nil, err
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return &rpcResp, rpcResp.Error
	}
	return &rpcResp, nil
}

// DoBatch sends requests as one JSON-RPC batch. Per-request errors stay in
// the individual responses; the order of responses follows the node.
func (c *BaseClient) DoBatch(ctx context.Context, requests []*RPCRequest) ([]*RPCResponse, error) {
	if c.clientType != ClientTypeRPC {
		return nil, ErrNotRPC
	}
	if len(requests) == 0 {
		return nil, nil
	}

	raw, err := c.Do(ctx, http.MethodPost, "", requests, nil)
	if err != nil {
		return nil, err
	}

	var responses []*RPCResponse
	if err := json.Unmarshal(raw, &responses); err != nil {
		// some nodes answer a rejected batch with a single error object
		var single RPCResponse
		if json.Unmarshal(raw, &single) == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("unmarshal RPC batch response: %w", err)
	}
	return responses, nil
}

func (c *BaseClient) Do(ctx context.Context, method, endpoint string, body any, params map[string]string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, c.baseURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	target, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	logger.Debug("HTTP request completed", "url", c.baseURL+endpoint, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, c.baseURL, string(data))
	}
	return data, nil
}

func (c *BaseClient) buildURL(endpoint string, params map[string]string) (string, error) {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	if c.auth != nil && c.auth.Type == AuthTypeQuery {
		q.Set(c.auth.Key, c.auth.Value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *BaseClient) IsHealthy(ctx context.Context) bool {
	if c.clientType != ClientTypeRPC {
		_, err := c.Do(ctx, http.MethodGet, "/health", nil, nil)
		return err == nil
	}
	resp, err := c.CallRPC(ctx, "net_version", nil)
	return err == nil && resp.Error == nil
}

func (c *BaseClient) setAuthHeaders(req *http.Request) {
	if c.auth == nil {
		return
	}
	switch c.auth.Type {
	case AuthTypeHeader:
		req.Header.Set(c.auth.Key, c.auth.Value)
	case AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+c.auth.Value)
	case AuthTypeBasic:
		req.SetBasicAuth(c.auth.Key, c.auth.Value)
	}
}

func (c *BaseClient) GetNetworkType() string { return c.network }
func (c *BaseClient) GetClientType() string  { return c.clientType }
func (c *BaseClient) GetURL() string         { return c.baseURL }
func (c *BaseClient) Close() error           { return nil }
