package reader

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/storage-inspector/pkg/common/config"
)

func testConfig(url, reader string, cache bool) string {
	return fmt.Sprintf(`
env: development
reader: %s
defaults:
  max_retries: 1
  retry_delay: 1ms
  throttle:
    rps: 100
    burst: 10
    batch_size: 10
nodes:
  main:
    url: %s
cache:
  enabled: %t
  in_memory: true
contracts:
  token:
    address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
    arrays:
      locks:
        slot: 0
        fields:
          - name: amount
            type: uint256
`, reader, url, cache)
}

func TestNewFromConfig(t *testing.T) {
	_, srv := newFakeNode(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		reader string
		cache  bool
		check  func(t *testing.T, r Reader)
	}{
		{"rpc", "rpc", false, func(t *testing.T, r Reader) { assert.IsType(t, &RPC{}, r) }},
		{"geth", "geth", false, func(t *testing.T, r Reader) { assert.IsType(t, &Geth{}, r) }},
		{"cached rpc", "rpc", true, func(t *testing.T, r Reader) {
			cached, ok := r.(*Cached)
			require.True(t, ok)
			assert.IsType(t, &RPC{}, cached.next)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(testConfig(srv.URL, tt.reader, tt.cache)))
			require.NoError(t, err)

			r, err := NewFromConfig(ctx, cfg)
			require.NoError(t, err)
			defer r.Close()
			tt.check(t, r)

			head, err := r.BlockNumber(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(100), head)
		})
	}
}

func TestRetryConfig(t *testing.T) {
	rc := retryConfig(config.ClientConfig{})
	assert.Equal(t, 3, rc.MaxAttempts)

	rc = retryConfig(config.ClientConfig{MaxRetries: 4})
	assert.Equal(t, 5, rc.MaxAttempts)
}
