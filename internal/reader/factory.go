package reader

import (
	"context"
	"fmt"

	"github.com/fystack/storage-inspector/internal/rpc"
	"github.com/fystack/storage-inspector/internal/rpc/evm"
	"github.com/fystack/storage-inspector/pkg/common/config"
	"github.com/fystack/storage-inspector/pkg/common/enum"
	"github.com/fystack/storage-inspector/pkg/common/logger"
	"github.com/fystack/storage-inspector/pkg/kvstore"
	"github.com/fystack/storage-inspector/pkg/ratelimiter"
	"github.com/fystack/storage-inspector/pkg/retry"
)

// NewFromConfig builds the configured reader, wrapped in the word cache when
// the cache is enabled.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Reader, error) {
	var (
		r   Reader
		err error
	)
	switch cfg.Reader {
	case enum.ReaderTypeGeth:
		r, err = newGethFromConfig(ctx, cfg)
	case enum.ReaderTypeRPC, "":
		r, err = newRPCFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported reader type: %s", cfg.Reader)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enabled {
		return r, nil
	}
	store, err := kvstore.NewFromConfig(cfg.Cache)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("open word cache: %w", err)
	}
	logger.Debug("Word cache enabled", "type", cfg.Cache.Type, "directory", cfg.Cache.Directory, "in_memory", cfg.Cache.InMemory)
	return NewCached(r, store), nil
}

func newRPCFromConfig(cfg *config.Config) (*RPC, error) {
	fcfg := rpc.DefaultFailoverConfig()
	fcfg.Retry = retryConfig(cfg.Defaults)
	failover := rpc.NewFailover[evm.EthereumAPI](&fcfg)

	for _, n := range cfg.NodeList() {
		var limiter *ratelimiter.PooledRateLimiter
		if n.Client.Throttle.RPS > 0 {
			limiter = ratelimiter.NewPooledRateLimiterFromRPS(n.Client.Throttle.RPS, n.Client.Throttle.Burst)
		}
		client := evm.NewEthereumClient(n.URL, authConfig(n.Auth), n.Client.Timeout, limiter)
		if err := failover.AddProvider(rpc.NewProvider(n.Name, client)); err != nil {
			return nil, err
		}
	}
	return NewRPC(failover, cfg.Defaults.Throttle.BatchSize), nil
}

func newGethFromConfig(ctx context.Context, cfg *config.Config) (*Geth, error) {
	nodes := cfg.NodeList()
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes configured")
	}
	if len(nodes) > 1 {
		logger.Warn("geth reader uses a single node", "node", nodes[0].Name, "ignored", len(nodes)-1)
	}
	n := nodes[0]
	return DialGeth(ctx, n.URL, authConfig(n.Auth), retryConfig(n.Client))
}

func retryConfig(c config.ClientConfig) retry.ExponentialConfig {
	rc := retry.ExponentialConfig{
		InitialInterval: retry.DefaultInterval,
		MaxAttempts:     retry.DefaultMaxAttempts,
	}
	if c.RetryDelay > 0 {
		rc.InitialInterval = c.RetryDelay
	}
	if c.MaxRetries > 0 {
		rc.MaxAttempts = c.MaxRetries + 1
	}
	return rc
}

func authConfig(a *config.AuthConfig) *rpc.AuthConfig {
	if a == nil {
		return nil
	}
	return &rpc.AuthConfig{Type: rpc.AuthType(a.Type), Key: a.Key, Value: a.Value}
}
