package kvstore

import (
	"errors"
	"fmt"

	"github.com/fystack/storage-inspector/pkg/common/config"
	"github.com/fystack/storage-inspector/pkg/common/enum"
	"github.com/fystack/storage-inspector/pkg/infra"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyEmpty    = errors.New("key is empty")
)

// checkKeyAndValue returns an error if k == "" or if v == nil
func checkKeyAndValue(k string, v any) error {
	if k == "" {
		return ErrKeyEmpty
	}
	if v == nil {
		return errors.New("the passed value is nil, which is not allowed")
	}
	return nil
}

// NewFromConfig constructs an infra.KVStore based on cache configuration.
func NewFromConfig(cfg config.CacheConfig) (infra.KVStore, error) {
	switch cfg.Type {
	case enum.KVStoreTypeBadger, "":
		if cfg.InMemory {
			return NewInMemoryBadgerStore(cfg.Prefix, infra.Words)
		}
		return NewBadgerStore(cfg.Directory, cfg.Prefix, infra.Words)
	default:
		return nil, fmt.Errorf("unsupported kvstore type: %s", cfg.Type)
	}
}
