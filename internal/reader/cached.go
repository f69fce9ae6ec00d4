package reader

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fystack/storage-inspector/internal/decoder"
	"github.com/fystack/storage-inspector/pkg/common/constant"
	"github.com/fystack/storage-inspector/pkg/common/logger"
	"github.com/fystack/storage-inspector/pkg/common/types"
	"github.com/fystack/storage-inspector/pkg/infra"
)

// Cached keeps words read at a fixed block in a KVStore. Reads at "latest"
// always go to the next reader since that state keeps changing.
type Cached struct {
	next  decoder.StorageReader
	store infra.KVStore
}

var _ Reader = (*Cached)(nil)

func NewCached(next decoder.StorageReader, store infra.KVStore) *Cached {
	return &Cached{next: next, store: store}
}

func (c *Cached) StorageAt(ctx context.Context, contract common.Address, slot common.Hash, block *big.Int) (common.Hash, error) {
	if block == nil {
		return c.next.StorageAt(ctx, contract, slot, nil)
	}

	key := WordKey(contract, slot, block)
	if word, ok := c.lookup(key); ok {
		return word, nil
	}

	word, err := c.next.StorageAt(ctx, contract, slot, block)
	if err != nil {
		return common.Hash{}, err
	}
	c.remember(key, word)
	return word, nil
}

// BatchStorageAt serves cached slots locally and fetches the rest in one batch
// when the next reader supports it.
func (c *Cached) BatchStorageAt(ctx context.Context, contract common.Address, slots []common.Hash, block *big.Int) ([]common.Hash, error) {
	words := make([]common.Hash, len(slots))
	var missing []int
	for i, s := range slots {
		if block != nil {
			if w, ok := c.lookup(WordKey(contract, s, block)); ok {
				words[i] = w
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return words, nil
	}

	fetched, err := c.fetch(ctx, contract, slots, missing, block)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		words[i] = fetched[j]
		if block != nil {
			c.remember(WordKey(contract, slots[i], block), fetched[j])
		}
	}
	return words, nil
}

func (c *Cached) fetch(ctx context.Context, contract common.Address, slots []common.Hash, missing []int, block *big.Int) ([]common.Hash, error) {
	want := make([]common.Hash, len(missing))
	for j, i := range missing {
		want[j] = slots[i]
	}

	if br, ok := c.next.(decoder.BatchStorageReader); ok && len(want) > 1 {
		words, err := br.BatchStorageAt(ctx, contract, want, block)
		if err != nil {
			return nil, err
		}
		if len(words) != len(want) {
			return nil, fmt.Errorf("batch returned %d words for %d slots", len(words), len(want))
		}
		return words, nil
	}

	words := make([]common.Hash, len(want))
	for j, s := range want {
		w, err := c.next.StorageAt(ctx, contract, s, block)
		if err != nil {
			return nil, err
		}
		words[j] = w
	}
	return words, nil
}

func (c *Cached) BlockNumber(ctx context.Context) (uint64, error) {
	br, ok := c.next.(decoder.BlockReader)
	if !ok {
		return 0, ErrNoBlockReader
	}
	return br.BlockNumber(ctx)
}

func (c *Cached) Close() error {
	errs := &types.MultiError{}
	if closer, ok := c.next.(interface{ Close() error }); ok {
		errs.Add(closer.Close())
	}
	errs.Add(c.store.Close())
	return errs.ErrOrNil()
}

func (c *Cached) lookup(key string) (common.Hash, bool) {
	var word common.Hash
	found, err := c.store.GetAny(key, &word)
	if err != nil {
		logger.Warn("Word cache read failed", "key", key, "err", err)
		return common.Hash{}, false
	}
	return word, found
}

// remember stores word; a failed write only costs a later re-read.
func (c *Cached) remember(key string, word common.Hash) {
	if err := c.store.SetAny(key, word); err != nil {
		logger.Warn("Word cache write failed", "key", key, "err", err)
	}
}

// WordKey is the cache key of one word: prefix/contract/block/slot.
func WordKey(contract common.Address, slot common.Hash, block *big.Int) string {
	return fmt.Sprintf("%s/%s/%s/%s", constant.WordKeyPrefix, contract.Hex(), block.String(), slot.Hex())
}
