package reader

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fystack/storage-inspector/internal/rpc"
	"github.com/fystack/storage-inspector/internal/rpc/evm"
)

// RPC reads storage through the JSON-RPC client, failing over between nodes.
type RPC struct {
	failover  *rpc.Failover[evm.EthereumAPI]
	batchSize int
}

var _ Reader = (*RPC)(nil)

// NewRPC wraps failover. batchSize caps the slots sent in one batch request,
// 0 sends all of them at once.
func NewRPC(failover *rpc.Failover[evm.EthereumAPI], batchSize int) *RPC {
	return &RPC{failover: failover, batchSize: batchSize}
}

func (r *RPC) StorageAt(ctx context.Context, contract common.Address, slot common.Hash, block *big.Int) (common.Hash, error) {
	var word common.Hash
	err := r.failover.Execute(ctx, func(c evm.EthereumAPI) error {
		w, err := c.GetStorageAt(ctx, contract, slot, block)
		if err != nil {
			return classify(err)
		}
		word = w
		return nil
	})
	return word, err
}

func (r *RPC) BatchStorageAt(ctx context.Context, contract common.Address, slots []common.Hash, block *big.Int) ([]common.Hash, error) {
	words := make([]common.Hash, 0, len(slots))
	for _, chunk := range chunks(slots, r.batchSize) {
		var got []common.Hash
		err := r.failover.Execute(ctx, func(c evm.EthereumAPI) error {
			w, err := c.BatchGetStorageAt(ctx, contract, chunk, block)
			if err != nil {
				return classify(err)
			}
			got = w
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(got) != len(chunk) {
			return nil, fmt.Errorf("batch returned %d words for %d slots", len(got), len(chunk))
		}
		words = append(words, got...)
	}
	return words, nil
}

func (r *RPC) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := r.failover.Execute(ctx, func(c evm.EthereumAPI) error {
		n, err := c.GetBlockNumber(ctx)
		if err != nil {
			return classify(err)
		}
		head = n
		return nil
	})
	return head, err
}

func (r *RPC) Close() error {
	for _, p := range r.failover.Providers() {
		if err := p.Client.Close(); err != nil {
			return err
		}
	}
	return nil
}

func chunks(slots []common.Hash, size int) [][]common.Hash {
	if size <= 0 || len(slots) <= size {
		return [][]common.Hash{slots}
	}
	out := make([][]common.Hash, 0, (len(slots)+size-1)/size)
	for start := 0; start < len(slots); start += size {
		end := min(start+size, len(slots))
		out = append(out, slots[start:end])
	}
	return out
}
