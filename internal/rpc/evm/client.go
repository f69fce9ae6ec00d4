package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fystack/storage-inspector/internal/rpc"
	"github.com/fystack/storage-inspector/pkg/ratelimiter"
)

// ErrMalformedWord is returned when a node answers eth_getStorageAt with
// something other than a 32-byte word.
var ErrMalformedWord = errors.New("malformed storage word")

type Client struct {
	*rpc.BaseClient
}

func NewEthereumClient(
	url string,
	auth *rpc.AuthConfig,
	timeout time.Duration,
	rateLimiter *ratelimiter.PooledRateLimiter,
) *Client {
	return &Client{
		BaseClient: rpc.NewBaseClient(
			url,
			rpc.NetworkEVM,
			rpc.ClientTypeRPC,
			auth,
			timeout,
			rateLimiter,
		),
	}
}

// BlockTag renders a block number parameter, nil meaning "latest".
func BlockTag(block *big.Int) string {
	if block == nil {
		return "latest"
	}
	return hexutil.EncodeBig(block)
}

// GetBlockNumber returns the current block number
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	resp, err := c.CallRPC(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	var blockHex hexutil.Uint64
	if err := json.Unmarshal(resp.Result, &blockHex); err != nil {
		return 0, fmt.Errorf("failed to unmarshal block number: %w", err)
	}
	return uint64(blockHex), nil
}

// GetStorageAt returns the 32-byte word stored at slot.
func (c *Client) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, block *big.Int) (common.Hash, error) {
	resp, err := c.CallRPC(ctx, "eth_getStorageAt", []any{address, slot, BlockTag(block)})
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt failed: %w", err)
	}
	if resp.IsNull() {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt %s: %w: empty result", slot.Hex(), ErrMalformedWord)
	}
	return parseWord(resp.Result)
}

// BatchGetStorageAt reads several slots in one batch request. The result is
// index-aligned with slots; any missing or failed entry fails the call.
func (c *Client) BatchGetStorageAt(
	ctx context.Context,
	address common.Address,
	slots []common.Hash,
	block *big.Int,
) ([]common.Hash, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	tag := BlockTag(block)
	ids := c.NextRequestIDs(len(slots))
	requests := make([]*rpc.RPCRequest, 0, len(slots))
	idToPos := make(map[int64]int, len(slots))

	for i, s := range slots {
		requests = append(requests, &rpc.RPCRequest{
			ID:      ids[i],
			JSONRPC: "2.0",
			Method:  "eth_getStorageAt",
			Params:  []any{address, s, tag},
		})
		idToPos[ids[i]] = i
	}

	responses, err := c.DoBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("eth_getStorageAt batch failed: %w", err)
	}

	words := make([]common.Hash, len(slots))
	filled := make([]bool, len(slots))
	for _, r := range responses {
		id, ok := r.IDInt64()
		if !ok {
			continue
		}
		pos, ok := idToPos[id]
		if !ok {
			continue
		}
		if r.Error != nil {
			return nil, fmt.Errorf("eth_getStorageAt %s: %w", slots[pos].Hex(), r.Error)
		}
		if r.IsNull() {
			return nil, fmt.Errorf("eth_getStorageAt %s: %w: empty result", slots[pos].Hex(), ErrMalformedWord)
		}
		w, err := parseWord(r.Result)
		if err != nil {
			return nil, fmt.Errorf("eth_getStorageAt %s: %w", slots[pos].Hex(), err)
		}
		words[pos] = w
		filled[pos] = true
	}

	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("eth_getStorageAt %s: missing from batch response", slots[i].Hex())
		}
	}
	return words, nil
}

func parseWord(raw json.RawMessage) (common.Hash, error) {
	var data hexutil.Bytes
	if err := json.Unmarshal(raw, &data); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformedWord, err)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedWord, len(data), common.HashLength)
	}
	return common.BytesToHash(data), nil
}
