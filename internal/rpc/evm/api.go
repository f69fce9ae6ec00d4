package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fystack/storage-inspector/internal/rpc"
)

type EthereumAPI interface {
	rpc.NetworkClient
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, block *big.Int) (common.Hash, error)
	BatchGetStorageAt(ctx context.Context, address common.Address, slots []common.Hash, block *big.Int) ([]common.Hash, error)
}

var _ EthereumAPI = (*Client)(nil)
