package reader

import (
	"errors"

	"github.com/fystack/storage-inspector/internal/decoder"
	"github.com/fystack/storage-inspector/internal/rpc"
	"github.com/fystack/storage-inspector/internal/rpc/evm"
	"github.com/fystack/storage-inspector/pkg/retry"
)

// Reader is a raw storage source that can batch reads and report the head.
type Reader interface {
	decoder.BatchStorageReader
	decoder.BlockReader
	Close() error
}

var ErrNoBlockReader = errors.New("reader cannot report block numbers")

// codedError matches JSON-RPC errors from go-ethereum's rpc package.
type codedError interface {
	error
	ErrorCode() int
}

// classify marks errors that retrying cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Permanent() {
		return retry.Permanent(err)
	}
	var coded codedError
	if errors.As(err, &coded) && rpc.IsPermanentCode(coded.ErrorCode()) {
		return retry.Permanent(err)
	}
	if errors.Is(err, evm.ErrMalformedWord) {
		return retry.Permanent(err)
	}
	return err
}
