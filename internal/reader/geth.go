package reader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/fystack/storage-inspector/internal/rpc"
	"github.com/fystack/storage-inspector/internal/rpc/evm"
	"github.com/fystack/storage-inspector/pkg/retry"
)

// Geth reads storage through go-ethereum's ethclient against a single node.
type Geth struct {
	client *ethclient.Client
	retry  retry.ExponentialConfig
}

var _ Reader = (*Geth)(nil)

func NewGeth(client *ethclient.Client, retryCfg retry.ExponentialConfig) *Geth {
	return &Geth{client: client, retry: retryCfg}
}

// DialGeth connects to rawURL, applying auth as headers or query parameters.
func DialGeth(ctx context.Context, rawURL string, auth *rpc.AuthConfig, retryCfg retry.ExponentialConfig) (*Geth, error) {
	var opts []gethrpc.ClientOption
	if auth != nil {
		switch auth.Type {
		case rpc.AuthTypeHeader:
			opts = append(opts, gethrpc.WithHeader(auth.Key, auth.Value))
		case rpc.AuthTypeBearer:
			opts = append(opts, gethrpc.WithHeader("Authorization", "Bearer "+auth.Value))
		case rpc.AuthTypeBasic:
			token := base64.StdEncoding.EncodeToString([]byte(auth.Key + ":" + auth.Value))
			opts = append(opts, gethrpc.WithHeader("Authorization", "Basic "+token))
		case rpc.AuthTypeQuery:
			u, err := url.Parse(rawURL)
			if err != nil {
				return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
			}
			q := u.Query()
			q.Set(auth.Key, auth.Value)
			u.RawQuery = q.Encode()
			rawURL = u.String()
		}
	}

	c, err := gethrpc.DialOptions(ctx, rawURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return NewGeth(ethclient.NewClient(c), retryCfg), nil
}

func (g *Geth) StorageAt(ctx context.Context, contract common.Address, slot common.Hash, block *big.Int) (common.Hash, error) {
	var word common.Hash
	err := g.do(ctx, func() error {
		b, err := g.client.StorageAt(ctx, contract, slot, block)
		if err != nil {
			return classify(err)
		}
		if len(b) != common.HashLength {
			return retry.Permanent(fmt.Errorf("%w: %d bytes at %s", evm.ErrMalformedWord, len(b), slot.Hex()))
		}
		word = common.BytesToHash(b)
		return nil
	})
	return word, err
}

// BatchStorageAt sends every slot in one JSON-RPC batch.
func (g *Geth) BatchStorageAt(ctx context.Context, contract common.Address, slots []common.Hash, block *big.Int) ([]common.Hash, error) {
	words := make([]common.Hash, len(slots))
	err := g.do(ctx, func() error {
		results := make([]hexutil.Bytes, len(slots))
		batch := make([]gethrpc.BatchElem, len(slots))
		for i, s := range slots {
			batch[i] = gethrpc.BatchElem{
				Method: "eth_getStorageAt",
				Args:   []any{contract, s, evm.BlockTag(block)},
				Result: &results[i],
			}
		}
		if err := g.client.Client().BatchCallContext(ctx, batch); err != nil {
			return classify(err)
		}
		for i, el := range batch {
			if el.Error != nil {
				return classify(fmt.Errorf("eth_getStorageAt %s: %w", slots[i].Hex(), el.Error))
			}
			if len(results[i]) != common.HashLength {
				return retry.Permanent(fmt.Errorf("%w: %d bytes at %s", evm.ErrMalformedWord, len(results[i]), slots[i].Hex()))
			}
			words[i] = common.BytesToHash(results[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return words, nil
}

func (g *Geth) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := g.do(ctx, func() error {
		n, err := g.client.BlockNumber(ctx)
		if err != nil {
			return classify(err)
		}
		head = n
		return nil
	})
	return head, err
}

func (g *Geth) Close() error {
	g.client.Close()
	return nil
}

func (g *Geth) do(ctx context.Context, fn retry.Operation) error {
	if g.retry.InitialInterval <= 0 {
		return unwrapPermanent(fn())
	}
	return retry.ExponentialContext(ctx, fn, g.retry)
}

func unwrapPermanent(err error) error {
	if retry.IsPermanent(err) {
		return errors.Unwrap(err)
	}
	return err
}
