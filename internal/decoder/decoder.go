package decoder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/fystack/storage-inspector/pkg/common/logger"
	"github.com/fystack/storage-inspector/pkg/storage"
	"github.com/fystack/storage-inspector/pkg/storage/codec"
	"github.com/fystack/storage-inspector/pkg/storage/slot"
)

type Decoder struct {
	reader StorageReader
	opts   Options
}

func New(reader StorageReader, opts ...Option) *Decoder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Decoder{reader: reader, opts: o}
}

// Decode reads every element of the array described by desc.
func (d *Decoder) Decode(ctx context.Context, contract common.Address, desc ArrayDescriptor) (*Result, error) {
	return d.DecodeRange(ctx, contract, desc, 0, math.MaxUint64)
}

// DecodeRange reads elements [from, from+count) clipped to the array length.
// Structural errors (bad slot, bad layout) and a failed length read abort the
// pass; element failures are reported in Result.Errors.
func (d *Decoder) DecodeRange(ctx context.Context, contract common.Address, desc ArrayDescriptor, from, count uint64) (*Result, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	block, err := d.resolveBlock(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.With("contract", contract.Hex(), "array", desc.Name)

	lengthKey := slot.Key(desc.Slot)
	lengthWord, err := d.reader.StorageAt(ctx, contract, lengthKey, block)
	if err != nil {
		return nil, fmt.Errorf("array %q: read length at slot %s: %w", desc.Name, lengthKey.Hex(), storage.ReadError(err))
	}

	length := slot.ReadArrayLength(lengthWord)
	result := &Result{
		Contract: contract,
		Array:    desc.Name,
		Block:    block,
		Length:   length,
		From:     from,
	}

	if !length.IsUint64() || (d.opts.MaxLength > 0 && length.Uint64() > d.opts.MaxLength) {
		return nil, fmt.Errorf("%w: array %q has length %s (max %d)", storage.ErrArrayTooLong, desc.Name, length, d.opts.MaxLength)
	}

	n := length.Uint64()
	if n == 0 || from >= n {
		log.Debug("Nothing to decode", "length", n, "from", from)
		return result, nil
	}
	end := n
	if count < n-from {
		end = from + count
	}

	area, err := slot.ResolveArrayBase(desc.Slot)
	if err != nil {
		return nil, err
	}
	result.AreaSlot = area
	result.Elements = make([]*codec.Element, end-from)

	log.Debug("Decoding array", "length", n, "from", from, "to", end, "area_slot", slot.Key(area).Hex(), "block", block)

	var (
		mu   sync.Mutex
		errs []*storage.ElementError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i := from; i < end; i++ {
		index := i
		g.Go(func() error {
			el, elSlot, err := d.decodeElement(gctx, contract, area, index, desc.Layout, block)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("Element decode failed", "index", index, "slot", elSlot, "err", err)
				mu.Lock()
				errs = append(errs, &storage.ElementError{Index: index, Slot: elSlot, Err: err})
				mu.Unlock()
				return nil
			}
			result.Elements[index-from] = el
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Index < errs[j].Index })
	result.Errors = errs

	log.Info("Array decoded", "length", n, "decoded", result.Decoded(), "failed", len(errs))
	return result, nil
}

func (d *Decoder) resolveBlock(ctx context.Context) (*big.Int, error) {
	if d.opts.Block != nil {
		return new(big.Int).Set(d.opts.Block), nil
	}
	if !d.opts.PinBlock {
		return nil, nil
	}
	br, ok := d.reader.(BlockReader)
	if !ok {
		return nil, nil
	}
	head, err := br.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin block: %w", storage.ReadError(err))
	}
	return new(big.Int).SetUint64(head), nil
}

func (d *Decoder) decodeElement(
	ctx context.Context,
	contract common.Address,
	area *big.Int,
	index uint64,
	layout codec.Layout,
	block *big.Int,
) (*codec.Element, *big.Int, error) {
	elSlot, err := slot.ResolveElementSlot(area, new(big.Int).SetUint64(index), uint64(layout.WordWidth))
	if err != nil {
		return nil, nil, err
	}

	keys := make([]common.Hash, layout.WordWidth)
	for k := range keys {
		keys[k] = slot.Key(new(big.Int).Add(elSlot, big.NewInt(int64(k))))
	}

	words, err := d.fetch(ctx, contract, keys, block)
	if err != nil {
		return nil, elSlot, err
	}

	el, err := codec.DecodeElement(words, layout)
	if err != nil {
		return nil, elSlot, err
	}
	return el, elSlot, nil
}

func (d *Decoder) fetch(ctx context.Context, contract common.Address, keys []common.Hash, block *big.Int) ([]common.Hash, error) {
	if br, ok := d.reader.(BatchStorageReader); ok && len(keys) > 1 {
		words, err := br.BatchStorageAt(ctx, contract, keys, block)
		if err != nil {
			return nil, storage.ReadError(err)
		}
		if len(words) != len(keys) {
			return nil, fmt.Errorf("%w: batch returned %d words for %d slots", storage.ErrStorageRead, len(words), len(keys))
		}
		return words, nil
	}

	words := make([]common.Hash, len(keys))
	for k, key := range keys {
		w, err := d.reader.StorageAt(ctx, contract, key, block)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", key.Hex(), storage.ReadError(err))
		}
		words[k] = w
	}
	return words, nil
}

// IsStructural reports whether err invalidates the whole pass rather than a
// single element.
func IsStructural(err error) bool {
	return errors.Is(err, storage.ErrInvalidSlotIndex) || errors.Is(err, storage.ErrLayoutOverflow)
}
