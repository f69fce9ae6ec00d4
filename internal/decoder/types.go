package decoder

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fystack/storage-inspector/pkg/common/types"
	"github.com/fystack/storage-inspector/pkg/storage"
	"github.com/fystack/storage-inspector/pkg/storage/codec"
	"github.com/fystack/storage-inspector/pkg/storage/slot"
)

// StorageReader returns the 32-byte word stored at slot of contract. A nil
// block means the latest state.
type StorageReader interface {
	StorageAt(ctx context.Context, contract common.Address, slot common.Hash, block *big.Int) (common.Hash, error)
}

// BatchStorageReader fetches several slots in one round trip. The result is
// index-aligned with slots.
type BatchStorageReader interface {
	StorageReader
	BatchStorageAt(ctx context.Context, contract common.Address, slots []common.Hash, block *big.Int) ([]common.Hash, error)
}

// BlockReader is implemented by readers that can report the chain head, which
// lets a decode pass pin every read to a single block.
type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ArrayDescriptor describes a dynamically-sized storage array of structs.
type ArrayDescriptor struct {
	Name   string
	Slot   *big.Int
	Layout codec.Layout
}

func (d ArrayDescriptor) Validate() error {
	if err := slot.Validate(d.Slot); err != nil {
		return fmt.Errorf("array %q: %w", d.Name, err)
	}
	if err := d.Layout.Validate(); err != nil {
		return fmt.Errorf("array %q: %w", d.Name, err)
	}
	return nil
}

// Result is the outcome of one decode pass. Elements is index-aligned with
// the requested range starting at From; a failed element stays nil and has a
// matching entry in Errors.
type Result struct {
	Contract common.Address
	Array    string
	Block    *big.Int
	Length   *big.Int
	AreaSlot *big.Int
	From     uint64
	Elements []*codec.Element
	Errors   []*storage.ElementError
}

// Err joins the per-element errors, nil when every element decoded.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	m := &types.MultiError{}
	for _, e := range r.Errors {
		m.Add(e)
	}
	return m
}

// Decoded counts the elements that decoded successfully.
func (r *Result) Decoded() int {
	n := 0
	for _, el := range r.Elements {
		if el != nil {
			n++
		}
	}
	return n
}
