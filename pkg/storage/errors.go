package storage

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidSlotIndex is returned for a negative, non-integral or
	// out-of-range slot index, element index or word width.
	ErrInvalidSlotIndex = errors.New("invalid slot index")
	// ErrStorageRead wraps failures of the raw storage reader.
	ErrStorageRead = errors.New("storage read failed")
	// ErrLayoutOverflow means a field layout does not fit into its words.
	ErrLayoutOverflow = errors.New("layout overflow")
	// ErrFieldWidthMismatch means a field's byte width does not match its type.
	ErrFieldWidthMismatch = errors.New("field width mismatch")
	// ErrArrayTooLong is returned when the length word exceeds the configured ceiling.
	ErrArrayTooLong = errors.New("array too long")
)

// ElementError reports the failure of a single array element.
type ElementError struct {
	Index uint64
	Slot  *big.Int
	Err   error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("element %d (slot 0x%x): %v", e.Index, e.Slot, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

// ReadError wraps a reader failure so that errors.Is(err, ErrStorageRead) holds
// while keeping the original cause reachable.
func ReadError(err error) error {
	if err == nil || errors.Is(err, ErrStorageRead) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageRead, err)
}
