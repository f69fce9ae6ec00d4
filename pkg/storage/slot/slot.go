// Package slot derives storage slot indexes following Solidity's storage
// layout rules for dynamically-sized arrays and mappings.
package slot

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/fystack/storage-inspector/pkg/storage"
)

var (
	// modulus is 2^256, the size of the storage key space.
	modulus    = new(big.Int).Lsh(big.NewInt(1), 256)
	maxSlotKey = new(big.Int).Sub(modulus, big.NewInt(1))
)

// Keccak256 hashes data with the legacy (pre-NIST) Keccak-256 used by the EVM.
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// Validate checks that s is a usable declared slot: 0 <= s < 2^256.
func Validate(s *big.Int) error {
	if s == nil {
		return fmt.Errorf("%w: nil slot", storage.ErrInvalidSlotIndex)
	}
	if s.Sign() < 0 {
		return fmt.Errorf("%w: negative slot %s", storage.ErrInvalidSlotIndex, s)
	}
	if s.Cmp(modulus) >= 0 {
		return fmt.Errorf("%w: slot %s exceeds 256 bits", storage.ErrInvalidSlotIndex, s)
	}
	return nil
}

// Key encodes a slot as the 32-byte big-endian key used by eth_getStorageAt.
// Slots derived by addition may exceed 2^256 and wrap like EVM arithmetic.
func Key(s *big.Int) common.Hash {
	v := new(big.Int).And(s, maxSlotKey)
	return common.BigToHash(v)
}

// Parse reads a slot literal in decimal or 0x-prefixed hex.
func Parse(s string) (*big.Int, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty slot", storage.ErrInvalidSlotIndex)
	}

	base := 10
	digits := raw
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		base = 16
		digits = raw[2:]
	}
	// SetString accepts a sign and underscores, neither is a valid slot literal
	if digits == "" || strings.ContainsAny(digits, "+-_") {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidSlotIndex, s)
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidSlotIndex, s)
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ResolveArrayBase returns the slot at which the element data of a dynamic
// array declared at declarationSlot begins: keccak256(uint256(declarationSlot)).
func ResolveArrayBase(declarationSlot *big.Int) (*big.Int, error) {
	if err := Validate(declarationSlot); err != nil {
		return nil, err
	}
	key := Key(declarationSlot)
	digest := Keccak256(key.Bytes())
	return new(big.Int).SetBytes(digest.Bytes()), nil
}

// ResolveElementSlot returns area + index*wordWidth without truncation.
func ResolveElementSlot(area, index *big.Int, wordWidth uint64) (*big.Int, error) {
	if area == nil || index == nil {
		return nil, fmt.Errorf("%w: nil operand", storage.ErrInvalidSlotIndex)
	}
	if area.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative area slot %s", storage.ErrInvalidSlotIndex, area)
	}
	if index.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative index %s", storage.ErrInvalidSlotIndex, index)
	}
	if wordWidth < 1 {
		return nil, fmt.Errorf("%w: element word width must be >= 1", storage.ErrInvalidSlotIndex)
	}

	offset := new(big.Int).Mul(index, new(big.Int).SetUint64(wordWidth))
	return offset.Add(offset, area), nil
}

// ReadArrayLength interprets the word stored at an array's declaration slot.
func ReadArrayLength(word common.Hash) *big.Int {
	return new(big.Int).SetBytes(word.Bytes())
}

// ResolveMappingSlot returns the slot of mapping[key] for a mapping declared
// at declarationSlot: keccak256(key . uint256(declarationSlot)). The key must
// already be padded to 32 bytes the way Solidity pads value-type keys.
func ResolveMappingSlot(key common.Hash, declarationSlot *big.Int) (*big.Int, error) {
	if err := Validate(declarationSlot); err != nil {
		return nil, err
	}
	p := Key(declarationSlot)
	digest := Keccak256(key.Bytes(), p.Bytes())
	return new(big.Int).SetBytes(digest.Bytes()), nil
}
