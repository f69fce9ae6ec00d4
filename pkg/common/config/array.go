package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fystack/storage-inspector/pkg/storage/codec"
	"github.com/fystack/storage-inspector/pkg/storage/slot"
)

// ResolvedArray is an ArrayConfig turned into a declaration slot and a
// validated layout.
type ResolvedArray struct {
	Name   string
	Slot   *big.Int
	Layout codec.Layout
}

func (a ArrayConfig) Resolve() (ResolvedArray, error) {
	declSlot, err := slot.Parse(string(a.Slot))
	if err != nil {
		return ResolvedArray{}, fmt.Errorf("array %s: slot: %w", a.Name, err)
	}

	if a.MappingKey != "" {
		key, err := ParseMappingKey(string(a.MappingKey))
		if err != nil {
			return ResolvedArray{}, fmt.Errorf("array %s: mapping_key: %w", a.Name, err)
		}
		if declSlot, err = slot.ResolveMappingSlot(key, declSlot); err != nil {
			return ResolvedArray{}, fmt.Errorf("array %s: %w", a.Name, err)
		}
	}

	layout, err := a.layout()
	if err != nil {
		return ResolvedArray{}, fmt.Errorf("array %s: %w", a.Name, err)
	}
	return ResolvedArray{Name: a.Name, Slot: declSlot, Layout: layout}, nil
}

func (a ArrayConfig) layout() (codec.Layout, error) {
	fields := make([]codec.Field, 0, len(a.Fields))
	explicit := 0
	for _, fc := range a.Fields {
		f, err := codec.ParseType(fc.Name, fc.Type)
		if err != nil {
			return codec.Layout{}, err
		}
		fields = append(fields, f)
		if fc.Slot != nil || fc.Offset != nil {
			explicit++
		}
	}

	switch {
	case explicit == 0 && a.WordWidth == 0:
		return codec.Pack(fields)
	case explicit == 0:
		return codec.PackInto(a.WordWidth, fields)
	case explicit != len(fields):
		return codec.Layout{}, fmt.Errorf("either every field or none sets slot/offset")
	case a.WordWidth == 0:
		return codec.Layout{}, fmt.Errorf("word_width is required with explicit placements")
	}

	placements := make([]codec.Placement, len(fields))
	for i, fc := range a.Fields {
		word, offset := 0, 0
		if fc.Slot != nil {
			word = *fc.Slot
		}
		if fc.Offset != nil {
			offset = *fc.Offset
		}
		placements[i] = codec.Placement{Field: fields[i], Word: word, Offset: offset}
	}
	return codec.NewLayout(a.WordWidth, placements)
}

// ParseMappingKey accepts a hex key (an address or a full 32-byte word,
// left-padded like Solidity does) or a decimal integer.
func ParseMappingKey(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hexutil.Decode("0x" + digits)
		if err != nil {
			return common.Hash{}, err
		}
		if len(b) > common.HashLength {
			return common.Hash{}, fmt.Errorf("key %q longer than 32 bytes", s)
		}
		return common.BytesToHash(b), nil
	}
	n, err := slot.Parse(s)
	if err != nil {
		return common.Hash{}, err
	}
	return slot.Key(n), nil
}
