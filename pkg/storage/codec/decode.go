package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fystack/storage-inspector/pkg/storage"
)

// Extract returns the width bytes that sit offset bytes above the low-order
// end of word, most significant byte first.
func Extract(word common.Hash, offset, width int) ([]byte, error) {
	if offset < 0 || width < 1 || offset+width > WordSize {
		return nil, fmt.Errorf("%w: bytes %d..%d of a %d-byte word", storage.ErrLayoutOverflow, offset, offset+width, WordSize)
	}
	end := WordSize - offset
	out := make([]byte, width)
	copy(out, word[end-width:end])
	return out, nil
}

// DecodeField decodes one placed field out of an element's words.
func DecodeField(words []common.Hash, p Placement) (Value, error) {
	if p.Word < 0 || p.Word >= len(words) {
		return Value{}, fmt.Errorf("%w: field %q needs word %d, have %d", storage.ErrLayoutOverflow, p.Name, p.Word, len(words))
	}

	raw, err := Extract(words[p.Word], p.Offset, p.Width)
	if err != nil {
		return Value{}, fmt.Errorf("field %q: %w", p.Name, err)
	}

	switch p.Type {
	case TypeAddress:
		if len(raw) != common.AddressLength {
			return Value{}, fmt.Errorf("%w: address field %q is %d bytes", storage.ErrFieldWidthMismatch, p.Name, len(raw))
		}
		var a common.Address
		copy(a[:], raw)
		return AddressValue(a), nil
	case TypeBool:
		if len(raw) != 1 {
			return Value{}, fmt.Errorf("%w: bool field %q is %d bytes", storage.ErrFieldWidthMismatch, p.Name, len(raw))
		}
		if raw[0] > 1 {
			return Value{}, fmt.Errorf("%w: bool field %q holds 0x%02x", storage.ErrFieldWidthMismatch, p.Name, raw[0])
		}
		return BoolValue(raw[0] == 1), nil
	case TypeUint:
		return UintValue(new(big.Int).SetBytes(raw)), nil
	default:
		return Value{}, fmt.Errorf("field %q: unsupported type %q", p.Name, p.Type)
	}
}

// DecodeElement decodes every field of layout from the element's words. The
// layout is validated before anything is decoded.
func DecodeElement(words []common.Hash, layout Layout) (*Element, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if len(words) != layout.WordWidth {
		return nil, fmt.Errorf("element spans %d words, got %d", layout.WordWidth, len(words))
	}

	el := &Element{Fields: make([]FieldValue, 0, len(layout.Fields))}
	for _, p := range layout.Fields {
		v, err := DecodeField(words, p)
		if err != nil {
			return nil, err
		}
		el.Fields = append(el.Fields, FieldValue{Name: p.Name, Value: v})
	}
	return el, nil
}

// EncodeElement is the inverse of DecodeElement. It is used to build fixtures
// and to check a layout against known values.
func EncodeElement(layout Layout, values map[string]Value) ([]common.Hash, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	words := make([]common.Hash, layout.WordWidth)
	for _, p := range layout.Fields {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		var raw []byte
		switch p.Type {
		case TypeAddress:
			raw = v.Address.Bytes()
		case TypeBool:
			raw = []byte{0}
			if v.Bool {
				raw[0] = 1
			}
		case TypeUint:
			if v.Int == nil || v.Int.Sign() < 0 || v.Int.BitLen() > p.Width*8 {
				return nil, fmt.Errorf("field %q: value does not fit in %d bytes", p.Name, p.Width)
			}
			raw = common.LeftPadBytes(v.Int.Bytes(), p.Width)
		}
		if len(raw) != p.Width {
			return nil, fmt.Errorf("%w: field %q", storage.ErrFieldWidthMismatch, p.Name)
		}
		end := WordSize - p.Offset
		copy(words[p.Word][end-p.Width:end], raw)
	}
	return words, nil
}
