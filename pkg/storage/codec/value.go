package codec

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Value is a decoded field. Exactly one of Int, Address or Bool is meaningful,
// selected by Type.
type Value struct {
	Type    Type
	Int     *big.Int
	Address common.Address
	Bool    bool
}

func UintValue(v *big.Int) Value          { return Value{Type: TypeUint, Int: v} }
func AddressValue(a common.Address) Value { return Value{Type: TypeAddress, Address: a} }
func BoolValue(b bool) Value              { return Value{Type: TypeBool, Bool: b} }

// String renders addresses as EIP-55 hex and integers in base 10.
func (v Value) String() string {
	switch v.Type {
	case TypeAddress:
		return v.Address.Hex()
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	case TypeUint:
		if v.Int == nil {
			return "<nil>"
		}
		return v.Int.String()
	default:
		return ""
	}
}

// MarshalJSON emits integers as decimal strings so that 256-bit values survive
// JSON consumers limited to float64.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Type == TypeBool {
		return json.Marshal(v.Bool)
	}
	return json.Marshal(v.String())
}

type FieldValue struct {
	Name  string
	Value Value
}

// Element is one decoded array element. Fields keep declaration order.
type Element struct {
	Fields []FieldValue
}

func (e *Element) Get(name string) (Value, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON writes an object whose keys follow declaration order.
func (e *Element) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
