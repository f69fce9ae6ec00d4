package infra

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type KVPair struct {
	Key   string
	Value []byte
}

// KVStore is a namespaced key-value store. The *Any methods go through the
// store's Codec.
type KVStore interface {
	GetName() string
	Set(k string, v string) error
	Get(k string) (v string, err error)
	SetAny(k string, v any) error
	GetAny(k string, v any) (found bool, err error)

	List(prefix string) ([]*KVPair, error)
	Delete(k string) error
	Close() error
}

// Codec encodes/decodes Go values to/from slices of bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	JSON  = JSONCodec{}
	Words = WordCodec{}
)

type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// WordCodec stores storage words as their raw 32 bytes.
type WordCodec struct{}

func (WordCodec) Marshal(v any) ([]byte, error) {
	switch w := v.(type) {
	case common.Hash:
		return w.Bytes(), nil
	case *common.Hash:
		if w == nil {
			return nil, fmt.Errorf("word codec: nil word")
		}
		return w.Bytes(), nil
	default:
		return nil, fmt.Errorf("word codec: unsupported type %T", v)
	}
}

func (WordCodec) Unmarshal(data []byte, v any) error {
	w, ok := v.(*common.Hash)
	if !ok {
		return fmt.Errorf("word codec: unsupported type %T", v)
	}
	if len(data) != common.HashLength {
		return fmt.Errorf("word codec: %d bytes, want %d", len(data), common.HashLength)
	}
	w.SetBytes(data)
	return nil
}
