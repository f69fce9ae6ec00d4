// Package codec splits raw 32-byte storage words into typed struct fields
// according to Solidity's storage packing rules.
package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fystack/storage-inspector/pkg/storage"
)

// WordSize is the size of one storage word in bytes.
const WordSize = 32

type Type string

const (
	TypeAddress Type = "address"
	TypeUint    Type = "uint"
	TypeBool    Type = "bool"
)

const addressWidth = 20

// Field is a struct member in declaration order.
type Field struct {
	Name  string `json:"name"`
	Type  Type   `json:"type"`
	Width int    `json:"width"`
}

// Placement locates a field inside an element: Word is the word index within
// the element and Offset counts bytes from the low-order end of that word.
type Placement struct {
	Field
	Word   int `json:"word"`
	Offset int `json:"offset"`
}

// Layout describes how one array element is spread over consecutive words.
type Layout struct {
	WordWidth int         `json:"word_width"`
	Fields    []Placement `json:"fields"`
}

// ParseType builds a field from a Solidity elementary type name.
func ParseType(name, solidityType string) (Field, error) {
	t := strings.TrimSpace(solidityType)
	switch {
	case t == "address":
		return Field{Name: name, Type: TypeAddress, Width: addressWidth}, nil
	case t == "bool":
		return Field{Name: name, Type: TypeBool, Width: 1}, nil
	case t == "uint":
		return Field{Name: name, Type: TypeUint, Width: WordSize}, nil
	case strings.HasPrefix(t, "uint"):
		bits, err := strconv.Atoi(t[len("uint"):])
		if err != nil || bits < 8 || bits > 256 || bits%8 != 0 {
			return Field{}, fmt.Errorf("field %q: unsupported type %q", name, solidityType)
		}
		return Field{Name: name, Type: TypeUint, Width: bits / 8}, nil
	default:
		return Field{}, fmt.Errorf("field %q: unsupported type %q", name, solidityType)
	}
}

// Pack places fields the way solc does: starting at the low-order end of the
// first word, a field that does not fit in what is left of the current word
// moves to the next one.
func Pack(fields []Field) (Layout, error) {
	if len(fields) == 0 {
		return Layout{}, fmt.Errorf("%w: no fields", storage.ErrLayoutOverflow)
	}

	placements := make([]Placement, 0, len(fields))
	word, offset := 0, 0
	for _, f := range fields {
		if f.Width < 1 || f.Width > WordSize {
			return Layout{}, fmt.Errorf("%w: field %q has width %d", storage.ErrLayoutOverflow, f.Name, f.Width)
		}
		if offset+f.Width > WordSize {
			word++
			offset = 0
		}
		placements = append(placements, Placement{Field: f, Word: word, Offset: offset})
		offset += f.Width
	}

	return Layout{WordWidth: word + 1, Fields: placements}, nil
}

// PackInto packs fields and checks the result fits the declared word width.
func PackInto(wordWidth int, fields []Field) (Layout, error) {
	l, err := Pack(fields)
	if err != nil {
		return Layout{}, err
	}
	if l.WordWidth > wordWidth {
		return Layout{}, fmt.Errorf("%w: fields need %d words, element has %d", storage.ErrLayoutOverflow, l.WordWidth, wordWidth)
	}
	l.WordWidth = wordWidth
	return l, nil
}

// NewLayout builds a layout from explicit placements, as found in solc's
// storageLayout output.
func NewLayout(wordWidth int, placements []Placement) (Layout, error) {
	l := Layout{WordWidth: wordWidth, Fields: placements}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate reports ErrLayoutOverflow when any word would need more than 32
// bytes, fields overlap, or a field lies outside the element.
func (l Layout) Validate() error {
	if l.WordWidth < 1 {
		return fmt.Errorf("%w: element word width %d", storage.ErrLayoutOverflow, l.WordWidth)
	}
	if len(l.Fields) == 0 {
		return fmt.Errorf("%w: no fields", storage.ErrLayoutOverflow)
	}

	used := make(map[int]int, l.WordWidth)
	byWord := make(map[int][]Placement, l.WordWidth)
	seen := make(map[string]struct{}, len(l.Fields))
	for _, p := range l.Fields {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate field %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		if p.Width < 1 || p.Width > WordSize {
			return fmt.Errorf("%w: field %q has width %d", storage.ErrLayoutOverflow, p.Name, p.Width)
		}
		if p.Word < 0 || p.Word >= l.WordWidth {
			return fmt.Errorf("%w: field %q in word %d of a %d-word element", storage.ErrLayoutOverflow, p.Name, p.Word, l.WordWidth)
		}
		if p.Offset < 0 || p.Offset+p.Width > WordSize {
			return fmt.Errorf("%w: field %q spans bytes %d..%d of word %d", storage.ErrLayoutOverflow, p.Name, p.Offset, p.Offset+p.Width, p.Word)
		}
		used[p.Word] += p.Width
		if used[p.Word] > WordSize {
			return fmt.Errorf("%w: word %d needs %d bytes", storage.ErrLayoutOverflow, p.Word, used[p.Word])
		}
		byWord[p.Word] = append(byWord[p.Word], p)
	}

	for word, ps := range byWord {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Offset < ps[j].Offset })
		for i := 1; i < len(ps); i++ {
			if ps[i-1].Offset+ps[i-1].Width > ps[i].Offset {
				return fmt.Errorf("%w: fields %q and %q overlap in word %d", storage.ErrLayoutOverflow, ps[i-1].Name, ps[i].Name, word)
			}
		}
	}
	return nil
}
