package render

import (
	"fmt"
	"io"
	"math/big"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fystack/storage-inspector/internal/decoder"
	"github.com/fystack/storage-inspector/pkg/common/enum"
	"github.com/fystack/storage-inspector/pkg/storage/codec"
)

// FieldFormat controls how an integer field is displayed: scaled down by
// 10^Decimals and suffixed with Unit.
type FieldFormat struct {
	Decimals int32
	Unit     string
}

type Options struct {
	// Contract names the contract in JSON output.
	Contract string
	// Formats is keyed by field name.
	Formats map[string]FieldFormat
	// Columns fixes the field order for tabular output; defaults to the
	// order of the first decoded element.
	Columns []string
}

type Renderer interface {
	Render(w io.Writer, result *decoder.Result) error
}

func New(format enum.OutputFormat, opts Options) (Renderer, error) {
	switch format {
	case enum.OutputFormatText, "":
		return &textRenderer{opts: opts}, nil
	case enum.OutputFormatJSON:
		return &jsonRenderer{opts: opts}, nil
	case enum.OutputFormatCSV:
		return &csvRenderer{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// FormatValue renders v for display. Integers with decimals become decimal
// numbers without trailing zeros, so 1500000000000000000 with 18 decimals
// is "1.5".
func FormatValue(v codec.Value, f FieldFormat) string {
	if v.Type != codec.TypeUint || v.Int == nil || f.Decimals == 0 {
		return v.String()
	}
	return ScaleInt(v.Int, f.Decimals).String()
}

func ScaleInt(v *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -decimals)
}

func (o Options) format(name string) FieldFormat {
	return o.Formats[name]
}

// displayValue is FormatValue plus the unit suffix.
func (o Options) displayValue(name string, v codec.Value) string {
	f := o.format(name)
	s := FormatValue(v, f)
	if f.Unit != "" {
		s += " " + f.Unit
	}
	return s
}

func (o Options) columns(result *decoder.Result) []string {
	if len(o.Columns) > 0 {
		return o.Columns
	}
	for _, el := range result.Elements {
		if el == nil {
			continue
		}
		return lo.Map(el.Fields, func(f codec.FieldValue, _ int) string { return f.Name })
	}
	return nil
}

// elementErrors indexes Result.Errors by element index.
func elementErrors(result *decoder.Result) map[uint64]error {
	out := make(map[uint64]error, len(result.Errors))
	for _, e := range result.Errors {
		out[e.Index] = e
	}
	return out
}
