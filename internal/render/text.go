package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fystack/storage-inspector/internal/decoder"
)

type textRenderer struct {
	opts Options
}

// Render writes a header line and one line per element:
//
//	locks[0]: user: 0x7099...79C8, startTime: 1700000000, amount: 1.5 RNT
func (r *textRenderer) Render(w io.Writer, result *decoder.Result) error {
	block := "latest"
	if result.Block != nil {
		block = result.Block.String()
	}
	if _, err := fmt.Fprintf(w, "%s length: %s (block %s)\n", result.Array, result.Length, block); err != nil {
		return err
	}

	failed := elementErrors(result)
	for i, el := range result.Elements {
		index := result.From + uint64(i)
		var line string
		if el == nil {
			line = fmt.Sprintf("%s[%d]: error: %v", result.Array, index, failed[index])
		} else {
			parts := make([]string, len(el.Fields))
			for j, f := range el.Fields {
				parts[j] = f.Name + ": " + r.opts.displayValue(f.Name, f.Value)
			}
			line = fmt.Sprintf("%s[%d]: %s", result.Array, index, strings.Join(parts, ", "))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
