package render

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/fystack/storage-inspector/internal/decoder"
)

type csvRenderer struct {
	opts Options
}

// Render writes index, one column per field and a trailing error column.
// Values are scaled by their decimals; units are left to the header.
func (r *csvRenderer) Render(w io.Writer, result *decoder.Result) error {
	cols := r.opts.columns(result)
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(cols)+2)
	header = append(header, "index")
	for _, c := range cols {
		if unit := r.opts.format(c).Unit; unit != "" {
			c += " (" + unit + ")"
		}
		header = append(header, c)
	}
	header = append(header, "error")
	if err := cw.Write(header); err != nil {
		return err
	}

	failed := elementErrors(result)
	for i, el := range result.Elements {
		index := result.From + uint64(i)
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatUint(index, 10))
		for _, c := range cols {
			cell := ""
			if el != nil {
				if v, ok := el.Get(c); ok {
					cell = FormatValue(v, r.opts.format(c))
				}
			}
			row = append(row, cell)
		}
		errCell := ""
		if el == nil {
			if err, ok := failed[index]; ok {
				errCell = err.Error()
			}
		}
		row = append(row, errCell)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
