package render

import (
	"encoding/json"
	"io"
	"time"

	"github.com/fystack/storage-inspector/internal/decoder"
	"github.com/fystack/storage-inspector/internal/events"
)

type jsonRenderer struct {
	opts Options
}

// jsonDocument is the published snapshot plus display values for fields
// that carry decimals or a unit.
type jsonDocument struct {
	events.SnapshotEvent
	Display []map[string]string `json:"display,omitempty"`
}

func (r *jsonRenderer) Render(w io.Writer, result *decoder.Result) error {
	doc := jsonDocument{SnapshotEvent: events.NewSnapshotEvent(r.opts.Contract, result, time.Now())}
	if len(r.opts.Formats) > 0 {
		doc.Display = make([]map[string]string, len(result.Elements))
		for i, el := range result.Elements {
			if el == nil {
				continue
			}
			row := make(map[string]string, len(el.Fields))
			for _, f := range el.Fields {
				row[f.Name] = r.opts.displayValue(f.Name, f.Value)
			}
			doc.Display[i] = row
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
