package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeFields reads a source response: a JSON object of field values,
// optionally enveloped as {"fields": {...}}. Numbers are kept as
// json.Number so integer values survive unchanged.
func DecodeFields(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "json: decode fields")
	}
	if len(raw) == 1 {
		if inner, ok := raw["fields"].(map[string]any); ok {
			return inner, nil
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
