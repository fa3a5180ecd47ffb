// Package fetcher provides the property data sources an enrichment run
// pulls field values from.
package fetcher

import (
	"context"
	"maps"

	"github.com/sells-group/arbiter/internal/model"
)

// Source reports field values for a property. The returned map is keyed by
// field name; values may be bare JSON-like data or {value, source,
// confidence} wrappers.
type Source interface {
	// Name identifies the source. It is classified into a tier by name.
	Name() string

	// Fetch returns the fields the source knows for p.
	Fetch(ctx context.Context, p model.Property) (map[string]any, error)
}

// Static is a Source that returns a fixed set of fields, used for batches
// supplied up front in a request file or API call.
type Static struct {
	SourceName string
	Fields     map[string]any
}

// Name implements Source.
func (s Static) Name() string { return s.SourceName }

// Fetch implements Source. The map is copied so callers cannot alias it.
func (s Static) Fetch(ctx context.Context, _ model.Property) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return maps.Clone(s.Fields), nil
}

// FromBatches wraps request batches as static sources, preserving order.
func FromBatches(batches []model.SourceBatch) []Source {
	out := make([]Source, 0, len(batches))
	for _, b := range batches {
		out = append(out, Static{SourceName: b.Source, Fields: b.Fields})
	}
	return out
}
