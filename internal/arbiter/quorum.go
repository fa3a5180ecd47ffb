package arbiter

import (
	"slices"
	"sort"

	"github.com/sells-group/arbiter/internal/model"
)

// DefaultMinQuorum is the number of agreeing tier-4 sources needed to settle
// a disagreement.
const DefaultMinQuorum = 2

// bucket groups the sources that reported one distinct value.
type bucket struct {
	value   model.Value
	sources []string
}

// ApplyQuorum settles disagreeing tier-4 fields by majority vote. It rewrites
// fields in place and returns one QuorumField per field it settled, in field
// key order. Fields where no value reaches minQuorum are left unchanged.
func ApplyQuorum(fields map[string]model.FieldValue, minQuorum int) []model.QuorumField {
	if minQuorum <= 0 {
		minQuorum = DefaultMinQuorum
	}

	resolved := []model.QuorumField{}
	for _, key := range sortedKeys(fields) {
		f := fields[key]
		if f.Tier != model.TierLLM || len(f.ConflictValues) == 0 {
			continue
		}

		buckets := tally(f)
		winner := buckets[0]
		for _, b := range buckets[1:] {
			if len(b.sources) > len(winner.sources) {
				winner = b
			}
		}

		count := len(winner.sources)
		if count < minQuorum {
			continue
		}

		f.Value = winner.value
		f.LLMSources = append([]string(nil), winner.sources...)
		f.Confidence = model.ConfidenceMedium
		if count >= 3 {
			f.Confidence = model.ConfidenceHigh
		}
		f.HasConflict = len(buckets) > 1
		fields[key] = f

		resolved = append(resolved, model.QuorumField{
			Field:       key,
			Value:       winner.value,
			Sources:     append([]string(nil), winner.sources...),
			QuorumCount: count,
		})
	}
	return resolved
}

// tally builds insertion-ordered buckets: the accepted value with its
// corroborating sources first, then each disagreeing report.
func tally(f model.FieldValue) []*bucket {
	buckets := []*bucket{{value: f.Value, sources: distinct(f.Corroborators())}}
	for _, cv := range f.ConflictValues {
		var hit *bucket
		for _, b := range buckets {
			if b.value.Equal(cv.Value) {
				hit = b
				break
			}
		}
		if hit == nil {
			hit = &bucket{value: cv.Value}
			buckets = append(buckets, hit)
		}
		if !slices.Contains(hit.sources, cv.Source) {
			hit.sources = append(hit.sources, cv.Source)
		}
	}
	return buckets
}

// distinct drops repeated source names, keeping first occurrences in order.
// A source gets one vote per value however often it reported it.
func distinct(sources []string) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(fields map[string]model.FieldValue) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
