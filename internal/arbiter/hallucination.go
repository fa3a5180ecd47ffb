package arbiter

import "github.com/sells-group/arbiter/internal/model"

// DetectSingleSource flags tier-4 fields whose value rests on exactly one
// source with no recorded disagreement.
func DetectSingleSource(fields map[string]model.FieldValue) []model.SingleSourceWarning {
	warnings := []model.SingleSourceWarning{}
	for _, key := range sortedKeys(fields) {
		f := fields[key]
		if f.Tier != model.TierLLM {
			continue
		}
		sources := distinct(f.LLMSources)
		if len(sources) == 0 {
			sources = []string{f.Source}
		}
		if len(sources) == 1 && len(f.ConflictValues) == 0 {
			warnings = append(warnings, model.SingleSourceWarning{Field: key, Source: sources[0]})
		}
	}
	return warnings
}
