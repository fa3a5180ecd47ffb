// Package arbiter decides, per field, which source's value is authoritative.
//
// Candidates are evaluated against the currently accepted value by tier:
// a more trusted source always overrides, a less trusted source is always
// skipped, and equal-tier disagreements are either kept first-writer-wins
// (tiers 1-3) or collected for a later quorum vote (tier 4). Every
// evaluation yields exactly one audit entry.
package arbiter

import (
	"fmt"
	"slices"
	"time"

	"github.com/sells-group/arbiter/internal/model"
)

// Audit reasons. Downstream audit tooling matches on these strings.
const (
	ReasonFieldEmpty       = "Field was empty"
	ReasonEmptyValue       = "Empty value - nothing to arbitrate"
	ReasonLLMConflict      = "LLM conflict - added to conflict list"
	ReasonSameTierConflict = "Same tier conflict - keeping first value"
	ReasonLLMAgreement     = "LLM agreement - added corroborating source"
	ReasonSameTierAgree    = "Same tier agreement - value already set"
	ReasonValidationFailed = "Validation failed"
)

// ReasonOverride is the audit reason for a higher tier replacing a lower one.
func ReasonOverride(newTier, oldTier model.Tier) string {
	return fmt.Sprintf("Higher tier (%d) overrides lower tier (%d)", newTier, oldTier)
}

// ReasonLowerTier is the audit reason for a lower tier losing to a higher one.
func ReasonLowerTier(newTier, oldTier model.Tier) string {
	return fmt.Sprintf("Lower tier (%d) cannot override higher tier (%d)", newTier, oldTier)
}

// Candidate is one (field, value, source) triple under evaluation.
type Candidate struct {
	Field  string
	Value  model.Value
	Source string
	Tier   model.Tier
}

// Decision is the outcome of arbitrating one candidate.
type Decision struct {
	Action model.Action
	// Field is the field state after the decision. It is nil when the
	// existing state, if any, is unchanged.
	Field *model.FieldValue
	Audit model.AuditEntry
}

// Arbitrate evaluates c against existing, the field's currently accepted
// value (nil if none). It does not modify existing.
func Arbitrate(existing *model.FieldValue, c Candidate, now time.Time) Decision {
	entry := model.AuditEntry{
		Field:     c.Field,
		Source:    c.Source,
		Tier:      c.Tier,
		Value:     c.Value,
		Timestamp: now,
	}
	if existing != nil {
		entry.PreviousValue = existing.Value
		entry.PreviousSource = existing.Source
	}

	// 1. Never accept an empty value.
	if c.Value.IsEmpty() {
		entry.Action = model.ActionSkip
		entry.Reason = ReasonEmptyValue
		return Decision{Action: model.ActionSkip, Audit: entry}
	}

	// 2. First value for the field.
	if existing == nil {
		fv := &model.FieldValue{
			Value:      c.Value,
			Source:     c.Source,
			Tier:       c.Tier,
			Confidence: model.ConfidenceForTier(c.Tier),
			Timestamp:  now,
		}
		if c.Tier == model.TierLLM {
			fv.LLMSources = []string{c.Source}
		}
		entry.Action = model.ActionSet
		entry.Reason = ReasonFieldEmpty
		return Decision{Action: model.ActionSet, Field: fv, Audit: entry}
	}

	differs := !existing.Value.Equal(c.Value)

	switch {
	// 3. Strictly more trusted: replace outright.
	case c.Tier < existing.Tier:
		conf := model.ConfidenceMedium
		if c.Tier <= model.TierAPI {
			conf = model.ConfidenceHigh
		}
		fv := &model.FieldValue{
			Value:      c.Value,
			Source:     c.Source,
			Tier:       c.Tier,
			Confidence: conf,
			Timestamp:  now,
		}
		if differs {
			fv.HasConflict = true
			fv.ConflictValues = []model.SourceValue{{Source: existing.Source, Value: existing.Value}}
		}
		entry.Action = model.ActionOverride
		entry.Reason = ReasonOverride(c.Tier, existing.Tier)
		return Decision{Action: model.ActionOverride, Field: fv, Audit: entry}

	// 4. Same tier, disagreeing.
	case c.Tier == existing.Tier && differs:
		if c.Tier == model.TierLLM {
			fv := existing.Clone()
			fv.LLMSources = append(llmSources(existing), c.Source)
			fv.HasConflict = true
			fv.ConflictValues = append(fv.ConflictValues, model.SourceValue{Source: c.Source, Value: c.Value})
			entry.Action = model.ActionConflict
			entry.Reason = ReasonLLMConflict
			return Decision{Action: model.ActionConflict, Field: &fv, Audit: entry}
		}
		entry.Action = model.ActionSkip
		entry.Reason = ReasonSameTierConflict
		return Decision{Action: model.ActionSkip, Audit: entry}

	// 5. Same tier 4, agreeing: record the corroboration once per source.
	case c.Tier == existing.Tier && c.Tier == model.TierLLM && !slices.Contains(llmSources(existing), c.Source):
		fv := existing.Clone()
		fv.LLMSources = append(llmSources(existing), c.Source)
		entry.Action = model.ActionSkip
		entry.Reason = ReasonLLMAgreement
		return Decision{Action: model.ActionSkip, Field: &fv, Audit: entry}

	// Same tier 1-3, agreeing: nothing changes.
	case c.Tier == existing.Tier:
		entry.Action = model.ActionSkip
		entry.Reason = ReasonSameTierAgree
		return Decision{Action: model.ActionSkip, Audit: entry}
	}

	// 6. Strictly less trusted.
	entry.Action = model.ActionSkip
	entry.Reason = ReasonLowerTier(c.Tier, existing.Tier)
	return Decision{Action: model.ActionSkip, Audit: entry}
}

func llmSources(f *model.FieldValue) []string {
	if len(f.LLMSources) == 0 {
		return []string{f.Source}
	}
	return slices.Clone(f.LLMSources)
}
