package model

import (
	"slices"
	"time"
)

// ValidationStatus records the post-hoc validation verdict on a field.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationWarning ValidationStatus = "warning"
)

// SourceValue pairs a value with the source that reported it.
type SourceValue struct {
	Source string `json:"source"`
	Value  Value  `json:"value"`
}

// FieldValue is the currently accepted value for one field key.
type FieldValue struct {
	Value             Value            `json:"value"`
	Source            string           `json:"source"`
	Tier              Tier             `json:"tier"`
	Confidence        Confidence       `json:"confidence"`
	Timestamp         time.Time        `json:"timestamp"`
	LLMSources        []string         `json:"llm_sources,omitempty"`
	HasConflict       bool             `json:"has_conflict,omitempty"`
	ConflictValues    []SourceValue    `json:"conflict_values,omitempty"`
	ValidationStatus  ValidationStatus `json:"validation_status,omitempty"`
	ValidationMessage string           `json:"validation_message,omitempty"`
}

// Clone returns a copy of f that shares no slices with it.
func (f FieldValue) Clone() FieldValue {
	f.LLMSources = slices.Clone(f.LLMSources)
	f.ConflictValues = slices.Clone(f.ConflictValues)
	return f
}

// Corroborators returns the tier-4 sources that reported the field's current
// value: the contributing sources minus those recorded as disagreeing.
func (f FieldValue) Corroborators() []string {
	if len(f.LLMSources) == 0 {
		return []string{f.Source}
	}
	out := slices.Clone(f.LLMSources)
	for _, cv := range f.ConflictValues {
		if i := slices.Index(out, cv.Source); i >= 0 {
			out = slices.Delete(out, i, i+1)
		}
	}
	return out
}
