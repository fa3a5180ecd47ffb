package model

import "time"

// Action is the outcome of evaluating one candidate value.
type Action string

const (
	ActionSet            Action = "set"
	ActionSkip           Action = "skip"
	ActionOverride       Action = "override"
	ActionConflict       Action = "conflict"
	ActionValidationFail Action = "validation_fail"
)

// AuditEntry is an immutable record of one arbitration decision. It is fully
// formed when created and never modified afterwards.
type AuditEntry struct {
	Field          string    `json:"field"`
	Action         Action    `json:"action"`
	Source         string    `json:"source"`
	Tier           Tier      `json:"tier"`
	Value          Value     `json:"value"`
	PreviousValue  Value     `json:"previous_value,omitzero"`
	PreviousSource string    `json:"previous_source,omitempty"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}
