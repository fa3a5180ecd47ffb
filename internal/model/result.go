package model

// ConflictValue is one disagreeing report recorded at the session level.
type ConflictValue struct {
	Source string `json:"source"`
	Value  Value  `json:"value"`
	Tier   Tier   `json:"tier"`
}

// FieldConflict collects every disagreeing report for one field.
type FieldConflict struct {
	Field  string          `json:"field"`
	Values []ConflictValue `json:"values"`
}

// ValidationFailure records a candidate rejected before arbitration.
type ValidationFailure struct {
	Field  string `json:"field"`
	Value  Value  `json:"value"`
	Reason string `json:"reason"`
}

// QuorumField records a tier-4 field settled by majority vote.
type QuorumField struct {
	Field       string   `json:"field"`
	Value       Value    `json:"value"`
	Sources     []string `json:"sources"`
	QuorumCount int      `json:"quorum_count"`
}

// SingleSourceWarning flags a tier-4 value backed by a single source.
type SingleSourceWarning struct {
	Field  string `json:"field"`
	Source string `json:"source"`
}

// Result is the terminal snapshot of an arbitration session.
type Result struct {
	Fields               map[string]FieldValue `json:"fields"`
	Conflicts            []FieldConflict       `json:"conflicts"`
	AuditTrail           []AuditEntry          `json:"audit_trail"`
	ValidationFailures   []ValidationFailure   `json:"validation_failures"`
	LLMQuorumFields      []QuorumField         `json:"llm_quorum_fields"`
	SingleSourceWarnings []SingleSourceWarning `json:"single_source_warnings"`
}
