package model

import "time"

// Property identifies the real-estate listing an enrichment session covers.
type Property struct {
	ID        string `json:"id" yaml:"id"`
	Address   string `json:"address,omitempty" yaml:"address,omitempty"`
	MLSNumber string `json:"mls_number,omitempty" yaml:"mls_number,omitempty"`
}

// SourceBatch is the set of raw field values one source reported.
type SourceBatch struct {
	Source string         `json:"source" yaml:"source" validate:"required"`
	Fields map[string]any `json:"fields" yaml:"fields" validate:"required"`
}

// Request is an arbitration request: the batches to feed, in order.
type Request struct {
	PropertyID string        `json:"property_id" yaml:"property_id" validate:"required"`
	Address    string        `json:"address,omitempty" yaml:"address,omitempty"`
	MLSNumber  string        `json:"mls_number,omitempty" yaml:"mls_number,omitempty"`
	MinQuorum  int           `json:"min_quorum,omitempty" yaml:"min_quorum,omitempty" validate:"gte=0"`
	Batches    []SourceBatch `json:"batches" yaml:"batches" validate:"dive"`
}

// Property returns the listing the request covers.
func (r Request) Property() Property {
	return Property{ID: r.PropertyID, Address: r.Address, MLSNumber: r.MLSNumber}
}

// Session is a finalized, persisted arbitration session.
type Session struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	FieldCount int       `json:"field_count"`
	Result     *Result   `json:"result,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
