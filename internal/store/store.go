// Package store persists finalized arbitration sessions and their audit
// trails.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/arbiter/internal/model"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = eris.New("store: not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	PropertyID string    `json:"property_id,omitempty"`
	Since      time.Time `json:"since,omitzero"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for arbitration sessions.
type Store interface {
	// SaveSession writes a finalized session and its audit trail. An empty
	// ID or CreatedAt is filled in.
	SaveSession(ctx context.Context, s *model.Session) error
	// GetSession returns a session with its full result.
	GetSession(ctx context.Context, id string) (*model.Session, error)
	// ListSessions returns session summaries (no result), newest first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	// ListAudit returns a session's audit entries in decision order,
	// restricted to one field when field is non-empty.
	ListAudit(ctx context.Context, sessionID, field string) ([]model.AuditEntry, error)
	// PruneSessions deletes sessions created before cutoff.
	PruneSessions(ctx context.Context, cutoff time.Time) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// NewSession wraps a finalized result for persistence.
func NewSession(propertyID string, res *model.Result) *model.Session {
	s := &model.Session{
		ID:         uuid.New().String(),
		PropertyID: propertyID,
		Result:     res,
		CreatedAt:  time.Now().UTC(),
	}
	if res != nil {
		s.FieldCount = len(res.Fields)
	}
	return s
}

const defaultListLimit = 100

// auditColumns is the column order of audit_entries rows.
var auditColumns = []string{
	"session_id", "seq", "field", "action", "source", "tier",
	"value", "previous_value", "previous_source", "reason", "created_at",
}

func prepareSession(s *model.Session) ([]byte, error) {
	if s == nil || s.Result == nil {
		return nil, eris.New("store: session has no result")
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.FieldCount = len(s.Result.Fields)

	data, err := json.Marshal(s.Result)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal result")
	}
	return data, nil
}

// auditRows flattens a session's audit trail into audit_entries rows.
func auditRows(s *model.Session) ([][]any, error) {
	rows := make([][]any, 0, len(s.Result.AuditTrail))
	for i, e := range s.Result.AuditTrail {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal audit value %d", i)
		}
		var prev *string
		if !e.PreviousValue.IsNull() {
			data, err := json.Marshal(e.PreviousValue)
			if err != nil {
				return nil, eris.Wrapf(err, "store: marshal audit previous value %d", i)
			}
			p := string(data)
			prev = &p
		}
		rows = append(rows, []any{
			s.ID, i, e.Field, string(e.Action), e.Source, int(e.Tier),
			string(value), prev, e.PreviousSource, e.Reason, e.Timestamp.UTC(),
		})
	}
	return rows, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// timeLayout is a fixed-width UTC layout, so stored timestamps sort
// lexically in SQLite.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// toTime converts a scanned timestamp: time.Time from Postgres, text from
// SQLite.
func toTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, eris.Errorf("store: unsupported timestamp type %T", src)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "store: parse timestamp %q", s)
	}
	return t.UTC(), nil
}

func scanAudit(row scannable) (model.AuditEntry, error) {
	var (
		e       model.AuditEntry
		action  string
		tier    int
		value   string
		prev    *string
		prevSrc *string
		ts      any
	)
	if err := row.Scan(&e.Field, &action, &e.Source, &tier, &value, &prev, &prevSrc, &e.Reason, &ts); err != nil {
		return e, eris.Wrap(err, "store: scan audit entry")
	}
	var err error
	if e.Timestamp, err = toTime(ts); err != nil {
		return e, err
	}
	e.Action = model.Action(action)
	e.Tier = model.Tier(tier)
	if err := json.Unmarshal([]byte(value), &e.Value); err != nil {
		return e, eris.Wrap(err, "store: unmarshal audit value")
	}
	if prev != nil {
		if err := json.Unmarshal([]byte(*prev), &e.PreviousValue); err != nil {
			return e, eris.Wrap(err, "store: unmarshal audit previous value")
		}
	}
	if prevSrc != nil {
		e.PreviousSource = *prevSrc
	}
	return e, nil
}
