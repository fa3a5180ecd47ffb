package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/arbiter/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	field_count INTEGER NOT NULL DEFAULT 0,
	result      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_entries (
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	field           TEXT NOT NULL,
	action          TEXT NOT NULL,
	source          TEXT NOT NULL,
	tier            INTEGER NOT NULL,
	value           TEXT NOT NULL,
	previous_value  TEXT,
	previous_source TEXT,
	reason          TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_sessions_property ON sessions(property_id);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_entries_field ON audit_entries(session_id, field);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	resultJSON, err := prepareSession(sess)
	if err != nil {
		return err
	}
	rows, err := auditRows(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, property_id, field_count, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.PropertyID, sess.FieldCount, string(resultJSON), formatTime(sess.CreatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert session %s", sess.ID)
	}

	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO audit_entries (`+strings.Join(auditColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare audit insert")
		}
		defer stmt.Close() //nolint:errcheck
		for _, r := range rows {
			r[len(r)-1] = formatTime(r[len(r)-1].(time.Time))
			if _, err := stmt.ExecContext(ctx, r...); err != nil {
				return eris.Wrapf(err, "sqlite: insert audit entry for %s", sess.ID)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit session")
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, field_count, result, created_at FROM sessions WHERE id = ?`, id)

	var sess model.Session
	var resultJSON, created string
	err := row.Scan(&sess.ID, &sess.PropertyID, &sess.FieldCount, &resultJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session")
	}
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	sess.Result = &model.Result{}
	if err := json.Unmarshal([]byte(resultJSON), sess.Result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, property_id, field_count, created_at FROM sessions WHERE 1=1`
	var args []any

	if filter.PropertyID != "" {
		query += ` AND property_id = ?`
		args = append(args, filter.PropertyID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(filter.Since))
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	sessions := []model.Session{}
	for rows.Next() {
		var sess model.Session
		var created string
		if err := rows.Scan(&sess.ID, &sess.PropertyID, &sess.FieldCount, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		if sess.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, sessionID, field string) ([]model.AuditEntry, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: check session")
	}

	query := `SELECT field, action, source, tier, value, previous_value, previous_source, reason, created_at
		FROM audit_entries WHERE session_id = ?`
	args := []any{sessionID}
	if field != "" {
		query += ` AND field = ?`
		args = append(args, field)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close() //nolint:errcheck

	entries := []model.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

// PruneSessions deletes old sessions. Foreign keys are off per connection in
// SQLite, so audit rows are removed explicitly in the same transaction.
func (s *SQLiteStore) PruneSessions(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	ts := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE session_id IN (SELECT id FROM sessions WHERE created_at < ?)`, ts); err != nil {
		return 0, eris.Wrap(err, "sqlite: prune audit entries")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, ts)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), eris.Wrap(tx.Commit(), "sqlite: commit prune")
}
