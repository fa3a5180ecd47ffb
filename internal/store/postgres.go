package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/arbiter/internal/db"
	"github.com/sells-group/arbiter/internal/model"
)

// PostgresStore implements Store using pgxpool. Audit trails are bulk
// written with COPY.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(10), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	field_count INTEGER NOT NULL DEFAULT 0,
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_entries (
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	field           TEXT NOT NULL,
	action          TEXT NOT NULL,
	source          TEXT NOT NULL,
	tier            SMALLINT NOT NULL,
	value           JSONB NOT NULL,
	previous_value  JSONB,
	previous_source TEXT,
	reason          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_sessions_property ON sessions(property_id);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_entries_field ON audit_entries(session_id, field);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.Session) error {
	resultJSON, err := prepareSession(sess)
	if err != nil {
		return err
	}
	rows, err := auditRows(sess)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id, property_id, field_count, result, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.PropertyID, sess.FieldCount, resultJSON, sess.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert session %s", sess.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "audit_entries", auditColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: write audit for %s", sess.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit session")
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	var resultJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, property_id, field_count, result, created_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.PropertyID, &sess.FieldCount, &resultJSON, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	sess.CreatedAt = sess.CreatedAt.UTC()

	sess.Result = &model.Result{}
	if err := json.Unmarshal(resultJSON, sess.Result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, property_id, field_count, created_at FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.PropertyID != "" {
		query += fmt.Sprintf(` AND property_id = $%d`, argIdx)
		args = append(args, filter.PropertyID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.PropertyID, &sess.FieldCount, &sess.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sess.CreatedAt = sess.CreatedAt.UTC()
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) ListAudit(ctx context.Context, sessionID, field string) ([]model.AuditEntry, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: check session")
	}
	if !exists {
		return nil, eris.Wrapf(ErrNotFound, "session %s", sessionID)
	}

	query := `SELECT field, action, source, tier, value::text, previous_value::text, previous_source, reason, created_at
		FROM audit_entries WHERE session_id = $1`
	args := []any{sessionID}
	if field != "" {
		query += ` AND field = $2`
		args = append(args, field)
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

func (s *PostgresStore) PruneSessions(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune sessions")
	}
	return int(tag.RowsAffected()), nil
}
