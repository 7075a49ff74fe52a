package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// SessionRepository stores session state as JSONB with a version column for
// compare-and-set writes and an expires_at column for retention.
type SessionRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewSessionRepository(db *sql.DB, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS intake_sessions (
	session_id TEXT PRIMARY KEY,
	state JSONB NOT NULL,
	version BIGINT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_intake_sessions_expires_at ON intake_sessions(expires_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT state, version
FROM intake_sessions
WHERE session_id = $1 AND expires_at > $2
`, sessionID, r.now())

	var raw []byte
	var version int64
	if err := row.Scan(&raw, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("session %s", sessionID))
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	state.EnsureMaps()
	state.Version = version
	return &state, nil
}

// Put inserts when state.Version is 0 (replacing an expired row) and
// otherwise updates only the row still at state.Version.
func (r *SessionRepository) Put(ctx context.Context, state *domain.SessionState) (int64, error) {
	next := *state
	next.Version = state.Version + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("marshal session state: %w", err)
	}
	now := r.now()
	expiresAt := now.Add(r.ttl)

	var res sql.Result
	if state.Version == 0 {
		res, err = r.db.ExecContext(ctx, `
INSERT INTO intake_sessions (session_id, state, version, expires_at, updated_at)
VALUES ($1, $2, 1, $3, $4)
ON CONFLICT (session_id) DO UPDATE
SET state = EXCLUDED.state, version = 1, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
WHERE intake_sessions.expires_at <= EXCLUDED.updated_at
`, state.SessionID, payload, expiresAt, now)
	} else {
		res, err = r.db.ExecContext(ctx, `
UPDATE intake_sessions
SET state = $2, version = version + 1, expires_at = $3, updated_at = $4
WHERE session_id = $1 AND version = $5 AND expires_at > $4
`, state.SessionID, payload, expiresAt, now, state.Version)
	}
	if err != nil {
		return 0, fmt.Errorf("write session state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write session rows affected: %w", err)
	}
	if affected == 0 {
		return 0, domain.WrapError(domain.ErrVersionConflict, "put session", fmt.Errorf("session %s at version %d", state.SessionID, state.Version))
	}
	return next.Version, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM intake_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", fmt.Errorf("session %s", sessionID))
	}
	return nil
}

// PurgeExpired deletes rows past their retention and reports how many.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM intake_sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return n, nil
}
