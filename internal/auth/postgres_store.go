package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists refresh sessions to a Postgres table, allowing
// multiple API replicas to share authentication state.
//
// Expected schema:
//
//	CREATE TABLE refresh_sessions (
//	    id         TEXT PRIMARY KEY,
//	    user_id    TEXT NOT NULL,
//	    token_hash TEXT NOT NULL UNIQUE,
//	    issued_at  TIMESTAMPTZ NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX refresh_sessions_user_id_idx ON refresh_sessions (user_id);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres session dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres session config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres session pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool, honoring the context deadline.
func (s *PostgresStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *PostgresStore) Save(ctx context.Context, session RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO refresh_sessions (id, user_id, token_hash, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    token_hash = EXCLUDED.token_hash,
    issued_at = EXCLUDED.issued_at,
    expires_at = EXCLUDED.expires_at
`, session.ID, session.UserID, session.TokenHash, session.IssuedAt.UTC(), session.ExpiresAt.UTC())
	return err
}

func (s *PostgresStore) FindByTokenHash(ctx context.Context, tokenHash string) (RefreshSession, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, issued_at, expires_at
FROM refresh_sessions
WHERE token_hash = $1
`, tokenHash)
	session := RefreshSession{TokenHash: tokenHash}
	if err := row.Scan(&session.ID, &session.UserID, &session.IssuedAt, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshSession{}, false, nil
		}
		return RefreshSession{}, false, err
	}
	return session, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ SessionStore = (*PostgresStore)(nil)
