package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrSessionRevoked marks a refresh token whose signature checks out but
// whose session no longer exists in the store: logged out, rotated away, or
// expired.
var ErrSessionRevoked = errors.New("session revoked")

// RefreshSession is one live login. A user may hold any number of them at
// once, one per device. Only the SHA-256 digest of the refresh token is
// stored.
type RefreshSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"tokenHash"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s RefreshSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore persists refresh sessions. Implementations: MemoryStore,
// PostgresStore, RedisStore.
type SessionStore interface {
	Save(ctx context.Context, session RefreshSession) error
	FindByTokenHash(ctx context.Context, tokenHash string) (RefreshSession, bool, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionManager ties the token service to the session store. Issuing a pair
// records a session keyed by the refresh token's digest; refreshing rotates
// the session so a replayed old token dies with it.
type SessionManager struct {
	tokens *TokenService
	store  SessionStore
	now    func() time.Time
}

func NewSessionManager(tokens *TokenService, store SessionStore) *SessionManager {
	return &SessionManager{tokens: tokens, store: store, now: time.Now}
}

func (m *SessionManager) AccessTTL() time.Duration  { return m.tokens.AccessTTL() }
func (m *SessionManager) RefreshTTL() time.Duration { return m.tokens.RefreshTTL() }

// Authenticate resolves a bearer access token to its user ID.
func (m *SessionManager) Authenticate(token string) (string, error) {
	return m.tokens.VerifyAccessToken(token)
}

// Create opens a new session for the user and returns its token pair.
// Existing sessions for the same user are left alone.
func (m *SessionManager) Create(ctx context.Context, userID string) (TokenPair, error) {
	access, accessExpiry, err := m.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExpiry, err := m.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}

	id, err := generateSessionID()
	if err != nil {
		return TokenPair{}, err
	}
	session := RefreshSession{
		ID:        id,
		UserID:    userID,
		TokenHash: hashToken(refresh),
		IssuedAt:  m.now().UTC(),
		ExpiresAt: refreshExpiry,
	}
	if err := m.store.Save(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("save session: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// Refresh exchanges a live refresh token for a fresh pair. The presented
// session is deleted and a new one inserted, so the old token cannot be
// replayed. Other sessions of the same user are untouched.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := m.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	session, ok, err := m.store.FindByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return TokenPair{}, fmt.Errorf("look up session: %w", err)
	}
	if !ok || session.UserID != userID {
		return TokenPair{}, ErrSessionRevoked
	}
	if session.Expired(m.now().UTC()) {
		_ = m.store.Delete(ctx, session.ID)
		return TokenPair{}, ErrSessionRevoked
	}

	if err := m.store.Delete(ctx, session.ID); err != nil {
		return TokenPair{}, fmt.Errorf("rotate session: %w", err)
	}
	return m.Create(ctx, userID)
}

// RevokeAll ends every session the user holds, across all devices.
func (m *SessionManager) RevokeAll(ctx context.Context, userID string) error {
	if _, err := m.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// PurgeExpired drops sessions past their expiry and reports how many went.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int, error) {
	return m.store.PurgeExpired(ctx, m.now().UTC())
}

// Ping proxies the store health check.
func (m *SessionManager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func generateSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
