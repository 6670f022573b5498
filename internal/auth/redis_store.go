package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionKeyPrefix = "session:"
	redisUserKeyPrefix    = "user_sessions:"
)

// RedisStore keeps refresh sessions as Redis hashes keyed by token digest,
// with native TTL expiry. A per-user set indexes sessions for bulk
// revocation; PurgeExpired only has to prune index members whose hash Redis
// already expired.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewRedisStoreWithClient wraps an existing client; tests use this with
// miniredis.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, session RefreshSession) error {
	key := redisSessionKeyPrefix + session.TokenHash
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"id", session.ID,
		"user_id", session.UserID,
		"issued_at", session.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at", session.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.ExpireAt(ctx, key, session.ExpiresAt)
	pipe.SAdd(ctx, redisUserKeyPrefix+session.UserID, session.TokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save redis session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByTokenHash(ctx context.Context, tokenHash string) (RefreshSession, bool, error) {
	fields, err := s.client.HGetAll(ctx, redisSessionKeyPrefix+tokenHash).Result()
	if err != nil {
		return RefreshSession{}, false, fmt.Errorf("load redis session: %w", err)
	}
	if len(fields) == 0 {
		return RefreshSession{}, false, nil
	}
	session := RefreshSession{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		TokenHash: tokenHash,
	}
	if session.IssuedAt, err = time.Parse(time.RFC3339Nano, fields["issued_at"]); err != nil {
		return RefreshSession{}, false, fmt.Errorf("parse session issued_at: %w", err)
	}
	if session.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return RefreshSession{}, false, fmt.Errorf("parse session expires_at: %w", err)
	}
	return session, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	// Sessions are keyed by token hash, so deletion by ID scans the user
	// index sets for the matching entry.
	iter := s.client.Scan(ctx, 0, redisUserKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		hashes, err := s.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return fmt.Errorf("list redis sessions: %w", err)
		}
		for _, hash := range hashes {
			sessionID, err := s.client.HGet(ctx, redisSessionKeyPrefix+hash, "id").Result()
			if err == redis.Nil {
				continue
			} else if err != nil {
				return fmt.Errorf("load redis session: %w", err)
			}
			if sessionID != id {
				continue
			}
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, redisSessionKeyPrefix+hash)
			pipe.SRem(ctx, userKey, hash)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("delete redis session: %w", err)
			}
			return nil
		}
	}
	return iter.Err()
}

func (s *RedisStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	userKey := redisUserKeyPrefix + userID
	hashes, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list redis sessions: %w", err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	pipe := s.client.TxPipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, redisSessionKeyPrefix+hash)
	}
	pipe.Del(ctx, userKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete redis sessions: %w", err)
	}
	return len(hashes), nil
}

func (s *RedisStore) PurgeExpired(ctx context.Context, _ time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, redisUserKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		hashes, err := s.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return removed, fmt.Errorf("list redis sessions: %w", err)
		}
		for _, hash := range hashes {
			exists, err := s.client.Exists(ctx, redisSessionKeyPrefix+hash).Result()
			if err != nil {
				return removed, fmt.Errorf("check redis session: %w", err)
			}
			if exists == 0 {
				if err := s.client.SRem(ctx, userKey, hash).Err(); err != nil {
					return removed, fmt.Errorf("prune redis session index: %w", err)
				}
				removed++
			}
		}
	}
	return removed, iter.Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ SessionStore = (*RedisStore)(nil)
