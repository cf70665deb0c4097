package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// SessionStore keeps issued session tokens in Redis so every API instance
// sees the same sessions.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore constructs SessionStore.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

type sessionRecord struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func sessionTokenKey(token string) string {
	return "auth:session:" + token
}

// Create issues a fresh token for user.
func (s *SessionStore) Create(ctx context.Context, user *User) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(sessionRecord{UserID: user.ID, Username: user.Username})
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, sessionTokenKey(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store session: %w", err)
	}
	return token, nil
}

// Resolve maps a token to its actor and slides the expiry.
func (s *SessionStore) Resolve(ctx context.Context, token string) (shared.Actor, error) {
	raw, err := s.rdb.Get(ctx, sessionTokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.Actor{}, shared.ErrUnauthorized
		}
		return shared.Actor{}, fmt.Errorf("auth: read session: %w", err)
	}
	var record sessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return shared.Actor{}, fmt.Errorf("auth: corrupt session: %w", err)
	}
	s.rdb.Expire(ctx, sessionTokenKey(token), s.ttl)
	return shared.Actor{ID: record.UserID, Username: record.Username, Session: token}, nil
}

// Destroy invalidates a token.
func (s *SessionStore) Destroy(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, sessionTokenKey(token)).Err()
}

// TTL reports the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}
