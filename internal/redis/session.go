package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "presence:session:"
	closingKeyPrefix = "presence:closing:"
	scanBatch        = 100
)

// SessionStore keeps one JSON-encoded session per (guild, user) with a TTL.
type SessionStore struct {
	c *Client
}

func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{c: c}
}

func sessionKey(guildID, userID string) string {
	return fmt.Sprintf("%s%s:%s", sessionKeyPrefix, guildID, userID)
}

func closingKey(guildID, userID string) string {
	return fmt.Sprintf("%s%s:%s", closingKeyPrefix, guildID, userID)
}

// Set stores a session, replacing any previous one and resetting its TTL.
func (s *SessionStore) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.c.Set(ctx, sessionKey(session.GuildID, session.UserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Update rewrites an existing session and resets its TTL. It reports false,
// without writing, when the session is gone.
func (s *SessionStore) Update(ctx context.Context, session *models.Session, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := s.c.SetXX(ctx, sessionKey(session.GuildID, session.UserID), payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to update session: %w", err)
	}
	return ok, nil
}

// advanceRetries bounds optimistic retries when the key changes under WATCH.
const advanceRetries = 3

// Advance moves the flush pointer of the stored session to "to", provided it
// is still the session that started at startedAt. Other fields are taken from
// the stored copy, so a concurrent transfer is kept. It reports false when the
// session is gone or was replaced by a newer one.
func (s *SessionStore) Advance(ctx context.Context, guildID, userID string, startedAt, to time.Time, ttl time.Duration) (*models.Session, bool, error) {
	key := sessionKey(guildID, userID)
	var advanced *models.Session

	txf := func(tx *redis.Tx) error {
		advanced = nil
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var current models.Session
		if err := json.Unmarshal(payload, &current); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if !current.SessionStartTime.Equal(startedAt) {
			return nil
		}
		if to.After(current.JoinedAt) {
			current.JoinedAt = to
		}

		next, err := json.Marshal(&current)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		if err == nil {
			advanced = &current
		}
		return err
	}

	for i := 0; i < advanceRetries; i++ {
		err := s.c.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to advance session: %w", err)
		}
		return advanced, advanced != nil, nil
	}
	return nil, false, fmt.Errorf("failed to advance session: %w", redis.TxFailedErr)
}

// Get returns the stored session or common.ErrNotFound.
func (s *SessionStore) Get(ctx context.Context, guildID, userID string) (*models.Session, error) {
	payload, err := s.c.Get(ctx, sessionKey(guildID, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, guildID, userID string) error {
	if err := s.c.Del(ctx, sessionKey(guildID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List scans the sessions of one guild, or of every guild when guildID is
// empty. Entries that expire or fail to decode mid-scan are skipped.
func (s *SessionStore) List(ctx context.Context, guildID string) ([]*models.Session, error) {
	pattern := sessionKeyPrefix + "*"
	if guildID != "" {
		pattern = fmt.Sprintf("%s%s:*", sessionKeyPrefix, guildID)
	}

	var sessions []*models.Session
	iter := s.c.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		payload, err := s.c.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var session models.Session
		if err := json.Unmarshal(payload, &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sessions, nil
}

// TryClaim sets the closing marker only when absent. It reports whether the
// caller now holds the claim.
func (s *SessionStore) TryClaim(ctx context.Context, guildID, userID string, ttl time.Duration) (bool, error) {
	ok, err := s.c.SetNX(ctx, closingKey(guildID, userID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim session: %w", err)
	}
	return ok, nil
}

// Claim sets the closing marker unconditionally.
func (s *SessionStore) Claim(ctx context.Context, guildID, userID string, ttl time.Duration) error {
	if err := s.c.Set(ctx, closingKey(guildID, userID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to claim session: %w", err)
	}
	return nil
}

func (s *SessionStore) Release(ctx context.Context, guildID, userID string) error {
	if err := s.c.Del(ctx, closingKey(guildID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to release session claim: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of a stored session.
func (s *SessionStore) TTL(ctx context.Context, guildID, userID string) (time.Duration, error) {
	ttl, err := s.c.TTL(ctx, sessionKey(guildID, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get session TTL: %w", err)
	}
	if ttl < 0 {
		return 0, common.ErrNotFound
	}
	return ttl, nil
}
