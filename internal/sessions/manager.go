// Package sessions owns the lifecycle of ephemeral presence sessions. It
// never persists accrual; callers choose accrual semantics around a close.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
)

// closingClaimTTL bounds how long a crashed closer can hide a session from
// the reconciler.
const closingClaimTTL = 30 * time.Second

// Store is the key-value session cache.
type Store interface {
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Update(ctx context.Context, session *models.Session, ttl time.Duration) (bool, error)
	Advance(ctx context.Context, guildID, userID string, startedAt, to time.Time, ttl time.Duration) (*models.Session, bool, error)
	Get(ctx context.Context, guildID, userID string) (*models.Session, error)
	Delete(ctx context.Context, guildID, userID string) error
	List(ctx context.Context, guildID string) ([]*models.Session, error)
	TryClaim(ctx context.Context, guildID, userID string, ttl time.Duration) (bool, error)
	Claim(ctx context.Context, guildID, userID string, ttl time.Duration) error
	Release(ctx context.Context, guildID, userID string) error
}

// SettingsSource supplies the per-guild session TTL.
type SettingsSource interface {
	Settings(ctx context.Context, guildID string) models.GuildSettings
}

// Manager treats store failures as "no session" or a no-op, logging them.
type Manager struct {
	store    Store
	settings SettingsSource
	now      func() time.Time
	log      logging.Logger
}

func NewManager(store Store, settings SettingsSource, now func() time.Time, log logging.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:    store,
		settings: settings,
		now:      now,
		log:      log.With("component", "sessions"),
	}
}

// Open starts a session at now, overwriting any existing one. It returns nil
// when the store write fails.
func (m *Manager) Open(ctx context.Context, userID, guildID, roomID, groupID string) *models.Session {
	now := m.now().UTC()
	s := &models.Session{
		UserID:           userID,
		GuildID:          guildID,
		RoomID:           roomID,
		GroupID:          groupID,
		JoinedAt:         now,
		SessionStartTime: now,
	}
	if !m.write(ctx, s, "open") {
		return nil
	}
	m.log.Debug(ctx, "session opened", "user_id", userID, "guild_id", guildID, "room_id", roomID)
	return s
}

// Read returns the stored session, or nil when there is none or the store
// failed.
func (m *Manager) Read(ctx context.Context, userID, guildID string) *models.Session {
	s, err := m.store.Get(ctx, guildID, userID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			m.log.Warn(ctx, "session read failed", "user_id", userID, "guild_id", guildID, "error", err)
		}
		return nil
	}
	return s
}

// Close removes the session entry without persisting anything.
func (m *Manager) Close(ctx context.Context, userID, guildID string) {
	if err := m.store.Delete(ctx, guildID, userID); err != nil {
		m.log.Warn(ctx, "session delete failed", "user_id", userID, "guild_id", guildID, "error", err)
		return
	}
	m.log.Debug(ctx, "session closed", "user_id", userID, "guild_id", guildID)
}

// Transfer carries the session into newRoomID. Both timestamps are kept so
// the unflushed span keeps accruing from the original flush pointer.
func (m *Manager) Transfer(ctx context.Context, userID, guildID, newRoomID, groupID string) *models.Session {
	s := m.Read(ctx, userID, guildID)
	if s == nil {
		return nil
	}
	s.PreviousRoomID = s.RoomID
	s.RoomID = newRoomID
	s.GroupID = groupID
	s.Transferred = true
	if !m.update(ctx, s, "transfer") {
		return nil
	}
	m.log.Debug(ctx, "session transferred",
		"user_id", userID, "guild_id", guildID, "from", s.PreviousRoomID, "to", newRoomID)
	return s
}

// Advance moves the flush pointer after an incremental persist. It only
// touches the session that started at s.SessionStartTime; a session reopened
// in the meantime is left as is and false is returned.
func (m *Manager) Advance(ctx context.Context, s *models.Session, to time.Time) bool {
	ttl := m.settings.Settings(ctx, s.GuildID).SessionTTL
	next, ok, err := m.store.Advance(ctx, s.GuildID, s.UserID, s.SessionStartTime, to.UTC(), ttl)
	if err != nil {
		m.log.Warn(ctx, "session write failed", "op", "advance", "user_id", s.UserID, "guild_id", s.GuildID, "error", err)
		return false
	}
	if !ok {
		m.log.Debug(ctx, "session replaced or gone before advance", "user_id", s.UserID, "guild_id", s.GuildID)
		return false
	}
	*s = *next
	return true
}

// List returns the open sessions of a guild, or of all guilds when guildID
// is empty.
func (m *Manager) List(ctx context.Context, guildID string) []*models.Session {
	out, err := m.store.List(ctx, guildID)
	if err != nil {
		m.log.Warn(ctx, "session scan failed", "guild_id", guildID, "error", err)
		return nil
	}
	return out
}

// ClaimClose marks a session as being concluded by an event-driven close.
func (m *Manager) ClaimClose(ctx context.Context, userID, guildID string) {
	if err := m.store.Claim(ctx, guildID, userID, closingClaimTTL); err != nil {
		m.log.Warn(ctx, "session claim failed", "user_id", userID, "guild_id", guildID, "error", err)
	}
}

// TryClaimClose reports whether the caller may conclude the session. It is
// best-effort: a store error grants the claim.
func (m *Manager) TryClaimClose(ctx context.Context, userID, guildID string) bool {
	ok, err := m.store.TryClaim(ctx, guildID, userID, closingClaimTTL)
	if err != nil {
		m.log.Warn(ctx, "session claim failed", "user_id", userID, "guild_id", guildID, "error", err)
		return true
	}
	return ok
}

func (m *Manager) ReleaseClose(ctx context.Context, userID, guildID string) {
	if err := m.store.Release(ctx, guildID, userID); err != nil {
		m.log.Warn(ctx, "session claim release failed", "user_id", userID, "guild_id", guildID, "error", err)
	}
}

// ElapsedSinceLastFlush is the span not yet persisted.
func (m *Manager) ElapsedSinceLastFlush(s *models.Session) time.Duration {
	return nonNegative(m.now().Sub(s.JoinedAt))
}

// TotalElapsed is the span since the session started.
func (m *Manager) TotalElapsed(s *models.Session) time.Duration {
	return nonNegative(m.now().Sub(s.SessionStartTime))
}

// Now exposes the manager's clock to collaborators sharing it.
func (m *Manager) Now() time.Time {
	return m.now()
}

func (m *Manager) write(ctx context.Context, s *models.Session, op string) bool {
	ttl := m.settings.Settings(ctx, s.GuildID).SessionTTL
	if err := m.store.Set(ctx, s, ttl); err != nil {
		m.log.Warn(ctx, "session write failed", "op", op, "user_id", s.UserID, "guild_id", s.GuildID, "error", err)
		return false
	}
	return true
}

// update writes only over a live session so a concurrent close is not undone.
func (m *Manager) update(ctx context.Context, s *models.Session, op string) bool {
	ttl := m.settings.Settings(ctx, s.GuildID).SessionTTL
	ok, err := m.store.Update(ctx, s, ttl)
	if err != nil {
		m.log.Warn(ctx, "session write failed", "op", op, "user_id", s.UserID, "guild_id", s.GuildID, "error", err)
		return false
	}
	if !ok {
		m.log.Debug(ctx, "session vanished before write", "op", op, "user_id", s.UserID, "guild_id", s.GuildID)
	}
	return ok
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
