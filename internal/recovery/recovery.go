// Package recovery rebuilds the session cache from live presence after a
// (re)connect and checks stored sessions against it.
package recovery

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/presence"
)

type Sessions interface {
	Open(ctx context.Context, userID, guildID, roomID, groupID string) *models.Session
	Read(ctx context.Context, userID, guildID string) *models.Session
	Close(ctx context.Context, userID, guildID string)
	List(ctx context.Context, guildID string) []*models.Session
}

type SettingsSource interface {
	Settings(ctx context.Context, guildID string) models.GuildSettings
}

// Result counts the outcome of a recovery.
type Result struct {
	Opened   int `json:"opened"`
	Existing int `json:"existing"`
}

// IntegrityResult counts the outcome of an integrity check.
type IntegrityResult struct {
	Checked int `json:"checked"`
	Invalid int `json:"invalid"`
}

// Bootstrapper recovers each guild once. Time a member spent in a room
// before the restart is not backfilled: recovered sessions start now.
type Bootstrapper struct {
	sessions Sessions
	presence presence.Provider
	settings SettingsSource
	log      logging.Logger

	running   atomic.Bool
	mu        sync.Mutex
	recovered map[string]bool
}

func New(sessions Sessions, provider presence.Provider, settings SettingsSource, log logging.Logger) *Bootstrapper {
	return &Bootstrapper{
		sessions:  sessions,
		presence:  provider,
		settings:  settings,
		log:       log.With("component", "recovery"),
		recovered: make(map[string]bool),
	}
}

// Recover opens sessions for present members of tracked rooms in every guild
// not recovered yet. Members who already have a session are left alone.
func (b *Bootstrapper) Recover(ctx context.Context) (Result, error) {
	if !b.running.CompareAndSwap(false, true) {
		return Result{}, common.ErrAlreadyRunning
	}
	defer b.running.Store(false)

	var res Result
	for _, guildID := range b.presence.Guilds(ctx) {
		if !b.claimGuild(guildID) {
			continue
		}
		b.recoverGuild(ctx, guildID, &res)
	}

	b.log.Info(ctx, "session recovery finished", "opened", res.Opened, "existing", res.Existing)
	return res, nil
}

// Rearm lets the next Recover revisit guildID, or every guild when guildID
// is empty. Used after a gateway reconnect.
func (b *Bootstrapper) Rearm(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if guildID == "" {
		b.recovered = make(map[string]bool)
		return
	}
	delete(b.recovered, guildID)
}

func (b *Bootstrapper) claimGuild(guildID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recovered[guildID] {
		return false
	}
	b.recovered[guildID] = true
	return true
}

func (b *Bootstrapper) recoverGuild(ctx context.Context, guildID string, res *Result) {
	settings := b.settings.Settings(ctx, guildID)
	for _, room := range b.presence.Rooms(ctx, guildID) {
		if !settings.IsTracked(room.CategoryID) {
			continue
		}
		for _, m := range room.HumanMembers() {
			if b.sessions.Read(ctx, m.UserID, guildID) != nil {
				res.Existing++
				continue
			}
			if b.sessions.Open(ctx, m.UserID, guildID, room.ID, room.GroupID) != nil {
				res.Opened++
				b.log.Debug(ctx, "session recovered", "user_id", m.UserID, "guild_id", guildID, "room_id", room.ID)
			}
		}
	}
}

// VerifyIntegrity deletes sessions whose user is not in the recorded room.
// Nothing is accrued for them.
func (b *Bootstrapper) VerifyIntegrity(ctx context.Context) IntegrityResult {
	var res IntegrityResult
	for _, s := range b.sessions.List(ctx, "") {
		res.Checked++
		room, present := b.presence.MemberRoom(ctx, s.GuildID, s.UserID)
		if present && room == s.RoomID {
			continue
		}
		b.sessions.Close(ctx, s.UserID, s.GuildID)
		res.Invalid++
		b.log.Warn(ctx, "invalid session removed", "user_id", s.UserID, "guild_id", s.GuildID, "room_id", s.RoomID)
	}
	return res
}
