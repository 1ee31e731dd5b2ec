// Package engine is the public face of presence accrual: it applies the
// voice-state policy and exposes session, recovery and reconciliation
// operations to collaborators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/accrual"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/presence"
	"github.com/omega-realm/presence/internal/reconciler"
	"github.com/omega-realm/presence/internal/recovery"
	"github.com/omega-realm/presence/internal/sessions"
)

type Deps struct {
	Sessions    *sessions.Manager
	Writer      *accrual.Writer
	Resets      *accrual.ResetManager
	Settings    accrual.SettingsSource
	Multipliers accrual.MultiplierResolver
	Rooms       presence.RoomResolver
	Reconciler  *reconciler.Reconciler
	Recovery    *recovery.Bootstrapper
	Log         logging.Logger
}

type Engine struct {
	sessions    *sessions.Manager
	writer      *accrual.Writer
	resets      *accrual.ResetManager
	settings    accrual.SettingsSource
	multipliers accrual.MultiplierResolver
	rooms       presence.RoomResolver
	reconciler  *reconciler.Reconciler
	recovery    *recovery.Bootstrapper
	log         logging.Logger
}

func New(d Deps) *Engine {
	return &Engine{
		sessions:    d.Sessions,
		writer:      d.Writer,
		resets:      d.Resets,
		settings:    d.Settings,
		multipliers: d.Multipliers,
		rooms:       d.Rooms,
		reconciler:  d.Reconciler,
		recovery:    d.Recovery,
		log:         d.Log.With("component", "engine"),
	}
}

// HandleVoiceStateUpdate drives the per-user session state machine from one
// gateway event. Bots and same-room updates are ignored.
func (e *Engine) HandleVoiceStateUpdate(ctx context.Context, u models.VoiceStateUpdate) error {
	if u.GuildID == "" || u.UserID == "" {
		return fmt.Errorf("%w: voice state update without guild or user", common.ErrInvalidInput)
	}
	if u.IsBot {
		return nil
	}
	if u.RoomID != "" && u.RoomID == u.PreviousRoom {
		return nil
	}

	target, tracked := e.trackedRoom(ctx, u.GuildID, u.RoomID)
	current := e.sessions.Read(ctx, u.UserID, u.GuildID)

	switch {
	case current == nil && tracked:
		e.OpenSession(ctx, u.UserID, u.GuildID, target.ID, target.GroupID)
	case current == nil:
		// untracked or no room, nothing to do
	case !tracked:
		e.closeSession(ctx, current)
	case current.RoomID == target.ID:
		// duplicate delivery
	case u.PreviousRoom == "":
		// A join while a session is open: the old one is a leftover.
		e.log.Warn(ctx, "duplicate session on join, closing it first",
			"user_id", u.UserID, "guild_id", u.GuildID, "room_id", current.RoomID)
		e.reopen(ctx, current, target)
	default:
		e.move(ctx, current, target)
	}
	return nil
}

// move transfers the session when the room switch happens inside the grace
// window, otherwise closes it and opens a fresh one.
func (e *Engine) move(ctx context.Context, current *models.Session, target models.Room) {
	grace := e.settings.Settings(ctx, current.GuildID).TransferGrace
	if e.sessions.TotalElapsed(current) < grace {
		e.sessions.Transfer(ctx, current.UserID, current.GuildID, target.ID, target.GroupID)
		return
	}
	e.reopen(ctx, current, target)
}

// reopen concludes current and starts a session in target. When the close
// cannot be persisted the session is carried into target instead, keeping
// its unflushed span for the reconciler to bill.
func (e *Engine) reopen(ctx context.Context, current *models.Session, target models.Room) {
	if _, err := e.closeSession(ctx, current); err != nil {
		e.log.Warn(ctx, "close failed, carrying unflushed span into the new room",
			"user_id", current.UserID, "guild_id", current.GuildID, "room_id", target.ID)
		e.sessions.Transfer(ctx, current.UserID, current.GuildID, target.ID, target.GroupID)
		return
	}
	e.sessions.Open(ctx, current.UserID, current.GuildID, target.ID, target.GroupID)
}

func (e *Engine) trackedRoom(ctx context.Context, guildID, roomID string) (models.Room, bool) {
	if roomID == "" {
		return models.Room{}, false
	}
	room, ok := e.rooms.Room(ctx, guildID, roomID)
	if !ok {
		return models.Room{ID: roomID, GuildID: guildID}, false
	}
	return room, e.settings.Settings(ctx, guildID).IsTracked(room.CategoryID)
}

// OpenSession starts a session, first concluding any session already open
// for the user.
func (e *Engine) OpenSession(ctx context.Context, userID, guildID, roomID, groupID string) (*models.Session, error) {
	if userID == "" || guildID == "" || roomID == "" {
		return nil, fmt.Errorf("%w: open session requires user, guild and room", common.ErrInvalidInput)
	}
	if existing := e.sessions.Read(ctx, userID, guildID); existing != nil {
		e.log.Warn(ctx, "recovered duplicate session", "user_id", userID, "guild_id", guildID, "room_id", existing.RoomID)
		if _, err := e.closeSession(ctx, existing); err != nil {
			return e.sessions.Transfer(ctx, userID, guildID, roomID, groupID), nil
		}
	}
	return e.sessions.Open(ctx, userID, guildID, roomID, groupID), nil
}

// CloseSession persists the unflushed span and removes the session. A user
// without a session is a no-op.
func (e *Engine) CloseSession(ctx context.Context, userID, guildID string) (accrual.PersistResult, error) {
	s := e.sessions.Read(ctx, userID, guildID)
	if s == nil {
		return accrual.PersistResult{}, nil
	}
	return e.closeSession(ctx, s)
}

func (e *Engine) closeSession(ctx context.Context, s *models.Session) (accrual.PersistResult, error) {
	e.sessions.ClaimClose(ctx, s.UserID, s.GuildID)
	defer e.sessions.ReleaseClose(ctx, s.UserID, s.GuildID)

	res, err := e.writer.Persist(ctx, accrual.PersistRequest{
		UserID:     s.UserID,
		GuildID:    s.GuildID,
		Duration:   e.sessions.ElapsedSinceLastFlush(s),
		Session:    s,
		FinalClose: true,
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			return res, nil
		}
		e.log.Warn(ctx, "session close failed, left for reconciliation",
			"user_id", s.UserID, "guild_id", s.GuildID, "error", err)
		return res, err
	}
	return res, nil
}

// TransferSession moves an open session to another room without persisting.
func (e *Engine) TransferSession(ctx context.Context, userID, guildID, newRoomID, groupID string) (*models.Session, error) {
	s := e.sessions.Transfer(ctx, userID, guildID, newRoomID, groupID)
	if s == nil {
		return nil, common.ErrNotFound
	}
	return s, nil
}

// GetCurrentSessionDuration returns the time since the session started.
func (e *Engine) GetCurrentSessionDuration(ctx context.Context, userID, guildID string) (time.Duration, bool) {
	s := e.sessions.Read(ctx, userID, guildID)
	if s == nil {
		return 0, false
	}
	return e.sessions.TotalElapsed(s), true
}

// GetCurrentSessionCoinsSoFar estimates the currency the whole session is
// worth at the current rate and multiplier.
func (e *Engine) GetCurrentSessionCoinsSoFar(ctx context.Context, userID, guildID string) (int64, bool) {
	d, ok := e.GetCurrentSessionDuration(ctx, userID, guildID)
	if !ok {
		return 0, false
	}
	rate := e.settings.Settings(ctx, guildID).CoinsPerSecond
	m := accrual.ResolveMultiplier(ctx, e.multipliers, e.log, userID, guildID)
	return accrual.Coins(d, rate, m), true
}

func (e *Engine) RecoverActiveSessions(ctx context.Context) (recovery.Result, error) {
	return e.recovery.Recover(ctx)
}

// RearmRecovery makes the next recovery revisit guildID (all guilds when
// empty).
func (e *Engine) RearmRecovery(guildID string) {
	e.recovery.Rearm(guildID)
}

func (e *Engine) VerifySessionIntegrity(ctx context.Context) recovery.IntegrityResult {
	return e.recovery.VerifyIntegrity(ctx)
}

func (e *Engine) RunReconciliationNow(ctx context.Context) (reconciler.Result, error) {
	return e.reconciler.RunOnce(ctx)
}

func (e *Engine) CheckAndResetUser(ctx context.Context, userID, guildID string) (accrual.Boundaries, error) {
	if userID == "" || guildID == "" {
		return accrual.Boundaries{}, fmt.Errorf("%w: missing user or guild", common.ErrInvalidInput)
	}
	return e.resets.CheckAndReset(ctx, userID, guildID)
}

// RunReconciler flushes open sessions every interval until ctx is done.
func (e *Engine) RunReconciler(ctx context.Context, interval time.Duration) {
	e.reconciler.Run(ctx, interval)
}
