// Package reconciler periodically checks open sessions against live
// presence, flushing accrual for present users and closing stale sessions.
package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/omega-realm/presence/internal/accrual"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/presence"
)

// Sessions is the part of the session manager a pass needs.
type Sessions interface {
	List(ctx context.Context, guildID string) []*models.Session
	Read(ctx context.Context, userID, guildID string) *models.Session
	TryClaimClose(ctx context.Context, userID, guildID string) bool
	ReleaseClose(ctx context.Context, userID, guildID string)
	ElapsedSinceLastFlush(s *models.Session) time.Duration
	Advance(ctx context.Context, s *models.Session, to time.Time) bool
}

type Persister interface {
	Persist(ctx context.Context, req accrual.PersistRequest) (accrual.PersistResult, error)
}

// Result counts what a pass did.
type Result struct {
	Flushed int `json:"flushed"`
	Cleaned int `json:"cleaned"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Reconciler struct {
	sessions Sessions
	writer   Persister
	presence presence.Provider
	running  atomic.Bool
	log      logging.Logger
}

func New(sessions Sessions, writer Persister, provider presence.Provider, log logging.Logger) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		writer:   writer,
		presence: provider,
		log:      log.With("component", "reconciler"),
	}
}

// RunOnce performs one pass over every open session. It returns
// common.ErrAlreadyRunning instead of overlapping a pass in flight.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Result{}, common.ErrAlreadyRunning
	}
	defer r.running.Store(false)

	var res Result
	for _, s := range r.sessions.List(ctx, "") {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.reconcile(ctx, s, &res)
	}

	r.log.Info(ctx, "reconciliation pass finished",
		"flushed", res.Flushed, "cleaned", res.Cleaned, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, listed *models.Session, res *Result) {
	if !r.sessions.TryClaimClose(ctx, listed.UserID, listed.GuildID) {
		// An event-driven close owns this session.
		res.Skipped++
		return
	}
	defer r.sessions.ReleaseClose(ctx, listed.UserID, listed.GuildID)

	room, present := r.presence.MemberRoom(ctx, listed.GuildID, listed.UserID)

	// The listing is from the start of the pass. Events may have closed or
	// reopened the session since, so act only on the stored copy.
	s := r.sessions.Read(ctx, listed.UserID, listed.GuildID)
	if s == nil || !s.SessionStartTime.Equal(listed.SessionStartTime) {
		r.log.Debug(ctx, "session changed since listing, left to the event path",
			"user_id", listed.UserID, "guild_id", listed.GuildID)
		res.Skipped++
		return
	}
	d := r.sessions.ElapsedSinceLastFlush(s)

	if !present || room != s.RoomID {
		_, err := r.writer.Persist(ctx, accrual.PersistRequest{
			UserID: s.UserID, GuildID: s.GuildID, Duration: d, Session: s, FinalClose: true,
		})
		if err != nil && !errors.Is(err, common.ErrInvalidInput) {
			r.log.Warn(ctx, "stale session close failed", "user_id", s.UserID, "guild_id", s.GuildID, "error", err)
			res.Failed++
			return
		}
		r.log.Info(ctx, "stale session cleaned",
			"user_id", s.UserID, "guild_id", s.GuildID, "room_id", s.RoomID, "present", present, "actual_room", room)
		res.Cleaned++
		return
	}

	out, err := r.writer.Persist(ctx, accrual.PersistRequest{
		UserID: s.UserID, GuildID: s.GuildID, Duration: d, Session: s,
	})
	if err != nil {
		if !errors.Is(err, common.ErrInvalidInput) {
			r.log.Warn(ctx, "incremental flush failed", "user_id", s.UserID, "guild_id", s.GuildID, "error", err)
			res.Failed++
		}
		return
	}
	if out.Skipped {
		// Below the billable minimum: keep accumulating from the same pointer.
		return
	}
	r.sessions.Advance(ctx, s, s.JoinedAt.Add(d))
	res.Flushed++
}

// Run starts a pass on every tick until ctx is cancelled. A tick that fires
// while a pass is still running is skipped, not queued.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go func() {
				if _, err := r.RunOnce(ctx); errors.Is(err, common.ErrAlreadyRunning) {
					r.log.Warn(ctx, "previous reconciliation pass still running, tick skipped")
				}
			}()
		}
	}
}
