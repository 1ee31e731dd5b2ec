// Package accrual converts presence time into currency and persists it.
// Writer is the only component that mutates durable currency and time
// fields.
package accrual

import (
	"context"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/repositories/accruals"
	"github.com/omega-realm/presence/internal/repositories/activity"
	"github.com/omega-realm/presence/internal/repositories/transactions"
)

// SettingsSource supplies per-guild settings.
type SettingsSource interface {
	Settings(ctx context.Context, guildID string) models.GuildSettings
}

// BoundaryChecker runs period resets before rolling counters are touched.
type BoundaryChecker interface {
	CheckAndReset(ctx context.Context, userID, guildID string) (Boundaries, error)
}

// GroupAggregator receives presence attributed to a group.
type GroupAggregator interface {
	RecordGroupPresence(ctx context.Context, userID, guildID, groupID string, d time.Duration) error
}

// CloseRecorder is notified once per final close.
type CloseRecorder interface {
	RecordClose(ctx context.Context, userID, guildID string) error
}

// SessionRemover deletes the session entry after a final close.
type SessionRemover interface {
	Close(ctx context.Context, userID, guildID string)
}

// WriterDeps wires a Writer. Groups and Streaks are optional.
type WriterDeps struct {
	Accruals     accruals.Repository
	Transactions transactions.Repository
	Activity     activity.Repository
	Settings     SettingsSource
	Multipliers  MultiplierResolver
	Resets       BoundaryChecker
	Groups       GroupAggregator
	Streaks      CloseRecorder
	Sessions     SessionRemover
	Now          func() time.Time
	Log          logging.Logger
}

type Writer struct {
	accruals     accruals.Repository
	transactions transactions.Repository
	activity     activity.Repository
	settings     SettingsSource
	multipliers  MultiplierResolver
	resets       BoundaryChecker
	groups       GroupAggregator
	streaks      CloseRecorder
	sessions     SessionRemover
	now          func() time.Time
	log          logging.Logger
}

func NewWriter(d WriterDeps) *Writer {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Writer{
		accruals:     d.Accruals,
		transactions: d.Transactions,
		activity:     d.Activity,
		settings:     d.Settings,
		multipliers:  d.Multipliers,
		resets:       d.Resets,
		groups:       d.Groups,
		streaks:      d.Streaks,
		sessions:     d.Sessions,
		now:          now,
		log:          d.Log.With("component", "accrual_writer"),
	}
}

// PersistRequest describes one flush. Duration is the span ending now that
// has not been persisted yet. Session may be nil for ad-hoc grants.
type PersistRequest struct {
	UserID     string
	GuildID    string
	Duration   time.Duration
	Session    *models.Session
	FinalClose bool
}

// PersistResult summarizes what a persist wrote.
type PersistResult struct {
	// Skipped is set when the duration fell below the billable minimum.
	Skipped      bool
	Coins        int64
	BalanceAfter int64
	Boundaries   Boundaries
}

// Persist runs the accrual saga. Only a failed reset or balance increment
// aborts it; later steps log and continue. A final close removes the session
// unless the persist aborted, so the reconciler can retry.
func (w *Writer) Persist(ctx context.Context, req PersistRequest) (PersistResult, error) {
	if req.UserID == "" || req.GuildID == "" {
		w.log.Warn(ctx, "persist rejected: missing identity", "user_id", req.UserID, "guild_id", req.GuildID)
		return PersistResult{}, fmt.Errorf("%w: missing user or guild", common.ErrInvalidInput)
	}
	if req.Duration <= 0 {
		w.log.Debug(ctx, "persist rejected: non-positive duration",
			"user_id", req.UserID, "guild_id", req.GuildID, "duration", req.Duration)
		if req.FinalClose {
			w.removeSession(ctx, req)
		}
		return PersistResult{}, fmt.Errorf("%w: non-positive duration %s", common.ErrInvalidInput, req.Duration)
	}

	settings := w.settings.Settings(ctx, req.GuildID)
	if req.Duration < settings.MinimumBillable {
		w.log.Debug(ctx, "persist skipped: below billable minimum",
			"user_id", req.UserID, "guild_id", req.GuildID, "duration", req.Duration)
		if req.FinalClose {
			w.removeSession(ctx, req)
		}
		return PersistResult{Skipped: true}, nil
	}

	now := w.now().UTC()
	multiplier := ResolveMultiplier(ctx, w.multipliers, w.log, req.UserID, req.GuildID)
	coins := Coins(req.Duration, settings.CoinsPerSecond, multiplier)

	fired, err := w.resets.CheckAndReset(ctx, req.UserID, req.GuildID)
	if err != nil {
		w.log.Error(ctx, "persist aborted: period reset failed",
			"user_id", req.UserID, "guild_id", req.GuildID, "error", err)
		return PersistResult{}, err
	}

	inc := buildIncrement(req, now, coins)
	updated, err := w.accruals.Increment(ctx, inc)
	if err != nil {
		w.log.Error(ctx, "persist aborted: balance increment failed",
			"user_id", req.UserID, "guild_id", req.GuildID, "coins", coins, "error", err)
		return PersistResult{}, fmt.Errorf("increment accrual: %w", err)
	}

	res := PersistResult{Coins: coins, BalanceAfter: updated.Coins, Boundaries: fired}

	if coins != 0 {
		w.appendTransaction(ctx, req, now, coins, multiplier, updated.Coins)
	}
	w.upsertActivity(ctx, req, now, coins)

	if req.Session != nil && req.Session.GroupID != "" && w.groups != nil {
		if err := w.groups.RecordGroupPresence(ctx, req.UserID, req.GuildID, req.Session.GroupID, req.Duration); err != nil {
			w.log.Warn(ctx, "group aggregation failed",
				"user_id", req.UserID, "guild_id", req.GuildID, "group_id", req.Session.GroupID, "error", err)
		}
	}

	if req.FinalClose {
		w.recordStreak(ctx, req)
		w.removeSession(ctx, req)
	}

	w.log.Info(ctx, "presence persisted",
		"user_id", req.UserID, "guild_id", req.GuildID,
		"duration_ms", req.Duration.Milliseconds(), "coins", coins,
		"balance", updated.Coins, "final", req.FinalClose)
	return res, nil
}

// buildIncrement gives cumulative counters the full amount and each rolling
// counter only the part of the span inside its current period.
func buildIncrement(req PersistRequest, now time.Time, coins int64) models.AccrualIncrement {
	d := req.Duration
	daily := periodShare(now, d, StartOfDay(now))
	weekly := periodShare(now, d, StartOfWeek(now))
	monthly := periodShare(now, d, StartOfMonth(now))

	return models.AccrualIncrement{
		GuildID: req.GuildID,
		UserID:  req.UserID,
		Coins:   coins,

		TotalPresenceMs:   d.Milliseconds(),
		DailyPresenceMs:   daily.Milliseconds(),
		WeeklyPresenceMs:  weekly.Milliseconds(),
		MonthlyPresenceMs: monthly.Milliseconds(),

		TotalCoinsEarned:   coins,
		DailyCoinsEarned:   share(coins, daily, d),
		WeeklyCoinsEarned:  share(coins, weekly, d),
		MonthlyCoinsEarned: share(coins, monthly, d),

		At: now,
	}
}

func (w *Writer) appendTransaction(ctx context.Context, req PersistRequest, now time.Time, coins int64, multiplier float64, balance int64) {
	tx := &models.Transaction{
		GuildID:      req.GuildID,
		UserID:       req.UserID,
		Kind:         models.TransactionKindPresence,
		Amount:       coins,
		BalanceAfter: balance,
		Context:      models.TransactionContext{DurationMs: req.Duration.Milliseconds()},
		Metadata: map[string]any{
			"final_close": req.FinalClose,
			"multiplier":  multiplier,
		},
		CreatedAt: now,
	}
	if req.Session != nil {
		tx.Context.RoomID = req.Session.RoomID
		tx.Context.GroupID = req.Session.GroupID
		tx.Metadata["session_start"] = req.Session.SessionStartTime.UTC().Format(time.RFC3339Nano)
	}

	if err := w.transactions.Insert(ctx, tx); err != nil {
		w.log.Error(ctx, "ledger inconsistency",
			"user_id", req.UserID, "guild_id", req.GuildID,
			"amount", coins, "balance_after", balance, "error", err)
	}
}

// upsertActivity grows one record per session, keyed by its start.
func (w *Writer) upsertActivity(ctx context.Context, req PersistRequest, now time.Time, coins int64) {
	start := now.Add(-req.Duration)
	rec := &models.ActivityRecord{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		Kind:        models.ActivityKindSession,
		EndedAt:     now,
		CoinsEarned: coins,
		CreatedAt:   now,
	}
	if req.Session != nil {
		start = req.Session.SessionStartTime.UTC()
		rec.RoomID = req.Session.RoomID
		rec.GroupID = req.Session.GroupID
	}
	rec.StartedAt = start
	rec.DurationMs = now.Sub(start).Milliseconds()
	rec.Day = StartOfDay(start)

	if err := w.activity.Upsert(ctx, rec); err != nil {
		w.log.Warn(ctx, "activity record upsert failed",
			"user_id", req.UserID, "guild_id", req.GuildID, "error", err)
	}
}

func (w *Writer) recordStreak(ctx context.Context, req PersistRequest) {
	if w.streaks == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			w.log.Error(ctx, "streak update panicked", "user_id", req.UserID, "guild_id", req.GuildID, "panic", fmt.Sprint(p))
		}
	}()
	if err := w.streaks.RecordClose(ctx, req.UserID, req.GuildID); err != nil {
		w.log.Warn(ctx, "streak update failed", "user_id", req.UserID, "guild_id", req.GuildID, "error", err)
	}
}

func (w *Writer) removeSession(ctx context.Context, req PersistRequest) {
	if w.sessions != nil {
		w.sessions.Close(ctx, req.UserID, req.GuildID)
	}
}
