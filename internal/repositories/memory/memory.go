// Package memory implements the durable repositories in process memory for
// development runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/repositories/accruals"
	"github.com/omega-realm/presence/internal/repositories/activity"
	"github.com/omega-realm/presence/internal/repositories/guildsettings"
	"github.com/omega-realm/presence/internal/repositories/multipliers"
	"github.com/omega-realm/presence/internal/repositories/streaks"
	"github.com/omega-realm/presence/internal/repositories/transactions"
)

type userKey struct {
	guildID string
	userID  string
}

type activityKey struct {
	guildID   string
	userID    string
	kind      string
	startedAt int64
}

type multiplierKey struct {
	guildID string
	userID  string
	source  string
}

// DB holds every collection behind one mutex.
type DB struct {
	mu           sync.Mutex
	accruals     map[userKey]models.UserAccrual
	transactions []models.Transaction
	activity     map[activityKey]models.ActivityRecord
	streaks      map[userKey]models.Streak
	settings     map[string]guildsettings.Override
	multipliers  map[multiplierKey]multipliers.Multiplier
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{
		accruals:    make(map[userKey]models.UserAccrual),
		activity:    make(map[activityKey]models.ActivityRecord),
		streaks:     make(map[userKey]models.Streak),
		settings:    make(map[string]guildsettings.Override),
		multipliers: make(map[multiplierKey]multipliers.Multiplier),
	}
}

// Ensure interfaces are met.
var _ accruals.Repository = (*AccrualRepo)(nil)
var _ activity.Repository = (*ActivityRepo)(nil)
var _ transactions.Repository = (*TransactionRepo)(nil)
var _ streaks.Repository = (*StreakRepo)(nil)
var _ guildsettings.Repository = (*SettingsRepo)(nil)
var _ multipliers.Repository = (*MultiplierRepo)(nil)

type AccrualRepo struct{ db *DB }
type ActivityRepo struct{ db *DB }
type TransactionRepo struct{ db *DB }
type StreakRepo struct{ db *DB }
type SettingsRepo struct{ db *DB }
type MultiplierRepo struct{ db *DB }

func (db *DB) Accruals() *AccrualRepo         { return &AccrualRepo{db: db} }
func (db *DB) Activity() *ActivityRepo        { return &ActivityRepo{db: db} }
func (db *DB) Transactions() *TransactionRepo { return &TransactionRepo{db: db} }
func (db *DB) Streaks() *StreakRepo           { return &StreakRepo{db: db} }
func (db *DB) GuildSettings() *SettingsRepo   { return &SettingsRepo{db: db} }
func (db *DB) Multipliers() *MultiplierRepo   { return &MultiplierRepo{db: db} }

// ArchiveAndReset upserts the outgoing day's summary and applies the period
// reset under one lock, mirroring the transactional Postgres resetter.
func (db *DB) ArchiveAndReset(ctx context.Context, guildID, userID string, summary *models.ActivityRecord, marks models.PeriodMarks) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if summary != nil {
		db.upsertActivityLocked(*summary)
	}
	db.resetPeriodsLocked(userKey{guildID, userID}, marks)
	return nil
}

// --- accruals ---

func (r *AccrualRepo) Get(ctx context.Context, guildID, userID string) (*models.UserAccrual, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.accruals[userKey{guildID, userID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &a, nil
}

func (r *AccrualRepo) Increment(ctx context.Context, inc models.AccrualIncrement) (*models.UserAccrual, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	k := userKey{inc.GuildID, inc.UserID}
	a, ok := r.db.accruals[k]
	if !ok {
		a = models.UserAccrual{GuildID: inc.GuildID, UserID: inc.UserID}
	}
	a.Coins += inc.Coins
	a.TotalPresenceMs += inc.TotalPresenceMs
	a.DailyPresenceMs += inc.DailyPresenceMs
	a.WeeklyPresenceMs += inc.WeeklyPresenceMs
	a.MonthlyPresenceMs += inc.MonthlyPresenceMs
	a.TotalCoinsEarned += inc.TotalCoinsEarned
	a.DailyCoinsEarned += inc.DailyCoinsEarned
	a.WeeklyCoinsEarned += inc.WeeklyCoinsEarned
	a.MonthlyCoinsEarned += inc.MonthlyCoinsEarned
	a.UpdatedAt = inc.At
	r.db.accruals[k] = a
	return &a, nil
}

func (r *AccrualRepo) ResetPeriods(ctx context.Context, guildID, userID string, marks models.PeriodMarks) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.resetPeriodsLocked(userKey{guildID, userID}, marks)
	return nil
}

func (db *DB) resetPeriodsLocked(k userKey, marks models.PeriodMarks) {
	a, ok := db.accruals[k]
	if !ok {
		a = models.UserAccrual{GuildID: k.guildID, UserID: k.userID}
	}
	if marks.ResetDaily {
		if stale(a.LastDailyReset, marks.Day) {
			a.DailyPresenceMs, a.DailyCoinsEarned = 0, 0
			a.LastDailyReset = timePtr(marks.Day)
		}
	}
	if marks.ResetWeekly {
		if stale(a.LastWeeklyReset, marks.Week) {
			a.WeeklyPresenceMs, a.WeeklyCoinsEarned = 0, 0
			a.LastWeeklyReset = timePtr(marks.Week)
		}
	}
	if marks.ResetMonthly {
		if stale(a.LastMonthlyReset, marks.Month) {
			a.MonthlyPresenceMs, a.MonthlyCoinsEarned = 0, 0
			a.LastMonthlyReset = timePtr(marks.Month)
		}
	}
	db.accruals[k] = a
}

func stale(marker *time.Time, start time.Time) bool {
	return marker == nil || marker.Before(start)
}

func timePtr(t time.Time) *time.Time {
	v := t.UTC()
	return &v
}

// --- activity ---

func (r *ActivityRepo) Upsert(ctx context.Context, rec *models.ActivityRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.upsertActivityLocked(*rec)
	return nil
}

func (db *DB) upsertActivityLocked(rec models.ActivityRecord) {
	k := activityKey{rec.GuildID, rec.UserID, rec.Kind, rec.StartedAt.UnixNano()}
	cur, ok := db.activity[k]
	if !ok {
		db.activity[k] = rec
		return
	}

	if cur.Kind == models.ActivityKindDailySummary {
		cur.CoinsEarned = rec.CoinsEarned
		cur.DurationMs = rec.DurationMs
	} else {
		if rec.EndedAt.After(cur.EndedAt) {
			cur.CoinsEarned += rec.CoinsEarned
		}
		if rec.DurationMs > cur.DurationMs {
			cur.DurationMs = rec.DurationMs
		}
	}
	if rec.EndedAt.After(cur.EndedAt) {
		cur.EndedAt = rec.EndedAt
	}
	if rec.RoomID != "" {
		cur.RoomID = rec.RoomID
	}
	if rec.GroupID != "" {
		cur.GroupID = rec.GroupID
	}
	db.activity[k] = cur
}

func (r *ActivityRepo) ListByUser(ctx context.Context, guildID, userID string, limit int) ([]models.ActivityRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []models.ActivityRecord
	for _, rec := range r.db.activity {
		if rec.GuildID == guildID && rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ActivityRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for k, rec := range r.db.activity {
		if rec.CreatedAt.Before(cutoff) {
			delete(r.db.activity, k)
			n++
		}
	}
	return n, nil
}

// --- transactions ---

func (r *TransactionRepo) Insert(ctx context.Context, tx *models.Transaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	r.db.transactions = append(r.db.transactions, *tx)
	return nil
}

func (r *TransactionRepo) ListRecent(ctx context.Context, guildID, userID string, limit int) ([]models.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []models.Transaction
	for i := len(r.db.transactions) - 1; i >= 0; i-- {
		t := r.db.transactions[i]
		if t.GuildID != guildID || t.UserID != userID {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- streaks ---

func (r *StreakRepo) Get(ctx context.Context, guildID, userID string) (*models.Streak, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.streaks[userKey{guildID, userID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &s, nil
}

func (r *StreakRepo) Upsert(ctx context.Context, s *models.Streak) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.streaks[userKey{s.GuildID, s.UserID}] = *s
	return nil
}

// --- guild settings ---

func (r *SettingsRepo) Get(ctx context.Context, guildID string) (*guildsettings.Override, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	o, ok := r.db.settings[guildID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &o, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, o *guildsettings.Override) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.settings[o.GuildID] = *o
	return nil
}

// --- multipliers ---

func (r *MultiplierRepo) Active(ctx context.Context, guildID, userID string, at time.Time) ([]multipliers.Multiplier, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []multipliers.Multiplier
	for _, m := range r.db.multipliers {
		if m.GuildID != guildID || m.UserID != userID {
			continue
		}
		if m.ExpiresAt != nil && !m.ExpiresAt.After(at) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *MultiplierRepo) Upsert(ctx context.Context, m multipliers.Multiplier) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.multipliers[multiplierKey{m.GuildID, m.UserID, m.Source}] = m
	return nil
}
