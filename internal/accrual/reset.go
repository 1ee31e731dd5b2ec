package accrual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/repositories"
	"github.com/omega-realm/presence/internal/repositories/accruals"
)

// Boundaries reports which rolling periods were reset by a check.
type Boundaries struct {
	Daily   bool
	Weekly  bool
	Monthly bool
}

func (b Boundaries) Any() bool { return b.Daily || b.Weekly || b.Monthly }

// ResetManager evaluates period boundaries lazily, on the next write for a
// user, instead of sweeping every user at midnight.
type ResetManager struct {
	accruals accruals.Repository
	resetter repositories.PeriodResetter
	now      func() time.Time
	log      logging.Logger
}

func NewResetManager(repo accruals.Repository, resetter repositories.PeriodResetter, now func() time.Time, log logging.Logger) *ResetManager {
	if now == nil {
		now = time.Now
	}
	return &ResetManager{
		accruals: repo,
		resetter: resetter,
		now:      now,
		log:      log.With("component", "reset_manager"),
	}
}

// CheckAndReset fires every boundary whose period start is newer than the
// stored marker, or whose marker is absent. The outgoing day's totals are
// archived as a daily summary before the daily counters are zeroed.
func (m *ResetManager) CheckAndReset(ctx context.Context, userID, guildID string) (Boundaries, error) {
	now := m.now().UTC()

	current, err := m.accruals.Get(ctx, guildID, userID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return Boundaries{}, fmt.Errorf("load accrual: %w", err)
	}
	if current == nil {
		current = &models.UserAccrual{GuildID: guildID, UserID: userID}
	}

	marks := models.PeriodMarks{
		Day:   StartOfDay(now),
		Week:  StartOfWeek(now),
		Month: StartOfMonth(now),
	}
	marks.ResetDaily = crossed(current.LastDailyReset, marks.Day, StartOfDay)
	marks.ResetWeekly = crossed(current.LastWeeklyReset, marks.Week, StartOfWeek)
	marks.ResetMonthly = crossed(current.LastMonthlyReset, marks.Month, StartOfMonth)

	fired := Boundaries{Daily: marks.ResetDaily, Weekly: marks.ResetWeekly, Monthly: marks.ResetMonthly}
	if !fired.Any() {
		return fired, nil
	}

	var summary *models.ActivityRecord
	if fired.Daily {
		summary = dailySummary(current, now)
	}

	if err := m.resetter.ArchiveAndReset(ctx, guildID, userID, summary, marks); err != nil {
		return Boundaries{}, fmt.Errorf("reset periods: %w", err)
	}

	m.log.Debug(ctx, "period boundaries reset",
		"user_id", userID, "guild_id", guildID,
		"daily", fired.Daily, "weekly", fired.Weekly, "monthly", fired.Monthly)
	return fired, nil
}

func crossed(marker *time.Time, periodStart time.Time, normalize func(time.Time) time.Time) bool {
	if marker == nil {
		return true
	}
	return periodStart.After(normalize(*marker))
}

// dailySummary snapshots the outgoing day, or returns nil when there is no
// known day or nothing to archive.
func dailySummary(a *models.UserAccrual, now time.Time) *models.ActivityRecord {
	if a.LastDailyReset == nil {
		return nil
	}
	if a.DailyPresenceMs == 0 && a.DailyCoinsEarned == 0 {
		return nil
	}
	day := StartOfDay(*a.LastDailyReset)
	return &models.ActivityRecord{
		GuildID:     a.GuildID,
		UserID:      a.UserID,
		Kind:        models.ActivityKindDailySummary,
		StartedAt:   day,
		EndedAt:     day.AddDate(0, 0, 1),
		DurationMs:  a.DailyPresenceMs,
		CoinsEarned: a.DailyCoinsEarned,
		Day:         day,
		CreatedAt:   now,
	}
}
