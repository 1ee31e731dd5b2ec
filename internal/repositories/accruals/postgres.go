// Package accruals persists per-(guild,user) presence and currency counters.
package accruals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/dbx"
	"github.com/omega-realm/presence/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accrualColumns = `guild_id, user_id, coins,
	total_presence_ms, daily_presence_ms, weekly_presence_ms, monthly_presence_ms,
	total_coins_earned, daily_coins_earned, weekly_coins_earned, monthly_coins_earned,
	last_daily_reset, last_weekly_reset, last_monthly_reset, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, guildID, userID string) (*models.UserAccrual, error) {
	query := `SELECT ` + accrualColumns + ` FROM user_accruals
		 WHERE guild_id = $1 AND user_id = $2`

	a, err := scanAccrual(r.db.QueryRowContext(ctx, query, guildID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// Increment adds inc to the row, creating it when needed, and returns the
// post-update row in the same statement.
func (r *PostgresRepository) Increment(ctx context.Context, inc models.AccrualIncrement) (*models.UserAccrual, error) {
	query :=
		`INSERT INTO user_accruals (guild_id, user_id, coins,
			total_presence_ms, daily_presence_ms, weekly_presence_ms, monthly_presence_ms,
			total_coins_earned, daily_coins_earned, weekly_coins_earned, monthly_coins_earned,
			updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (guild_id, user_id) DO UPDATE SET
			coins = user_accruals.coins + EXCLUDED.coins,
			total_presence_ms = user_accruals.total_presence_ms + EXCLUDED.total_presence_ms,
			daily_presence_ms = user_accruals.daily_presence_ms + EXCLUDED.daily_presence_ms,
			weekly_presence_ms = user_accruals.weekly_presence_ms + EXCLUDED.weekly_presence_ms,
			monthly_presence_ms = user_accruals.monthly_presence_ms + EXCLUDED.monthly_presence_ms,
			total_coins_earned = user_accruals.total_coins_earned + EXCLUDED.total_coins_earned,
			daily_coins_earned = user_accruals.daily_coins_earned + EXCLUDED.daily_coins_earned,
			weekly_coins_earned = user_accruals.weekly_coins_earned + EXCLUDED.weekly_coins_earned,
			monthly_coins_earned = user_accruals.monthly_coins_earned + EXCLUDED.monthly_coins_earned,
			updated_at = EXCLUDED.updated_at
		 RETURNING ` + accrualColumns

	a, err := scanAccrual(r.db.QueryRowContext(ctx, query,
		inc.GuildID, inc.UserID, inc.Coins,
		inc.TotalPresenceMs, inc.DailyPresenceMs, inc.WeeklyPresenceMs, inc.MonthlyPresenceMs,
		inc.TotalCoinsEarned, inc.DailyCoinsEarned, inc.WeeklyCoinsEarned, inc.MonthlyCoinsEarned,
		inc.At))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) ResetPeriods(ctx context.Context, guildID, userID string, marks models.PeriodMarks) error {
	// Each CASE only fires when the stored marker predates the new period
	// start, so a concurrent or repeated reset cannot zero fresh increments.
	query :=
		`INSERT INTO user_accruals (guild_id, user_id, last_daily_reset, last_weekly_reset, last_monthly_reset, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (guild_id, user_id) DO UPDATE SET
			daily_presence_ms = CASE WHEN $6 AND (user_accruals.last_daily_reset IS NULL OR user_accruals.last_daily_reset < $3)
				THEN 0 ELSE user_accruals.daily_presence_ms END,
			daily_coins_earned = CASE WHEN $6 AND (user_accruals.last_daily_reset IS NULL OR user_accruals.last_daily_reset < $3)
				THEN 0 ELSE user_accruals.daily_coins_earned END,
			last_daily_reset = CASE WHEN $6 THEN GREATEST(user_accruals.last_daily_reset, $3) ELSE user_accruals.last_daily_reset END,
			weekly_presence_ms = CASE WHEN $7 AND (user_accruals.last_weekly_reset IS NULL OR user_accruals.last_weekly_reset < $4)
				THEN 0 ELSE user_accruals.weekly_presence_ms END,
			weekly_coins_earned = CASE WHEN $7 AND (user_accruals.last_weekly_reset IS NULL OR user_accruals.last_weekly_reset < $4)
				THEN 0 ELSE user_accruals.weekly_coins_earned END,
			last_weekly_reset = CASE WHEN $7 THEN GREATEST(user_accruals.last_weekly_reset, $4) ELSE user_accruals.last_weekly_reset END,
			monthly_presence_ms = CASE WHEN $8 AND (user_accruals.last_monthly_reset IS NULL OR user_accruals.last_monthly_reset < $5)
				THEN 0 ELSE user_accruals.monthly_presence_ms END,
			monthly_coins_earned = CASE WHEN $8 AND (user_accruals.last_monthly_reset IS NULL OR user_accruals.last_monthly_reset < $5)
				THEN 0 ELSE user_accruals.monthly_coins_earned END,
			last_monthly_reset = CASE WHEN $8 THEN GREATEST(user_accruals.last_monthly_reset, $5) ELSE user_accruals.last_monthly_reset END,
			updated_at = now()`

	_, err := r.db.ExecContext(ctx, query, guildID, userID,
		marks.Day, marks.Week, marks.Month,
		marks.ResetDaily, marks.ResetWeekly, marks.ResetMonthly)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccrual(row rowScanner) (*models.UserAccrual, error) {
	var (
		a                     models.UserAccrual
		daily, weekly, monthly sql.NullTime
	)
	err := row.Scan(&a.GuildID, &a.UserID, &a.Coins,
		&a.TotalPresenceMs, &a.DailyPresenceMs, &a.WeeklyPresenceMs, &a.MonthlyPresenceMs,
		&a.TotalCoinsEarned, &a.DailyCoinsEarned, &a.WeeklyCoinsEarned, &a.MonthlyCoinsEarned,
		&daily, &weekly, &monthly, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LastDailyReset = nullTime(daily)
	a.LastWeeklyReset = nullTime(weekly)
	a.LastMonthlyReset = nullTime(monthly)
	return &a, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
