package accruals

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

var accrualCols = []string{"guild_id", "user_id", "coins",
	"total_presence_ms", "daily_presence_ms", "weekly_presence_ms", "monthly_presence_ms",
	"total_coins_earned", "daily_coins_earned", "weekly_coins_earned", "monthly_coins_earned",
	"last_daily_reset", "last_weekly_reset", "last_monthly_reset", "updated_at"}

func TestGet_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT\s+guild_id,.*FROM user_accruals\s+WHERE guild_id = \$1 AND user_id = \$2$`).
		WithArgs("g1", "u1").
		WillReturnRows(sqlmock.NewRows(accrualCols).
			AddRow("g1", "u1", 42, 1000, 500, 700, 900, 42, 10, 20, 30, day, nil, nil, day))

	got, err := repo.Get(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Coins)
	assert.Equal(t, int64(500), got.DailyPresenceMs)
	require.NotNil(t, got.LastDailyReset)
	assert.True(t, day.Equal(*got.LastDailyReset))
	assert.Nil(t, got.LastWeeklyReset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT`).WithArgs("g1", "ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "g1", "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestIncrement_ReturnsUpdatedRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inc := models.AccrualIncrement{
		GuildID: "g1", UserID: "u1", Coins: 30,
		TotalPresenceMs: 300000, DailyPresenceMs: 300000, WeeklyPresenceMs: 300000, MonthlyPresenceMs: 300000,
		TotalCoinsEarned: 30, DailyCoinsEarned: 30, WeeklyCoinsEarned: 30, MonthlyCoinsEarned: 30,
		At: at,
	}

	mock.ExpectQuery(`(?s)INSERT INTO user_accruals.*ON CONFLICT \(guild_id, user_id\) DO UPDATE SET.*coins = user_accruals.coins \+ EXCLUDED.coins.*RETURNING`).
		WithArgs("g1", "u1", int64(30),
			int64(300000), int64(300000), int64(300000), int64(300000),
			int64(30), int64(30), int64(30), int64(30), at).
		WillReturnRows(sqlmock.NewRows(accrualCols).
			AddRow("g1", "u1", 130, 300000, 300000, 300000, 300000, 30, 30, 30, 30, nil, nil, nil, at))

	got, err := repo.Increment(context.Background(), inc)
	require.NoError(t, err)
	assert.Equal(t, int64(130), got.Coins)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrement_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO user_accruals`).WillReturnError(errors.New("db down"))

	_, err := repo.Increment(context.Background(), models.AccrualIncrement{GuildID: "g1", UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestResetPeriods(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	marks := models.PeriodMarks{
		Day:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Week:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Month:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ResetDaily: true, ResetWeekly: true,
	}

	mock.ExpectExec(`(?s)INSERT INTO user_accruals.*ON CONFLICT.*daily_presence_ms = CASE WHEN \$6`).
		WithArgs("g1", "u1", marks.Day, marks.Week, marks.Month, true, true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetPeriods(context.Background(), "g1", "u1", marks))
	assert.NoError(t, mock.ExpectationsWereMet())
}
