package streaks

import (
	"context"
	"database/sql"
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

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM streaks WHERE guild_id = \$1 AND user_id = \$2`).
		WithArgs("g1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"guild_id", "user_id", "current_streak", "longest_streak", "last_active_day"}).
			AddRow("g1", "u1", 3, 7, day))

	s, err := repo.Get(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Current)
	assert.Equal(t, 7, s.Longest)
	assert.True(t, s.LastActiveDay.Equal(day))
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM streaks`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "g1", "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)INSERT INTO streaks.*ON CONFLICT \(guild_id, user_id\) DO UPDATE`).
		WithArgs("g1", "u1", 4, 7, day).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Streak{GuildID: "g1", UserID: "u1", Current: 4, Longest: 7, LastActiveDay: day})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
