package guildsettings

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/omega-realm/presence/internal/common"
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

func TestGet_PartialOverride(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM guild_settings WHERE guild_id = \$1`).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"guild_id", "tracked_categories", "coins_per_second",
			"session_ttl_ms", "min_billable_ms", "transfer_grace_ms", "updated_at"}).
			AddRow("g1", []byte(`{cat1,cat2}`), 0.5, nil, 3000, nil, at))

	o, err := repo.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat1", "cat2"}, o.TrackedCategories)
	require.NotNil(t, o.CoinsPerSecond)
	assert.Equal(t, 0.5, *o.CoinsPerSecond)
	assert.Nil(t, o.SessionTTL)
	require.NotNil(t, o.MinimumBillable)
	assert.Equal(t, 3*time.Second, *o.MinimumBillable)
	assert.Nil(t, o.TransferGrace)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM guild_settings`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "g1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	rate := 0.2
	grace := 10 * time.Second
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)INSERT INTO guild_settings.*ON CONFLICT \(guild_id\) DO UPDATE`).
		WithArgs("g1", sqlmock.AnyArg(), 0.2, nil, nil, int64(10000), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &Override{
		GuildID:           "g1",
		TrackedCategories: []string{"cat1"},
		CoinsPerSecond:    &rate,
		TransferGrace:     &grace,
		UpdatedAt:         at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
