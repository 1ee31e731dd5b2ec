package accrual

import (
	"context"
	"testing"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersist_CoinsAndLedger(t *testing.T) {
	h := newHarness(t, 0.1)
	ctx := context.Background()
	start := h.clock.Now()
	now := h.clock.Advance(305 * time.Second)

	res, err := h.writer().Persist(ctx, PersistRequest{
		UserID: "u1", GuildID: "g1", Duration: 305 * time.Second, Session: h.session(start),
	})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(30), res.Coins)
	assert.Equal(t, int64(30), res.BalanceAfter)

	a := h.accrual(t)
	assert.Equal(t, int64(30), a.Coins)
	assert.Equal(t, int64(305000), a.TotalPresenceMs)
	assert.Equal(t, int64(305000), a.DailyPresenceMs)
	assert.Equal(t, int64(30), a.WeeklyCoinsEarned)

	txs, err := h.db.Transactions().ListRecent(ctx, "g1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(30), txs[0].Amount)
	assert.Equal(t, a.Coins, txs[0].BalanceAfter)
	assert.Equal(t, "r1", txs[0].Context.RoomID)
	assert.Equal(t, int64(305000), txs[0].Context.DurationMs)

	recs, err := h.db.Activity().ListByUser(ctx, "g1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActivityKindSession, recs[0].Kind)
	assert.True(t, recs[0].StartedAt.Equal(start))
	assert.True(t, recs[0].EndedAt.Equal(now))

	assert.Empty(t, h.sessions.closed)
}

func TestPersist_BalanceIsCumulativeAcrossPersists(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	w := h.writer()

	for i := 0; i < 3; i++ {
		h.clock.Advance(10 * time.Second)
		_, err := w.Persist(ctx, PersistRequest{UserID: "u1", GuildID: "g1", Duration: 10 * time.Second})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(30), h.accrual(t).Coins)
}

func TestPersist_SplitsRollingCountersAtMidnight(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	// Yesterday's state: markers stamped for 2026-03-04 and some daily totals.
	yesterday := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.db.Accruals().ResetPeriods(ctx, "g1", "u1", models.PeriodMarks{
		Day: yesterday, Week: StartOfWeek(yesterday), Month: StartOfMonth(yesterday),
		ResetDaily: true, ResetWeekly: true, ResetMonthly: true,
	}))
	_, err := h.db.Accruals().Increment(ctx, models.AccrualIncrement{
		GuildID: "g1", UserID: "u1", Coins: 100,
		TotalCoinsEarned: 100, DailyCoinsEarned: 100, WeeklyCoinsEarned: 100, MonthlyCoinsEarned: 100,
		TotalPresenceMs: 100000, DailyPresenceMs: 100000, WeeklyPresenceMs: 100000, MonthlyPresenceMs: 100000,
	})
	require.NoError(t, err)

	midnight := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	start := midnight.Add(-10 * time.Second)
	h.clock.Set(midnight.Add(10 * time.Second))

	res, err := h.writer().Persist(ctx, PersistRequest{
		UserID: "u1", GuildID: "g1", Duration: 20 * time.Second, Session: h.session(start), FinalClose: true,
	})
	require.NoError(t, err)
	assert.Equal(t, Boundaries{Daily: true}, res.Boundaries)

	a := h.accrual(t)
	assert.Equal(t, int64(10), a.DailyCoinsEarned)
	assert.Equal(t, int64(10000), a.DailyPresenceMs)
	assert.Equal(t, int64(120), a.TotalCoinsEarned)
	assert.Equal(t, int64(120000), a.TotalPresenceMs)
	// Same week and month: no split.
	assert.Equal(t, int64(120), a.WeeklyCoinsEarned)
	assert.Equal(t, int64(120), a.MonthlyCoinsEarned)
	require.NotNil(t, a.LastDailyReset)
	assert.True(t, a.LastDailyReset.Equal(midnight))

	recs, err := h.db.Activity().ListByUser(ctx, "g1", "u1", 10)
	require.NoError(t, err)
	var summary *models.ActivityRecord
	for i := range recs {
		if recs[i].Kind == models.ActivityKindDailySummary {
			summary = &recs[i]
		}
	}
	require.NotNil(t, summary, "outgoing day must be archived")
	assert.True(t, summary.Day.Equal(yesterday))
	assert.Equal(t, int64(100), summary.CoinsEarned)
	assert.Equal(t, int64(100000), summary.DurationMs)
}

func TestPersist_SubMillisecondSpanAcrossMidnight(t *testing.T) {
	h := newHarness(t, 1)
	h.deps.Settings = staticSettings{s: models.GuildSettings{CoinsPerSecond: 1, SessionTTL: time.Hour}}
	ctx := context.Background()

	midnight := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	h.clock.Set(midnight.Add(200 * time.Microsecond))
	d := 500 * time.Microsecond

	var res PersistResult
	var err error
	require.NotPanics(t, func() {
		res, err = h.writer().Persist(ctx, PersistRequest{
			UserID: "u1", GuildID: "g1", Duration: d, Session: h.session(h.clock.Now().Add(-d)),
		})
	})
	require.NoError(t, err)
	assert.Zero(t, res.Coins)

	a := h.accrual(t)
	assert.Zero(t, a.DailyPresenceMs)
	assert.Zero(t, a.TotalPresenceMs)
}

func TestPersist_MicroSessionSkippedButRemoved(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	start := h.clock.Now()
	h.clock.Advance(3 * time.Second)

	res, err := h.writer().Persist(ctx, PersistRequest{
		UserID: "u1", GuildID: "g1", Duration: 3 * time.Second, Session: h.session(start), FinalClose: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, err = h.db.Accruals().Get(ctx, "g1", "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	txs, _ := h.db.Transactions().ListRecent(ctx, "g1", "u1", 10)
	assert.Empty(t, txs)
	recs, _ := h.db.Activity().ListByUser(ctx, "g1", "u1", 10)
	assert.Empty(t, recs)
	assert.Equal(t, []string{"g1/u1"}, h.sessions.closed)
}

func TestPersist_InvalidInput(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	w := h.writer()

	_, err := w.Persist(ctx, PersistRequest{UserID: "u1", GuildID: "g1", Duration: 0})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = w.Persist(ctx, PersistRequest{UserID: "u1", GuildID: "g1", Duration: -time.Second})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = w.Persist(ctx, PersistRequest{GuildID: "g1", Duration: time.Minute})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = h.db.Accruals().Get(ctx, "g1", "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, h.sessions.closed)
}

func TestPersist_IncrementFailureAborts(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.deps.Accruals = failingIncrement{h.db.Accruals()}
	h.clock.Advance(time.Minute)

	_, err := h.writer().Persist(ctx, PersistRequest{
		UserID: "u1", GuildID: "g1", Duration: time.Minute, Session: h.session(h.clock.Now()), FinalClose: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)

	txs, _ := h.db.Transactions().ListRecent(ctx, "g1", "u1", 10)
	assert.Empty(t, txs)
	recs, _ := h.db.Activity().ListByUser(ctx, "g1", "u1", 10)
	assert.Empty(t, recs)
	assert.Empty(t, h.sessions.closed, "session stays for the reconciler to retry")
}

func TestPersist_ResetFailureAborts(t *testing.T) {
	h := newHarness(t, 1)
	h.deps.Resets = NewResetManager(h.db.Accruals(), failingResetter{}, h.clock.Now, logging.Discard())

	_, err := h.writer().Persist(context.Background(), PersistRequest{UserID: "u1", GuildID: "g1", Duration: time.Minute})
	require.Error(t, err)
	_, err = h.db.Accruals().Get(context.Background(), "g1", "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPersist_TransactionFailureIsLedgerInconsistency(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	h.deps.Transactions = failingInsert{h.db.Transactions()}

	res, err := h.writer().Persist(ctx, PersistRequest{UserID: "u1", GuildID: "g1", Duration: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.BalanceAfter)
	assert.Equal(t, int64(60), h.accrual(t).Coins)
	assert.Contains(t, h.logs.String(), "ledger inconsistency")
	assert.Contains(t, h.logs.String(), "level=ERROR")

	recs, _ := h.db.Activity().ListByUser(ctx, "g1", "u1", 10)
	assert.Len(t, recs, 1, "history is still written")
}

func TestPersist_MultiplierFallback(t *testing.T) {
	tests := []struct {
		name string
		r    MultiplierResolver
		want int64
	}{
		{"applied", fakeMultiplier{value: 2}, 120},
		{"error", fakeMultiplier{err: errStore}, 60},
		{"panic", fakeMultiplier{panic: true}, 60},
		{"negative", fakeMultiplier{value: -1}, 60},
		{"none", nil, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1)
			h.deps.Multipliers = tt.r

			res, err := h.writer().Persist(context.Background(), PersistRequest{UserID: "u1", GuildID: "g1", Duration: time.Minute})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Coins)
		})
	}
}

func TestPersist_StreakPanicIsolated(t *testing.T) {
	h := newHarness(t, 1)
	h.deps.Streaks = panickyStreaks{}

	res, err := h.writer().Persist(context.Background(), PersistRequest{
		UserID: "u1", GuildID: "g1", Duration: time.Minute, FinalClose: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Coins)
	assert.Equal(t, []string{"g1/u1"}, h.sessions.closed)
	assert.Contains(t, h.logs.String(), "streak update panicked")
}

func TestPersist_FinalCloseUpdatesStreak(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	_, err := h.writer().Persist(ctx, PersistRequest{UserID: "u1", GuildID: "g1", Duration: time.Minute, FinalClose: true})
	require.NoError(t, err)

	s, err := h.db.Streaks().Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Current)
}

func TestPersist_ForwardsGroupPresence(t *testing.T) {
	h := newHarness(t, 1)
	groups := &fakeGroups{err: errStore}
	h.deps.Groups = groups
	sess := h.session(h.clock.Now())
	sess.GroupID = "guild-of-owls"
	h.clock.Advance(time.Minute)

	_, err := h.writer().Persist(context.Background(), PersistRequest{
		UserID: "u1", GuildID: "g1", Duration: time.Minute, Session: sess,
	})
	require.NoError(t, err, "aggregation failure never fails the persist")
	assert.Equal(t, []time.Duration{time.Minute}, groups.calls)
}

func TestPersist_IncrementalFlushesGrowOneRecord(t *testing.T) {
	h := newHarness(t, 0.1)
	ctx := context.Background()
	w := h.writer()
	t0 := h.clock.Now()
	sess := h.session(t0)

	h.clock.Advance(300 * time.Second)
	_, err := w.Persist(ctx, PersistRequest{UserID: "u1", GuildID: "g1", Duration: 300 * time.Second, Session: sess})
	require.NoError(t, err)

	sess.JoinedAt = h.clock.Now()
	h.clock.Advance(10 * time.Second)
	_, err = w.Persist(ctx, PersistRequest{UserID: "u1", GuildID: "g1", Duration: 10 * time.Second, Session: sess, FinalClose: true})
	require.NoError(t, err)

	a := h.accrual(t)
	assert.Equal(t, int64(31), a.TotalCoinsEarned)
	assert.Equal(t, int64(310000), a.TotalPresenceMs)

	recs, err := h.db.Activity().ListByUser(ctx, "g1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(310000), recs[0].DurationMs)
	assert.Equal(t, int64(31), recs[0].CoinsEarned)
}
