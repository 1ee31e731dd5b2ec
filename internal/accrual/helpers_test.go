package accrual

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/repositories/accruals"
	"github.com/omega-realm/presence/internal/repositories/memory"
	"github.com/omega-realm/presence/internal/repositories/transactions"
	"github.com/omega-realm/presence/internal/testfixtures"
)

var errStore = errors.New("store unavailable")

type staticSettings struct {
	s models.GuildSettings
}

func (f staticSettings) Settings(ctx context.Context, guildID string) models.GuildSettings {
	s := f.s
	s.GuildID = guildID
	return s
}

type fakeSessions struct {
	closed []string
}

func (f *fakeSessions) Close(ctx context.Context, userID, guildID string) {
	f.closed = append(f.closed, guildID+"/"+userID)
}

type fakeMultiplier struct {
	value float64
	err   error
	panic bool
}

func (f fakeMultiplier) Multiplier(ctx context.Context, userID, guildID string) (float64, error) {
	if f.panic {
		panic("resolver exploded")
	}
	return f.value, f.err
}

type fakeGroups struct {
	calls []time.Duration
	err   error
}

func (f *fakeGroups) RecordGroupPresence(ctx context.Context, userID, guildID, groupID string, d time.Duration) error {
	f.calls = append(f.calls, d)
	return f.err
}

type panickyStreaks struct{}

func (panickyStreaks) RecordClose(ctx context.Context, userID, guildID string) error {
	panic("streak store corrupted")
}

type failingIncrement struct {
	accruals.Repository
}

func (failingIncrement) Increment(ctx context.Context, inc models.AccrualIncrement) (*models.UserAccrual, error) {
	return nil, errStore
}

type failingInsert struct {
	transactions.Repository
}

func (failingInsert) Insert(ctx context.Context, tx *models.Transaction) error {
	return errStore
}

type failingResetter struct{}

func (failingResetter) ArchiveAndReset(ctx context.Context, guildID, userID string, summary *models.ActivityRecord, marks models.PeriodMarks) error {
	return errStore
}

type harness struct {
	clock    *testfixtures.Clock
	db       *memory.DB
	sessions *fakeSessions
	logs     *bytes.Buffer
	deps     WriterDeps
}

func newHarness(t *testing.T, rate float64) *harness {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	db := memory.New()
	logs := &bytes.Buffer{}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	sessions := &fakeSessions{}

	return &harness{
		clock:    clock,
		db:       db,
		sessions: sessions,
		logs:     logs,
		deps: WriterDeps{
			Accruals:     db.Accruals(),
			Transactions: db.Transactions(),
			Activity:     db.Activity(),
			Settings: staticSettings{s: models.GuildSettings{
				CoinsPerSecond:  rate,
				MinimumBillable: 5 * time.Second,
				TransferGrace:   5 * time.Second,
				SessionTTL:      24 * time.Hour,
			}},
			Resets:   NewResetManager(db.Accruals(), db, clock.Now, logging.Discard()),
			Streaks:  NewStreakUpdater(db.Streaks(), clock.Now),
			Sessions: sessions,
			Now:      clock.Now,
			Log:      log,
		},
	}
}

func (h *harness) writer() *Writer {
	return NewWriter(h.deps)
}

func (h *harness) session(start time.Time) *models.Session {
	return &models.Session{
		UserID: "u1", GuildID: "g1", RoomID: "r1",
		JoinedAt: start, SessionStartTime: start,
	}
}

func (h *harness) accrual(t *testing.T) *models.UserAccrual {
	t.Helper()
	a, err := h.db.Accruals().Get(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("get accrual: %v", err)
	}
	return a
}
