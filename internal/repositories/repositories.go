// Package repositories groups the durable stores the engine writes to and
// picks their backend.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/omega-realm/presence/internal/dbx"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/repositories/accruals"
	"github.com/omega-realm/presence/internal/repositories/activity"
	"github.com/omega-realm/presence/internal/repositories/guildsettings"
	"github.com/omega-realm/presence/internal/repositories/memory"
	"github.com/omega-realm/presence/internal/repositories/multipliers"
	"github.com/omega-realm/presence/internal/repositories/streaks"
	"github.com/omega-realm/presence/internal/repositories/transactions"
)

// PeriodResetter archives the outgoing day and zeroes the fired rolling
// counters as one unit.
type PeriodResetter interface {
	ArchiveAndReset(ctx context.Context, guildID, userID string, summary *models.ActivityRecord, marks models.PeriodMarks) error
}

// Set is the full collection of durable stores.
type Set struct {
	Accruals      accruals.Repository
	Activity      activity.Repository
	Transactions  transactions.Repository
	Streaks       streaks.Repository
	GuildSettings guildsettings.Repository
	Multipliers   multipliers.Repository
	Resetter      PeriodResetter
}

// NewPostgres wires every repository over db.
func NewPostgres(db *sql.DB) *Set {
	return &Set{
		Accruals:      accruals.NewPostgresRepository(db),
		Activity:      activity.NewPostgresRepository(db),
		Transactions:  transactions.NewPostgresRepository(db),
		Streaks:       streaks.NewPostgresRepository(db),
		GuildSettings: guildsettings.NewPostgresRepository(db),
		Multipliers:   multipliers.NewPostgresRepository(db),
		Resetter:      &postgresResetter{db: db},
	}
}

// NewMemory wires every repository over one in-memory database.
func NewMemory(db *memory.DB) *Set {
	return &Set{
		Accruals:      db.Accruals(),
		Activity:      db.Activity(),
		Transactions:  db.Transactions(),
		Streaks:       db.Streaks(),
		GuildSettings: db.GuildSettings(),
		Multipliers:   db.Multipliers(),
		Resetter:      db,
	}
}

type postgresResetter struct {
	db *sql.DB
}

func (r *postgresResetter) ArchiveAndReset(ctx context.Context, guildID, userID string, summary *models.ActivityRecord, marks models.PeriodMarks) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if summary != nil {
			if err := activity.NewPostgresRepository(tx).Upsert(ctx, summary); err != nil {
				return fmt.Errorf("archive daily summary: %w", err)
			}
		}
		if err := accruals.NewPostgresRepository(tx).ResetPeriods(ctx, guildID, userID, marks); err != nil {
			return fmt.Errorf("reset periods: %w", err)
		}
		return nil
	})
}
