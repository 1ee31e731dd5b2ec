// Package guildsettings persists per-guild engine overrides.
package guildsettings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, guildID string) (*Override, error) {
	query :=
		`SELECT guild_id, tracked_categories, coins_per_second,
			session_ttl_ms, min_billable_ms, transfer_grace_ms, updated_at
		 FROM guild_settings WHERE guild_id = $1`

	var (
		o                         Override
		rate                      sql.NullFloat64
		ttlMs, minBillMs, graceMs sql.NullInt64
		categories                pq.StringArray
	)
	err := r.db.QueryRowContext(ctx, query, guildID).
		Scan(&o.GuildID, &categories, &rate, &ttlMs, &minBillMs, &graceMs, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	o.TrackedCategories = []string(categories)
	if rate.Valid {
		o.CoinsPerSecond = &rate.Float64
	}
	o.SessionTTL = millis(ttlMs)
	o.MinimumBillable = millis(minBillMs)
	o.TransferGrace = millis(graceMs)
	return &o, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, o *Override) error {
	query :=
		`INSERT INTO guild_settings (guild_id, tracked_categories, coins_per_second,
			session_ttl_ms, min_billable_ms, transfer_grace_ms, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (guild_id) DO UPDATE SET
			tracked_categories = EXCLUDED.tracked_categories,
			coins_per_second = EXCLUDED.coins_per_second,
			session_ttl_ms = EXCLUDED.session_ttl_ms,
			min_billable_ms = EXCLUDED.min_billable_ms,
			transfer_grace_ms = EXCLUDED.transfer_grace_ms,
			updated_at = EXCLUDED.updated_at`

	var rate sql.NullFloat64
	if o.CoinsPerSecond != nil {
		rate = sql.NullFloat64{Float64: *o.CoinsPerSecond, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, o.GuildID, pq.Array(o.TrackedCategories), rate,
		toMillis(o.SessionTTL), toMillis(o.MinimumBillable), toMillis(o.TransferGrace), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func millis(v sql.NullInt64) *time.Duration {
	if !v.Valid {
		return nil
	}
	d := time.Duration(v.Int64) * time.Millisecond
	return &d
}

func toMillis(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: d.Milliseconds(), Valid: true}
}
