// Package activity persists historical presence spans.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/dbx"
	"github.com/omega-realm/presence/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.ActivityRecord) error {
	query :=
		`INSERT INTO activity_records (guild_id, user_id, kind, started_at, ended_at, duration_ms,
			room_id, group_id, coins_earned, day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
		 ON CONFLICT (guild_id, user_id, kind, started_at) DO UPDATE SET
			coins_earned = CASE
				WHEN activity_records.kind = 'daily_summary' THEN EXCLUDED.coins_earned
				WHEN EXCLUDED.ended_at > activity_records.ended_at THEN activity_records.coins_earned + EXCLUDED.coins_earned
				ELSE activity_records.coins_earned END,
			duration_ms = CASE
				WHEN activity_records.kind = 'daily_summary' THEN EXCLUDED.duration_ms
				ELSE GREATEST(activity_records.duration_ms, EXCLUDED.duration_ms) END,
			ended_at = GREATEST(activity_records.ended_at, EXCLUDED.ended_at),
			room_id = COALESCE(EXCLUDED.room_id, activity_records.room_id),
			group_id = COALESCE(EXCLUDED.group_id, activity_records.group_id)`

	_, err := r.db.ExecContext(ctx, query,
		rec.GuildID, rec.UserID, rec.Kind, rec.StartedAt, rec.EndedAt, rec.DurationMs,
		rec.RoomID, rec.GroupID, rec.CoinsEarned, rec.Day, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, guildID, userID string, limit int) ([]models.ActivityRecord, error) {
	query :=
		`SELECT guild_id, user_id, kind, started_at, ended_at, duration_ms,
			COALESCE(room_id, ''), COALESCE(group_id, ''), coins_earned, day, created_at
		 FROM activity_records
		 WHERE guild_id = $1 AND user_id = $2
		 ORDER BY started_at DESC
		 LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, guildID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.ActivityRecord
	for rows.Next() {
		var rec models.ActivityRecord
		if err := rows.Scan(&rec.GuildID, &rec.UserID, &rec.Kind, &rec.StartedAt, &rec.EndedAt, &rec.DurationMs,
			&rec.RoomID, &rec.GroupID, &rec.CoinsEarned, &rec.Day, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activity_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
