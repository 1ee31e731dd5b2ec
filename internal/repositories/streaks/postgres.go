// Package streaks persists consecutive-day presence streaks.
package streaks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Get(ctx context.Context, guildID, userID string) (*models.Streak, error) {
	query :=
		`SELECT guild_id, user_id, current_streak, longest_streak, last_active_day
		 FROM streaks WHERE guild_id = $1 AND user_id = $2`

	var s models.Streak
	err := r.db.QueryRowContext(ctx, query, guildID, userID).
		Scan(&s.GuildID, &s.UserID, &s.Current, &s.Longest, &s.LastActiveDay)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.LastActiveDay = s.LastActiveDay.UTC()
	return &s, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *models.Streak) error {
	query :=
		`INSERT INTO streaks (guild_id, user_id, current_streak, longest_streak, last_active_day)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (guild_id, user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_active_day = EXCLUDED.last_active_day`

	if _, err := r.db.ExecContext(ctx, query, s.GuildID, s.UserID, s.Current, s.Longest, s.LastActiveDay); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
