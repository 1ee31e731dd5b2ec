// Package multipliers stores accrual multiplier effects and resolves the
// combined value for a user.
package multipliers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Active(ctx context.Context, guildID, userID string, at time.Time) ([]Multiplier, error) {
	query :=
		`SELECT guild_id, user_id, source, multiplier, expires_at
		 FROM user_multipliers
		 WHERE guild_id = $1 AND user_id = $2 AND (expires_at IS NULL OR expires_at > $3)`

	rows, err := r.db.QueryContext(ctx, query, guildID, userID, at)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []Multiplier
	for rows.Next() {
		var (
			m       Multiplier
			expires sql.NullTime
		)
		if err := rows.Scan(&m.GuildID, &m.UserID, &m.Source, &m.Value, &expires); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if expires.Valid {
			t := expires.Time.UTC()
			m.ExpiresAt = &t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, m Multiplier) error {
	query :=
		`INSERT INTO user_multipliers (guild_id, user_id, source, multiplier, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (guild_id, user_id, source) DO UPDATE SET
			multiplier = EXCLUDED.multiplier,
			expires_at = EXCLUDED.expires_at`

	var expires sql.NullTime
	if m.ExpiresAt != nil {
		expires = sql.NullTime{Time: *m.ExpiresAt, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, m.GuildID, m.UserID, m.Source, m.Value, expires); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
