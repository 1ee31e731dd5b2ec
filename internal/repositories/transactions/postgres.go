// Package transactions persists the currency ledger.
package transactions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/omega-realm/presence/internal/dbx"
	"github.com/omega-realm/presence/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	var metadata []byte
	if len(tx.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query :=
		`INSERT INTO transactions (id, guild_id, user_id, kind, amount, balance_after,
			duration_ms, room_id, group_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.GuildID, tx.UserID, tx.Kind, tx.Amount, tx.BalanceAfter,
		tx.Context.DurationMs, tx.Context.RoomID, tx.Context.GroupID, metadata, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, guildID, userID string, limit int) ([]models.Transaction, error) {
	query :=
		`SELECT id, guild_id, user_id, kind, amount, balance_after, duration_ms,
			COALESCE(room_id, ''), COALESCE(group_id, ''), metadata, created_at
		 FROM transactions
		 WHERE guild_id = $1 AND user_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, guildID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			t        models.Transaction
			metadata []byte
		)
		if err := rows.Scan(&t.ID, &t.GuildID, &t.UserID, &t.Kind, &t.Amount, &t.BalanceAfter,
			&t.Context.DurationMs, &t.Context.RoomID, &t.Context.GroupID, &metadata, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
