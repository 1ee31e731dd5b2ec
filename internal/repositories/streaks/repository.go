package streaks

import (
	"context"

	"github.com/omega-realm/presence/internal/models"
)

type Repository interface {
	// Get returns common.ErrNotFound for users without a streak.
	Get(ctx context.Context, guildID, userID string) (*models.Streak, error)
	Upsert(ctx context.Context, s *models.Streak) error
}
