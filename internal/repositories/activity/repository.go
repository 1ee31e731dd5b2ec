package activity

import (
	"context"
	"time"

	"github.com/omega-realm/presence/internal/models"
)

// Repository stores historical activity spans and daily summaries.
type Repository interface {
	// Upsert is idempotent on (guild, user, kind, start). Session spans grow:
	// the end moves forward and coins are added only for a later end.
	// Summaries are overwritten.
	Upsert(ctx context.Context, rec *models.ActivityRecord) error
	ListByUser(ctx context.Context, guildID, userID string, limit int) ([]models.ActivityRecord, error)
	// Prune deletes records created before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
