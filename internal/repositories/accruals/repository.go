package accruals

import (
	"context"

	"github.com/omega-realm/presence/internal/models"
)

// Repository stores the durable per-user accrual rows. Increment is the only
// write path for currency and time fields.
type Repository interface {
	Get(ctx context.Context, guildID, userID string) (*models.UserAccrual, error)
	Increment(ctx context.Context, inc models.AccrualIncrement) (*models.UserAccrual, error)
	// ResetPeriods zeroes the flagged rolling counters whose marker is older
	// than the new period start and stamps the markers. It creates the row
	// when missing. Applying the same marks twice is a no-op.
	ResetPeriods(ctx context.Context, guildID, userID string, marks models.PeriodMarks) error
}
