package guildsettings

import (
	"context"
	"time"
)

// Override is a stored per-guild settings row. Nil fields fall back to the
// process defaults.
type Override struct {
	GuildID           string
	TrackedCategories []string
	CoinsPerSecond    *float64
	SessionTTL        *time.Duration
	MinimumBillable   *time.Duration
	TransferGrace     *time.Duration
	UpdatedAt         time.Time
}

type Repository interface {
	// Get returns common.ErrNotFound for guilds without overrides.
	Get(ctx context.Context, guildID string) (*Override, error)
	Upsert(ctx context.Context, o *Override) error
}
