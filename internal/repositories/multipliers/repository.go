package multipliers

import (
	"context"
	"time"
)

// Multiplier is one active effect on a user's accrual. Effects from
// different sources stack multiplicatively.
type Multiplier struct {
	GuildID   string
	UserID    string
	Source    string
	Value     float64
	ExpiresAt *time.Time
}

type Repository interface {
	// Active returns the effects that have not expired at the given time.
	Active(ctx context.Context, guildID, userID string, at time.Time) ([]Multiplier, error)
	Upsert(ctx context.Context, m Multiplier) error
}
