package multipliers

import (
	"context"
	"time"
)

// Resolver combines a user's active effects into one value.
type Resolver struct {
	repo Repository
	now  func() time.Time
}

func NewResolver(repo Repository, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{repo: repo, now: now}
}

// Multiplier returns the product of the active effects, or 1.0 when there
// are none.
func (r *Resolver) Multiplier(ctx context.Context, userID, guildID string) (float64, error) {
	active, err := r.repo.Active(ctx, guildID, userID, r.now())
	if err != nil {
		return 0, err
	}
	product := 1.0
	for _, m := range active {
		product *= m.Value
	}
	return product, nil
}
