package accrual

import (
	"context"
	"fmt"

	"github.com/omega-realm/presence/internal/logging"
)

// MultiplierResolver returns a dimensionless factor (>= 0) applied to raw
// accrued currency.
type MultiplierResolver interface {
	Multiplier(ctx context.Context, userID, guildID string) (float64, error)
}

// ResolveMultiplier never fails: errors and panics fall back to 1.0.
func ResolveMultiplier(ctx context.Context, r MultiplierResolver, log logging.Logger, userID, guildID string) (m float64) {
	if r == nil {
		return 1.0
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warn(ctx, "multiplier resolver panicked, using 1.0", "user_id", userID, "guild_id", guildID, "panic", fmt.Sprint(p))
			m = 1.0
		}
	}()

	v, err := r.Multiplier(ctx, userID, guildID)
	if err != nil {
		log.Warn(ctx, "multiplier lookup failed, using 1.0", "user_id", userID, "guild_id", guildID, "error", err)
		return 1.0
	}
	return sanitizeMultiplier(v)
}
