package engine

import (
	"time"

	"github.com/omega-realm/presence/internal/accrual"
	"github.com/omega-realm/presence/internal/config"
	"github.com/omega-realm/presence/internal/guilds"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/presence"
	"github.com/omega-realm/presence/internal/reconciler"
	"github.com/omega-realm/presence/internal/recovery"
	"github.com/omega-realm/presence/internal/repositories"
	"github.com/omega-realm/presence/internal/repositories/multipliers"
	"github.com/omega-realm/presence/internal/sessions"
)

// Stores are the external state the engine runs against.
type Stores struct {
	Repos    *repositories.Set
	Sessions sessions.Store
	// Groups is optional.
	Groups accrual.GroupAggregator
}

// Build wires every component over the given stores and presence tracker.
func Build(cfg config.Engine, stores Stores, tracker *presence.Tracker, now func() time.Time, log logging.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	settings := guilds.NewProvider(cfg, stores.Repos.GuildSettings, log)
	mgr := sessions.NewManager(stores.Sessions, settings, now, log)
	resets := accrual.NewResetManager(stores.Repos.Accruals, stores.Repos.Resetter, now, log)
	resolver := multipliers.NewResolver(stores.Repos.Multipliers, now)

	deps := accrual.WriterDeps{
		Accruals:     stores.Repos.Accruals,
		Transactions: stores.Repos.Transactions,
		Activity:     stores.Repos.Activity,
		Settings:     settings,
		Multipliers:  resolver,
		Resets:       resets,
		Groups:       stores.Groups,
		Streaks:      accrual.NewStreakUpdater(stores.Repos.Streaks, now),
		Sessions:     mgr,
		Now:          now,
		Log:          log,
	}
	writer := accrual.NewWriter(deps)

	return New(Deps{
		Sessions:    mgr,
		Writer:      writer,
		Resets:      resets,
		Settings:    settings,
		Multipliers: resolver,
		Rooms:       tracker,
		Reconciler:  reconciler.New(mgr, writer, tracker, log),
		Recovery:    recovery.New(mgr, tracker, settings, log),
		Log:         log,
	})
}
