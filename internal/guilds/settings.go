// Package guilds resolves per-guild engine settings: process defaults with
// stored overrides applied on top, cached for a short TTL.
package guilds

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/config"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/repositories/guildsettings"
)

const cacheSize = 1024

// Provider is read-only from the engine's perspective.
type Provider struct {
	defaults config.Engine
	repo     guildsettings.Repository
	cache    *expirable.LRU[string, models.GuildSettings]
	log      logging.Logger
}

func NewProvider(defaults config.Engine, repo guildsettings.Repository, log logging.Logger) *Provider {
	ttl := defaults.SettingsCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Provider{
		defaults: defaults,
		repo:     repo,
		cache:    expirable.NewLRU[string, models.GuildSettings](cacheSize, nil, ttl),
		log:      log.With("component", "guild_settings"),
	}
}

// Settings never fails: a store error yields the defaults, uncached, so the
// next call retries.
func (p *Provider) Settings(ctx context.Context, guildID string) models.GuildSettings {
	if s, ok := p.cache.Get(guildID); ok {
		return s
	}

	s := p.base(guildID)
	o, err := p.repo.Get(ctx, guildID)
	switch {
	case err == nil:
		apply(&s, o)
	case errors.Is(err, common.ErrNotFound):
	default:
		p.log.Warn(ctx, "guild settings lookup failed, using defaults", "guild_id", guildID, "error", err)
		return s
	}

	p.cache.Add(guildID, s)
	return s
}

// Update stores an override and drops the cached entry.
func (p *Provider) Update(ctx context.Context, o *guildsettings.Override) error {
	if o.GuildID == "" {
		return common.ErrInvalidInput
	}
	if err := p.repo.Upsert(ctx, o); err != nil {
		return err
	}
	p.cache.Remove(o.GuildID)
	return nil
}

func (p *Provider) base(guildID string) models.GuildSettings {
	return models.GuildSettings{
		GuildID:           guildID,
		TrackedCategories: p.defaults.TrackedCategories,
		CoinsPerSecond:    p.defaults.CoinsPerSecond,
		SessionTTL:        p.defaults.SessionTTL,
		MinimumBillable:   p.defaults.MinimumBillable,
		TransferGrace:     p.defaults.TransferGrace,
	}
}

func apply(s *models.GuildSettings, o *guildsettings.Override) {
	if len(o.TrackedCategories) > 0 {
		s.TrackedCategories = o.TrackedCategories
	}
	if o.CoinsPerSecond != nil && *o.CoinsPerSecond >= 0 {
		s.CoinsPerSecond = *o.CoinsPerSecond
	}
	if o.SessionTTL != nil && *o.SessionTTL > 0 {
		s.SessionTTL = *o.SessionTTL
	}
	if o.MinimumBillable != nil && *o.MinimumBillable >= 0 {
		s.MinimumBillable = *o.MinimumBillable
	}
	if o.TransferGrace != nil && *o.TransferGrace >= 0 {
		s.TransferGrace = *o.TransferGrace
	}
}
