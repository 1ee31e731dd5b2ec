package accrual

import (
	"context"
	"errors"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/repositories/streaks"
)

// StreakUpdater maintains consecutive UTC days with a closed session.
type StreakUpdater struct {
	repo streaks.Repository
	now  func() time.Time
}

func NewStreakUpdater(repo streaks.Repository, now func() time.Time) *StreakUpdater {
	if now == nil {
		now = time.Now
	}
	return &StreakUpdater{repo: repo, now: now}
}

func (u *StreakUpdater) RecordClose(ctx context.Context, userID, guildID string) error {
	today := StartOfDay(u.now())

	s, err := u.repo.Get(ctx, guildID, userID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		s = &models.Streak{GuildID: guildID, UserID: userID}
	}

	last := StartOfDay(s.LastActiveDay)
	switch {
	case s.Current > 0 && last.Equal(today):
		return nil
	case s.Current > 0 && last.AddDate(0, 0, 1).Equal(today):
		s.Current++
	default:
		s.Current = 1
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.LastActiveDay = today
	return u.repo.Upsert(ctx, s)
}
