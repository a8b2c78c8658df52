// Package season resolves battle timestamps to competitive seasons and
// prime-time windows. Season and window data is injected at construction
// so callers (and tests) control the fixtures; there is no cached
// "current season" singleton.
package season

import (
	"context"
	"time"

	"albion-mmr/internal/domain"

	"github.com/rs/zerolog"
)

// MassStore updates the running prime-time presence average for one
// (guild season, window) pair.
type MassStore interface {
	UpdateMass(ctx context.Context, guildSeasonID, windowID int64, playerCount int) error
}

type Tracker struct {
	seasons []domain.Season
	windows []domain.PrimeTimeWindow
	mass    MassStore
	logger  zerolog.Logger
}

func NewTracker(seasons []domain.Season, windows []domain.PrimeTimeWindow, mass MassStore, logger zerolog.Logger) *Tracker {
	return &Tracker{seasons: seasons, windows: windows, mass: mass, logger: logger}
}

// ResolveSeason returns the season whose [start, end) range contains ts.
// An open season (nil EndsAt) runs until now. Returns nil when no season
// matches.
func (t *Tracker) ResolveSeason(ts time.Time) *domain.Season {
	for i := range t.seasons {
		s := &t.seasons[i]
		if ts.Before(s.StartsAt) {
			continue
		}
		end := time.Now()
		if s.EndsAt != nil {
			end = *s.EndsAt
		}
		if ts.Before(end) {
			return s
		}
	}
	return nil
}

// IsPrimeTime reports whether the UTC hour of ts falls inside any
// configured window. Windows may wrap past midnight: startHour 22,
// endHour 2 covers 22, 23, 0 and 1.
func (t *Tracker) IsPrimeTime(ts time.Time) bool {
	_, ok := t.MatchWindow(ts)
	return ok
}

// MatchWindow returns the first window containing the UTC hour of ts.
func (t *Tracker) MatchWindow(ts time.Time) (*domain.PrimeTimeWindow, bool) {
	hour := ts.UTC().Hour()
	for i := range t.windows {
		w := &t.windows[i]
		if hourInWindow(hour, w.StartHour, w.EndHour) {
			return w, true
		}
	}
	return nil, false
}

func hourInWindow(hour, start, end int) bool {
	if start == end {
		return hour == start
	}
	if end < start {
		// wraps past midnight
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

// UpdateMass blends playerCount into the guild's running average for the
// window containing battleTime. No-ops when the battle was outside every
// window. New average = (oldAvg*oldCount + playerCount) / (oldCount+1).
func (t *Tracker) UpdateMass(ctx context.Context, guildSeasonID int64, playerCount int, battleTime time.Time) error {
	w, ok := t.MatchWindow(battleTime)
	if !ok {
		return nil
	}
	if err := t.mass.UpdateMass(ctx, guildSeasonID, w.ID, playerCount); err != nil {
		return err
	}
	t.logger.Debug().
		Int64("guild_season_id", guildSeasonID).
		Int64("window_id", w.ID).
		Int("player_count", playerCount).
		Msg("prime time mass updated")
	return nil
}
