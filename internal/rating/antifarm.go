package rating

import (
	"context"
	"fmt"
	"time"

	"albion-mmr/internal/domain"
)

// WinHistory reads a guild's winning calculation log rows created since
// the given time. Reads are unlocked; slightly stale data only delays
// farming detection, it never corrupts a rating.
type WinHistory interface {
	RecentWins(ctx context.Context, guildID, seasonID int64, since time.Time) ([]domain.MMRCalculationLog, error)
}

// antiFarmingFactor returns the multiplicative penalty for winning
// again against an already-farmed opponent. The win being rated counts
// toward the total, so the reduction starts on win antiFarmFreeWins+1.
func (e *Engine) antiFarmingFactor(ctx context.Context, guildID, seasonID int64, battleAt time.Time, enemies []domain.GuildBattleStats) (float64, error) {
	since := battleAt.Add(-antiFarmLookback)
	wins, err := e.history.RecentWins(ctx, guildID, seasonID, since)
	if err != nil {
		return 1, fmt.Errorf("load recent wins for guild %d: %w", guildID, err)
	}

	beaten := make(map[int64]int)
	for _, w := range wins {
		seen := make(map[int64]bool, len(w.Opponents))
		for _, op := range w.Opponents {
			if !seen[op.GuildID] {
				beaten[op.GuildID]++
				seen[op.GuildID] = true
			}
		}
	}

	most := 0
	for _, enemy := range enemies {
		if n := beaten[enemy.GuildID] + 1; n > most {
			most = n
		}
	}

	if most <= antiFarmFreeWins {
		return 1, nil
	}
	factor := 1 - float64(most-antiFarmFreeWins)/float64(antiFarmZeroWins-antiFarmFreeWins)
	if factor < 0 {
		factor = 0
	}
	return factor, nil
}
