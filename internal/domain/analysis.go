package domain

import "time"

// GuildBattleStats is one guild's contribution within a single battle,
// after significance filtering. Transient: built by the analysis engine,
// consumed by the rating engine, never persisted as-is.
type GuildBattleStats struct {
	GuildID      int64
	Name         string
	Alliance     string
	Kills        int
	Deaths       int
	FameGained   int64
	FameLost     int64
	Players      int
	AvgItemPower float64

	// ClusterScore is this guild's kill-clustering score.
	ClusterScore float64

	// CurrentMMR is the guild's season MMR at analysis time. The
	// persistence transaction re-reads the live value at commit.
	CurrentMMR float64
}

// BattleAnalysis is the analysis engine's output for one battle.
type BattleAnalysis struct {
	BattleID  uint64
	StartedAt time.Time
	Season    Season

	// Guilds that passed the significance filter, in summary order.
	Guilds []GuildBattleStats

	TotalPlayers    int
	TotalFame       int64
	TotalKills      int
	TotalDeaths     int
	DurationMinutes float64
	IsPrimeTime     bool

	// ClusterScore is the battle-wide mean of per-guild scores.
	ClusterScore float64

	// FriendGroups are sets of guild names inferred to have fought on
	// the same side (low mutual kill counts).
	FriendGroups [][]string

	// Alliances maps guild name to resolved alliance tag ("" when the
	// guild fought unallied or no source named one).
	Alliances map[string]string
}

// AlliancePlayers sums the players fielded by every analyzed guild in
// the given alliance.
func (a *BattleAnalysis) AlliancePlayers(alliance string) int {
	total := 0
	for _, g := range a.Guilds {
		if g.Alliance == alliance {
			total += g.Players
		}
	}
	return total
}

// Enemies returns every analyzed guild whose alliance differs from the
// given guild's. When neither side has alliance data the guilds count as
// enemies, so a battle without alliances degrades to everyone-vs-everyone.
func (a *BattleAnalysis) Enemies(of GuildBattleStats) []GuildBattleStats {
	enemies := make([]GuildBattleStats, 0, len(a.Guilds)-1)
	for _, g := range a.Guilds {
		if g.Name == of.Name {
			continue
		}
		if of.Alliance != "" && g.Alliance == of.Alliance {
			continue
		}
		enemies = append(enemies, g)
	}
	return enemies
}
