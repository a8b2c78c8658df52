package rating

import (
	"math"

	"albion-mmr/internal/domain"
)

// Factor names as they appear in calculation log rows.
const (
	factorWinLoss              = "win_loss"
	factorFameDifferential     = "fame_differential"
	factorPlayerCount          = "player_count"
	factorItemPower            = "item_power"
	factorBattleSize           = "battle_size"
	factorKDRatio              = "kd_ratio"
	factorDuration             = "duration"
	factorClustering           = "clustering"
	factorOpponentStrength     = "opponent_strength"
	factorAllianceContribution = "alliance_contribution"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// shareScore grades an actual share against an expected one: hitting
// double the expectation scores +1, contributing nothing scores -1.
func shareScore(actual, expected float64) float64 {
	if expected <= 0 {
		return 0
	}
	return clamp((actual-expected)/expected, -1, 1)
}

// avoidScore is shareScore inverted, for stats where less is better.
func avoidScore(actual, expected float64) float64 {
	if expected <= 0 {
		return 0
	}
	return clamp((expected-actual)/expected, -1, 1)
}

func killDeathRatio(kills, deaths int) float64 {
	if deaths == 0 {
		return float64(kills)
	}
	return float64(kills) / float64(deaths)
}

// sideSize is the guild's fighting-side head count: its alliance when
// it has one, otherwise just itself.
func sideSize(g domain.GuildBattleStats, a *domain.BattleAnalysis) int {
	if g.Alliance == "" {
		return g.Players
	}
	return a.AlliancePlayers(g.Alliance)
}

// winLossFactor blends kill share, death avoidance and the two fame
// shares against the guild's player-count proportion, then adjusts for
// battle size and for fighting up or down a side-size gap.
func winLossFactor(g domain.GuildBattleStats, a *domain.BattleAnalysis, enemies []domain.GuildBattleStats) float64 {
	if a.TotalPlayers <= 0 {
		return 0
	}
	expected := float64(g.Players) / float64(a.TotalPlayers)

	var killShare, deathShare, fameGainedShare, fameLostShare float64
	if a.TotalKills > 0 {
		killShare = float64(g.Kills) / float64(a.TotalKills)
	}
	if a.TotalDeaths > 0 {
		deathShare = float64(g.Deaths) / float64(a.TotalDeaths)
	}
	if a.TotalFame > 0 {
		fameGainedShare = float64(g.FameGained) / float64(a.TotalFame)
		fameLostShare = float64(g.FameLost) / float64(a.TotalFame)
	}

	score := winLossKillWeight*shareScore(killShare, expected) +
		winLossDeathWeight*avoidScore(deathShare, expected) +
		winLossFameGainedWeight*shareScore(fameGainedShare, expected) +
		winLossFameLostWeight*avoidScore(fameLostShare, expected)

	switch {
	case a.TotalPlayers < 50:
		score *= 0.7
	case a.TotalPlayers < 100:
		score *= 0.85
	}

	own := sideSize(g, a)
	enemyPlayers := 0
	for _, e := range enemies {
		enemyPlayers += e.Players
	}
	if own > 0 && enemyPlayers > 0 {
		boost := clamp(math.Sqrt(float64(enemyPlayers)/float64(own)), underdogBoostMin, underdogBoostMax)
		if score >= 0 {
			score *= boost
		} else {
			score /= boost
		}
	}

	return clamp(score, -1, 1)
}

func fameDifferentialFactor(g domain.GuildBattleStats, a *domain.BattleAnalysis) float64 {
	if a.TotalFame <= 0 {
		return 0
	}
	return clamp(float64(g.FameGained-g.FameLost)/float64(a.TotalFame), -1, 1)
}

// playerCountFactor rewards fighting outnumbered. The largest side gets
// nothing; smaller contingents earn a tiered bonus.
func playerCountFactor(g domain.GuildBattleStats, a *domain.BattleAnalysis) float64 {
	largest := 0
	for _, h := range a.Guilds {
		if s := sideSize(h, a); s > largest {
			largest = s
		}
	}
	if largest <= 0 {
		return 0
	}
	rel := float64(sideSize(g, a)) / float64(largest)
	switch {
	case rel <= 0.3:
		return 0.5
	case rel <= 0.5:
		return 0.35
	case rel <= 0.7:
		return 0.2
	case rel <= 0.9:
		return 0.1
	default:
		return 0
	}
}

// itemPowerFactor nudges against the geared-up side once average gear
// deviates past the threshold. Guilds without item-power data stay
// neutral.
func itemPowerFactor(g domain.GuildBattleStats, a *domain.BattleAnalysis) float64 {
	if g.AvgItemPower <= 0 {
		return 0
	}
	var weighted float64
	players := 0
	for _, h := range a.Guilds {
		if h.AvgItemPower <= 0 {
			continue
		}
		weighted += h.AvgItemPower * float64(h.Players)
		players += h.Players
	}
	if players == 0 {
		return 0
	}
	battleAvg := weighted / float64(players)
	dev := (g.AvgItemPower - battleAvg) / battleAvg
	switch {
	case dev > itemPowerDeviation:
		return -itemPowerNudge
	case dev < -itemPowerDeviation:
		return itemPowerNudge
	default:
		return 0
	}
}

func battleSizeFactor(a *domain.BattleAnalysis) float64 {
	switch {
	case a.TotalPlayers >= 200:
		return 1.0
	case a.TotalPlayers >= 100:
		return 0.6
	case a.TotalPlayers >= 50:
		return 0.3
	case a.TotalPlayers >= 25:
		return 0.1
	default:
		return 0
	}
}

func kdRatioFactor(g domain.GuildBattleStats) float64 {
	kd := killDeathRatio(g.Kills, g.Deaths)
	switch {
	case kd >= 3.0:
		return 1.0
	case kd >= 2.0:
		return 0.6
	case kd >= 1.5:
		return 0.3
	case kd >= 1.0:
		return 0.1
	case kd >= 0.75:
		return -0.3
	case kd > 0.5:
		return -0.6
	default:
		return -1.0
	}
}

// durationFactor favors decisive engagements over hour-long slogs.
func durationFactor(a *domain.BattleAnalysis) float64 {
	switch {
	case a.DurationMinutes <= 5:
		return 1.0
	case a.DurationMinutes <= 15:
		return 0.5
	case a.DurationMinutes <= 30:
		return 0.2
	case a.DurationMinutes <= 60:
		return 0
	default:
		return -0.7
	}
}

func clusteringFactor(g domain.GuildBattleStats) float64 {
	switch {
	case g.ClusterScore >= 50:
		return 1.0
	case g.ClusterScore >= 20:
		return 0.6
	case g.ClusterScore >= 10:
		return 0.3
	case g.ClusterScore >= 5:
		return 0.1
	default:
		return 0
	}
}

// opponentStrengthFactor rewards beating stronger opposition and
// penalizes stomping weaker guilds. Suppressed for guilds that traded
// badly, so facing giants while feeding earns nothing.
func opponentStrengthFactor(g domain.GuildBattleStats, enemies []domain.GuildBattleStats) float64 {
	if len(enemies) == 0 {
		return 0
	}
	if killDeathRatio(g.Kills, g.Deaths) < 1.0 {
		return 0
	}
	var sum float64
	for _, e := range enemies {
		sum += e.CurrentMMR
	}
	avg := sum / float64(len(enemies))
	return -math.Tanh((g.CurrentMMR - avg) / 100)
}

// allianceContributionFactor compares a guild's output against its
// player share of its own alliance.
func allianceContributionFactor(g domain.GuildBattleStats, a *domain.BattleAnalysis) float64 {
	if g.Alliance == "" {
		return 0
	}
	var kills, deaths int
	var fame int64
	players := 0
	members := 0
	for _, h := range a.Guilds {
		if h.Alliance != g.Alliance {
			continue
		}
		members++
		kills += h.Kills
		deaths += h.Deaths
		fame += h.FameGained
		players += h.Players
	}
	if members < 2 || players == 0 {
		return 0
	}

	playerShare := float64(g.Players) / float64(players)
	var killShare, deathShare, fameShare float64
	if kills > 0 {
		killShare = float64(g.Kills) / float64(kills)
	}
	if deaths > 0 {
		deathShare = float64(g.Deaths) / float64(deaths)
	}
	if fame > 0 {
		fameShare = float64(g.FameGained) / float64(fame)
	}

	blend := allianceKillWeight*shareScore(killShare, playerShare) +
		allianceFameWeight*shareScore(fameShare, playerShare) +
		allianceDeathWeight*avoidScore(deathShare, playerShare)
	if blend < 0 {
		blend *= alliancePenaltyScale
	}
	return clamp(blend, -1, 1)
}
