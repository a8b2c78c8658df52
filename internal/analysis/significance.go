package analysis

import (
	"albion-mmr/internal/domain"
)

// SignificanceConfig holds every threshold of the participation filter.
// Each criterion compares a relative share against RelativeShare AND an
// absolute value against its floor; floors shrink for small battles and
// for members of the battle's top-fame alliances.
type SignificanceConfig struct {
	// RelativeShare is the minimum share of battle fame, kills+deaths
	// or players a criterion requires.
	RelativeShare float64

	// Absolute floors paired with the three ratio criteria.
	FameFloor        int64
	KillsDeathsFloor int
	PlayersFloor     int

	// SmallBattleKD marks a battle as small when its total kills+deaths
	// is at or below it; SmallBattleScale shrinks the floors there.
	SmallBattleKD    int
	SmallBattleScale float64

	// TopAllianceCount alliances by fame get their floors scaled by
	// TopAllianceScale: large coalitions field many modest contingents.
	TopAllianceCount int
	TopAllianceScale float64

	// Guilds at or below FewPlayersMax players need at least
	// FewPlayersCriteria criteria plus FewPlayersKDFloor kills+deaths.
	FewPlayersMax      int
	FewPlayersCriteria int
	FewPlayersKDFloor  int

	// Single-player guilds must additionally clear both solo floors
	// (scaled down in small battles) or they are dropped outright.
	SoloKillsDeathsFloor int
	SoloFameFloor        int64
}

func DefaultSignificanceConfig() SignificanceConfig {
	return SignificanceConfig{
		RelativeShare:        0.15,
		FameFloor:            1_000_000,
		KillsDeathsFloor:     12,
		PlayersFloor:         2,
		SmallBattleKD:        20,
		SmallBattleScale:     0.45,
		TopAllianceCount:     3,
		TopAllianceScale:     0.5,
		FewPlayersMax:        3,
		FewPlayersCriteria:   2,
		FewPlayersKDFloor:    3,
		SoloKillsDeathsFloor: 8,
		SoloFameFloor:        1_000_000,
	}
}

// Totals are the battle-wide denominators the ratio criteria divide by.
type Totals struct {
	Fame        int64
	KillsDeaths int
	Players     int
}

// Verdict explains one guild's filter outcome.
type Verdict struct {
	Significant bool
	Passed      []string
	Reason      string // set when not significant
}

// Filter decides which guilds participated enough to be rated.
type Filter struct {
	cfg SignificanceConfig
}

func NewFilter(cfg SignificanceConfig) *Filter {
	return &Filter{cfg: cfg}
}

type criterion struct {
	name  string
	check func(g domain.GuildBattleStats, t Totals, scale float64) bool
}

// criteria returns the ordered ratio criteria. A criterion passes only
// when both its relative share and its scaled absolute floor pass.
func (f *Filter) criteria() []criterion {
	cfg := f.cfg
	return []criterion{
		{
			name: "fame",
			check: func(g domain.GuildBattleStats, t Totals, scale float64) bool {
				if t.Fame <= 0 {
					return false
				}
				share := float64(g.FameGained) / float64(t.Fame)
				return share >= cfg.RelativeShare && float64(g.FameGained) >= float64(cfg.FameFloor)*scale
			},
		},
		{
			name: "kills_deaths",
			check: func(g domain.GuildBattleStats, t Totals, scale float64) bool {
				if t.KillsDeaths <= 0 {
					return false
				}
				kd := g.Kills + g.Deaths
				share := float64(kd) / float64(t.KillsDeaths)
				return share >= cfg.RelativeShare && float64(kd) >= float64(cfg.KillsDeathsFloor)*scale
			},
		},
		{
			name: "players",
			check: func(g domain.GuildBattleStats, t Totals, scale float64) bool {
				if t.Players <= 0 {
					return false
				}
				share := float64(g.Players) / float64(t.Players)
				return share >= cfg.RelativeShare && float64(g.Players) >= float64(cfg.PlayersFloor)*scale
			},
		},
	}
}

// floorScale combines the small-battle and top-alliance reductions.
func (f *Filter) floorScale(t Totals, topAlliance bool) float64 {
	scale := 1.0
	if t.KillsDeaths <= f.cfg.SmallBattleKD {
		scale *= f.cfg.SmallBattleScale
	}
	if topAlliance {
		scale *= f.cfg.TopAllianceScale
	}
	return scale
}

// Evaluate runs the ordered predicate list for one guild. topAlliance
// marks membership in one of the battle's highest-fame alliances.
func (f *Filter) Evaluate(g domain.GuildBattleStats, t Totals, topAlliance bool) Verdict {
	scale := f.floorScale(t, topAlliance)

	var passed []string
	for _, c := range f.criteria() {
		if c.check(g, t, scale) {
			passed = append(passed, c.name)
		}
	}

	kd := g.Kills + g.Deaths

	if g.Players <= 1 {
		soloScale := 1.0
		if t.KillsDeaths <= f.cfg.SmallBattleKD {
			soloScale = f.cfg.SmallBattleScale
		}
		if float64(kd) < float64(f.cfg.SoloKillsDeathsFloor)*soloScale ||
			float64(g.FameGained) < float64(f.cfg.SoloFameFloor)*soloScale {
			return Verdict{Passed: passed, Reason: "below solo participation floor"}
		}
	}

	if g.Players <= f.cfg.FewPlayersMax {
		if len(passed) < f.cfg.FewPlayersCriteria {
			return Verdict{Passed: passed, Reason: "too few criteria for a small roster"}
		}
		if kd < f.cfg.FewPlayersKDFloor {
			return Verdict{Passed: passed, Reason: "too few kills and deaths for a small roster"}
		}
		return Verdict{Significant: true, Passed: passed}
	}

	if len(passed) == 0 {
		return Verdict{Passed: passed, Reason: "no participation criterion met"}
	}
	return Verdict{Significant: true, Passed: passed}
}
