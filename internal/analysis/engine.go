package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"albion-mmr/internal/domain"
	"albion-mmr/internal/season"
)

// Battles below either floor are ignored entirely.
const (
	minBattlePlayers = 25
	minBattleFame    = 2_000_000
)

// defaultDurationMinutes stands in when a battle has fewer than two
// kill events to measure between.
const defaultDurationMinutes = 30.0

// GuildDirectory resolves upstream guild identity to the stable local
// record, creating it on first observation.
type GuildDirectory interface {
	Resolve(ctx context.Context, externalID, name string) (domain.Guild, error)
}

// RatingReader reads a guild's current season MMR, returning the
// baseline when the guild has no record yet.
type RatingReader interface {
	CurrentMMR(ctx context.Context, guildID, seasonID int64) (float64, error)
}

// Engine reconstructs per-guild battle participation from the raw
// battle summary and its kill feed.
type Engine struct {
	tracker *season.Tracker
	guilds  GuildDirectory
	ratings RatingReader
	filter  *Filter
	logger  zerolog.Logger
}

func NewEngine(tracker *season.Tracker, guilds GuildDirectory, ratings RatingReader, logger zerolog.Logger) *Engine {
	return &Engine{
		tracker: tracker,
		guilds:  guilds,
		ratings: ratings,
		filter:  NewFilter(DefaultSignificanceConfig()),
		logger:  logger.With().Str("component", "analysis").Logger(),
	}
}

// CreateAnalysis builds the rating input for one battle. It returns
// (nil, nil) when the battle is ineligible: too small, outside any
// season, or with fewer than two significant guilds.
func (e *Engine) CreateAnalysis(ctx context.Context, battle *domain.Battle, kills []domain.KillEvent) (*domain.BattleAnalysis, error) {
	if battle.TotalPlayers < minBattlePlayers || battle.TotalFame < minBattleFame {
		e.logger.Debug().
			Uint64("battle_id", battle.ID).
			Int("players", battle.TotalPlayers).
			Int64("fame", battle.TotalFame).
			Msg("battle below eligibility floor")
		return nil, nil
	}

	sn := e.tracker.ResolveSeason(battle.StartedAt)
	if sn == nil {
		e.logger.Debug().
			Uint64("battle_id", battle.ID).
			Time("started_at", battle.StartedAt).
			Msg("battle outside any season")
		return nil, nil
	}

	fameLost := make(map[string]int64)
	for _, k := range kills {
		if k.Victim.Guild != "" {
			fameLost[k.Victim.Guild] += k.Fame
		}
	}

	alliances := allianceMap(battle, kills)

	totals := Totals{Fame: battle.TotalFame, Players: battle.TotalPlayers}
	for _, g := range battle.Guilds {
		totals.KillsDeaths += g.Kills + g.Deaths
	}
	top := topAlliances(battle.Guilds, alliances, e.filter.cfg.TopAllianceCount)

	var guilds []domain.GuildBattleStats
	for _, g := range battle.Guilds {
		stats := domain.GuildBattleStats{
			Name:         g.Name,
			Alliance:     alliances[g.Name],
			Kills:        g.Kills,
			Deaths:       g.Deaths,
			FameGained:   g.Fame,
			FameLost:     fameLost[g.Name],
			Players:      g.Players,
			AvgItemPower: g.AvgItemPower,
		}
		verdict := e.filter.Evaluate(stats, totals, top[stats.Alliance])
		if !verdict.Significant {
			e.logger.Debug().
				Uint64("battle_id", battle.ID).
				Str("guild", g.Name).
				Str("reason", verdict.Reason).
				Msg("guild filtered from battle")
			continue
		}
		guilds = append(guilds, stats)
	}

	if len(guilds) < 2 {
		e.logger.Debug().
			Uint64("battle_id", battle.ID).
			Int("significant_guilds", len(guilds)).
			Msg("not enough significant guilds to rate")
		return nil, nil
	}

	clusterScores := ClusterScores(kills)
	var clusterSum float64
	for i := range guilds {
		guilds[i].ClusterScore = clusterScores[guilds[i].Name]
		clusterSum += guilds[i].ClusterScore
	}

	externalIDs := guildExternalIDs(kills)
	for i := range guilds {
		g, err := e.guilds.Resolve(ctx, externalIDs[guilds[i].Name], guilds[i].Name)
		if err != nil {
			return nil, fmt.Errorf("resolve guild %q: %w", guilds[i].Name, err)
		}
		guilds[i].GuildID = g.ID

		mmr, err := e.ratings.CurrentMMR(ctx, g.ID, sn.ID)
		if err != nil {
			return nil, fmt.Errorf("read mmr for guild %q: %w", guilds[i].Name, err)
		}
		guilds[i].CurrentMMR = mmr
	}

	killTotals := make(map[string]int, len(battle.Guilds))
	totalDeaths := 0
	for _, g := range battle.Guilds {
		killTotals[g.Name] = g.Kills
		totalDeaths += g.Deaths
	}

	analysis := &domain.BattleAnalysis{
		BattleID:        battle.ID,
		StartedAt:       battle.StartedAt,
		Season:          *sn,
		Guilds:          guilds,
		TotalPlayers:    battle.TotalPlayers,
		TotalFame:       battle.TotalFame,
		TotalKills:      battle.TotalKills,
		TotalDeaths:     totalDeaths,
		DurationMinutes: battleDuration(kills),
		IsPrimeTime:     e.tracker.IsPrimeTime(battle.StartedAt),
		ClusterScore:    clusterSum / float64(len(guilds)),
		FriendGroups:    FriendGroups(kills, killTotals),
		Alliances:       alliances,
	}

	e.logger.Info().
		Uint64("battle_id", battle.ID).
		Int64("season_id", sn.ID).
		Int("guilds", len(guilds)).
		Float64("duration_min", analysis.DurationMinutes).
		Bool("prime_time", analysis.IsPrimeTime).
		Msg("battle analyzed")
	return analysis, nil
}

// allianceMap resolves each guild's alliance tag, preferring the battle
// summary and falling back to kill participants.
func allianceMap(battle *domain.Battle, kills []domain.KillEvent) map[string]string {
	alliances := make(map[string]string, len(battle.Guilds))
	for _, g := range battle.Guilds {
		alliances[g.Name] = g.Alliance
	}
	fill := func(p domain.Participant) {
		if p.Guild == "" || p.Alliance == "" {
			return
		}
		if alliances[p.Guild] == "" {
			alliances[p.Guild] = p.Alliance
		}
	}
	for _, k := range kills {
		fill(k.Killer)
		fill(k.Victim)
	}
	return alliances
}

// guildExternalIDs maps guild names to the upstream guild identifier
// observed on any kill participant.
func guildExternalIDs(kills []domain.KillEvent) map[string]string {
	ids := make(map[string]string)
	record := func(p domain.Participant) {
		if p.Guild == "" || p.GuildID == "" {
			return
		}
		if ids[p.Guild] == "" {
			ids[p.Guild] = p.GuildID
		}
	}
	for _, k := range kills {
		record(k.Killer)
		record(k.Victim)
	}
	return ids
}

// topAlliances returns the n alliances with the most summary fame.
func topAlliances(guilds []domain.BattleGuild, alliances map[string]string, n int) map[string]bool {
	fame := make(map[string]int64)
	for _, g := range guilds {
		if a := alliances[g.Name]; a != "" {
			fame[a] += g.Fame
		}
	}
	names := make([]string, 0, len(fame))
	for a := range fame {
		names = append(names, a)
	}
	sort.Slice(names, func(i, j int) bool {
		if fame[names[i]] != fame[names[j]] {
			return fame[names[i]] > fame[names[j]]
		}
		return names[i] < names[j]
	})
	top := make(map[string]bool, n)
	for i, a := range names {
		if i >= n {
			break
		}
		top[a] = true
	}
	return top
}

// battleDuration measures minutes between the first and last kill,
// clamped to at least one minute. With fewer than two kills the
// duration is unknowable and a fixed default applies.
func battleDuration(kills []domain.KillEvent) float64 {
	if len(kills) < 2 {
		return defaultDurationMinutes
	}
	first, last := kills[0].Timestamp, kills[0].Timestamp
	for _, k := range kills[1:] {
		if k.Timestamp.Before(first) {
			first = k.Timestamp
		}
		if k.Timestamp.After(last) {
			last = k.Timestamp
		}
	}
	minutes := last.Sub(first).Minutes()
	if minutes < 1 {
		return 1
	}
	return minutes
}
