package rating

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"albion-mmr/internal/domain"
	"albion-mmr/internal/season"
)

// Store runs the claim-and-mutate transaction: create the calculation
// log row for (battle, guild, season) and update the guild's season
// record atomically, or return domain.ErrBattleAlreadyRated untouched.
type Store interface {
	ApplyRating(ctx context.Context, app domain.RatingApplication) (domain.GuildSeason, error)
}

// GuildDelta is one guild's computed rating change for one battle.
type GuildDelta struct {
	GuildID int64
	Delta   float64

	// RawDelta is the delta before the anti-farming reduction.
	RawDelta          float64
	IsWin             bool
	AntiFarmingFactor float64

	Factors   []domain.FactorContribution
	Opponents []domain.OpponentRef
}

// Engine turns battle analyses into bounded MMR deltas and persists
// them through the claim-and-mutate store.
type Engine struct {
	store   Store
	history WinHistory
	tracker *season.Tracker
	logger  zerolog.Logger
}

func NewEngine(store Store, history WinHistory, tracker *season.Tracker, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		history: history,
		tracker: tracker,
		logger:  logger.With().Str("component", "rating").Logger(),
	}
}

// CalculateDeltas computes a delta for every analyzed guild that has at
// least one enemy. Guilds whose survivors are all allies are skipped.
func (e *Engine) CalculateDeltas(ctx context.Context, a *domain.BattleAnalysis) (map[int64]GuildDelta, error) {
	deltas := make(map[int64]GuildDelta, len(a.Guilds))
	for _, g := range a.Guilds {
		enemies := a.Enemies(g)
		if len(enemies) == 0 {
			e.logger.Debug().
				Uint64("battle_id", a.BattleID).
				Str("guild", g.Name).
				Msg("no enemies in battle, skipping rating")
			continue
		}
		d, err := e.calculate(ctx, g, a, enemies)
		if err != nil {
			return nil, err
		}
		deltas[g.GuildID] = d
	}
	return deltas, nil
}

func (e *Engine) calculate(ctx context.Context, g domain.GuildBattleStats, a *domain.BattleAnalysis, enemies []domain.GuildBattleStats) (GuildDelta, error) {
	wl := winLossFactor(g, a, enemies)
	fd := fameDifferentialFactor(g, a)
	pc := playerCountFactor(g, a)
	ip := itemPowerFactor(g, a)
	bs := battleSizeFactor(a)
	kd := kdRatioFactor(g)
	du := durationFactor(a)
	cl := clusteringFactor(g)
	op := opponentStrengthFactor(g, enemies)
	ac := allianceContributionFactor(g, a)

	factors := []domain.FactorContribution{
		{Name: factorWinLoss, Value: wl, Weighted: wl * weightWinLoss},
		{Name: factorFameDifferential, Value: fd, Weighted: fd * weightFameDifferential},
		{Name: factorPlayerCount, Value: pc, Weighted: pc * weightPlayerCount},
		{Name: factorItemPower, Value: ip, Weighted: ip * weightItemPower},
		{Name: factorBattleSize, Value: bs, Weighted: bs * weightBattleSize},
		{Name: factorKDRatio, Value: kd, Weighted: kd * weightKDRatio},
		{Name: factorDuration, Value: du, Weighted: du * weightDuration},
		{Name: factorClustering, Value: cl, Weighted: cl * weightClustering},
		{Name: factorOpponentStrength, Value: op, Weighted: op * weightOpponentStrength},
		{Name: factorAllianceContribution, Value: ac, Weighted: ac * weightAllianceContribution},
	}
	var sum float64
	for _, f := range factors {
		sum += f.Weighted
	}

	delta := sum * kFactor(g.CurrentMMR) * playerScale(g.Players)
	isWin := wl > 0

	// Invariants, in order: easy-win cap, win floor, loss cap, and the
	// guarantee that a positive trade never loses rating.
	if isWin && delta > easyWinCap {
		delta = easyWinCap
	}
	if isWin && delta < 0 {
		delta = 0
	}
	if !isWin && delta > 0 {
		delta = 0
	}
	if delta < 0 && killDeathRatio(g.Kills, g.Deaths) >= 1.0 && g.FameGained > g.FameLost {
		delta = 0
	}

	if isWin && delta > 0 && lowPowerFarm(enemies) {
		delta *= lowIPPenalty
		if delta > lowIPDeltaCap {
			delta = lowIPDeltaCap
		}
		e.logger.Debug().
			Uint64("battle_id", a.BattleID).
			Str("guild", g.Name).
			Msg("low item power enemies, win devalued")
	}

	raw := delta
	aff := 1.0
	if isWin && delta > 0 {
		f, err := e.antiFarmingFactor(ctx, g.GuildID, a.Season.ID, a.StartedAt, enemies)
		if err != nil {
			return GuildDelta{}, err
		}
		aff = f
		delta *= aff
	}

	opponents := make([]domain.OpponentRef, 0, len(enemies))
	for _, en := range enemies {
		opponents = append(opponents, domain.OpponentRef{GuildID: en.GuildID, Name: en.Name, MMR: en.CurrentMMR})
	}

	return GuildDelta{
		GuildID:           g.GuildID,
		Delta:             delta,
		RawDelta:          raw,
		IsWin:             isWin,
		AntiFarmingFactor: aff,
		Factors:           factors,
		Opponents:         opponents,
	}, nil
}

// ApplyDelta persists one guild's delta. Re-applying the same battle is
// a silent no-op. Prime-time mass is updated after the commit and never
// fails the rating.
func (e *Engine) ApplyDelta(ctx context.Context, a *domain.BattleAnalysis, g domain.GuildBattleStats, d GuildDelta) error {
	app := domain.RatingApplication{
		BattleID:          a.BattleID,
		GuildID:           g.GuildID,
		SeasonID:          a.Season.ID,
		Delta:             d.Delta,
		RawDelta:          d.RawDelta,
		IsWin:             d.IsWin,
		AntiFarmingFactor: d.AntiFarmingFactor,
		Factors:           d.Factors,
		Opponents:         d.Opponents,
		CalcVersion:       CalcVersion,
		FameGained:        g.FameGained,
		FameLost:          g.FameLost,
		IsPrimeTime:       a.IsPrimeTime,
		BattleAt:          a.StartedAt,
	}

	gs, err := e.store.ApplyRating(ctx, app)
	if errors.Is(err, domain.ErrBattleAlreadyRated) {
		e.logger.Debug().
			Uint64("battle_id", a.BattleID).
			Int64("guild_id", g.GuildID).
			Msg("rating already applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply rating for guild %d in battle %d: %w", g.GuildID, a.BattleID, err)
	}

	e.logger.Info().
		Uint64("battle_id", a.BattleID).
		Int64("guild_id", g.GuildID).
		Bool("win", d.IsWin).
		Float64("delta", d.Delta).
		Float64("mmr", gs.MMR).
		Msg("rating applied")

	if err := e.tracker.UpdateMass(ctx, gs.ID, g.Players, a.StartedAt); err != nil {
		e.logger.Warn().
			Err(err).
			Int64("guild_season_id", gs.ID).
			Msg("prime time mass update failed")
	}
	return nil
}

// lowPowerFarm reports whether most enemies sit below the low
// item-power threshold. Enemies without gear data do not count.
func lowPowerFarm(enemies []domain.GuildBattleStats) bool {
	if len(enemies) == 0 {
		return false
	}
	low := 0
	for _, en := range enemies {
		if en.AvgItemPower > 0 && en.AvgItemPower < lowIPThreshold {
			low++
		}
	}
	return float64(low)/float64(len(enemies)) >= lowIPEnemyShare
}

// kFactor shrinks geometrically as MMR rises above baseline.
func kFactor(mmr float64) float64 {
	decay := math.Pow(kDecayPer100MMR, (mmr-domain.MMRBaseline)/100)
	if decay < kFactorFloor {
		decay = kFactorFloor
	}
	return baseKFactor * decay
}

// playerScale reduces credit for small rosters. Full credit starts at
// fullCreditPlayers.
func playerScale(players int) float64 {
	if players >= fullCreditPlayers {
		return 1
	}
	s := math.Pow(float64(players)/fullCreditPlayers, playerScaleExp)
	if s < playerScaleFloor {
		s = playerScaleFloor
	}
	return s
}
