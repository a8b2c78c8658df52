package repository

import (
	"context"
	"testing"
	"time"

	"albion-mmr/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratingApp(battleID uint64, guildID, seasonID int64, delta float64, win bool, at time.Time) domain.RatingApplication {
	return domain.RatingApplication{
		BattleID:          battleID,
		GuildID:           guildID,
		SeasonID:          seasonID,
		Delta:             delta,
		RawDelta:          delta,
		IsWin:             win,
		AntiFarmingFactor: 1.0,
		Factors: []domain.FactorContribution{
			{Name: "win_loss", Value: 0.8, Weighted: 0.24},
		},
		Opponents: []domain.OpponentRef{
			{GuildID: 99, Name: "Rivals", MMR: 1060},
		},
		CalcVersion: 7,
		FameGained:  2_400_000,
		FameLost:    600_000,
		IsPrimeTime: true,
		BattleAt:    at,
	}
}

func (f *repoFixture) seedGuildAndSeason(t *testing.T, name string, startsAt time.Time) (int64, int64) {
	t.Helper()
	ctx := context.Background()

	g, err := f.guilds.Resolve(ctx, "", name)
	require.NoError(t, err)
	s, err := f.seasons.CreateSeason(ctx, domain.Season{
		Name:     name + " season",
		StartsAt: startsAt,
		Active:   true,
	})
	require.NoError(t, err)
	return g.ID, s.ID
}

func TestApplyRatingFirstBattle(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	guildID, seasonID := f.seedGuildAndSeason(t, "Ravens", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	battleAt := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	gs, err := f.ratings.ApplyRating(ctx, ratingApp(7, guildID, seasonID, 12.5, true, battleAt))
	require.NoError(t, err)

	assert.Equal(t, guildID, gs.GuildID)
	assert.Equal(t, seasonID, gs.SeasonID)
	assert.InDelta(t, 1012.5, gs.MMR, 0.001)
	assert.InDelta(t, 1000.0, gs.CarryoverMMR, 0.001)
	assert.Equal(t, 1, gs.Battles)
	assert.Equal(t, 1, gs.Wins)
	assert.Equal(t, 0, gs.Losses)
	assert.Equal(t, int64(2_400_000), gs.FameGained)
	assert.Equal(t, int64(600_000), gs.FameLost)
	assert.Equal(t, 1, gs.PrimeTimeBattles)
	assert.Equal(t, 1, gs.MMRBattles)
	assert.Equal(t, 1, gs.MMRWins)
	assert.Equal(t, 1, gs.MMRPrimeTimeBattles)
	require.NotNil(t, gs.LastBattleAt)
	assert.WithinDuration(t, battleAt, *gs.LastBattleAt, time.Second)
	require.NotNil(t, gs.LastMMRBattleAt)
	assert.WithinDuration(t, battleAt, *gs.LastMMRBattleAt, time.Second)

	mmr, err := f.seasons.CurrentMMR(ctx, guildID, seasonID)
	require.NoError(t, err)
	assert.InDelta(t, 1012.5, mmr, 0.001)

	logs, err := f.ratings.GetCalculationLogs(ctx, 7)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	log := logs[0]
	assert.NotEmpty(t, log.ID)
	assert.InDelta(t, 1000.0, log.PreviousMMR, 0.001)
	assert.InDelta(t, 12.5, log.Delta, 0.001)
	assert.InDelta(t, 1012.5, log.NewMMR, 0.001)
	assert.True(t, log.IsWin)
	assert.InDelta(t, 1.0, log.AntiFarmingFactor, 0.001)
	assert.Equal(t, 7, log.CalcVersion)
	require.Len(t, log.Factors, 1)
	assert.Equal(t, "win_loss", log.Factors[0].Name)
	assert.InDelta(t, 0.24, log.Factors[0].Weighted, 0.001)
	require.Len(t, log.Opponents, 1)
	assert.Equal(t, "Rivals", log.Opponents[0].Name)
	assert.InDelta(t, 1060.0, log.Opponents[0].MMR, 0.001)
}

func TestApplyRatingDuplicateBattle(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	guildID, seasonID := f.seedGuildAndSeason(t, "Ravens", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	battleAt := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	_, err := f.ratings.ApplyRating(ctx, ratingApp(7, guildID, seasonID, 12.5, true, battleAt))
	require.NoError(t, err)

	// A queue redelivery carries a recomputed delta; it must not land.
	_, err = f.ratings.ApplyRating(ctx, ratingApp(7, guildID, seasonID, -100, false, battleAt))
	assert.ErrorIs(t, err, domain.ErrBattleAlreadyRated)

	gs, err := f.seasons.GetGuildSeason(ctx, guildID, seasonID)
	require.NoError(t, err)
	require.NotNil(t, gs)
	assert.InDelta(t, 1012.5, gs.MMR, 0.001)
	assert.Equal(t, 1, gs.Battles)
	assert.Equal(t, 1, gs.Wins)

	logs, err := f.ratings.GetCalculationLogs(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestApplyRatingAccumulates(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	guildID, seasonID := f.seedGuildAndSeason(t, "Ravens", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	first := time.Date(2026, 3, 12, 21, 0, 0, 0, time.UTC)
	_, err := f.ratings.ApplyRating(ctx, ratingApp(7, guildID, seasonID, 20, true, first))
	require.NoError(t, err)

	// An older battle processed late must not move the last-battle stamp
	// backwards.
	older := ratingApp(8, guildID, seasonID, -5, false, first.Add(-24*time.Hour))
	older.IsPrimeTime = false
	gs, err := f.ratings.ApplyRating(ctx, older)
	require.NoError(t, err)

	assert.InDelta(t, 1015.0, gs.MMR, 0.001)
	assert.Equal(t, 2, gs.Battles)
	assert.Equal(t, 1, gs.Wins)
	assert.Equal(t, 1, gs.Losses)
	assert.Equal(t, int64(4_800_000), gs.FameGained)
	assert.Equal(t, int64(1_200_000), gs.FameLost)
	assert.Equal(t, 1, gs.PrimeTimeBattles)
	require.NotNil(t, gs.LastBattleAt)
	assert.WithinDuration(t, first, *gs.LastBattleAt, time.Second)

	logs, err := f.ratings.GetCalculationLogs(ctx, 8)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.InDelta(t, 1020.0, logs[0].PreviousMMR, 0.001)
	assert.InDelta(t, 1015.0, logs[0].NewMMR, 0.001)
}

func TestApplyRatingFloorsAtZero(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	guildID, seasonID := f.seedGuildAndSeason(t, "Ravens", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	battleAt := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	gs, err := f.ratings.ApplyRating(ctx, ratingApp(7, guildID, seasonID, -2000, false, battleAt))
	require.NoError(t, err)
	assert.Equal(t, 0.0, gs.MMR)

	logs, err := f.ratings.GetCalculationLogs(ctx, 7)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 0.0, logs[0].NewMMR)
}

func TestApplyRatingSeedsFromPriorSeason(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	strong, err := f.guilds.Resolve(ctx, "", "Strong")
	require.NoError(t, err)
	weak, err := f.guilds.Resolve(ctx, "", "Weak")
	require.NoError(t, err)
	fresh, err := f.guilds.Resolve(ctx, "", "Fresh")
	require.NoError(t, err)

	s1, err := f.seasons.CreateSeason(ctx, domain.Season{Name: "Season 1", StartsAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	s2, err := f.seasons.CreateSeason(ctx, domain.Season{Name: "Season 2", StartsAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), Active: true})
	require.NoError(t, err)

	at1 := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	_, err = f.ratings.ApplyRating(ctx, ratingApp(1, strong.ID, s1.ID, 400, true, at1))
	require.NoError(t, err)
	_, err = f.ratings.ApplyRating(ctx, ratingApp(2, weak.ID, s1.ID, -200, false, at1))
	require.NoError(t, err)

	// A quarter of last season's deviation carries forward.
	at2 := time.Date(2026, 6, 10, 21, 0, 0, 0, time.UTC)
	gs, err := f.ratings.ApplyRating(ctx, ratingApp(3, strong.ID, s2.ID, 0, false, at2))
	require.NoError(t, err)
	assert.InDelta(t, 1100.0, gs.CarryoverMMR, 0.001)
	assert.InDelta(t, 1100.0, gs.MMR, 0.001)

	gs, err = f.ratings.ApplyRating(ctx, ratingApp(4, weak.ID, s2.ID, 0, false, at2))
	require.NoError(t, err)
	assert.InDelta(t, 950.0, gs.CarryoverMMR, 0.001)

	// No history means the plain baseline.
	gs, err = f.ratings.ApplyRating(ctx, ratingApp(5, fresh.ID, s2.ID, 0, false, at2))
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, gs.CarryoverMMR, 0.001)
	assert.InDelta(t, 1000.0, gs.MMR, 0.001)
}

func TestRecentWins(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()
	guildID, seasonID := f.seedGuildAndSeason(t, "Ravens", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	ref := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	ages := map[uint64]time.Time{
		301: ref.AddDate(0, 0, -40),
		302: ref.AddDate(0, 0, -10),
		303: ref.AddDate(0, 0, -5),
		304: ref.AddDate(0, 0, -2),
	}
	for id, at := range ages {
		require.NoError(t, f.battles.UpsertBatch(ctx, []domain.Battle{testBattle(id, at)}))
	}

	_, err := f.ratings.ApplyRating(ctx, ratingApp(301, guildID, seasonID, 10, true, ages[301]))
	require.NoError(t, err)
	_, err = f.ratings.ApplyRating(ctx, ratingApp(302, guildID, seasonID, 10, true, ages[302]))
	require.NoError(t, err)
	_, err = f.ratings.ApplyRating(ctx, ratingApp(303, guildID, seasonID, -10, false, ages[303]))
	require.NoError(t, err)
	_, err = f.ratings.ApplyRating(ctx, ratingApp(304, guildID, seasonID, 10, true, ages[304]))
	require.NoError(t, err)

	wins, err := f.ratings.RecentWins(ctx, guildID, seasonID, ref.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, wins, 2)
	assert.Equal(t, uint64(304), wins[0].BattleID)
	assert.Equal(t, uint64(302), wins[1].BattleID)
	for _, w := range wins {
		assert.True(t, w.IsWin)
		require.Len(t, w.Opponents, 1)
		assert.Equal(t, int64(99), w.Opponents[0].GuildID)
	}

	none, err := f.ratings.RecentWins(ctx, guildID+1, seasonID, ref.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Empty(t, none)
}
