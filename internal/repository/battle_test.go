package repository

import (
	"context"
	"testing"
	"time"

	"albion-mmr/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBattle(id uint64, startedAt time.Time) domain.Battle {
	return domain.Battle{
		ID:           id,
		StartedAt:    startedAt,
		TotalFame:    5_000_000,
		TotalKills:   40,
		TotalPlayers: 60,
		Guilds: []domain.BattleGuild{
			{BattleID: id, Name: "Ravens", Alliance: "NORTH", Kills: 30, Deaths: 10, Fame: 3_000_000, Players: 25, AvgItemPower: 1250},
			{BattleID: id, Name: "Wolves", Alliance: "SOUTH", Kills: 10, Deaths: 30, Fame: 1_500_000, Players: 25, AvgItemPower: 1200},
		},
	}
}

func TestBattleUpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewBattleRepository(db, zerolog.Nop())
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Battle{testBattle(42, startedAt)}))

	got, err := repo.GetBattle(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(42), got.ID)
	assert.Equal(t, int64(5_000_000), got.TotalFame)
	assert.Equal(t, 60, got.TotalPlayers)
	assert.WithinDuration(t, startedAt, got.StartedAt, time.Second)
	assert.Nil(t, got.KillsFetchedAt)
	require.Len(t, got.Guilds, 2)

	names := map[string]domain.BattleGuild{}
	for _, g := range got.Guilds {
		names[g.Name] = g
	}
	assert.Equal(t, "NORTH", names["Ravens"].Alliance)
	assert.Equal(t, 30, names["Ravens"].Kills)
	assert.Equal(t, int64(1_500_000), names["Wolves"].Fame)
	assert.InDelta(t, 1200.0, names["Wolves"].AvgItemPower, 0.001)

	unknown, err := repo.GetBattle(ctx, 777)
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestBattleUpsertIsImmutable(t *testing.T) {
	db := newTestDB(t)
	repo := NewBattleRepository(db, zerolog.Nop())
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Battle{testBattle(42, startedAt)}))

	// A re-crawled page reports drifted totals for the same battle.
	mutated := testBattle(42, startedAt)
	mutated.TotalFame = 9_999_999
	mutated.Guilds[0].Kills = 999
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Battle{mutated}))

	got, err := repo.GetBattle(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5_000_000), got.TotalFame)
	for _, g := range got.Guilds {
		if g.Name == "Ravens" {
			assert.Equal(t, 30, g.Kills)
		}
	}
}

func TestBattleKillEvents(t *testing.T) {
	db := newTestDB(t)
	repo := NewBattleRepository(db, zerolog.Nop())
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Battle{testBattle(42, startedAt)}))

	events := []domain.KillEvent{
		{
			ID: 9002, BattleID: 42, Timestamp: startedAt.Add(2 * time.Minute), Fame: 80_000,
			Killer: domain.Participant{Name: "kB", GuildID: "ext-w", Guild: "Wolves", Alliance: "SOUTH", AvgItemPower: 1190},
			Victim: domain.Participant{Name: "vB", Guild: "Ravens", Alliance: "NORTH", AvgItemPower: 1260},
		},
		{
			ID: 9001, BattleID: 42, Timestamp: startedAt.Add(time.Minute), Fame: 120_000,
			Killer: domain.Participant{Name: "kA", GuildID: "ext-r", Guild: "Ravens", Alliance: "NORTH", AvgItemPower: 1240},
			Victim: domain.Participant{Name: "vA", Guild: "Wolves", Alliance: "SOUTH", AvgItemPower: 1210},
		},
	}
	require.NoError(t, repo.StoreKillEvents(ctx, 42, events))

	// Replayed feed must not duplicate events.
	require.NoError(t, repo.StoreKillEvents(ctx, 42, events[:1]))

	got, err := repo.GetKillEvents(ctx, 42)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(9001), got[0].ID)
	assert.Equal(t, uint64(9002), got[1].ID)
	assert.Equal(t, "Ravens", got[0].Killer.Guild)
	assert.Equal(t, "ext-r", got[0].Killer.GuildID)
	assert.Equal(t, int64(120_000), got[0].Fame)
	assert.InDelta(t, 1210.0, got[0].Victim.AvgItemPower, 0.001)

	battle, err := repo.GetBattle(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, battle)
	assert.NotNil(t, battle.KillsFetchedAt)
}

func TestBattlePendingKillFetch(t *testing.T) {
	db := newTestDB(t)
	repo := NewBattleRepository(db, zerolog.Nop())
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Battle{
		testBattle(2, base.Add(time.Hour)),
		testBattle(1, base),
		testBattle(3, base.Add(2*time.Hour)),
	}))

	pending, err := repo.PendingKillFetch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, pending)

	require.NoError(t, repo.StoreKillEvents(ctx, 1, nil))

	pending, err = repo.PendingKillFetch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, pending)

	pending, err = repo.PendingKillFetch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, pending)
}
