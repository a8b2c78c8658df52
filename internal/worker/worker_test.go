package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"albion-mmr/internal/api"
	"albion-mmr/internal/domain"
	"albion-mmr/internal/queue"
	"albion-mmr/internal/rating"
)

type fakeFetcher struct {
	pages   map[int][]api.Battle
	detail  map[uint64]*api.Battle
	kills   map[uint64][]api.KillEvent
	killErr map[uint64]error
	slow    bool

	detailCalls int
	killCalls   int
}

func (f *fakeFetcher) FetchBattlesPage(_ context.Context, page, _ int) ([]api.Battle, error) {
	return f.pages[page], nil
}

func (f *fakeFetcher) FetchBattleDetail(_ context.Context, id uint64) (*api.Battle, error) {
	f.detailCalls++
	if b, ok := f.detail[id]; ok {
		return b, nil
	}
	return nil, &api.StatusError{Endpoint: "battle detail", Code: 404}
}

func (f *fakeFetcher) FetchKills(_ context.Context, id uint64) ([]api.KillEvent, error) {
	f.killCalls++
	if err := f.killErr[id]; err != nil {
		return nil, err
	}
	return f.kills[id], nil
}

func (f *fakeFetcher) ShouldSlowDown() bool { return f.slow }

// fakeStore keeps battles in memory and mirrors the real store's
// pending-kill bookkeeping: upserted battles are pending until their
// kill feed is stored.
type fakeStore struct {
	battles map[uint64]*domain.Battle
	kills   map[uint64][]domain.KillEvent
	pending []uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		battles: map[uint64]*domain.Battle{},
		kills:   map[uint64][]domain.KillEvent{},
	}
}

func (s *fakeStore) UpsertBatch(_ context.Context, battles []domain.Battle) error {
	for i := range battles {
		b := battles[i]
		if _, ok := s.battles[b.ID]; ok {
			continue
		}
		s.battles[b.ID] = &b
		s.pending = append(s.pending, b.ID)
	}
	return nil
}

func (s *fakeStore) PendingKillFetch(_ context.Context, limit int) ([]uint64, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) StoreKillEvents(_ context.Context, battleID uint64, events []domain.KillEvent) error {
	s.kills[battleID] = events
	if b, ok := s.battles[battleID]; ok {
		now := time.Now()
		b.KillsFetchedAt = &now
	}
	remaining := make([]uint64, 0, len(s.pending))
	for _, id := range s.pending {
		if id != battleID {
			remaining = append(remaining, id)
		}
	}
	s.pending = remaining
	return nil
}

func (s *fakeStore) GetBattle(_ context.Context, battleID uint64) (*domain.Battle, error) {
	b, ok := s.battles[battleID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) GetKillEvents(_ context.Context, battleID uint64) ([]domain.KillEvent, error) {
	return s.kills[battleID], nil
}

type fakeTransport struct {
	enqueued []uint64
	retried  []queue.Job
}

func (q *fakeTransport) Enqueue(_ context.Context, battleID uint64) error {
	q.enqueued = append(q.enqueued, battleID)
	return nil
}

func (q *fakeTransport) Dequeue(ctx context.Context) (queue.Job, error) {
	<-ctx.Done()
	return queue.Job{}, ctx.Err()
}

func (q *fakeTransport) Retry(_ context.Context, job queue.Job) error {
	q.retried = append(q.retried, job)
	return nil
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	analysis *domain.BattleAnalysis
	err      error

	gotBattle *domain.Battle
	gotKills  []domain.KillEvent
}

func (f *fakeAnalyzer) CreateAnalysis(_ context.Context, battle *domain.Battle, kills []domain.KillEvent) (*domain.BattleAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotBattle = battle
	f.gotKills = kills
	return f.analysis, f.err
}

type fakeRater struct {
	mu      sync.Mutex
	deltas  map[int64]rating.GuildDelta
	failFor int64

	applied []int64
}

func (f *fakeRater) CalculateDeltas(_ context.Context, _ *domain.BattleAnalysis) (map[int64]rating.GuildDelta, error) {
	return f.deltas, nil
}

func (f *fakeRater) ApplyDelta(_ context.Context, _ *domain.BattleAnalysis, g domain.GuildBattleStats, _ rating.GuildDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != 0 && g.GuildID == f.failFor {
		return errors.New("rating store unavailable")
	}
	f.applied = append(f.applied, g.GuildID)
	return nil
}

func (f *fakeRater) appliedGuilds() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.applied...)
}

func apiBattle(id uint64) api.Battle {
	return api.Battle{
		ID:           id,
		StartTime:    time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC),
		TotalFame:    5_000_000,
		TotalKills:   40,
		TotalPlayers: 60,
		Guilds: []api.BattleGuild{
			{Name: "Ravens", Alliance: "NORTH", Kills: 30, Deaths: 10, KillFame: 3_000_000, Players: 25, AverageItemPower: 1250},
			{Name: "Wolves", Alliance: "SOUTH", Kills: 10, Deaths: 30, KillFame: 1_500_000, Players: 25, AverageItemPower: 1200},
		},
	}
}

func apiKill(id uint64) api.KillEvent {
	return api.KillEvent{
		EventID:             id,
		TimeStamp:           time.Date(2026, 3, 10, 21, 1, 0, 0, time.UTC),
		TotalVictimKillFame: 120_000,
		Killer:              api.Participant{Name: "kA", GuildID: "ext-r", GuildName: "Ravens", AllianceName: "NORTH", AverageItemPower: 1240},
		Victim:              api.Participant{Name: "vA", GuildName: "Wolves", AllianceName: "SOUTH", AverageItemPower: 1210},
	}
}

func testAnalysis(battleID uint64) *domain.BattleAnalysis {
	return &domain.BattleAnalysis{
		BattleID: battleID,
		Season:   domain.Season{ID: 1},
		Guilds: []domain.GuildBattleStats{
			{GuildID: 1, Name: "Ravens", Alliance: "NORTH"},
			{GuildID: 2, Name: "Wolves", Alliance: "SOUTH"},
		},
	}
}
