package worker

import (
	"context"
	"errors"
	"fmt"

	"albion-mmr/internal/constants"
	"albion-mmr/internal/domain"
	"albion-mmr/internal/queue"
	"albion-mmr/internal/rating"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Analyzer reconstructs battles into per-guild analyses, or (nil, nil)
// when a battle is not eligible for rating.
type Analyzer interface {
	CreateAnalysis(ctx context.Context, battle *domain.Battle, kills []domain.KillEvent) (*domain.BattleAnalysis, error)
}

// Rater computes and persists rating deltas.
type Rater interface {
	CalculateDeltas(ctx context.Context, a *domain.BattleAnalysis) (map[int64]rating.GuildDelta, error)
	ApplyDelta(ctx context.Context, a *domain.BattleAnalysis, g domain.GuildBattleStats, d rating.GuildDelta) error
}

// Processor consumes queued battles and runs analysis, delta calculation
// and persistence for each. Distinct battles run in parallel; the
// database guard serializes duplicate deliveries of the same battle.
type Processor struct {
	queue    queue.Transport
	store    BattleStore
	fetcher  Fetcher
	analyzer Analyzer
	rater    Rater
	logger   zerolog.Logger
}

func NewProcessor(transport queue.Transport, store BattleStore, fetcher Fetcher, analyzer Analyzer, rater Rater, logger zerolog.Logger) *Processor {
	return &Processor{
		queue:    transport,
		store:    store,
		fetcher:  fetcher,
		analyzer: analyzer,
		rater:    rater,
		logger:   logger.With().Str("component", "processor").Logger(),
	}
}

// Run consumes jobs until the context is cancelled, then waits for
// in-flight battles to finish. A failed battle goes back to the queue;
// it never stops the loop.
func (p *Processor) Run(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(constants.ProcessConcurrency)

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			break
		}
		g.Go(func() error {
			p.handle(ctx, job)
			return nil
		})
	}

	g.Wait()
}

func (p *Processor) handle(ctx context.Context, job queue.Job) {
	runCtx, cancel := context.WithTimeout(ctx, constants.ProcessTimeout)
	defer cancel()

	err := p.process(runCtx, job.BattleID)
	if err == nil {
		return
	}

	p.logger.Error().
		Err(err).
		Str("job_id", job.ID).
		Uint64("battle_id", job.BattleID).
		Int("deliveries", job.Deliveries).
		Msg("battle processing failed")

	if err := p.queue.Retry(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("requeue failed")
	}
}

// process runs the full pipeline for one battle. Analysis and delta
// calculation are pure given the loaded data, so failing anywhere and
// redoing the whole battle is safe; the claim-and-mutate store turns
// repeated ApplyDelta calls into no-ops.
func (p *Processor) process(ctx context.Context, battleID uint64) error {
	battle, kills, err := p.load(ctx, battleID)
	if err != nil {
		return err
	}

	analysis, err := p.analyzer.CreateAnalysis(ctx, battle, kills)
	if err != nil {
		return fmt.Errorf("analyze battle %d: %w", battleID, err)
	}
	if analysis == nil {
		p.logger.Debug().Uint64("battle_id", battleID).Msg("battle not eligible for rating")
		return nil
	}

	deltas, err := p.rater.CalculateDeltas(ctx, analysis)
	if err != nil {
		return fmt.Errorf("calculate deltas for battle %d: %w", battleID, err)
	}

	for _, guild := range analysis.Guilds {
		d, ok := deltas[guild.GuildID]
		if !ok {
			continue
		}
		if err := p.rater.ApplyDelta(ctx, analysis, guild, d); err != nil {
			return err
		}
	}

	p.logger.Info().
		Uint64("battle_id", battleID).
		Int("guilds_rated", len(deltas)).
		Msg("battle rated")
	return nil
}

// load returns the battle and its kill feed from the raw store, falling
// back to the upstream API for jobs that reference battles the store
// never saw (manual enqueue, rebuilt database).
func (p *Processor) load(ctx context.Context, battleID uint64) (*domain.Battle, []domain.KillEvent, error) {
	battle, err := p.store.GetBattle(ctx, battleID)
	if err != nil {
		return nil, nil, err
	}
	if battle == nil {
		detail, err := p.fetcher.FetchBattleDetail(ctx, battleID)
		if err != nil {
			return nil, nil, fmt.Errorf("recover battle %d: %w", battleID, err)
		}
		b := detail.ToDomain()
		if err := p.store.UpsertBatch(ctx, []domain.Battle{b}); err != nil {
			return nil, nil, err
		}
		battle = &b
	}

	if battle.KillsFetchedAt == nil {
		kills, err := p.fetcher.FetchKills(ctx, battleID)
		if err != nil {
			return nil, nil, fmt.Errorf("recover kills for battle %d: %w", battleID, err)
		}
		events := make([]domain.KillEvent, 0, len(kills))
		for i := range kills {
			events = append(events, kills[i].ToDomain(battleID))
		}
		if err := p.store.StoreKillEvents(ctx, battleID, events); err != nil {
			return nil, nil, err
		}
		return battle, events, nil
	}

	events, err := p.store.GetKillEvents(ctx, battleID)
	if err != nil {
		return nil, nil, err
	}
	return battle, events, nil
}
