// Package worker glues the pipeline together. The crawler discovers
// battles upstream and stores them raw; the processor turns stored
// battles into ratings. Neither holds state outside the database and the
// queue, so both restart cleanly.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"albion-mmr/internal/api"
	"albion-mmr/internal/config"
	"albion-mmr/internal/constants"
	"albion-mmr/internal/domain"
	"albion-mmr/internal/queue"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fetcher is the slice of the ingestion client the workers consume.
type Fetcher interface {
	FetchBattlesPage(ctx context.Context, page, minPlayers int) ([]api.Battle, error)
	FetchBattleDetail(ctx context.Context, id uint64) (*api.Battle, error)
	FetchKills(ctx context.Context, id uint64) ([]api.KillEvent, error)
	ShouldSlowDown() bool
}

// BattleStore is the raw battle/kill persistence the workers share.
type BattleStore interface {
	UpsertBatch(ctx context.Context, battles []domain.Battle) error
	PendingKillFetch(ctx context.Context, limit int) ([]uint64, error)
	StoreKillEvents(ctx context.Context, battleID uint64, events []domain.KillEvent) error
	GetBattle(ctx context.Context, battleID uint64) (*domain.Battle, error)
	GetKillEvents(ctx context.Context, battleID uint64) ([]domain.KillEvent, error)
}

// Crawler polls the upstream list endpoint, persists new battles,
// fetches missing kill feeds and enqueues ready battles for processing.
type Crawler struct {
	fetcher Fetcher
	store   BattleStore
	queue   queue.Transport
	cfg     *config.Config
	logger  zerolog.Logger
}

func NewCrawler(fetcher Fetcher, store BattleStore, transport queue.Transport, cfg *config.Config, logger zerolog.Logger) *Crawler {
	return &Crawler{
		fetcher: fetcher,
		store:   store,
		queue:   transport,
		cfg:     cfg,
		logger:  logger.With().Str("component", "crawler").Logger(),
	}
}

// Run polls until the context is cancelled. The interval stretches while
// the ingestion client reports rate-limit pressure.
func (c *Crawler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		log := c.logger.With().Str("run_id", uuid.NewString()).Logger()
		if err := c.crawl(ctx, log); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("crawl run failed")
		}
		timer.Reset(c.nextInterval(log))
	}
}

// nextInterval stretches the base poll interval while the ingestion
// client reports rate-limit pressure.
func (c *Crawler) nextInterval(log zerolog.Logger) time.Duration {
	interval := constants.CrawlInterval
	if c.fetcher.ShouldSlowDown() {
		interval *= constants.CrawlSlowdownMultiplier
		log.Warn().Dur("interval", interval).Msg("rate limit pressure, stretching crawl interval")
	}
	return interval
}

func (c *Crawler) crawl(ctx context.Context, log zerolog.Logger) error {
	discovered := 0
	for page := 1; page <= constants.CrawlPageLimit; page++ {
		battles, err := c.fetcher.FetchBattlesPage(ctx, page, c.cfg.CrawlMinPlayers)
		if err != nil {
			return fmt.Errorf("fetch battles page %d: %w", page, err)
		}
		if len(battles) == 0 {
			break
		}

		batch := make([]domain.Battle, 0, len(battles))
		for i := range battles {
			batch = append(batch, battles[i].ToDomain())
		}
		if err := c.store.UpsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("store battles page %d: %w", page, err)
		}
		discovered += len(batch)
	}

	fetched, err := c.fetchPendingKills(ctx, log)
	if err != nil {
		return err
	}

	log.Info().
		Int("battles_listed", discovered).
		Int("kill_feeds_fetched", fetched).
		Msg("crawl run complete")
	return nil
}

// fetchPendingKills pulls kill feeds for stored battles that have none
// yet and hands each completed battle to the queue. Transient fetch
// failures leave the battle pending for the next run; rejected payloads
// stamp an empty feed so the battle is not refetched forever.
func (c *Crawler) fetchPendingKills(ctx context.Context, log zerolog.Logger) (int, error) {
	pending, err := c.store.PendingKillFetch(ctx, constants.CrawlKillFetchLimit)
	if err != nil {
		return 0, fmt.Errorf("list pending battles: %w", err)
	}

	fetched := 0
	for _, id := range pending {
		if ctx.Err() != nil {
			return fetched, ctx.Err()
		}

		kills, err := c.fetcher.FetchKills(ctx, id)
		if err != nil {
			if !isTerminal(err) {
				log.Error().Err(err).Uint64("battle_id", id).Msg("kill fetch failed, will retry")
				continue
			}
			log.Warn().Err(err).Uint64("battle_id", id).Msg("kill feed rejected, stamping empty")
			if err := c.store.StoreKillEvents(ctx, id, nil); err != nil {
				return fetched, fmt.Errorf("stamp battle %d: %w", id, err)
			}
			continue
		}

		events := make([]domain.KillEvent, 0, len(kills))
		for i := range kills {
			events = append(events, kills[i].ToDomain(id))
		}
		if err := c.store.StoreKillEvents(ctx, id, events); err != nil {
			return fetched, fmt.Errorf("store kills for battle %d: %w", id, err)
		}
		fetched++

		if err := c.queue.Enqueue(ctx, id); err != nil {
			return fetched, fmt.Errorf("enqueue battle %d: %w", id, err)
		}
	}
	return fetched, nil
}

// isTerminal reports whether a fetch error cannot be fixed by retrying:
// a payload that failed validation or a non-retryable upstream status.
func isTerminal(err error) bool {
	var vErr *api.ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	var sErr *api.StatusError
	if errors.As(err, &sErr) {
		return !sErr.Retryable()
	}
	return false
}
