package fx

import (
	"context"
	"fmt"

	"albion-mmr/internal/analysis"
	"albion-mmr/internal/api"
	"albion-mmr/internal/config"
	"albion-mmr/internal/constants"
	"albion-mmr/internal/database"
	"albion-mmr/internal/logger"
	"albion-mmr/internal/queue"
	"albion-mmr/internal/rating"
	"albion-mmr/internal/repository"
	"albion-mmr/internal/season"
	"albion-mmr/internal/worker"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideTracker loads the season calendar once at startup. Seasons and
// prime-time windows change by migration, not at runtime.
func ProvideTracker(seasons *repository.SeasonRepository, mass season.MassStore, logger zerolog.Logger) (*season.Tracker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	all, err := seasons.ListSeasons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load seasons: %w", err)
	}
	windows, err := seasons.ListPrimeTimeWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load prime time windows: %w", err)
	}

	return season.NewTracker(all, windows, mass, logger), nil
}

func ProvideGuildDirectory(r *repository.GuildRepository) analysis.GuildDirectory { return r }

func ProvideRatingReader(r *repository.SeasonRepository) analysis.RatingReader { return r }

func ProvideRatingStore(r *repository.RatingRepository) rating.Store { return r }

func ProvideWinHistory(r *repository.RatingRepository) rating.WinHistory { return r }

func ProvideMassStore(r *repository.MassRepository) season.MassStore { return r }

func ProvideBattleStore(r *repository.BattleRepository) worker.BattleStore { return r }

func ProvideFetcher(c *api.Client) worker.Fetcher { return c }

func ProvideTransport(q *queue.Memory) queue.Transport { return q }

func ProvideAnalyzer(e *analysis.Engine) worker.Analyzer { return e }

func ProvideRater(e *rating.Engine) worker.Rater { return e }

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewBattleRepository),
	fx.Provide(repository.NewGuildRepository),
	fx.Provide(repository.NewSeasonRepository),
	fx.Provide(repository.NewRatingRepository),
	fx.Provide(repository.NewMassRepository),
	fx.Provide(ProvideGuildDirectory),
	fx.Provide(ProvideRatingReader),
	fx.Provide(ProvideRatingStore),
	fx.Provide(ProvideWinHistory),
	fx.Provide(ProvideMassStore),
	fx.Provide(ProvideBattleStore),
	// api client
	fx.Provide(api.NewClient),
	fx.Provide(ProvideFetcher),
	// queue
	fx.Provide(queue.NewMemory),
	fx.Provide(ProvideTransport),
	// engines
	fx.Provide(ProvideTracker),
	fx.Provide(analysis.NewEngine),
	fx.Provide(rating.NewEngine),
	fx.Provide(ProvideAnalyzer),
	fx.Provide(ProvideRater),
	// pipeline
	fx.Provide(worker.NewCrawler),
	fx.Provide(worker.NewProcessor),
)
