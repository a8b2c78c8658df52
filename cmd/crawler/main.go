package main

import (
	"context"
	"database/sql"
	"sync"

	"albion-mmr/internal/constants"
	fxmodules "albion-mmr/internal/fx"
	"albion-mmr/internal/queue"
	"albion-mmr/internal/worker"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runPipeline),
	).Run()
}

func runPipeline(
	lc fx.Lifecycle,
	crawler *worker.Crawler,
	processor *worker.Processor,
	q *queue.Memory,
	db *sql.DB,
	logger zerolog.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			wg.Add(2)
			go func() {
				defer wg.Done()
				crawler.Run(runCtx)
			}()
			go func() {
				defer wg.Done()
				processor.Run(runCtx)
			}()
			logger.Info().Msg("pipeline started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down pipeline")
			cancel()

			shutdownCtx, cancelWait := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancelWait()

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-shutdownCtx.Done():
				logger.Warn().Msg("shutdown timed out with battles in flight")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().
				Int("queue_depth", q.Depth()).
				Uint64("dead_letters", q.DeadLetters()).
				Msg("pipeline stopped")
			return nil
		},
	})
}
