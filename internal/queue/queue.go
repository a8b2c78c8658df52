// Package queue moves battle-processing jobs from the crawler to the
// processor. Delivery is at least once: consumers must tolerate seeing
// the same battle twice, which the rating layer's duplicate guard makes
// safe. Retry pacing and dead-letter handling live in the transport, not
// in consumers.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"albion-mmr/internal/constants"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is one unit of battle-processing work.
type Job struct {
	ID         string
	BattleID   uint64
	Deliveries int
}

// Transport hands jobs to consumers at least once. Dequeue blocks until
// a job or context cancellation. Retry returns a failed job for
// redelivery until the delivery bound is reached, after which the job is
// dead-lettered and counted.
type Transport interface {
	Enqueue(ctx context.Context, battleID uint64) error
	Dequeue(ctx context.Context) (Job, error)
	Retry(ctx context.Context, job Job) error
}

// Memory is the channel-backed in-process transport. A bounded channel
// gives the crawler natural backpressure when the processor falls
// behind.
type Memory struct {
	jobs        chan Job
	retryDelay  time.Duration
	logger      zerolog.Logger
	deadLetters atomic.Uint64
}

var _ Transport = (*Memory)(nil)

func NewMemory(logger zerolog.Logger) *Memory {
	return &Memory{
		jobs:       make(chan Job, constants.QueueCapacity),
		retryDelay: constants.QueueRetryDelay,
		logger:     logger.With().Str("component", "queue").Logger(),
	}
}

// Enqueue submits a battle for processing, blocking while the queue is
// full.
func (q *Memory) Enqueue(ctx context.Context, battleID uint64) error {
	job := Job{ID: uuid.NewString(), BattleID: battleID}
	select {
	case q.jobs <- job:
		q.logger.Debug().
			Str("job_id", job.ID).
			Uint64("battle_id", battleID).
			Msg("job enqueued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job is available. Each call counts as one
// delivery.
func (q *Memory) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		job.Deliveries++
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Retry returns a failed job to the queue after a delay that grows with
// each delivery. Jobs past the delivery bound are dropped and counted as
// dead letters.
func (q *Memory) Retry(ctx context.Context, job Job) error {
	if job.Deliveries >= constants.QueueMaxDeliveries {
		q.deadLetters.Add(1)
		q.logger.Error().
			Str("job_id", job.ID).
			Uint64("battle_id", job.BattleID).
			Int("deliveries", job.Deliveries).
			Msg("job dead lettered")
		return nil
	}

	timer := time.NewTimer(q.retryDelay * time.Duration(job.Deliveries))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case q.jobs <- job:
		q.logger.Debug().
			Str("job_id", job.ID).
			Uint64("battle_id", job.BattleID).
			Int("deliveries", job.Deliveries).
			Msg("job requeued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeadLetters reports how many jobs exhausted their deliveries.
func (q *Memory) DeadLetters() uint64 {
	return q.deadLetters.Load()
}

// Depth reports how many jobs are waiting.
func (q *Memory) Depth() int {
	return len(q.jobs)
}
