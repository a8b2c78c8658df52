package api

import (
	"context"
	"sync"
	"time"
)

// tokenBucket paces requests at a sustained rate with a small burst
// allowance. All fetch methods of a Client share one bucket.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(ratePerSecond float64, burst int) *tokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: ratePerSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context ends.
func (b *tokenBucket) Wait(ctx context.Context) error {
	for {
		wait, ok := b.reserve()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// reserve consumes a token if one is available, otherwise returns how
// long until the next token accrues.
func (b *tokenBucket) reserve() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1.0 {
		b.tokens--
		return 0, true
	}
	needed := 1.0 - b.tokens
	return time.Duration(needed / b.refillRate * float64(time.Second)), false
}

func (b *tokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// drain empties the bucket after an upstream 429 so the next request
// waits a full refill cycle.
func (b *tokenBucket) drain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = 0
	b.lastRefill = time.Now()
}

func (b *tokenBucket) available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// statusWindow is a fixed-size ring over recent request outcomes used to
// compute the rolling share of rate-limited responses.
type statusWindow struct {
	mu      sync.Mutex
	limited []bool
	next    int
	filled  int
	hits    int
}

func newStatusWindow(size int) *statusWindow {
	if size < 1 {
		size = 1
	}
	return &statusWindow{limited: make([]bool, size)}
}

func (w *statusWindow) Record(limited bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.filled == len(w.limited) {
		if w.limited[w.next] {
			w.hits--
		}
	} else {
		w.filled++
	}
	w.limited[w.next] = limited
	if limited {
		w.hits++
	}
	w.next = (w.next + 1) % len(w.limited)
}

// Ratio returns the share of rate-limited responses in the window, and
// how many samples back it.
func (w *statusWindow) Ratio() (float64, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filled == 0 {
		return 0, 0
	}
	return float64(w.hits) / float64(w.filled), w.filled
}
