// Package api implements the client for the upstream battle/kill API.
// One Client instance is shared by every caller: all requests go through
// a single token bucket, a small in-flight semaphore, and per-request
// retries with exponential backoff.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"albion-mmr/internal/config"
	"albion-mmr/internal/constants"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/semaphore"
)

const (
	// burstSize bounds how many tokens the bucket can bank.
	burstSize = 4

	// statusWindowSize is how many recent requests feed the 429 ratio.
	statusWindowSize = 250

	// slowdownRatio is the 429 share above which ShouldSlowDown trips.
	slowdownRatio = 0.04

	// slowdownMinSamples keeps a handful of early 429s from tripping
	// the signal before the window has data.
	slowdownMinSamples = 20
)

type Client struct {
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger

	bucket   *tokenBucket
	inflight *semaphore.Weighted
	window   *statusWindow

	maxAttempts uint64
	baseDelay   time.Duration
	maxDelay    time.Duration

	requests atomic.Uint64
	failures atomic.Uint64

	// retryAfterNanos holds a pending Retry-After override consumed by
	// the next backoff step.
	retryAfterNanos atomic.Int64
}

func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.APIBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger:      logger,
		bucket:      newTokenBucket(cfg.RequestsPerSecond, burstSize),
		inflight:    semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		window:      newStatusWindow(statusWindowSize),
		maxAttempts: uint64(cfg.RetryMaxAttempts),
		baseDelay:   cfg.RetryBaseDelay,
		maxDelay:    cfg.RetryMaxDelay,
	}
}

// FetchBattlesPage returns one page of recent battles with at least
// minPlayers participants.
func (c *Client) FetchBattlesPage(ctx context.Context, page, minPlayers int) ([]Battle, error) {
	path := fmt.Sprintf("/battles?page=%d&minPlayers=%d&sort=recent", page, minPlayers)
	battles, err := doJSON(ctx, c, path, "battles", func(list *[]Battle) error {
		for i := range *list {
			if err := (*list)[i].validate("battles"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return *battles, nil
}

// FetchBattleDetail returns the full summary for one battle.
func (c *Client) FetchBattleDetail(ctx context.Context, id uint64) (*Battle, error) {
	path := "/battles/" + strconv.FormatUint(id, 10)
	return doJSON(ctx, c, path, "battle detail", func(b *Battle) error {
		return b.validate("battle detail")
	})
}

// FetchKills returns every kill event recorded for one battle.
func (c *Client) FetchKills(ctx context.Context, id uint64) ([]KillEvent, error) {
	path := "/events/battle/" + strconv.FormatUint(id, 10)
	kills, err := doJSON(ctx, c, path, "battle kills", func(list *[]KillEvent) error {
		for i := range *list {
			if err := (*list)[i].validate("battle kills"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return *kills, nil
}

// ShouldSlowDown reports whether recent traffic saw enough 429s that the
// crawl loop should stretch its polling interval. Advisory only: the
// client keeps serving requests either way.
func (c *Client) ShouldSlowDown() bool {
	ratio, samples := c.window.Ratio()
	return samples >= slowdownMinSamples && ratio > slowdownRatio
}

// ClientStats is a point-in-time snapshot of request counters.
type ClientStats struct {
	Requests        uint64
	Failures        uint64
	RateLimitRatio  float64
	AvailableTokens float64
}

func (c *Client) Stats() ClientStats {
	ratio, _ := c.window.Ratio()
	return ClientStats{
		Requests:        c.requests.Load(),
		Failures:        c.failures.Load(),
		RateLimitRatio:  ratio,
		AvailableTokens: c.bucket.available(),
	}
}

func doJSON[T any](ctx context.Context, c *Client, path, endpoint string, validate func(*T) error) (*T, error) {
	var out T
	err := retry.Do(ctx, c.newBackoff(), func(ctx context.Context) error {
		body, err := c.do(ctx, path, endpoint)
		if err != nil {
			return err
		}
		var decoded T
		if err := json.Unmarshal(body, &decoded); err != nil {
			return &ValidationError{Endpoint: endpoint, Reason: "malformed json: " + err.Error()}
		}
		if err := validate(&decoded); err != nil {
			return err
		}
		out = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	return &out, nil
}

// do performs a single attempt: semaphore, token, request, classify.
// Transient failures come back wrapped in retry.RetryableError.
func (c *Client) do(ctx context.Context, path, endpoint string) ([]byte, error) {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.inflight.Release(1)

	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(constants.ExternalAPITimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err := c.client.DoDeadline(req, resp, deadline)
	c.requests.Add(1)
	if err != nil {
		c.failures.Add(1)
		c.window.Record(false)
		return nil, retry.RetryableError(fmt.Errorf("%s request: %w", endpoint, err))
	}

	status := resp.StatusCode()
	c.window.Record(status == fasthttp.StatusTooManyRequests)

	switch {
	case status == fasthttp.StatusOK:
		body := append([]byte(nil), resp.Body()...)
		return body, nil

	case status == fasthttp.StatusTooManyRequests:
		c.failures.Add(1)
		c.bucket.drain()
		if ra := string(resp.Header.Peek("Retry-After")); ra != "" {
			if seconds, perr := strconv.Atoi(ra); perr == nil && seconds > 0 {
				c.retryAfterNanos.Store(int64(time.Duration(seconds) * time.Second))
				c.logger.Warn().Int("retry_after_s", seconds).Str("endpoint", endpoint).Msg("rate limited by upstream")
			}
		}
		return nil, retry.RetryableError(&StatusError{Endpoint: endpoint, Code: status})

	case status >= 500:
		c.failures.Add(1)
		return nil, retry.RetryableError(&StatusError{Endpoint: endpoint, Code: status})

	default:
		c.failures.Add(1)
		return nil, &StatusError{Endpoint: endpoint, Code: status}
	}
}

// newBackoff builds the per-call backoff chain: exponential with jitter,
// capped, overridden by any pending Retry-After hint, bounded attempts.
func (c *Client) newBackoff() retry.Backoff {
	inner := retry.WithCappedDuration(c.maxDelay, retry.WithJitterPercent(10, retry.NewExponential(c.baseDelay)))
	withHint := retry.BackoffFunc(func() (time.Duration, bool) {
		if hint := c.retryAfterNanos.Swap(0); hint > 0 {
			return time.Duration(hint), false
		}
		return inner.Next()
	})
	return retry.WithMaxRetries(c.maxAttempts, withHint)
}
