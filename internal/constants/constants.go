package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	ProcessTimeout     = 60 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 200
)

const (
	// CrawlInterval is the base delay between battle-list polls.
	CrawlInterval = 60 * time.Second

	// CrawlSlowdownMultiplier stretches CrawlInterval while the API
	// client reports rate-limit pressure.
	CrawlSlowdownMultiplier = 3

	// CrawlPageLimit bounds how many list pages one poll walks.
	CrawlPageLimit = 10

	// CrawlKillFetchLimit bounds how many pending kill feeds one poll
	// fetches.
	CrawlKillFetchLimit = 50

	// ProcessConcurrency is how many battles are analyzed and rated in
	// parallel. Distinct battles share no state outside the database.
	ProcessConcurrency = 4
)

const (
	QueueCapacity      = 1024
	QueueMaxDeliveries = 5
	QueueRetryDelay    = 2 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)
