package domain

import (
	"time"
)

// MMRBaseline is the rating every guild starts a season at.
const MMRBaseline = 1000.0

// Battle is one ingested battle as reported by the upstream API.
// Immutable after ingestion except for KillsFetchedAt.
type Battle struct {
	ID             uint64
	StartedAt      time.Time
	TotalFame      int64
	TotalKills     int
	TotalPlayers   int
	Guilds         []BattleGuild
	KillsFetchedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BattleGuild is one guild's summary row inside a battle.
type BattleGuild struct {
	BattleID     uint64
	Name         string
	Alliance     string
	Kills        int
	Deaths       int
	Fame         int64
	Players      int
	AvgItemPower float64
}

// KillEvent is a single kill inside a battle. Append-only.
type KillEvent struct {
	ID        uint64
	BattleID  uint64
	Timestamp time.Time
	Fame      int64
	Killer    Participant
	Victim    Participant
}

// Participant identifies one side of a kill event. GuildID is the
// upstream guild identifier and may be empty for guildless players.
type Participant struct {
	Name         string
	GuildID      string
	Guild        string
	Alliance     string
	AvgItemPower float64
}

// Guild is created lazily on first observation; ExternalID may arrive
// after the guild was first seen by name only.
type Guild struct {
	ID         int64
	ExternalID string
	Name       string
	CreatedAt  time.Time
}

// Season is a competitive season. EndsAt is nil while the season is open.
type Season struct {
	ID       int64
	Name     string
	StartsAt time.Time
	EndsAt   *time.Time
	Active   bool
}

// PrimeTimeWindow is a global hour-of-day range. EndHour may be smaller
// than StartHour, in which case the window wraps past midnight.
type PrimeTimeWindow struct {
	ID        int64
	StartHour int
	EndHour   int
	Timezone  string
}

// GuildSeason is the durable rating record for one (guild, season) pair.
// Mutated only by the rating engine inside its claim-and-mutate
// transaction.
type GuildSeason struct {
	ID       int64
	GuildID  int64
	SeasonID int64

	MMR          float64
	CarryoverMMR float64

	// Counters over every rated appearance.
	Battles          int
	Wins             int
	Losses           int
	FameGained       int64
	FameLost         int64
	PrimeTimeBattles int

	// Counters restricted to MMR-eligible battles.
	MMRBattles          int
	MMRWins             int
	MMRLosses           int
	MMRFameGained       int64
	MMRFameLost         int64
	MMRPrimeTimeBattles int

	LastBattleAt    *time.Time
	LastMMRBattleAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GuildPrimeTimeMass is the running average of players a guild fields in
// one prime-time window during one season.
type GuildPrimeTimeMass struct {
	GuildSeasonID int64
	WindowID      int64
	AvgPlayers    float64
	BattleCount   int
	UpdatedAt     time.Time
}

// MMRCalculationLog is the immutable audit row for one (battle, guild)
// rating computation. Its uniqueness on (battle, guild, season) is the
// duplicate-processing guard.
type MMRCalculationLog struct {
	ID       string // nanoid
	BattleID uint64
	GuildID  int64
	SeasonID int64

	PreviousMMR float64
	Delta       float64
	RawDelta    float64 // before anti-farming reduction
	NewMMR      float64

	IsWin             bool
	AntiFarmingFactor float64

	// Factors holds every factor value and its weighted contribution,
	// Opponents the enemy guilds and their MMRs at calculation time.
	// Both are stored as JSON payloads.
	Factors   []FactorContribution
	Opponents []OpponentRef

	CalcVersion int
	CreatedAt   time.Time
}

// RatingApplication is one guild's rating outcome for one battle,
// handed to the store for the claim-and-mutate transaction. The store
// fills PreviousMMR and NewMMR from the row it reads at commit time.
type RatingApplication struct {
	BattleID uint64
	GuildID  int64
	SeasonID int64

	Delta             float64
	RawDelta          float64
	IsWin             bool
	AntiFarmingFactor float64
	Factors           []FactorContribution
	Opponents         []OpponentRef
	CalcVersion       int

	FameGained  int64
	FameLost    int64
	IsPrimeTime bool
	BattleAt    time.Time
}

// FactorContribution is one named factor's value and weighted share of
// the final delta.
type FactorContribution struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Weighted float64 `json:"weighted"`
}

// OpponentRef records an enemy guild and its MMR at calculation time.
type OpponentRef struct {
	GuildID int64   `json:"guild_id"`
	Name    string  `json:"name"`
	MMR     float64 `json:"mmr"`
}
