package api

import (
	"fmt"
	"time"
)

// ValidationError marks an upstream response that failed shape checks.
// It is terminal: the payload is wrong, retrying cannot fix it.
type ValidationError struct {
	Endpoint string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s response: %s", e.Endpoint, e.Reason)
}

// StatusError is a non-2xx upstream status. 429 and 5xx are transient,
// everything else is terminal.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}

// Battle is the upstream battle shape, shared by the list and detail
// endpoints.
type Battle struct {
	ID           uint64        `json:"id"`
	StartTime    time.Time     `json:"startTime"`
	TotalFame    int64         `json:"totalFame"`
	TotalKills   int           `json:"totalKills"`
	TotalPlayers int           `json:"totalPlayers"`
	Guilds       []BattleGuild `json:"guilds"`
}

type BattleGuild struct {
	Name             string  `json:"name"`
	Alliance         string  `json:"alliance"`
	Kills            int     `json:"kills"`
	Deaths           int     `json:"deaths"`
	KillFame         int64   `json:"killFame"`
	Players          int     `json:"players"`
	AverageItemPower float64 `json:"averageItemPower"`
}

func (b *Battle) validate(endpoint string) error {
	if b.ID == 0 {
		return &ValidationError{Endpoint: endpoint, Reason: "battle id is zero"}
	}
	if b.StartTime.IsZero() {
		return &ValidationError{Endpoint: endpoint, Reason: fmt.Sprintf("battle %d has no start time", b.ID)}
	}
	if b.TotalFame < 0 || b.TotalKills < 0 || b.TotalPlayers < 0 {
		return &ValidationError{Endpoint: endpoint, Reason: fmt.Sprintf("battle %d has negative totals", b.ID)}
	}
	for i, g := range b.Guilds {
		if g.Name == "" {
			return &ValidationError{Endpoint: endpoint, Reason: fmt.Sprintf("battle %d guild %d has no name", b.ID, i)}
		}
		if g.Kills < 0 || g.Deaths < 0 || g.KillFame < 0 || g.Players < 0 {
			return &ValidationError{Endpoint: endpoint, Reason: fmt.Sprintf("battle %d guild %q has negative stats", b.ID, g.Name)}
		}
	}
	return nil
}

// KillEvent is the upstream kill shape. The events endpoint predates the
// battles one and keeps its original field casing.
type KillEvent struct {
	EventID             uint64      `json:"EventId"`
	TimeStamp           time.Time   `json:"TimeStamp"`
	TotalVictimKillFame int64       `json:"TotalVictimKillFame"`
	Killer              Participant `json:"Killer"`
	Victim              Participant `json:"Victim"`
}

type Participant struct {
	Name             string  `json:"Name"`
	GuildID          string  `json:"GuildId"`
	GuildName        string  `json:"GuildName"`
	AllianceName     string  `json:"AllianceName"`
	AverageItemPower float64 `json:"AverageItemPower"`
}

func (k *KillEvent) validate(endpoint string) error {
	if k.EventID == 0 {
		return &ValidationError{Endpoint: endpoint, Reason: "kill event id is zero"}
	}
	if k.TimeStamp.IsZero() {
		return &ValidationError{Endpoint: endpoint, Reason: fmt.Sprintf("kill %d has no timestamp", k.EventID)}
	}
	if k.TotalVictimKillFame < 0 {
		return &ValidationError{Endpoint: endpoint, Reason: fmt.Sprintf("kill %d has negative fame", k.EventID)}
	}
	if k.Killer.Name == "" || k.Victim.Name == "" {
		return &ValidationError{Endpoint: endpoint, Reason: fmt.Sprintf("kill %d is missing killer or victim", k.EventID)}
	}
	return nil
}
