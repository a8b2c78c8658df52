package repository

import (
	"context"
	"database/sql"
	"fmt"

	"albion-mmr/internal/domain"

	"github.com/rs/zerolog"
)

// SeasonRepository reads season and prime-time fixtures and the rating
// snapshots hanging off them.
type SeasonRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSeasonRepository(sqlDB *sql.DB, logger zerolog.Logger) *SeasonRepository {
	return &SeasonRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// ListSeasons returns every season ordered by start time.
func (r *SeasonRepository) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, starts_at, ends_at, active FROM seasons ORDER BY starts_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	defer rows.Close()

	var seasons []domain.Season
	for rows.Next() {
		var (
			s      domain.Season
			endsAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.StartsAt, &endsAt, &s.Active); err != nil {
			return nil, fmt.Errorf("failed to scan season: %w", err)
		}
		if endsAt.Valid {
			t := endsAt.Time
			s.EndsAt = &t
		}
		seasons = append(seasons, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seasons: %w", err)
	}

	return seasons, nil
}

// ListPrimeTimeWindows returns the configured global windows.
func (r *SeasonRepository) ListPrimeTimeWindows(ctx context.Context) ([]domain.PrimeTimeWindow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, start_hour, end_hour, timezone FROM prime_time_windows ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list prime time windows: %w", err)
	}
	defer rows.Close()

	var windows []domain.PrimeTimeWindow
	for rows.Next() {
		var w domain.PrimeTimeWindow
		if err := rows.Scan(&w.ID, &w.StartHour, &w.EndHour, &w.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan prime time window: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prime time windows: %w", err)
	}

	return windows, nil
}

// CreateSeason inserts a season and returns it with its id.
func (r *SeasonRepository) CreateSeason(ctx context.Context, s domain.Season) (domain.Season, error) {
	var endsAt any
	if s.EndsAt != nil {
		endsAt = s.EndsAt.UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO seasons (name, starts_at, ends_at, active) VALUES (?, ?, ?, ?)`,
		s.Name, s.StartsAt.UTC(), endsAt, s.Active,
	)
	if err != nil {
		return domain.Season{}, fmt.Errorf("failed to create season %q: %w", s.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Season{}, fmt.Errorf("failed to read new season id: %w", err)
	}
	s.ID = id

	r.logger.Info().
		Int64("season_id", id).
		Str("name", s.Name).
		Msg("season created")
	return s, nil
}

// CreatePrimeTimeWindow inserts a window and returns it with its id.
func (r *SeasonRepository) CreatePrimeTimeWindow(ctx context.Context, w domain.PrimeTimeWindow) (domain.PrimeTimeWindow, error) {
	if w.Timezone == "" {
		w.Timezone = "UTC"
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO prime_time_windows (start_hour, end_hour, timezone) VALUES (?, ?, ?)`,
		w.StartHour, w.EndHour, w.Timezone,
	)
	if err != nil {
		return domain.PrimeTimeWindow{}, fmt.Errorf("failed to create prime time window: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.PrimeTimeWindow{}, fmt.Errorf("failed to read new window id: %w", err)
	}
	w.ID = id
	return w, nil
}

// CurrentMMR reads a guild's season MMR, defaulting to the baseline when
// the guild has not been rated this season.
func (r *SeasonRepository) CurrentMMR(ctx context.Context, guildID, seasonID int64) (float64, error) {
	var mmr float64
	err := r.db.QueryRowContext(ctx,
		`SELECT mmr FROM guild_seasons WHERE guild_id = ? AND season_id = ?`, guildID, seasonID,
	).Scan(&mmr)
	if err == sql.ErrNoRows {
		return domain.MMRBaseline, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read mmr for guild %d season %d: %w", guildID, seasonID, err)
	}
	return mmr, nil
}

// GetGuildSeason loads the full rating record. Returns nil when the
// guild has no record for the season.
func (r *SeasonRepository) GetGuildSeason(ctx context.Context, guildID, seasonID int64) (*domain.GuildSeason, error) {
	gs, err := scanGuildSeason(r.db.QueryRowContext(ctx,
		`SELECT id, guild_id, season_id, mmr, carryover_mmr,
			battles, wins, losses, fame_gained, fame_lost, prime_time_battles,
			mmr_battles, mmr_wins, mmr_losses, mmr_fame_gained, mmr_fame_lost, mmr_prime_time_battles,
			last_battle_at, last_mmr_battle_at, created_at, updated_at
		FROM guild_seasons WHERE guild_id = ? AND season_id = ?`, guildID, seasonID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guild season %d/%d: %w", guildID, seasonID, err)
	}
	return &gs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuildSeason(row rowScanner) (domain.GuildSeason, error) {
	var (
		gs            domain.GuildSeason
		lastBattle    sql.NullTime
		lastMMRBattle sql.NullTime
	)
	err := row.Scan(
		&gs.ID, &gs.GuildID, &gs.SeasonID, &gs.MMR, &gs.CarryoverMMR,
		&gs.Battles, &gs.Wins, &gs.Losses, &gs.FameGained, &gs.FameLost, &gs.PrimeTimeBattles,
		&gs.MMRBattles, &gs.MMRWins, &gs.MMRLosses, &gs.MMRFameGained, &gs.MMRFameLost, &gs.MMRPrimeTimeBattles,
		&lastBattle, &lastMMRBattle, &gs.CreatedAt, &gs.UpdatedAt,
	)
	if err != nil {
		return domain.GuildSeason{}, err
	}
	if lastBattle.Valid {
		t := lastBattle.Time
		gs.LastBattleAt = &t
	}
	if lastMMRBattle.Valid {
		t := lastMMRBattle.Time
		gs.LastMMRBattleAt = &t
	}
	return gs, nil
}
