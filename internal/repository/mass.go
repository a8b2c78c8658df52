package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"albion-mmr/internal/domain"

	"github.com/rs/zerolog"
)

// MassRepository maintains the running average of players a guild
// fields per prime-time window.
type MassRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMassRepository(sqlDB *sql.DB, logger zerolog.Logger) *MassRepository {
	return &MassRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// UpdateMass folds one battle's player count into the running average.
// The average and count move together in a single statement, so
// concurrent updates cannot skew the blend.
func (r *MassRepository) UpdateMass(ctx context.Context, guildSeasonID, windowID int64, playerCount int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guild_prime_time_mass (guild_season_id, window_id, avg_players, battle_count, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (guild_season_id, window_id) DO UPDATE SET
			avg_players = (avg_players * battle_count + excluded.avg_players) / (battle_count + 1),
			battle_count = battle_count + 1,
			updated_at = excluded.updated_at`,
		guildSeasonID, windowID, float64(playerCount), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update prime time mass for guild season %d: %w", guildSeasonID, err)
	}
	return nil
}

// GetMass loads one window's running average. Returns nil when the guild
// has not fought in the window yet.
func (r *MassRepository) GetMass(ctx context.Context, guildSeasonID, windowID int64) (*domain.GuildPrimeTimeMass, error) {
	var m domain.GuildPrimeTimeMass
	err := r.db.QueryRowContext(ctx, `
		SELECT guild_season_id, window_id, avg_players, battle_count, updated_at
		FROM guild_prime_time_mass
		WHERE guild_season_id = ? AND window_id = ?`, guildSeasonID, windowID,
	).Scan(&m.GuildSeasonID, &m.WindowID, &m.AvgPlayers, &m.BattleCount, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prime time mass for guild season %d: %w", guildSeasonID, err)
	}
	return &m, nil
}

// ListMass returns every window average for one guild season.
func (r *MassRepository) ListMass(ctx context.Context, guildSeasonID int64) ([]domain.GuildPrimeTimeMass, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT guild_season_id, window_id, avg_players, battle_count, updated_at
		FROM guild_prime_time_mass
		WHERE guild_season_id = ?
		ORDER BY window_id`, guildSeasonID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list prime time mass for guild season %d: %w", guildSeasonID, err)
	}
	defer rows.Close()

	var masses []domain.GuildPrimeTimeMass
	for rows.Next() {
		var m domain.GuildPrimeTimeMass
		if err := rows.Scan(&m.GuildSeasonID, &m.WindowID, &m.AvgPlayers, &m.BattleCount, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prime time mass: %w", err)
		}
		masses = append(masses, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prime time mass for guild season %d: %w", guildSeasonID, err)
	}

	return masses, nil
}
