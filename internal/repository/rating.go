package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"albion-mmr/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// carryoverRatio is how much of a guild's previous-season deviation from
// the baseline seeds its next season.
const carryoverRatio = 0.25

// RatingRepository owns the guild_seasons rating records and their audit
// logs. All mutation happens through ApplyRating, which claims the
// (battle, guild, season) log row and mutates the rating in the same
// transaction so a battle can never be applied twice.
type RatingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRatingRepository(sqlDB *sql.DB, logger zerolog.Logger) *RatingRepository {
	return &RatingRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// ApplyRating commits one guild's rating outcome for one battle. It
// reads the guild's current MMR inside the transaction, so the stored
// previous/new pair always reflects the order the commits actually
// happened in. Returns domain.ErrBattleAlreadyRated when a log row for
// the same battle, guild and season already exists, leaving the rating
// untouched.
func (r *RatingRepository) ApplyRating(ctx context.Context, app domain.RatingApplication) (domain.GuildSeason, error) {
	factors, err := json.Marshal(app.Factors)
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to encode factors: %w", err)
	}
	opponents, err := json.Marshal(app.Opponents)
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to encode opponents: %w", err)
	}
	logID, err := gonanoid.New()
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to generate log id: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := r.ensureGuildSeason(ctx, tx, app.GuildID, app.SeasonID, now); err != nil {
		return domain.GuildSeason{}, err
	}

	var (
		gsID       int64
		currentMMR float64
		lastBattle sql.NullTime
		lastRated  sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, mmr, last_battle_at, last_mmr_battle_at FROM guild_seasons WHERE guild_id = ? AND season_id = ?`,
		app.GuildID, app.SeasonID,
	).Scan(&gsID, &currentMMR, &lastBattle, &lastRated)
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to read rating for guild %d season %d: %w", app.GuildID, app.SeasonID, err)
	}

	newMMR := currentMMR + app.Delta
	if newMMR < 0 {
		newMMR = 0
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO mmr_calculation_logs (
			id, battle_id, guild_id, season_id,
			previous_mmr, delta, raw_delta, new_mmr,
			is_win, anti_farming_factor, factors, opponents, calc_version, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (battle_id, guild_id, season_id) DO NOTHING`,
		logID, app.BattleID, app.GuildID, app.SeasonID,
		currentMMR, app.Delta, app.RawDelta, newMMR,
		app.IsWin, app.AntiFarmingFactor, string(factors), string(opponents), app.CalcVersion, now,
	)
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to insert calculation log for battle %d: %w", app.BattleID, err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to read log insert result for battle %d: %w", app.BattleID, err)
	}
	if claimed == 0 {
		return domain.GuildSeason{}, domain.ErrBattleAlreadyRated
	}

	battleAt := app.BattleAt.UTC()
	lastBattleAt := laterOf(lastBattle, battleAt)
	lastRatedAt := laterOf(lastRated, battleAt)

	var win, loss, prime int
	if app.IsWin {
		win = 1
	} else {
		loss = 1
	}
	if app.IsPrimeTime {
		prime = 1
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE guild_seasons SET
			mmr = ?,
			battles = battles + 1,
			wins = wins + ?,
			losses = losses + ?,
			fame_gained = fame_gained + ?,
			fame_lost = fame_lost + ?,
			prime_time_battles = prime_time_battles + ?,
			mmr_battles = mmr_battles + 1,
			mmr_wins = mmr_wins + ?,
			mmr_losses = mmr_losses + ?,
			mmr_fame_gained = mmr_fame_gained + ?,
			mmr_fame_lost = mmr_fame_lost + ?,
			mmr_prime_time_battles = mmr_prime_time_battles + ?,
			last_battle_at = ?,
			last_mmr_battle_at = ?,
			updated_at = ?
		WHERE id = ?`,
		newMMR,
		win, loss, app.FameGained, app.FameLost, prime,
		win, loss, app.FameGained, app.FameLost, prime,
		lastBattleAt, lastRatedAt, now,
		gsID,
	)
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to update rating for guild %d season %d: %w", app.GuildID, app.SeasonID, err)
	}

	gs, err := scanGuildSeason(tx.QueryRowContext(ctx,
		`SELECT id, guild_id, season_id, mmr, carryover_mmr,
			battles, wins, losses, fame_gained, fame_lost, prime_time_battles,
			mmr_battles, mmr_wins, mmr_losses, mmr_fame_gained, mmr_fame_lost, mmr_prime_time_battles,
			last_battle_at, last_mmr_battle_at, created_at, updated_at
		FROM guild_seasons WHERE id = ?`, gsID,
	))
	if err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to reload rating for guild %d season %d: %w", app.GuildID, app.SeasonID, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.GuildSeason{}, fmt.Errorf("failed to commit rating for battle %d: %w", app.BattleID, err)
	}

	return gs, nil
}

// ensureGuildSeason creates the rating record on a guild's first rated
// battle of the season. The seed pulls a quarter of the previous
// season's deviation from the baseline forward, so strong guilds start
// slightly above 1000 and weak ones slightly below.
func (r *RatingRepository) ensureGuildSeason(ctx context.Context, tx *sql.Tx, guildID, seasonID int64, now time.Time) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM guild_seasons WHERE guild_id = ? AND season_id = ?`, guildID, seasonID,
	).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check rating for guild %d season %d: %w", guildID, seasonID, err)
	}

	seed := domain.MMRBaseline
	var prior float64
	err = tx.QueryRowContext(ctx, `
		SELECT gs.mmr FROM guild_seasons gs
		JOIN seasons s ON s.id = gs.season_id
		JOIN seasons cur ON cur.id = ?
		WHERE gs.guild_id = ? AND s.starts_at < cur.starts_at
		ORDER BY s.starts_at DESC
		LIMIT 1`, seasonID, guildID,
	).Scan(&prior)
	switch {
	case err == sql.ErrNoRows:
		// First season on record, start at the baseline.
	case err != nil:
		return fmt.Errorf("failed to read prior season rating for guild %d: %w", guildID, err)
	default:
		seed = domain.MMRBaseline + carryoverRatio*(prior-domain.MMRBaseline)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO guild_seasons (guild_id, season_id, mmr, carryover_mmr, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id, season_id) DO NOTHING`,
		guildID, seasonID, seed, seed, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create rating for guild %d season %d: %w", guildID, seasonID, err)
	}

	r.logger.Debug().
		Int64("guild_id", guildID).
		Int64("season_id", seasonID).
		Float64("seed_mmr", seed).
		Msg("guild season created")
	return nil
}

// RecentWins returns a guild's winning calculation logs for battles
// fought since the given time, newest battle first. The window is
// measured on battle start time, not processing time, so backfilled
// battles land in the right place.
func (r *RatingRepository) RecentWins(ctx context.Context, guildID, seasonID int64, since time.Time) ([]domain.MMRCalculationLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.battle_id, l.guild_id, l.season_id,
			l.previous_mmr, l.delta, l.raw_delta, l.new_mmr,
			l.is_win, l.anti_farming_factor, l.factors, l.opponents, l.calc_version, l.created_at
		FROM mmr_calculation_logs l
		JOIN battles b ON b.id = l.battle_id
		WHERE l.guild_id = ? AND l.season_id = ? AND l.is_win = 1 AND b.started_at >= ?
		ORDER BY b.started_at DESC`,
		guildID, seasonID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent wins for guild %d: %w", guildID, err)
	}
	defer rows.Close()

	var logs []domain.MMRCalculationLog
	for rows.Next() {
		log, err := scanCalculationLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calculation log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent wins for guild %d: %w", guildID, err)
	}

	return logs, nil
}

// GetCalculationLogs returns every audit row for one battle.
func (r *RatingRepository) GetCalculationLogs(ctx context.Context, battleID uint64) ([]domain.MMRCalculationLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, battle_id, guild_id, season_id,
			previous_mmr, delta, raw_delta, new_mmr,
			is_win, anti_farming_factor, factors, opponents, calc_version, created_at
		FROM mmr_calculation_logs WHERE battle_id = ? ORDER BY guild_id`, battleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load calculation logs for battle %d: %w", battleID, err)
	}
	defer rows.Close()

	var logs []domain.MMRCalculationLog
	for rows.Next() {
		log, err := scanCalculationLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calculation log for battle %d: %w", battleID, err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calculation logs for battle %d: %w", battleID, err)
	}

	return logs, nil
}

func scanCalculationLog(row rowScanner) (domain.MMRCalculationLog, error) {
	var (
		log       domain.MMRCalculationLog
		factors   string
		opponents string
	)
	err := row.Scan(
		&log.ID, &log.BattleID, &log.GuildID, &log.SeasonID,
		&log.PreviousMMR, &log.Delta, &log.RawDelta, &log.NewMMR,
		&log.IsWin, &log.AntiFarmingFactor, &factors, &opponents, &log.CalcVersion, &log.CreatedAt,
	)
	if err != nil {
		return domain.MMRCalculationLog{}, err
	}
	if err := json.Unmarshal([]byte(factors), &log.Factors); err != nil {
		return domain.MMRCalculationLog{}, fmt.Errorf("failed to decode factors: %w", err)
	}
	if err := json.Unmarshal([]byte(opponents), &log.Opponents); err != nil {
		return domain.MMRCalculationLog{}, fmt.Errorf("failed to decode opponents: %w", err)
	}
	return log, nil
}

func laterOf(existing sql.NullTime, t time.Time) time.Time {
	if existing.Valid && existing.Time.After(t) {
		return existing.Time
	}
	return t
}
