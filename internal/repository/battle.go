package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"albion-mmr/internal/constants"
	"albion-mmr/internal/domain"

	"github.com/rs/zerolog"
)

// BattleRepository persists raw battles and their kill feeds. Battles
// are immutable once stored except for the kills-fetched stamp.
type BattleRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewBattleRepository(sqlDB *sql.DB, logger zerolog.Logger) *BattleRepository {
	return &BattleRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// UpsertBatch stores a crawled page of battles. Already-known battles
// are left untouched.
func (r *BattleRepository) UpsertBatch(ctx context.Context, battles []domain.Battle) error {
	if len(battles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := 0; i < len(battles); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(battles) {
			end = len(battles)
		}

		for _, b := range battles[i:end] {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO battles (id, started_at, total_fame, total_kills, total_players, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO NOTHING`,
				b.ID, b.StartedAt.UTC(), b.TotalFame, b.TotalKills, b.TotalPlayers, now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert battle %d: %w", b.ID, err)
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read insert result for battle %d: %w", b.ID, err)
			}
			if inserted == 0 {
				continue
			}

			for _, g := range b.Guilds {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO battle_guilds (battle_id, name, alliance, kills, deaths, fame, players, avg_item_power)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)
					ON CONFLICT (battle_id, name) DO NOTHING`,
					b.ID, g.Name, g.Alliance, g.Kills, g.Deaths, g.Fame, g.Players, g.AvgItemPower,
				)
				if err != nil {
					return fmt.Errorf("failed to insert guild %q for battle %d: %w", g.Name, b.ID, err)
				}
			}
		}
	}

	return tx.Commit()
}

// StoreKillEvents appends a battle's kill feed and stamps the battle as
// fetched, in one transaction. Replayed events are ignored.
func (r *BattleRepository) StoreKillEvents(ctx context.Context, battleID uint64, events []domain.KillEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, k := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kill_events (
				id, battle_id, occurred_at, fame,
				killer_name, killer_guild_id, killer_guild, killer_alliance, killer_item_power,
				victim_name, victim_guild_id, victim_guild, victim_alliance, victim_item_power
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			k.ID, battleID, k.Timestamp.UTC(), k.Fame,
			k.Killer.Name, k.Killer.GuildID, k.Killer.Guild, k.Killer.Alliance, k.Killer.AvgItemPower,
			k.Victim.Name, k.Victim.GuildID, k.Victim.Guild, k.Victim.Alliance, k.Victim.AvgItemPower,
		)
		if err != nil {
			return fmt.Errorf("failed to insert kill event %d for battle %d: %w", k.ID, battleID, err)
		}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE battles SET kills_fetched_at = ?, updated_at = ? WHERE id = ?`,
		now, now, battleID,
	)
	if err != nil {
		return fmt.Errorf("failed to stamp kills fetched for battle %d: %w", battleID, err)
	}

	return tx.Commit()
}

// GetBattle loads one battle with its guild summaries. Returns nil when
// the battle is unknown.
func (r *BattleRepository) GetBattle(ctx context.Context, battleID uint64) (*domain.Battle, error) {
	var (
		b            domain.Battle
		killsFetched sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, total_fame, total_kills, total_players, kills_fetched_at, created_at, updated_at
		FROM battles WHERE id = ?`, battleID,
	).Scan(&b.ID, &b.StartedAt, &b.TotalFame, &b.TotalKills, &b.TotalPlayers, &killsFetched, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load battle %d: %w", battleID, err)
	}
	if killsFetched.Valid {
		t := killsFetched.Time
		b.KillsFetchedAt = &t
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT battle_id, name, alliance, kills, deaths, fame, players, avg_item_power
		FROM battle_guilds WHERE battle_id = ?`, battleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load guilds for battle %d: %w", battleID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var g domain.BattleGuild
		if err := rows.Scan(&g.BattleID, &g.Name, &g.Alliance, &g.Kills, &g.Deaths, &g.Fame, &g.Players, &g.AvgItemPower); err != nil {
			return nil, fmt.Errorf("failed to scan guild for battle %d: %w", battleID, err)
		}
		b.Guilds = append(b.Guilds, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guilds for battle %d: %w", battleID, err)
	}

	return &b, nil
}

// GetKillEvents loads a battle's stored kill feed in event order.
func (r *BattleRepository) GetKillEvents(ctx context.Context, battleID uint64) ([]domain.KillEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, battle_id, occurred_at, fame,
			killer_name, killer_guild_id, killer_guild, killer_alliance, killer_item_power,
			victim_name, victim_guild_id, victim_guild, victim_alliance, victim_item_power
		FROM kill_events WHERE battle_id = ? ORDER BY occurred_at, id`, battleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load kill events for battle %d: %w", battleID, err)
	}
	defer rows.Close()

	var events []domain.KillEvent
	for rows.Next() {
		var k domain.KillEvent
		if err := rows.Scan(
			&k.ID, &k.BattleID, &k.Timestamp, &k.Fame,
			&k.Killer.Name, &k.Killer.GuildID, &k.Killer.Guild, &k.Killer.Alliance, &k.Killer.AvgItemPower,
			&k.Victim.Name, &k.Victim.GuildID, &k.Victim.Guild, &k.Victim.Alliance, &k.Victim.AvgItemPower,
		); err != nil {
			return nil, fmt.Errorf("failed to scan kill event for battle %d: %w", battleID, err)
		}
		events = append(events, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kill events for battle %d: %w", battleID, err)
	}

	return events, nil
}

// PendingKillFetch lists battles whose kill feed has not been fetched
// yet, oldest first.
func (r *BattleRepository) PendingKillFetch(ctx context.Context, limit int) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM battles
		WHERE kills_fetched_at IS NULL
		ORDER BY started_at
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending battles: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending battle id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending battles: %w", err)
	}

	return ids, nil
}
