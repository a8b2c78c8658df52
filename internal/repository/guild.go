package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"albion-mmr/internal/domain"

	"github.com/rs/zerolog"
)

// GuildRepository owns guild identity. Upstream data identifies guilds
// inconsistently (sometimes by id, sometimes only by name), so Resolve
// merges both into one stable local row.
type GuildRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGuildRepository(sqlDB *sql.DB, logger zerolog.Logger) *GuildRepository {
	return &GuildRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Resolve finds a guild by external id, then by name, and creates it on
// first observation. A guild first seen by name alone gets its external
// id backfilled once one arrives.
func (r *GuildRepository) Resolve(ctx context.Context, externalID, name string) (domain.Guild, error) {
	if externalID != "" {
		g, err := r.findByExternalID(ctx, externalID)
		if err != nil {
			return domain.Guild{}, err
		}
		if g != nil {
			if name != "" && g.Name != name {
				renamed, err := r.renameGuild(ctx, g.ID, name)
				if err != nil {
					return domain.Guild{}, err
				}
				if renamed {
					g.Name = name
				}
			}
			return *g, nil
		}
	}

	g, err := r.findByName(ctx, name)
	if err != nil {
		return domain.Guild{}, err
	}
	if g != nil {
		if externalID != "" && g.ExternalID == "" {
			if err := r.backfillExternalID(ctx, g.ID, externalID); err != nil {
				return domain.Guild{}, err
			}
			g.ExternalID = externalID
		}
		return *g, nil
	}

	created, err := r.create(ctx, externalID, name)
	if err != nil {
		return domain.Guild{}, err
	}
	return created, nil
}

func (r *GuildRepository) findByExternalID(ctx context.Context, externalID string) (*domain.Guild, error) {
	var g domain.Guild
	err := r.db.QueryRowContext(ctx,
		`SELECT id, external_id, name, created_at FROM guilds WHERE external_id = ?`, externalID,
	).Scan(&g.ID, &g.ExternalID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find guild by external id %q: %w", externalID, err)
	}
	return &g, nil
}

func (r *GuildRepository) findByName(ctx context.Context, name string) (*domain.Guild, error) {
	var g domain.Guild
	err := r.db.QueryRowContext(ctx,
		`SELECT id, external_id, name, created_at FROM guilds WHERE name = ?`, name,
	).Scan(&g.ID, &g.ExternalID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find guild by name %q: %w", name, err)
	}
	return &g, nil
}

// renameGuild refreshes the display name after an upstream rename. OR
// IGNORE keeps the old name when the new one is already taken; the
// return value reports whether the rename stuck.
func (r *GuildRepository) renameGuild(ctx context.Context, id int64, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE OR IGNORE guilds SET name = ? WHERE id = ?`, name, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to rename guild %d: %w", id, err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rename result for guild %d: %w", id, err)
	}
	return changed > 0, nil
}

func (r *GuildRepository) backfillExternalID(ctx context.Context, id int64, externalID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE guilds SET external_id = ? WHERE id = ? AND external_id = ''`, externalID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to backfill external id for guild %d: %w", id, err)
	}
	r.logger.Debug().
		Int64("guild_id", id).
		Str("external_id", externalID).
		Msg("guild external id backfilled")
	return nil
}

func (r *GuildRepository) create(ctx context.Context, externalID, name string) (domain.Guild, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO guilds (external_id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		externalID, name, now,
	)
	if err != nil {
		return domain.Guild{}, fmt.Errorf("failed to create guild %q: %w", name, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.Guild{}, fmt.Errorf("failed to read insert result for guild %q: %w", name, err)
	}
	if inserted == 0 {
		// Lost a create race; the row exists now.
		g, err := r.findByName(ctx, name)
		if err != nil {
			return domain.Guild{}, err
		}
		if g == nil {
			return domain.Guild{}, fmt.Errorf("guild %q vanished after conflicting insert", name)
		}
		return *g, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Guild{}, fmt.Errorf("failed to read new guild id for %q: %w", name, err)
	}

	r.logger.Debug().
		Int64("guild_id", id).
		Str("name", name).
		Msg("guild created")

	return domain.Guild{ID: id, ExternalID: externalID, Name: name, CreatedAt: now}, nil
}
