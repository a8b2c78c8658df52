package repository

import (
	"database/sql"
	"testing"

	"albion-mmr/internal/config"
	"albion-mmr/internal/database"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestDB opens a migrated in-memory database. The pool is capped at
// one connection, so the ":memory:" database lives until cleanup.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(&config.Config{DBPath: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

type repoFixture struct {
	db      *sql.DB
	guilds  *GuildRepository
	seasons *SeasonRepository
	ratings *RatingRepository
	battles *BattleRepository
	mass    *MassRepository
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()

	db := newTestDB(t)
	nop := zerolog.Nop()
	return &repoFixture{
		db:      db,
		guilds:  NewGuildRepository(db, nop),
		seasons: NewSeasonRepository(db, nop),
		ratings: NewRatingRepository(db, nop),
		battles: NewBattleRepository(db, nop),
		mass:    NewMassRepository(db, nop),
	}
}
