package season

import (
	"context"
	"errors"
	"testing"
	"time"

	"albion-mmr/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type massCall struct {
	guildSeasonID int64
	windowID      int64
	playerCount   int
}

type fakeMassStore struct {
	calls []massCall
	err   error
}

func (f *fakeMassStore) UpdateMass(_ context.Context, guildSeasonID, windowID int64, playerCount int) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, massCall{guildSeasonID, windowID, playerCount})
	return nil
}

func testSeasons() []domain.Season {
	endS1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Season{
		{ID: 1, Name: "Season 1", StartsAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), EndsAt: &endS1},
		{ID: 2, Name: "Season 2", StartsAt: endS1, Active: true},
	}
}

func newTestTracker(mass MassStore) *Tracker {
	windows := []domain.PrimeTimeWindow{
		{ID: 1, StartHour: 12, EndHour: 14, Timezone: "UTC"},
		{ID: 2, StartHour: 22, EndHour: 2, Timezone: "UTC"},
	}
	return NewTracker(testSeasons(), windows, mass, zerolog.Nop())
}

func TestResolveSeason(t *testing.T) {
	tr := newTestTracker(&fakeMassStore{})

	tests := []struct {
		name string
		ts   time.Time
		want int64
	}{
		{"mid first season", time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC), 1},
		{"first instant of a season", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1},
		{"season end belongs to the next", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 2},
		{"open season runs until now", time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC), 2},
		{"before all seasons", time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.ResolveSeason(tt.ts)
			if tt.want == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestResolveSeasonFutureTimestamp(t *testing.T) {
	tr := newTestTracker(&fakeMassStore{})

	// The open season runs until now, not forever.
	assert.Nil(t, tr.ResolveSeason(time.Now().Add(48*time.Hour)))
}

func TestIsPrimeTime(t *testing.T) {
	tr := newTestTracker(&fakeMassStore{})

	tests := []struct {
		name string
		hour int
		want bool
	}{
		{"inside plain window", 12, true},
		{"plain window end is exclusive", 14, false},
		{"before midnight in wrapped window", 23, true},
		{"after midnight in wrapped window", 1, true},
		{"wrapped window end is exclusive", 2, false},
		{"outside every window", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := time.Date(2026, 2, 10, tt.hour, 30, 0, 0, time.UTC)
			assert.Equal(t, tt.want, tr.IsPrimeTime(ts))
		})
	}
}

func TestIsPrimeTimeNormalizesToUTC(t *testing.T) {
	tr := newTestTracker(&fakeMassStore{})

	// 07:30-05:00 is 12:30 UTC, inside the plain window.
	east := time.FixedZone("UTC-5", -5*60*60)
	assert.True(t, tr.IsPrimeTime(time.Date(2026, 2, 10, 7, 30, 0, 0, east)))
}

func TestMatchWindowDegenerate(t *testing.T) {
	windows := []domain.PrimeTimeWindow{{ID: 7, StartHour: 5, EndHour: 5}}
	tr := NewTracker(nil, windows, &fakeMassStore{}, zerolog.Nop())

	w, ok := tr.MatchWindow(time.Date(2026, 2, 10, 5, 59, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, int64(7), w.ID)

	_, ok = tr.MatchWindow(time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestUpdateMassInsideWindow(t *testing.T) {
	mass := &fakeMassStore{}
	tr := newTestTracker(mass)

	battleTime := time.Date(2026, 2, 10, 23, 15, 0, 0, time.UTC)
	require.NoError(t, tr.UpdateMass(context.Background(), 31, 24, battleTime))

	require.Len(t, mass.calls, 1)
	assert.Equal(t, massCall{guildSeasonID: 31, windowID: 2, playerCount: 24}, mass.calls[0])
}

func TestUpdateMassOutsideWindowIsNoop(t *testing.T) {
	mass := &fakeMassStore{}
	tr := newTestTracker(mass)

	battleTime := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, tr.UpdateMass(context.Background(), 31, 24, battleTime))
	assert.Empty(t, mass.calls)
}

func TestUpdateMassPropagatesStoreError(t *testing.T) {
	mass := &fakeMassStore{err: errors.New("disk full")}
	tr := newTestTracker(mass)

	battleTime := time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)
	require.Error(t, tr.UpdateMass(context.Background(), 31, 24, battleTime))
}
