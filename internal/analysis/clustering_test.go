package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"albion-mmr/internal/domain"
)

func kill(killer, victim string, at time.Time, fame int64) domain.KillEvent {
	return domain.KillEvent{
		Timestamp: at,
		Fame:      fame,
		Killer:    domain.Participant{Name: killer + "-player", Guild: killer},
		Victim:    domain.Participant{Name: victim + "-player", Guild: victim},
	}
}

func TestClusterScoresPairs(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	kills := []domain.KillEvent{
		kill("A", "B", base, 10_000),
		kill("A", "B", base.Add(10*time.Second), 10_000),
		kill("B", "A", base.Add(130*time.Second), 10_000),
	}

	scores := ClusterScores(kills)

	// A has one kill pair inside the window and a two-kill run, which
	// is below the streak minimum. B's single kill scores nothing.
	assert.Equal(t, 1.0, scores["A"])
	assert.Equal(t, 0.0, scores["B"])
}

func TestClusterScoresCoordinatedRun(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	kills := []domain.KillEvent{
		kill("A", "X", base, 10_000),
		kill("B", "X", base.Add(20*time.Second), 10_000),
		kill("C", "X", base.Add(40*time.Second), 10_000),
	}

	scores := ClusterScores(kills)

	// Three distinct guilds inside the coordination window double the
	// run weight for each participant.
	assert.Equal(t, 4.0, scores["A"])
	assert.Equal(t, 4.0, scores["B"])
	assert.Equal(t, 4.0, scores["C"])
}

func TestClusterScoresFamePairs(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	kills := []domain.KillEvent{
		kill("A", "B", base, 150_000),
		kill("A", "B", base.Add(50*time.Second), 200_000),
	}

	scores := ClusterScores(kills)

	// 50s exceeds the plain pair window but not the high-fame one.
	assert.Equal(t, 1.5, scores["A"])
}

func TestClusterScoresStreak(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	kills := []domain.KillEvent{
		kill("A", "B", base, 10_000),
		kill("A", "B", base.Add(200*time.Second), 10_000),
		kill("A", "B", base.Add(400*time.Second), 10_000),
	}

	scores := ClusterScores(kills)

	// Kills too far apart for pairs, but an unbroken three-kill run.
	assert.Equal(t, 1.5, scores["A"])
}

func TestFriendGroups(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	var kills []domain.KillEvent
	for i := 0; i < 5; i++ {
		kills = append(kills, kill("A", "C", base.Add(time.Duration(i)*time.Minute), 10_000))
	}
	for i := 0; i < 3; i++ {
		kills = append(kills, kill("C", "A", base.Add(time.Duration(i)*time.Minute), 10_000))
	}
	for i := 0; i < 4; i++ {
		kills = append(kills, kill("B", "C", base.Add(time.Duration(i)*time.Minute), 10_000))
	}

	groups := FriendGroups(kills, map[string]int{"A": 10, "B": 8, "C": 5})

	// A and B never touched each other while both racked up kills, so
	// they are grouped. C traded kills with both and stays alone;
	// singleton groups are not reported.
	assert.Equal(t, [][]string{{"A", "B"}}, groups)
}

func TestFriendGroupsAllEnemies(t *testing.T) {
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	kills := []domain.KillEvent{
		kill("A", "B", base, 10_000),
		kill("B", "A", base.Add(time.Minute), 10_000),
	}

	groups := FriendGroups(kills, map[string]int{"A": 1, "B": 1})
	assert.Empty(t, groups)
}
