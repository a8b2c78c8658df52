package analysis

import (
	"sort"
	"time"

	"albion-mmr/internal/domain"
)

// Kill-clustering weights. Higher scores mean a guild's kills landed in
// focused bursts rather than scattered skirmishing.
const (
	pairWindow        = 30 * time.Second
	coordinatedWindow = 120 * time.Second
	famePairWindow    = 60 * time.Second

	pairWeight        = 1.0
	coordinatedWeight = 2.0
	famePairWeight    = 1.5
	streakWeight      = 0.5

	famePairMinFame = 100_000
	minStreakLength = 3
)

// ClusterScores scores each guild's kill clustering from the battle's
// kill feed. Events are ordered by timestamp before scanning.
func ClusterScores(kills []domain.KillEvent) map[string]float64 {
	scores := make(map[string]float64)
	if len(kills) == 0 {
		return scores
	}

	ordered := make([]domain.KillEvent, len(kills))
	copy(ordered, kills)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	byGuild := make(map[string][]domain.KillEvent)
	for _, k := range ordered {
		g := k.Killer.Guild
		if g == "" {
			continue
		}
		byGuild[g] = append(byGuild[g], k)
	}

	for g, own := range byGuild {
		scores[g] += pairScore(own) * pairWeight
		scores[g] += famePairScore(own) * famePairWeight
	}

	coordinatedScore(ordered, scores)

	for g := range byGuild {
		if streak := longestStreak(ordered, g); streak >= minStreakLength {
			scores[g] += float64(streak) * streakWeight
		}
	}

	return scores
}

// pairScore counts adjacent same-guild kills inside the pair window.
func pairScore(own []domain.KillEvent) float64 {
	var n float64
	for i := 1; i < len(own); i++ {
		if own[i].Timestamp.Sub(own[i-1].Timestamp) <= pairWindow {
			n++
		}
	}
	return n
}

// famePairScore counts adjacent high-fame kills by the same guild
// inside the fame-pair window.
func famePairScore(own []domain.KillEvent) float64 {
	var big []time.Time
	for _, k := range own {
		if k.Fame >= famePairMinFame {
			big = append(big, k.Timestamp)
		}
	}
	var n float64
	for i := 1; i < len(big); i++ {
		if big[i].Sub(big[i-1]) <= famePairWindow {
			n++
		}
	}
	return n
}

// coordinatedScore credits three-kill runs where consecutive killers
// belong to different guilds, all inside the coordination window. Runs
// spanning three distinct guilds count double.
func coordinatedScore(ordered []domain.KillEvent, scores map[string]float64) {
	for i := 0; i+2 < len(ordered); i++ {
		a, b, c := ordered[i], ordered[i+1], ordered[i+2]
		if c.Timestamp.Sub(a.Timestamp) > coordinatedWindow {
			continue
		}
		ga, gb, gc := a.Killer.Guild, b.Killer.Guild, c.Killer.Guild
		if ga == "" || gb == "" || gc == "" {
			continue
		}
		if ga == gb || gb == gc {
			continue
		}
		w := coordinatedWeight
		if ga != gc {
			w *= 2
		}
		credited := map[string]bool{}
		for _, g := range []string{ga, gb, gc} {
			if !credited[g] {
				scores[g] += w
				credited[g] = true
			}
		}
	}
}

// longestStreak returns the longest run of consecutive kills by one
// guild in the battle-wide kill order.
func longestStreak(ordered []domain.KillEvent, guild string) int {
	best, run := 0, 0
	for _, k := range ordered {
		if k.Killer.Guild == guild {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return best
}

// friendGroupMaxCrossRatio bounds cross-kills between allied-in-practice
// guilds: below 10% of their combined kills they are grouped together.
const friendGroupMaxCrossRatio = 0.10

// FriendGroups greedily groups guilds whose mutual kills are rare
// relative to their combined kill output. Groups are reported for
// auditing; they do not constrain opponent selection.
func FriendGroups(kills []domain.KillEvent, killTotals map[string]int) [][]string {
	cross := make(map[[2]string]int)
	for _, k := range kills {
		a, b := k.Killer.Guild, k.Victim.Guild
		if a == "" || b == "" || a == b {
			continue
		}
		cross[[2]string{a, b}]++
	}

	names := make([]string, 0, len(killTotals))
	for g := range killTotals {
		names = append(names, g)
	}
	sort.Strings(names)

	crossKills := func(a, b string) int {
		return cross[[2]string{a, b}] + cross[[2]string{b, a}]
	}

	var groups [][]string
	grouped := make(map[string]bool)
	for _, g := range names {
		if grouped[g] {
			continue
		}
		grouped[g] = true
		group := []string{g}
		for _, h := range names {
			if grouped[h] {
				continue
			}
			combined := killTotals[g] + killTotals[h]
			if combined == 0 {
				continue
			}
			if float64(crossKills(g, h)) < friendGroupMaxCrossRatio*float64(combined) {
				grouped[h] = true
				group = append(group, h)
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}
