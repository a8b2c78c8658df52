package api

import "albion-mmr/internal/domain"

// ToDomain maps the upstream battle shape onto the stored model.
func (b *Battle) ToDomain() domain.Battle {
	out := domain.Battle{
		ID:           b.ID,
		StartedAt:    b.StartTime.UTC(),
		TotalFame:    b.TotalFame,
		TotalKills:   b.TotalKills,
		TotalPlayers: b.TotalPlayers,
		Guilds:       make([]domain.BattleGuild, 0, len(b.Guilds)),
	}
	for _, g := range b.Guilds {
		out.Guilds = append(out.Guilds, domain.BattleGuild{
			BattleID:     b.ID,
			Name:         g.Name,
			Alliance:     g.Alliance,
			Kills:        g.Kills,
			Deaths:       g.Deaths,
			Fame:         g.KillFame,
			Players:      g.Players,
			AvgItemPower: g.AverageItemPower,
		})
	}
	return out
}

// ToDomain maps one upstream kill event onto the stored model.
func (k *KillEvent) ToDomain(battleID uint64) domain.KillEvent {
	return domain.KillEvent{
		ID:        k.EventID,
		BattleID:  battleID,
		Timestamp: k.TimeStamp.UTC(),
		Fame:      k.TotalVictimKillFame,
		Killer:    k.Killer.toDomain(),
		Victim:    k.Victim.toDomain(),
	}
}

func (p Participant) toDomain() domain.Participant {
	return domain.Participant{
		Name:         p.Name,
		GuildID:      p.GuildID,
		Guild:        p.GuildName,
		Alliance:     p.AllianceName,
		AvgItemPower: p.AverageItemPower,
	}
}
