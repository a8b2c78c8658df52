package domain

import "errors"

// ErrBattleAlreadyRated is returned by the rating store when a
// calculation log row already exists for the (battle, guild, season)
// triple. Callers treat it as a successful no-op.
var ErrBattleAlreadyRated = errors.New("battle already rated for guild and season")
