package rating

import "time"

// CalcVersion tags every calculation log row with the formula revision
// that produced it.
const CalcVersion = 7

// Factor weights. They sum to 1.0, so the weighted sum stays in roughly
// [-1, 1] before K-factor scaling.
const (
	weightWinLoss              = 0.30
	weightFameDifferential     = 0.13
	weightPlayerCount          = 0.22
	weightItemPower            = 0.04
	weightBattleSize           = 0.04
	weightKDRatio              = 0.04
	weightDuration             = 0.03
	weightClustering           = 0.02
	weightOpponentStrength     = 0.13
	weightAllianceContribution = 0.05
)

// Delta scaling. The K-factor shrinks 5% per 100 MMR above baseline and
// never drops below a quarter of its base, so ratings converge instead
// of growing without bound.
const (
	baseKFactor     = 60.0
	kDecayPer100MMR = 0.95
	kFactorFloor    = 0.25

	fullCreditPlayers = 8
	playerScaleExp    = 0.8
	playerScaleFloor  = 0.10

	easyWinCap = 45.0
)

// Win/loss blend. Each component measures performance against the
// guild's expected share of the battle.
const (
	winLossKillWeight       = 0.35
	winLossDeathWeight      = 0.25
	winLossFameGainedWeight = 0.25
	winLossFameLostWeight   = 0.15

	underdogBoostMin = 0.75
	underdogBoostMax = 1.25
)

// Alliance contribution blend. Underperformance penalties run at half
// severity (penalty scale reduced from 1.0 to 0.5).
const (
	allianceKillWeight   = 0.50
	allianceFameWeight   = 0.30
	allianceDeathWeight  = 0.20
	alliancePenaltyScale = 0.5
)

// Low-power farming. A win where most enemies sit below the item-power
// threshold is worth almost nothing.
const (
	lowIPThreshold  = 900.0
	lowIPEnemyShare = 0.60
	lowIPPenalty    = 0.25
	lowIPDeltaCap   = 5.0
)

// Anti-farming. Repeat wins against the same opponent inside the
// lookback window decay linearly to zero gain.
const (
	antiFarmLookback = 30 * 24 * time.Hour
	antiFarmFreeWins = 3
	antiFarmZeroWins = 10
)

// Item-power factor: a side whose average gear deviates more than
// itemPowerDeviation from the battle mean is nudged by itemPowerNudge
// against the geared side.
const (
	itemPowerDeviation = 0.20
	itemPowerNudge     = 0.3
)
