// Named policy functions for turn resolution arithmetic. Kept separate from
// the resolver so each formula can be tested and replaced on its own.
package engine

const (
	// CredibilityReward is added to the player → target edge when an
	// uncontested option is performed.
	CredibilityReward = 20

	// CredibilityPenalty is subtracted from the player → target edge when a
	// contested (triplet-referencing) option is performed.
	CredibilityPenalty = 20

	// rerollBaseCost is the credibility price of the first reroll in a turn.
	rerollBaseCost = 10
)

// EffectiveScore combines the acting character's attribute score with the
// player's contribution. The actor carries full weight, the partner assists
// at half. Both inputs are still recorded individually on the Resolution.
func EffectiveScore(actorScore, partnerScore int) int {
	return actorScore + partnerScore/2
}

// NextRerollCost returns the credibility cost of the next reroll given how
// many rerolls the current turn has already consumed. Costs rise linearly so
// repeated retries drain trust fast.
func NextRerollCost(rerolls int) int {
	if rerolls < 0 {
		rerolls = 0
	}
	return rerollBaseCost * (rerolls + 1)
}

// CredibilityDelta returns the signed player-edge adjustment for performing
// option: a fixed reward for uncontested moves, a fixed penalty for moves
// that directly push a contested objective. Independent of dice outcome.
func CredibilityDelta(option ActionOption) int {
	if option.Contested() {
		return -CredibilityPenalty
	}
	return CredibilityReward
}
