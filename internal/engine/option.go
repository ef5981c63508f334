// Shared value types for options, conversations and turn outcomes.
package engine

// OptionType distinguishes branching dialogue from consequential actions.
type OptionType string

const (
	OptionDialogue OptionType = "dialogue"
	OptionAction   OptionType = "action"
)

// Triplet is one measurable narrative objective for a faction: the world at
// the start of the game, the desired end state, and the gap between them.
// Immutable after roster initialization.
type Triplet struct {
	Initial  string
	End      string
	Gap      string
	Severity string
}

// ActionOption is a single choice offered to the player: free-form dialogue
// or an action. RelatedTriplet is the 1-based index of the objective the
// action directly advances; 0 means the move is uncontested. The attribute
// tag selects which actor attribute backs the skill check.
type ActionOption struct {
	Text             string     `json:"text"`
	Type             OptionType `json:"type"`
	RelatedTriplet   int        `json:"related_triplet,omitempty"`
	RelatedAttribute string     `json:"related_attribute,omitempty"`
}

// IsAction reports whether the option is a consequential action.
func (o ActionOption) IsAction() bool {
	return o.Type == OptionAction
}

// Contested reports whether the option directly targets an objective
// triplet, which flips the credibility policy from reward to penalty.
func (o ActionOption) Contested() bool {
	return o.RelatedTriplet > 0
}

// ConversationEntry is one utterance in an actor's exchange window.
type ConversationEntry struct {
	Speaker string     `json:"speaker"`
	Text    string     `json:"text"`
	Type    OptionType `json:"type"`
}

// HistoryEntry records one performed action for prompt assembly and
// persistence: who did it and what the action text was.
type HistoryEntry struct {
	Actor string `json:"actor"`
	Text  string `json:"text"`
}

// Resolution is the immutable outcome of resolving one action: the dice
// result, the scores behind it, and the social cost or gain the attempt
// carried regardless of success. Appended to the session history and never
// mutated afterwards.
type Resolution struct {
	Label            string       `json:"label"`
	Option           ActionOption `json:"option"`
	Actor            string       `json:"actor"`
	Success          bool         `json:"success"`
	Roll             int          `json:"roll"`
	ActorScore       int          `json:"actor_score"`
	PartnerScore     int          `json:"partner_score"`
	EffectiveScore   int          `json:"effective_score"`
	CredibilityCost  int          `json:"credibility_cost"`
	CredibilityGain  int          `json:"credibility_gain"`
	Targets          []string     `json:"targets"`
	FailureText      string       `json:"failure_text,omitempty"`
	Rerolls          int          `json:"rerolls"`
}

// Shortfall describes one faction whose credibility cannot cover a reroll.
type Shortfall struct {
	Target    string `json:"target"`
	Available int    `json:"available"`
	Needed    int    `json:"needed"`
}
