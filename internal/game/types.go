package game

import (
	"fmt"
	"time"

	"github.com/lox/blackjack/blackjack"
)

// Phase is the round state machine position
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDealing
	PhaseInsurance
	PhasePlayerActing
	PhaseDealerActing
	PhaseSettling
	PhaseGameOver
)

// String returns the string representation of a phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDealing:
		return "dealing"
	case PhaseInsurance:
		return "insurance"
	case PhasePlayerActing:
		return "player-acting"
	case PhaseDealerActing:
		return "dealer-acting"
	case PhaseSettling:
		return "settling"
	case PhaseGameOver:
		return "game-over"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	for c := PhaseIdle; c <= PhaseGameOver; c++ {
		if c.String() == string(text) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// ActionType is one of the fixed host-facing actions
type ActionType string

const (
	ActionNewShoe           ActionType = "NEW_SHOE"
	ActionStartRound        ActionType = "START_ROUND"
	ActionHit               ActionType = "HIT"
	ActionStand             ActionType = "STAND"
	ActionDouble            ActionType = "DOUBLE"
	ActionSplit             ActionType = "SPLIT"
	ActionSurrender         ActionType = "SURRENDER"
	ActionInsuranceDecision ActionType = "INSURANCE_DECISION"
)

// ActionTypes lists every dispatchable action
var ActionTypes = []ActionType{
	ActionNewShoe, ActionStartRound, ActionHit, ActionStand,
	ActionDouble, ActionSplit, ActionSurrender, ActionInsuranceDecision,
}

// ParseActionType accepts the canonical names plus the lower case short
// forms used by the terminal and network clients.
func ParseActionType(s string) (ActionType, bool) {
	switch s {
	case "NEW_SHOE", "new_shoe", "shoe":
		return ActionNewShoe, true
	case "START_ROUND", "start_round", "deal", "start":
		return ActionStartRound, true
	case "HIT", "hit":
		return ActionHit, true
	case "STAND", "stand":
		return ActionStand, true
	case "DOUBLE", "double":
		return ActionDouble, true
	case "SPLIT", "split":
		return ActionSplit, true
	case "SURRENDER", "surrender":
		return ActionSurrender, true
	case "INSURANCE_DECISION", "insurance_decision", "insurance":
		return ActionInsuranceDecision, true
	default:
		return "", false
	}
}

// Action is a dispatch request. Amount is only read by INSURANCE_DECISION.
type Action struct {
	Type   ActionType      `json:"type"`
	Amount blackjack.Money `json:"amount,omitempty"`
}

// Outcome of a settled hand
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeWin       Outcome = "win"
	OutcomeLose      Outcome = "lose"
	OutcomePush      Outcome = "push"
	OutcomeBlackjack Outcome = "blackjack"
	OutcomeSurrender Outcome = "surrender"
)

// Hand is one player hand within a round. Hands are held by value; a split
// replaces one hand with two new ones.
type Hand struct {
	Cards          []blackjack.Card
	Wager          blackjack.Money
	FromSplit      bool
	AceSplit       bool
	Done           bool
	Outcome        Outcome
	Acted          bool
	Surrendered    bool
	Busted         bool
	NeedsSplitCard bool
}

// Total returns the hand total with softness
func (h Hand) Total() blackjack.Total {
	return blackjack.HandTotalDetailed(h.Cards)
}

// Rules are the table rules. They can only change between rounds.
type Rules struct {
	Decks         int             `json:"decks"`
	HitSoft17     bool            `json:"hitSoft17"`
	Surrender     bool            `json:"surrender"`
	MinimumBet    blackjack.Money `json:"minimumBet"`
	BetUnit       blackjack.Money `json:"betUnit"`
	MaxSplitHands int             `json:"maxSplitHands"`
}

// DefaultRules returns four decks, dealer hits soft 17, no surrender, a $5
// minimum in $5 units and up to four split hands.
func DefaultRules() Rules {
	return Rules{
		Decks:         4,
		HitSoft17:     true,
		Surrender:     false,
		MinimumBet:    blackjack.Dollars(5),
		BetUnit:       blackjack.Dollars(5),
		MaxSplitHands: 4,
	}
}

func (r Rules) normalize() Rules {
	d := DefaultRules()
	if r.Decks <= 0 {
		r.Decks = d.Decks
	}
	if r.MinimumBet <= 0 {
		r.MinimumBet = d.MinimumBet
	}
	if r.BetUnit <= 0 {
		r.BetUnit = d.BetUnit
	}
	if r.MaxSplitHands < 2 {
		r.MaxSplitHands = d.MaxSplitHands
	}
	return r
}

// sameShoeRules reports whether o keeps the rules that are fixed for a shoe
func (r Rules) sameShoeRules(o Rules) bool {
	return r.Decks == o.Decks && r.HitSoft17 == o.HitSoft17 && r.Surrender == o.Surrender
}

// Pacing holds the presentation waits between round steps. A zero duration
// skips the wait.
type Pacing struct {
	PostDeal     time.Duration
	DealerReveal time.Duration
	HandAdvance  time.Duration
	ResultCycle  time.Duration
}

// DefaultPacing returns the waits used by interactive hosts
func DefaultPacing() Pacing {
	return Pacing{
		PostDeal:     80 * time.Millisecond,
		DealerReveal: 220 * time.Millisecond,
		HandAdvance:  500 * time.Millisecond,
		ResultCycle:  time.Second,
	}
}

// InsuranceScenario forces the dealer's opening cards
type InsuranceScenario int

const (
	InsuranceScenarioOff InsuranceScenario = iota
	// dealer shows an ace over a ten: blackjack
	InsuranceScenarioBlackjack
	// dealer shows an ace over a nine
	InsuranceScenarioNoBlackjack
)

// Scenario forces specific deals for demos and manual testing. It only
// changes which cards are drawn, never the round logic.
type Scenario struct {
	Insurance InsuranceScenario
	// Splits makes the player's second card split-eligible with the first
	Splits bool
}

// Active reports whether the scenario forces anything
func (s Scenario) Active() bool {
	return s.Insurance != InsuranceScenarioOff || s.Splits
}
