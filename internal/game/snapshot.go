package game

import (
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/shoe"
)

// HandView is the read-only view of a player hand
type HandView struct {
	Cards       []blackjack.Card `json:"cards"`
	Wager       blackjack.Money  `json:"wager"`
	Total       int              `json:"total"`
	Soft        bool             `json:"soft"`
	FromSplit   bool             `json:"fromSplit"`
	AceSplit    bool             `json:"aceSplit"`
	Done        bool             `json:"done"`
	Acted       bool             `json:"acted"`
	Busted      bool             `json:"busted"`
	Surrendered bool             `json:"surrendered"`
	Outcome     Outcome          `json:"outcome,omitempty"`
}

// DealerView is the dealer hand as a player may see it. While the hole card
// is hidden it is reported as a zero card and the total covers the upcard
// only.
type DealerView struct {
	Cards      []blackjack.Card `json:"cards"`
	HoleHidden bool             `json:"holeHidden"`
	Total      int              `json:"total"`
	Soft       bool             `json:"soft"`
}

// Snapshot is an immutable copy of the table state
type Snapshot struct {
	Phase            Phase           `json:"phase"`
	Token            uint64          `json:"token"`
	Round            int             `json:"round"`
	InRound          bool            `json:"inRound"`
	Bankroll         blackjack.Money `json:"bankroll"`
	Bet              blackjack.Money `json:"bet"`
	StartingBankroll blackjack.Money `json:"startingBankroll"`
	Insurance        blackjack.Money `json:"insurance"`
	Hands            []HandView      `json:"hands"`
	ActiveHand       int             `json:"activeHand"`
	Dealer           DealerView      `json:"dealer"`
	NoNewBets        bool            `json:"noNewBets"`
	Rules            Rules           `json:"rules"`
	Shoe             shoe.Stats      `json:"shoe"`
	InsuranceOffer   *InsuranceOffer `json:"insuranceOffer,omitempty"`
	Funds            *FundsRequest   `json:"funds,omitempty"`
	Cycling          bool            `json:"cycling"`
	Highlight        int             `json:"highlight"`
	LastResult       string          `json:"lastResult,omitempty"`
	Available        []ActionType    `json:"available"`
	RunningCount     *int            `json:"runningCount,omitempty"`
}

// Info describes why a snapshot was broadcast
type Info struct {
	Action ActionType
	// Op names the operation, including ones outside the action set such
	// as "add-funds" or "cycle"
	Op string
	// Init is set for the snapshot delivered on Subscribe
	Init bool
}

// Listener receives snapshot broadcasts
type Listener func(snap Snapshot, info Info)

// ActiveHandView returns the active hand, if any
func (s Snapshot) ActiveHandView() (HandView, bool) {
	if s.ActiveHand < 0 || s.ActiveHand >= len(s.Hands) {
		return HandView{}, false
	}
	return s.Hands[s.ActiveHand], true
}

// Can reports whether t is currently a legal action
func (s Snapshot) Can(t ActionType) bool {
	for _, a := range s.Available {
		if a == t {
			return true
		}
	}
	return false
}

// buildSnapshot copies the engine state. Callers hold the state lock.
func (e *Engine) buildSnapshot() Snapshot {
	r := &e.round

	hands := make([]HandView, len(r.hands))
	for i, h := range r.hands {
		t := h.Total()
		hands[i] = HandView{
			Cards:       append([]blackjack.Card(nil), h.Cards...),
			Wager:       h.Wager,
			Total:       t.Value,
			Soft:        t.Soft,
			FromSplit:   h.FromSplit,
			AceSplit:    h.AceSplit,
			Done:        h.Done,
			Acted:       h.Acted,
			Busted:      h.Busted,
			Surrendered: h.Surrendered,
			Outcome:     h.Outcome,
		}
	}

	dealer := DealerView{HoleHidden: r.holeHidden}
	dealer.Cards = append([]blackjack.Card(nil), r.dealer...)
	visible := dealer.Cards
	if r.holeHidden && len(dealer.Cards) > 1 {
		dealer.Cards[1] = blackjack.Card{}
		visible = dealer.Cards[:1]
	}
	dt := blackjack.HandTotalDetailed(visible)
	dealer.Total, dealer.Soft = dt.Value, dt.Soft

	snap := Snapshot{
		Phase:            e.phase,
		Token:            e.token,
		Round:            e.rounds,
		InRound:          r.inRound,
		Bankroll:         e.bankroll,
		Bet:              e.bet,
		StartingBankroll: r.startingBankroll,
		Insurance:        r.insurance,
		Hands:            hands,
		ActiveHand:       r.active,
		Dealer:           dealer,
		NoNewBets:        r.noNewBets,
		Rules:            e.rules,
		Shoe:             e.shoe.Stats(),
		Cycling:          r.cycling,
		Highlight:        r.highlight,
		LastResult:       r.lastResult,
		Available:        e.legalActions(),
	}
	if r.offer != nil {
		offer := *r.offer
		snap.InsuranceOffer = &offer
	}
	if e.pendingFunds != nil {
		req := *e.pendingFunds
		snap.Funds = &req
	}
	if e.counter != nil {
		rc := e.counter.RunningCount()
		snap.RunningCount = &rc
	}
	return snap
}

// legalActions lists the actions whose preconditions currently hold
func (e *Engine) legalActions() []ActionType {
	if e.phase == PhaseGameOver {
		return nil
	}
	var out []ActionType
	if !e.round.inRound {
		out = append(out, ActionNewShoe)
		if e.bankroll >= e.rules.MinimumBet {
			out = append(out, ActionStartRound)
		}
		return out
	}
	if e.round.offer != nil {
		return []ActionType{ActionInsuranceDecision}
	}
	if e.phase != PhasePlayerActing {
		return nil
	}
	for _, t := range []ActionType{ActionHit, ActionStand, ActionDouble, ActionSplit, ActionSurrender} {
		if e.precondition(t) == "" {
			out = append(out, t)
		}
	}
	return out
}
