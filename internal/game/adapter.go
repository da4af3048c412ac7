package game

import (
	"context"
	"fmt"

	"github.com/lox/blackjack/blackjack"
)

// Renderer redraws the table. It is called synchronously while the engine
// holds its state lock, so implementations may read the snapshot they are
// given or Engine.Snapshot but must not dispatch.
type Renderer interface {
	Render(snap Snapshot)
}

// Animator plays awaited card animations. Errors and panics are treated as
// a completed animation.
type Animator interface {
	AnimateDeal(ctx context.Context, deal DealAnimation) error
	AnimateHoleReveal(ctx context.Context, hole blackjack.Card) error
}

// Decider resolves awaited player decisions. Returning zero or an error
// declines.
type Decider interface {
	ChooseInsurance(ctx context.Context, offer InsuranceOffer) (blackjack.Money, error)
}

// DecisionResolver is implemented by deciders that are answered through an
// INSURANCE_DECISION dispatch. Expect is called before the snapshot carrying
// the offer is rendered, so an answer sent straight from that snapshot is
// held until ChooseInsurance collects it.
type DecisionResolver interface {
	Expect(offer InsuranceOffer)
	Resolve(amount blackjack.Money) error
}

// Notifier receives fire-and-forget notifications. They are delivered after
// the action that raised them has released the engine, so a notifier may
// call back into the engine.
type Notifier interface {
	FundsNeeded(req FundsRequest)
	ResultMessage(msg ResultMessage)
	InsuranceResolved(res InsuranceResult)
	RoundSettled(s Settlement)
}

// Adapter bundles the capabilities a host provides. Every field is required
// by at least one action; use NopAdapter for the pieces a host does not care
// about.
type Adapter struct {
	Renderer Renderer
	Animator Animator
	Decider  Decider
	Notifier Notifier
}

type capability string

const (
	capRender  capability = "renderer"
	capAnimate capability = "animator"
	capDecide  capability = "decider"
	capNotify  capability = "notifier"
)

func requiredCapabilities(t ActionType) []capability {
	switch t {
	case ActionNewShoe:
		return []capability{capRender}
	case ActionStartRound:
		return []capability{capRender, capAnimate, capDecide, capNotify}
	case ActionHit, ActionStand, ActionDouble, ActionSplit, ActionSurrender:
		return []capability{capRender, capAnimate, capNotify}
	case ActionInsuranceDecision:
		return []capability{capDecide}
	default:
		return nil
	}
}

func (a Adapter) has(c capability) bool {
	switch c {
	case capRender:
		return a.Renderer != nil
	case capAnimate:
		return a.Animator != nil
	case capDecide:
		return a.Decider != nil
	case capNotify:
		return a.Notifier != nil
	default:
		return false
	}
}

// check returns a configuration error naming the first missing capability
func (a Adapter) check(t ActionType) error {
	for _, c := range requiredCapabilities(t) {
		if !a.has(c) {
			return fmt.Errorf("%w: %s requires a %s", ErrMissingCapability, t, c)
		}
	}
	return nil
}

// DealAnimation describes a card that was just dealt
type DealAnimation struct {
	Card blackjack.Card
	// Dealer is true for the dealer lane
	Dealer    bool
	HandIndex int
	FaceUp    bool
}

// InsuranceOffer is presented when the dealer shows an ace
type InsuranceOffer struct {
	Token uint64          `json:"token"`
	Wager blackjack.Money `json:"wager"`
	Max   blackjack.Money `json:"max"`
	Step  blackjack.Money `json:"step"`
}

// FundsReason says which step ran short of bankroll
type FundsReason string

const (
	FundsStartRound FundsReason = "start-round"
	FundsDouble     FundsReason = "double"
	FundsSplit      FundsReason = "split"
	FundsBroke      FundsReason = "broke"
)

// FundsRequest is raised instead of failing when the bankroll cannot cover
// a wager. The host either adds funds and calls Retry, or calls
// Engine.DeclineFunds to keep playing the hand without further wagers.
type FundsRequest struct {
	Reason        FundsReason     `json:"reason"`
	Action        ActionType      `json:"action,omitempty"`
	Needed        blackjack.Money `json:"needed"`
	Available     blackjack.Money `json:"available"`
	AllowContinue bool            `json:"allowContinue"`

	Retry func(ctx context.Context) (Result, error) `json:"-"`
}

// MessageKind distinguishes a one line result from a per-hand breakdown
type MessageKind string

const (
	MessagePlain     MessageKind = "plain"
	MessageBreakdown MessageKind = "breakdown"
)

// HandSummary is one line of a per-hand result breakdown
type HandSummary struct {
	Index   int             `json:"index"`
	Outcome Outcome         `json:"outcome"`
	Total   int             `json:"total"`
	Wager   blackjack.Money `json:"wager"`
	Payout  blackjack.Money `json:"payout"`
	Delta   blackjack.Money `json:"delta"`
}

// ResultMessage is the text shown when a hand or round resolves
type ResultMessage struct {
	Kind        MessageKind     `json:"kind"`
	Text        string          `json:"text"`
	DealerTotal int             `json:"dealerTotal"`
	Delta       blackjack.Money `json:"delta"`
	Hands       []HandSummary   `json:"hands,omitempty"`
}

// InsuranceResult reports how a placed insurance wager resolved
type InsuranceResult struct {
	Won    bool            `json:"won"`
	Stake  blackjack.Money `json:"stake"`
	Payout blackjack.Money `json:"payout"`
}

// Settlement is the round-settled summary
type Settlement struct {
	Token         uint64          `json:"token"`
	Round         int             `json:"round"`
	BankrollAfter blackjack.Money `json:"bankrollAfter"`
	Delta         blackjack.Money `json:"delta"`
}

// NopAdapter returns an adapter whose capabilities do nothing and whose
// decider always declines.
func NopAdapter() Adapter {
	return Adapter{
		Renderer: nopRenderer{},
		Animator: nopAnimator{},
		Decider:  declineDecider{},
		Notifier: nopNotifier{},
	}
}

type nopRenderer struct{}

func (nopRenderer) Render(Snapshot) {}

type nopAnimator struct{}

func (nopAnimator) AnimateDeal(context.Context, DealAnimation) error        { return nil }
func (nopAnimator) AnimateHoleReveal(context.Context, blackjack.Card) error { return nil }

type declineDecider struct{}

func (declineDecider) ChooseInsurance(context.Context, InsuranceOffer) (blackjack.Money, error) {
	return 0, nil
}

type nopNotifier struct{}

func (nopNotifier) FundsNeeded(FundsRequest)          {}
func (nopNotifier) ResultMessage(ResultMessage)       {}
func (nopNotifier) InsuranceResolved(InsuranceResult) {}
func (nopNotifier) RoundSettled(Settlement)           {}
