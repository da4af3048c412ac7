package game

import (
	"context"
	"fmt"

	"github.com/lox/blackjack/blackjack"
)

// settlement kinds, used to pick the result message
const (
	settleShowdown      = "showdown"
	settleAllBusted     = "all-busted"
	settleNatural       = "player-blackjack"
	settleDealerNatural = "dealer-blackjack"
	settleSurrender     = "surrender"
)

// revealHole turns the dealer hole card face up
func (e *Engine) revealHole(ctx context.Context) {
	r := &e.round
	if !r.holeHidden || len(r.dealer) < 2 {
		return
	}
	hole := r.dealer[1]
	if e.adapter.Animator != nil {
		e.present("hole-reveal", func() error { return e.adapter.Animator.AnimateHoleReveal(ctx, hole) })
	}
	r.holeHidden = false
	e.reveal(hole)
	e.publish()
}

// dealerPlay reveals the hole card, draws to the house rule and resolves
// every hand against the dealer.
func (e *Engine) dealerPlay(ctx context.Context) {
	r := &e.round
	e.phase = PhaseDealerActing
	e.revealHole(ctx)

	allBusted := true
	for _, h := range r.hands {
		if !blackjack.IsBusted(h.Cards) {
			allBusted = false
			break
		}
	}
	if allBusted {
		for i := range r.hands {
			r.hands[i].Outcome = OutcomeLose
			r.hands[i].Done = true
		}
		e.completeRound(ctx, settleAllBusted)
		return
	}

	for e.dealerHits() {
		e.dealDealer(ctx, e.draw(), true)
	}

	dealerTotal := blackjack.HandTotal(r.dealer)
	for i := range r.hands {
		h := &r.hands[i]
		h.Outcome = compareHand(*h, dealerTotal)
		h.Done = true
	}
	e.completeRound(ctx, settleShowdown)
}

func (e *Engine) dealerHits() bool {
	t := blackjack.HandTotalDetailed(e.round.dealer)
	if t.Value < 17 {
		return true
	}
	return t.Value == 17 && t.Soft && e.rules.HitSoft17
}

func compareHand(h Hand, dealerTotal int) Outcome {
	total := blackjack.HandTotal(h.Cards)
	var out Outcome
	switch {
	case total > 21:
		out = OutcomeLose
	case dealerTotal > 21, total > dealerTotal:
		out = OutcomeWin
	case total < dealerTotal:
		out = OutcomeLose
	default:
		out = OutcomePush
	}
	if out == OutcomeWin && blackjack.IsBlackjack(h.Cards, h.FromSplit) {
		out = OutcomeBlackjack
	}
	return out
}

// payout is what a settled hand returns to the bankroll, stake included
func payout(h Hand) blackjack.Money {
	switch h.Outcome {
	case OutcomeWin:
		return blackjack.WinPayout(h.Wager)
	case OutcomeBlackjack:
		return blackjack.BlackjackPayout(h.Wager)
	case OutcomePush:
		return h.Wager
	case OutcomeSurrender:
		return (h.Wager / 2).FloorTo(blackjack.Cent)
	default:
		return 0
	}
}

// completeRound credits every hand and announces the result. It runs at
// most once per round whichever path ended it.
func (e *Engine) completeRound(ctx context.Context, kind string) {
	r := &e.round
	if r.settled {
		return
	}
	r.settled = true
	e.phase = PhaseSettling
	e.revealHole(ctx)

	token := e.token
	summaries := make([]HandSummary, len(r.hands))
	for i, h := range r.hands {
		p := payout(h)
		e.bankroll += p
		summaries[i] = HandSummary{
			Index:   i,
			Outcome: h.Outcome,
			Total:   blackjack.HandTotal(h.Cards),
			Wager:   h.Wager,
			Payout:  p,
			Delta:   p - h.Wager,
		}
	}

	delta := e.bankroll - r.startingBankroll
	dealerTotal := blackjack.HandTotal(r.dealer)
	e.rounds++
	r.inRound = false

	if msg, ok := e.resultMessage(kind, summaries, dealerTotal, delta); ok {
		r.lastResult = msg.Text
		e.notify(func(n Notifier) { n.ResultMessage(msg) })
	}

	settlement := Settlement{Token: token, Round: e.rounds, BankrollAfter: e.bankroll, Delta: delta}
	e.notify(func(n Notifier) { n.RoundSettled(settlement) })

	now := e.clock.Now()
	for i, s := range summaries {
		e.bus.Publish(HandResolvedEvent{
			Token:     token,
			Summary:   s,
			Cards:     append([]blackjack.Card(nil), r.hands[i].Cards...),
			timestamp: now,
		})
	}
	e.bus.Publish(RoundSettledEvent{
		Token:          token,
		Round:          e.rounds,
		BankrollBefore: r.startingBankroll,
		BankrollAfter:  e.bankroll,
		Delta:          delta,
		DealerCards:    append([]blackjack.Card(nil), r.dealer...),
		DealerTotal:    dealerTotal,
		Hands:          summaries,
		Insurance:      r.insuranceResult,
		timestamp:      now,
	})
	e.logger.Info("Round settled", "round", e.rounds, "kind", kind, "delta", delta, "bankroll", e.bankroll)

	if e.bankroll < e.rules.MinimumBet {
		e.fundsRequest(FundsBroke, ActionStartRound, e.rules.MinimumBet, false)
	}

	e.finalize(token)
	e.phase = PhaseIdle
	e.startCycle(token)
}

func (e *Engine) resultMessage(kind string, hands []HandSummary, dealerTotal int, delta blackjack.Money) (ResultMessage, bool) {
	r := &e.round
	msg := ResultMessage{Kind: MessagePlain, DealerTotal: dealerTotal, Delta: delta, Hands: hands}

	switch {
	case len(hands) > 1:
		msg.Kind = MessageBreakdown
		msg.Text = fmt.Sprintf("Split results: %s", netLabel(delta))
	case r.bustReported && delta < 0:
		return msg, false
	case kind == settleSurrender:
		msg.Text = fmt.Sprintf("Surrender. Lose %s", hands[0].Wager-hands[0].Payout)
	case kind == settleNatural:
		msg.Text = fmt.Sprintf("Blackjack! Win %s", delta)
	case kind == settleDealerNatural:
		msg.Text = fmt.Sprintf("Dealer blackjack. %s", netLabel(delta))
	case dealerTotal > 21 && delta > 0:
		msg.Text = fmt.Sprintf("Dealer busts! Win %s", delta)
	case hands[0].Outcome == OutcomeBlackjack:
		msg.Text = fmt.Sprintf("Blackjack! Win %s", delta)
	default:
		msg.Text = netLabel(delta)
	}
	return msg, true
}

func netLabel(delta blackjack.Money) string {
	switch {
	case delta > 0:
		return fmt.Sprintf("Win %s", delta)
	case delta < 0:
		return fmt.Sprintf("Lose %s", delta.Abs())
	default:
		return "Push"
	}
}

// finalize makes sure the dealer hand is fully shown and runs a pending
// shuffle. It does its work once per round.
func (e *Engine) finalize(token uint64) bool {
	r := &e.round
	if r.inRound || len(r.dealer) == 0 || e.finalized == token {
		return false
	}
	e.finalized = token

	if r.holeHidden && len(r.dealer) > 1 {
		r.holeHidden = false
		e.reveal(r.dealer[1])
	}
	if e.shoe.ShufflePending() {
		e.betweenRoundsShuffle()
	}
	return true
}

// FinalizeRound completes the bookkeeping of the last round early, for hosts
// that skip result cycling. Repeated calls are no-ops.
func (e *Engine) FinalizeRound() (Result, error) {
	return e.run("finalize", "", func() Result {
		if !e.finalize(e.token) {
			return rejected("nothing to finalize")
		}
		return Result{Accepted: true}
	})
}

func (e *Engine) betweenRoundsShuffle() {
	e.logger.Info("Shuffling between rounds", "shoe", e.shoe.ID())
	e.shoe.Shuffle(e.rules.Decks)
}

// startCycle highlights each hand in turn after settlement
func (e *Engine) startCycle(token uint64) {
	r := &e.round
	if e.pacing.ResultCycle <= 0 || len(r.hands) == 0 {
		return
	}
	r.cycling = true
	r.highlight = 0
	e.publish()
	e.scheduleCycle(token, 1)
}

func (e *Engine) scheduleCycle(token uint64, next int) {
	e.clock.AfterFunc(e.pacing.ResultCycle, func() { e.cycleStep(token, next) }, "cycle")
}

// cycleStep advances the highlight. It is abandoned if another round has
// started since it was scheduled.
func (e *Engine) cycleStep(token uint64, i int) {
	e.stateMu.Lock()
	if e.isStale(token) {
		e.stateMu.Unlock()
		e.logger.Debug("Dropping stale result cycle", "token", token)
		return
	}

	r := &e.round
	more := i < len(r.hands)
	if more {
		r.highlight = i
	} else {
		r.cycling = false
		r.highlight = -1
	}
	snap := e.publish()
	e.stateMu.Unlock()

	e.broadcast(snap, Info{Op: "cycle"})
	if more {
		e.scheduleCycle(token, i+1)
	}
}
