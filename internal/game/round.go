package game

import (
	"context"
	"fmt"
	"slices"

	"github.com/lox/blackjack/blackjack"
)

func (e *Engine) startRound(ctx context.Context) Result {
	if e.round.inRound {
		return rejected("round already in progress")
	}
	if e.bankroll < e.rules.MinimumBet {
		req := e.fundsRequest(FundsStartRound, ActionStartRound, e.rules.MinimumBet, false)
		return Result{Reason: fmt.Sprintf("minimum bet is %s", e.rules.MinimumBet), Funds: req}
	}
	if e.shoe.ShufflePending() {
		e.betweenRoundsShuffle()
	}

	e.token++
	wager := e.roundWager()
	e.bet = wager
	e.pendingFunds = nil
	e.round = round{
		hands:            []Hand{{Wager: wager}},
		active:           0,
		holeHidden:       true,
		startingBankroll: e.bankroll,
		inRound:          true,
		highlight:        -1,
	}
	e.bankroll -= wager
	e.phase = PhaseDealing
	token := e.token

	e.logger.Debug("Round started", "token", token, "wager", wager, "bankroll", e.bankroll)
	e.publish()

	// player, dealer up, player, dealer hole
	p1 := e.draw()
	e.dealPlayer(ctx, 0, p1)

	var up blackjack.Card
	if e.scenario.Insurance != InsuranceScenarioOff {
		up = e.drawSpecific(blackjack.NewCard(blackjack.Ace, blackjack.Spades))
	} else {
		up = e.draw()
	}
	e.dealDealer(ctx, up, true)

	var p2 blackjack.Card
	if e.scenario.Splits {
		p2 = e.drawMatching(p1)
	} else {
		p2 = e.draw()
	}
	e.dealPlayer(ctx, 0, p2)

	var hole blackjack.Card
	switch e.scenario.Insurance {
	case InsuranceScenarioBlackjack:
		hole = e.drawSpecific(blackjack.NewCard(blackjack.King, blackjack.Hearts))
	case InsuranceScenarioNoBlackjack:
		hole = e.drawSpecific(blackjack.NewCard(blackjack.Nine, blackjack.Hearts))
	default:
		hole = e.draw()
	}
	e.dealDealer(ctx, hole, false)
	e.pause(ctx, e.pacing.PostDeal)

	if e.insuranceAndPeek(ctx, token) {
		return Result{Accepted: true, RoundOver: true}
	}

	e.phase = PhasePlayerActing
	return Result{Accepted: true}
}

// insuranceAndPeek offers insurance on an ace, peeks on an ace or ten and
// settles naturals. It reports whether the round ended.
func (e *Engine) insuranceAndPeek(ctx context.Context, token uint64) bool {
	r := &e.round
	if !r.inRound || len(r.dealer) < 2 {
		return false
	}

	up := r.dealer[0]
	playerBJ := blackjack.IsBlackjack(r.hands[0].Cards, r.hands[0].FromSplit)

	if up.Rank == blackjack.Ace {
		e.offerInsurance(ctx, token, r.hands[0].Wager)
	}

	if up.Rank == blackjack.Ace || blackjack.IsTenGroup(up.Rank) {
		if blackjack.IsBlackjack(r.dealer, false) {
			e.settleDealerBlackjack(ctx, playerBJ)
			return true
		}
		if up.Rank == blackjack.Ace && r.insurance > 0 {
			e.resolveInsuranceWager(InsuranceResult{Won: false, Stake: r.insurance})
		}
	}

	if playerBJ {
		h := &r.hands[0]
		h.Outcome = OutcomeBlackjack
		h.Done = true
		e.completeRound(ctx, settleNatural)
		return true
	}
	return false
}

// offerInsurance asks the decider for a wager of up to half the original
// bet in half dollar steps, capped by the bankroll.
func (e *Engine) offerInsurance(ctx context.Context, token uint64, wager blackjack.Money) {
	r := &e.round
	limit := min(wager/2, e.bankroll).FloorTo(blackjack.HalfDollar)
	if limit <= 0 {
		e.logger.Debug("Insurance not offered, bankroll is empty")
		return
	}

	offer := InsuranceOffer{Token: token, Wager: wager, Max: limit, Step: blackjack.HalfDollar}
	r.offer = &offer
	e.phase = PhaseInsurance
	if resolver, ok := e.adapter.Decider.(DecisionResolver); ok {
		resolver.Expect(offer)
	}
	e.publish()

	amount := e.chooseInsurance(ctx, offer)
	r.offer = nil

	amount = min(max(amount, 0), limit).FloorTo(blackjack.HalfDollar)
	if amount > 0 {
		e.bankroll -= amount
		r.insurance = amount
		e.logger.Debug("Insurance placed", "amount", amount)
	}
	e.phase = PhaseDealing
	e.publish()
}

// chooseInsurance awaits the decider; failures decline
func (e *Engine) chooseInsurance(ctx context.Context, offer InsuranceOffer) (amount blackjack.Money) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("Insurance decider panicked, declining", "panic", p)
			amount = 0
		}
	}()

	amount, err := e.adapter.Decider.ChooseInsurance(ctx, offer)
	if err != nil {
		e.logger.Warn("Insurance decision failed, declining", "error", err)
		return 0
	}
	return amount
}

func (e *Engine) resolveInsuranceWager(res InsuranceResult) {
	r := &e.round
	r.insurance = 0
	r.insuranceResult = &res
	e.bankroll += res.Payout

	e.bus.Publish(InsuranceResolvedEvent{Token: e.token, Result: res, timestamp: e.clock.Now()})
	e.notify(func(n Notifier) { n.InsuranceResolved(res) })
}

func (e *Engine) settleDealerBlackjack(ctx context.Context, playerBJ bool) {
	r := &e.round
	e.phase = PhaseSettling
	e.revealHole(ctx)
	e.pause(ctx, e.pacing.DealerReveal)

	if r.insurance > 0 {
		e.resolveInsuranceWager(InsuranceResult{
			Won:    true,
			Stake:  r.insurance,
			Payout: blackjack.InsurancePayout(r.insurance),
		})
	}

	h := &r.hands[0]
	h.Done = true
	if playerBJ {
		h.Outcome = OutcomePush
	} else {
		h.Outcome = OutcomeLose
	}
	e.completeRound(ctx, settleDealerNatural)
}

// precondition returns why t cannot run right now, or "" when it can.
// Funds shortfalls are not preconditions; they raise a FundsRequest.
func (e *Engine) precondition(t ActionType) string {
	r := &e.round
	if !r.inRound {
		return "no round in progress"
	}
	if e.phase != PhasePlayerActing {
		return "not waiting for a player action"
	}
	h := e.activeHand()
	if h == nil || h.Done {
		return "active hand is finished"
	}

	switch t {
	case ActionDouble:
		switch {
		case len(h.Cards) != 2:
			return "double needs exactly two cards"
		case r.doubled:
			return "hand already doubled"
		case r.noNewBets:
			return "no new wagers this round"
		}
	case ActionSplit:
		switch {
		case len(h.Cards) != 2:
			return "split needs exactly two cards"
		case !blackjack.CanSplitPair(h.Cards[0], h.Cards[1]):
			return "cards are not a pair"
		case len(r.hands) >= e.rules.MaxSplitHands:
			return "maximum split hands reached"
		case r.noNewBets:
			return "no new wagers this round"
		}
	case ActionSurrender:
		switch {
		case !e.rules.Surrender:
			return "surrender is not offered at this table"
		case h.FromSplit || len(r.hands) != 1:
			return "surrender is only allowed on the original hand"
		case len(h.Cards) != 2:
			return "surrender needs exactly two cards"
		case h.Acted:
			return "surrender must be the first action"
		}
	}
	return ""
}

// fundsRequest records and announces a shortfall
func (e *Engine) fundsRequest(reason FundsReason, action ActionType, needed blackjack.Money, allowContinue bool) *FundsRequest {
	req := &FundsRequest{
		Reason:        reason,
		Action:        action,
		Needed:        needed,
		Available:     e.bankroll,
		AllowContinue: allowContinue,
	}
	if action != "" {
		req.Retry = func(ctx context.Context) (Result, error) {
			return e.Dispatch(ctx, Action{Type: action})
		}
	}
	e.pendingFunds = req
	e.logger.Info("Insufficient funds", "reason", reason, "needed", needed, "available", e.bankroll)

	note := *req
	e.notify(func(n Notifier) { n.FundsNeeded(note) })
	return req
}

func (e *Engine) hit(ctx context.Context) Result {
	if reason := e.precondition(ActionHit); reason != "" {
		return rejected(reason)
	}
	r := &e.round
	idx := r.active
	r.hands[idx].Acted = true
	e.dealPlayer(ctx, idx, e.draw())

	if blackjack.IsBusted(r.hands[idx].Cards) {
		e.bust(idx)
		return e.advance(ctx)
	}
	return Result{Accepted: true}
}

func (e *Engine) stand(ctx context.Context) Result {
	if reason := e.precondition(ActionStand); reason != "" {
		return rejected(reason)
	}
	h := e.activeHand()
	h.Acted = true
	h.Done = true
	return e.advance(ctx)
}

func (e *Engine) double(ctx context.Context) Result {
	if reason := e.precondition(ActionDouble); reason != "" {
		return rejected(reason)
	}
	r := &e.round
	idx := r.active
	h := &r.hands[idx]
	if e.bankroll < h.Wager {
		req := e.fundsRequest(FundsDouble, ActionDouble, h.Wager, true)
		return Result{Reason: "insufficient funds to double", Funds: req}
	}

	h.Acted = true
	e.bankroll -= h.Wager
	h.Wager *= 2
	r.doubled = true

	e.dealPlayer(ctx, idx, e.draw())
	if blackjack.IsBusted(r.hands[idx].Cards) {
		e.bust(idx)
	} else {
		r.hands[idx].Done = true
	}
	return e.advance(ctx)
}

func (e *Engine) split(ctx context.Context) Result {
	if reason := e.precondition(ActionSplit); reason != "" {
		return rejected(reason)
	}
	r := &e.round
	idx := r.active
	orig := r.hands[idx]
	if e.bankroll < orig.Wager {
		req := e.fundsRequest(FundsSplit, ActionSplit, orig.Wager, true)
		return Result{Reason: "insufficient funds to split", Funds: req}
	}

	a, b := orig.Cards[0], orig.Cards[1]
	aces := blackjack.IsAcePair(a, b)
	e.bankroll -= orig.Wager

	first := Hand{Cards: []blackjack.Card{a}, Wager: orig.Wager, FromSplit: true, AceSplit: aces}
	second := Hand{Cards: []blackjack.Card{b}, Wager: orig.Wager, FromSplit: true, AceSplit: aces, NeedsSplitCard: true}
	r.hands = slices.Replace(slices.Clone(r.hands), idx, idx+1, first, second)
	e.logger.Debug("Split", "hand", idx, "aces", aces, "hands", len(r.hands))

	// only the first new hand is dealt now; the second waits until it is active
	e.dealPlayer(ctx, idx, e.draw())
	f := &r.hands[idx]
	if aces && !blackjack.IsAcePair(f.Cards[0], f.Cards[1]) {
		f.Done = true
		f.Acted = true
		return e.advance(ctx)
	}

	r.doubled = false
	e.phase = PhasePlayerActing
	return Result{Accepted: true}
}

func (e *Engine) surrender(ctx context.Context) Result {
	if reason := e.precondition(ActionSurrender); reason != "" {
		return rejected(reason)
	}
	h := e.activeHand()
	h.Acted = true
	h.Surrendered = true
	h.Outcome = OutcomeSurrender
	h.Done = true

	e.completeRound(ctx, settleSurrender)
	return Result{Accepted: true, RoundOver: true}
}

// bust marks hand idx lost. A single-hand bust is reported right away.
func (e *Engine) bust(idx int) {
	r := &e.round
	h := &r.hands[idx]
	h.Outcome = OutcomeLose
	h.Busted = true
	h.Done = true

	if len(r.hands) == 1 {
		r.bustReported = true
		msg := ResultMessage{
			Kind:  MessagePlain,
			Text:  fmt.Sprintf("Bust! Lose %s", h.Wager),
			Delta: -h.Wager,
		}
		r.lastResult = msg.Text
		e.notify(func(n Notifier) { n.ResultMessage(msg) })
	}
}

// advance activates the first unfinished hand, dealing its post-split card
// if needed, or moves on to the dealer when every hand is done.
func (e *Engine) advance(ctx context.Context) Result {
	r := &e.round
	prev := r.active
	prevDone := prev >= 0 && prev < len(r.hands) && r.hands[prev].Done

	for {
		next := slices.IndexFunc(r.hands, func(h Hand) bool { return !h.Done })
		if next < 0 {
			e.dealerPlay(ctx)
			return Result{Accepted: true, RoundOver: true}
		}

		if len(r.hands) > 1 && prevDone && next != prev {
			e.pause(ctx, e.pacing.HandAdvance)
		}
		r.active = next
		r.doubled = false

		if r.hands[next].NeedsSplitCard {
			r.hands[next].NeedsSplitCard = false
			e.dealPlayer(ctx, next, e.draw())

			h := &r.hands[next]
			if h.AceSplit && len(h.Cards) == 2 && !blackjack.IsAcePair(h.Cards[0], h.Cards[1]) {
				h.Done = true
				h.Acted = true
				e.publish()
				prev, prevDone = next, true
				continue
			}
		}

		e.phase = PhasePlayerActing
		e.publish()
		return Result{Accepted: true}
	}
}
