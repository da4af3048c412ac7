package game

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/count"
	"github.com/lox/blackjack/internal/shoe"
)

// Result is the outcome of an action. A rejected action leaves the table
// exactly as it was.
type Result struct {
	Action    ActionType    `json:"action,omitempty"`
	Accepted  bool          `json:"accepted"`
	Reason    string        `json:"reason,omitempty"`
	RoundOver bool          `json:"roundOver"`
	Funds     *FundsRequest `json:"funds,omitempty"`
}

func rejected(reason string) Result {
	return Result{Reason: reason}
}

// round holds everything scoped to a single round
type round struct {
	hands            []Hand
	active           int
	dealer           []blackjack.Card
	holeHidden       bool
	startingBankroll blackjack.Money
	insurance        blackjack.Money
	insuranceResult  *InsuranceResult
	offer            *InsuranceOffer
	doubled          bool
	noNewBets        bool
	bustReported     bool
	inRound          bool
	settled          bool
	cycling          bool
	highlight        int
	lastResult       string
	pendingAnnounced bool
}

type listenerEntry struct {
	id int
	fn Listener
}

// Engine is the round state machine for one table. It owns the shoe and the
// bankroll and processes one action at a time.
type Engine struct {
	// actionMu serialises actions; stateMu guards everything below and is
	// also taken by deferred continuations.
	actionMu sync.Mutex
	stateMu  sync.Mutex

	logger  *log.Logger
	clock   quartz.Clock
	adapter Adapter
	bus     EventBus
	counter *count.Counter
	shoe    *shoe.Shoe

	rules    Rules
	pacing   Pacing
	scenario Scenario
	stacked  []blackjack.Card

	phase        Phase
	bankroll     blackjack.Money
	bet          blackjack.Money
	token        uint64
	finalized    uint64
	rounds       int
	round        round
	revealed     map[blackjack.CardID]struct{}
	pendingFunds *FundsRequest
	notes        []func()

	snap atomic.Pointer[Snapshot]

	listenerMu   sync.Mutex
	listeners    []listenerEntry
	nextListener int
}

// New creates an engine with a freshly shuffled shoe. The RNG is required to
// make shuffles explicit and testing deterministic.
//
// Example usage:
//
//	rng := randutil.New(time.Now().UnixNano())
//	e := game.New(rng, game.NopAdapter(),
//	    game.WithRules(game.DefaultRules()),
//	    game.WithPacing(game.Pacing{}))
//	res, err := e.Dispatch(ctx, game.Action{Type: game.ActionStartRound})
func New(rng *rand.Rand, adapter Adapter, opts ...Option) *Engine {
	if rng == nil {
		panic("rng is required for engine creation")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	bus := cfg.bus
	if bus == nil {
		bus = NewEventBus()
	}

	e := &Engine{
		logger:   logger.WithPrefix("engine"),
		clock:    cfg.clock,
		adapter:  adapter,
		bus:      bus,
		counter:  cfg.counter,
		rules:    cfg.rules.normalize(),
		pacing:   cfg.pacing,
		scenario: cfg.scenario,
		stacked:  cfg.stacked,
		bankroll: cfg.bankroll,
		revealed: make(map[blackjack.CardID]struct{}),
	}
	e.bet = e.normalizeBet(cfg.bet)
	e.round.active = -1
	e.round.highlight = -1

	e.shoe = shoe.New(rng, e.rules.Decks, shoe.WithLogger(logger), shoe.WithCutPolicy(cfg.cutPolicy))
	e.shoe.OnShuffle(e.onShuffle)
	if e.counter != nil {
		e.bus.Subscribe(CountTap(e.counter))
	}

	e.stateMu.Lock()
	e.shoe.Shuffle(e.rules.Decks)
	e.publish()
	e.stateMu.Unlock()

	return e
}

// EventBus returns the bus the engine publishes on
func (e *Engine) EventBus() EventBus {
	return e.bus
}

// Snapshot returns the most recently published state. It never blocks.
func (e *Engine) Snapshot() Snapshot {
	return *e.snap.Load()
}

// Subscribe registers a listener for snapshot broadcasts. The listener
// immediately receives the current snapshot.
func (e *Engine) Subscribe(fn Listener) (unsubscribe func()) {
	e.listenerMu.Lock()
	e.nextListener++
	id := e.nextListener
	e.listeners = append(e.listeners, listenerEntry{id: id, fn: fn})
	e.listenerMu.Unlock()

	fn(e.Snapshot(), Info{Init: true})

	return func() {
		e.listenerMu.Lock()
		defer e.listenerMu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) broadcast(snap Snapshot, info Info) {
	e.listenerMu.Lock()
	listeners := make([]Listener, len(e.listeners))
	for i, l := range e.listeners {
		listeners[i] = l.fn
	}
	e.listenerMu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if p := recover(); p != nil {
					e.logger.Warn("Snapshot listener panicked", "panic", p)
				}
			}()
			fn(snap, info)
		}()
	}
}

// Dispatch runs one action to completion and broadcasts the resulting
// snapshot. Precondition failures are reported through Result; errors are
// reserved for configuration problems and misuse.
func (e *Engine) Dispatch(ctx context.Context, a Action) (Result, error) {
	if !validAction(a.Type) {
		return Result{Action: a.Type}, fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	if err := e.adapter.check(a.Type); err != nil {
		e.logger.Error("Action rejected", "action", a.Type, "error", err)
		return Result{Action: a.Type, Reason: err.Error()}, err
	}
	if a.Type == ActionInsuranceDecision {
		return e.resolveInsurance(a.Amount)
	}

	return e.run(string(a.Type), a.Type, func() Result {
		switch a.Type {
		case ActionNewShoe:
			return e.newShoe()
		case ActionStartRound:
			return e.startRound(ctx)
		case ActionHit:
			return e.hit(ctx)
		case ActionStand:
			return e.stand(ctx)
		case ActionDouble:
			return e.double(ctx)
		case ActionSplit:
			return e.split(ctx)
		default:
			return e.surrender(ctx)
		}
	})
}

func validAction(t ActionType) bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// run executes fn holding both locks, then delivers queued notifications
// and broadcasts the snapshot.
func (e *Engine) run(op string, t ActionType, fn func() Result) (Result, error) {
	if !e.actionMu.TryLock() {
		return Result{Action: t, Reason: ErrActionInProgress.Error()}, ErrActionInProgress
	}
	e.stateMu.Lock()

	if e.phase == PhaseGameOver {
		e.stateMu.Unlock()
		e.actionMu.Unlock()
		return Result{Action: t, Reason: ErrGameOver.Error()}, ErrGameOver
	}

	res := fn()
	res.Action = t
	if !res.Accepted {
		e.logger.Debug("Action not accepted", "op", op, "reason", res.Reason)
	}

	snap := e.publish()
	notes := e.notes
	e.notes = nil

	e.stateMu.Unlock()
	e.actionMu.Unlock()

	for _, note := range notes {
		note()
	}
	e.broadcast(snap, Info{Action: t, Op: op})
	return res, nil
}

// resolveInsurance answers a pending insurance decision. It bypasses the
// action lock because the round that asked is still holding it.
func (e *Engine) resolveInsurance(amount blackjack.Money) (Result, error) {
	res := Result{Action: ActionInsuranceDecision}

	resolver, ok := e.adapter.Decider.(DecisionResolver)
	if !ok {
		res.Reason = "insurance decisions are not dispatch driven for this table"
		return res, nil
	}
	if err := resolver.Resolve(amount); err != nil {
		res.Reason = err.Error()
		return res, nil
	}

	res.Accepted = true
	e.broadcast(e.Snapshot(), Info{Action: ActionInsuranceDecision, Op: string(ActionInsuranceDecision)})
	return res, nil
}

// publish builds a snapshot, stores it and hands it to the renderer
func (e *Engine) publish() Snapshot {
	snap := e.buildSnapshot()
	e.snap.Store(&snap)

	if e.adapter.Renderer != nil {
		e.present("render", func() error {
			e.adapter.Renderer.Render(snap)
			return nil
		})
	}
	return snap
}

// present runs a presentation step; failures and panics count as done
func (e *Engine) present(step string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("Presentation panicked, continuing", "step", step, "panic", p)
		}
	}()
	if err := fn(); err != nil {
		e.logger.Warn("Presentation failed, continuing", "step", step, "error", err)
	}
}

// notify queues a notification for delivery once the action completes
func (e *Engine) notify(fn func(n Notifier)) {
	n := e.adapter.Notifier
	if n == nil {
		return
	}
	e.notes = append(e.notes, func() {
		defer func() {
			if p := recover(); p != nil {
				e.logger.Warn("Notifier panicked", "panic", p)
			}
		}()
		fn(n)
	})
}

// pause waits for d on the engine clock, or until ctx is done
func (e *Engine) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	fired := make(chan struct{})
	timer := e.clock.AfterFunc(d, func() { close(fired) })
	defer timer.Stop()

	select {
	case <-fired:
	case <-ctx.Done():
	}
}

// isStale reports whether a continuation captured for token has been
// superseded by a newer round.
func (e *Engine) isStale(token uint64) bool {
	return token != e.token
}

func (e *Engine) onShuffle(ev shoe.ShuffleEvent) {
	clear(e.revealed)
	e.round.pendingAnnounced = false
	if !ev.Audit.OK {
		e.logger.Error("Shoe failed its composition audit", "shoe", ev.ShoeID, "issues", ev.Audit.Issues)
	}
	e.bus.Publish(ShoeShuffledEvent{
		ShoeID:    ev.ShoeID,
		Decks:     ev.Decks,
		CutIndex:  ev.CutIndex,
		Policy:    ev.Policy,
		Audit:     ev.Audit,
		timestamp: e.clock.Now(),
	})
}

// draw deals the next card, honouring stacked cards first
func (e *Engine) draw() blackjack.Card {
	if len(e.stacked) > 0 {
		target := e.stacked[0]
		e.stacked = e.stacked[1:]
		return e.afterDraw(e.shoe.DrawSpecific(target, e.round.inRound))
	}
	return e.afterDraw(e.shoe.Draw(e.round.inRound))
}

// drawSpecific serves scenario deals; stacked cards are left for draw
func (e *Engine) drawSpecific(target blackjack.Card) blackjack.Card {
	return e.afterDraw(e.shoe.DrawSpecific(target, e.round.inRound))
}

func (e *Engine) drawMatching(first blackjack.Card) blackjack.Card {
	return e.afterDraw(e.shoe.DrawMatching(first, e.round.inRound))
}

func (e *Engine) afterDraw(res shoe.DrawResult) blackjack.Card {
	if res.ShufflePending && !e.round.pendingAnnounced {
		e.round.pendingAnnounced = true
		e.logger.Info("Cut card reached, shuffling after this round", "shoe", e.shoe.ID())
		e.bus.Publish(ShufflePendingEvent{ShoeID: e.shoe.ID(), Token: e.token, timestamp: e.clock.Now()})
	}
	return res.Card
}

// reveal emits a card reveal at most once per physical card
func (e *Engine) reveal(c blackjack.Card) {
	if c.ID == "" {
		return
	}
	if _, seen := e.revealed[c.ID]; seen {
		return
	}
	e.revealed[c.ID] = struct{}{}
	e.bus.Publish(CardRevealedEvent{
		ID:        c.ID,
		Rank:      c.Rank,
		Card:      c,
		ShoeID:    e.shoe.ID(),
		timestamp: e.clock.Now(),
	})
}

func (e *Engine) animateDeal(ctx context.Context, d DealAnimation) {
	if e.adapter.Animator == nil {
		return
	}
	e.present("deal", func() error { return e.adapter.Animator.AnimateDeal(ctx, d) })
}

// dealPlayer adds a face-up card to hand idx
func (e *Engine) dealPlayer(ctx context.Context, idx int, c blackjack.Card) {
	h := &e.round.hands[idx]
	h.Cards = append(h.Cards, c)
	e.publish()
	e.animateDeal(ctx, DealAnimation{Card: c, HandIndex: idx, FaceUp: true})
	e.reveal(c)
}

// dealDealer adds a card to the dealer hand; the hole card goes face down
func (e *Engine) dealDealer(ctx context.Context, c blackjack.Card, faceUp bool) {
	e.round.dealer = append(e.round.dealer, c)
	e.publish()
	e.animateDeal(ctx, DealAnimation{Card: c, Dealer: true, FaceUp: faceUp})
	if faceUp {
		e.reveal(c)
	}
}

func (e *Engine) activeHand() *Hand {
	r := &e.round
	if r.active < 0 || r.active >= len(r.hands) {
		return nil
	}
	return &r.hands[r.active]
}

func (e *Engine) normalizeBet(m blackjack.Money) blackjack.Money {
	return max(e.rules.MinimumBet, m.FloorTo(e.rules.BetUnit))
}

// roundWager is the bet normalised to the unit and clamped to the bankroll
func (e *Engine) roundWager() blackjack.Money {
	bet := e.normalizeBet(e.bet)
	if bet > e.bankroll {
		bet = e.bankroll.FloorTo(e.rules.BetUnit)
	}
	return max(e.rules.MinimumBet, bet)
}

func (e *Engine) newShoe() Result {
	if e.round.inRound {
		return rejected("cannot change shoes during a round")
	}
	e.shoe.Shuffle(e.rules.Decks)
	e.logger.Info("New shoe", "shoe", e.shoe.ID(), "decks", e.rules.Decks)
	return Result{Accepted: true}
}

// fundsChip is the smallest amount added to a bankroll
const fundsChip = blackjack.Dollar * 5

// AddFunds tops up the bankroll, rounding the amount to the nearest $5
// chip, and allows new wagers again. Retry a blocked action through
// FundsRequest.Retry afterwards.
func (e *Engine) AddFunds(amount blackjack.Money) (Result, error) {
	return e.run("add-funds", "", func() Result {
		amount = amount.RoundTo(fundsChip)
		if amount <= 0 {
			return rejected("amount must be positive")
		}
		e.bankroll += amount
		e.round.noNewBets = false
		e.pendingFunds = nil
		e.logger.Info("Funds added", "amount", amount, "bankroll", e.bankroll)
		return Result{Accepted: true}
	})
}

// DeclineFunds dismisses a pending funds request. If the request allowed
// continuing, the hand carries on without any further wagers.
func (e *Engine) DeclineFunds() (Result, error) {
	return e.run("decline-funds", "", func() Result {
		req := e.pendingFunds
		if req == nil {
			return rejected("no funds request pending")
		}
		e.pendingFunds = nil
		if req.AllowContinue && e.round.inRound {
			e.round.noNewBets = true
		}
		return Result{Accepted: true}
	})
}

// SetBet changes the wager used by the next round
func (e *Engine) SetBet(m blackjack.Money) (Result, error) {
	return e.run("set-bet", "", func() Result {
		if e.round.inRound {
			return rejected("cannot change the bet during a round")
		}
		e.bet = e.normalizeBet(m)
		return Result{Accepted: true}
	})
}

// SetRules changes table rules between rounds. Decks, soft 17 and surrender
// are locked once the first card of a shoe is drawn; a different deck count
// on an unlocked shoe builds a new one straight away.
func (e *Engine) SetRules(rules Rules) (Result, error) {
	return e.run("set-rules", "", func() Result {
		if e.round.inRound {
			return rejected("cannot change rules during a round")
		}
		rules = rules.normalize()
		if e.shoe.Locked() && !e.rules.sameShoeRules(rules) {
			return rejected("decks, soft 17 and surrender are locked until the next shuffle")
		}
		reshoe := rules.Decks != e.rules.Decks
		e.rules = rules
		e.bet = e.normalizeBet(e.bet)
		if reshoe {
			e.shoe.Shuffle(rules.Decks)
		}
		return Result{Accepted: true}
	})
}

// SetCutPolicy changes the cut policy. An undrawn shoe is rebuilt so the
// policy applies at once; otherwise it takes effect from the next shuffle.
func (e *Engine) SetCutPolicy(p shoe.CutPolicy) (Result, error) {
	return e.run("set-cut-policy", "", func() Result {
		e.shoe.SetCutPolicy(p)
		if !e.round.inRound && !e.shoe.Locked() {
			e.shoe.Shuffle(e.rules.Decks)
			e.logger.Debug("Cut policy applied to new shoe", "shoe", e.shoe.ID(), "penetration", e.shoe.Policy().PenetrationPercent)
		}
		return Result{Accepted: true}
	})
}

// SetScenario changes forced deals between rounds
func (e *Engine) SetScenario(s Scenario) (Result, error) {
	return e.run("set-scenario", "", func() Result {
		if e.round.inRound {
			return rejected("cannot change scenario during a round")
		}
		e.scenario = s
		return Result{Accepted: true}
	})
}

// RestoreBankroll replaces the bankroll, used when loading a saved ledger
func (e *Engine) RestoreBankroll(m blackjack.Money) (Result, error) {
	return e.run("restore-bankroll", "", func() Result {
		if e.round.inRound {
			return rejected("cannot restore during a round")
		}
		if m < 0 {
			return rejected("bankroll cannot be negative")
		}
		e.bankroll = m
		return Result{Accepted: true}
	})
}

// EndGame moves the table to game over. Pending continuations are
// abandoned and every later action fails with ErrGameOver.
func (e *Engine) EndGame() (Result, error) {
	return e.run("end-game", "", func() Result {
		e.token++
		e.round.inRound = false
		e.round.cycling = false
		e.round.offer = nil
		e.pendingFunds = nil
		e.phase = PhaseGameOver
		e.logger.Info("Game over", "bankroll", e.bankroll, "rounds", e.rounds)
		return Result{Accepted: true}
	})
}
