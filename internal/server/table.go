package server

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/count"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/randutil"
	"golang.org/x/sync/errgroup"
)

// ErrTableClosed is returned for requests made after Close
var ErrTableClosed = errors.New("table closed")

// TableConfig describes a new table
type TableConfig struct {
	Seed             int64
	Options          []game.Option
	Store            ledger.Store
	MaxHands         int
	InsuranceTimeout time.Duration
	// Owner is the authenticated player who opened the table, if any
	Owner string
}

type request struct {
	op    func(ctx context.Context) (game.Result, error)
	reply chan response
}

type response struct {
	res game.Result
	err error
}

// Table runs one engine. Requests are queued and handled one at a time on
// the table goroutine; insurance decisions skip the queue because the round
// that asked for one is still running.
type Table struct {
	ID        string
	CreatedAt time.Time
	Owner     string

	engine    *game.Engine
	decisions *game.DecisionQueue
	counter   *count.Counter
	recorder  *ledger.Recorder
	hub       *Hub
	clock     quartz.Clock
	logger    *log.Logger

	requests chan request
	ctx      context.Context
	cancel   context.CancelFunc
	group    errgroup.Group
}

// NewTable builds a table, restores its ledger and starts its goroutines
func NewTable(ctx context.Context, id string, cfg TableConfig, clock quartz.Clock, logger *log.Logger) (*Table, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.With("table", id)
	if cfg.Store == nil {
		cfg.Store = ledger.NewMemoryStore()
	}

	t := &Table{
		ID:        id,
		CreatedAt: clock.Now(),
		Owner:     cfg.Owner,
		hub:       NewHub(clock, logger.WithPrefix("hub")),
		decisions: game.NewDecisionQueue(clock, cfg.InsuranceTimeout, logger),
		counter:   count.NewCounter(game.DefaultRules().Decks),
		clock:     clock,
		logger:    logger.WithPrefix("table"),
		requests:  make(chan request),
	}
	t.recorder = ledger.NewRecorder(ledger.New(cfg.MaxHands), cfg.Store, clock, logger)

	timeoutSeconds := int(cfg.InsuranceTimeout / time.Second)
	t.decisions.OnOffer(func(offer game.InsuranceOffer) {
		t.hub.Broadcast(MessageTypeInsuranceOffer, InsuranceOfferData{InsuranceOffer: offer, TimeoutSeconds: timeoutSeconds})
	})

	bus := game.NewEventBus()
	bus.Subscribe(game.EventSubscriberFunc(t.onEvent))
	bus.Subscribe(t.recorder)

	adapter := game.NopAdapter()
	adapter.Renderer = hubRenderer{hub: t.hub}
	adapter.Decider = t.decisions
	adapter.Notifier = hubNotifier{hub: t.hub}

	opts := append([]game.Option{
		game.WithLogger(logger),
		game.WithClock(clock),
		game.WithEventBus(bus),
		game.WithCounter(t.counter),
	}, cfg.Options...)
	t.engine = game.New(randutil.New(cfg.Seed), adapter, opts...)
	t.counter.OnUpdate(t.onCount)

	if err := t.recorder.Restore(ctx, t.engine); err != nil {
		return nil, err
	}

	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	t.group.Go(t.run)
	t.group.Go(func() error { return t.recorder.Run(t.ctx) })
	return t, nil
}

func (t *Table) run() error {
	for {
		select {
		case <-t.ctx.Done():
			return nil
		case req := <-t.requests:
			res, err := req.op(t.ctx)
			req.reply <- response{res: res, err: err}
		}
	}
}

// do queues op and waits for its result
func (t *Table) do(ctx context.Context, op func(ctx context.Context) (game.Result, error)) (game.Result, error) {
	req := request{op: op, reply: make(chan response, 1)}
	select {
	case t.requests <- req:
	case <-ctx.Done():
		return game.Result{}, ctx.Err()
	case <-t.ctx.Done():
		return game.Result{}, ErrTableClosed
	}

	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return game.Result{}, ctx.Err()
	}
}

// Dispatch runs an action on the table
func (t *Table) Dispatch(ctx context.Context, a game.Action) (game.Result, error) {
	if a.Type == game.ActionInsuranceDecision {
		return t.engine.Dispatch(ctx, a)
	}
	return t.do(ctx, func(ctx context.Context) (game.Result, error) {
		return t.engine.Dispatch(ctx, a)
	})
}

// AddFunds tops up the bankroll. With retry set, the action that raised the
// pending funds request is run again.
func (t *Table) AddFunds(ctx context.Context, amount blackjack.Money, retry bool) (game.Result, error) {
	return t.do(ctx, func(ctx context.Context) (game.Result, error) {
		pending := t.engine.Snapshot().Funds
		res, err := t.engine.AddFunds(amount)
		if err != nil || !res.Accepted || !retry || pending == nil || pending.Retry == nil {
			return res, err
		}
		return pending.Retry(ctx)
	})
}

// DeclineFunds dismisses the pending funds request
func (t *Table) DeclineFunds(ctx context.Context) (game.Result, error) {
	return t.do(ctx, func(context.Context) (game.Result, error) {
		return t.engine.DeclineFunds()
	})
}

// SetBet changes the wager for the next round
func (t *Table) SetBet(ctx context.Context, m blackjack.Money) (game.Result, error) {
	return t.do(ctx, func(context.Context) (game.Result, error) {
		return t.engine.SetBet(m)
	})
}

// Snapshot returns the latest table state
func (t *Table) Snapshot() game.Snapshot {
	return t.engine.Snapshot()
}

// Ledger returns the table's bankroll history
func (t *Table) Ledger() *ledger.Ledger {
	return t.recorder.Ledger()
}

// Info summarises the table
func (t *Table) Info() TableInfo {
	snap := t.engine.Snapshot()
	return TableInfo{
		ID:        t.ID,
		CreatedAt: t.CreatedAt,
		Phase:     snap.Phase,
		Round:     snap.Round,
		Bankroll:  snap.Bankroll,
		Clients:   t.hub.Len(),
		Owner:     t.Owner,
	}
}

// Close stops the table, ends the game and saves the ledger
func (t *Table) Close() error {
	t.cancel()
	err := t.group.Wait()
	if _, endErr := t.engine.EndGame(); endErr != nil && !errors.Is(endErr, game.ErrGameOver) {
		t.logger.Warn("Failed to end game", "error", endErr)
	}
	t.hub.CloseAll()
	return err
}

func (t *Table) onEvent(event game.GameEvent) {
	switch ev := event.(type) {
	case game.CardRevealedEvent:
		t.hub.Broadcast(MessageTypeReveal, RevealData{
			ID:     ev.ID,
			Card:   ev.Card.String(),
			Rank:   ev.Rank,
			ShoeID: ev.ShoeID,
		})
	case game.ShoeShuffledEvent:
		t.hub.Broadcast(MessageTypeShuffle, ShuffleData{
			ShoeID:   ev.ShoeID,
			Decks:    ev.Decks,
			CutIndex: ev.CutIndex,
			AuditOK:  ev.Audit.OK,
			Issues:   ev.Audit.Issues,
		})
	}
}

func (t *Table) onCount(running int) {
	decks := float64(t.engine.Snapshot().Shoe.Remaining) / 52
	t.hub.Broadcast(MessageTypeCount, CountData{Running: running, True: t.counter.TrueCount(decks)})
}

type hubRenderer struct{ hub *Hub }

func (r hubRenderer) Render(snap game.Snapshot) {
	r.hub.Broadcast(MessageTypeSnapshot, snap)
}

type hubNotifier struct{ hub *Hub }

func (n hubNotifier) FundsNeeded(req game.FundsRequest) {
	n.hub.Broadcast(MessageTypeFundsNeeded, req)
}

func (n hubNotifier) ResultMessage(msg game.ResultMessage) {
	n.hub.Broadcast(MessageTypeResult, msg)
}

func (n hubNotifier) InsuranceResolved(res game.InsuranceResult) {
	n.hub.Broadcast(MessageTypeInsuranceResolved, res)
}

func (n hubNotifier) RoundSettled(s game.Settlement) {
	n.hub.Broadcast(MessageTypeRoundSettled, s)
}
