package ledger

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/game"
)

// Recorder appends every settled round to a ledger and persists it in the
// background. Subscribe it to an engine's event bus and start Run.
type Recorder struct {
	ledger *Ledger
	store  Store
	clock  quartz.Clock
	logger *log.Logger
	dirty  chan struct{}
}

// NewRecorder creates a recorder writing l to store
func NewRecorder(l *Ledger, store Store, clock quartz.Clock, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Recorder{
		ledger: l,
		store:  store,
		clock:  clock,
		logger: logger.WithPrefix("ledger"),
		dirty:  make(chan struct{}, 1),
	}
}

// Ledger returns the ledger being recorded
func (r *Recorder) Ledger() *Ledger { return r.ledger }

// OnEvent implements game.EventSubscriber
func (r *Recorder) OnEvent(event game.GameEvent) {
	ev, ok := event.(game.RoundSettledEvent)
	if !ok {
		return
	}
	entry := r.ledger.Append(ev.BankrollAfter)
	r.logger.Debug("Recorded bankroll", "index", entry.Index, "bankroll", entry.BankrollAfter)

	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

// Run saves the ledger whenever it changes until ctx is done, then saves
// once more.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return r.Flush(context.WithoutCancel(ctx))
		case <-r.dirty:
			if err := r.Flush(ctx); err != nil {
				r.logger.Warn("Failed to save ledger", "error", err)
			}
		}
	}
}

// Flush writes the ledger now
func (r *Recorder) Flush(ctx context.Context) error {
	return r.store.Save(ctx, r.ledger.Export(r.clock.Now()))
}

// Restore loads the saved ledger and, if it carries a bankroll, applies it
// to the engine. A missing save is not an error.
func (r *Recorder) Restore(ctx context.Context, e *game.Engine) error {
	save, err := r.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.ledger.Restore(save); err != nil {
		r.logger.Warn("Ignoring saved ledger", "error", err)
		return nil
	}

	bankroll, ok := r.ledger.Bankroll()
	if !ok {
		return nil
	}
	res, err := e.RestoreBankroll(bankroll)
	if err != nil {
		return err
	}
	if !res.Accepted {
		r.logger.Warn("Saved bankroll not applied", "reason", res.Reason)
		return nil
	}
	r.logger.Info("Restored bankroll", "bankroll", bankroll, "hands", r.ledger.HandCounter())
	return nil
}
