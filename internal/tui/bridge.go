package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/game"
)

// Messages delivered from the engine to the model
type (
	snapshotMsg        struct{ snap game.Snapshot }
	dealMsg            struct{ deal game.DealAnimation }
	holeMsg            struct{ card blackjack.Card }
	offerMsg           struct{ offer game.InsuranceOffer }
	fundsMsg           struct{ req game.FundsRequest }
	resultMsg          struct{ msg game.ResultMessage }
	insuranceResultMsg struct{ res game.InsuranceResult }
	settledMsg         struct{ settlement game.Settlement }
	logMsg             struct{ line string }
	actionDoneMsg      struct {
		action game.ActionType
		res    game.Result
		err    error
	}
)

// Bridge turns engine callbacks into bubbletea messages. It implements the
// renderer, animator and notifier; insurance is answered through a
// DecisionQueue so the prompt can dispatch INSURANCE_DECISION.
type Bridge struct {
	clock       quartz.Clock
	dealDelay   time.Duration
	revealDelay time.Duration
	decisions   *game.DecisionQueue
	formatter   *game.EventFormatter

	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewBridge creates a bridge. Messages are dropped until Attach is called.
func NewBridge(clock quartz.Clock, decisions *game.DecisionQueue, formatter *game.EventFormatter, dealDelay time.Duration) *Bridge {
	b := &Bridge{
		clock:       clock,
		dealDelay:   dealDelay,
		revealDelay: dealDelay * 2,
		decisions:   decisions,
		formatter:   formatter,
	}
	decisions.OnOffer(func(offer game.InsuranceOffer) {
		b.post(offerMsg{offer: offer})
	})
	return b
}

// Attach sets where messages go, usually tea.Program.Send
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

// Adapter returns the engine adapter backed by this bridge
func (b *Bridge) Adapter() game.Adapter {
	return game.Adapter{
		Renderer: b,
		Animator: b,
		Decider:  b.decisions,
		Notifier: b,
	}
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}

func (b *Bridge) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	done := make(chan struct{})
	timer := b.clock.AfterFunc(d, func() { close(done) }, "animation")
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) Render(snap game.Snapshot) {
	b.post(snapshotMsg{snap: snap})
}

func (b *Bridge) AnimateDeal(ctx context.Context, deal game.DealAnimation) error {
	b.post(dealMsg{deal: deal})
	return b.wait(ctx, b.dealDelay)
}

func (b *Bridge) AnimateHoleReveal(ctx context.Context, hole blackjack.Card) error {
	b.post(holeMsg{card: hole})
	return b.wait(ctx, b.revealDelay)
}

func (b *Bridge) FundsNeeded(req game.FundsRequest) {
	b.post(fundsMsg{req: req})
}

func (b *Bridge) ResultMessage(msg game.ResultMessage) {
	b.post(resultMsg{msg: msg})
}

func (b *Bridge) InsuranceResolved(res game.InsuranceResult) {
	b.post(insuranceResultMsg{res: res})
}

func (b *Bridge) RoundSettled(s game.Settlement) {
	b.post(settledMsg{settlement: s})
}

// OnEvent implements game.EventSubscriber, feeding the log pane
func (b *Bridge) OnEvent(event game.GameEvent) {
	line := b.formatter.Format(event)
	if line == "" {
		return
	}
	b.post(logMsg{line: line})
}
