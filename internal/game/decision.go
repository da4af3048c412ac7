package game

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/blackjack"
)

// DecisionQueue is a Decider answered through Dispatch. ChooseInsurance
// parks until Resolve is called; a timeout declines.
type DecisionQueue struct {
	clock   quartz.Clock
	timeout time.Duration
	logger  *log.Logger

	mu       sync.Mutex
	pending  chan blackjack.Money
	answered bool
	offer    *InsuranceOffer
	onOffer  []func(InsuranceOffer)
}

// NewDecisionQueue creates a queue. A zero timeout waits indefinitely.
func NewDecisionQueue(clock quartz.Clock, timeout time.Duration, logger *log.Logger) *DecisionQueue {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &DecisionQueue{
		clock:   clock,
		timeout: timeout,
		logger:  logger.WithPrefix("decisions"),
	}
}

// ChooseInsurance blocks until the offer is answered, times out or ctx ends
func (q *DecisionQueue) ChooseInsurance(ctx context.Context, offer InsuranceOffer) (blackjack.Money, error) {
	var expired <-chan struct{}
	if q.timeout > 0 {
		done := make(chan struct{})
		timer := q.clock.AfterFunc(q.timeout, func() { close(done) }, "insurance")
		defer timer.Stop()
		expired = done
	}

	q.mu.Lock()
	if q.pending == nil || q.offer == nil || q.offer.Token != offer.Token {
		q.pending = make(chan blackjack.Money, 1)
		q.answered = false
		q.offer = &offer
	}
	answer := q.pending
	listeners := q.onOffer
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(offer)
	}

	defer func() {
		q.mu.Lock()
		q.pending = nil
		q.answered = false
		q.offer = nil
		q.mu.Unlock()
	}()

	select {
	case amount := <-answer:
		return amount, nil
	case <-expired:
		q.logger.Info("Insurance decision timed out, declining", "token", offer.Token)
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Expect opens offer for answers before the engine shows it. An answer that
// arrives before ChooseInsurance is buffered.
func (q *DecisionQueue) Expect(offer InsuranceOffer) {
	q.mu.Lock()
	q.pending = make(chan blackjack.Money, 1)
	q.answered = false
	q.offer = &offer
	q.mu.Unlock()
}

// OnOffer registers fn to be called once an offer is ready to be resolved
func (q *DecisionQueue) OnOffer(fn func(InsuranceOffer)) {
	q.mu.Lock()
	q.onOffer = append(q.onOffer, fn)
	q.mu.Unlock()
}

// Resolve answers the pending offer. Only the first answer counts.
func (q *DecisionQueue) Resolve(amount blackjack.Money) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil || q.answered {
		return ErrNoPendingDecision
	}
	q.pending <- amount
	q.answered = true
	return nil
}

// Pending returns the offer awaiting an answer, if any
func (q *DecisionQueue) Pending() (InsuranceOffer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.offer == nil || q.pending == nil || q.answered {
		return InsuranceOffer{}, false
	}
	return *q.offer, true
}
