// Package count implements a KO running count fed by card reveals.
package count

import (
	"math"
	"sync"

	"github.com/lox/blackjack/blackjack"
)

// Tag returns the KO count tag for a rank: aces and tens count -1, eights
// and nines 0, everything from two through seven +1.
func Tag(r blackjack.Rank) int {
	switch {
	case r == blackjack.Ace || blackjack.IsTenGroup(r):
		return -1
	case r == blackjack.Eight || r == blackjack.Nine:
		return 0
	case r >= blackjack.Two && r <= blackjack.Seven:
		return 1
	default:
		return 0
	}
}

// InitialCount returns the KO initial running count for a shoe of decks
func InitialCount(decks int) int {
	if decks <= 1 {
		return 0
	}
	return -4 * (decks - 1)
}

// Counter tracks the running count and the card identities already counted.
// It knows nothing about hands or rounds. It is safe for concurrent use.
type Counter struct {
	mu        sync.Mutex
	running   int
	decks     int
	counted   map[blackjack.CardID]struct{}
	listeners []func(running int)
}

// NewCounter creates a counter reset for decks
func NewCounter(decks int) *Counter {
	c := &Counter{counted: make(map[blackjack.CardID]struct{})}
	c.reset(decks)
	return c
}

// OnUpdate registers a listener called with the running count after every
// change, including resets.
func (c *Counter) OnUpdate(fn func(running int)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Reset sets the initial running count for a new shoe and forgets every
// counted identity.
func (c *Counter) Reset(decks int) int {
	c.mu.Lock()
	running := c.reset(decks)
	listeners := c.listeners
	c.mu.Unlock()

	notify(listeners, running)
	return running
}

func (c *Counter) reset(decks int) int {
	c.decks = decks
	c.running = InitialCount(decks)
	clear(c.counted)
	return c.running
}

// Observe counts a revealed card. It returns false when the identity was
// already counted or the reveal is incomplete.
func (c *Counter) Observe(id blackjack.CardID, rank blackjack.Rank) bool {
	if id == "" || !rank.Valid() {
		return false
	}

	c.mu.Lock()
	if _, seen := c.counted[id]; seen {
		c.mu.Unlock()
		return false
	}
	c.counted[id] = struct{}{}
	c.running += Tag(rank)
	running := c.running
	listeners := c.listeners
	c.mu.Unlock()

	notify(listeners, running)
	return true
}

// RunningCount returns the current running count
func (c *Counter) RunningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Counted returns how many distinct cards have been observed this shoe
func (c *Counter) Counted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counted)
}

// TrueCount converts the running count to a per-deck count. KO is an
// unbalanced count so the pivot is the initial count rather than zero.
func (c *Counter) TrueCount(decksRemaining float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if decksRemaining < 0.25 {
		decksRemaining = 0.25
	}
	tc := float64(c.running-InitialCount(c.decks)) / decksRemaining
	return math.Round(tc*10) / 10
}

func notify(listeners []func(int), running int) {
	for _, fn := range listeners {
		fn(running)
	}
}
