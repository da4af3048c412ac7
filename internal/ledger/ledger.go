// Package ledger keeps the bounded bankroll history written after every
// settled round, and the stores that persist it.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lox/blackjack/blackjack"
)

const (
	SchemaVersion   = 1
	DefaultMaxHands = 2000
	MinMaxHands     = 10
	MaxMaxHands     = 10000
)

var (
	// ErrNotFound is returned by stores that hold no save yet
	ErrNotFound = errors.New("ledger not found")

	// ErrUnsupportedSchema is returned when restoring a save written with a
	// different schema version. The ledger is left empty.
	ErrUnsupportedSchema = errors.New("unsupported ledger schema")
)

// Entry is one point of bankroll history
type Entry struct {
	Index         int             `json:"index"`
	BankrollAfter blackjack.Money `json:"bankrollAfter"`
}

// Save is the persisted form of a ledger
type Save struct {
	SchemaVersion int `json:"schemaVersion"`
	// SavedAt is unix milliseconds
	SavedAt     int64            `json:"savedAt"`
	Bankroll    *blackjack.Money `json:"bankroll"`
	HandCounter int              `json:"handCounter"`
	Ledger      []Entry          `json:"ledger"`
}

// Series is the ledger laid out for graphing
type Series struct {
	Points   []Entry           `json:"points"`
	X        []int             `json:"x"`
	Y        []blackjack.Money `json:"y"`
	MaxHands int               `json:"maxHands"`
}

// Ledger is a rolling window of bankroll points. Once full, the oldest
// points are evicted. It is safe for concurrent use.
type Ledger struct {
	mu          sync.Mutex
	maxHands    int
	handCounter int
	bankroll    *blackjack.Money
	entries     []Entry
}

// New creates an empty ledger. maxHands is clamped to [10, 10000]; zero
// selects the default.
func New(maxHands int) *Ledger {
	return &Ledger{maxHands: clampMax(maxHands)}
}

func clampMax(n int) int {
	if n == 0 {
		return DefaultMaxHands
	}
	return min(max(n, MinMaxHands), MaxMaxHands)
}

// SetMaxHands changes the window size, evicting immediately if needed
func (l *Ledger) SetMaxHands(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxHands = clampMax(n)
	l.trim()
}

// MaxHands returns the window size
func (l *Ledger) MaxHands() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxHands
}

func (l *Ledger) trim() {
	if extra := len(l.entries) - l.maxHands; extra > 0 {
		l.entries = slices.Delete(l.entries, 0, extra)
	}
}

// Reset forgets all history
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

func (l *Ledger) reset() {
	l.handCounter = 0
	l.bankroll = nil
	l.entries = nil
}

// Append records the bankroll after a settled round
func (l *Ledger) Append(bankrollAfter blackjack.Money) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handCounter++
	e := Entry{Index: l.handCounter, BankrollAfter: bankrollAfter}
	l.entries = append(l.entries, e)
	l.trim()
	l.bankroll = &bankrollAfter
	return e
}

// Entries returns a copy of the retained points, oldest first
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Bankroll returns the last recorded bankroll
func (l *Ledger) Bankroll() (blackjack.Money, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bankroll == nil {
		return 0, false
	}
	return *l.bankroll, true
}

// HandCounter returns the index of the last appended point
func (l *Ledger) HandCounter() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handCounter
}

// Series returns the points with separate axes
func (l *Ledger) Series() Series {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Series{
		Points:   slices.Clone(l.entries),
		X:        make([]int, len(l.entries)),
		Y:        make([]blackjack.Money, len(l.entries)),
		MaxHands: l.maxHands,
	}
	for i, e := range l.entries {
		s.X[i] = e.Index
		s.Y[i] = e.BankrollAfter
	}
	return s
}

// Export returns the persisted form stamped with now
func (l *Ledger) Export(now time.Time) Save {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Save{
		SchemaVersion: SchemaVersion,
		SavedAt:       now.UnixMilli(),
		HandCounter:   l.handCounter,
		Ledger:        slices.Clone(l.entries),
	}
	if s.Ledger == nil {
		s.Ledger = []Entry{}
	}
	if l.bankroll != nil {
		b := *l.bankroll
		s.Bankroll = &b
	}
	return s
}

// Restore replaces the ledger with a save. Entries with a non-positive
// index are dropped, the rest are sorted and the counter is raised to the
// last index if the save's counter lags behind.
func (l *Ledger) Restore(s Save) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reset()
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSchema, s.SchemaVersion)
	}

	l.handCounter = max(s.HandCounter, 0)
	if s.Bankroll != nil {
		b := *s.Bankroll
		l.bankroll = &b
	}

	for _, e := range s.Ledger {
		if e.Index > 0 {
			l.entries = append(l.entries, e)
		}
	}
	slices.SortStableFunc(l.entries, func(a, b Entry) int { return a.Index - b.Index })
	if n := len(l.entries); n > 0 {
		l.handCounter = max(l.handCounter, l.entries[n-1].Index)
	}
	l.trim()
	return nil
}
