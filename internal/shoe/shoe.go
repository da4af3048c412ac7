// Package shoe implements a multi-deck blackjack shoe with a cut marker.
//
// Cards are dealt from index 0 upwards. A single cut marker sits inside the
// deal stream; reaching it either defers the reshuffle until the current
// round ends or, between rounds, rebuilds the shoe immediately. Every card
// that leaves the undrawn region goes to the discard pile, so
//
//	Remaining() + DiscardCount() == TotalCards()
//
// holds at all times.
package shoe

import (
	"fmt"
	"io"
	"math/rand/v2"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/blackjack"
)

// State of the shoe
type State int

const (
	Empty State = iota
	Active
	CutPending
	Exhausted
)

// String returns the string representation of a shoe state
func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Active:
		return "active"
	case CutPending:
		return "cut-pending"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// DrawResult is a drawn card plus the shuffle flags the caller needs to
// drive presentation effects.
type DrawResult struct {
	Card blackjack.Card
	// ShufflePending is set once the cut marker has been consumed during a
	// round; the shoe keeps dealing until the host reshuffles.
	ShufflePending bool
	// ShuffledNow is set when this draw rebuilt the shoe.
	ShuffledNow bool
}

// ShuffleEvent is delivered to listeners after every rebuild
type ShuffleEvent struct {
	ShoeID   int
	Decks    int
	CutIndex int
	Policy   CutPolicy
	Audit    Audit
}

// Stats is a read-only view of the shoe counters
type Stats struct {
	ShoeID         int       `json:"shoeId"`
	Decks          int       `json:"decks"`
	State          string    `json:"state"`
	TotalCards     int       `json:"totalCards"`
	Remaining      int       `json:"remaining"`
	Discards       int       `json:"discards"`
	UntilCut       *int      `json:"untilCut"`
	ShufflePending bool      `json:"shufflePending"`
	Policy         CutPolicy `json:"policy"`
}

type slot struct {
	card blackjack.Card
	cut  bool
}

// Shoe owns deck composition, shuffling, cut placement and the discard pile.
// It is not safe for concurrent use; the round engine serialises access.
type Shoe struct {
	rng    *rand.Rand
	logger *log.Logger

	decks      int
	nextPolicy CutPolicy // applied at the next shuffle
	policy     CutPolicy // locked for the current shoe

	slots    []slot
	pos      int
	cutIndex int
	built    int
	discard  []blackjack.Card
	pending  bool
	id       int

	listeners []func(ShuffleEvent)
}

// Option configures a Shoe
type Option func(*Shoe)

// WithLogger sets the logger used for integrity diagnostics
func WithLogger(logger *log.Logger) Option {
	return func(s *Shoe) { s.logger = logger.WithPrefix("shoe") }
}

// WithCutPolicy sets the initial cut policy
func WithCutPolicy(p CutPolicy) Option {
	return func(s *Shoe) { s.nextPolicy = p.Normalize() }
}

// New creates an empty shoe. The RNG is required to keep shuffles
// reproducible in tests. Call Shuffle before drawing, although Draw will
// build a shoe on demand.
func New(rng *rand.Rand, decks int, opts ...Option) *Shoe {
	if rng == nil {
		panic("rng is required for shoe creation")
	}
	s := &Shoe{
		rng:        rng,
		logger:     log.New(io.Discard),
		decks:      max(decks, 1),
		nextPolicy: DefaultCutPolicy(),
		cutIndex:   -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnShuffle registers a listener called after every rebuild
func (s *Shoe) OnShuffle(fn func(ShuffleEvent)) {
	s.listeners = append(s.listeners, fn)
}

// SetCutPolicy changes the policy used from the next shuffle onwards. The
// current shoe keeps the policy it was built with.
func (s *Shoe) SetCutPolicy(p CutPolicy) {
	s.nextPolicy = p.Normalize()
}

// Policy returns the policy locked into the current shoe
func (s *Shoe) Policy() CutPolicy {
	if s.id == 0 {
		return s.nextPolicy
	}
	return s.policy
}

// Shuffle builds a fresh shoe of 52×decks cards, audits its composition,
// shuffles it, inserts the cut marker and resets the discard pile.
func (s *Shoe) Shuffle(decks int) Audit {
	s.decks = max(decks, 1)
	nextID := s.id + 1

	cards := buildCards(s.decks, nextID)
	audit := Validate(cards, s.decks)
	if !audit.OK {
		// keep playing with whatever we have; this is a diagnostic only
		s.logger.Error("Shoe validation failed", "shoe", nextID, "decks", s.decks, "issues", audit.Issues)
	}

	s.rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	s.policy = s.nextPolicy
	cut := s.policy.cutPosition(len(cards), s.rng.IntN)

	slots := make([]slot, 0, len(cards)+1)
	for i, c := range cards {
		if i == cut {
			slots = append(slots, slot{cut: true})
		}
		slots = append(slots, slot{card: c})
	}
	if cut >= len(cards) {
		slots = append(slots, slot{cut: true})
	}

	s.slots = slots
	s.cutIndex = cut
	s.built = len(cards)
	s.pos = 0
	s.discard = s.discard[:0]
	s.pending = false
	s.id = nextID

	s.logger.Debug("Shuffled new shoe", "shoe", s.id, "decks", s.decks, "cut", cut, "random", s.policy.RandomPlacement)

	ev := ShuffleEvent{ShoeID: s.id, Decks: s.decks, CutIndex: cut, Policy: s.policy, Audit: audit}
	for _, fn := range s.listeners {
		fn(ev)
	}
	return audit
}

// Draw deals the next card. When the cut marker is at the mouth it is
// consumed: during a round the reshuffle is deferred and ShufflePending is
// raised, otherwise the shoe is rebuilt immediately and the draw retried.
func (s *Shoe) Draw(inRound bool) DrawResult {
	var res DrawResult
	s.prepare(inRound, &res)

	c := s.slots[s.pos].card
	s.pos++
	s.discard = append(s.discard, c)

	res.Card = c
	res.ShufflePending = s.pending
	return res
}

// DrawSpecific extracts a card matching target from the undrawn region. A
// target with an ID matches that physical card, otherwise suit and rank must
// match. On a miss the shoe is rebuilt and the search retried once before
// falling back to a plain Draw.
func (s *Shoe) DrawSpecific(target blackjack.Card, inRound bool) DrawResult {
	if target.IsZero() {
		return s.Draw(inRound)
	}
	match := func(c blackjack.Card) bool {
		if target.ID != "" {
			return c.ID == target.ID
		}
		return c.Suit == target.Suit && c.Rank == target.Rank
	}
	return s.drawWhere(match, inRound, "specific", target.String())
}

// DrawMatching extracts a card split-eligible with first: any ten-group card
// when first is ten-valued, otherwise a card of the same rank. Misses are
// handled as in DrawSpecific.
func (s *Shoe) DrawMatching(first blackjack.Card, inRound bool) DrawResult {
	if first.IsZero() {
		return s.Draw(inRound)
	}
	wantTen := blackjack.IsTenGroup(first.Rank)
	match := func(c blackjack.Card) bool {
		if wantTen {
			return blackjack.IsTenGroup(c.Rank)
		}
		return c.Rank == first.Rank
	}
	return s.drawWhere(match, inRound, "matching", first.String())
}

func (s *Shoe) drawWhere(match func(blackjack.Card) bool, inRound bool, kind, want string) DrawResult {
	var res DrawResult

	for attempt := 0; attempt < 2; attempt++ {
		s.prepare(inRound, &res)

		if c, ok := s.extract(match); ok {
			res.Card = c
			res.ShufflePending = s.pending
			return res
		}

		if attempt == 0 {
			s.logger.Debug("Targeted draw missed, reshuffling", "kind", kind, "want", want)
			s.Shuffle(s.decks)
			res.ShuffledNow = true
		}
	}

	s.logger.Warn("Targeted draw found no card after reshuffle, drawing normally", "kind", kind, "want", want)
	fallback := s.Draw(inRound)
	fallback.ShuffledNow = fallback.ShuffledNow || res.ShuffledNow
	return fallback
}

// extract removes the first undrawn card satisfying match, keeping the cut
// marker index in step with the splice.
func (s *Shoe) extract(match func(blackjack.Card) bool) (blackjack.Card, bool) {
	for i := s.pos; i < len(s.slots); i++ {
		sl := s.slots[i]
		if sl.cut || !match(sl.card) {
			continue
		}
		s.slots = slices.Delete(s.slots, i, i+1)
		if s.cutIndex >= 0 && i < s.cutIndex {
			s.cutIndex--
		}
		s.discard = append(s.discard, sl.card)
		return sl.card, true
	}
	return blackjack.Card{}, false
}

// prepare makes sure a real card is at the mouth, consuming the cut marker
// and rebuilding exhausted shoes as needed.
func (s *Shoe) prepare(inRound bool, res *DrawResult) {
	if s.State() == Empty || s.State() == Exhausted {
		s.Shuffle(s.decks)
		res.ShuffledNow = true
	}

	if s.slots[s.pos].cut {
		s.pos++
		if inRound {
			if !s.pending {
				s.logger.Debug("Cut marker reached mid-round, shuffle pending", "shoe", s.id)
			}
			s.pending = true
		} else {
			s.Shuffle(s.decks)
			res.ShuffledNow = true
		}
	}

	if s.pos >= len(s.slots) {
		s.Shuffle(s.decks)
		res.ShuffledNow = true
	}
}

// State reports where the shoe is in its lifecycle
func (s *Shoe) State() State {
	switch {
	case len(s.slots) == 0:
		return Empty
	case s.pos >= len(s.slots):
		return Exhausted
	case s.pending:
		return CutPending
	default:
		return Active
	}
}

// ShufflePending reports whether the cut marker was consumed mid-round and
// the shoe still awaits its reshuffle.
func (s *Shoe) ShufflePending() bool { return s.pending }

// ID returns the shoe identity, incremented on every rebuild
func (s *Shoe) ID() int { return s.id }

// Decks returns the number of decks in the current shoe
func (s *Shoe) Decks() int { return s.decks }

// TotalCards returns the number of cards the shoe was built with, excluding
// the cut marker.
func (s *Shoe) TotalCards() int { return s.built }

// Len returns the length of the physical stack including the marker
func (s *Shoe) Len() int { return len(s.slots) }

// Remaining returns the undrawn cards, excluding the marker
func (s *Shoe) Remaining() int {
	if len(s.slots) == 0 {
		return 0
	}
	rem := len(s.slots) - s.pos
	if s.cutIndex >= s.pos {
		rem--
	}
	return max(rem, 0)
}

// Locked reports whether a card has been drawn from the current shoe. The
// cut policy and the table rules tied to the shoe stay fixed until the next
// shuffle once it is.
func (s *Shoe) Locked() bool { return len(s.discard) > 0 }

// DiscardCount returns the number of cards drawn from this shoe
func (s *Shoe) DiscardCount() int { return len(s.discard) }

// Discards returns a copy of the discard pile in draw order
func (s *Shoe) Discards() []blackjack.Card { return slices.Clone(s.discard) }

// CardsUntilCut returns how many cards remain before the marker; ok is
// false when no marker has been placed yet.
func (s *Shoe) CardsUntilCut() (n int, ok bool) {
	if s.cutIndex < 0 {
		return 0, false
	}
	if s.cutIndex < s.pos {
		return 0, true
	}
	return s.cutIndex - s.pos, true
}

// CutIndex returns the current marker index, or -1 before the first shuffle
func (s *Shoe) CutIndex() int { return s.cutIndex }

// Stats returns a snapshot of the shoe counters
func (s *Shoe) Stats() Stats {
	st := Stats{
		ShoeID:         s.id,
		Decks:          s.decks,
		State:          s.State().String(),
		TotalCards:     s.built,
		Remaining:      s.Remaining(),
		Discards:       len(s.discard),
		ShufflePending: s.pending,
		Policy:         s.Policy(),
	}
	if n, ok := s.CardsUntilCut(); ok {
		st.UntilCut = &n
	}
	return st
}

func buildCards(decks, shoeID int) []blackjack.Card {
	cards := make([]blackjack.Card, 0, 52*decks)
	seq := 0
	for d := 0; d < decks; d++ {
		for _, suit := range blackjack.Suits {
			for _, rank := range blackjack.Ranks {
				cards = append(cards, blackjack.Card{
					Suit: suit,
					Rank: rank,
					ID:   blackjack.CardID(fmt.Sprintf("%d-%d", shoeID, seq)),
				})
				seq++
			}
		}
	}
	return cards
}
