package shoe

import (
	"testing"

	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShoe(t *testing.T, decks int, opts ...Option) *Shoe {
	t.Helper()
	s := New(randutil.New(42), decks, opts...)
	audit := s.Shuffle(decks)
	require.True(t, audit.OK, "audit issues: %v", audit.Issues)
	return s
}

// undrawn returns the cards still in the deal stream
func undrawn(s *Shoe) []blackjack.Card {
	var out []blackjack.Card
	for _, sl := range s.slots[s.pos:] {
		if !sl.cut {
			out = append(out, sl.card)
		}
	}
	return out
}

func assertConserved(t *testing.T, s *Shoe) {
	t.Helper()
	assert.Equal(t, s.TotalCards(), s.Remaining()+s.DiscardCount(), "remaining + discards must equal total")

	all := append(undrawn(s), s.Discards()...)
	audit := Validate(all, s.Decks())
	assert.True(t, audit.OK, "composition broken: %v", audit.Issues)
}

func TestFreshShoeComposition(t *testing.T) {
	t.Parallel()

	for _, decks := range []int{2, 4, 6, 8} {
		s := newTestShoe(t, decks)

		assert.Equal(t, 52*decks, s.TotalCards())
		assert.Equal(t, 52*decks+1, s.Len(), "one cut marker")
		assert.Equal(t, 52*decks, s.Remaining())
		assert.Equal(t, 0, s.DiscardCount())
		assert.Equal(t, Active, s.State())

		markers := 0
		for _, sl := range s.slots {
			if sl.cut {
				markers++
			}
		}
		assert.Equal(t, 1, markers)

		audit := Validate(undrawn(s), decks)
		assert.True(t, audit.OK, audit.Issues)
	}
}

func TestShuffleIncrementsIdentity(t *testing.T) {
	t.Parallel()

	s := New(randutil.New(1), 2)
	assert.Equal(t, Empty, s.State())
	assert.Equal(t, 0, s.ID())

	var events []ShuffleEvent
	s.OnShuffle(func(ev ShuffleEvent) { events = append(events, ev) })

	s.Shuffle(2)
	s.Shuffle(2)
	assert.Equal(t, 2, s.ID())
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[1].ShoeID)

	// identities are unique within a shoe
	seen := map[blackjack.CardID]bool{}
	for _, c := range undrawn(s) {
		require.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestDeterministicCutPlacement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		decks int
		pct   int
		want  int
	}{
		{1, 75, 39},
		{1, 65, 33},
		{1, 90, 46},
		{2, 75, 78},
		{6, 80, 249},
		{1, 99, 46}, // clamped to 90
		{1, 67, 33}, // snapped to 65
	}

	for _, tt := range tests {
		s := newTestShoe(t, tt.decks, WithCutPolicy(CutPolicy{PenetrationPercent: tt.pct}))
		assert.Equal(t, tt.want, s.CutIndex(), "decks=%d pct=%d", tt.decks, tt.pct)
		assert.True(t, s.slots[s.CutIndex()].cut)

		n, ok := s.CardsUntilCut()
		assert.True(t, ok)
		assert.Equal(t, tt.want, n)
	}
}

func TestRandomCutPlacement(t *testing.T) {
	t.Parallel()

	s := New(randutil.New(7), 6, WithCutPolicy(CutPolicy{RandomPlacement: true}))
	for i := 0; i < 50; i++ {
		s.Shuffle(6)
		total := 52 * 6
		assert.GreaterOrEqual(t, s.CutIndex(), total*70/100)
		assert.LessOrEqual(t, s.CutIndex(), total*80/100)
	}
}

func TestCutPolicyNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 75, CutPolicy{}.Normalize().PenetrationPercent)
	assert.Equal(t, 65, CutPolicy{PenetrationPercent: 10}.Normalize().PenetrationPercent)
	assert.Equal(t, 90, CutPolicy{PenetrationPercent: 95}.Normalize().PenetrationPercent)
	assert.Equal(t, 70, CutPolicy{PenetrationPercent: 68}.Normalize().PenetrationPercent)
	assert.True(t, CutPolicy{RandomPlacement: true}.Normalize().RandomPlacement)
}

func TestCutPolicyLockedForShoe(t *testing.T) {
	t.Parallel()

	s := newTestShoe(t, 1, WithCutPolicy(CutPolicy{PenetrationPercent: 75}))
	s.Draw(true)

	s.SetCutPolicy(CutPolicy{PenetrationPercent: 90})
	assert.Equal(t, 75, s.Policy().PenetrationPercent, "current shoe keeps its policy")
	assert.Equal(t, 39, s.CutIndex())

	s.Shuffle(1)
	assert.Equal(t, 90, s.Policy().PenetrationPercent)
	assert.Equal(t, 46, s.CutIndex())
}

func TestLockedAfterFirstDraw(t *testing.T) {
	t.Parallel()

	s := newTestShoe(t, 1)
	assert.False(t, s.Locked())

	s.Draw(false)
	assert.True(t, s.Locked())

	s.Shuffle(1)
	assert.False(t, s.Locked())
}

func TestDrawConservesCards(t *testing.T) {
	t.Parallel()

	s := newTestShoe(t, 2)
	for i := 0; i < 60; i++ {
		res := s.Draw(true)
		require.False(t, res.Card.IsZero())
		assertConserved(t, s)
	}
	assert.Equal(t, 60, s.DiscardCount())
}

func TestCutMarkerDuringRound(t *testing.T) {
	t.Parallel()

	s := newTestShoe(t, 1)
	cut := s.CutIndex()
	id := s.ID()

	for i := 0; i < cut; i++ {
		res := s.Draw(true)
		assert.False(t, res.ShufflePending)
	}
	n, _ := s.CardsUntilCut()
	assert.Equal(t, 0, n)

	res := s.Draw(true)
	assert.True(t, res.ShufflePending, "marker consumed mid round")
	assert.False(t, res.ShuffledNow)
	assert.Equal(t, id, s.ID(), "same physical shoe")
	assert.Equal(t, CutPending, s.State())
	assert.Equal(t, cut+1, s.DiscardCount())
	assertConserved(t, s)

	// keep dealing from the remainder
	res = s.Draw(true)
	assert.True(t, res.ShufflePending)
	assert.Equal(t, id, s.ID())
}

func TestCutMarkerBetweenRounds(t *testing.T) {
	t.Parallel()

	s := newTestShoe(t, 1)
	cut := s.CutIndex()
	id := s.ID()

	for i := 0; i < cut; i++ {
		s.Draw(false)
	}

	res := s.Draw(false)
	assert.True(t, res.ShuffledNow)
	assert.False(t, res.ShufflePending)
	assert.Equal(t, id+1, s.ID())
	assert.Equal(t, 1, s.DiscardCount(), "the retried draw comes from the new shoe")
	assertConserved(t, s)
}

func TestExhaustedShoeRebuilds(t *testing.T) {
	t.Parallel()

	s := newTestShoe(t, 1)
	for i := 0; i < 52; i++ {
		s.Draw(true)
	}
	assert.Equal(t, Exhausted, s.State())
	assert.Equal(t, 0, s.Remaining())

	res := s.Draw(true)
	assert.True(t, res.ShuffledNow)
	assert.Equal(t, 2, s.ID())
}

func TestDrawSpecific(t *testing.T) {
	t.Parallel()

	t.Run("extracts the requested card", func(t *testing.T) {
		s := newTestShoe(t, 2)
		before := s.Remaining()

		target := blackjack.NewCard(blackjack.Ace, blackjack.Spades)
		res := s.DrawSpecific(target, true)

		assert.Equal(t, target.Rank, res.Card.Rank)
		assert.Equal(t, target.Suit, res.Card.Suit)
		assert.Equal(t, before-1, s.Remaining())
		assertConserved(t, s)
	})

	t.Run("by identity", func(t *testing.T) {
		s := newTestShoe(t, 1)
		want := undrawn(s)[30]

		res := s.DrawSpecific(blackjack.Card{Rank: want.Rank, Suit: want.Suit, ID: want.ID}, true)
		assert.Equal(t, want, res.Card)
		assertConserved(t, s)
	})

	t.Run("adjusts cut index when extracting before the marker", func(t *testing.T) {
		s := newTestShoe(t, 1)
		cut := s.CutIndex()
		first := undrawn(s)[0]

		s.DrawSpecific(first, true)
		assert.Equal(t, cut-1, s.CutIndex())
		assert.True(t, s.slots[s.CutIndex()].cut)
	})

	t.Run("leaves cut index when extracting after the marker", func(t *testing.T) {
		s := newTestShoe(t, 1)
		cut := s.CutIndex()
		last := undrawn(s)[51]

		s.DrawSpecific(last, true)
		assert.Equal(t, cut, s.CutIndex())
		assert.True(t, s.slots[s.CutIndex()].cut)
	})

	t.Run("reshuffles once on a miss", func(t *testing.T) {
		s := newTestShoe(t, 1)
		target := blackjack.NewCard(blackjack.King, blackjack.Hearts)

		first := s.DrawSpecific(target, true)
		assert.Equal(t, target.Rank, first.Card.Rank)
		id := s.ID()

		// the only king of hearts is gone, so this forces a rebuild
		second := s.DrawSpecific(target, true)
		assert.True(t, second.ShuffledNow)
		assert.Equal(t, id+1, s.ID())
		assert.Equal(t, target.Rank, second.Card.Rank)
		assert.Equal(t, target.Suit, second.Card.Suit)
		assertConserved(t, s)
	})

	t.Run("falls back to a plain draw for an empty target", func(t *testing.T) {
		s := newTestShoe(t, 1)
		next := undrawn(s)[0]
		res := s.DrawSpecific(blackjack.Card{}, true)
		assert.Equal(t, next, res.Card)
	})
}

func TestDrawMatching(t *testing.T) {
	t.Parallel()

	t.Run("ten group matches any ten", func(t *testing.T) {
		s := newTestShoe(t, 4)
		for i := 0; i < 20; i++ {
			res := s.DrawMatching(blackjack.NewCard(blackjack.Jack, blackjack.Clubs), true)
			assert.True(t, blackjack.IsTenGroup(res.Card.Rank), "got %s", res.Card)
		}
		assertConserved(t, s)
	})

	t.Run("other ranks match exactly", func(t *testing.T) {
		s := newTestShoe(t, 4)
		before := s.Remaining()
		res := s.DrawMatching(blackjack.NewCard(blackjack.Nine, blackjack.Clubs), true)
		assert.Equal(t, blackjack.Nine, res.Card.Rank)
		assert.Equal(t, before-1, s.Remaining())
		assertConserved(t, s)
	})
}

func TestValidateDetectsProblems(t *testing.T) {
	t.Parallel()

	cards := buildCards(1, 1)
	assert.True(t, Validate(cards, 1).OK)

	broken := append([]blackjack.Card{}, cards[:51]...)
	broken = append(broken, cards[0])
	audit := Validate(broken, 1)
	assert.False(t, audit.OK)
	assert.NotEmpty(t, audit.Issues)

	assert.False(t, Validate(cards, 2).OK)
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := New(randutil.New(3), 1)
	st := s.Stats()
	assert.Nil(t, st.UntilCut, "no marker before the first shuffle")
	assert.Equal(t, "empty", st.State)

	s.Shuffle(1)
	s.Draw(true)
	st = s.Stats()
	require.NotNil(t, st.UntilCut)
	assert.Equal(t, 38, *st.UntilCut)
	assert.Equal(t, 51, st.Remaining)
	assert.Equal(t, 1, st.Discards)
}
