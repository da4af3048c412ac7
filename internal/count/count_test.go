package count

import (
	"fmt"
	"sync"
	"testing"

	"github.com/lox/blackjack/blackjack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rank blackjack.Rank
		want int
	}{
		{blackjack.Ace, -1},
		{blackjack.Ten, -1},
		{blackjack.Jack, -1},
		{blackjack.Queen, -1},
		{blackjack.King, -1},
		{blackjack.Eight, 0},
		{blackjack.Nine, 0},
		{blackjack.Two, 1},
		{blackjack.Five, 1},
		{blackjack.Seven, 1},
		{blackjack.Rank(0), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tag(tt.rank), "rank %s", tt.rank)
	}
}

func TestInitialCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, InitialCount(1))
	assert.Equal(t, -4, InitialCount(2))
	assert.Equal(t, -12, InitialCount(4))
	assert.Equal(t, -20, InitialCount(6))
	assert.Equal(t, -28, InitialCount(8))
}

func TestObserveDeduplicates(t *testing.T) {
	t.Parallel()

	c := NewCounter(1)
	var updates []int
	c.OnUpdate(func(running int) { updates = append(updates, running) })

	assert.True(t, c.Observe("1-0", blackjack.Five))
	assert.False(t, c.Observe("1-0", blackjack.Five), "same identity counted once")
	assert.True(t, c.Observe("1-1", blackjack.King))
	assert.True(t, c.Observe("1-2", blackjack.Six))

	assert.Equal(t, 1, c.RunningCount())
	assert.Equal(t, 3, c.Counted())
	assert.Equal(t, []int{1, 0, 1}, updates)
}

func TestObserveIgnoresIncompleteReveals(t *testing.T) {
	t.Parallel()

	c := NewCounter(1)
	assert.False(t, c.Observe("", blackjack.Two))
	assert.False(t, c.Observe("1-4", blackjack.Rank(0)))
	assert.Equal(t, 0, c.RunningCount())
}

func TestResetClearsIdentities(t *testing.T) {
	t.Parallel()

	c := NewCounter(2)
	assert.Equal(t, -4, c.RunningCount())

	c.Observe("1-0", blackjack.Three)
	assert.Equal(t, -3, c.RunningCount())

	var last int
	c.OnUpdate(func(running int) { last = running })
	assert.Equal(t, -12, c.Reset(4))
	assert.Equal(t, -12, last)
	assert.Equal(t, 0, c.Counted())

	// an identity from a previous shoe counts again after a reset
	assert.True(t, c.Observe("1-0", blackjack.Three))
}

func TestFullDeckBalancesToFour(t *testing.T) {
	t.Parallel()

	// KO is unbalanced: a full deck nets +4
	c := NewCounter(1)
	for _, suit := range blackjack.Suits {
		for _, rank := range blackjack.Ranks {
			c.Observe(blackjack.CardID(fmt.Sprintf("%s%s", rank, suit)), rank)
		}
	}
	assert.Equal(t, 4, c.RunningCount())
}

func TestTrueCount(t *testing.T) {
	t.Parallel()

	c := NewCounter(6)
	assert.Equal(t, 0.0, c.TrueCount(6))

	for i := 0; i < 12; i++ {
		c.Observe(blackjack.CardID(fmt.Sprintf("1-%d", i)), blackjack.Four)
	}
	assert.Equal(t, 3.0, c.TrueCount(4))
	assert.Equal(t, 48.0, c.TrueCount(0), "clamped to a quarter deck")
}

func TestConcurrentObserve(t *testing.T) {
	t.Parallel()

	c := NewCounter(1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Observe(blackjack.CardID(fmt.Sprintf("1-%d", j)), blackjack.Two)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 20, c.Counted())
	assert.Equal(t, 20, c.RunningCount())
}
