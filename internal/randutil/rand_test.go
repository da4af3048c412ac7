package randutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsDeterministic(t *testing.T) {
	a, b := New(42), New(42)
	for range 100 {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}

func TestNewSeedsDiffer(t *testing.T) {
	a, b := New(1), New(2)
	same := 0
	for range 100 {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	assert.Less(t, same, 5)
}

func TestZeroSeed(t *testing.T) {
	r := New(0)
	seen := map[uint64]bool{}
	for range 10 {
		seen[r.Uint64()] = true
	}
	assert.Len(t, seen, 10)
}

func TestTableSeed(t *testing.T) {
	assert.Equal(t, int64(10), TableSeed(10, 0))
	assert.Equal(t, int64(13), TableSeed(10, 3))

	a, b := New(TableSeed(10, 0)), New(TableSeed(10, 1))
	assert.NotEqual(t, a.Uint64(), b.Uint64(), "tables in a run shuffle differently")
}

func TestFreshSeed(t *testing.T) {
	assert.NotZero(t, FreshSeed())
}
