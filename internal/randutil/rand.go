// Package randutil builds the seeded generators that shuffle every shoe.
package randutil

import (
	rand "math/rand/v2"
	"time"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from seed. The same seed
// always produces the same shuffles, which is what makes a table replayable.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// TableSeed returns the seed of the table-th table in a run seeded with base.
// Tables are numbered from zero and the first one plays base itself.
func TableSeed(base int64, table int) int64 {
	return base + int64(table)
}

// FreshSeed returns a seed for a table started without one
func FreshSeed() int64 {
	return time.Now().UnixNano()
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
