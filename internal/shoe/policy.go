package shoe

// Penetration bounds for deterministic cut placement
const (
	MinPenetration     = 65
	MaxPenetration     = 90
	DefaultPenetration = 75
	penetrationStep    = 5

	// random placement always lands between 70% and 80% of the shoe
	randomMinPercent = 70
	randomMaxPercent = 80
)

// CutPolicy decides where the cut marker goes when a shoe is built. The
// policy in effect for a shoe is captured at shuffle time and cannot change
// for the rest of that shoe's life.
type CutPolicy struct {
	RandomPlacement    bool `json:"randomPlacement"`
	PenetrationPercent int  `json:"penetrationPercent"`
}

// DefaultCutPolicy returns deterministic placement at 75%
func DefaultCutPolicy() CutPolicy {
	return CutPolicy{PenetrationPercent: DefaultPenetration}
}

// Normalize clamps the penetration into [65, 90] and snaps it to 5% steps.
// A zero penetration means the default.
func (p CutPolicy) Normalize() CutPolicy {
	pct := p.PenetrationPercent
	if pct == 0 {
		pct = DefaultPenetration
	}
	pct = clamp(pct, MinPenetration, MaxPenetration)
	// round half up to the nearest step
	pct = (pct + penetrationStep/2) / penetrationStep * penetrationStep
	pct = clamp(pct, MinPenetration, MaxPenetration)

	return CutPolicy{RandomPlacement: p.RandomPlacement, PenetrationPercent: pct}
}

// cutPosition returns the index (counted from the draw point) at which the
// marker is inserted into a shoe of total cards.
func (p CutPolicy) cutPosition(total int, intn func(int) int) int {
	if total < 2 {
		return total
	}
	p = p.Normalize()

	if p.RandomPlacement {
		minPos := total * randomMinPercent / 100
		maxPos := total * randomMaxPercent / 100
		return minPos + intn(maxPos-minPos+1)
	}

	pos := total * p.PenetrationPercent / 100
	// keep at least one card on each side of the marker
	return clamp(pos, 1, total-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
