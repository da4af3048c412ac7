package statistics

import (
	"fmt"
	"math"
	"sort"
)

// True count buckets tracked by CountResults. Counts outside the range are
// clamped into the end buckets.
const (
	MinCount = -4
	MaxCount = 6
)

// RoundResult represents the outcome of a single blackjack round
type RoundResult struct {
	NetUnits       float64 // Net result in base bets, insurance included
	InsuranceUnits float64 // Insurance share of NetUnits
	Seed           int64   // Table seed (for replay)
	Table          int     // Table index within the run
	TrueCount      int     // True count when the round was dealt
	Hands          int     // Hands played after splits
	Blackjack      bool    // Player natural paid 3:2
	Doubled        bool
	Surrendered    bool
	Insured        bool
}

// CountStats tracks statistics for a single true count bucket
type CountStats struct {
	Rounds    int
	SumUnits  float64
	SumUnits2 float64
}

// Statistics tracks blackjack simulation statistics
type Statistics struct {
	Rounds    int
	SumUnits  float64
	SumUnits2 float64   // Sum of squares for variance calculation
	Values    []float64 // Store all values for median/percentile calculation

	Wins   int // Rounds with a positive net
	Losses int
	Pushes int

	Blackjacks int
	Doubles    int
	Splits     int // Rounds that split at least once
	Surrenders int
	Insured    int

	HandUnits      float64 // Units from the main wagers
	InsuranceUnits float64 // Units from insurance side bets
	AllUnits       float64 // Total for sanity check

	// Indexed by TrueCount-MinCount
	CountResults [MaxCount - MinCount + 1]CountStats

	MaxSwing  float64 // Largest absolute round result, in units
	BigSwings int     // Rounds moving two units or more
}

// Mean returns the arithmetic mean in base bets per round
func (s *Statistics) Mean() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.SumUnits / float64(s.Rounds)
}

// Variance returns the sample variance of all results
func (s *Statistics) Variance() float64 {
	if s.Rounds < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumUnits2 - float64(s.Rounds)*mean*mean) / float64(s.Rounds-1)
}

// StdDev returns the sample standard deviation of all results
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Rounds))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

func countIndex(tc int) int {
	switch {
	case tc < MinCount:
		tc = MinCount
	case tc > MaxCount:
		tc = MaxCount
	}
	return tc - MinCount
}

// Add incorporates a new round result into the statistics
func (s *Statistics) Add(result RoundResult) {
	net := result.NetUnits
	s.Rounds++
	s.SumUnits += net
	s.SumUnits2 += net * net
	s.Values = append(s.Values, net)

	switch {
	case net > 0:
		s.Wins++
	case net < 0:
		s.Losses++
	default:
		s.Pushes++
	}

	if result.Blackjack {
		s.Blackjacks++
	}
	if result.Doubled {
		s.Doubles++
	}
	if result.Hands > 1 {
		s.Splits++
	}
	if result.Surrendered {
		s.Surrenders++
	}
	if result.Insured {
		s.Insured++
	}

	s.InsuranceUnits += result.InsuranceUnits
	s.HandUnits += net - result.InsuranceUnits
	s.AllUnits += net

	cs := &s.CountResults[countIndex(result.TrueCount)]
	cs.Rounds++
	cs.SumUnits += net
	cs.SumUnits2 += net * net

	swing := math.Abs(net)
	if swing > s.MaxSwing {
		s.MaxSwing = swing
	}
	if swing >= 2 {
		s.BigSwings++
	}
}

// Merge folds other into s, used to combine per-table results
func (s *Statistics) Merge(other *Statistics) {
	s.Rounds += other.Rounds
	s.SumUnits += other.SumUnits
	s.SumUnits2 += other.SumUnits2
	s.Values = append(s.Values, other.Values...)
	s.Wins += other.Wins
	s.Losses += other.Losses
	s.Pushes += other.Pushes
	s.Blackjacks += other.Blackjacks
	s.Doubles += other.Doubles
	s.Splits += other.Splits
	s.Surrenders += other.Surrenders
	s.Insured += other.Insured
	s.HandUnits += other.HandUnits
	s.InsuranceUnits += other.InsuranceUnits
	s.AllUnits += other.AllUnits
	for i := range s.CountResults {
		s.CountResults[i].Rounds += other.CountResults[i].Rounds
		s.CountResults[i].SumUnits += other.CountResults[i].SumUnits
		s.CountResults[i].SumUnits2 += other.CountResults[i].SumUnits2
	}
	if other.MaxSwing > s.MaxSwing {
		s.MaxSwing = other.MaxSwing
	}
	s.BigSwings += other.BigSwings
}

// Median returns the median value of all results
func (s *Statistics) Median() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Percentile returns the value at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// CountMean returns the mean result for rounds dealt at a true count.
// Counts outside MinCount..MaxCount return 0.
func (s *Statistics) CountMean(tc int) float64 {
	if tc < MinCount || tc > MaxCount {
		return 0
	}
	cs := s.CountResults[tc-MinCount]
	if cs.Rounds == 0 {
		return 0
	}
	return cs.SumUnits / float64(cs.Rounds)
}

// IsLedgerBalanced checks if the accounting is consistent
func (s *Statistics) IsLedgerBalanced() bool {
	return math.Abs(s.AllUnits-s.HandUnits-s.InsuranceUnits) <= 1e-6
}

// Validate performs comprehensive validation of statistics data
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: AllUnits=%.6f, HandUnits=%.6f, InsuranceUnits=%.6f",
			s.AllUnits, s.HandUnits, s.InsuranceUnits)
	}

	if s.Rounds <= 0 {
		return fmt.Errorf("invalid rounds count: %d", s.Rounds)
	}

	if len(s.Values) != s.Rounds {
		return fmt.Errorf("values array length (%d) does not match rounds count (%d)",
			len(s.Values), s.Rounds)
	}

	if total := s.Wins + s.Losses + s.Pushes; total != s.Rounds {
		return fmt.Errorf("wins, losses and pushes (%d) do not match rounds (%d)", total, s.Rounds)
	}

	counted := 0
	for _, cs := range s.CountResults {
		counted += cs.Rounds
	}
	if counted != s.Rounds {
		return fmt.Errorf("count bucket total (%d) does not match rounds (%d)", counted, s.Rounds)
	}

	return nil
}
