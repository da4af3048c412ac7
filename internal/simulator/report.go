package simulator

import (
	"fmt"
	"io"

	"github.com/lox/blackjack/internal/statistics"
)

// WriteSummary prints a summary of simulation results
func WriteSummary(w io.Writer, report *Report) {
	stats := report.Stats
	low, high := stats.ConfidenceInterval95()

	fmt.Fprintf(w, "\n=== FINAL RESULTS ===\n")
	fmt.Fprintf(w, "Tables: %d, rounds played: %d\n", len(report.Tables), stats.Rounds)
	if stats.Rounds == 0 {
		return
	}

	fmt.Fprintf(w, "\n=== STATISTICAL RESULTS ===\n")
	fmt.Fprintf(w, "Mean: %.4f units/round\n", stats.Mean())
	fmt.Fprintf(w, "Median: %.4f units\n", stats.Median())
	fmt.Fprintf(w, "Std Dev: %.4f units\n", stats.StdDev())
	fmt.Fprintf(w, "Std Error: %.4f units\n", stats.StdError())
	fmt.Fprintf(w, "95%% CI: [%.4f, %.4f] units/round\n", low, high)
	fmt.Fprintf(w, "Percentiles: P5=%.3f, P25=%.3f, P75=%.3f, P95=%.3f\n",
		stats.Percentile(0.05), stats.Percentile(0.25), stats.Percentile(0.75), stats.Percentile(0.95))

	rounds := float64(stats.Rounds)
	fmt.Fprintf(w, "\n=== OUTCOMES ===\n")
	fmt.Fprintf(w, "Won %d (%.1f%%), lost %d (%.1f%%), pushed %d (%.1f%%)\n",
		stats.Wins, float64(stats.Wins)/rounds*100,
		stats.Losses, float64(stats.Losses)/rounds*100,
		stats.Pushes, float64(stats.Pushes)/rounds*100)
	fmt.Fprintf(w, "Blackjacks: %d, doubles: %d, splits: %d, surrenders: %d\n",
		stats.Blackjacks, stats.Doubles, stats.Splits, stats.Surrenders)
	fmt.Fprintf(w, "Insurance taken %d times, %.2f units\n", stats.Insured, stats.InsuranceUnits)
	fmt.Fprintf(w, "Sanity check: %.2f + %.2f = %.2f (should equal %.2f)\n",
		stats.HandUnits, stats.InsuranceUnits, stats.HandUnits+stats.InsuranceUnits, stats.AllUnits)
	fmt.Fprintf(w, "Largest swing: %.1f units, rounds moving 2+ units: %d\n", stats.MaxSwing, stats.BigSwings)

	fmt.Fprintf(w, "\n=== TRUE COUNT ANALYSIS ===\n")
	for tc := statistics.MinCount; tc <= statistics.MaxCount; tc++ {
		cs := stats.CountResults[tc-statistics.MinCount]
		if cs.Rounds > 0 {
			fmt.Fprintf(w, "TC %+d: %d rounds, %.3f units/round\n", tc, cs.Rounds, stats.CountMean(tc))
		}
	}

	fmt.Fprintf(w, "\n=== TABLES ===\n")
	for _, t := range report.Tables {
		status := ""
		if t.Broke {
			status = " (broke)"
		}
		fmt.Fprintf(w, "Table %d (seed %d): %d rounds over %d shoes, bankroll %s%s\n",
			t.Table, t.Seed, t.Rounds, t.Shoes, t.FinalBankroll, status)
	}
}
