package simulator

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/blackjack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tables, rounds int) Config {
	config := DefaultConfig()
	config.Tables = tables
	config.Rounds = rounds
	config.Seed = 12345
	config.Logger = log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	return config
}

func TestNew(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	require.NotNil(t, s)
	assert.Equal(t, 1, s.config.Tables)
	assert.Equal(t, 4, s.config.Rules.Decks)
	assert.NotNil(t, s.logger)
}

func TestSimulator_Run(t *testing.T) {
	t.Parallel()

	report, err := New(testConfig(3, 200)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Tables, 3)

	stats := report.Stats
	assert.Equal(t, 600, stats.Rounds)
	require.NoError(t, stats.Validate())

	// every settled cent shows up in the statistics
	var delta blackjack.Money
	for i, table := range report.Tables {
		assert.Equal(t, i, table.Table)
		assert.Equal(t, int64(12345+i), table.Seed)
		assert.Equal(t, 200, table.Rounds)
		assert.False(t, table.Broke)
		assert.GreaterOrEqual(t, table.Shoes, 1)
		delta += table.Delta
	}
	assert.InDelta(t, float64(delta)/float64(blackjack.Dollars(25)), stats.AllUnits, 1e-6)
	assert.Positive(t, stats.Doubles)
	assert.Positive(t, stats.Blackjacks)
}

func TestSimulator_Run_Deterministic(t *testing.T) {
	t.Parallel()

	first, err := New(testConfig(2, 150)).Run(context.Background())
	require.NoError(t, err)
	second, err := New(testConfig(2, 150)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Tables, second.Tables)
	assert.Equal(t, first.Stats.Values, second.Stats.Values)

	config := testConfig(2, 150)
	config.Seed = 999
	other, err := New(config).Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Stats.Values, other.Stats.Values)
}

func TestSimulator_Run_Parallel(t *testing.T) {
	t.Parallel()

	serial := testConfig(4, 50)
	serial.Parallel = 1
	a, err := New(serial).Run(context.Background())
	require.NoError(t, err)

	b, err := New(testConfig(4, 50)).Run(context.Background())
	require.NoError(t, err)

	// tables are independent, so scheduling never changes the result
	assert.Equal(t, a.Tables, b.Tables)
}

func TestSimulator_Run_Broke(t *testing.T) {
	t.Parallel()

	config := testConfig(1, 100000)
	config.Bankroll = blackjack.Dollars(50)

	report, err := New(config).Run(context.Background())
	require.NoError(t, err)

	table := report.Tables[0]
	assert.True(t, table.Broke)
	assert.Less(t, table.Rounds, 100000)
	assert.Less(t, table.FinalBankroll, blackjack.Dollars(25))
	assert.Equal(t, table.Rounds, report.Stats.Rounds)
}

func TestSimulator_Run_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(2, 10)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSimulation_Convenience(t *testing.T) {
	t.Parallel()

	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	report, err := RunSimulation(context.Background(), 1, 20, 7, logger)
	require.NoError(t, err)
	assert.Equal(t, 20, report.Stats.Rounds)
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	report, err := New(testConfig(1, 100)).Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	WriteSummary(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "=== FINAL RESULTS ===")
	assert.Contains(t, out, "rounds played: 100")
	assert.Contains(t, out, "=== TRUE COUNT ANALYSIS ===")
	assert.Contains(t, out, "Table 0 (seed 12345)")
}
