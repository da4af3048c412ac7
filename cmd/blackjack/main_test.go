package main

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": "test"})
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestCommandParsing(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		command string
	}{
		{"play is the default", nil, "play"},
		{"serve", []string{"serve", "--addr", ":9000"}, "serve"},
		{"simulate", []string{"simulate", "-t", "2", "-r", "50"}, "simulate"},
		{"ledger shows by default", []string{"ledger"}, "ledger show"},
		{"ledger reset", []string{"ledger", "reset"}, "ledger reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ctx := parse(t, tt.args...)
			assert.Equal(t, tt.command, ctx.Command())
		})
	}
}

func TestCommandDefaults(t *testing.T) {
	cli, _ := parse(t, "simulate")
	assert.Equal(t, 4, cli.Simulate.Tables)
	assert.Equal(t, 1000, cli.Simulate.Rounds)
	assert.InDelta(t, 3.0, cli.Simulate.InsuranceCount, 1e-9)
	assert.Equal(t, "blackjack.hcl", cli.Config)
	assert.Equal(t, []string{".env"}, cli.EnvFile)

	cli, _ = parse(t, "play", "--scenario", "splits", "--seed", "42")
	require.NotNil(t, cli.Play.Seed)
	assert.Equal(t, int64(42), *cli.Play.Seed)
	assert.Equal(t, "blackjack.log", cli.Play.LogFile)
}

func TestPlayScenario(t *testing.T) {
	tests := map[string]game.Scenario{
		"none":                {},
		"insurance":           {Insurance: game.InsuranceScenarioNoBlackjack},
		"insurance-blackjack": {Insurance: game.InsuranceScenarioBlackjack},
		"splits":              {Splits: true},
	}
	for name, want := range tests {
		c := PlayCmd{Scenario: name}
		assert.Equal(t, want, c.scenario(), name)
	}
}

func TestApplyAddr(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, applyAddr(cfg, "0.0.0.0:9090"))
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 9090, cfg.Server.Port)

	require.NoError(t, applyAddr(cfg, ":7000"))
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 7000, cfg.Server.Port)

	assert.Error(t, applyAddr(cfg, "localhost"))
	assert.Error(t, applyAddr(cfg, "localhost:99999"))
}
