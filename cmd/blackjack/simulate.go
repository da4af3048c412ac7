package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/simulator"
)

// SimulateCmd plays headless tables by basic strategy
type SimulateCmd struct {
	Tables         int           `short:"t" default:"4" help:"Number of tables to play"`
	Rounds         int           `short:"r" default:"1000" help:"Rounds per table"`
	Seed           int64         `short:"s" default:"0" help:"Base seed, tables use seed, seed+1, ... (0 = time based)"`
	Parallel       int           `short:"p" default:"0" help:"Tables to run at once (0 = all)"`
	InsuranceCount float64       `default:"3" help:"True count at which the player takes full insurance"`
	Bankroll       float64       `default:"10000" help:"Starting bankroll per table in dollars"`
	Bet            float64       `help:"Flat bet in dollars (default from config)"`
	Timeout        time.Duration `default:"5m" help:"Abort the run after this long"`
	JSON           bool          `help:"Print results as JSON"`
}

type simulateSummary struct {
	Rounds         int                     `json:"rounds"`
	Mean           float64                 `json:"mean"`
	StdDev         float64                 `json:"stdDev"`
	CI95           [2]float64              `json:"ci95"`
	Wins           int                     `json:"wins"`
	Losses         int                     `json:"losses"`
	Pushes         int                     `json:"pushes"`
	Blackjacks     int                     `json:"blackjacks"`
	InsuranceUnits float64                 `json:"insuranceUnits"`
	Tables         []simulator.TableResult `json:"tables"`
}

func (c *SimulateCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	bet := blackjack.FromFloat(cfg.Table.DefaultBet)
	if c.Bet > 0 {
		bet = blackjack.FromFloat(c.Bet)
	}

	config := simulator.Config{
		Tables:         c.Tables,
		Rounds:         c.Rounds,
		Seed:           seed,
		Rules:          cfg.Rules(),
		Bankroll:       blackjack.FromFloat(c.Bankroll),
		Bet:            bet,
		InsuranceCount: c.InsuranceCount,
		Parallel:       c.Parallel,
		Timeout:        c.Timeout,
		Logger:         logger,
	}
	logger.Info("Starting simulation", "tables", c.Tables, "rounds", c.Rounds, "seed", seed, "bet", bet)

	report, err := simulator.New(config).Run(ctx)
	if err != nil {
		return err
	}

	if !c.JSON {
		simulator.WriteSummary(os.Stdout, report)
		return nil
	}

	stats := report.Stats
	low, high := stats.ConfidenceInterval95()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(simulateSummary{
		Rounds:         stats.Rounds,
		Mean:           stats.Mean(),
		StdDev:         stats.StdDev(),
		CI95:           [2]float64{low, high},
		Wins:           stats.Wins,
		Losses:         stats.Losses,
		Pushes:         stats.Pushes,
		Blackjacks:     stats.Blackjacks,
		InsuranceUnits: stats.InsuranceUnits,
		Tables:         report.Tables,
	})
}
