package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/count"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/tui"
	"github.com/muesli/termenv"
	"golang.org/x/sync/errgroup"
)

// PlayCmd runs a single player table in the terminal
type PlayCmd struct {
	Seed      *int64        `help:"Deterministic shoe seed (optional)"`
	LogFile   string        `default:"blackjack.log" help:"File to write logs to while the table is on screen"`
	DealDelay time.Duration `default:"120ms" help:"Card deal animation delay"`
	Scenario  string        `enum:"none,insurance,insurance-blackjack,splits" default:"none" help:"Force deals for practice (none, insurance, insurance-blackjack, splits)"`
	NoColor   bool          `help:"Disable colour output"`
	Training  bool          `help:"Start with the running count shown"`
}

func (c *PlayCmd) scenario() game.Scenario {
	switch c.Scenario {
	case "insurance":
		return game.Scenario{Insurance: game.InsuranceScenarioNoBlackjack}
	case "insurance-blackjack":
		return game.Scenario{Insurance: game.InsuranceScenarioBlackjack}
	case "splits":
		return game.Scenario{Splits: true}
	default:
		return game.Scenario{}
	}
}

func (c *PlayCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			log.Error("Failed to close log file", "error", err)
		}
	}()
	logger := newLogger(logFile, cfg)

	if c.NoColor || termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	color := lipgloss.ColorProfile() != termenv.Ascii

	ctx, cancel := signalContext(logger)
	defer cancel()

	seed := randutil.FreshSeed()
	if c.Seed != nil {
		seed = *c.Seed
	}
	logger.Info("Starting table", "seed", seed, "decks", cfg.Table.Decks)

	store, closeStore, err := openStore(ctx, cfg, "local")
	if err != nil {
		return err
	}
	defer closeStore()

	clock := quartz.NewReal()
	decisions := game.NewDecisionQueue(clock, 0, logger)
	bridge := tui.NewBridge(clock, decisions,
		game.NewEventFormatter(game.FormattingOptions{Color: color}), c.DealDelay)
	counter := count.NewCounter(cfg.Table.Decks)
	recorder := ledger.NewRecorder(ledger.New(cfg.Ledger.MaxHands), store, clock, logger)

	bus := game.NewEventBus()
	bus.Subscribe(bridge)
	bus.Subscribe(recorder)
	bus.Subscribe(game.LogEvents(logger, game.NewEventFormatter(game.FormattingOptions{})))

	opts := append(cfg.EngineOptions(),
		game.WithLogger(logger),
		game.WithClock(clock),
		game.WithEventBus(bus),
		game.WithCounter(counter),
		game.WithScenario(c.scenario()),
	)
	engine := game.New(randutil.New(seed), bridge.Adapter(), opts...)
	if err := recorder.Restore(ctx, engine); err != nil {
		logger.Warn("Failed to restore ledger", "error", err)
	}

	model := tui.NewModel(ctx, engine, counter, logger)
	if c.Training {
		model.ToggleTraining()
	}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(program.Send)

	recCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	var group errgroup.Group
	group.Go(func() error { return recorder.Run(recCtx) })

	_, runErr := program.Run()
	bridge.Attach(nil)
	cancel()
	if _, err := engine.EndGame(); err != nil {
		logger.Warn("Failed to end game", "error", err)
	}
	stopRecorder()
	if err := group.Wait(); err != nil {
		logger.Error("Failed to save ledger", "error", err)
	}

	snap := engine.Snapshot()
	fmt.Printf("Played %d rounds, bankroll %s\n", snap.Round, snap.Bankroll)
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}
