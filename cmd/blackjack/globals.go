package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/ledger"
)

// Globals are flags shared by every command
type Globals struct {
	Config   string   `short:"c" default:"blackjack.hcl" help:"Path to HCL configuration file"`
	EnvFile  []string `name:"env-file" help:"Environment files to load before reading the config" default:".env"`
	LogLevel string   `short:"l" help:"Log level: debug, info, warn or error (overrides config)"`
}

// load reads the .env files and the config, applying command line overrides
func (g *Globals) load() (*config.Config, error) {
	if err := config.LoadDotEnv(g.EnvFile...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Server.LogLevel = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           cfg.LogLevel(),
	})
}

// signalContext is cancelled on interrupt signals
func signalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, shutting down gracefully", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// openStore returns the ledger store the config selects: Postgres when a DSN
// is set, otherwise the JSON file. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, name string) (ledger.Store, func(), error) {
	if cfg.Ledger.DSN == "" {
		return ledger.NewFileStore(cfg.Ledger.Path), func() {}, nil
	}
	pg, err := ledger.OpenPostgres(ctx, cfg.Ledger.DSN, name)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
