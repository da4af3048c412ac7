package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/server"
)

// ServeCmd runs the table server
type ServeCmd struct {
	Addr      string `help:"Listen address, host:port (overrides config)"`
	LedgerDir string `help:"Directory for per-table ledger files; tables keep history in memory when unset"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		if err := applyAddr(cfg, c.Addr); err != nil {
			return err
		}
	}

	logger := newLogger(os.Stderr, cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	var opts []server.Option
	switch {
	case cfg.Ledger.DSN != "":
		pg, err := ledger.OpenPostgres(ctx, cfg.Ledger.DSN, "server")
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, server.WithStores(func(tableID string) ledger.Store {
			return pg.Named(tableID)
		}))
	case c.LedgerDir != "":
		if err := os.MkdirAll(c.LedgerDir, 0o755); err != nil {
			return fmt.Errorf("creating ledger directory: %w", err)
		}
		opts = append(opts, server.WithStores(func(tableID string) ledger.Store {
			return ledger.NewFileStore(filepath.Join(c.LedgerDir, tableID+".json"))
		}))
	}

	if cfg.Server.AuthURL != "" {
		opts = append(opts, server.WithAuth(auth.NewHTTPValidator(cfg.Server.AuthURL, cfg.Server.AuthSecret)))
	}

	logger.Info("Starting blackjack server",
		"addr", cfg.ServerAddress(),
		"decks", cfg.Table.Decks,
		"surrender", cfg.Table.Surrender,
		"postgres", cfg.Ledger.DSN != "",
		"auth", cfg.Server.AuthURL != "")

	return server.NewServer(cfg, logger, opts...).Start(ctx)
}

func applyAddr(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port in address %q", addr)
	}
	if host != "" {
		cfg.Server.Address = host
	}
	cfg.Server.Port = port
	return nil
}
