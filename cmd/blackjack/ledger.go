package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lox/blackjack/internal/ledger"
)

// LedgerCmd inspects the persisted bankroll history
type LedgerCmd struct {
	Show  LedgerShowCmd  `cmd:"" default:"1" help:"Print the bankroll history"`
	Reset LedgerResetCmd `cmd:"" help:"Delete the bankroll history"`
}

type LedgerShowCmd struct {
	Table string `default:"local" help:"Ledger name when using Postgres"`
	Last  int    `short:"n" default:"20" help:"Number of recent entries to print (0 = all)"`
	JSON  bool   `help:"Print the graph series as JSON"`
}

func (c *LedgerShowCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, c.Table)
	if err != nil {
		return err
	}
	defer closeStore()

	save, err := store.Load(ctx)
	if errors.Is(err, ledger.ErrNotFound) {
		fmt.Println("No ledger saved yet")
		return nil
	}
	if err != nil {
		return err
	}

	l := ledger.New(cfg.Ledger.MaxHands)
	if err := l.Restore(save); err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(l.Series())
	}

	if bankroll, ok := l.Bankroll(); ok {
		fmt.Printf("Bankroll: %s\n", bankroll)
	}
	fmt.Printf("Hands played: %d\n", l.HandCounter())
	if save.SavedAt > 0 {
		fmt.Printf("Saved: %s\n", time.UnixMilli(save.SavedAt).Format(time.DateTime))
	}

	entries := l.Entries()
	if c.Last > 0 && len(entries) > c.Last {
		entries = entries[len(entries)-c.Last:]
	}
	for _, e := range entries {
		fmt.Printf("  #%-6d %s\n", e.Index, e.BankrollAfter)
	}
	return nil
}

type LedgerResetCmd struct {
	Table string `default:"local" help:"Ledger name when using Postgres"`
}

func (c *LedgerResetCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, c.Table)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Reset(ctx); err != nil {
		return err
	}
	logger.Info("Ledger reset", "table", c.Table)
	return nil
}
