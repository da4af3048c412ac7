package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Globals

	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Play     PlayCmd          `cmd:"" default:"1" help:"Play at a terminal table"`
	Serve    ServeCmd         `cmd:"" help:"Run the HTTP and websocket table server"`
	Simulate SimulateCmd      `cmd:"" help:"Play headless tables by basic strategy"`
	Ledger   LedgerCmd        `cmd:"" help:"Inspect or clear the bankroll ledger"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blackjack"),
		kong.Description("Blackjack table engine with terminal, server and simulation hosts"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
