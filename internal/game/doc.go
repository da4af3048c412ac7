// Package game implements the blackjack round engine for a single table.
//
// The main type is Engine, which owns the shoe and the bankroll and drives
// a round from the deal through insurance, player actions and dealer play
// to settlement. Hosts provide an Adapter with the capabilities the engine
// needs and drive it with Dispatch.
//
// # Basic Usage
//
//	rng := randutil.New(42)
//	e := game.New(rng, game.NopAdapter(), game.WithPacing(game.Pacing{}))
//	res, err := e.Dispatch(ctx, game.Action{Type: game.ActionStartRound})
//	if err == nil && res.Accepted && !res.RoundOver {
//	    res, err = e.Dispatch(ctx, game.Action{Type: game.ActionStand})
//	}
//	snap := e.Snapshot()
//
// # Deterministic Testing
//
// Shuffles come from the injected math/rand/v2 generator, usually built with
// randutil.New. WithStackedCards forces the next draws, WithScenario forces
// insurance or pair deals, and WithClock accepts a quartz mock so pacing and
// result cycling can be stepped.
//
// # Concurrency
//
// Actions are serialised: a Dispatch issued while another action is running
// fails with ErrActionInProgress. The Renderer is called inline while the
// engine holds its state lock; Notifier calls and Subscribe listeners run
// after the action has released it. Insurance decisions for a DecisionQueue
// are delivered through Dispatch without taking the action lock.
//
// Events (shuffles, card reveals, settlements) are published on an
// EventBus. CountTap wires a running count to the bus.
package game
