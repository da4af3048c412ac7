package game

import "errors"

var (
	// ErrMissingCapability is returned before any state change when the
	// adapter lacks a capability the action needs.
	ErrMissingCapability = errors.New("missing adapter capability")

	// ErrActionInProgress is returned when an action is dispatched while
	// another one is still running.
	ErrActionInProgress = errors.New("another action is in progress")

	// ErrUnknownAction is returned for action types outside the fixed set
	ErrUnknownAction = errors.New("unknown action type")

	// ErrGameOver is returned for every action after EndGame
	ErrGameOver = errors.New("game over")

	// ErrNoPendingDecision is returned by DecisionQueue.Resolve when nothing
	// is waiting on a decision.
	ErrNoPendingDecision = errors.New("no pending decision")
)
