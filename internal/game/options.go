package game

import (
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/count"
	"github.com/lox/blackjack/internal/shoe"
)

// Option configures an Engine during creation.
type Option func(*engineConfig)

// engineConfig holds all configuration for creating an engine.
type engineConfig struct {
	logger    *log.Logger
	clock     quartz.Clock
	rules     Rules
	pacing    Pacing
	bankroll  blackjack.Money
	bet       blackjack.Money
	cutPolicy shoe.CutPolicy
	counter   *count.Counter
	bus       EventBus
	scenario  Scenario
	stacked   []blackjack.Card
}

func defaultConfig() engineConfig {
	return engineConfig{
		clock:     quartz.NewReal(),
		rules:     DefaultRules(),
		pacing:    DefaultPacing(),
		bankroll:  blackjack.Dollars(500),
		bet:       blackjack.Dollars(25),
		cutPolicy: shoe.DefaultCutPolicy(),
	}
}

// WithLogger sets the logger. The engine logs under the "engine" prefix.
func WithLogger(logger *log.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithClock sets the clock used for pacing and result cycling. Tests pass a
// quartz mock.
func WithClock(clock quartz.Clock) Option {
	return func(c *engineConfig) {
		c.clock = clock
	}
}

// WithRules sets the table rules.
// Default is DefaultRules().
func WithRules(rules Rules) Option {
	return func(c *engineConfig) {
		c.rules = rules
	}
}

// WithPacing sets the presentation waits. Pacing{} runs rounds without any
// waits, which is what headless hosts and tests want.
func WithPacing(p Pacing) Option {
	return func(c *engineConfig) {
		c.pacing = p
	}
}

// WithBankroll sets the starting bankroll.
// Default is $500.
func WithBankroll(m blackjack.Money) Option {
	return func(c *engineConfig) {
		c.bankroll = m
	}
}

// WithBet sets the initial wager.
// Default is $25.
func WithBet(m blackjack.Money) Option {
	return func(c *engineConfig) {
		c.bet = m
	}
}

// WithCutPolicy sets the cut policy for the first shoe
func WithCutPolicy(p shoe.CutPolicy) Option {
	return func(c *engineConfig) {
		c.cutPolicy = p
	}
}

// WithCounter wires a running count observer. The counter is reset on every
// new shoe and fed every card reveal.
func WithCounter(counter *count.Counter) Option {
	return func(c *engineConfig) {
		c.counter = counter
	}
}

// WithEventBus publishes events on an existing bus instead of a private one
func WithEventBus(bus EventBus) Option {
	return func(c *engineConfig) {
		c.bus = bus
	}
}

// WithScenario forces insurance or split deals
func WithScenario(s Scenario) Option {
	return func(c *engineConfig) {
		c.scenario = s
	}
}

// WithStackedCards makes the next draws extract these cards, in order,
// before falling back to the shuffled shoe.
func WithStackedCards(cards ...blackjack.Card) Option {
	return func(c *engineConfig) {
		c.stacked = append(c.stacked, cards...)
	}
}
