package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/count"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/statistics"
	"golang.org/x/sync/errgroup"
)

// maxStepsPerRound bounds player actions in one round
const maxStepsPerRound = 64

// Config holds configuration for running simulations
type Config struct {
	Tables   int
	Rounds   int // Rounds per table
	Seed     int64
	Rules    game.Rules
	Bankroll blackjack.Money
	Bet      blackjack.Money
	// InsuranceCount is the true count at or above which insurance is taken
	InsuranceCount float64
	// Parallel limits concurrently running tables, zero means no limit
	Parallel int
	Timeout  time.Duration
	Logger   *log.Logger
}

// DefaultConfig returns four tables of a thousand rounds at a $25 bet
func DefaultConfig() Config {
	return Config{
		Tables:         4,
		Rounds:         1000,
		Seed:           1,
		Rules:          game.DefaultRules(),
		Bankroll:       blackjack.Dollars(10000),
		Bet:            blackjack.Dollars(25),
		InsuranceCount: 3,
		Timeout:        time.Minute,
	}
}

// TableResult summarises one simulated table
type TableResult struct {
	Table         int             `json:"table"`
	Seed          int64           `json:"seed"`
	Rounds        int             `json:"rounds"`
	FinalBankroll blackjack.Money `json:"finalBankroll"`
	Delta         blackjack.Money `json:"delta"`
	Broke         bool            `json:"broke"`
	Shoes         int             `json:"shoes"`
}

// Report is the outcome of a simulation run
type Report struct {
	Stats  *statistics.Statistics `json:"-"`
	Tables []TableResult          `json:"tables"`
}

// Simulator runs headless blackjack tables
type Simulator struct {
	config Config
	logger *log.Logger
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	if config.Tables <= 0 {
		config.Tables = 1
	}
	if config.Rules.Decks <= 0 {
		config.Rules.Decks = game.DefaultRules().Decks
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Simulator{config: config, logger: logger.WithPrefix("simulator")}
}

// Run plays every table and merges their statistics. Tables are seeded
// Seed, Seed+1, ... so a run is reproducible.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	results := make([]TableResult, s.config.Tables)
	stats := make([]*statistics.Statistics, s.config.Tables)

	g, ctx := errgroup.WithContext(ctx)
	if s.config.Parallel > 0 {
		g.SetLimit(s.config.Parallel)
	}
	for i := range s.config.Tables {
		g.Go(func() error {
			res, st, err := s.playTable(ctx, i, randutil.TableSeed(s.config.Seed, i))
			if err != nil {
				return fmt.Errorf("table %d: %w", i, err)
			}
			results[i] = res
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := &statistics.Statistics{}
	for _, st := range stats {
		total.Merge(st)
	}
	if total.Rounds > 0 {
		if err := total.Validate(); err != nil {
			return nil, fmt.Errorf("statistics validation failed: %w", err)
		}
	}

	s.logger.Info("Simulation complete", "tables", len(results), "rounds", total.Rounds, "mean", total.Mean())
	return &Report{Stats: total, Tables: results}, nil
}

// player answers insurance offers from the running count
type player struct {
	engine    *game.Engine
	counter   *count.Counter
	threshold float64
}

func (p *player) trueCount() float64 {
	decks := float64(p.engine.Snapshot().Shoe.Remaining) / 52
	return p.counter.TrueCount(decks)
}

func (p *player) ChooseInsurance(_ context.Context, offer game.InsuranceOffer) (blackjack.Money, error) {
	if p.trueCount() >= p.threshold {
		return offer.Max, nil
	}
	return 0, nil
}

func (s *Simulator) playTable(ctx context.Context, table int, seed int64) (TableResult, *statistics.Statistics, error) {
	logger := s.logger.With("table", table)
	counter := count.NewCounter(s.config.Rules.Decks)
	p := &player{counter: counter, threshold: s.config.InsuranceCount}

	adapter := game.NopAdapter()
	adapter.Decider = p

	var (
		settled []game.RoundSettledEvent
		shoes   int
	)
	bus := game.NewEventBus()
	bus.Subscribe(game.EventSubscriberFunc(func(ev game.GameEvent) {
		switch ev := ev.(type) {
		case game.RoundSettledEvent:
			settled = append(settled, ev)
		case game.ShoeShuffledEvent:
			shoes++
		}
	}))

	e := game.New(randutil.New(seed), adapter,
		game.WithLogger(logger),
		game.WithRules(s.config.Rules),
		game.WithPacing(game.Pacing{}),
		game.WithBankroll(s.config.Bankroll),
		game.WithBet(s.config.Bet),
		game.WithCounter(counter),
		game.WithEventBus(bus),
	)
	p.engine = e

	stats := &statistics.Statistics{}
	result := TableResult{Table: table, Seed: seed}
	unit := float64(e.Snapshot().Bet)

	for round := 0; round < s.config.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return result, nil, err
		}

		tc := int(math.Round(p.trueCount()))
		before := len(settled)
		doubled, err := s.playRound(ctx, e)
		if errors.Is(err, errBroke) {
			result.Broke = true
			logger.Info("Table is broke", "round", round)
			break
		}
		if err != nil {
			return result, nil, err
		}
		if len(settled) == before {
			return result, nil, fmt.Errorf("round %d did not settle", round+1)
		}

		ev := settled[len(settled)-1]
		rr := statistics.RoundResult{
			NetUnits:  float64(ev.Delta) / unit,
			Seed:      seed,
			Table:     table,
			TrueCount: tc,
			Hands:     len(ev.Hands),
			Doubled:   doubled,
		}
		for _, h := range ev.Hands {
			switch h.Outcome {
			case game.OutcomeBlackjack:
				rr.Blackjack = true
			case game.OutcomeSurrender:
				rr.Surrendered = true
			}
		}
		if ins := ev.Insurance; ins != nil {
			rr.Insured = true
			rr.InsuranceUnits = float64(ins.Payout-ins.Stake) / unit
		}
		stats.Add(rr)
		result.Rounds++
	}

	if _, err := e.EndGame(); err != nil {
		return result, nil, err
	}
	snap := e.Snapshot()
	result.FinalBankroll = snap.Bankroll
	result.Delta = snap.Bankroll - s.config.Bankroll
	result.Shoes = shoes
	return result, stats, nil
}

var errBroke = errors.New("bankroll below minimum bet")

// playRound deals a round and plays every hand by basic strategy. It
// reports whether any hand doubled.
func (s *Simulator) playRound(ctx context.Context, e *game.Engine) (bool, error) {
	res, err := e.Dispatch(ctx, game.Action{Type: game.ActionStartRound})
	if err != nil {
		return false, err
	}
	if !res.Accepted {
		if res.Funds != nil {
			return false, errBroke
		}
		return false, fmt.Errorf("round rejected: %s", res.Reason)
	}

	doubled := false
	for step := 0; ; step++ {
		snap := e.Snapshot()
		if !snap.InRound || snap.Phase != game.PhasePlayerActing {
			return doubled, nil
		}
		if step >= maxStepsPerRound {
			return doubled, fmt.Errorf("round did not finish after %d actions", step)
		}
		hand, ok := snap.ActiveHandView()
		if !ok || len(snap.Dealer.Cards) == 0 {
			return doubled, fmt.Errorf("no active hand in phase %s", snap.Phase)
		}

		action := BasicStrategy(snap, hand, snap.Dealer.Cards[0])
		res, err := e.Dispatch(ctx, game.Action{Type: action})
		if err != nil {
			return doubled, err
		}
		switch {
		case res.Accepted:
			if action == game.ActionDouble {
				doubled = true
			}
		case res.Funds != nil:
			// short of the extra wager: keep playing without it
			if _, err := e.DeclineFunds(); err != nil {
				return doubled, err
			}
		default:
			if _, err := e.Dispatch(ctx, game.Action{Type: game.ActionStand}); err != nil {
				return doubled, err
			}
		}
	}
}

// RunSimulation is a convenience function for running a simulation with basic parameters
func RunSimulation(ctx context.Context, tables, rounds int, seed int64, logger *log.Logger) (*Report, error) {
	config := DefaultConfig()
	config.Tables = tables
	config.Rounds = rounds
	config.Seed = seed
	config.Logger = logger
	return New(config).Run(ctx)
}
