// Package config loads table, shoe, pacing, ledger and server settings from
// an HCL file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/shoe"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Config is the complete configuration. Every block is optional in the file
// and filled with defaults after decoding.
type Config struct {
	Table  *TableSettings  `hcl:"table,block"`
	Shoe   *ShoeSettings   `hcl:"shoe,block"`
	Pacing *PacingSettings `hcl:"pacing,block"`
	Ledger *LedgerSettings `hcl:"ledger,block"`
	Server *ServerSettings `hcl:"server,block"`
}

// TableSettings are the house rules and starting money, in dollars
type TableSettings struct {
	Decks            int     `hcl:"decks,optional"`
	HitSoft17        *bool   `hcl:"hit_soft_17,optional"`
	Surrender        bool    `hcl:"surrender,optional"`
	MinimumBet       float64 `hcl:"minimum_bet,optional"`
	BetUnit          float64 `hcl:"bet_unit,optional"`
	DefaultBet       float64 `hcl:"default_bet,optional"`
	StartingBankroll float64 `hcl:"starting_bankroll,optional"`
	MaxSplitHands    int     `hcl:"max_split_hands,optional"`
}

// ShoeSettings control cut card placement
type ShoeSettings struct {
	RandomCut   bool `hcl:"random_cut,optional"`
	Penetration int  `hcl:"penetration,optional"`
}

// PacingSettings are presentation waits. Unset values take the interactive
// defaults; zero disables a wait.
type PacingSettings struct {
	HandAdvanceMs     *int `hcl:"hand_advance_ms,optional"`
	DealerRevealMs    *int `hcl:"dealer_reveal_ms,optional"`
	PostDealMs        *int `hcl:"post_deal_ms,optional"`
	ResultCycleMs     *int `hcl:"result_cycle_ms,optional"`
	InsuranceTimeoutS *int `hcl:"insurance_timeout_s,optional"`
}

// LedgerSettings choose where bankroll history goes. A DSN selects Postgres
// over the JSON file.
type LedgerSettings struct {
	MaxHands int    `hcl:"max_hands,optional"`
	Path     string `hcl:"path,optional"`
	DSN      string `hcl:"dsn,optional"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`

	// AuthURL enables token checks against an external validation endpoint
	AuthURL    string `hcl:"auth_url,optional"`
	AuthSecret string `hcl:"auth_secret,optional"`
}

const defaultInsuranceTimeout = 30

// Default returns the configuration used when no file exists
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads filename, falling back to defaults if it does not exist, then
// applies environment overrides. Call Validate on the result.
func Load(filename string) (*Config, error) {
	c := &Config{}
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			parser := hclparse.NewParser()
			file, diags := parser.ParseHCLFile(filename)
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
			}
			if diags := gohcl.DecodeBody(file.Body, nil, c); diags.HasErrors() {
				return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	c.applyDefaults()
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Table == nil {
		c.Table = &TableSettings{}
	}
	rules := game.DefaultRules()
	t := c.Table
	if t.Decks == 0 {
		t.Decks = rules.Decks
	}
	if t.HitSoft17 == nil {
		h17 := rules.HitSoft17
		t.HitSoft17 = &h17
	}
	if t.MinimumBet == 0 {
		t.MinimumBet = rules.MinimumBet.Float()
	}
	if t.BetUnit == 0 {
		t.BetUnit = rules.BetUnit.Float()
	}
	if t.DefaultBet == 0 {
		t.DefaultBet = 25
	}
	if t.StartingBankroll == 0 {
		t.StartingBankroll = 500
	}
	if t.MaxSplitHands == 0 {
		t.MaxSplitHands = rules.MaxSplitHands
	}

	if c.Shoe == nil {
		c.Shoe = &ShoeSettings{}
	}
	if c.Shoe.Penetration == 0 {
		c.Shoe.Penetration = shoe.DefaultPenetration
	}

	if c.Pacing == nil {
		c.Pacing = &PacingSettings{}
	}
	pacing := game.DefaultPacing()
	p := c.Pacing
	p.HandAdvanceMs = orMillis(p.HandAdvanceMs, pacing.HandAdvance)
	p.DealerRevealMs = orMillis(p.DealerRevealMs, pacing.DealerReveal)
	p.PostDealMs = orMillis(p.PostDealMs, pacing.PostDeal)
	p.ResultCycleMs = orMillis(p.ResultCycleMs, pacing.ResultCycle)
	if p.InsuranceTimeoutS == nil {
		v := defaultInsuranceTimeout
		p.InsuranceTimeoutS = &v
	}

	if c.Ledger == nil {
		c.Ledger = &LedgerSettings{}
	}
	if c.Ledger.MaxHands == 0 {
		c.Ledger.MaxHands = ledger.DefaultMaxHands
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = defaultLedgerPath()
	}

	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
}

func orMillis(v *int, d time.Duration) *int {
	if v != nil {
		return v
	}
	ms := int(d / time.Millisecond)
	return &ms
}

func defaultLedgerPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "blackjack-ledger.json"
	}
	return filepath.Join(dir, "blackjack", "ledger.json")
}

// ApplyEnv overrides settings from BLACKJACK_* variables
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("BLACKJACK_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := getenv("BLACKJACK_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := getenv("BLACKJACK_LEDGER_DSN"); v != "" {
		c.Ledger.DSN = v
	}
	if v := getenv("BLACKJACK_AUTH_URL"); v != "" {
		c.Server.AuthURL = v
	}
	if v := getenv("BLACKJACK_AUTH_SECRET"); v != "" {
		c.Server.AuthSecret = v
	}
	if v := getenv("BLACKJACK_DECKS"); v != "" {
		decks, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: BLACKJACK_DECKS=%q is not a number", ErrInvalid, v)
		}
		c.Table.Decks = decks
	}
	if v := getenv("BLACKJACK_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		if ok {
			n, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("%w: BLACKJACK_ADDR=%q has an invalid port", ErrInvalid, v)
			}
			c.Server.Port = n
		}
		if host != "" {
			c.Server.Address = host
		}
	}
	return nil
}

// Validate checks the settings are playable
func (c *Config) Validate() error {
	t := c.Table
	switch t.Decks {
	case 1, 2, 4, 6, 8:
	default:
		return fmt.Errorf("%w: decks must be 1, 2, 4, 6 or 8, got %d", ErrInvalid, t.Decks)
	}
	if t.MinimumBet <= 0 || t.BetUnit <= 0 {
		return fmt.Errorf("%w: minimum bet and bet unit must be positive", ErrInvalid)
	}
	if t.DefaultBet < t.MinimumBet {
		return fmt.Errorf("%w: default bet %.2f is below the minimum %.2f", ErrInvalid, t.DefaultBet, t.MinimumBet)
	}
	if t.StartingBankroll < 0 {
		return fmt.Errorf("%w: starting bankroll cannot be negative", ErrInvalid)
	}
	if t.MaxSplitHands < 2 || t.MaxSplitHands > 4 {
		return fmt.Errorf("%w: max split hands must be between 2 and 4", ErrInvalid)
	}

	if p := c.Shoe.Penetration; p < shoe.MinPenetration || p > shoe.MaxPenetration {
		return fmt.Errorf("%w: penetration must be between %d and %d", ErrInvalid, shoe.MinPenetration, shoe.MaxPenetration)
	}

	for name, v := range map[string]*int{
		"hand_advance_ms":     c.Pacing.HandAdvanceMs,
		"dealer_reveal_ms":    c.Pacing.DealerRevealMs,
		"post_deal_ms":        c.Pacing.PostDealMs,
		"result_cycle_ms":     c.Pacing.ResultCycleMs,
		"insurance_timeout_s": c.Pacing.InsuranceTimeoutS,
	} {
		if *v < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalid, name)
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalid, c.Server.Port)
	}
	if _, err := log.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.Server.LogLevel)
	}
	return nil
}

// Rules returns the table rules
func (c *Config) Rules() game.Rules {
	return game.Rules{
		Decks:         c.Table.Decks,
		HitSoft17:     *c.Table.HitSoft17,
		Surrender:     c.Table.Surrender,
		MinimumBet:    blackjack.FromFloat(c.Table.MinimumBet),
		BetUnit:       blackjack.FromFloat(c.Table.BetUnit),
		MaxSplitHands: c.Table.MaxSplitHands,
	}
}

// CutPolicy returns the shoe cut policy
func (c *Config) CutPolicy() shoe.CutPolicy {
	return shoe.CutPolicy{
		RandomPlacement:    c.Shoe.RandomCut,
		PenetrationPercent: c.Shoe.Penetration,
	}.Normalize()
}

// GamePacing returns the engine waits
func (c *Config) GamePacing() game.Pacing {
	ms := func(v *int) time.Duration { return time.Duration(*v) * time.Millisecond }
	return game.Pacing{
		PostDeal:     ms(c.Pacing.PostDealMs),
		DealerReveal: ms(c.Pacing.DealerRevealMs),
		HandAdvance:  ms(c.Pacing.HandAdvanceMs),
		ResultCycle:  ms(c.Pacing.ResultCycleMs),
	}
}

// InsuranceTimeout is how long a remote player has to answer insurance
func (c *Config) InsuranceTimeout() time.Duration {
	return time.Duration(*c.Pacing.InsuranceTimeoutS) * time.Second
}

// EngineOptions returns the engine options for a new table
func (c *Config) EngineOptions() []game.Option {
	return []game.Option{
		game.WithRules(c.Rules()),
		game.WithPacing(c.GamePacing()),
		game.WithCutPolicy(c.CutPolicy()),
		game.WithBankroll(blackjack.FromFloat(c.Table.StartingBankroll)),
		game.WithBet(blackjack.FromFloat(c.Table.DefaultBet)),
	}
}

// LogLevel returns the parsed log level, defaulting to info
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// ServerAddress returns the full listen address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
