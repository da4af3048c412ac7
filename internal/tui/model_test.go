package tui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/count"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	m      *Model
	engine *game.Engine
	msgs   chan tea.Msg
}

// newHarness wires a model to an engine with a $500 bankroll and a $25 bet.
// Stack cards in deal order: player, dealer up, player, dealer hole.
func newHarness(t *testing.T, stack string, opts ...game.Option) *harness {
	t.Helper()

	logger := log.New(io.Discard)
	clock := quartz.NewMock(t)
	decisions := game.NewDecisionQueue(clock, 0, logger)
	bridge := NewBridge(clock, decisions, game.NewEventFormatter(game.FormattingOptions{}), 0)

	msgs := make(chan tea.Msg, 256)
	bridge.Attach(func(msg tea.Msg) { msgs <- msg })

	counter := count.NewCounter(4)
	base := []game.Option{
		game.WithLogger(logger),
		game.WithClock(clock),
		game.WithPacing(game.Pacing{}),
		game.WithBankroll(blackjack.Dollars(500)),
		game.WithBet(blackjack.Dollars(25)),
		game.WithCounter(counter),
	}
	if stack != "" {
		base = append(base, game.WithStackedCards(blackjack.MustParseCards(stack)...))
	}
	e := game.New(randutil.New(42), bridge.Adapter(), append(base, opts...)...)
	e.EventBus().Subscribe(bridge)

	m := NewModel(context.Background(), e, counter, logger)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	return &harness{t: t, m: m, engine: e, msgs: msgs}
}

// drain feeds every queued bridge message to the model
func (h *harness) drain() {
	for {
		select {
		case msg := <-h.msgs:
			h.m.Update(msg)
		default:
			return
		}
	}
}

// waitFor feeds bridge messages until one satisfies match
func (h *harness) waitFor(match func(tea.Msg) bool) {
	h.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-h.msgs:
			h.m.Update(msg)
			if match(msg) {
				return
			}
		case <-timeout:
			h.t.Fatal("timed out waiting for bridge message")
		}
	}
}

func (h *harness) key(k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := h.m.Update(msg)
	return cmd
}

// press sends a key and runs the resulting action to completion
func (h *harness) press(k string) {
	h.t.Helper()
	cmd := h.key(k)
	require.NotNil(h.t, cmd, "key %q produced no command", k)
	h.m.Update(cmd())
	h.drain()
}

func TestModelPlaysARound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "Ts 9h Qd 8c")
	h.press("n")
	assert.Equal(t, game.PhasePlayerActing, h.m.snap.Phase)
	require.Len(t, h.m.snap.Hands, 1)
	assert.Equal(t, 20, h.m.snap.Hands[0].Total)

	h.press("s")
	assert.Equal(t, blackjack.Dollars(525), h.m.snap.Bankroll)
	assert.False(t, h.m.snap.InRound)
	assert.NotEmpty(t, h.m.result)
	assert.Zero(t, h.m.busy)

	var settled bool
	for _, line := range h.m.gameLog {
		if strings.Contains(line, "Round 1 settled") {
			settled = true
		}
	}
	assert.True(t, settled, "expected a settlement line in %v", h.m.gameLog)
}

func TestModelRejectedActionShowsReason(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.press("h")
	assert.Contains(t, h.m.status, "no round")
	assert.Equal(t, blackjack.Dollars(500), h.m.snap.Bankroll)
}

func TestModelAdjustsBet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.press("+")
	assert.Equal(t, blackjack.Dollars(30), h.engine.Snapshot().Bet)
	h.press("-")
	h.press("-")
	assert.Equal(t, blackjack.Dollars(20), h.engine.Snapshot().Bet)
}

func TestModelInsurancePrompt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "Ts 8d",
		game.WithScenario(game.Scenario{Insurance: game.InsuranceScenarioNoBlackjack}))

	start := h.key("n")
	require.NotNil(t, start)
	done := make(chan tea.Msg, 1)
	go func() { done <- start() }()

	h.waitFor(func(msg tea.Msg) bool {
		_, ok := msg.(offerMsg)
		return ok
	})
	require.Equal(t, modeInsurance, h.m.mode)
	assert.Equal(t, blackjack.FromFloat(12.5), h.m.offer.Max)

	h.key("1")
	h.key("0")
	assert.Equal(t, "10", h.m.input.Value())
	h.press("enter")
	assert.Equal(t, modePlay, h.m.mode)

	h.m.Update(<-done)
	h.drain()

	assert.Zero(t, h.m.busy)
	assert.Equal(t, game.PhasePlayerActing, h.m.snap.Phase)
	// $25 wager and $10 insurance, lost to a dealer without blackjack
	assert.Equal(t, blackjack.Dollars(465), h.m.snap.Bankroll)
}

func TestModelFundsPrompt(t *testing.T) {
	t.Parallel()

	t.Run("add and retry", func(t *testing.T) {
		h := newHarness(t, "6s 9h 5d 7c Ts 9c", game.WithBankroll(blackjack.Dollars(30)))
		h.press("n")
		h.press("d")
		require.Equal(t, modeFunds, h.m.mode)
		assert.Equal(t, game.FundsDouble, h.m.funds.Reason)
		assert.Contains(t, h.m.View(), "[a]dd $25.00")

		h.press("a")
		assert.Equal(t, modePlay, h.m.mode)
		// 30 + 25 added, double to 50 and win against a dealer bust
		assert.Equal(t, blackjack.Dollars(105), h.m.snap.Bankroll)
		assert.False(t, h.m.snap.InRound)
	})

	t.Run("continue without wagering", func(t *testing.T) {
		h := newHarness(t, "6s 9h 5d 7c", game.WithBankroll(blackjack.Dollars(30)))
		h.press("n")
		h.press("d")
		require.Equal(t, modeFunds, h.m.mode)

		h.press("c")
		assert.Equal(t, modePlay, h.m.mode)
		assert.True(t, h.m.snap.NoNewBets)
		assert.True(t, h.m.snap.InRound)
	})
}

func TestModelTrainingSidebar(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "Ts 9h Qd 8c")
	h.press("n")
	assert.NotContains(t, h.m.View(), "Running:")

	h.key("t")
	view := h.m.View()
	assert.Contains(t, view, "Running:")
	assert.Contains(t, view, "True:")
	assert.Contains(t, view, "Bankroll: $475.00")
}

func TestModelQuit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	cmd := h.key("q")
	assert.NotNil(t, cmd)
	assert.True(t, h.m.quitting)
	assert.Empty(t, h.m.View())
}

func TestParseInsurance(t *testing.T) {
	t.Parallel()

	offer := game.InsuranceOffer{Max: blackjack.FromFloat(12.5), Step: blackjack.HalfDollar}
	tests := []struct {
		in      string
		want    blackjack.Money
		wantErr bool
	}{
		{"", 0, false},
		{"no", 0, false},
		{"max", blackjack.FromFloat(12.5), false},
		{"10", blackjack.Dollars(10), false},
		{"$7.50", blackjack.FromFloat(7.5), false},
		{"20", 0, true},
		{"lots", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := parseInsurance(tt.in, offer)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
