package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/count"
	"github.com/lox/blackjack/internal/game"
)

type mode int

const (
	modePlay mode = iota
	modeInsurance
	modeFunds
)

const (
	paneLog = iota
	paneInput
)

// Model is the Bubble Tea model for a single player table
type Model struct {
	ctx     context.Context
	engine  *game.Engine
	counter *count.Counter
	logger  *log.Logger

	// UI components
	logViewport viewport.Model
	input       textinput.Model

	// State fed by the bridge
	snap    game.Snapshot
	mode    mode
	offer   game.InsuranceOffer
	funds   game.FundsRequest
	gameLog []string
	status  string
	result  string

	busy        int
	training    bool
	focusedPane int
	quitting    bool

	// Dimensions
	width       int
	height      int
	initialized bool
}

// NewModel creates a model driving engine. The counter is optional and only
// feeds the training display.
func NewModel(ctx context.Context, engine *game.Engine, counter *count.Counter, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "insurance amount, max, or empty to decline"
	ti.CharLimit = 12
	ti.Width = 40
	ti.PromptStyle = lipgloss.NewStyle().Foreground(focusedBorder).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &Model{
		ctx:         ctx,
		engine:      engine,
		counter:     counter,
		logger:      logger.WithPrefix("tui"),
		logViewport: vp,
		input:       ti,
		snap:        engine.Snapshot(),
		focusedPane: paneInput,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// dispatch runs an action off the update loop. START_ROUND can park on an
// insurance decision, which is answered by a second dispatch.
func (m *Model) dispatch(a game.Action) tea.Cmd {
	m.busy++
	return func() tea.Msg {
		res, err := m.engine.Dispatch(m.ctx, a)
		return actionDoneMsg{action: a.Type, res: res, err: err}
	}
}

func (m *Model) run(op string, fn func() (game.Result, error)) tea.Cmd {
	m.busy++
	return func() tea.Msg {
		res, err := fn()
		return actionDoneMsg{action: game.ActionType(op), res: res, err: err}
	}
}

// Update handles messages in the TUI
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		m.snap = msg.snap
		if m.mode == modeInsurance && m.snap.InsuranceOffer == nil && m.snap.Phase != game.PhaseInsurance {
			m.leaveInsurance()
		}

	case dealMsg:
		if msg.deal.Dealer && !msg.deal.FaceUp {
			m.status = "Dealer takes the hole card"
		}

	case holeMsg:
		m.AddLogEntry("Dealer reveals " + renderCard(msg.card))

	case offerMsg:
		m.offer = msg.offer
		m.mode = modeInsurance
		m.input.SetValue("")
		m.input.Focus()
		m.focusedPane = paneInput
		m.status = fmt.Sprintf("Insurance? up to %s in %s steps", msg.offer.Max, msg.offer.Step)

	case insuranceResultMsg:
		if msg.res.Won {
			m.AddLogEntry(SuccessStyle.Render(fmt.Sprintf("Insurance pays %s", msg.res.Payout)))
		} else {
			m.AddLogEntry(WarningStyle.Render(fmt.Sprintf("Insurance lost %s", msg.res.Stake)))
		}

	case fundsMsg:
		m.funds = msg.req
		m.mode = modeFunds
		m.status = fmt.Sprintf("Need %s, have %s", msg.req.Needed, msg.req.Available)

	case resultMsg:
		m.result = msg.msg.Text
		m.AddLogEntry(resultStyle(msg.msg.Delta).Render(msg.msg.Text))
		for _, h := range msg.msg.Hands {
			m.AddLogEntry(fmt.Sprintf("  hand %d: %s %d (%s)", h.Index+1, h.Outcome, h.Total, signedMoney(h.Delta)))
		}

	case settledMsg:
		m.AddLogEntry(InfoStyle.Render(fmt.Sprintf("Round %d settled, bankroll %s", msg.settlement.Round, msg.settlement.BankrollAfter)))

	case logMsg:
		m.AddLogEntry(msg.line)

	case actionDoneMsg:
		m.busy--
		m.handleDone(msg)

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	if m.mode == modeInsurance && m.focusedPane == paneInput {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) handleDone(msg actionDoneMsg) {
	switch {
	case errors.Is(msg.err, game.ErrActionInProgress):
		m.status = "Still dealing..."
	case errors.Is(msg.err, game.ErrGameOver):
		m.status = "Game over"
	case msg.err != nil:
		m.logger.Error("Action failed", "action", msg.action, "error", msg.err)
		m.status = ErrorStyle.Render(msg.err.Error())
	case !msg.res.Accepted && msg.res.Reason != "":
		m.status = WarningStyle.Render(msg.res.Reason)
	default:
		if msg.action != game.ActionInsuranceDecision {
			m.status = ""
		}
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit(), true
	case "tab":
		if m.focusedPane == paneLog {
			m.focusedPane = paneInput
		} else {
			m.focusedPane = paneLog
		}
		return nil, true
	}

	if m.focusedPane == paneLog {
		switch msg.String() {
		case "up", "k":
			m.logViewport.ScrollUp(1)
		case "down", "j":
			m.logViewport.ScrollDown(1)
		case "home", "g":
			m.logViewport.GotoTop()
		case "end", "G":
			m.logViewport.GotoBottom()
		case "q":
			return m.quit(), true
		}
		return nil, true
	}

	switch m.mode {
	case modeInsurance:
		return m.handleInsuranceKey(msg)
	case modeFunds:
		return m.handleFundsKey(msg)
	}

	switch msg.String() {
	case "q":
		return m.quit(), true
	case "n", "enter", " ":
		return m.dispatch(game.Action{Type: game.ActionStartRound}), true
	case "h":
		return m.dispatch(game.Action{Type: game.ActionHit}), true
	case "s":
		return m.dispatch(game.Action{Type: game.ActionStand}), true
	case "d":
		return m.dispatch(game.Action{Type: game.ActionDouble}), true
	case "p":
		return m.dispatch(game.Action{Type: game.ActionSplit}), true
	case "r":
		return m.dispatch(game.Action{Type: game.ActionSurrender}), true
	case "x":
		return m.dispatch(game.Action{Type: game.ActionNewShoe}), true
	case "+", "=":
		return m.run("set-bet", func() (game.Result, error) {
			return m.engine.SetBet(m.snap.Bet + m.snap.Rules.BetUnit)
		}), true
	case "-", "_":
		return m.run("set-bet", func() (game.Result, error) {
			return m.engine.SetBet(m.snap.Bet - m.snap.Rules.BetUnit)
		}), true
	case "t":
		m.ToggleTraining()
		return nil, true
	}
	return nil, false
}

func (m *Model) handleInsuranceKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "enter":
		amount, err := parseInsurance(m.input.Value(), m.offer)
		if err != nil {
			m.status = ErrorStyle.Render(err.Error())
			return nil, true
		}
		m.leaveInsurance()
		return m.dispatch(game.Action{Type: game.ActionInsuranceDecision, Amount: amount}), true
	case "esc":
		m.leaveInsurance()
		return m.dispatch(game.Action{Type: game.ActionInsuranceDecision}), true
	}
	return nil, false
}

func (m *Model) handleFundsKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	req := m.funds
	switch msg.String() {
	case "a":
		m.mode = modePlay
		return m.run("add-funds", func() (game.Result, error) {
			res, err := m.engine.AddFunds(req.Needed)
			if err != nil || !res.Accepted || req.Retry == nil {
				return res, err
			}
			return req.Retry(m.ctx)
		}), true
	case "c", "esc":
		m.mode = modePlay
		return m.run("decline-funds", m.engine.DeclineFunds), true
	case "q":
		return m.quit(), true
	}
	return nil, true
}

func (m *Model) leaveInsurance() {
	m.mode = modePlay
	m.input.Blur()
	m.input.SetValue("")
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	return tea.Sequence(tea.ClearScreen, tea.Quit)
}

// parseInsurance reads an insurance bid in dollars. Empty declines.
func parseInsurance(s string, offer game.InsuranceOffer) (blackjack.Money, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	switch strings.ToLower(s) {
	case "", "0", "n", "no":
		return 0, nil
	case "max", "y", "yes":
		return offer.Max, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid insurance amount %q", s)
	}
	amount := blackjack.FromFloat(f)
	if amount > offer.Max {
		return 0, fmt.Errorf("insurance is capped at %s", offer.Max)
	}
	return amount, nil
}

// ToggleTraining shows or hides the running count
func (m *Model) ToggleTraining() {
	m.training = !m.training
}

// AddLogEntry adds an entry to the game log
func (m *Model) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	table := m.renderTable()
	tableHeight := lipgloss.Height(table)
	tableWidth := max(m.width-2, 1)

	tableStyle := paneStyle.Width(tableWidth)
	if m.focusedPane == paneInput {
		tableStyle = tableStyle.BorderForeground(focusedBorder)
	}
	tablePane := tableStyle.Render(table)

	sidebar := m.renderSidebar()
	sidebarWidth := max(lipgloss.Width(sidebar), 24)
	paneHeight := max(m.height-tableHeight-4, 1)

	sidebarPane := paneStyle.Width(sidebarWidth).Height(paneHeight).Render(sidebar)

	logWidth := max(m.width-sidebarWidth-4, 1)
	m.logViewport.Width = logWidth
	m.logViewport.Height = paneHeight
	if !m.initialized && logWidth > 1 && paneHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := paneStyle.Width(logWidth).Height(paneHeight)
	if m.focusedPane == paneLog {
		logStyle = logStyle.BorderForeground(focusedBorder)
	}
	logPane := logStyle.Render(m.logViewport.View())

	top := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, top, tablePane)
}

func (m *Model) renderTable() string {
	var b strings.Builder
	s := m.snap

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("Round %d  %s", s.Round, s.Phase)))
	b.WriteString("\n\n")

	dealer := renderDealer(s.Dealer)
	b.WriteString(HandInfoStyle.Render("Dealer: ") + dealer)
	b.WriteString("\n")

	for i, h := range s.Hands {
		line := fmt.Sprintf("Hand %d: %s  %s  %s", i+1, renderCards(h.Cards), totalLabel(h.Total, h.Soft), h.Wager)
		if h.Outcome != game.OutcomeNone {
			line += "  " + string(h.Outcome)
		}
		active := (!s.Cycling && i == s.ActiveHand && s.Phase == game.PhasePlayerActing) ||
			(s.Cycling && i == s.Highlight)
		if active {
			line = ActiveHandStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(s.Hands) == 0 {
		b.WriteString(InfoStyle.Render("No hand in play"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	} else if s.LastResult != "" && !s.InRound {
		b.WriteString(s.LastResult)
		b.WriteString("\n")
	}

	switch m.mode {
	case modeInsurance:
		b.WriteString(m.input.View())
	case modeFunds:
		label := "[a]dd " + m.funds.Needed.String()
		if m.funds.AllowContinue {
			label += "  [c]ontinue without wagering"
		} else {
			label += "  [c]ancel"
		}
		b.WriteString(ActionsStyle.Render(label))
	default:
		b.WriteString(m.renderActions())
	}
	return b.String()
}

var actionKeys = []struct {
	action game.ActionType
	label  string
}{
	{game.ActionStartRound, "[n]ew round"},
	{game.ActionHit, "[h]it"},
	{game.ActionStand, "[s]tand"},
	{game.ActionDouble, "[d]ouble"},
	{game.ActionSplit, "s[p]lit"},
	{game.ActionSurrender, "su[r]render"},
	{game.ActionNewShoe, "ne[x]t shoe"},
}

func (m *Model) renderActions() string {
	var labels []string
	for _, k := range actionKeys {
		if m.snap.Can(k.action) {
			labels = append(labels, k.label)
		}
	}
	if !m.snap.InRound {
		labels = append(labels, "[+/-] bet")
	}
	labels = append(labels, "[t]raining", "[q]uit")
	return ActionsStyle.Render(strings.Join(labels, " "))
}

func (m *Model) renderSidebar() string {
	var b strings.Builder
	s := m.snap

	b.WriteString(WarningStyle.Render("Bankroll: " + s.Bankroll.String()))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Bet: %s\n", s.Bet))
	if s.Insurance > 0 {
		b.WriteString(fmt.Sprintf("Insurance: %s\n", s.Insurance))
	}
	b.WriteString(fmt.Sprintf("Shoe %d: %d left\n", s.Shoe.ShoeID, s.Shoe.Remaining))
	if s.Shoe.ShufflePending {
		b.WriteString(WarningStyle.Render("Shuffle pending"))
		b.WriteString("\n")
	}
	if s.NoNewBets {
		b.WriteString(InfoStyle.Render("No new wagers"))
		b.WriteString("\n")
	}

	if m.training && m.counter != nil {
		decks := float64(s.Shoe.Remaining) / 52
		b.WriteString("\n")
		b.WriteString(InfoStyle.Render(fmt.Sprintf("Running: %d", m.counter.RunningCount())))
		b.WriteString("\n")
		b.WriteString(InfoStyle.Render(fmt.Sprintf("True: %.1f", m.counter.TrueCount(decks))))
		b.WriteString("\n")
	}
	if m.busy > 0 {
		b.WriteString("\n")
		b.WriteString(InfoStyle.Render("dealing..."))
	}
	return b.String()
}

func renderDealer(d game.DealerView) string {
	if len(d.Cards) == 0 {
		return InfoStyle.Render("-")
	}
	cards := renderCards(d.Cards)
	if d.HoleHidden {
		return fmt.Sprintf("%s  showing %d", cards, d.Total)
	}
	return cards + "  " + totalLabel(d.Total, d.Soft)
}

func renderCards(cards []blackjack.Card) string {
	formatted := make([]string, 0, len(cards))
	for _, c := range cards {
		formatted = append(formatted, renderCard(c))
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

func renderCard(c blackjack.Card) string {
	switch {
	case c.IsZero():
		return HiddenCardStyle.Render("??")
	case c.Suit.IsRed():
		return RedCardStyle.Render(c.String())
	default:
		return BlackCardStyle.Render(c.String())
	}
}

func totalLabel(total int, soft bool) string {
	if soft && total <= 21 {
		return fmt.Sprintf("soft %d", total)
	}
	return strconv.Itoa(total)
}

func resultStyle(delta blackjack.Money) lipgloss.Style {
	switch {
	case delta > 0:
		return SuccessStyle
	case delta < 0:
		return ErrorStyle
	default:
		return GameLogStyle
	}
}

func signedMoney(m blackjack.Money) string {
	if m > 0 {
		return "+" + m.String()
	}
	return m.String()
}
