package game

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/shoe"
)

// EventType represents a game event type with type safety
type EventType string

// EventType constants for round and shoe events
const (
	EventTypeShoeShuffled      EventType = "shoe_shuffled"
	EventTypeShufflePending    EventType = "shuffle_pending"
	EventTypeCardRevealed      EventType = "card_revealed"
	EventTypeInsuranceResolved EventType = "insurance_resolved"
	EventTypeHandResolved      EventType = "hand_resolved"
	EventTypeRoundSettled      EventType = "round_settled"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// GameEvent represents any event that occurs at the table
type GameEvent interface {
	EventType() EventType
	Timestamp() time.Time
}

// ShoeShuffledEvent is published after every shoe rebuild
type ShoeShuffledEvent struct {
	ShoeID    int
	Decks     int
	CutIndex  int
	Policy    shoe.CutPolicy
	Audit     shoe.Audit
	timestamp time.Time
}

func (e ShoeShuffledEvent) EventType() EventType { return EventTypeShoeShuffled }
func (e ShoeShuffledEvent) Timestamp() time.Time { return e.timestamp }

// ShufflePendingEvent is published once when the cut marker comes out
// during a round
type ShufflePendingEvent struct {
	ShoeID    int
	Token     uint64
	timestamp time.Time
}

func (e ShufflePendingEvent) EventType() EventType { return EventTypeShufflePending }
func (e ShufflePendingEvent) Timestamp() time.Time { return e.timestamp }

// CardRevealedEvent is published exactly once per physical card when it
// becomes face up
type CardRevealedEvent struct {
	ID        blackjack.CardID
	Rank      blackjack.Rank
	Card      blackjack.Card
	ShoeID    int
	timestamp time.Time
}

func (e CardRevealedEvent) EventType() EventType { return EventTypeCardRevealed }
func (e CardRevealedEvent) Timestamp() time.Time { return e.timestamp }

// InsuranceResolvedEvent is published when a placed insurance wager settles
type InsuranceResolvedEvent struct {
	Token     uint64
	Result    InsuranceResult
	timestamp time.Time
}

func (e InsuranceResolvedEvent) EventType() EventType { return EventTypeInsuranceResolved }
func (e InsuranceResolvedEvent) Timestamp() time.Time { return e.timestamp }

// HandResolvedEvent is published for every hand at settlement
type HandResolvedEvent struct {
	Token     uint64
	Summary   HandSummary
	Cards     []blackjack.Card
	timestamp time.Time
}

func (e HandResolvedEvent) EventType() EventType { return EventTypeHandResolved }
func (e HandResolvedEvent) Timestamp() time.Time { return e.timestamp }

// RoundSettledEvent is published exactly once per round
type RoundSettledEvent struct {
	Token          uint64
	Round          int
	BankrollBefore blackjack.Money
	BankrollAfter  blackjack.Money
	Delta          blackjack.Money
	DealerCards    []blackjack.Card
	DealerTotal    int
	Hands          []HandSummary
	Insurance      *InsuranceResult
	timestamp      time.Time
}

func (e RoundSettledEvent) EventType() EventType { return EventTypeRoundSettled }
func (e RoundSettledEvent) Timestamp() time.Time { return e.timestamp }

// EventSubscriber can subscribe to game events
type EventSubscriber interface {
	OnEvent(event GameEvent)
}

// EventSubscriberFunc adapts a function to EventSubscriber
type EventSubscriberFunc func(event GameEvent)

// OnEvent calls f
func (f EventSubscriberFunc) OnEvent(event GameEvent) { f(event) }

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber) (unsubscribe func())
	Publish(event GameEvent)
}

// SimpleEventBus is a basic in-memory event bus implementation. Delivery is
// synchronous and in subscription order.
type SimpleEventBus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers []busEntry
}

type busEntry struct {
	id  int
	sub EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.nextID++
	id := bus.nextID
	bus.subscribers = append(bus.subscribers, busEntry{id: id, sub: subscriber})

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		for i, entry := range bus.subscribers {
			if entry.id == id {
				bus.subscribers = append(bus.subscribers[:i:i], bus.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event GameEvent) {
	bus.mu.RLock()
	subs := make([]EventSubscriber, len(bus.subscribers))
	for i, entry := range bus.subscribers {
		subs[i] = entry.sub
	}
	bus.mu.RUnlock()

	for _, subscriber := range subs {
		subscriber.OnEvent(event)
	}
}

// FormattingOptions controls how events are formatted for different contexts
type FormattingOptions struct {
	ShowReveals bool // Include every card reveal (noisy, useful when training)
	Color       bool // ANSI colour for red suits
}

// EventFormatter provides centralized formatting for all game events
type EventFormatter struct {
	opts FormattingOptions
}

// NewEventFormatter creates a new event formatter with the given options
func NewEventFormatter(opts FormattingOptions) *EventFormatter {
	return &EventFormatter{opts: opts}
}

// Format renders any event, returning "" for events the options hide
func (ef *EventFormatter) Format(event GameEvent) string {
	switch ev := event.(type) {
	case ShoeShuffledEvent:
		return ef.FormatShoeShuffled(ev)
	case ShufflePendingEvent:
		return "Cut card reached, shuffle after this round"
	case CardRevealedEvent:
		if !ef.opts.ShowReveals {
			return ""
		}
		return fmt.Sprintf("Revealed %s", ef.formatCard(ev.Card))
	case InsuranceResolvedEvent:
		if ev.Result.Won {
			return fmt.Sprintf("Insurance wins %s", ev.Result.Payout-ev.Result.Stake)
		}
		return fmt.Sprintf("Insurance loses %s", ev.Result.Stake)
	case HandResolvedEvent:
		return ef.FormatHandResolved(ev)
	case RoundSettledEvent:
		return ef.FormatRoundSettled(ev)
	default:
		return fmt.Sprintf("%s event", event.EventType())
	}
}

// FormatShoeShuffled formats a shuffle event into a human-readable string
func (ef *EventFormatter) FormatShoeShuffled(event ShoeShuffledEvent) string {
	placement := fmt.Sprintf("%d%%", event.Policy.PenetrationPercent)
	if event.Policy.RandomPlacement {
		placement = "random"
	}
	line := fmt.Sprintf("*** SHOE %d *** %d decks, cut card at %d (%s)", event.ShoeID, event.Decks, event.CutIndex, placement)
	if !event.Audit.OK {
		line += fmt.Sprintf(" AUDIT FAILED: %s", strings.Join(event.Audit.Issues, "; "))
	}
	return line
}

// FormatHandResolved formats a single hand outcome
func (ef *EventFormatter) FormatHandResolved(event HandResolvedEvent) string {
	s := event.Summary
	return fmt.Sprintf("Hand %d %s: %s (%d) wager %s, %s",
		s.Index+1, s.Outcome, ef.formatCards(event.Cards), s.Total, s.Wager, signed(s.Delta))
}

// FormatRoundSettled formats a round summary
func (ef *EventFormatter) FormatRoundSettled(event RoundSettledEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Round %d settled ===\n", event.Round)
	fmt.Fprintf(&b, "Dealer: %s (%d)\n", ef.formatCards(event.DealerCards), event.DealerTotal)
	for _, h := range event.Hands {
		fmt.Fprintf(&b, "Hand %d: %s %s\n", h.Index+1, h.Outcome, signed(h.Delta))
	}
	if event.Insurance != nil {
		fmt.Fprintf(&b, "Insurance: %s\n", signed(event.Insurance.Payout-event.Insurance.Stake))
	}
	fmt.Fprintf(&b, "Bankroll: %s (%s)", event.BankrollAfter, signed(event.Delta))
	return b.String()
}

func (ef *EventFormatter) formatCards(cards []blackjack.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = ef.formatCard(c)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (ef *EventFormatter) formatCard(c blackjack.Card) string {
	if ef.opts.Color && c.Suit.IsRed() {
		return fmt.Sprintf("\033[31m%s\033[0m", c.String())
	}
	return c.String()
}

func signed(m blackjack.Money) string {
	if m > 0 {
		return "+" + m.String()
	}
	return m.String()
}
