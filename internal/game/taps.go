package game

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/count"
)

// CountTap feeds card reveals into a running count and resets it whenever
// a new shoe is built.
func CountTap(c *count.Counter) EventSubscriber {
	return EventSubscriberFunc(func(event GameEvent) {
		switch ev := event.(type) {
		case ShoeShuffledEvent:
			c.Reset(ev.Decks)
		case CardRevealedEvent:
			c.Observe(ev.ID, ev.Rank)
		}
	})
}

// LogEvents writes formatted events to logger at info level
func LogEvents(logger *log.Logger, formatter *EventFormatter) EventSubscriber {
	return EventSubscriberFunc(func(event GameEvent) {
		line := formatter.Format(event)
		if line == "" {
			return
		}
		for _, l := range strings.Split(line, "\n") {
			logger.Info(l, "event", event.EventType())
		}
	})
}
