package shoe

import (
	"fmt"

	"github.com/lox/blackjack/blackjack"
)

// Audit is the result of a shoe composition check
type Audit struct {
	OK     bool     `json:"ok"`
	Issues []string `json:"issues,omitempty"`
}

// Validate checks that cards hold exactly decks copies of every suit and
// rank combination and nothing else.
func Validate(cards []blackjack.Card, decks int) Audit {
	var issues []string

	if expected := 52 * decks; len(cards) != expected {
		issues = append(issues, fmt.Sprintf("total cards %d != expected %d", len(cards), expected))
	}

	type key struct {
		suit blackjack.Suit
		rank blackjack.Rank
	}
	counts := make(map[key]int, 52)
	seen := make(map[blackjack.CardID]bool, len(cards))
	for _, c := range cards {
		if !c.Rank.Valid() || c.Suit > blackjack.Clubs {
			issues = append(issues, fmt.Sprintf("invalid card %+v", c))
			continue
		}
		if c.ID != "" {
			if seen[c.ID] {
				issues = append(issues, fmt.Sprintf("duplicate card id %s", c.ID))
			}
			seen[c.ID] = true
		}
		counts[key{c.Suit, c.Rank}]++
	}

	if len(counts) != 52 {
		issues = append(issues, fmt.Sprintf("distinct suit/rank combos %d != 52", len(counts)))
	}
	for _, suit := range blackjack.Suits {
		for _, rank := range blackjack.Ranks {
			if n := counts[key{suit, rank}]; n != decks {
				issues = append(issues, fmt.Sprintf("count for %s%s = %d (expected %d)", rank, suit.Symbol(), n, decks))
			}
		}
	}

	return Audit{OK: len(issues) == 0, Issues: issues}
}
