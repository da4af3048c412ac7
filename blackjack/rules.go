package blackjack

// All rule functions are total: empty input yields 0 or false.

// CardValue returns the blackjack value of a card: ace 11, ten-group 10,
// otherwise the pip value.
func CardValue(c Card) int {
	switch {
	case c.Rank == Ace:
		return 11
	case IsTenGroup(c.Rank):
		return 10
	case c.Rank.Valid():
		return int(c.Rank)
	default:
		return 0
	}
}

// IsTenGroup reports whether r is 10, J, Q or K
func IsTenGroup(r Rank) bool {
	return r >= Ten && r <= King
}

// Total is a hand total together with its softness
type Total struct {
	Value int
	// Soft is true when an ace still counts as 11 and the hand has not busted
	Soft bool
}

// HandTotal returns the best total not exceeding 21, or the minimum possible
// total when every ace has been reduced.
func HandTotal(cards []Card) int {
	return HandTotalDetailed(cards).Value
}

// HandTotalDetailed returns the total and whether it is soft. Aces start at
// 11 and are reduced by 10, one at a time, while the hand is over 21.
func HandTotalDetailed(cards []Card) Total {
	total, aces := 0, 0
	for _, c := range cards {
		if c.Rank == Ace {
			aces++
		}
		total += CardValue(c)
	}

	reduced := 0
	for total > 21 && aces > 0 {
		total -= 10
		aces--
		reduced++
	}

	hasAce := aces > 0 || reduced > 0
	return Total{
		Value: total,
		Soft:  reduced == 0 && hasAce && total <= 21,
	}
}

// IsBusted reports whether the hand total is over 21
func IsBusted(cards []Card) bool {
	return HandTotal(cards) > 21
}

// IsBlackjack reports a natural: exactly two cards worth 21 that did not come
// from a split.
func IsBlackjack(cards []Card, fromSplit bool) bool {
	if fromSplit || len(cards) != 2 {
		return false
	}
	return CardValue(cards[0])+CardValue(cards[1]) == 21
}

// CanSplitPair reports split eligibility by value: any two ten-group cards,
// or two cards of identical rank.
func CanSplitPair(a, b Card) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	if IsTenGroup(a.Rank) && IsTenGroup(b.Rank) {
		return true
	}
	return a.Rank == b.Rank
}

// IsAcePair reports whether both cards are aces
func IsAcePair(a, b Card) bool {
	return a.Rank == Ace && b.Rank == Ace
}
