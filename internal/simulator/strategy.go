package simulator

import (
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/game"
)

// move is a basic strategy table entry
type move int

const (
	hit move = iota
	stand
	doubleOrHit
	doubleOrStand
	split
	surrenderOrHit
	surrenderOrStand
)

// BasicStrategy picks the multi-deck, dealer-hits-soft-17 basic strategy
// action for hand against the dealer upcard. Only actions the snapshot
// lists as available are returned.
func BasicStrategy(snap game.Snapshot, hand game.HandView, up blackjack.Card) game.ActionType {
	upValue := blackjack.CardValue(up)
	two := len(hand.Cards) == 2

	m := hardMove(hand.Total, upValue)
	switch {
	case two && snap.Can(game.ActionSplit) && blackjack.CanSplitPair(hand.Cards[0], hand.Cards[1]):
		if pm, ok := pairMove(hand.Cards[0], upValue); ok {
			m = pm
		} else if hand.Soft {
			m = softMove(hand.Total, upValue)
		}
	case hand.Soft:
		m = softMove(hand.Total, upValue)
	}

	return resolve(m, snap)
}

func resolve(m move, snap game.Snapshot) game.ActionType {
	switch m {
	case split:
		return game.ActionSplit
	case doubleOrHit:
		if snap.Can(game.ActionDouble) {
			return game.ActionDouble
		}
		return game.ActionHit
	case doubleOrStand:
		if snap.Can(game.ActionDouble) {
			return game.ActionDouble
		}
		return game.ActionStand
	case surrenderOrHit:
		if snap.Can(game.ActionSurrender) {
			return game.ActionSurrender
		}
		return game.ActionHit
	case surrenderOrStand:
		if snap.Can(game.ActionSurrender) {
			return game.ActionSurrender
		}
		return game.ActionStand
	case stand:
		return game.ActionStand
	default:
		return game.ActionHit
	}
}

// pairMove returns the split decision for a pair, or false when the pair
// should be played as a total
func pairMove(c blackjack.Card, up int) (move, bool) {
	switch v := blackjack.CardValue(c); v {
	case 11, 8:
		return split, true
	case 9:
		if up == 7 || up >= 10 {
			return stand, true
		}
		return split, true
	case 7, 3, 2:
		if up <= 7 {
			return split, true
		}
	case 6:
		if up <= 6 {
			return split, true
		}
	case 4:
		if up == 5 || up == 6 {
			return split, true
		}
	}
	return 0, false
}

func softMove(total, up int) move {
	switch {
	case total >= 20:
		return stand
	case total == 19:
		if up == 6 {
			return doubleOrStand
		}
		return stand
	case total == 18:
		switch {
		case up <= 6:
			return doubleOrStand
		case up <= 8:
			return stand
		default:
			return hit
		}
	case total == 17:
		if up >= 3 && up <= 6 {
			return doubleOrHit
		}
	case total >= 15:
		if up >= 4 && up <= 6 {
			return doubleOrHit
		}
	default:
		if up == 5 || up == 6 {
			return doubleOrHit
		}
	}
	return hit
}

func hardMove(total, up int) move {
	switch {
	case total >= 17:
		if total == 17 && up == 11 {
			return surrenderOrStand
		}
		return stand
	case total == 16:
		if up >= 9 {
			return surrenderOrHit
		}
		if up <= 6 {
			return stand
		}
	case total == 15:
		if up >= 10 {
			return surrenderOrHit
		}
		if up <= 6 {
			return stand
		}
	case total >= 13:
		if up <= 6 {
			return stand
		}
	case total == 12:
		if up >= 4 && up <= 6 {
			return stand
		}
	case total == 11:
		return doubleOrHit
	case total == 10:
		if up <= 9 {
			return doubleOrHit
		}
	case total == 9:
		if up >= 3 && up <= 6 {
			return doubleOrHit
		}
	}
	return hit
}
