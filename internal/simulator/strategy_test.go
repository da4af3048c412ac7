package simulator

import (
	"testing"

	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/game"
	"github.com/stretchr/testify/assert"
)

func handView(cards string) game.HandView {
	cs := blackjack.MustParseCards(cards)
	total := blackjack.HandTotalDetailed(cs)
	return game.HandView{Cards: cs, Total: total.Value, Soft: total.Soft}
}

func TestBasicStrategy(t *testing.T) {
	t.Parallel()

	all := []game.ActionType{game.ActionHit, game.ActionStand, game.ActionDouble, game.ActionSplit, game.ActionSurrender}
	noSurrender := []game.ActionType{game.ActionHit, game.ActionStand, game.ActionDouble, game.ActionSplit}
	hitStand := []game.ActionType{game.ActionHit, game.ActionStand}

	tests := []struct {
		name      string
		hand      string
		up        string
		available []game.ActionType
		want      game.ActionType
	}{
		{"hard 16 surrenders to ten", "Ts 6h", "Th", all, game.ActionSurrender},
		{"hard 16 hits without surrender", "Ts 6h", "Th", noSurrender, game.ActionHit},
		{"hard 16 stands against six", "Ts 6h", "6h", all, game.ActionStand},
		{"eights split against ace", "8s 8h", "Ah", all, game.ActionSplit},
		{"aces split", "As Ah", "6d", all, game.ActionSplit},
		{"tens stand", "Ts Th", "6d", all, game.ActionStand},
		{"fives double as ten", "5s 5h", "9d", all, game.ActionDouble},
		{"nines stand against seven", "9s 9h", "7d", all, game.ActionStand},
		{"nines split against six", "9s 9h", "6d", all, game.ActionSplit},
		{"eleven doubles against ace", "5s 6h", "Ad", all, game.ActionDouble},
		{"soft 18 doubles against three", "As 7h", "3d", all, game.ActionDouble},
		{"soft 18 stands when double is gone", "As 7h", "3d", hitStand, game.ActionStand},
		{"soft 18 stands against seven", "As 7h", "7d", all, game.ActionStand},
		{"soft 18 hits against nine", "As 7h", "9d", all, game.ActionHit},
		{"soft 17 hits against two", "As 6h", "2d", all, game.ActionHit},
		{"twelve hits against three", "Ts 2h", "3d", all, game.ActionHit},
		{"twelve stands against four", "Ts 2h", "4d", all, game.ActionStand},
		{"hard 17 surrenders to ace", "Ts 7h", "Ad", all, game.ActionSurrender},
		{"hard 17 stands against ace without surrender", "Ts 7h", "Ad", noSurrender, game.ActionStand},
		{"three card eleven hits", "2s 4h 5d", "6d", hitStand, game.ActionHit},
		{"pair without split plays the total", "8s 8h", "Th", []game.ActionType{game.ActionHit, game.ActionStand, game.ActionSurrender}, game.ActionSurrender},
		{"soft 20 stands", "As 9h", "6d", all, game.ActionStand},
		{"hard 8 hits", "5s 3h", "6d", all, game.ActionHit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := game.Snapshot{Available: tt.available}
			up := blackjack.MustParseCards(tt.up)[0]
			assert.Equal(t, tt.want, BasicStrategy(snap, handView(tt.hand), up))
		})
	}
}
