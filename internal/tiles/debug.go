package tiles

import "fmt"

// debugHandSpec is the fixed 15-tile hand used by the deterministic
// dealing path: five ready-made sets, so a demo player can go out
// immediately. Tiles are pulled out of the live deck, never minted, so
// the 106-tile conservation invariant survives.
var debugHandSpec = []struct {
	color  Color
	number int
}{
	{Red, 1}, {Red, 2}, {Red, 3},
	{Blue, 4}, {Blue, 5}, {Blue, 6},
	{Yellow, 7}, {Yellow, 8}, {Yellow, 9},
	{Black, 10}, {Black, 11}, {Black, 12},
	{Red, 13}, {Blue, 13}, {Yellow, 13},
}

// DebugHandSize is the size of the fixed hand dealt by DebugHand.
const DebugHandSize = 15

// DebugHand removes the fixed debug hand from the deck and returns it.
func DebugHand(d *Deck) ([]Tile, error) {
	hand := make([]Tile, 0, DebugHandSize)
	for _, spec := range debugHandSpec {
		t, ok := d.Remove(spec.color, spec.number, false)
		if !ok {
			return nil, fmt.Errorf("tiles: debug tile %s-%d not in deck", spec.color, spec.number)
		}
		hand = append(hand, t)
	}
	return hand, nil
}
