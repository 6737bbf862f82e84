package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

func tile(t *testing.T, c tiles.Color, n int) tiles.Tile {
	t.Helper()
	tl, err := tiles.New(c, n)
	if err != nil {
		t.Fatalf("bad fixture tile: %v", err)
	}
	return tl
}

func joker() tiles.Tile { return tiles.NewJoker() }

func TestValidGroup(t *testing.T) {
	cases := []struct {
		name string
		ts   []tiles.Tile
		want bool
	}{
		{"three colors same number", []tiles.Tile{tile(t, tiles.Red, 7), tile(t, tiles.Blue, 7), tile(t, tiles.Black, 7)}, true},
		{"four colors same number", []tiles.Tile{tile(t, tiles.Red, 7), tile(t, tiles.Blue, 7), tile(t, tiles.Black, 7), tile(t, tiles.Yellow, 7)}, true},
		{"duplicate color", []tiles.Tile{tile(t, tiles.Red, 7), tile(t, tiles.Red, 7), tile(t, tiles.Blue, 7)}, false},
		{"mixed numbers", []tiles.Tile{tile(t, tiles.Red, 7), tile(t, tiles.Blue, 8), tile(t, tiles.Black, 7)}, false},
		{"too small", []tiles.Tile{tile(t, tiles.Red, 7), tile(t, tiles.Blue, 7)}, false},
		{"too large with joker", []tiles.Tile{tile(t, tiles.Red, 7), tile(t, tiles.Blue, 7), tile(t, tiles.Black, 7), tile(t, tiles.Yellow, 7), joker()}, false},
		{"joker fills a color", []tiles.Tile{tile(t, tiles.Red, 13), tile(t, tiles.Blue, 13), joker()}, true},
		{"two jokers one anchor", []tiles.Tile{tile(t, tiles.Red, 13), joker(), joker()}, true},
		{"all jokers", []tiles.Tile{joker(), joker(), joker()}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidGroup(tc.ts))
		})
	}
}

func TestValidRun(t *testing.T) {
	cases := []struct {
		name string
		ts   []tiles.Tile
		want bool
	}{
		{"red 1-2-3", []tiles.Tile{tile(t, tiles.Red, 1), tile(t, tiles.Red, 2), tile(t, tiles.Red, 3)}, true},
		{"red 1-2-4 has a gap", []tiles.Tile{tile(t, tiles.Red, 1), tile(t, tiles.Red, 2), tile(t, tiles.Red, 4)}, false},
		{"mixed colors", []tiles.Tile{tile(t, tiles.Red, 1), tile(t, tiles.Blue, 2), tile(t, tiles.Red, 3)}, false},
		{"duplicate number", []tiles.Tile{tile(t, tiles.Red, 5), tile(t, tiles.Red, 5), tile(t, tiles.Red, 6)}, false},
		{"joker fills interior gap", []tiles.Tile{tile(t, tiles.Red, 1), tile(t, tiles.Red, 2), joker(), tile(t, tiles.Red, 4)}, true},
		{"joker extends an end", []tiles.Tile{tile(t, tiles.Blue, 11), tile(t, tiles.Blue, 12), tile(t, tiles.Blue, 13), joker()}, true},
		{"no window fits", []tiles.Tile{tile(t, tiles.Red, 1), joker(), tile(t, tiles.Red, 13)}, false},
		{"unordered input", []tiles.Tile{tile(t, tiles.Black, 9), tile(t, tiles.Black, 7), tile(t, tiles.Black, 8)}, true},
		{"all jokers", []tiles.Tile{joker(), joker(), joker()}, true},
		{"too small", []tiles.Tile{tile(t, tiles.Red, 1), tile(t, tiles.Red, 2)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidRun(tc.ts))
		})
	}
}

func TestSetValue(t *testing.T) {
	// Group of three 13s scores 39, enough on its own for the opener.
	group := []tiles.Tile{tile(t, tiles.Red, 13), tile(t, tiles.Blue, 13), tile(t, tiles.Yellow, 13)}
	assert.Equal(t, 39, SetValue(group))

	// Joker in a group counts as the shared number.
	jgroup := []tiles.Tile{tile(t, tiles.Red, 10), tile(t, tiles.Blue, 10), joker()}
	assert.Equal(t, 30, SetValue(jgroup))

	run := []tiles.Tile{tile(t, tiles.Red, 1), tile(t, tiles.Red, 2), tile(t, tiles.Red, 3)}
	assert.Equal(t, 6, SetValue(run))

	// Joker on the open end of a run takes the highest fitting window:
	// blue 11-12-13 plus joker must be joker-10 through 13 here.
	jrun := []tiles.Tile{tile(t, tiles.Blue, 11), tile(t, tiles.Blue, 12), tile(t, tiles.Blue, 13), joker()}
	assert.Equal(t, 46, SetValue(jrun))

	// Joker between 5 and 7 can only be 6.
	mid := []tiles.Tile{tile(t, tiles.Black, 5), joker(), tile(t, tiles.Black, 7)}
	assert.Equal(t, 18, SetValue(mid))

	assert.Equal(t, 0, SetValue([]tiles.Tile{tile(t, tiles.Red, 1), tile(t, tiles.Red, 3), tile(t, tiles.Red, 5)}))
}

func TestMeetsInitialThreshold(t *testing.T) {
	low := [][]tiles.Tile{{tile(t, tiles.Red, 1), tile(t, tiles.Red, 2), tile(t, tiles.Red, 3)}}
	assert.False(t, MeetsInitialThreshold(low))

	// Two sets summing across the line: 6 + 24 = 30.
	combo := [][]tiles.Tile{
		{tile(t, tiles.Red, 1), tile(t, tiles.Red, 2), tile(t, tiles.Red, 3)},
		{tile(t, tiles.Blue, 8), tile(t, tiles.Yellow, 8), tile(t, tiles.Black, 8)},
	}
	assert.True(t, MeetsInitialThreshold(combo))

	single := [][]tiles.Tile{{tile(t, tiles.Red, 10), tile(t, tiles.Blue, 10), tile(t, tiles.Yellow, 10)}}
	assert.True(t, MeetsInitialThreshold(single))
}
