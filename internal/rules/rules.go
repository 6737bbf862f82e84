// Package rules implements set legality for groups and runs, including
// joker substitution, and the scoring used by the initial-play rule.
package rules

import (
	"sort"

	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

const (
	// MinSetSize is the smallest legal set, group or run.
	MinSetSize = 3

	// MaxGroupSize is bounded by the number of colors.
	MaxGroupSize = 4

	// InitialPlayThreshold is the minimum point total of freshly placed
	// tiles in a player's first accepted play.
	InitialPlayThreshold = 30
)

// ValidGroup reports whether ts is a legal group: 3 or 4 tiles of one
// number in pairwise-distinct colors, jokers standing in for colors not
// already present.
func ValidGroup(ts []tiles.Tile) bool {
	if len(ts) < MinSetSize || len(ts) > MaxGroupSize {
		return false
	}

	jokers := 0
	number := 0
	seen := map[tiles.Color]bool{}
	for _, t := range ts {
		if t.Joker {
			jokers++
			continue
		}
		if number == 0 {
			number = t.Number
		} else if t.Number != number {
			return false
		}
		if seen[t.Color] {
			return false
		}
		seen[t.Color] = true
	}

	if jokers == len(ts) {
		return true
	}
	// Each joker must be assignable to a color not already used.
	return jokers <= len(tiles.Colors)-len(seen)
}

// ValidRun reports whether ts is a legal run: 3+ tiles of one color whose
// numbers form a single contiguous ascending sequence once jokers fill
// the gaps. Several windows may fit; any one suffices.
func ValidRun(ts []tiles.Tile) bool {
	if len(ts) < MinSetSize {
		return false
	}

	jokers := 0
	var color tiles.Color
	numbers := make([]int, 0, len(ts))
	for _, t := range ts {
		if t.Joker {
			jokers++
			continue
		}
		if color == "" {
			color = t.Color
		} else if t.Color != color {
			return false
		}
		numbers = append(numbers, t.Number)
	}

	if jokers == len(ts) {
		// All jokers: any window of this length fits.
		return len(ts) <= tiles.MaxNumber
	}

	sort.Ints(numbers)
	for i := 1; i < len(numbers); i++ {
		if numbers[i] == numbers[i-1] {
			return false
		}
	}

	length := len(ts)
	if length > tiles.MaxNumber {
		return false
	}
	// Try every window [base, base+length-1] that stays within 1..13 and
	// covers all the numbered tiles. The jokers exactly fill the window's
	// holes because the window size equals the tile count.
	lo, hi := numbers[0], numbers[len(numbers)-1]
	for base := 1; base+length-1 <= tiles.MaxNumber; base++ {
		if lo >= base && hi <= base+length-1 {
			return true
		}
	}
	return false
}

// ValidSet reports whether ts is a legal group or run.
func ValidSet(ts []tiles.Tile) bool {
	return ValidGroup(ts) || ValidRun(ts)
}

// SetValue scores a legal set, with jokers valued as the number they
// represent in context. Returns 0 for an illegal set.
func SetValue(ts []tiles.Tile) int {
	if !ValidSet(ts) {
		return 0
	}
	if ValidGroup(ts) {
		number := 0
		for _, t := range ts {
			if !t.Joker {
				number = t.Number
				break
			}
		}
		if number == 0 {
			// All jokers: no anchor, value them as the maximum face.
			number = tiles.MaxNumber
		}
		return number * len(ts)
	}
	return runValue(ts)
}

// runValue scores a run by finding a concrete window assignment. When
// several windows fit, the highest-scoring one is used, matching how a
// player would declare joker values.
func runValue(ts []tiles.Tile) int {
	numbers := make([]int, 0, len(ts))
	for _, t := range ts {
		if !t.Joker {
			numbers = append(numbers, t.Number)
		}
	}
	sort.Ints(numbers)

	length := len(ts)
	best := 0
	for base := 1; base+length-1 <= tiles.MaxNumber; base++ {
		top := base + length - 1
		if len(numbers) > 0 && (numbers[0] < base || numbers[len(numbers)-1] > top) {
			continue
		}
		// Sum of the full window: every position is occupied, by a real
		// tile or a joker standing for that position's number.
		sum := length * (base + top) / 2
		if sum > best {
			best = sum
		}
	}
	return best
}

// MeetsInitialThreshold reports whether the newly placed sets of a first
// play total at least 30 points.
func MeetsInitialThreshold(sets [][]tiles.Tile) bool {
	total := 0
	for _, s := range sets {
		total += SetValue(s)
	}
	return total >= InitialPlayThreshold
}
