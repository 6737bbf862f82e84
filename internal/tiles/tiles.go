package tiles

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// Color is one of the four tile colors.
type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Yellow Color = "yellow"
	Black  Color = "black"
)

// Colors lists every color in a fixed order.
var Colors = []Color{Red, Blue, Yellow, Black}

// Valid reports whether c is one of the four known colors.
func (c Color) Valid() bool {
	switch c {
	case Red, Blue, Yellow, Black:
		return true
	}
	return false
}

const (
	// MinNumber and MaxNumber bound the face value of a numbered tile.
	MinNumber = 1
	MaxNumber = 13

	// DeckSize is the invariant total: 2 copies of each (color, number)
	// pair plus 2 jokers.
	DeckSize = 106

	// JokerCount is the number of jokers in a full deck.
	JokerCount = 2

	// HandSize is the number of tiles dealt to each player at game start.
	HandSize = 14
)

// Tile is the canonical tile shape. A joker carries no color and no
// number; a numbered tile always carries both. The constructors are the
// only way to build one, so the invariant holds everywhere a Tile exists.
type Tile struct {
	ID     uuid.UUID `json:"id"`
	Color  Color     `json:"color,omitempty"`
	Number int       `json:"number,omitempty"`
	Joker  bool      `json:"isJoker"`
}

// New creates a numbered tile.
func New(color Color, number int) (Tile, error) {
	if !color.Valid() {
		return Tile{}, fmt.Errorf("tiles: unknown color %q", color)
	}
	if number < MinNumber || number > MaxNumber {
		return Tile{}, fmt.Errorf("tiles: number %d out of range [%d,%d]", number, MinNumber, MaxNumber)
	}
	return Tile{ID: uuid.New(), Color: color, Number: number}, nil
}

// NewJoker creates a joker tile.
func NewJoker() Tile {
	return Tile{ID: uuid.New(), Joker: true}
}

// Validate checks the joker invariant and value ranges. It is re-run at
// every deserialization boundary so a tile that came off the wire or out
// of the store is as trustworthy as one built by a constructor.
func (t Tile) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("tiles: missing tile id")
	}
	if t.Joker {
		if t.Color != "" || t.Number != 0 {
			return fmt.Errorf("tiles: joker %s carries color/number", t.ID)
		}
		return nil
	}
	if !t.Color.Valid() {
		return fmt.Errorf("tiles: tile %s has unknown color %q", t.ID, t.Color)
	}
	if t.Number < MinNumber || t.Number > MaxNumber {
		return fmt.Errorf("tiles: tile %s number %d out of range", t.ID, t.Number)
	}
	return nil
}

// UnmarshalJSON enforces Validate on decode.
func (t *Tile) UnmarshalJSON(data []byte) error {
	type alias Tile
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	tile := Tile(a)
	if err := tile.Validate(); err != nil {
		return err
	}
	*t = tile
	return nil
}

func (t Tile) String() string {
	if t.Joker {
		return "joker"
	}
	return fmt.Sprintf("%s-%d", t.Color, t.Number)
}

// Deck is an ordered pile of tiles. Draw pops from the end.
type Deck struct {
	tiles []Tile
}

// NewDeck builds the full 106-tile deck shuffled with the given source.
// Pass nil to use the default global source.
func NewDeck(rng *rand.Rand) *Deck {
	tiles := make([]Tile, 0, DeckSize)
	for copies := 0; copies < 2; copies++ {
		for _, c := range Colors {
			for n := MinNumber; n <= MaxNumber; n++ {
				t, _ := New(c, n)
				tiles = append(tiles, t)
			}
		}
	}
	for i := 0; i < JokerCount; i++ {
		tiles = append(tiles, NewJoker())
	}

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(tiles), func(i, j int) {
		tiles[i], tiles[j] = tiles[j], tiles[i]
	})
	return &Deck{tiles: tiles}
}

// ErrDeckEmpty is returned by Draw when no tiles remain. Running out of
// tiles ends the drawing player's turn; it is not a fault.
var ErrDeckEmpty = fmt.Errorf("tiles: deck is empty")

// Draw pops one tile from the end of the deck.
func (d *Deck) Draw() (Tile, error) {
	if len(d.tiles) == 0 {
		return Tile{}, ErrDeckEmpty
	}
	t := d.tiles[len(d.tiles)-1]
	d.tiles = d.tiles[:len(d.tiles)-1]
	return t, nil
}

// DrawN pops n tiles, or fewer if the deck runs out.
func (d *Deck) DrawN(n int) []Tile {
	if n > len(d.tiles) {
		n = len(d.tiles)
	}
	out := make([]Tile, n)
	for i := 0; i < n; i++ {
		out[i], _ = d.Draw()
	}
	return out
}

// Len returns the number of tiles remaining.
func (d *Deck) Len() int { return len(d.tiles) }

// Remove extracts the first tile matching color/number (or a joker when
// joker is true) from anywhere in the deck. Used by the debug-hand path
// so fixed hands never duplicate tiles still in the deck.
func (d *Deck) Remove(color Color, number int, joker bool) (Tile, bool) {
	for i, t := range d.tiles {
		if joker && t.Joker || !joker && !t.Joker && t.Color == color && t.Number == number {
			d.tiles = append(d.tiles[:i], d.tiles[i+1:]...)
			return t, true
		}
	}
	return Tile{}, false
}

// Tiles returns a copy of the remaining tiles, for snapshots.
func (d *Deck) Tiles() []Tile {
	out := make([]Tile, len(d.tiles))
	copy(out, d.tiles)
	return out
}

// Restore replaces the deck contents, validating every tile. Used when
// loading a persisted game.
func Restore(ts []Tile) (*Deck, error) {
	for _, t := range ts {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	cp := make([]Tile, len(ts))
	copy(cp, ts)
	return &Deck{tiles: cp}, nil
}
