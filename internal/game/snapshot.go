package game

import (
	"fmt"
	"time"

	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

// Snapshot is a deep, self-contained copy of a session's business state:
// what the store persists and what broadcasts are derived from. Taking
// one never observes a half-applied mutation because it goes through the
// session lock.
type Snapshot struct {
	ID                 string       `json:"id"`
	Status             Status       `json:"status"`
	Players            []Player     `json:"players"`
	Board              Board        `json:"board"`
	Deck               []tiles.Tile `json:"deck"`
	CurrentPlayerIndex int          `json:"currentPlayerIndex"`
	Winner             string       `json:"winner,omitempty"`
	Pause              PauseState   `json:"pause"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// Snapshot returns a consistent deep copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]Player, len(s.players))
	for i, p := range s.players {
		cp := *p
		cp.Hand = append([]tiles.Tile(nil), p.Hand...)
		players[i] = cp
	}
	var deck []tiles.Tile
	if s.deck != nil {
		deck = s.deck.Tiles()
	}
	return Snapshot{
		ID:                 s.id,
		Status:             s.status,
		Players:            players,
		Board:              s.board.clone(),
		Deck:               deck,
		CurrentPlayerIndex: s.current,
		Winner:             s.winner,
		Pause:              s.pause,
		CreatedAt:          s.createdAt,
	}
}

// TileCount sums every tile the snapshot accounts for. 106 once the game
// has started.
func (snap Snapshot) TileCount() int {
	n := len(snap.Deck) + snap.Board.tileCount()
	for _, p := range snap.Players {
		n += len(p.Hand)
	}
	return n
}

// Validate checks structural integrity: tile invariants everywhere, a
// coherent current-player index, and conservation when in progress. The
// store refuses to load anything that fails this.
func (snap Snapshot) Validate() error {
	if snap.ID == "" {
		return fmt.Errorf("game: snapshot missing game id")
	}
	check := func(ts []tiles.Tile) error {
		for _, t := range ts {
			if err := t.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(snap.Deck); err != nil {
		return err
	}
	for _, p := range snap.Players {
		if p.ID == "" {
			return fmt.Errorf("game: snapshot player missing id")
		}
		if err := check(p.Hand); err != nil {
			return err
		}
	}
	for _, set := range snap.Board {
		if err := check(set); err != nil {
			return err
		}
	}
	if len(snap.Players) > 0 {
		if snap.CurrentPlayerIndex < 0 || snap.CurrentPlayerIndex >= len(snap.Players) {
			return fmt.Errorf("game: current player index %d out of range", snap.CurrentPlayerIndex)
		}
	}
	if snap.Status == StatusInProgress && snap.TileCount() != tiles.DeckSize {
		return fmt.Errorf("game: snapshot accounts for %d tiles, want %d", snap.TileCount(), tiles.DeckSize)
	}
	return nil
}

// RestoreSession rebuilds a live session from a validated snapshot.
func RestoreSession(snap Snapshot, hooks Hooks) (*Session, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	deck, err := tiles.Restore(snap.Deck)
	if err != nil {
		return nil, err
	}
	players := make([]*Player, len(snap.Players))
	for i := range snap.Players {
		cp := snap.Players[i]
		cp.Hand = append([]tiles.Tile(nil), snap.Players[i].Hand...)
		players[i] = &cp
	}
	s := &Session{
		id:        snap.ID,
		players:   players,
		deck:      deck,
		board:     snap.Board.clone(),
		status:    snap.Status,
		current:   snap.CurrentPlayerIndex,
		winner:    snap.Winner,
		pause:     snap.Pause,
		createdAt: snap.CreatedAt,
		hooks:     hooks,
	}
	if s.status == StatusInProgress || s.status == StatusPaused {
		s.beginTurnLocked()
	}
	return s, nil
}
