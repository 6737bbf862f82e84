package gateway

import (
	"time"

	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

// PlayerView is what one player may know about another: a hand count,
// never the tiles.
type PlayerView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	HandCount        int    `json:"handCount"`
	HasPlayedInitial bool   `json:"hasPlayedInitial"`
	Score            int    `json:"score"`
	IsBot            bool   `json:"isBot"`
	Abandoned        bool   `json:"abandoned"`
}

// StateView is the per-player redacted snapshot sent on every sync and
// on reconnection.
type StateView struct {
	GameID           string          `json:"gameId"`
	Status           game.Status     `json:"status"`
	CurrentPlayerID  string          `json:"currentPlayerId,omitempty"`
	Hand             []tiles.Tile    `json:"hand"`
	Players          []PlayerView    `json:"players"`
	Board            game.Board      `json:"board"`
	DeckCount        int             `json:"deckCount"`
	Winner           string          `json:"winner,omitempty"`
	Pause            game.PauseState `json:"pause"`
	TurnRemainingSec int             `json:"turnRemainingSec"`
}

// BuildView redacts a snapshot down to what playerID is allowed to see.
func BuildView(snap game.Snapshot, playerID string, remaining time.Duration) StateView {
	view := StateView{
		GameID:           snap.ID,
		Status:           snap.Status,
		Board:            snap.Board,
		DeckCount:        len(snap.Deck),
		Winner:           snap.Winner,
		Pause:            snap.Pause,
		TurnRemainingSec: int(remaining.Seconds()),
	}
	if snap.Status != game.StatusWaiting && len(snap.Players) > 0 {
		view.CurrentPlayerID = snap.Players[snap.CurrentPlayerIndex].ID
	}
	for _, p := range snap.Players {
		if p.ID == playerID {
			view.Hand = p.Hand
		}
		view.Players = append(view.Players, PlayerView{
			ID:               p.ID,
			Name:             p.Name,
			HandCount:        len(p.Hand),
			HasPlayedInitial: p.HasPlayedInitial,
			Score:            p.Score,
			IsBot:            p.IsBot,
			Abandoned:        p.Abandoned,
		})
	}
	return view
}
