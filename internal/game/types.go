package game

import (
	"time"

	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting    Status = "WAITING_FOR_PLAYERS"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
)

// PauseReason says why a session is paused.
type PauseReason string

const (
	PauseCurrentPlayerDisconnect PauseReason = "CURRENT_PLAYER_DISCONNECT"
	PauseMultipleDisconnects     PauseReason = "MULTIPLE_DISCONNECTS"
	PauseNetworkInstability      PauseReason = "NETWORK_INSTABILITY"
	PauseAllPlayersDisconnect    PauseReason = "ALL_PLAYERS_DISCONNECT"
	PauseManual                  PauseReason = "MANUAL_PAUSE"
)

// PauseState records an active pause.
type PauseState struct {
	Paused   bool        `json:"isPaused"`
	Reason   PauseReason `json:"pauseReason,omitempty"`
	PausedAt time.Time   `json:"pausedAt,omitempty"`
	PausedBy string      `json:"pausedBy,omitempty"`
}

// Player is a seated participant, human or bot.
type Player struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Hand             []tiles.Tile `json:"hand"`
	HasPlayedInitial bool         `json:"hasPlayedInitial"`
	Score            int          `json:"score"`
	IsBot            bool         `json:"isBot"`
	Abandoned        bool         `json:"abandoned"`
}

// TileSet is one group or run on the board.
type TileSet []tiles.Tile

// Board is the ordered collection of sets in play.
type Board []TileSet

// clone deep-copies the board so snapshots never alias live sets.
func (b Board) clone() Board {
	cp := make(Board, len(b))
	for i, s := range b {
		cp[i] = append(TileSet(nil), s...)
	}
	return cp
}

// tileCount counts every tile on the board.
func (b Board) tileCount() int {
	n := 0
	for _, s := range b {
		n += len(s)
	}
	return n
}

// RejectionKind is the machine-checkable category of a rejected action.
type RejectionKind string

const (
	RejectOutOfTurn        RejectionKind = "out_of_turn"
	RejectNotStarted       RejectionKind = "not_started"
	RejectAlreadyStarted   RejectionKind = "already_started"
	RejectSessionFull      RejectionKind = "session_full"
	RejectInvalidArgument  RejectionKind = "invalid_argument"
	RejectUnknownTile      RejectionKind = "unknown_tile"
	RejectUnknownPlayer    RejectionKind = "unknown_player"
	RejectInvalidSet       RejectionKind = "invalid_set"
	RejectInitialThreshold RejectionKind = "initial_threshold"
	RejectDrawDisabled     RejectionKind = "draw_disabled"
	RejectGamePaused       RejectionKind = "game_paused"
	RejectGameOver         RejectionKind = "game_over"
	RejectBotPoolExhausted RejectionKind = "bot_pool_exhausted"
)

// Rejection is a structured refusal of a player action. It never crosses
// the session boundary as a panic; callers surface Reason to the acting
// player and nothing about the game changes.
type Rejection struct {
	Kind   RejectionKind `json:"kind"`
	Reason string        `json:"reason"`
}

func (r *Rejection) Error() string { return r.Reason }

func reject(kind RejectionKind, reason string) *Rejection {
	return &Rejection{Kind: kind, Reason: reason}
}

// SetTarget addresses where a played set lands: an existing board set
// index, or a new set.
type SetTarget struct {
	New   bool
	Index int
}

// NewSet targets a fresh board set.
func NewSet() SetTarget { return SetTarget{New: true} }

// ExistingSet targets the board set at index i.
func ExistingSet(i int) SetTarget { return SetTarget{Index: i} }
