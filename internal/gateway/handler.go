package gateway

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/events"
	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
	"github.com/awpearlm/rummikub-backend-sub007/internal/reconnect"
	"github.com/awpearlm/rummikub-backend-sub007/internal/store"
	"github.com/awpearlm/rummikub-backend-sub007/internal/timer"
)

// ClientMessage is every inbound player action. Action decides which
// fields matter.
type ClientMessage struct {
	Action     string             `json:"action"`
	GameID     string             `json:"gameId,omitempty"`
	PlayerID   string             `json:"playerId,omitempty"`
	PlayerName string             `json:"playerName,omitempty"`
	TileIDs    []string           `json:"tileIds,omitempty"`
	TargetSet  *int               `json:"targetSet,omitempty"` // nil targets a new set
	Decision   string             `json:"decision,omitempty"`
	Quality    *reconnect.Quality `json:"quality,omitempty"`
}

// dispatch routes one inbound message. Player identity arrives with the
// first createGame/joinGame/reconnect and binds the connection.
func (h *Hub) dispatch(c *Conn, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendDirect(events.New("", events.TypeRejection,
			events.RejectionPayload{Kind: "malformed", Reason: "unreadable message"}))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("action", msg.Action).
		Str("game_id", msg.GameID).
		Msg("client action")

	switch msg.Action {
	case "createGame":
		if msg.PlayerID == "" || msg.PlayerName == "" {
			c.sendDirect(events.New("", events.TypeRejection,
				events.RejectionPayload{Kind: "invalid_argument", Reason: "playerId and playerName are required"}))
			return
		}
		gc, err := h.svc.CreateGame(msg.PlayerID, msg.PlayerName)
		if err != nil {
			c.sendDirect(rejectionEvent("", err))
			return
		}
		c.bind(gc.Session.ID(), msg.PlayerID)
		c.sendDirect(events.New(gc.Session.ID(), events.TypeGameCreated,
			map[string]string{"gameId": gc.Session.ID(), "playerId": msg.PlayerID}))
		h.svc.syncState(gc.Session.ID())

	case "joinGame":
		if _, err := h.svc.Join(msg.GameID, msg.PlayerID, msg.PlayerName); err != nil {
			c.sendDirect(rejectionEvent(msg.GameID, err))
			return
		}
		c.bind(msg.GameID, msg.PlayerID)
		h.svc.syncState(msg.GameID)

	case "reconnect":
		snap, err := h.svc.HandleReconnect(msg.GameID, msg.PlayerID)
		if err != nil {
			c.sendDirect(rejectionEvent(msg.GameID, err))
			return
		}
		c.bind(msg.GameID, msg.PlayerID)
		if msg.Quality != nil {
			if gc, lookErr := h.svc.Lookup(msg.GameID); lookErr == nil {
				gc.Tracker.MarkConnected(msg.PlayerID, *msg.Quality)
			}
		}
		remaining, _ := h.svc.Timers().Remaining(msg.GameID)
		c.sendDirect(events.New(msg.GameID, events.TypeStateSync,
			BuildView(snap, msg.PlayerID, remaining)))

	case "addBot":
		h.withIdentity(c, func() error { return h.svc.AddBot(c.GameID) })

	case "startGame":
		h.withIdentity(c, func() error { return h.svc.StartGame(c.GameID, c.PlayerID) })

	case "playSet":
		h.withIdentity(c, func() error {
			target := game.NewSet()
			if msg.TargetSet != nil {
				target = game.ExistingSet(*msg.TargetSet)
			}
			return h.svc.PlaySet(c.GameID, c.PlayerID, msg.TileIDs, target)
		})

	case "drawTile":
		h.withIdentity(c, func() error { return h.svc.Draw(c.GameID, c.PlayerID) })

	case "endTurn":
		h.withIdentity(c, func() error { return h.svc.EndTurn(c.GameID, c.PlayerID) })

	case "continuationVote":
		h.withIdentity(c, func() error {
			d, err := timer.ParseDecision(msg.Decision)
			if err != nil {
				return err
			}
			return h.svc.Vote(c.GameID, c.PlayerID, d)
		})

	default:
		c.sendDirect(events.New(c.GameID, events.TypeRejection,
			events.RejectionPayload{Kind: "unknown_action", Reason: "unknown action " + msg.Action}))
	}
}

// withIdentity runs an action for a bound connection and surfaces any
// rejection back to the acting player only.
func (h *Hub) withIdentity(c *Conn, fn func() error) {
	if c.GameID == "" || c.PlayerID == "" {
		c.sendDirect(events.New("", events.TypeRejection,
			events.RejectionPayload{Kind: "not_joined", Reason: "join or create a game first"}))
		return
	}
	if err := fn(); err != nil {
		c.sendDirect(rejectionEvent(c.GameID, err))
	}
}

// bind attaches the identity and joins the game pool.
func (c *Conn) bind(gameID, playerID string) {
	c.GameID = gameID
	c.PlayerID = playerID
	c.hub.register(c)
}

// sendDirect pushes one event to this connection without going through
// the game pools.
func (c *Conn) sendDirect(ev events.Envelope) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// rejectionEvent shapes an error as a rejection payload.
func rejectionEvent(gameID string, err error) events.Envelope {
	payload := events.RejectionPayload{Kind: "error", Reason: err.Error()}
	var rej *game.Rejection
	if errors.As(err, &rej) {
		payload.Kind = string(rej.Kind)
	}
	if errors.Is(err, reconnect.ErrGameMovedOn) || errors.Is(err, store.ErrNotFound) {
		payload.Kind = "redirect_lobby"
		payload.Reason = "the game moved on without you; return to the lobby"
	}
	return events.New(gameID, events.TypeRejection, payload)
}
