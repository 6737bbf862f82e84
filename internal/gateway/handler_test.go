package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awpearlm/rummikub-backend-sub007/internal/events"
	"github.com/awpearlm/rummikub-backend-sub007/internal/reconnect"
	"github.com/awpearlm/rummikub-backend-sub007/internal/store"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(DefaultHubConfig())
	svc := NewService(Config{
		TurnDuration: time.Minute,
		Reconnect:    reconnect.DefaultConfig(),
	}, clockwork.NewFakeClock(), store.NewMemoryStore(), hub)
	hub.SetService(svc)
	return hub
}

// testConn fabricates a connection whose direct replies land on the
// send channel; no socket behind it.
func testConn(hub *Hub) *Conn {
	return &Conn{ID: "test-conn", send: make(chan []byte, 64), hub: hub}
}

func readReply(t *testing.T, c *Conn) events.Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var ev events.Envelope
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no reply on connection")
		return events.Envelope{}
	}
}

func rejectionOf(t *testing.T, ev events.Envelope) events.RejectionPayload {
	t.Helper()
	require.Equal(t, events.TypeRejection, ev.Type)
	var payload events.RejectionPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	return payload
}

func send(t *testing.T, hub *Hub, c *Conn, msg ClientMessage) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	hub.dispatch(c, raw)
}

func TestDispatchCreateGame(t *testing.T) {
	hub := newTestHub(t)
	c := testConn(hub)

	send(t, hub, c, ClientMessage{Action: "createGame", PlayerID: "p1", PlayerName: "Alice"})

	ev := readReply(t, c)
	assert.Equal(t, events.TypeGameCreated, ev.Type)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.NotEmpty(t, payload["gameId"])
	assert.Equal(t, "p1", payload["playerId"])

	assert.Equal(t, payload["gameId"], c.GameID)
	assert.Equal(t, "p1", c.PlayerID)
	assert.Equal(t, 1, hub.Stats()[c.GameID])
}

func TestDispatchCreateGameMissingIdentity(t *testing.T) {
	hub := newTestHub(t)
	c := testConn(hub)

	send(t, hub, c, ClientMessage{Action: "createGame"})
	payload := rejectionOf(t, readReply(t, c))
	assert.Equal(t, "invalid_argument", payload.Kind)
}

func TestDispatchMalformedMessage(t *testing.T) {
	hub := newTestHub(t)
	c := testConn(hub)

	hub.dispatch(c, []byte("{not json"))
	payload := rejectionOf(t, readReply(t, c))
	assert.Equal(t, "malformed", payload.Kind)
}

func TestDispatchUnboundAction(t *testing.T) {
	hub := newTestHub(t)
	c := testConn(hub)

	send(t, hub, c, ClientMessage{Action: "endTurn"})
	payload := rejectionOf(t, readReply(t, c))
	assert.Equal(t, "not_joined", payload.Kind)
}

func TestDispatchUnknownAction(t *testing.T) {
	hub := newTestHub(t)
	c := testConn(hub)

	send(t, hub, c, ClientMessage{Action: "castleTiles"})
	payload := rejectionOf(t, readReply(t, c))
	assert.Equal(t, "unknown_action", payload.Kind)
}

func TestDispatchFullGameFlow(t *testing.T) {
	hub := newTestHub(t)
	c1 := testConn(hub)
	c2 := testConn(hub)

	send(t, hub, c1, ClientMessage{Action: "createGame", PlayerID: "p1", PlayerName: "Alice"})
	created := readReply(t, c1)
	require.Equal(t, events.TypeGameCreated, created.Type)
	gameID := c1.GameID

	send(t, hub, c2, ClientMessage{Action: "joinGame", GameID: gameID, PlayerID: "p2", PlayerName: "Bob"})
	assert.Equal(t, gameID, c2.GameID)
	assert.Equal(t, 2, hub.Stats()[gameID])

	send(t, hub, c1, ClientMessage{Action: "startGame"})

	// Bob acts out of turn and is the only one told off.
	send(t, hub, c2, ClientMessage{Action: "endTurn"})
	payload := rejectionOf(t, readReply(t, c2))
	assert.Equal(t, "out_of_turn", payload.Kind)
	assert.Empty(t, c1.send, "rejection went to the acting player only")
}

func TestDispatchJoinUnknownGame(t *testing.T) {
	hub := newTestHub(t)
	c := testConn(hub)

	send(t, hub, c, ClientMessage{Action: "joinGame", GameID: "ghost", PlayerID: "p1", PlayerName: "Al"})
	payload := rejectionOf(t, readReply(t, c))
	assert.Equal(t, "redirect_lobby", payload.Kind)
}

func TestDispatchBadVoteDecision(t *testing.T) {
	hub := newTestHub(t)
	c := testConn(hub)

	send(t, hub, c, ClientMessage{Action: "createGame", PlayerID: "p1", PlayerName: "Alice"})
	readReply(t, c)

	send(t, hub, c, ClientMessage{Action: "continuationVote", Decision: "flip_table"})
	payload := rejectionOf(t, readReply(t, c))
	assert.Equal(t, "error", payload.Kind)
}
