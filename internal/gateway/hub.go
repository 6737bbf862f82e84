package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/events"
)

// HubConfig tunes the WebSocket layer.
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns sensible transport defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

type outbound struct {
	gameID   string
	playerID string // empty: everyone in the game
	data     []byte
}

// Hub manages the WebSocket connections, pooled per game.
type Hub struct {
	mu    sync.RWMutex
	pools map[string]map[*Conn]bool

	upgrader    websocket.Upgrader
	cfg         HubConfig
	broadcastCh chan outbound
	svc         *Service
}

// Conn is one client transport. A connection binds to a (game, player)
// identity with its first message and keeps it for life; reconnection is
// a new Conn presenting the same identity.
type Conn struct {
	ID       string
	GameID   string
	PlayerID string

	sock *websocket.Conn
	send chan []byte
	hub  *Hub

	connectedAt time.Time
}

// NewHub creates the hub. Attach the service with SetService before
// serving.
func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		pools: make(map[string]map[*Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		cfg:         cfg,
		broadcastCh: make(chan outbound, 1024),
	}
}

// SetService wires the action dispatcher; the hub and service reference
// each other, so one side attaches late.
func (h *Hub) SetService(svc *Service) { h.svc = svc }

// Run pumps broadcasts until the context ends.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("gateway hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case msg := <-h.broadcastCh:
			h.deliver(msg)
		}
	}
}

// ServeWS upgrades an HTTP request into a game connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &Conn{
		ID:          uuid.New().String(),
		sock:        sock,
		send:        make(chan []byte, 256),
		hub:         h,
		connectedAt: time.Now(),
	}
	go c.writePump()
	go c.readPump()
	log.Info().Str("connection_id", c.ID).Str("remote", r.RemoteAddr).Msg("websocket connected")
}

// register joins the connection to its game pool once identity is known.
func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pools[c.GameID] == nil {
		h.pools[c.GameID] = make(map[*Conn]bool)
	}
	h.pools[c.GameID][c] = true
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	if pool, ok := h.pools[c.GameID]; ok {
		if pool[c] {
			delete(pool, c)
			close(c.send)
			if len(pool) == 0 {
				delete(h.pools, c.GameID)
			}
		}
	}
	h.mu.Unlock()
}

// Broadcast queues an event for every connection in the game.
func (h *Hub) Broadcast(gameID string, ev events.Envelope) {
	h.enqueue(gameID, "", ev)
}

// SendToPlayer queues an event for one player's connections.
func (h *Hub) SendToPlayer(gameID, playerID string, ev events.Envelope) {
	h.enqueue(gameID, playerID, ev)
}

func (h *Hub) enqueue(gameID, playerID string, ev events.Envelope) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Msg("marshal event")
		return
	}
	select {
	case h.broadcastCh <- outbound{gameID: gameID, playerID: playerID, data: data}:
	default:
		log.Warn().Str("game_id", gameID).Msg("broadcast channel full, dropping event")
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	pool, ok := h.pools[msg.gameID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Conn, 0, len(pool))
	for c := range pool {
		if msg.playerID != "" && c.PlayerID != msg.playerID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg.data:
		default:
			log.Warn().
				Str("connection_id", c.ID).
				Str("player_id", c.PlayerID).
				Msg("send buffer full, closing connection")
			h.unregister(c)
			c.sock.Close()
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.sock.Close()
		if c.GameID != "" && c.PlayerID != "" {
			c.hub.svc.HandleDisconnect(c.GameID, c.PlayerID)
		}
	}()

	c.sock.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		c.hub.dispatch(c, message)
		c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	}
}

// Stats reports live connection counts per game.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.pools))
	for id, pool := range h.pools {
		out[id] = len(pool)
	}
	return out
}
