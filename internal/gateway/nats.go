package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/events"
)

// NATSPublisher mirrors every broadcast envelope onto the message bus at
// <prefix>.<gameID>, so external consumers (spectator feeds, analytics)
// can follow games without a WebSocket seat.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects with the usual reconnect behavior.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("gateway: connect to NATS: %w", err)
	}
	log.Info().Str("url", url).Str("prefix", prefix).Msg("NATS event mirror enabled")
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Publish fires one envelope at the bus. Failures are logged, never
// escalated: the bus is a mirror, not the transport of record.
func (p *NATSPublisher) Publish(ev events.Envelope) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	subject := p.prefix + "." + ev.GameID
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("NATS publish failed")
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// FanOut is a Broadcaster that delivers to the hub and mirrors
// game-wide events to NATS. Per-player sends are not mirrored: they
// carry hands.
type FanOut struct {
	Hub *Hub
	Bus *NATSPublisher
}

func (f *FanOut) Broadcast(gameID string, ev events.Envelope) {
	f.Hub.Broadcast(gameID, ev)
	if f.Bus != nil {
		f.Bus.Publish(ev)
	}
}

func (f *FanOut) SendToPlayer(gameID, playerID string, ev events.Envelope) {
	f.Hub.SendToPlayer(gameID, playerID, ev)
}
