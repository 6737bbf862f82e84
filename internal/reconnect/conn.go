// Package reconnect tracks player connectivity for a game: connection
// status lifecycles, grace periods while a player is away, the
// continuation vote when a grace period runs out, and the bounded-retry
// fallback strategies that keep every failure mode in this subsystem
// from crashing a session.
package reconnect

import "time"

// ConnState is a player's connection lifecycle state.
type ConnState string

const (
	StateConnected     ConnState = "CONNECTED"
	StateDisconnecting ConnState = "DISCONNECTING"
	StateReconnecting  ConnState = "RECONNECTING"
	StateDisconnected  ConnState = "DISCONNECTED"
	StateAbandoned     ConnState = "ABANDONED"
)

// Quality carries connection-quality metrics reported by the transport.
type Quality struct {
	LatencyMS  int     `json:"latencyMs"`
	PacketLoss float64 `json:"packetLoss"`
	Mobile     bool    `json:"mobile"`
}

// ConnectionInfo is everything tracked per player.
type ConnectionInfo struct {
	State                ConnState `json:"state"`
	LastSeen             time.Time `json:"lastSeen"`
	DisconnectedAt       time.Time `json:"disconnectedAt,omitempty"`
	ReconnectionAttempts int       `json:"reconnectionAttempts"`
	Quality              Quality   `json:"quality"`
}

// GracePeriod is the bounded wait for one player's return.
type GracePeriod struct {
	Active         bool          `json:"isActive"`
	Start          time.Time     `json:"startTime"`
	Duration       time.Duration `json:"duration"`
	TargetPlayerID string        `json:"targetPlayerId"`
}

// Deadline is when the grace period runs out.
func (g GracePeriod) Deadline() time.Time { return g.Start.Add(g.Duration) }
