// Package events defines the typed envelope broadcast to clients and
// mirrored to the message bus.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies an outbound event.
type Type string

const (
	TypeGameCreated     Type = "GameCreated"
	TypePlayerJoined    Type = "PlayerJoined"
	TypeBotAdded        Type = "BotAdded"
	TypeGameStarted     Type = "GameStarted"
	TypeStateSync       Type = "StateSync"
	TypeTurnStarted     Type = "TurnStarted"
	TypeSetPlayed       Type = "SetPlayed"
	TypeTileDrawn       Type = "TileDrawn"
	TypeTurnEnded       Type = "TurnEnded"
	TypeGameCompleted   Type = "GameCompleted"
	TypeRejection       Type = "Rejection"
	TypePauseChanged    Type = "PauseChanged"
	TypeConnectionState Type = "ConnectionState"
	TypeGraceStarted    Type = "GracePeriodStarted"
	TypeGraceResolved   Type = "GracePeriodResolved"
	TypeVoteProgress    Type = "VoteProgress"
)

// Envelope wraps every outbound event.
type Envelope struct {
	ID        string          `json:"id"`
	GameID    string          `json:"gameId"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope, swallowing the payload into raw JSON. A
// payload that fails to marshal produces an envelope with empty data;
// callers treat that as a bug, not a runtime branch.
func New(gameID string, typ Type, payload any) Envelope {
	var data json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			data = b
		}
	}
	return Envelope{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// TurnStartedPayload announces whose turn began and its full duration;
// clients count down locally, the server timer stays authoritative.
type TurnStartedPayload struct {
	PlayerID     string `json:"playerId"`
	DurationSec  int    `json:"durationSec"`
	RemainingSec int    `json:"remainingSec"`
}

// GraceStartedPayload announces a grace period countdown.
type GraceStartedPayload struct {
	PlayerID string    `json:"playerId"`
	Deadline time.Time `json:"deadline"`
}

// GraceResolvedPayload announces the continuation decision taken.
type GraceResolvedPayload struct {
	PlayerID string `json:"playerId"`
	Decision string `json:"decision"`
}

// VoteProgressPayload reports continuation-vote progress.
type VoteProgressPayload struct {
	Received int `json:"received"`
	Needed   int `json:"needed"`
}

// ConnectionStatePayload reports a player's connectivity transition.
type ConnectionStatePayload struct {
	PlayerID string `json:"playerId"`
	State    string `json:"state"`
}

// PauseChangedPayload reports a pause or resume.
type PauseChangedPayload struct {
	Paused bool   `json:"paused"`
	Reason string `json:"reason,omitempty"`
}

// RejectionPayload surfaces a refused action to the acting player.
type RejectionPayload struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}
