package game

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

// Pause suspends play. Only the reconnection manager drives this (or an
// operator, via MANUAL_PAUSE); players have no direct pause action.
func (s *Session) Pause(reason PauseReason, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusInProgress:
	case StatusPaused:
		// Escalation: a second disconnect while paused upgrades the
		// recorded reason rather than being processed independently.
		s.pause.Reason = reason
		s.pause.PausedBy = by
		return nil
	default:
		return reject(RejectNotStarted, "game is not in progress")
	}

	s.status = StatusPaused
	s.pause = PauseState{Paused: true, Reason: reason, PausedAt: time.Now(), PausedBy: by}
	log.Info().Str("game_id", s.id).Str("reason", string(reason)).Msg("game paused")
	return nil
}

// Resume clears the pause and returns play to IN_PROGRESS.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPaused {
		return reject(RejectInvalidArgument, "game is not paused")
	}
	s.status = StatusInProgress
	s.pause = PauseState{}
	log.Info().Str("game_id", s.id).Msg("game resumed")
	return nil
}

// MarkAbandoned removes a player from the turn rotation permanently. If
// it was their turn, play moves on immediately.
func (s *Session) MarkAbandoned(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayerLocked(playerID)
	if p == nil {
		return reject(RejectUnknownPlayer, "player is not in this game")
	}
	p.Abandoned = true
	log.Info().Str("game_id", s.id).Str("player_id", playerID).Msg("player abandoned")

	remaining := 0
	for _, pl := range s.players {
		if !pl.Abandoned {
			remaining++
		}
	}
	if remaining == 0 {
		s.endLocked("")
		return nil
	}
	if s.status == StatusInProgress && s.players[s.current].ID == playerID {
		s.board = s.boardSnapshot.clone()
		p.Hand = append([]tiles.Tile(nil), s.handSnapshot...)
		s.advanceTurnLocked()
	}
	return nil
}

// SubstituteBot hands an abandoned-or-absent player's seat to a bot: the
// seat keeps its hand and turn position, picks up a bot name, and keeps
// playing under automation.
func (s *Session) SubstituteBot(playerID string) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayerLocked(playerID)
	if p == nil {
		return nil, reject(RejectUnknownPlayer, "player is not in this game")
	}
	name := s.nextBotNameLocked()
	if name == "" {
		name = p.Name + " (bot)"
	}
	p.IsBot = true
	p.Name = name
	p.Abandoned = false
	log.Info().Str("game_id", s.id).Str("player_id", playerID).Str("bot_name", name).Msg("bot substituted for player")
	return p, nil
}

// End terminates the game without a winner (continuation decision
// end_game, or everyone gone).
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked("")
}

func (s *Session) endLocked(winnerID string) {
	if s.status == StatusCompleted {
		return
	}
	s.status = StatusCompleted
	s.winner = winnerID
	s.pause = PauseState{}
	log.Info().Str("game_id", s.id).Msg("game ended")
	if s.hooks.OnCompleted != nil {
		s.hooks.OnCompleted(s.id, winnerID)
	}
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Winner returns the winning player id, if any.
func (s *Session) Winner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// CurrentPlayer returns the id of the player whose turn it is, or ""
// before the game starts.
func (s *Session) CurrentPlayer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusWaiting || len(s.players) == 0 {
		return ""
	}
	return s.players[s.current].ID
}

// HasPlayer reports whether the id is seated in this game.
func (s *Session) HasPlayer(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findPlayerLocked(playerID) != nil
}

// IsBot reports whether the seat with this id is automated.
func (s *Session) IsBot(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findPlayerLocked(playerID)
	return p != nil && p.IsBot
}

// PlayerCount returns the number of seats taken.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}
