// Package timer owns the per-game turn countdowns. A timer belongs to
// the current player of exactly one game; pausing for a grace period
// freezes the remaining time so wall-clock elapse during a disconnect
// never costs the player anything.
package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Decision is a continuation decision applied when a grace period
// expires without a reconnection.
type Decision string

const (
	DecisionSkipTurn Decision = "skip_turn"
	DecisionAddBot   Decision = "add_bot"
	DecisionEndGame  Decision = "end_game"
)

// ParseDecision validates a wire value.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionSkipTurn, DecisionAddBot, DecisionEndGame:
		return Decision(s), nil
	}
	return "", errors.New("timer: unknown continuation decision " + s)
}

// ErrNoTimer is returned for operations on a game with no timer state.
var ErrNoTimer = errors.New("timer: no timer for game")

// ExpireFunc is called when a running timer reaches zero. It runs on the
// timer goroutine; implementations take their own locks.
type ExpireFunc func(gameID, playerID string)

type turnTimer struct {
	gameID    string
	playerID  string
	original  time.Duration
	deadline  time.Time     // meaningful while running
	remaining time.Duration // meaningful while preserved
	preserved bool
	cancel    chan struct{}
	tick      clockwork.Timer
}

// Manager tracks one TurnTimer per active game.
type Manager struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	duration time.Duration
	onExpire ExpireFunc
	timers   map[string]*turnTimer
}

// NewManager creates a manager. In production pass
// clockwork.NewRealClock(); tests pass a FakeClock.
func NewManager(clock clockwork.Clock, turnDuration time.Duration, onExpire ExpireFunc) *Manager {
	return &Manager{
		clock:    clock,
		duration: turnDuration,
		onExpire: onExpire,
		timers:   make(map[string]*turnTimer),
	}
}

// DefaultDuration returns the configured full turn duration.
func (m *Manager) DefaultDuration() time.Duration { return m.duration }

// Start begins a fresh full-length countdown for the player, replacing
// any previous timer for the game.
func (m *Manager) Start(gameID, playerID string) {
	m.startWith(gameID, playerID, m.duration, m.duration)
}

// Restore resumes a countdown with an explicit remaining time, used when
// a game is loaded from the store.
func (m *Manager) Restore(gameID, playerID string, remaining time.Duration) {
	if remaining <= 0 || remaining > m.duration {
		remaining = m.duration
	}
	m.startWith(gameID, playerID, remaining, m.duration)
}

func (m *Manager) startWith(gameID, playerID string, remaining, original time.Duration) {
	m.mu.Lock()
	m.stopLocked(gameID)
	t := &turnTimer{
		gameID:   gameID,
		playerID: playerID,
		original: original,
		deadline: m.clock.Now().Add(remaining),
		cancel:   make(chan struct{}),
		tick:     m.clock.NewTimer(remaining),
	}
	m.timers[gameID] = t
	m.mu.Unlock()

	go m.countdown(t)

	log.Debug().
		Str("game_id", gameID).
		Str("player_id", playerID).
		Dur("remaining", remaining).
		Msg("turn timer started")
}

func (m *Manager) countdown(t *turnTimer) {
	defer t.tick.Stop()

	select {
	case <-t.cancel:
		return
	case <-t.tick.Chan():
	}

	m.mu.Lock()
	cur, ok := m.timers[t.gameID]
	if !ok || cur != t || cur.preserved {
		// Replaced or frozen between fire and lock; stale expiry.
		m.mu.Unlock()
		return
	}
	delete(m.timers, t.gameID)
	playerID := t.playerID
	m.mu.Unlock()

	log.Info().Str("game_id", t.gameID).Str("player_id", playerID).Msg("turn timer expired")
	if m.onExpire != nil {
		m.onExpire(t.gameID, playerID)
	}
}

// PauseForGracePeriod freezes the timer: the remaining time is preserved
// and no countdown runs until an explicit resume or continuation.
func (m *Manager) PauseForGracePeriod(gameID string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[gameID]
	if !ok {
		return 0, ErrNoTimer
	}
	if t.preserved {
		return t.remaining, nil
	}
	close(t.cancel)
	t.tick.Stop()
	t.remaining = t.deadline.Sub(m.clock.Now())
	if t.remaining < 0 {
		t.remaining = 0
	}
	t.preserved = true

	log.Info().
		Str("game_id", gameID).
		Str("player_id", t.playerID).
		Dur("preserved", t.remaining).
		Msg("turn timer preserved for grace period")
	return t.remaining, nil
}

// Resume continues a preserved countdown exactly where it froze,
// attributed to the same player.
func (m *Manager) Resume(gameID string) error {
	return m.resumeAs(gameID, "")
}

// ContinueForBot continues a preserved countdown from the frozen value,
// now attributed to the substitute bot.
func (m *Manager) ContinueForBot(gameID, botPlayerID string) error {
	return m.resumeAs(gameID, botPlayerID)
}

func (m *Manager) resumeAs(gameID, playerID string) error {
	m.mu.Lock()
	t, ok := m.timers[gameID]
	if !ok || !t.preserved {
		m.mu.Unlock()
		return ErrNoTimer
	}
	if playerID == "" {
		playerID = t.playerID
	}
	remaining := t.remaining
	original := t.original
	m.mu.Unlock()

	m.startWith(gameID, playerID, remaining, original)
	return nil
}

// HandleGracePeriodExpiration applies a continuation decision to the
// game's preserved timer. nextPlayerID names the player the timer is
// attributed to afterwards: the next eligible player for skip_turn, the
// substitute bot for add_bot, ignored for end_game.
func (m *Manager) HandleGracePeriodExpiration(gameID string, decision Decision, nextPlayerID string) error {
	switch decision {
	case DecisionSkipTurn:
		// Forfeit the remainder: full reset for the next player.
		m.Clear(gameID)
		m.Start(gameID, nextPlayerID)
		return nil
	case DecisionAddBot:
		return m.ContinueForBot(gameID, nextPlayerID)
	case DecisionEndGame:
		m.Clear(gameID)
		return nil
	}
	return errors.New("timer: unknown continuation decision " + string(decision))
}

// Remaining reports the time left. While preserved this is a constant;
// while running it shrinks with the clock.
func (m *Manager) Remaining(gameID string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[gameID]
	if !ok {
		return 0, ErrNoTimer
	}
	if t.preserved {
		return t.remaining, nil
	}
	rem := t.deadline.Sub(m.clock.Now())
	if rem < 0 {
		rem = 0
	}
	return rem, nil
}

// Preserved reports whether the game's timer is frozen.
func (m *Manager) Preserved(gameID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[gameID]
	return ok && t.preserved
}

// Clear drops all timer state for the game.
func (m *Manager) Clear(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(gameID)
}

func (m *Manager) stopLocked(gameID string) {
	if t, ok := m.timers[gameID]; ok {
		if !t.preserved {
			close(t.cancel)
			t.tick.Stop()
		}
		delete(m.timers, gameID)
	}
}
