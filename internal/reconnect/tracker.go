package reconnect

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
	"github.com/awpearlm/rummikub-backend-sub007/internal/timer"
)

var (
	// ErrGameMovedOn rejects a reconnection that arrives after the grace
	// period already resolved. The caller directs the player to the lobby;
	// the applied decision is never undone.
	ErrGameMovedOn = errors.New("reconnect: game moved on without you")

	// ErrNotInGame rejects a reconnection for an identity that was never
	// seated in the game.
	ErrNotInGame = errors.New("reconnect: player is not in this game")

	// ErrNotDisconnected rejects a reconnection for a player who is not
	// currently away.
	ErrNotDisconnected = errors.New("reconnect: player is not disconnected")
)

// Config bounds the subsystem's waits.
type Config struct {
	GraceDuration time.Duration
	VoteTimeout   time.Duration
}

// DefaultConfig gives disconnected players a real chance to come back.
func DefaultConfig() Config {
	return Config{
		GraceDuration: 180 * time.Second,
		VoteTimeout:   30 * time.Second,
	}
}

// Notifier receives connectivity updates for broadcasting. Calls arrive
// on tracker goroutines; implementations must not call back into the
// tracker synchronously.
type Notifier interface {
	ConnectionChanged(gameID, playerID string, state ConnState)
	GracePeriodStarted(gameID, playerID string, deadline time.Time)
	GracePeriodResolved(gameID, playerID string, decision timer.Decision)
	VoteProgress(gameID string, received, needed int)
	PauseChanged(gameID string, paused bool, reason game.PauseReason)
}

// Tracker owns connectivity state for one game. It is created alongside
// the session and injected with the session and the timer manager, so
// nothing is looked up from ambient global maps.
type Tracker struct {
	mu sync.Mutex

	gameID  string
	session *game.Session
	timers  *timer.Manager
	clock   clockwork.Clock
	cfg     Config
	notify  Notifier

	conns    map[string]*ConnectionInfo
	graces   map[string]*graceState
	vote     *voteState
	resolved map[string]bool // players whose grace period already resolved

	// resolvedPending queues players whose grace expired while a vote was
	// already running; they share that vote's outcome.
	resolvedPending []string
}

type graceState struct {
	GracePeriod
	cancel chan struct{}
}

// NewTracker builds a tracker for one session.
func NewTracker(session *game.Session, timers *timer.Manager, clock clockwork.Clock, cfg Config, notify Notifier) *Tracker {
	return &Tracker{
		gameID:   session.ID(),
		session:  session,
		timers:   timers,
		clock:    clock,
		cfg:      cfg,
		notify:   notify,
		conns:    make(map[string]*ConnectionInfo),
		graces:   make(map[string]*graceState),
		resolved: make(map[string]bool),
	}
}

// MarkConnected records a live transport for the player (initial join or
// plain traffic).
func (t *Tracker) MarkConnected(playerID string, q Quality) {
	t.mu.Lock()
	info := t.connLocked(playerID)
	info.State = StateConnected
	info.LastSeen = t.clock.Now()
	info.Quality = q
	t.mu.Unlock()
	t.notify.ConnectionChanged(t.gameID, playerID, StateConnected)
}

// ConnectionOf returns a copy of the player's connection info.
func (t *Tracker) ConnectionOf(playerID string) (ConnectionInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.conns[playerID]
	if !ok {
		return ConnectionInfo{}, false
	}
	return *info, true
}

func (t *Tracker) connLocked(playerID string) *ConnectionInfo {
	info, ok := t.conns[playerID]
	if !ok {
		info = &ConnectionInfo{State: StateConnected, LastSeen: t.clock.Now()}
		t.conns[playerID] = info
	}
	return info
}

// HandleDisconnect reacts to a transport close: status transitions, a
// grace period for the player, and a pause whose reason reflects ALL
// currently disconnected players, not just this one. The turn timer is
// frozen for any disconnect, whoever dropped: the session pauses either
// way, and a countdown expiring while nobody may act would leave the
// resumed game with no timer at all.
func (t *Tracker) HandleDisconnect(playerID string) {
	if !t.session.HasPlayer(playerID) {
		return
	}

	t.mu.Lock()
	info := t.connLocked(playerID)
	if info.State == StateDisconnected || info.State == StateAbandoned {
		t.mu.Unlock()
		return
	}
	info.State = StateDisconnecting
	now := t.clock.Now()
	info.State = StateDisconnected
	info.DisconnectedAt = now

	isCurrent := t.session.CurrentPlayer() == playerID
	if _, err := t.timers.PauseForGracePeriod(t.gameID); err != nil && !errors.Is(err, timer.ErrNoTimer) {
		log.Error().Err(err).Str("game_id", t.gameID).Msg("preserve timer on disconnect")
	}

	gs := &graceState{
		GracePeriod: GracePeriod{
			Active:         true,
			Start:          now,
			Duration:       t.cfg.GraceDuration,
			TargetPlayerID: playerID,
		},
		cancel: make(chan struct{}),
	}
	t.graces[playerID] = gs

	reason := t.pauseReasonLocked(isCurrent)
	t.mu.Unlock()

	if t.session.Status() == game.StatusInProgress || t.session.Status() == game.StatusPaused {
		if err := t.session.Pause(reason, playerID); err != nil {
			log.Warn().Err(err).Str("game_id", t.gameID).Msg("pause on disconnect")
		}
		t.notify.PauseChanged(t.gameID, true, reason)
	}

	t.notify.ConnectionChanged(t.gameID, playerID, StateDisconnected)
	t.notify.GracePeriodStarted(t.gameID, playerID, gs.Deadline())

	go t.watchGrace(gs)

	log.Info().
		Str("game_id", t.gameID).
		Str("player_id", playerID).
		Bool("current_player", isCurrent).
		Str("pause_reason", string(reason)).
		Msg("player disconnected, grace period started")
}

// pauseReasonLocked escalates the pause reason over every player whose
// connection is currently down. Simultaneous disconnects get a combined
// reason instead of being handled one by one.
func (t *Tracker) pauseReasonLocked(currentAffected bool) game.PauseReason {
	down := 0
	for _, info := range t.conns {
		if info.State == StateDisconnected || info.State == StateDisconnecting {
			down++
		}
	}
	total := t.session.PlayerCount()
	switch {
	case down >= total && total > 0:
		return game.PauseAllPlayersDisconnect
	case down > 1:
		return game.PauseMultipleDisconnects
	case currentAffected:
		return game.PauseCurrentPlayerDisconnect
	default:
		return game.PauseNetworkInstability
	}
}

// watchGrace waits out one grace period.
func (t *Tracker) watchGrace(gs *graceState) {
	wait := gs.Deadline().Sub(t.clock.Now())
	tm := t.clock.NewTimer(wait)
	defer tm.Stop()

	select {
	case <-gs.cancel:
		return
	case <-tm.Chan():
	}

	t.mu.Lock()
	cur, ok := t.graces[gs.TargetPlayerID]
	if !ok || cur != gs {
		t.mu.Unlock()
		return
	}
	delete(t.graces, gs.TargetPlayerID)
	t.mu.Unlock()

	log.Info().
		Str("game_id", t.gameID).
		Str("player_id", gs.TargetPlayerID).
		Msg("grace period expired without reconnection")

	t.startVote(gs.TargetPlayerID)
}

// HandleReconnect admits a returning transport claiming an existing
// player identity. On success the caller gets a state snapshot to send
// down; the preserved timer resumes only when nobody else is still away.
func (t *Tracker) HandleReconnect(playerID string) (game.Snapshot, error) {
	if !t.session.HasPlayer(playerID) {
		return game.Snapshot{}, ErrNotInGame
	}

	t.mu.Lock()
	if t.resolved[playerID] {
		t.mu.Unlock()
		return game.Snapshot{}, ErrGameMovedOn
	}
	info, ok := t.conns[playerID]
	if !ok || (info.State != StateDisconnected && info.State != StateDisconnecting) {
		t.mu.Unlock()
		return game.Snapshot{}, ErrNotDisconnected
	}
	info.State = StateReconnecting
	info.ReconnectionAttempts++

	gs, hadGrace := t.graces[playerID]
	if hadGrace {
		close(gs.cancel)
		delete(t.graces, playerID)
	}

	info.State = StateConnected
	info.LastSeen = t.clock.Now()
	info.DisconnectedAt = time.Time{}

	othersDown := false
	for id, other := range t.conns {
		if id == playerID {
			continue
		}
		if other.State == StateDisconnected || other.State == StateDisconnecting {
			othersDown = true
		}
	}
	t.mu.Unlock()

	if othersDown {
		// Stay paused for whoever is still away, with a re-evaluated reason.
		t.mu.Lock()
		reason := t.pauseReasonLocked(false)
		t.mu.Unlock()
		if err := t.session.Pause(reason, playerID); err == nil {
			t.notify.PauseChanged(t.gameID, true, reason)
		}
	} else {
		if err := t.session.Resume(); err == nil {
			t.notify.PauseChanged(t.gameID, false, "")
		}
		if err := t.timers.Resume(t.gameID); err != nil && !errors.Is(err, timer.ErrNoTimer) {
			log.Error().Err(err).Str("game_id", t.gameID).Msg("resume timer after reconnect")
		}
	}

	t.notify.ConnectionChanged(t.gameID, playerID, StateConnected)

	log.Info().
		Str("game_id", t.gameID).
		Str("player_id", playerID).
		Msg("player reconnected")

	return t.session.Snapshot(), nil
}

// GraceOf returns the active grace period for a player, if any.
func (t *Tracker) GraceOf(playerID string) (GracePeriod, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	gs, ok := t.graces[playerID]
	if !ok {
		return GracePeriod{}, false
	}
	return gs.GracePeriod, true
}

// Shutdown cancels outstanding grace and vote waits.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, gs := range t.graces {
		close(gs.cancel)
		delete(t.graces, id)
	}
	if t.vote != nil {
		close(t.vote.cancel)
		t.vote = nil
	}
}
