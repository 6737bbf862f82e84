// Package gateway is the transport boundary: a WebSocket hub in front of
// the game sessions, the inbound action dispatch, and the event fan-out
// (per-connection and, optionally, mirrored to NATS).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/bot"
	"github.com/awpearlm/rummikub-backend-sub007/internal/events"
	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
	"github.com/awpearlm/rummikub-backend-sub007/internal/reconnect"
	"github.com/awpearlm/rummikub-backend-sub007/internal/store"
	"github.com/awpearlm/rummikub-backend-sub007/internal/timer"
)

// Broadcaster is what the service needs from the hub.
type Broadcaster interface {
	Broadcast(gameID string, ev events.Envelope)
	SendToPlayer(gameID, playerID string, ev events.Envelope)
}

// GameContext binds one session to its connectivity tracker. Timers and
// trackers hang off this object, never off package-level maps.
type GameContext struct {
	Session *game.Session
	Tracker *reconnect.Tracker
}

// Config tunes the service.
type Config struct {
	TurnDuration time.Duration
	Reconnect    reconnect.Config
	DebugHand    bool
	BotThinkTime time.Duration
}

// Service owns the registry of live games and glues sessions, timers,
// reconnection tracking, persistence and broadcasting together.
type Service struct {
	mu    sync.RWMutex
	games map[string]*GameContext

	cfg       Config
	clock     clockwork.Clock
	timers    *timer.Manager
	store     store.GameStore
	fallback  *store.MemoryStore
	degraded  bool
	fallbacks *reconnect.Fallbacks
	cast      Broadcaster
	rng       *rand.Rand
}

// NewService wires the service. The timer manager is created here so its
// expiry callback lands back on the service.
func NewService(cfg Config, clock clockwork.Clock, st store.GameStore, cast Broadcaster) *Service {
	s := &Service{
		games:     make(map[string]*GameContext),
		cfg:       cfg,
		clock:     clock,
		store:     st,
		fallback:  store.NewMemoryStore(),
		fallbacks: reconnect.NewFallbacks(),
		cast:      cast,
	}
	s.timers = timer.NewManager(clock, cfg.TurnDuration, s.handleTurnTimeout)
	return s
}

// Timers exposes the timer manager (for state views and tests).
func (s *Service) Timers() *timer.Manager { return s.timers }

// CreateGame makes a new session and seats its creator.
func (s *Service) CreateGame(playerID, playerName string) (*GameContext, error) {
	sess := game.NewSession(game.Hooks{
		OnTurnAdvance: s.onTurnAdvance,
		OnCompleted:   s.onCompleted,
	}, s.rng)

	gc := &GameContext{Session: sess}
	gc.Tracker = reconnect.NewTracker(sess, s.timers, s.clock, s.cfg.Reconnect, &notifier{svc: s})

	if err := sess.AddPlayer(playerID, playerName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.games[sess.ID()] = gc
	s.mu.Unlock()

	gc.Tracker.MarkConnected(playerID, reconnect.Quality{})
	s.cast.Broadcast(sess.ID(), events.New(sess.ID(), events.TypeGameCreated, nil))
	return gc, nil
}

// Lookup finds a live game, falling back to the store for games this
// process does not have in memory (restart recovery). The bounded
// fallback strategy decides how hard to try.
func (s *Service) Lookup(gameID string) (*GameContext, error) {
	s.mu.RLock()
	gc, ok := s.games[gameID]
	s.mu.RUnlock()
	if ok {
		return gc, nil
	}

	var restored *GameContext
	action, err := s.fallbacks.Execute(reconnect.FailGameNotFound, gameID, func(a reconnect.Action) error {
		switch a {
		case reconnect.ActionReloadFromStore:
			snap, loadErr := s.activeStore().Load(context.Background(), gameID)
			if loadErr != nil {
				return loadErr
			}
			sess, restoreErr := game.RestoreSession(snap, game.Hooks{
				OnTurnAdvance: s.onTurnAdvance,
				OnCompleted:   s.onCompleted,
			})
			if restoreErr != nil {
				return restoreErr
			}
			gc := &GameContext{Session: sess}
			gc.Tracker = reconnect.NewTracker(sess, s.timers, s.clock, s.cfg.Reconnect, &notifier{svc: s})
			s.mu.Lock()
			s.games[gameID] = gc
			s.mu.Unlock()
			restored = gc
			return nil
		case reconnect.ActionRedirectLobby:
			return nil
		}
		return fmt.Errorf("gateway: unsupported lookup action %s", a)
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: game %s not found: %w", gameID, err)
	}
	if action == reconnect.ActionRedirectLobby || restored == nil {
		return nil, store.ErrNotFound
	}
	log.Info().Str("game_id", gameID).Msg("game restored from store")
	return restored, nil
}

// Join seats a player in an existing waiting game.
func (s *Service) Join(gameID, playerID, playerName string) (*GameContext, error) {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return nil, err
	}
	if err := gc.Session.AddPlayer(playerID, playerName); err != nil {
		return nil, err
	}
	gc.Tracker.MarkConnected(playerID, reconnect.Quality{})
	s.cast.Broadcast(gameID, events.New(gameID, events.TypePlayerJoined,
		map[string]string{"playerId": playerID, "name": playerName}))
	s.syncState(gameID)
	return gc, nil
}

// AddBot fills a seat with a bot.
func (s *Service) AddBot(gameID string) error {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return err
	}
	b, err := gc.Session.AddBot()
	if err != nil {
		return err
	}
	s.cast.Broadcast(gameID, events.New(gameID, events.TypeBotAdded,
		map[string]string{"playerId": b.ID, "name": b.Name}))
	s.syncState(gameID)
	return nil
}

// StartGame deals and begins play. The debug hand, when configured, goes
// to the starting player.
func (s *Service) StartGame(gameID, playerID string) error {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return err
	}
	opts := game.StartOptions{}
	if s.cfg.DebugHand {
		opts.DebugHandPlayerID = playerID
	}
	if err := gc.Session.Start(opts); err != nil {
		return err
	}
	s.cast.Broadcast(gameID, events.New(gameID, events.TypeGameStarted, nil))
	s.syncState(gameID)
	return nil
}

// PlaySet, Draw, EndTurn and Vote forward player actions.

func (s *Service) PlaySet(gameID, playerID string, tileIDs []string, target game.SetTarget) error {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return err
	}
	if err := gc.Session.PlaySet(playerID, tileIDs, target); err != nil {
		return err
	}
	s.cast.Broadcast(gameID, events.New(gameID, events.TypeSetPlayed,
		map[string]any{"playerId": playerID, "tiles": len(tileIDs)}))
	s.syncState(gameID)
	return nil
}

func (s *Service) Draw(gameID, playerID string) error {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return err
	}
	drew, err := gc.Session.Draw(playerID)
	if err != nil {
		return err
	}
	s.cast.Broadcast(gameID, events.New(gameID, events.TypeTileDrawn,
		map[string]any{"playerId": playerID, "drew": drew}))
	return nil
}

func (s *Service) EndTurn(gameID, playerID string) error {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return err
	}
	if err := gc.Session.EndTurn(playerID); err != nil {
		return err
	}
	s.cast.Broadcast(gameID, events.New(gameID, events.TypeTurnEnded,
		map[string]string{"playerId": playerID}))
	return nil
}

func (s *Service) Vote(gameID, playerID string, decision timer.Decision) error {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return err
	}
	return gc.Tracker.SubmitVote(playerID, decision)
}

// HandleDisconnect is called by the hub when a transport closes.
func (s *Service) HandleDisconnect(gameID, playerID string) {
	s.mu.RLock()
	gc, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	gc.Tracker.HandleDisconnect(playerID)
	s.persist(gameID)
}

// HandleReconnect admits a returning player and replays their view.
func (s *Service) HandleReconnect(gameID, playerID string) (game.Snapshot, error) {
	gc, err := s.Lookup(gameID)
	if err != nil {
		return game.Snapshot{}, err
	}
	snap, err := gc.Tracker.HandleReconnect(playerID)
	if err != nil {
		return game.Snapshot{}, err
	}
	s.fallbacks.Reset(reconnect.FailNetworkError, gameID+"/"+playerID)
	return snap, nil
}

// handleTurnTimeout is the timer manager's expiry callback: the player
// forfeits the remainder of the turn, nothing else.
func (s *Service) handleTurnTimeout(gameID, playerID string) {
	s.mu.RLock()
	gc, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	log.Info().Str("game_id", gameID).Str("player_id", playerID).Msg("turn timed out")
	gc.Session.ForceEndTurn()
}

// onTurnAdvance runs inside the session lock: start the clock, announce
// the turn, then kick state sync, persistence and any bot turn onto
// their own goroutines.
func (s *Service) onTurnAdvance(gameID, playerID string) {
	s.timers.Start(gameID, playerID)
	s.cast.Broadcast(gameID, events.New(gameID, events.TypeTurnStarted, events.TurnStartedPayload{
		PlayerID:     playerID,
		DurationSec:  int(s.cfg.TurnDuration.Seconds()),
		RemainingSec: int(s.cfg.TurnDuration.Seconds()),
	}))

	go s.syncState(gameID)
	go s.persist(gameID)
	go s.maybeRunBot(gameID, playerID)
}

// maybeRunBot plays the turn when the new current player is a bot. Runs
// off the hook goroutine so it never touches the session under the
// caller's lock.
func (s *Service) maybeRunBot(gameID, botID string) {
	s.mu.RLock()
	gc, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok || !gc.Session.IsBot(botID) {
		return
	}
	if s.cfg.BotThinkTime > 0 {
		s.clock.Sleep(s.cfg.BotThinkTime)
	}
	if gc.Session.CurrentPlayer() != botID || gc.Session.Status() != game.StatusInProgress {
		return
	}
	bot.TakeTurn(gc.Session, botID)
}

// onCompleted also runs inside the session lock.
func (s *Service) onCompleted(gameID, winnerID string) {
	s.timers.Clear(gameID)
	s.cast.Broadcast(gameID, events.New(gameID, events.TypeGameCompleted,
		map[string]string{"winnerId": winnerID}))
	go s.persist(gameID)
}

// syncState sends every player their own redacted view.
func (s *Service) syncState(gameID string) {
	s.mu.RLock()
	gc, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	snap := gc.Session.Snapshot()
	remaining, _ := s.timers.Remaining(gameID)
	for _, p := range snap.Players {
		view := BuildView(snap, p.ID, remaining)
		s.cast.SendToPlayer(gameID, p.ID, events.New(gameID, events.TypeStateSync, view))
	}
}

// persist saves a snapshot, riding the store-unavailable fallback
// strategy: bounded retries, then degrade to memory-only so the game
// keeps running.
func (s *Service) persist(gameID string) {
	s.mu.RLock()
	gc, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	snap := gc.Session.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.activeStore().Save(ctx, snap); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("snapshot save failed")
		_, fbErr := s.fallbacks.Execute(reconnect.FailStoreUnavailable, gameID, func(a reconnect.Action) error {
			switch a {
			case reconnect.ActionRetry:
				return s.activeStore().Save(ctx, snap)
			case reconnect.ActionDegradeMemoryOnly:
				s.degradeToMemory()
				return s.fallback.Save(ctx, snap)
			}
			return fmt.Errorf("gateway: unsupported persist action %s", a)
		})
		if fbErr != nil {
			log.Error().Err(fbErr).Str("game_id", gameID).Msg("persistence fallbacks exhausted")
		}
	}
}

func (s *Service) activeStore() store.GameStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.degraded {
		return s.fallback
	}
	return s.store
}

func (s *Service) degradeToMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		s.degraded = true
		log.Error().Msg("store unavailable, degrading to memory-only persistence")
	}
}

// SendRejection surfaces a refused action to one player.
func (s *Service) SendRejection(gameID, playerID string, err error) {
	payload := events.RejectionPayload{Kind: "error", Reason: err.Error()}
	var rej *game.Rejection
	if errors.As(err, &rej) {
		payload.Kind = string(rej.Kind)
	}
	if errors.Is(err, reconnect.ErrGameMovedOn) || errors.Is(err, store.ErrNotFound) {
		payload.Kind = "redirect_lobby"
	}
	s.cast.SendToPlayer(gameID, playerID, events.New(gameID, events.TypeRejection, payload))
}

// Shutdown stops trackers and saves everything once.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.persist(id)
		s.mu.RLock()
		gc := s.games[id]
		s.mu.RUnlock()
		gc.Tracker.Shutdown()
		s.timers.Clear(id)
	}
}

// notifier adapts the service to the tracker's Notifier interface.
type notifier struct {
	svc *Service
}

func (n *notifier) ConnectionChanged(gameID, playerID string, state reconnect.ConnState) {
	n.svc.cast.Broadcast(gameID, events.New(gameID, events.TypeConnectionState,
		events.ConnectionStatePayload{PlayerID: playerID, State: string(state)}))
}

func (n *notifier) GracePeriodStarted(gameID, playerID string, deadline time.Time) {
	n.svc.cast.Broadcast(gameID, events.New(gameID, events.TypeGraceStarted,
		events.GraceStartedPayload{PlayerID: playerID, Deadline: deadline}))
}

func (n *notifier) GracePeriodResolved(gameID, playerID string, decision timer.Decision) {
	n.svc.cast.Broadcast(gameID, events.New(gameID, events.TypeGraceResolved,
		events.GraceResolvedPayload{PlayerID: playerID, Decision: string(decision)}))
	go n.svc.persist(gameID)
	if decision == timer.DecisionAddBot {
		// The substitute may already be on the clock.
		n.svc.mu.RLock()
		gc, ok := n.svc.games[gameID]
		n.svc.mu.RUnlock()
		if ok {
			go n.svc.maybeRunBot(gameID, gc.Session.CurrentPlayer())
		}
	}
}

func (n *notifier) VoteProgress(gameID string, received, needed int) {
	n.svc.cast.Broadcast(gameID, events.New(gameID, events.TypeVoteProgress,
		events.VoteProgressPayload{Received: received, Needed: needed}))
}

func (n *notifier) PauseChanged(gameID string, paused bool, reason game.PauseReason) {
	n.svc.cast.Broadcast(gameID, events.New(gameID, events.TypePauseChanged,
		events.PauseChangedPayload{Paused: paused, Reason: string(reason)}))
}
