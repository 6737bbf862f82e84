// Package game holds the authoritative per-game state machine. Every
// mutating operation on a Session is serialized by its mutex, so the
// tile-conservation and turn-order invariants hold at all observation
// points; concurrent sessions are fully independent.
package game

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/rules"
	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

const (
	// MinPlayers and MaxPlayers bound the seat count.
	MinPlayers = 2
	MaxPlayers = 4
)

// botNames is the fixed pool drawn from when a bot fills a seat.
var botNames = []string{"Botholomew", "Tilebot", "Rummikron", "Setsuko 9000"}

// Hooks are callbacks the session fires on lifecycle edges. They are
// invoked while the session lock is held; implementations must not call
// back into the session.
type Hooks struct {
	// OnTurnAdvance fires after the current player changes, with the new
	// current player's id.
	OnTurnAdvance func(gameID, playerID string)
	// OnCompleted fires once, when a winner is declared or the game is
	// ended by a continuation decision.
	OnCompleted func(gameID, winnerID string)
}

// Session is one authoritative game.
type Session struct {
	mu sync.Mutex

	id        string
	players   []*Player
	deck      *tiles.Deck
	board     Board
	status    Status
	current   int
	winner    string
	pause     PauseState
	createdAt time.Time
	hooks     Hooks

	// Per-turn reversion state. boardSnapshot and handSnapshot are the
	// last committed board and the acting player's hand at turn start;
	// stagedSets counts board sets placed this turn that are not yet
	// committed (initial-play staging); committedThisTurn disables draw.
	boardSnapshot     Board
	handSnapshot      []tiles.Tile
	stagedSets        int
	stagedValue       int
	committedThisTurn bool

	rng *rand.Rand
}

// NewSession creates an empty session in WAITING_FOR_PLAYERS. A nil rng
// uses the default source; tests pass a seeded one.
func NewSession(hooks Hooks, rng *rand.Rand) *Session {
	return &Session{
		id:        uuid.New().String(),
		status:    StatusWaiting,
		createdAt: time.Now(),
		hooks:     hooks,
		rng:       rng,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// AddPlayer seats a human player. Capacity and validation failures come
// back as rejections, never panics.
func (s *Session) AddPlayer(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return reject(RejectAlreadyStarted, "game has already started")
	}
	if id == "" || name == "" {
		return reject(RejectInvalidArgument, "player id and name are required")
	}
	if len(s.players) >= MaxPlayers {
		return reject(RejectSessionFull, fmt.Sprintf("game is full (%d players)", MaxPlayers))
	}
	for _, p := range s.players {
		if p.ID == id {
			return reject(RejectInvalidArgument, "player already seated")
		}
	}
	s.players = append(s.players, &Player{ID: id, Name: name})
	log.Info().Str("game_id", s.id).Str("player_id", id).Str("name", name).Msg("player joined")
	return nil
}

// AddBot fills an open seat with the next name from the bot pool.
func (s *Session) AddBot() (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return nil, reject(RejectAlreadyStarted, "game has already started")
	}
	if len(s.players) >= MaxPlayers {
		return nil, reject(RejectSessionFull, "game is full")
	}
	name := s.nextBotNameLocked()
	if name == "" {
		return nil, reject(RejectBotPoolExhausted, "no bot names left")
	}
	bot := &Player{ID: "bot-" + uuid.New().String()[:8], Name: name, IsBot: true}
	s.players = append(s.players, bot)
	log.Info().Str("game_id", s.id).Str("bot_id", bot.ID).Str("name", name).Msg("bot seated")
	return bot, nil
}

func (s *Session) nextBotNameLocked() string {
	for _, name := range botNames {
		taken := false
		for _, p := range s.players {
			if p.Name == name {
				taken = true
				break
			}
		}
		if !taken {
			return name
		}
	}
	return ""
}

// StartOptions tweak the dealing path.
type StartOptions struct {
	// DebugHandPlayerID, when set, deals that player the fixed 15-tile
	// debug hand instead of a random 14; everyone else deals normally.
	DebugHandPlayerID string
}

// Start deals hands and begins play.
func (s *Session) Start(opts StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return reject(RejectAlreadyStarted, "game has already started")
	}
	if len(s.players) < MinPlayers {
		return reject(RejectInvalidArgument, fmt.Sprintf("need at least %d players", MinPlayers))
	}

	s.deck = tiles.NewDeck(s.rng)

	if opts.DebugHandPlayerID != "" {
		target := s.findPlayerLocked(opts.DebugHandPlayerID)
		if target == nil {
			return reject(RejectUnknownPlayer, "debug hand player is not seated")
		}
		hand, err := tiles.DebugHand(s.deck)
		if err != nil {
			return fmt.Errorf("deal debug hand: %w", err)
		}
		target.Hand = hand
	}

	for _, p := range s.players {
		if p.ID == opts.DebugHandPlayerID {
			continue
		}
		p.Hand = s.deck.DrawN(tiles.HandSize)
	}

	s.status = StatusInProgress
	s.current = 0
	s.board = nil
	s.beginTurnLocked()

	log.Info().
		Str("game_id", s.id).
		Int("players", len(s.players)).
		Int("deck_remaining", s.deck.Len()).
		Msg("game started")

	if s.hooks.OnTurnAdvance != nil {
		s.hooks.OnTurnAdvance(s.id, s.players[s.current].ID)
	}
	return nil
}

// beginTurnLocked re-takes the reversion snapshots for the new current
// player and clears per-turn staging.
func (s *Session) beginTurnLocked() {
	s.boardSnapshot = s.board.clone()
	s.handSnapshot = append([]tiles.Tile(nil), s.players[s.current].Hand...)
	s.stagedSets = 0
	s.stagedValue = 0
	s.committedThisTurn = false
}

func (s *Session) findPlayerLocked(id string) *Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// checkTurnLocked gates mutating play actions.
func (s *Session) checkTurnLocked(playerID string) (*Player, error) {
	switch s.status {
	case StatusWaiting:
		return nil, reject(RejectNotStarted, "game has not started")
	case StatusPaused:
		return nil, reject(RejectGamePaused, "game is paused")
	case StatusCompleted:
		return nil, reject(RejectGameOver, "game is over")
	}
	p := s.findPlayerLocked(playerID)
	if p == nil {
		return nil, reject(RejectUnknownPlayer, "player is not in this game")
	}
	if s.players[s.current].ID != playerID {
		return nil, reject(RejectOutOfTurn, fmt.Sprintf("it is %s's turn", s.players[s.current].Name))
	}
	return p, nil
}

// PlaySet places the named tiles as a new board set or extends an
// existing one. Tiles may come from the player's hand, or (once the
// initial play is down) be rearranged from existing board sets within
// this turn. Every resulting board set must be valid.
//
// A player who has not made their initial play stages sets instead of
// committing: staging only turns into a committed play once the staged
// total reaches the 30-point threshold, and only new sets built purely
// from hand tiles count.
func (s *Session) PlaySet(playerID string, tileIDs []string, target SetTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.checkTurnLocked(playerID)
	if err != nil {
		return err
	}
	if len(tileIDs) == 0 {
		return reject(RejectInvalidArgument, "no tiles named")
	}

	// Work on copies so a rejection leaves nothing mutated.
	workBoard := s.board.clone()
	workHand := append([]tiles.Tile(nil), p.Hand...)

	picked := make([]tiles.Tile, 0, len(tileIDs))
	fromHand := 0
	for _, raw := range tileIDs {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return reject(RejectUnknownTile, fmt.Sprintf("malformed tile id %q", raw))
		}
		if t, ok := takeTile(&workHand, id); ok {
			picked = append(picked, t)
			fromHand++
			continue
		}
		if !p.HasPlayedInitial {
			return reject(RejectInitialThreshold, "initial play may only use tiles from your hand")
		}
		t, ok := takeBoardTile(workBoard, id)
		if !ok {
			return reject(RejectUnknownTile, fmt.Sprintf("tile %s is not in your hand or on the board", raw))
		}
		picked = append(picked, t)
	}

	if !p.HasPlayedInitial && !target.New {
		return reject(RejectInitialThreshold, "initial play may not extend existing sets")
	}

	if target.New {
		workBoard = append(workBoard, TileSet(picked))
	} else {
		if target.Index < 0 || target.Index >= len(workBoard) {
			return reject(RejectInvalidArgument, fmt.Sprintf("no board set at index %d", target.Index))
		}
		workBoard[target.Index] = append(workBoard[target.Index], picked...)
	}

	// Dropping tiles out of a source set may empty it entirely.
	workBoard = compactBoard(workBoard)

	for i, set := range workBoard {
		if !rules.ValidSet(set) {
			return reject(RejectInvalidSet, fmt.Sprintf("board set %d would be invalid: %s", i, describeSet(set)))
		}
	}

	s.board = workBoard
	p.Hand = workHand

	if p.HasPlayedInitial {
		s.commitLocked(p)
		return nil
	}

	// Initial-play staging.
	s.stagedSets++
	s.stagedValue += rules.SetValue(picked)
	if s.stagedValue >= rules.InitialPlayThreshold {
		p.HasPlayedInitial = true
		s.commitLocked(p)
		log.Info().
			Str("game_id", s.id).
			Str("player_id", p.ID).
			Int("points", s.stagedValue).
			Msg("initial play committed")
	}
	return nil
}

// commitLocked makes the current board arrangement the committed one,
// clearing the reversion snapshot, and detects a win.
func (s *Session) commitLocked(p *Player) {
	s.boardSnapshot = s.board.clone()
	s.handSnapshot = append([]tiles.Tile(nil), p.Hand...)
	s.stagedSets = 0
	s.stagedValue = 0
	s.committedThisTurn = true

	if len(p.Hand) == 0 {
		s.declareWinnerLocked(p)
	}
}

// declareWinnerLocked scores the game and completes it. Losers are
// charged the face value of what is left in their hands (jokers 30);
// the winner collects the total.
func (s *Session) declareWinnerLocked(winner *Player) {
	total := 0
	for _, p := range s.players {
		if p.ID == winner.ID {
			continue
		}
		penalty := handValue(p.Hand)
		p.Score -= penalty
		total += penalty
	}
	winner.Score += total
	s.winner = winner.ID
	s.status = StatusCompleted

	log.Info().
		Str("game_id", s.id).
		Str("winner_id", winner.ID).
		Int("points", total).
		Msg("game completed")

	if s.hooks.OnCompleted != nil {
		s.hooks.OnCompleted(s.id, winner.ID)
	}
}

func handValue(hand []tiles.Tile) int {
	v := 0
	for _, t := range hand {
		if t.Joker {
			v += 30
		} else {
			v += t.Number
		}
	}
	return v
}

// Draw reverts any staged, uncommitted placements, deals the player one
// tile, and ends the turn. It is refused once a play has been committed
// this turn. An empty deck still ends the turn, just without a tile.
func (s *Session) Draw(playerID string) (drew bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.checkTurnLocked(playerID)
	if err != nil {
		return false, err
	}
	if s.committedThisTurn {
		return false, reject(RejectDrawDisabled, "cannot draw after playing tiles this turn")
	}

	// Revert staged movements back to the last committed state.
	s.board = s.boardSnapshot.clone()
	p.Hand = append([]tiles.Tile(nil), s.handSnapshot...)

	t, drawErr := s.deck.Draw()
	if drawErr == nil {
		p.Hand = append(p.Hand, t)
		drew = true
	} else {
		log.Info().Str("game_id", s.id).Str("player_id", playerID).Msg("deck empty on draw; turn ends without a tile")
	}

	s.advanceTurnLocked()
	return drew, nil
}

// EndTurn commits the turn and passes play to the next non-abandoned
// player. A below-threshold initial stage cannot be committed; the
// player must keep playing, or draw to revert.
func (s *Session) EndTurn(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.checkTurnLocked(playerID)
	if err != nil {
		return err
	}
	if s.stagedSets > 0 {
		return reject(RejectInitialThreshold,
			fmt.Sprintf("initial play is %d points, needs %d; play more or draw to take everything back",
				s.stagedValue, rules.InitialPlayThreshold))
	}
	s.advanceTurnLocked()
	return nil
}

// ForceEndTurn ends the current player's turn regardless of staging,
// reverting anything uncommitted. Driven by timer expiry and by the
// skip_turn continuation decision, never by a direct player action.
func (s *Session) ForceEndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return
	}
	p := s.players[s.current]
	s.board = s.boardSnapshot.clone()
	p.Hand = append([]tiles.Tile(nil), s.handSnapshot...)
	s.advanceTurnLocked()
}

// advanceTurnLocked rotates to the next eligible player and re-takes the
// turn snapshots.
func (s *Session) advanceTurnLocked() {
	if s.status != StatusInProgress {
		return
	}
	for i := 1; i <= len(s.players); i++ {
		next := (s.current + i) % len(s.players)
		if !s.players[next].Abandoned {
			s.current = next
			break
		}
	}
	s.beginTurnLocked()
	if s.hooks.OnTurnAdvance != nil {
		s.hooks.OnTurnAdvance(s.id, s.players[s.current].ID)
	}
}

// takeTile removes the tile with the given id from ts, if present.
func takeTile(ts *[]tiles.Tile, id uuid.UUID) (tiles.Tile, bool) {
	for i, t := range *ts {
		if t.ID == id {
			*ts = append((*ts)[:i], (*ts)[i+1:]...)
			return t, true
		}
	}
	return tiles.Tile{}, false
}

// takeBoardTile removes the tile with the given id from whichever board
// set holds it.
func takeBoardTile(b Board, id uuid.UUID) (tiles.Tile, bool) {
	for si, set := range b {
		for ti, t := range set {
			if t.ID == id {
				b[si] = append(set[:ti], set[ti+1:]...)
				return t, true
			}
		}
	}
	return tiles.Tile{}, false
}

// compactBoard drops sets emptied by rearrangement.
func compactBoard(b Board) Board {
	out := b[:0]
	for _, set := range b {
		if len(set) > 0 {
			out = append(out, set)
		}
	}
	return out
}

func describeSet(set TileSet) string {
	names := make([]string, len(set))
	for i, t := range set {
		names[i] = t.String()
	}
	return strings.Join(names, " ")
}
