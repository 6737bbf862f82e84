package game

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

func seededSession(t *testing.T, hooks Hooks) *Session {
	t.Helper()
	return NewSession(hooks, rand.New(rand.NewSource(42)))
}

// findID returns the id of the first hand tile matching color/number.
func findID(t *testing.T, hand []tiles.Tile, c tiles.Color, n int) string {
	t.Helper()
	for _, tl := range hand {
		if !tl.Joker && tl.Color == c && tl.Number == n {
			return tl.ID.String()
		}
	}
	t.Fatalf("tile %s-%d not in hand", c, n)
	return ""
}

func rejectionKind(t *testing.T, err error) RejectionKind {
	t.Helper()
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	return rej.Kind
}

func TestAddPlayerValidation(t *testing.T) {
	s := seededSession(t, Hooks{})

	require.NoError(t, s.AddPlayer("p1", "Alice"))
	assert.Equal(t, RejectInvalidArgument, rejectionKind(t, s.AddPlayer("p1", "Alice")))
	assert.Equal(t, RejectInvalidArgument, rejectionKind(t, s.AddPlayer("", "Nameless")))

	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.AddPlayer("p3", "Carol"))
	require.NoError(t, s.AddPlayer("p4", "Dave"))
	assert.Equal(t, RejectSessionFull, rejectionKind(t, s.AddPlayer("p5", "Eve")))
}

func TestStartRequiresTwoPlayers(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	assert.Equal(t, RejectInvalidArgument, rejectionKind(t, s.Start(StartOptions{})))
}

func TestStartDealsAndConserves(t *testing.T) {
	var turnPlayer string
	s := seededSession(t, Hooks{OnTurnAdvance: func(_, pid string) { turnPlayer = pid }})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{}))

	snap := s.Snapshot()
	assert.Equal(t, StatusInProgress, snap.Status)
	assert.Len(t, snap.Players[0].Hand, tiles.HandSize)
	assert.Len(t, snap.Players[1].Hand, tiles.HandSize)
	assert.Equal(t, tiles.DeckSize, snap.TileCount())
	assert.Equal(t, "p1", turnPlayer)

	assert.Equal(t, RejectAlreadyStarted, rejectionKind(t, s.AddPlayer("p3", "Carol")))
	assert.Equal(t, RejectAlreadyStarted, rejectionKind(t, s.Start(StartOptions{})))
}

func TestAddBotPool(t *testing.T) {
	s := seededSession(t, Hooks{})
	b1, err := s.AddBot()
	require.NoError(t, err)
	b2, err := s.AddBot()
	require.NoError(t, err)
	assert.True(t, b1.IsBot)
	assert.NotEqual(t, b1.Name, b2.Name)
	assert.NotEqual(t, b1.ID, b2.ID)
}

func TestDebugHandStart(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{DebugHandPlayerID: "p1"}))

	snap := s.Snapshot()
	assert.Len(t, snap.Players[0].Hand, tiles.DebugHandSize)
	assert.Len(t, snap.Players[1].Hand, tiles.HandSize)
	assert.Equal(t, tiles.DeckSize, snap.TileCount())
}

func TestOutOfTurnRejected(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{}))

	assert.Equal(t, RejectOutOfTurn, rejectionKind(t, s.EndTurn("p2")))
	_, err := s.Draw("p2")
	assert.Equal(t, RejectOutOfTurn, rejectionKind(t, err))
	assert.Equal(t, RejectUnknownPlayer, rejectionKind(t, s.EndTurn("stranger")))
}

func TestInitialPlayStaging(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{DebugHandPlayerID: "p1"}))

	hand := s.Snapshot().Players[0].Hand

	// Red 1-2-3 is only 6 points: staged, and the turn may not end yet.
	low := []string{
		findID(t, hand, tiles.Red, 1),
		findID(t, hand, tiles.Red, 2),
		findID(t, hand, tiles.Red, 3),
	}
	require.NoError(t, s.PlaySet("p1", low, NewSet()))
	assert.Equal(t, RejectInitialThreshold, rejectionKind(t, s.EndTurn("p1")))

	snap := s.Snapshot()
	assert.False(t, snap.Players[0].HasPlayedInitial)
	assert.Len(t, snap.Board, 1)

	// The group of 13s pushes the staged total to 45: committed.
	high := []string{
		findID(t, hand, tiles.Red, 13),
		findID(t, hand, tiles.Blue, 13),
		findID(t, hand, tiles.Yellow, 13),
	}
	require.NoError(t, s.PlaySet("p1", high, NewSet()))

	snap = s.Snapshot()
	assert.True(t, snap.Players[0].HasPlayedInitial)
	assert.Len(t, snap.Board, 2)
	assert.Len(t, snap.Players[0].Hand, tiles.DebugHandSize-6)

	// A committed play disables drawing this turn.
	_, err := s.Draw("p1")
	assert.Equal(t, RejectDrawDisabled, rejectionKind(t, err))

	require.NoError(t, s.EndTurn("p1"))
	assert.Equal(t, "p2", s.CurrentPlayer())
}

func TestDrawRevertsStagedPlacement(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{DebugHandPlayerID: "p1"}))

	hand := s.Snapshot().Players[0].Hand
	deckBefore := len(s.Snapshot().Deck)

	staged := []string{
		findID(t, hand, tiles.Red, 1),
		findID(t, hand, tiles.Red, 2),
		findID(t, hand, tiles.Red, 3),
	}
	require.NoError(t, s.PlaySet("p1", staged, NewSet()))

	drew, err := s.Draw("p1")
	require.NoError(t, err)
	assert.True(t, drew)

	snap := s.Snapshot()
	assert.Empty(t, snap.Board, "staged set returns to hand on draw")
	assert.Len(t, snap.Players[0].Hand, tiles.DebugHandSize+1)
	assert.Len(t, snap.Deck, deckBefore-1)
	assert.Equal(t, tiles.DeckSize, snap.TileCount())
	assert.Equal(t, 1, snap.CurrentPlayerIndex)
}

func TestInitialPlayCannotUseBoardTiles(t *testing.T) {
	deck := tiles.NewDeck(rand.New(rand.NewSource(9)))
	boardSet := pull(t, deck, tiles.Red, 7, tiles.Blue, 7, tiles.Black, 7)
	p1Hand := pull(t, deck, tiles.Yellow, 7, tiles.Yellow, 8, tiles.Yellow, 9)
	p2Hand := deck.DrawN(5)

	s := restoreFixture(t, boardSet, p1Hand, p2Hand, deck, false)

	// Pulling the board's red 7 into a new set is not allowed before the
	// initial play is down.
	ids := []string{
		boardSet[0].ID.String(),
		p1Hand[1].ID.String(),
		p1Hand[2].ID.String(),
	}
	err := s.PlaySet("p1", ids, NewSet())
	assert.Equal(t, RejectInitialThreshold, rejectionKind(t, err))

	// Extending an existing set is equally off-limits.
	err = s.PlaySet("p1", []string{p1Hand[0].ID.String()}, ExistingSet(0))
	assert.Equal(t, RejectInitialThreshold, rejectionKind(t, err))
}

// pull removes specific (color, number) pairs from the deck.
func pull(t *testing.T, d *tiles.Deck, pairs ...interface{}) []tiles.Tile {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	out := make([]tiles.Tile, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		tl, ok := d.Remove(pairs[i].(tiles.Color), pairs[i+1].(int), false)
		require.True(t, ok)
		out = append(out, tl)
	}
	return out
}

// restoreFixture builds an in-progress two-player game with a chosen
// board and hands. Conservation holds because every tile came out of one
// full deck.
func restoreFixture(t *testing.T, boardSet, p1Hand, p2Hand []tiles.Tile, deck *tiles.Deck, p1Played bool) *Session {
	t.Helper()
	snap := Snapshot{
		ID:     "fixture-game",
		Status: StatusInProgress,
		Players: []Player{
			{ID: "p1", Name: "Alice", Hand: p1Hand, HasPlayedInitial: p1Played},
			{ID: "p2", Name: "Bob", Hand: p2Hand, HasPlayedInitial: true},
		},
		Board:     Board{TileSet(boardSet)},
		Deck:      deck.Tiles(),
		CreatedAt: time.Now(),
	}
	s, err := RestoreSession(snap, Hooks{})
	require.NoError(t, err)
	return s
}

func TestRearrangeBoardSets(t *testing.T) {
	deck := tiles.NewDeck(rand.New(rand.NewSource(11)))
	// Board: group of four 7s. Taking one still leaves a legal group.
	boardSet := pull(t, deck, tiles.Red, 7, tiles.Blue, 7, tiles.Black, 7, tiles.Yellow, 7)
	p1Hand := pull(t, deck, tiles.Black, 8, tiles.Black, 9, tiles.Red, 4)
	p2Hand := deck.DrawN(5)

	s := restoreFixture(t, boardSet, p1Hand, p2Hand, deck, true)

	// Move the board's black 7 into a new run with hand tiles.
	ids := []string{
		boardSet[2].ID.String(), // black 7, from the board
		p1Hand[0].ID.String(),   // black 8
		p1Hand[1].ID.String(),   // black 9
	}
	require.NoError(t, s.PlaySet("p1", ids, NewSet()))

	snap := s.Snapshot()
	require.Len(t, snap.Board, 2)
	assert.Len(t, snap.Board[0], 3)
	assert.Len(t, snap.Board[1], 3)
	assert.Len(t, snap.Players[0].Hand, 1)
	assert.Equal(t, tiles.DeckSize, snap.TileCount())
}

func TestInvalidRearrangementLeavesStateUntouched(t *testing.T) {
	deck := tiles.NewDeck(rand.New(rand.NewSource(12)))
	// Board: run red 1-2-3. Stealing the 2 would leave an illegal set.
	boardSet := pull(t, deck, tiles.Red, 1, tiles.Red, 2, tiles.Red, 3)
	p1Hand := pull(t, deck, tiles.Blue, 2, tiles.Black, 2)
	p2Hand := deck.DrawN(5)

	s := restoreFixture(t, boardSet, p1Hand, p2Hand, deck, true)
	before := s.Snapshot()

	ids := []string{
		boardSet[1].ID.String(),
		p1Hand[0].ID.String(),
		p1Hand[1].ID.String(),
	}
	err := s.PlaySet("p1", ids, NewSet())
	assert.Equal(t, RejectInvalidSet, rejectionKind(t, err))

	after := s.Snapshot()
	assert.Equal(t, before.Board, after.Board)
	assert.Equal(t, before.Players[0].Hand, after.Players[0].Hand)
}

func TestExtendExistingSetAndWin(t *testing.T) {
	var completedWinner string
	deck := tiles.NewDeck(rand.New(rand.NewSource(13)))
	boardSet := pull(t, deck, tiles.Red, 1, tiles.Red, 2, tiles.Red, 3)
	p1Hand := pull(t, deck, tiles.Red, 4)
	p2Hand := pull(t, deck, tiles.Blue, 5, tiles.Blue, 9)

	snap := Snapshot{
		ID:     "fixture-game",
		Status: StatusInProgress,
		Players: []Player{
			{ID: "p1", Name: "Alice", Hand: p1Hand, HasPlayedInitial: true},
			{ID: "p2", Name: "Bob", Hand: p2Hand, HasPlayedInitial: true},
		},
		Board:     Board{TileSet(boardSet)},
		Deck:      deck.Tiles(),
		CreatedAt: time.Now(),
	}
	s, err := RestoreSession(snap, Hooks{OnCompleted: func(_, w string) { completedWinner = w }})
	require.NoError(t, err)

	require.NoError(t, s.PlaySet("p1", []string{p1Hand[0].ID.String()}, ExistingSet(0)))

	final := s.Snapshot()
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "p1", final.Winner)
	assert.Equal(t, "p1", completedWinner)
	// Bob's blue 5 and blue 9 cost 14; Alice collects it.
	assert.Equal(t, 14, final.Players[0].Score)
	assert.Equal(t, -14, final.Players[1].Score)

	assert.Equal(t, RejectGameOver, rejectionKind(t, s.EndTurn("p2")))
}

func TestForceEndTurnReverts(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{DebugHandPlayerID: "p1"}))

	hand := s.Snapshot().Players[0].Hand
	staged := []string{
		findID(t, hand, tiles.Blue, 4),
		findID(t, hand, tiles.Blue, 5),
		findID(t, hand, tiles.Blue, 6),
	}
	require.NoError(t, s.PlaySet("p1", staged, NewSet()))

	s.ForceEndTurn()

	snap := s.Snapshot()
	assert.Empty(t, snap.Board)
	assert.Len(t, snap.Players[0].Hand, tiles.DebugHandSize)
	assert.Equal(t, "p2", s.CurrentPlayer())
}

func TestTurnRotationSkipsAbandoned(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.AddPlayer("p3", "Carol"))
	require.NoError(t, s.Start(StartOptions{}))

	require.NoError(t, s.MarkAbandoned("p2"))
	require.NoError(t, s.EndTurn("p1"))
	assert.Equal(t, "p3", s.CurrentPlayer())
	require.NoError(t, s.EndTurn("p3"))
	assert.Equal(t, "p1", s.CurrentPlayer())
}

func TestAbandonCurrentPlayerAdvances(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{}))

	require.NoError(t, s.MarkAbandoned("p1"))
	assert.Equal(t, "p2", s.CurrentPlayer())

	require.NoError(t, s.MarkAbandoned("p2"))
	assert.Equal(t, StatusCompleted, s.Status())
	assert.Empty(t, s.Winner())
}

func TestPauseBlocksActions(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{}))

	require.NoError(t, s.Pause(PauseCurrentPlayerDisconnect, "p1"))
	assert.Equal(t, StatusPaused, s.Status())
	assert.Equal(t, RejectGamePaused, rejectionKind(t, s.EndTurn("p1")))

	// A further disconnect escalates the recorded reason in place.
	require.NoError(t, s.Pause(PauseMultipleDisconnects, "p2"))
	assert.Equal(t, PauseMultipleDisconnects, s.Snapshot().Pause.Reason)

	require.NoError(t, s.Resume())
	assert.Equal(t, StatusInProgress, s.Status())
	require.NoError(t, s.EndTurn("p1"))
}

func TestSubstituteBotKeepsSeat(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{}))

	handBefore := s.Snapshot().Players[1].Hand
	bot, err := s.SubstituteBot("p2")
	require.NoError(t, err)
	assert.True(t, bot.IsBot)
	assert.Equal(t, "p2", bot.ID)

	snap := s.Snapshot()
	assert.Equal(t, handBefore, snap.Players[1].Hand)
	assert.True(t, snap.Players[1].IsBot)
	assert.True(t, s.IsBot("p2"))
}

func TestSnapshotValidate(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{}))

	snap := s.Snapshot()
	require.NoError(t, snap.Validate())

	bad := snap
	bad.CurrentPlayerIndex = 9
	assert.Error(t, bad.Validate())

	bad = snap
	bad.Deck = snap.Deck[:len(snap.Deck)-1]
	assert.Error(t, bad.Validate(), "losing a tile breaks conservation")
}

func TestRestoreRoundTrip(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))
	require.NoError(t, s.AddPlayer("p2", "Bob"))
	require.NoError(t, s.Start(StartOptions{}))
	require.NoError(t, s.EndTurn("p1"))

	snap := s.Snapshot()
	restored, err := RestoreSession(snap, Hooks{})
	require.NoError(t, err)

	got := restored.Snapshot()
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Status, got.Status)
	assert.Equal(t, snap.CurrentPlayerIndex, got.CurrentPlayerIndex)
	assert.Equal(t, snap.Players, got.Players)
	assert.Equal(t, tiles.DeckSize, got.TileCount())
	assert.Equal(t, "p2", restored.CurrentPlayer())
}

func TestActionsBeforeStart(t *testing.T) {
	s := seededSession(t, Hooks{})
	require.NoError(t, s.AddPlayer("p1", "Alice"))

	err := s.EndTurn("p1")
	assert.Equal(t, RejectNotStarted, rejectionKind(t, err))
	var rej *Rejection
	assert.True(t, errors.As(err, &rej))
}
