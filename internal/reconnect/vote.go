package reconnect

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
	"github.com/awpearlm/rummikub-backend-sub007/internal/timer"
)

var (
	// ErrNoVote rejects a ballot when no continuation vote is open.
	ErrNoVote = errors.New("reconnect: no continuation vote in progress")

	// ErrAlreadyVoted enforces one ballot per connected player.
	ErrAlreadyVoted = errors.New("reconnect: player already voted")

	// ErrNotEligible rejects ballots from players who are not connected.
	ErrNotEligible = errors.New("reconnect: only connected players may vote")
)

type voteState struct {
	target string // the player the decision is about
	votes  map[string]timer.Decision
	needed int
	cancel chan struct{}
}

// startVote opens a continuation vote among the connected players after
// a grace period expires. With nobody connected to vote, the game cannot
// meaningfully continue and ends: that is this implementation's
// deterministic default.
func (t *Tracker) startVote(targetPlayerID string) {
	t.mu.Lock()
	if t.vote != nil {
		// A vote is already running for another dropout; fold this player
		// into the same resolution rather than racing two votes.
		t.resolvedPending = append(t.resolvedPending, targetPlayerID)
		t.mu.Unlock()
		return
	}

	needed := 0
	for _, info := range t.conns {
		if info.State == StateConnected {
			needed++
		}
	}

	if needed == 0 {
		t.mu.Unlock()
		t.applyDecision(targetPlayerID, timer.DecisionEndGame)
		return
	}

	vs := &voteState{
		target: targetPlayerID,
		votes:  make(map[string]timer.Decision),
		needed: needed,
		cancel: make(chan struct{}),
	}
	t.vote = vs
	t.mu.Unlock()

	t.notify.VoteProgress(t.gameID, 0, needed)
	log.Info().
		Str("game_id", t.gameID).
		Str("player_id", targetPlayerID).
		Int("voters", needed).
		Msg("continuation vote opened")

	go t.watchVote(vs)
}

// SubmitVote records one connected player's ballot. The vote closes as
// soon as every eligible voter has spoken.
func (t *Tracker) SubmitVote(voterID string, decision timer.Decision) error {
	t.mu.Lock()
	vs := t.vote
	if vs == nil {
		t.mu.Unlock()
		return ErrNoVote
	}
	info, ok := t.conns[voterID]
	if !ok || info.State != StateConnected {
		t.mu.Unlock()
		return ErrNotEligible
	}
	if _, dup := vs.votes[voterID]; dup {
		t.mu.Unlock()
		return ErrAlreadyVoted
	}
	vs.votes[voterID] = decision
	received := len(vs.votes)
	complete := received >= vs.needed
	if complete {
		t.vote = nil
		close(vs.cancel)
	}
	t.mu.Unlock()

	t.notify.VoteProgress(t.gameID, received, vs.needed)
	log.Info().
		Str("game_id", t.gameID).
		Str("voter_id", voterID).
		Str("decision", string(decision)).
		Int("received", received).
		Int("needed", vs.needed).
		Msg("continuation vote received")

	if complete {
		t.applyDecision(vs.target, tally(vs.votes))
	}
	return nil
}

// watchVote enforces the voting timeout: plurality of whatever arrived,
// tie-broken toward the least disruptive option.
func (t *Tracker) watchVote(vs *voteState) {
	tm := t.clock.NewTimer(t.cfg.VoteTimeout)
	defer tm.Stop()

	select {
	case <-vs.cancel:
		return
	case <-tm.Chan():
	}

	t.mu.Lock()
	if t.vote != vs {
		t.mu.Unlock()
		return
	}
	t.vote = nil
	t.mu.Unlock()

	decision := tally(vs.votes)
	log.Info().
		Str("game_id", t.gameID).
		Str("decision", string(decision)).
		Int("ballots", len(vs.votes)).
		Msg("continuation vote timed out, adopting plurality")
	t.applyDecision(vs.target, decision)
}

// tally picks the plurality decision. Ties (including zero ballots)
// break deterministically toward skip_turn, then add_bot, then
// end_game, ordered least to most disruptive.
func tally(votes map[string]timer.Decision) timer.Decision {
	order := []timer.Decision{timer.DecisionSkipTurn, timer.DecisionAddBot, timer.DecisionEndGame}
	counts := map[timer.Decision]int{}
	for _, d := range votes {
		counts[d]++
	}
	best := timer.DecisionSkipTurn
	bestCount := -1
	for _, d := range order {
		if counts[d] > bestCount {
			best = d
			bestCount = counts[d]
		}
	}
	return best
}

// applyDecision carries out the continuation decision for the player who
// never came back.
func (t *Tracker) applyDecision(targetPlayerID string, decision timer.Decision) {
	t.mu.Lock()
	t.resolved[targetPlayerID] = true
	pending := t.resolvedPending
	t.resolvedPending = nil
	for _, id := range pending {
		t.resolved[id] = true
	}
	info := t.connLocked(targetPlayerID)
	t.mu.Unlock()

	log.Info().
		Str("game_id", t.gameID).
		Str("player_id", targetPlayerID).
		Str("decision", string(decision)).
		Msg("applying continuation decision")

	// The continuation decision reshapes the timer only when the absent
	// player held the turn. Otherwise the sitting current player keeps
	// their preserved remaining time.
	heldTurn := t.session.CurrentPlayer() == targetPlayerID

	switch decision {
	case timer.DecisionSkipTurn:
		t.mu.Lock()
		info.State = StateAbandoned
		t.mu.Unlock()
		if err := t.session.Resume(); err != nil {
			log.Warn().Err(err).Str("game_id", t.gameID).Msg("resume before skip")
		}
		t.notify.PauseChanged(t.gameID, false, "")
		if err := t.session.MarkAbandoned(targetPlayerID); err != nil {
			log.Error().Err(err).Str("game_id", t.gameID).Msg("mark abandoned")
		}
		if t.session.Status() == game.StatusInProgress {
			if heldTurn {
				if next := t.session.CurrentPlayer(); next != "" {
					if err := t.timers.HandleGracePeriodExpiration(t.gameID, decision, next); err != nil {
						log.Error().Err(err).Str("game_id", t.gameID).Msg("reset timer after skip")
					}
				}
			} else if err := t.timers.Resume(t.gameID); err != nil && !errors.Is(err, timer.ErrNoTimer) {
				log.Error().Err(err).Str("game_id", t.gameID).Msg("resume timer after skip")
			}
		}

	case timer.DecisionAddBot:
		bot, err := t.session.SubstituteBot(targetPlayerID)
		if err != nil {
			log.Error().Err(err).Str("game_id", t.gameID).Msg("substitute bot")
			return
		}
		if err := t.session.Resume(); err != nil {
			log.Warn().Err(err).Str("game_id", t.gameID).Msg("resume for bot")
		}
		t.notify.PauseChanged(t.gameID, false, "")
		if heldTurn {
			if err := t.timers.HandleGracePeriodExpiration(t.gameID, decision, bot.ID); err != nil && !errors.Is(err, timer.ErrNoTimer) {
				log.Error().Err(err).Str("game_id", t.gameID).Msg("continue timer for bot")
			}
		} else if err := t.timers.Resume(t.gameID); err != nil && !errors.Is(err, timer.ErrNoTimer) {
			log.Error().Err(err).Str("game_id", t.gameID).Msg("resume timer for bot")
		}

	case timer.DecisionEndGame:
		t.mu.Lock()
		info.State = StateAbandoned
		t.mu.Unlock()
		if err := t.timers.HandleGracePeriodExpiration(t.gameID, decision, ""); err != nil {
			log.Error().Err(err).Str("game_id", t.gameID).Msg("clear timer on end")
		}
		t.session.End()
		t.notify.PauseChanged(t.gameID, false, "")
	}

	t.notify.GracePeriodResolved(t.gameID, targetPlayerID, decision)

	// Other players whose grace periods were folded into this vote get
	// the same treatment, sequentially.
	for _, id := range pending {
		t.applyDecision(id, decision)
	}
}
