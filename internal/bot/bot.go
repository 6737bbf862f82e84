// Package bot automates seats: bots added to fill a lobby and bots
// substituted for abandoned players both run the same greedy strategy.
package bot

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
	"github.com/awpearlm/rummikub-backend-sub007/internal/rules"
	"github.com/awpearlm/rummikub-backend-sub007/internal/tiles"
)

// TakeTurn plays one full bot turn: lay down whatever complete sets the
// hand holds (respecting the initial-play threshold), otherwise draw.
// Jokers are hoarded, not spent; it is a deliberately simple strategy.
func TakeTurn(s *game.Session, botID string) {
	snap := s.Snapshot()
	var hand []tiles.Tile
	played := false
	for _, p := range snap.Players {
		if p.ID == botID {
			hand = p.Hand
			played = p.HasPlayedInitial
			break
		}
	}
	if hand == nil {
		log.Warn().Str("game_id", snap.ID).Str("bot_id", botID).Msg("bot not seated")
		return
	}

	sets := findSets(hand)

	if !played {
		total := 0
		for _, set := range sets {
			total += rules.SetValue(set)
		}
		if total < rules.InitialPlayThreshold {
			if _, err := s.Draw(botID); err != nil {
				log.Warn().Err(err).Str("bot_id", botID).Msg("bot draw failed")
			}
			return
		}
	}

	laid := 0
	for _, set := range sets {
		ids := make([]string, len(set))
		for i, t := range set {
			ids[i] = t.ID.String()
		}
		if err := s.PlaySet(botID, ids, game.NewSet()); err != nil {
			log.Warn().Err(err).Str("bot_id", botID).Msg("bot play rejected")
			continue
		}
		laid++
	}

	if s.Status() != game.StatusInProgress || s.CurrentPlayer() != botID {
		// Won, or the game ended out from under us.
		return
	}
	if laid == 0 {
		if _, err := s.Draw(botID); err != nil {
			log.Warn().Err(err).Str("bot_id", botID).Msg("bot draw failed")
		}
		return
	}
	if err := s.EndTurn(botID); err != nil {
		// Below-threshold staging slipped through; take everything back.
		if _, drawErr := s.Draw(botID); drawErr != nil {
			log.Warn().Err(drawErr).Str("bot_id", botID).Msg("bot recovery draw failed")
		}
	}
}

// findSets greedily extracts disjoint complete sets from the hand: runs
// first (they are harder to re-form), then groups.
func findSets(hand []tiles.Tile) [][]tiles.Tile {
	used := make(map[string]bool)
	var out [][]tiles.Tile

	// Runs: per color, walk sorted distinct numbers for stretches of 3+.
	byColor := make(map[tiles.Color][]tiles.Tile)
	for _, t := range hand {
		if !t.Joker {
			byColor[t.Color] = append(byColor[t.Color], t)
		}
	}
	for _, ts := range byColor {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Number < ts[j].Number })
		var run []tiles.Tile
		flush := func() {
			if len(run) >= rules.MinSetSize {
				for _, t := range run {
					used[t.ID.String()] = true
				}
				out = append(out, append([]tiles.Tile(nil), run...))
			}
			run = nil
		}
		for _, t := range ts {
			if used[t.ID.String()] {
				continue
			}
			if len(run) > 0 {
				last := run[len(run)-1].Number
				if t.Number == last {
					continue
				}
				if t.Number != last+1 {
					flush()
				}
			}
			run = append(run, t)
		}
		flush()
	}

	// Groups: per number, one tile of each distinct color.
	byNumber := make(map[int][]tiles.Tile)
	for _, t := range hand {
		if !t.Joker && !used[t.ID.String()] {
			byNumber[t.Number] = append(byNumber[t.Number], t)
		}
	}
	for _, ts := range byNumber {
		seen := make(map[tiles.Color]bool)
		var grp []tiles.Tile
		for _, t := range ts {
			if !seen[t.Color] {
				seen[t.Color] = true
				grp = append(grp, t)
			}
		}
		if len(grp) >= rules.MinSetSize {
			for _, t := range grp {
				used[t.ID.String()] = true
			}
			out = append(out, grp)
		}
	}
	return out
}
