package reconnect

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// FailureMode names every way this subsystem is known to fail.
type FailureMode string

const (
	FailGameNotFound       FailureMode = "game_not_found"
	FailPlayerNotInGame    FailureMode = "player_not_in_game"
	FailInvalidState       FailureMode = "invalid_state"
	FailRestoreFailed      FailureMode = "state_restore_failed"
	FailNetworkError       FailureMode = "network_error"
	FailTimerDesync        FailureMode = "timer_desync"
	FailGraceInternal      FailureMode = "grace_period_error"
	FailStoreUnavailable   FailureMode = "store_unavailable"
	FailDisconnectOverload FailureMode = "concurrent_disconnect_overload"
	FailMobileFlaky        FailureMode = "mobile_connection_flaky"
)

// Action is one remedial step a strategy may try.
type Action string

const (
	ActionRetry             Action = "retry"
	ActionResyncTimer       Action = "resync_timer"
	ActionRestartGrace      Action = "restart_grace_period"
	ActionReloadFromStore   Action = "reload_from_store"
	ActionDegradeMemoryOnly Action = "degrade_memory_only"
	ActionRedirectLobby     Action = "redirect_lobby"
	ActionCreateNewGame     Action = "create_new_game"
	ActionEndGame           Action = "end_game"
	ActionManualRefresh     Action = "manual_refresh"
)

// Strategy is an ordered list of remedial actions for one failure mode,
// tried in sequence until one succeeds, retryable a bounded number of
// times before the terminal action is forced. The terminal action is
// never retried.
type Strategy struct {
	Steps      []Action
	MaxRetries int
	Terminal   Action
}

// strategies is the full failure-mode table. Terminal actions always
// land the player somewhere playable: back in the lobby, in a fresh
// game, or out of a dead one.
var strategies = map[FailureMode]Strategy{
	FailGameNotFound: {
		Steps:      []Action{ActionReloadFromStore},
		MaxRetries: 2,
		Terminal:   ActionRedirectLobby,
	},
	FailPlayerNotInGame: {
		Steps:      []Action{ActionRetry},
		MaxRetries: 1,
		Terminal:   ActionRedirectLobby,
	},
	FailInvalidState: {
		Steps:      []Action{ActionReloadFromStore, ActionResyncTimer},
		MaxRetries: 2,
		Terminal:   ActionCreateNewGame,
	},
	FailRestoreFailed: {
		Steps:      []Action{ActionRetry, ActionReloadFromStore},
		MaxRetries: 3,
		Terminal:   ActionRedirectLobby,
	},
	FailNetworkError: {
		Steps:      []Action{ActionRetry, ActionRestartGrace},
		MaxRetries: 3,
		Terminal:   ActionRedirectLobby,
	},
	FailTimerDesync: {
		Steps:      []Action{ActionResyncTimer},
		MaxRetries: 2,
		Terminal:   ActionEndGame,
	},
	FailGraceInternal: {
		Steps:      []Action{ActionRestartGrace, ActionResyncTimer},
		MaxRetries: 2,
		Terminal:   ActionEndGame,
	},
	FailStoreUnavailable: {
		Steps:      []Action{ActionRetry, ActionDegradeMemoryOnly},
		MaxRetries: 3,
		Terminal:   ActionDegradeMemoryOnly,
	},
	FailDisconnectOverload: {
		Steps:      []Action{ActionRetry},
		MaxRetries: 2,
		Terminal:   ActionEndGame,
	},
	FailMobileFlaky: {
		Steps:      []Action{ActionRetry, ActionRestartGrace},
		MaxRetries: 4,
		Terminal:   ActionRedirectLobby,
	},
}

// StrategyFor looks up the strategy table.
func StrategyFor(mode FailureMode) (Strategy, bool) {
	s, ok := strategies[mode]
	return s, ok
}

// Fallbacks executes strategies and tracks per-key retry budgets. A key
// is typically "gameID/playerID" so one player's flaky phone does not
// consume another's budget.
type Fallbacks struct {
	mu       sync.Mutex
	attempts map[string]int
}

// NewFallbacks creates an executor with empty budgets.
func NewFallbacks() *Fallbacks {
	return &Fallbacks{attempts: make(map[string]int)}
}

// Execute runs the strategy for the failure mode: each step in order
// until one succeeds. Once the retry budget for (mode, key) is spent the
// terminal action is forced. An error thrown by the terminal action
// itself is the one place this machinery stops trying: it is logged and
// ActionManualRefresh is surfaced, never another loop.
func (f *Fallbacks) Execute(mode FailureMode, key string, try func(Action) error) (Action, error) {
	strat, ok := strategies[mode]
	if !ok {
		return ActionManualRefresh, fmt.Errorf("reconnect: no strategy for failure mode %q", mode)
	}

	budgetKey := string(mode) + "/" + key
	f.mu.Lock()
	f.attempts[budgetKey]++
	attempt := f.attempts[budgetKey]
	f.mu.Unlock()

	if attempt > strat.MaxRetries {
		log.Warn().
			Str("mode", string(mode)).
			Str("key", key).
			Int("attempt", attempt).
			Str("terminal", string(strat.Terminal)).
			Msg("retry budget exhausted, forcing terminal fallback")
		if err := try(strat.Terminal); err != nil {
			log.Error().
				Err(err).
				Str("mode", string(mode)).
				Str("key", key).
				Msg("terminal fallback failed; surfacing manual refresh")
			return ActionManualRefresh, nil
		}
		return strat.Terminal, nil
	}

	var lastErr error
	for _, step := range strat.Steps {
		if err := try(step); err != nil {
			log.Warn().
				Err(err).
				Str("mode", string(mode)).
				Str("action", string(step)).
				Int("attempt", attempt).
				Msg("fallback step failed")
			lastErr = err
			continue
		}
		f.mu.Lock()
		delete(f.attempts, budgetKey)
		f.mu.Unlock()
		return step, nil
	}
	return "", fmt.Errorf("reconnect: all fallback steps failed for %s: %w", mode, lastErr)
}

// Reset clears the retry budget for a key, e.g. after a clean reconnect.
func (f *Fallbacks) Reset(mode FailureMode, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attempts, string(mode)+"/"+key)
}
