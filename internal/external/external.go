// Package external declares the collaborator interfaces this module
// depends on but does not implement: move generation, word validation,
// and outbound notification (spec §6 "External interfaces"). Concrete
// tile-placement search, vocabulary lookup, and push delivery are out of
// scope per spec Non-goals; callers inject real implementations.
package external

import (
	"context"
	"log/slog"

	"github.com/mideind/explo/internal/store/model"
)

// BoardState is the minimal board/rack snapshot a MoveGenerator needs to
// propose a move; it does not model full board geometry (out of scope),
// only what a generator implementation needs to be handed at the call
// site.
type BoardState struct {
	GameID    string
	Locale    string
	BoardType string
	Rack      string
	TileCount int
}

// MoveGenerator proposes a move for a robot player on its turn.
type MoveGenerator interface {
	GenerateMove(ctx context.Context, state BoardState, robotLevel int) (model.Move, error)
}

// WordValidator checks vocabulary membership and board-legality of a
// placement; a manual-wordcheck ("Pro mode") game never calls this.
type WordValidator interface {
	IsValidWord(ctx context.Context, locale, word string) (bool, error)
	IsValidPlacement(ctx context.Context, locale string, coord, tiles string) (bool, error)
}

// Notifier delivers an event to interested external systems (push
// notification, websocket fanout, etc.).
type Notifier interface {
	Notify(ctx context.Context, userID string, event Event) error
}

// Event is one outbound notification fired at a well-defined point in the
// game/challenge lifecycle (spec §6: new move, game over, challenge
// issued/accepted/declined/retracted).
type Event struct {
	Kind    string // "move", "game_over", "challenge_issued", "challenge_accepted", "challenge_declined", "challenge_retracted"
	GameID  string
	Payload map[string]any
}

// NoopLog is a Notifier that logs every event via slog and never errors,
// shipped as the default adapter for tests and local wiring, matching
// spec §6's "this module provides a no-op logging Notifier".
type NoopLog struct {
	Logger *slog.Logger
}

// Notify logs the event at debug level and always succeeds.
func (n NoopLog) Notify(ctx context.Context, userID string, event Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "notify", "user_id", userID, "kind", event.Kind, "game_id", event.GameID)
	return nil
}
