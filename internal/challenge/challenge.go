// Package challenge implements the challenge service (spec §4.4):
// issuing, retracting, accepting, and declining a challenge between two
// users. Grounded on
// _examples/original_source/skrafldb.py's ChallengeModel.
package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/mideind/explo/internal/external"
	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/errkind"
	"github.com/mideind/explo/internal/store/model"
)

// Service is the challenge service.
type Service struct {
	backend  store.Backend
	notifier external.Notifier
}

// NewService returns a challenge service over backend, notifying via
// notifier on issue/accept/decline/retract.
func NewService(backend store.Backend, notifier external.Notifier) *Service {
	if notifier == nil {
		notifier = external.NoopLog{}
	}
	return &Service{backend: backend, notifier: notifier}
}

// Issue records a challenge from src to dst with the given game
// preferences, refusing if src has blocked dst or vice versa, or if src
// has already issued dst a challenge (ChallengeModel.has_relation).
func (s *Service) Issue(ctx context.Context, src, dst string, prefs model.GamePrefs) (model.Challenge, error) {
	if src == dst {
		return model.Challenge{}, fmt.Errorf("challenge: %w: cannot challenge self", errkind.Forbidden)
	}
	blockedEither, err := s.eitherBlocks(ctx, src, dst)
	if err != nil {
		return model.Challenge{}, err
	}
	if blockedEither {
		return model.Challenge{}, fmt.Errorf("challenge: %w: a block exists between these users", errkind.Forbidden)
	}

	existing, err := s.backend.Challenges().ListIssued(ctx, src)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("challenge: listing issued: %w", err)
	}
	for _, c := range existing {
		if c.DestUserID == dst {
			return model.Challenge{}, fmt.Errorf("challenge: %w: already challenged", errkind.Conflict)
		}
	}

	c := model.Challenge{
		Key:        s.backend.GenerateID(),
		SrcUserID:  src,
		DestUserID: dst,
		Prefs:      prefs,
		Timestamp:  time.Now().UTC(),
	}
	created, err := s.backend.Challenges().Issue(ctx, c)
	if err != nil {
		return model.Challenge{}, err
	}
	s.notify(ctx, dst, "challenge_issued", "")
	return created, nil
}

// Retract withdraws a challenge previously issued by src to dst
// (ChallengeModel.del_relation).
func (s *Service) Retract(ctx context.Context, src, dst string) error {
	c, err := s.backend.Challenges().Delete(ctx, src, dst, "")
	if err != nil {
		return fmt.Errorf("challenge: retracting: %w", err)
	}
	if c == nil {
		return fmt.Errorf("challenge: %w: no such challenge", errkind.NotFound)
	}
	s.notify(ctx, src, "challenge_retracted", "")
	return nil
}

// Accept deletes the challenge (consuming it) and returns its recorded
// preferences, to be handed to the game service to start a new game.
// Accepting is the dst user's action on a challenge issued by src.
func (s *Service) Accept(ctx context.Context, src, dst string) (model.GamePrefs, error) {
	c, err := s.backend.Challenges().Delete(ctx, src, dst, "")
	if err != nil {
		return model.GamePrefs{}, fmt.Errorf("challenge: accepting: %w", err)
	}
	if c == nil {
		return model.GamePrefs{}, fmt.Errorf("challenge: %w: no such challenge", errkind.NotFound)
	}
	s.notify(ctx, src, "challenge_accepted", "")
	return c.Prefs, nil
}

// Decline deletes the challenge without starting a game.
func (s *Service) Decline(ctx context.Context, src, dst string) error {
	c, err := s.backend.Challenges().Delete(ctx, src, dst, "")
	if err != nil {
		return fmt.Errorf("challenge: declining: %w", err)
	}
	if c == nil {
		return fmt.Errorf("challenge: %w: no such challenge", errkind.NotFound)
	}
	s.notify(ctx, src, "challenge_declined", "")
	return nil
}

// ListIssued returns the challenges userID has issued, oldest first
// (ChallengeModel.list_issued ordering).
func (s *Service) ListIssued(ctx context.Context, userID string) ([]model.Challenge, error) {
	return s.backend.Challenges().ListIssued(ctx, userID)
}

// ListReceived returns the challenges issued to userID.
func (s *Service) ListReceived(ctx context.Context, userID string) ([]model.Challenge, error) {
	return s.backend.Challenges().ListReceived(ctx, userID)
}

func (s *Service) eitherBlocks(ctx context.Context, a, b string) (bool, error) {
	aBlocksB, err := s.backend.Blocks().IsBlocking(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("challenge: checking block: %w", err)
	}
	if aBlocksB {
		return true, nil
	}
	bBlocksA, err := s.backend.Blocks().IsBlocking(ctx, b, a)
	if err != nil {
		return false, fmt.Errorf("challenge: checking block: %w", err)
	}
	return bBlocksA, nil
}

func (s *Service) notify(ctx context.Context, userID, kind, gameID string) {
	_ = s.notifier.Notify(ctx, userID, external.Event{Kind: kind, GameID: gameID})
}
