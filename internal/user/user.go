// Package user implements the user service (spec §4.3): account
// creation, the five lookup modes, profile updates, similar-Elo
// matching, favorites/blocks/reports, and cascading delete. Grounded on
// _examples/original_source/skrafldb.py's UserModel and FavoriteModel.
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/errkind"
	"github.com/mideind/explo/internal/store/model"
)

// MaxFavorites is the maximum number of favorites a user can have,
// matching UserModel.MAX_FAVORITES.
const MaxFavorites = 100

// Service is the user service.
type Service struct {
	backend store.Backend
}

// NewService returns a user service over backend.
func NewService(backend store.Backend) *Service {
	return &Service{backend: backend}
}

// Create registers a new user account. nickname defaults to the account
// identifier's display form when empty, matching UserModel.create's
// nick_lc seeding. prefs is merged over the documented defaults (nil
// means "no overrides"); the returned User carries the effective
// preference map (spec §4.3 "Create").
func (s *Service) Create(ctx context.Context, id, account, email, nickname, image string, prefs *model.UserPrefs, locale string) (model.User, error) {
	if nickname == "" {
		nickname = account
	}
	effectivePrefs := model.DefaultUserPrefs()
	if prefs != nil {
		effectivePrefs = mergePrefs(effectivePrefs, *prefs)
	}
	u := model.User{
		ID:          id,
		Account:     account,
		Email:       email,
		Nickname:    nickname,
		NickLower:   strings.ToLower(nickname),
		Image:       image,
		FullNameLow: strings.ToLower(effectivePrefs.FullName),
		Locale:      locale,
		Prefs:       effectivePrefs,
		Ready:       true,
		ReadyTimed:  true,
		Timestamp:   time.Now().UTC(),
		LastLogin:   time.Now().UTC(),
	}
	return s.backend.Users().Create(ctx, u)
}

// mergePrefs overlays provided onto defaults: a non-empty string or a
// true bool in provided overrides the default; zero-value fields leave
// the default standing, since UserPrefs has no way to distinguish
// "explicitly false" from "not provided".
func mergePrefs(defaults, provided model.UserPrefs) model.UserPrefs {
	out := defaults
	if provided.FullName != "" {
		out.FullName = provided.FullName
	}
	if provided.Locale != "" {
		out.Locale = provided.Locale
	}
	out.Beginner = out.Beginner || provided.Beginner
	out.Fairplay = out.Fairplay || provided.Fairplay
	out.Ready = out.Ready || provided.Ready
	out.ReadyTimed = out.ReadyTimed || provided.ReadyTimed
	out.Fanfare = out.Fanfare || provided.Fanfare
	out.Audio = out.Audio || provided.Audio
	out.Friend = out.Friend || provided.Friend
	out.HasPaid = out.HasPaid || provided.HasPaid
	out.ChatDisabled = out.ChatDisabled || provided.ChatDisabled
	return out
}

// ByID fetches a user by primary id.
func (s *Service) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.backend.Users().GetByID(ctx, id)
}

// ByAccount fetches a user by external account identifier (spec §4.3
// lookup mode 2).
func (s *Service) ByAccount(ctx context.Context, account string) (*model.User, error) {
	return s.backend.Users().GetByAccount(ctx, account)
}

// ByEmail fetches a user by email address (lookup mode 3).
func (s *Service) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.backend.Users().GetByEmail(ctx, email)
}

// ByNickname fetches a user by exact nickname (lookup mode 4).
func (s *Service) ByNickname(ctx context.Context, nickname string) (*model.User, error) {
	return s.backend.Users().GetByNickname(ctx, nickname)
}

// SearchByPrefix lists users whose nickname or full name starts with
// prefix, case-insensitively, up to limit results (lookup mode 5).
// Grounded on UserModel.list's nickname-prefix/full-name-prefix queries.
func (s *Service) SearchByPrefix(ctx context.Context, prefix, locale string, limit int) ([]model.User, error) {
	return s.backend.Users().SearchByPrefix(ctx, strings.ToLower(prefix), locale, limit)
}

// SimilarElo returns up to maxLen users with human Elo ratings close to
// targetElo, grounded on UserModel.list_similar_elo: half drawn from
// just below targetElo (descending), half from at-or-above (ascending),
// among active users of locale. Users are not filtered by games played.
func (s *Service) SimilarElo(ctx context.Context, targetElo int, locale string, maxLen int) ([]model.User, error) {
	if maxLen <= 0 {
		return nil, nil
	}
	return s.backend.Users().SimilarElo(ctx, targetElo, locale, maxLen)
}

// Update applies a sparse field update to a user's profile.
func (s *Service) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	return s.backend.Users().Update(ctx, id, upd)
}

// Delete removes a user and cascades the delete across every entity
// family that references the user id directly (spec §4.3 "Delete
// cascades across Favorite/Block/Report/Challenge/Zombie/chat messages/
// Promo/Transaction/Submission rows, and nullifies the user's seat in any
// Game it still occupies without deleting the game").
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.backend.Transaction(ctx, func(ctx context.Context) error {
		if err := s.backend.Favorites().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting favorites: %w", err)
		}
		if err := s.backend.Blocks().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting blocks: %w", err)
		}
		if err := s.backend.Reports().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting reports: %w", err)
		}
		if err := s.backend.Challenges().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting challenges: %w", err)
		}
		if err := s.backend.Zombies().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting zombie entries: %w", err)
		}
		if err := s.backend.Chat().DeleteAllFromUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting chat messages: %w", err)
		}
		if err := s.backend.Promos().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting promos: %w", err)
		}
		if err := s.backend.Transactions().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting transactions: %w", err)
		}
		if err := s.backend.Submissions().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting submissions: %w", err)
		}
		if err := s.backend.Images().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting image: %w", err)
		}
		if err := s.backend.Elo().DeleteForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting elo ratings: %w", err)
		}
		if err := s.backend.Stats().DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("user: deleting stats snapshots: %w", err)
		}
		if err := s.backend.Games().NullifyPlayer(ctx, id); err != nil {
			return fmt.Errorf("user: nullifying games: %w", err)
		}
		if err := s.backend.Users().Delete(ctx, id); err != nil {
			return fmt.Errorf("user: deleting user row: %w", err)
		}
		return nil
	})
}

// AddFavorite marks dst as a favorite of src, refusing once src already
// has MaxFavorites entries, matching UserModel.MAX_FAVORITES.
func (s *Service) AddFavorite(ctx context.Context, src, dst string) error {
	current, err := s.backend.Favorites().ListFavored(ctx, src, MaxFavorites+1)
	if err != nil {
		return fmt.Errorf("user: listing favorites: %w", err)
	}
	if len(current) >= MaxFavorites {
		return fmt.Errorf("user: %w: favorite list full", errkind.Forbidden)
	}
	_, err = s.backend.Favorites().Add(ctx, src, dst)
	return err
}

// RemoveFavorite removes a favorite relation.
func (s *Service) RemoveFavorite(ctx context.Context, src, dst string) error {
	_, err := s.backend.Favorites().Remove(ctx, src, dst)
	return err
}

// Block records that blocker no longer wants to be matched with or
// challenged by blocked (spec §4.6).
func (s *Service) Block(ctx context.Context, blocker, blocked string) error {
	_, err := s.backend.Blocks().Block(ctx, blocker, blocked)
	return err
}

// Unblock removes a block relation.
func (s *Service) Unblock(ctx context.Context, blocker, blocked string) error {
	_, err := s.backend.Blocks().Unblock(ctx, blocker, blocked)
	return err
}

// IsBlocking reports whether blocker has blocked blocked.
func (s *Service) IsBlocking(ctx context.Context, blocker, blocked string) (bool, error) {
	return s.backend.Blocks().IsBlocking(ctx, blocker, blocked)
}

// Report files an abuse report against a user.
func (s *Service) Report(ctx context.Context, reporterID, reportedID string, code int, text string) (model.Report, error) {
	if reporterID == reportedID {
		return model.Report{}, fmt.Errorf("user: %w: cannot report self", errkind.Forbidden)
	}
	r := model.Report{
		ID:         s.backend.GenerateID(),
		ReporterID: reporterID,
		ReportedID: reportedID,
		Code:       code,
		Text:       text,
		Timestamp:  time.Now().UTC(),
	}
	return s.backend.Reports().Add(ctx, r)
}
