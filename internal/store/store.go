// Package store declares the backend-agnostic persistence protocol: one
// repository interface per entity family, bundled into a Backend, plus
// the transaction/generateID/close contract every backend implements
// (spec §4.1). Two concrete backends satisfy this package's interfaces:
// internal/store/sqlstore (relational) and internal/store/docstore
// (document-store); application code only ever depends on this package.
package store

import (
	"context"
	"time"

	"github.com/mideind/explo/internal/store/model"
)

// Backend bundles one repository per entity family plus the per-request
// transaction/id-generation/lifecycle operations (spec §4.1).
type Backend interface {
	Users() UserRepository
	Elo() EloRepository
	Robots() RobotRepository
	Games() GameRepository
	Challenges() ChallengeRepository
	Favorites() FavoriteRepository
	Blocks() BlockRepository
	Reports() ReportRepository
	Chat() ChatRepository
	Zombies() ZombieRepository
	Stats() StatsRepository
	Ratings() RatingRepository
	Completions() CompletionRepository
	Promos() PromoRepository
	Transactions() TransactionRepository
	Submissions() SubmissionRepository
	Riddles() RiddleRepository
	Images() ImageRepository

	// Transaction runs fn in a nested transaction scope: a savepoint on
	// the relational backend, an optimistic-concurrency scope callers
	// opt into on the document-store backend (spec §4.1). On the
	// relational backend a failure inside fn rolls back only this nested
	// scope; the document-store backend runs fn directly and does not roll
	// back writes fn made before failing.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// GenerateID returns a fresh opaque identifier suitable for a new
	// entity of any kind.
	GenerateID() string

	// Commit finalizes the request-scoped unit of work. Called by the
	// session manager, not by application code directly.
	Commit(ctx context.Context) error

	// Rollback discards the request-scoped unit of work.
	Rollback(ctx context.Context) error

	// Close releases backend resources. Called by the session manager
	// after Commit/Rollback.
	Close() error
}

// UserRepository is the repository for the User entity family (spec §4.3).
type UserRepository interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByAccount(ctx context.Context, account string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByNickname(ctx context.Context, nickname string) (*model.User, error)
	SearchByPrefix(ctx context.Context, prefix string, locale string, limit int) ([]model.User, error)
	SimilarElo(ctx context.Context, targetElo int, locale string, maxLen int) ([]model.User, error)
	Update(ctx context.Context, id string, upd model.UserUpdate) error
	Delete(ctx context.Context, id string) error
}

// EloRepository is the repository for EloRating entities (spec §4.7).
type EloRepository interface {
	Get(ctx context.Context, userID, locale string) (*model.EloRating, error)
	Upsert(ctx context.Context, r model.EloRating) error
	DeleteForUser(ctx context.Context, userID string) error
}

// RobotRepository is the repository for RobotElo entities.
type RobotRepository interface {
	Get(ctx context.Context, locale string, level int) (*model.RobotElo, error)
	Upsert(ctx context.Context, r model.RobotElo) error
}

// GameRepository is the repository for Game entities (spec §4.5).
type GameRepository interface {
	Create(ctx context.Context, g model.Game) (model.Game, error)
	GetByID(ctx context.Context, id string) (*model.Game, error)
	Update(ctx context.Context, id string, upd model.GameUpdate) error
	ListLive(ctx context.Context, userID string) ([]model.LiveGameInfo, error)
	ListFinished(ctx context.Context, userID string, versus *string, limit int) ([]model.FinishedGameInfo, error)
	// ListCompletedBetween iterates games with from < tsLastMove <= to and
	// over == true, in timestamp order, for the nightly stats pipeline.
	ListCompletedBetween(ctx context.Context, from, to time.Time) ([]model.Game, error)
	NullifyPlayer(ctx context.Context, userID string) error
}

// ChallengeRepository is the repository for Challenge entities (spec §4.4).
type ChallengeRepository interface {
	Issue(ctx context.Context, c model.Challenge) (model.Challenge, error)
	Delete(ctx context.Context, src, dst, key string) (*model.Challenge, error)
	ListIssued(ctx context.Context, userID string) ([]model.Challenge, error)
	ListReceived(ctx context.Context, userID string) ([]model.Challenge, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// FavoriteRepository is the repository for Favorite edges (spec §4.3).
type FavoriteRepository interface {
	Add(ctx context.Context, src, dst string) (bool, error)
	Remove(ctx context.Context, src, dst string) (bool, error)
	ListFavored(ctx context.Context, src string, limit int) ([]string, error)
	ListFavoredBy(ctx context.Context, dst string, limit int) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// BlockRepository is the repository for Block edges (spec §4.3, §4.6).
type BlockRepository interface {
	Block(ctx context.Context, blocker, blocked string) (bool, error)
	Unblock(ctx context.Context, blocker, blocked string) (bool, error)
	IsBlocking(ctx context.Context, blocker, blocked string) (bool, error)
	ListBlocked(ctx context.Context, blocker string, limit int) ([]string, error)
	ListBlockedBy(ctx context.Context, blocked string, limit int) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// ReportRepository is the repository for Report entities (spec §4.3).
type ReportRepository interface {
	Add(ctx context.Context, r model.Report) (model.Report, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// ChatRepository is the repository for chat messages (spec §4.6).
type ChatRepository interface {
	Add(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error)
	ListConversation(ctx context.Context, channel string, maxLen int) ([]model.ChatMessage, error)
	CheckUnread(ctx context.Context, channel, userID string) (bool, error)
	History(ctx context.Context, forUser string, maxLen int, blocked map[string]bool) ([]model.ChatHistoryEntry, error)
	DeleteAllFromUser(ctx context.Context, userID string) error
}

// ZombieRepository is the repository for Zombie entries (spec §4.5).
type ZombieRepository interface {
	Add(ctx context.Context, gameID, userID string) error
	Delete(ctx context.Context, gameID, userID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	ListGames(ctx context.Context, userID string) ([]model.ZombieGameInfo, error)
}

// StatsRepository is the repository for StatsSnapshot entities (spec §4.8).
type StatsRepository interface {
	// MostRecentAtOrBefore returns the most recent snapshot for userID
	// with Timestamp <= at, or nil if none exists.
	MostRecentAtOrBefore(ctx context.Context, userID string, at time.Time) (*model.StatsSnapshot, error)
	DeleteAt(ctx context.Context, at time.Time) error
	Put(ctx context.Context, s model.StatsSnapshot) error
	DeleteAllForUser(ctx context.Context, userID string) error
	// TopByElo returns the top n users by the given Elo kind ("all",
	// "human", "manual") as of the nearest snapshot <= at.
	TopByElo(ctx context.Context, kind string, at time.Time, n int) ([]model.StatsSnapshot, error)
}

// RatingRepository is the repository for RatingRow entities (spec §4.8).
type RatingRepository interface {
	ReplaceAll(ctx context.Context, rows []model.RatingRow) error
	List(ctx context.Context, kind string) ([]model.RatingRow, error)
}

// CompletionRepository is the repository for Completion log entries (spec §4.8).
type CompletionRepository interface {
	Add(ctx context.Context, c model.Completion) (model.Completion, error)
	Latest(ctx context.Context, procType string) (*model.Completion, error)
}

// PromoRepository is the repository for Promo entities.
type PromoRepository interface {
	HasBeenShown(ctx context.Context, userID, promo string) (bool, error)
	RecordShown(ctx context.Context, userID, promo string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// TransactionRepository is the repository for Transaction ledger entries.
type TransactionRepository interface {
	Add(ctx context.Context, t model.Transaction) (model.Transaction, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// SubmissionRepository is the repository for riddle Submission entities.
type SubmissionRepository interface {
	Add(ctx context.Context, s model.Submission) (model.Submission, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// RiddleRepository is the repository for Riddle entities.
type RiddleRepository interface {
	GetByLocaleDate(ctx context.Context, locale, date string) (*model.Riddle, error)
	Put(ctx context.Context, r model.Riddle) error
}

// ImageRepository is the repository for out-of-line Image blobs.
type ImageRepository interface {
	Get(ctx context.Context, userID string) (*model.Image, error)
	Put(ctx context.Context, img model.Image) error
	DeleteAllForUser(ctx context.Context, userID string) error
}
