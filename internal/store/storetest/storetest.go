// Package storetest is a backend-agnostic conformance suite: Run exercises
// one store.Backend instance against the round-trip, idempotence, and
// ordering properties spec.md §8/§9 requires to hold "bit-for-bit" across
// both internal/store/sqlstore and internal/store/docstore. Grounded on
// the teacher's table-driven testify style (internal/model/*_test.go) and
// internal/chat/chat_test.go's scenario-based assertions in this module.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/model"
)

// NewBackend constructs a fresh, empty store.Backend for one subtest.
// Callers (sqlstore/docstore's conformance_test.go) supply a closure
// wiring their own testcontainer + Open/NewSession plumbing.
type NewBackend func(t *testing.T) store.Backend

// Run invokes every conformance subtest against b().
func Run(t *testing.T, newBackend NewBackend) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newBackend(t)) })
	t.Run("SimilarElo", func(t *testing.T) { testSimilarElo(t, newBackend(t)) })
	t.Run("GetByEmailLegacyOrdering", func(t *testing.T) { testGetByEmailLegacyOrdering(t, newBackend(t)) })
	t.Run("Favorites", func(t *testing.T) { testFavorites(t, newBackend(t)) })
	t.Run("Blocks", func(t *testing.T) { testBlocks(t, newBackend(t)) })
	t.Run("Challenges", func(t *testing.T) { testChallenges(t, newBackend(t)) })
	t.Run("ChatCheckUnread", func(t *testing.T) { testChatCheckUnread(t, newBackend(t)) })
	t.Run("Zombies", func(t *testing.T) { testZombies(t, newBackend(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newBackend(t)) })
	t.Run("Ratings", func(t *testing.T) { testRatings(t, newBackend(t)) })
	t.Run("Completions", func(t *testing.T) { testCompletions(t, newBackend(t)) })
	t.Run("Promos", func(t *testing.T) { testPromos(t, newBackend(t)) })
	t.Run("Transaction", func(t *testing.T) { testTransaction(t, newBackend(t)) })
}

func testUsers(t *testing.T, b store.Backend) {
	ctx := context.Background()
	u := model.User{
		ID:        b.GenerateID(),
		Account:   "auth0|conformance",
		Email:     "conformance@example.com",
		Nickname:  "Conformance",
		NickLower: "conformance",
		Locale:    "en_US",
		Prefs:     model.DefaultUserPrefs(),
		Timestamp: time.Now().UTC(),
	}
	created, err := b.Users().Create(ctx, u)
	require.NoError(t, err)
	require.Equal(t, u.ID, created.ID)

	byID, err := b.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.Equal(t, u.Nickname, byID.Nickname)

	byAccount, err := b.Users().GetByAccount(ctx, u.Account)
	require.NoError(t, err)
	require.NotNil(t, byAccount)
	require.Equal(t, u.ID, byAccount.ID)

	byEmail, err := b.Users().GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	require.Equal(t, u.ID, byEmail.ID)

	newNick := "Renamed"
	require.NoError(t, b.Users().Update(ctx, u.ID, model.UserUpdate{Nickname: &newNick}))
	updated, err := b.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, newNick, updated.Nickname)
	require.Equal(t, "renamed", updated.NickLower, "Update must recompute nickLower, not just nickname")

	byNewNick, err := b.Users().GetByNickname(ctx, newNick)
	require.NoError(t, err)
	require.NotNil(t, byNewNick)
	require.Equal(t, u.ID, byNewNick.ID)

	newPrefs := model.DefaultUserPrefs()
	newPrefs.FullName = "Jane Conformance"
	require.NoError(t, b.Users().Update(ctx, u.ID, model.UserUpdate{Prefs: &newPrefs}))
	updated, err = b.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "jane conformance", updated.FullNameLow, "Update must recompute fullNameLower from prefs.fullName")

	byPrefix, err := b.Users().SearchByPrefix(ctx, "jane", "en_US", 10)
	require.NoError(t, err)
	require.True(t, containsUserID(byPrefix, u.ID), "prefix search must match fullNameLower, not just nickLower")

	require.NoError(t, b.Users().Delete(ctx, u.ID))
	gone, err := b.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func containsUserID(users []model.User, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

// testGetByEmailLegacyOrdering pins down spec §4.3 lookup mode 3: prefer
// the newest active user with elo > 0 sharing the email, falling back to
// the newest user overall only when no such row exists.
func testGetByEmailLegacyOrdering(t *testing.T, b store.Backend) {
	ctx := context.Background()
	email := "shared@example.com"
	now := time.Now().UTC()

	stale := model.User{
		ID: b.GenerateID(), Account: "acct-stale", Email: email, Nickname: "stale", NickLower: "stale",
		Locale: "en_US", Elo: 1200, Prefs: model.DefaultUserPrefs(), Timestamp: now,
	}
	_, err := b.Users().Create(ctx, stale)
	require.NoError(t, err)

	inactiveNewer := model.User{
		ID: b.GenerateID(), Account: "acct-inactive", Email: email, Nickname: "inactive", NickLower: "inactive",
		Locale: "en_US", Elo: 1300, Inactive: true, Prefs: model.DefaultUserPrefs(), Timestamp: now.Add(time.Hour),
	}
	_, err = b.Users().Create(ctx, inactiveNewer)
	require.NoError(t, err)

	activeNewest := model.User{
		ID: b.GenerateID(), Account: "acct-active", Email: email, Nickname: "active", NickLower: "active",
		Locale: "en_US", Elo: 1400, Prefs: model.DefaultUserPrefs(), Timestamp: now.Add(2 * time.Hour),
	}
	_, err = b.Users().Create(ctx, activeNewest)
	require.NoError(t, err)

	got, err := b.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, activeNewest.ID, got.ID, "the newest active user with elo > 0 must win even though a newer inactive row exists")

	require.NoError(t, b.Users().Delete(ctx, activeNewest.ID))
	got, err = b.Users().GetByEmail(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, inactiveNewer.ID, got.ID, "with no active-and-rated candidate left, fall back to the newest row overall")
}

// testSimilarElo pins down the two-sided, monotonically non-decreasing
// neighborhood spec §4.3 requires: up to N/2 below the target
// (descending nearest-first, then reversed) concatenated with up to N/2
// at-or-above (ascending).
func testSimilarElo(t *testing.T, b store.Backend) {
	ctx := context.Background()
	locale := "en_US"
	elos := []int{900, 1000, 1100, 1200, 1300, 1400, 1500}
	var ids []string
	for i, elo := range elos {
		id := b.GenerateID()
		ids = append(ids, id)
		_, err := b.Users().Create(ctx, model.User{
			ID: id, Account: fmt.Sprintf("acct-similar-%d", i), Email: fmt.Sprintf("similar-%d@example.com", i),
			Nickname: fmt.Sprintf("similar-%d", i), NickLower: fmt.Sprintf("similar-%d", i),
			Locale: locale, HumanElo: elo, Prefs: model.DefaultUserPrefs(), Timestamp: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	got, err := b.Users().SimilarElo(ctx, 1200, locale, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1].HumanElo, got[i].HumanElo, "SimilarElo result must be non-decreasing in humanElo")
	}
	require.Less(t, got[1].HumanElo, 1200, "the first half must be strictly below the target")
	require.GreaterOrEqual(t, got[2].HumanElo, 1200, "the second half must be at or above the target")
}

func testFavorites(t *testing.T, b store.Backend) {
	ctx := context.Background()
	src, dst := "user-a", "user-b"

	added, err := b.Favorites().Add(ctx, src, dst)
	require.NoError(t, err)
	require.True(t, added, "first Add must report the edge as newly created")

	addedAgain, err := b.Favorites().Add(ctx, src, dst)
	require.NoError(t, err)
	require.False(t, addedAgain, "a repeat Add of the same edge must be a no-op, not a duplicate")

	favored, err := b.Favorites().ListFavored(ctx, src, 10)
	require.NoError(t, err)
	require.Contains(t, favored, dst)

	removed, err := b.Favorites().Remove(ctx, src, dst)
	require.NoError(t, err)
	require.True(t, removed)

	removedAgain, err := b.Favorites().Remove(ctx, src, dst)
	require.NoError(t, err)
	require.False(t, removedAgain, "removing an edge that no longer exists must report false, not error")
}

func testBlocks(t *testing.T, b store.Backend) {
	ctx := context.Background()
	blocker, blocked := "user-a", "user-c"

	ok, err := b.Blocks().Block(ctx, blocker, blocked)
	require.NoError(t, err)
	require.True(t, ok)

	isBlocking, err := b.Blocks().IsBlocking(ctx, blocker, blocked)
	require.NoError(t, err)
	require.True(t, isBlocking)

	ok, err = b.Blocks().Unblock(ctx, blocker, blocked)
	require.NoError(t, err)
	require.True(t, ok)

	isBlocking, err = b.Blocks().IsBlocking(ctx, blocker, blocked)
	require.NoError(t, err)
	require.False(t, isBlocking)
}

func testChallenges(t *testing.T, b store.Backend) {
	ctx := context.Background()
	c := model.Challenge{
		Key:        "key-1",
		SrcUserID:  "user-a",
		DestUserID: "user-b",
		Prefs:      model.GamePrefs{Duration: 10},
		Timestamp:  time.Now().UTC(),
	}
	_, err := b.Challenges().Issue(ctx, c)
	require.NoError(t, err)

	issued, err := b.Challenges().ListIssued(ctx, c.SrcUserID)
	require.NoError(t, err)
	require.Len(t, issued, 1)

	received, err := b.Challenges().ListReceived(ctx, c.DestUserID)
	require.NoError(t, err)
	require.Len(t, received, 1)

	deleted, err := b.Challenges().Delete(ctx, c.SrcUserID, c.DestUserID, c.Key)
	require.NoError(t, err)
	require.NotNil(t, deleted)

	issued, err = b.Challenges().ListIssued(ctx, c.SrcUserID)
	require.NoError(t, err)
	require.Empty(t, issued)
}

// testChatCheckUnread exercises the exact newest-to-oldest scan spec.md
// §4.6/§8 requires both backends to implement identically: a message is
// unread (for the asked-about userID) if the most recent event in the
// channel is either a real message from someone else, or a read marker
// (empty Msg) posted by someone else.
func testChatCheckUnread(t *testing.T, b store.Backend) {
	ctx := context.Background()
	channel, a, bUser := "direct:a:b", "user-a", "user-b"
	now := time.Now().UTC()

	unread, err := b.Chat().CheckUnread(ctx, channel, bUser)
	require.NoError(t, err)
	require.False(t, unread, "an empty channel has nothing unread")

	_, err = b.Chat().Add(ctx, model.ChatMessage{
		ID: b.GenerateID(), Channel: channel, UserID: a, Msg: "hello", Timestamp: now,
	})
	require.NoError(t, err)

	unread, err = b.Chat().CheckUnread(ctx, channel, bUser)
	require.NoError(t, err)
	require.True(t, unread, "B has an unread message from A")

	unread, err = b.Chat().CheckUnread(ctx, channel, a)
	require.NoError(t, err)
	require.False(t, unread, "A's own last message is not unread for A")

	// B posts a read marker (empty Msg) acknowledging the conversation.
	_, err = b.Chat().Add(ctx, model.ChatMessage{
		ID: b.GenerateID(), Channel: channel, UserID: bUser, Msg: "", Timestamp: now.Add(time.Second),
	})
	require.NoError(t, err)

	unread, err = b.Chat().CheckUnread(ctx, channel, bUser)
	require.NoError(t, err)
	require.False(t, unread, "B's own read marker means B has nothing unread")

	// Newest-to-oldest the channel is now [B:"" , A:"hello"]. B's marker
	// carries no information about A's read position, so the scan must
	// continue past it to A's own "hello" and find nothing unread for A.
	unread, err = b.Chat().CheckUnread(ctx, channel, a)
	require.NoError(t, err)
	require.False(t, unread, "an empty marker from someone else is skipped, not treated as unread")

	// A follow-up real message from A after B's marker must still be
	// reported unread for B.
	_, err = b.Chat().Add(ctx, model.ChatMessage{
		ID: b.GenerateID(), Channel: channel, UserID: a, Msg: "you there?", Timestamp: now.Add(2 * time.Second),
	})
	require.NoError(t, err)

	unread, err = b.Chat().CheckUnread(ctx, channel, bUser)
	require.NoError(t, err)
	require.True(t, unread, "B has an unread message from A posted after B's own marker")
}

func testZombies(t *testing.T, b store.Backend) {
	ctx := context.Background()
	gameID, userID := "game-1", "user-a"

	require.NoError(t, b.Zombies().Add(ctx, gameID, userID))

	games, err := b.Zombies().ListGames(ctx, userID)
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, gameID, games[0].GameID)

	require.NoError(t, b.Zombies().Delete(ctx, gameID, userID))
	games, err = b.Zombies().ListGames(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, games)
}

func testStats(t *testing.T, b store.Backend) {
	ctx := context.Background()
	userID := "user-a"
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	none, err := b.Stats().MostRecentAtOrBefore(ctx, userID, t0)
	require.NoError(t, err)
	require.Nil(t, none)

	snap := model.StatsSnapshot{UserID: userID, RobotLevel: -1, Timestamp: t0, Elo: 1200}
	require.NoError(t, b.Stats().Put(ctx, snap))

	got, err := b.Stats().MostRecentAtOrBefore(ctx, userID, t1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 1200, got.Elo)

	require.NoError(t, b.Stats().DeleteAt(ctx, t0))
	got, err = b.Stats().MostRecentAtOrBefore(ctx, userID, t1)
	require.NoError(t, err)
	require.Nil(t, got)
}

func testRatings(t *testing.T, b store.Backend) {
	ctx := context.Background()
	uid := "user-a"
	rows := []model.RatingRow{
		{Kind: "all", Rank: 1, UserID: &uid, RobotLevel: -1, Current: model.RatingSnapshot{Rank: 1, Elo: 1400}},
		model.SentinelRatingRow("all", 2),
	}
	require.NoError(t, b.Ratings().ReplaceAll(ctx, rows))

	got, err := b.Ratings().List(ctx, "all")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Rank)
	require.NotNil(t, got[0].UserID)
	require.Equal(t, uid, *got[0].UserID)
	require.True(t, got[1].IsSentinel())
}

func testCompletions(t *testing.T, b store.Backend) {
	ctx := context.Background()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := b.Completions().Add(ctx, model.Completion{
		ID: b.GenerateID(), ProcType: "stats", TsFrom: from, TsTo: to, Success: true, Timestamp: to,
	})
	require.NoError(t, err)

	latest, err := b.Completions().Latest(ctx, "stats")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.True(t, latest.Success)
	require.Equal(t, to, latest.TsTo.UTC())
}

func testPromos(t *testing.T, b store.Backend) {
	ctx := context.Background()
	userID, promo := "user-a", "welcome-bonus"

	shown, err := b.Promos().HasBeenShown(ctx, userID, promo)
	require.NoError(t, err)
	require.False(t, shown)

	require.NoError(t, b.Promos().RecordShown(ctx, userID, promo))
	require.NoError(t, b.Promos().RecordShown(ctx, userID, promo), "recording the same promo twice must stay idempotent")

	shown, err = b.Promos().HasBeenShown(ctx, userID, promo)
	require.NoError(t, err)
	require.True(t, shown)
}

// testTransaction only asserts the contract every backend must honor: fn
// runs once and its error propagates. It does not assert nested-scope
// rollback behavior, since that differs by design between sqlstore's
// savepoint and docstore's optimistic-concurrency pass-through (spec §4.1).
func testTransaction(t *testing.T, b store.Backend) {
	ctx := context.Background()
	called := false
	err := b.Transaction(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)

	txErr := b.Transaction(ctx, func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	require.ErrorIs(t, txErr, context.DeadlineExceeded)
}
