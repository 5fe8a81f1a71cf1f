package model

import "time"

// Triad groups the all/human/manual variant of a counter, matching the
// repeated all/human/manual field triples in spec §3 "Stats snapshot".
type Triad struct {
	All    int
	Human  int
	Manual int
}

// StatsSnapshot holds one user's career totals as of a snapshot boundary
// (spec §3 "Stats snapshot"). Append-only: a new boundary never mutates
// an existing snapshot, it is deleted and rewritten (spec §4.8).
type StatsSnapshot struct {
	UserID     string
	RobotLevel int
	Timestamp  time.Time

	Games Triad
	Wins  Triad
	Losses Triad

	ScoreFor     Triad
	ScoreAgainst Triad

	Elo       int
	HumanElo  int
	ManualElo int
}

// RatingSnapshot is one of the four timestamps (now, yesterday, week ago,
// month ago) inlined on a RatingRow (spec §3, §4.2 "ratings history
// columns... are inlined").
type RatingSnapshot struct {
	Rank         int
	Games        int
	Elo          int
	Score        int
	ScoreAgainst int
	Wins         int
	Losses       int
}

// RatingRow is one precomputed ranking-table row (spec §3 "RatingRow").
// Kind is one of "all", "human", "manual"; Rank is 1..100. Absent users
// are represented by sentinel rows (UserID nil, RobotLevel -1, Games -1).
type RatingRow struct {
	Kind       string
	Rank       int
	UserID     *string
	RobotLevel int

	Current    RatingSnapshot
	Yesterday  RatingSnapshot
	WeekAgo    RatingSnapshot
	MonthAgo   RatingSnapshot
}

// SentinelRatingRow returns the sentinel row for an unfilled rank (spec
// §4.8 "filling unused ranks with sentinel rows").
func SentinelRatingRow(kind string, rank int) RatingRow {
	empty := RatingSnapshot{Games: -1}
	return RatingRow{Kind: kind, Rank: rank, UserID: nil, RobotLevel: -1,
		Current: empty, Yesterday: empty, WeekAgo: empty, MonthAgo: empty}
}

// IsSentinel reports whether this row represents an unfilled rank.
func (r RatingRow) IsSentinel() bool {
	return r.UserID == nil && r.RobotLevel == -1
}

// Completion is an append-only log entry for one nightly-pipeline run
// (spec §3 "Stats snapshot" / §4.8 "Completion log"). ProcType disambiguates
// multiple pipelines sharing the log (spec §4 data-model supplement):
// "stats", "ratings", or "riddle".
type Completion struct {
	ID        string
	ProcType  string
	TsFrom    time.Time
	TsTo      time.Time
	Success   bool
	Reason    string
	Timestamp time.Time
}

// Promo records a one-time promotional code redeemed by a user (spec §4
// data-model supplement, grounded on original_source PromoModel).
type Promo struct {
	UserID    string
	Promo     string
	Timestamp time.Time
}

// Transaction records a field-level billing ledger entry (spec §4
// data-model supplement). The billing provider integration itself is out
// of scope; this is a ledger row only.
type Transaction struct {
	ID        string
	UserID    string
	Kind      string
	Amount    int64
	Currency  string
	Timestamp time.Time
}

// Riddle is one daily-riddle definition for a (locale, date) pair (spec §4
// data-model supplement).
type Riddle struct {
	ID         string
	Locale     string
	Date       string // YYYY-MM-DD
	RiddleJSON string
	Created    time.Time
	Version    int
}

// Submission records one user's attempt at a Riddle (spec §4 data-model
// supplement).
type Submission struct {
	ID        string
	RiddleID  string
	UserID    string
	Solved    bool
	Timestamp time.Time
}

// Image stores a user's avatar blob out-of-line from User.ImageBlob (spec
// §4 data-model supplement).
type Image struct {
	UserID    string
	Data      []byte
	MimeType  string
	Timestamp time.Time
}
