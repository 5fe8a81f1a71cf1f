// Package model holds the entity shapes shared by both storage backends.
// Entities are plain, read-only value structs; mutation always goes
// through a repository's Update method with a sparse field struct, never
// through setters on the entity itself (spec §4.1).
package model

import "time"

// UserPrefs holds the recognized preference keys from spec §6.
type UserPrefs struct {
	FullName     string `json:"fullName,omitempty"`
	Beginner     bool   `json:"beginner"`
	Fairplay     bool   `json:"fairplay"`
	Ready        bool   `json:"ready"`
	ReadyTimed   bool   `json:"readyTimed"`
	Fanfare      bool   `json:"fanfare,omitempty"`
	Audio        bool   `json:"audio,omitempty"`
	Friend       bool   `json:"friend,omitempty"`
	HasPaid      bool   `json:"hasPaid,omitempty"`
	Locale       string `json:"locale,omitempty"`
	ChatDisabled bool   `json:"chatDisabled,omitempty"`
}

// DefaultUserPrefs returns the documented defaults (spec §6): beginner
// help shown, fairplay off, ready for untimed and timed games.
func DefaultUserPrefs() UserPrefs {
	return UserPrefs{
		Beginner:   true,
		Fairplay:   false,
		Ready:      true,
		ReadyTimed: true,
	}
}

// IsPayingFriend reports whether the user is a paying friend (friend &&
// hasPaid), per spec §6.
func (p UserPrefs) IsPayingFriend() bool {
	return p.Friend && p.HasPaid
}

// User is the account/profile entity (spec §3 "User").
type User struct {
	ID          string
	Account     string // external-auth subject, unique when present
	Email       string // lowercased
	Nickname    string
	NickLower   string
	FullNameLow string
	Image       string
	ImageBlob   []byte
	Locale      string
	Location    string
	Prefs       UserPrefs
	Inactive    bool
	Ready       bool
	ReadyTimed  bool
	ChatDisabled bool
	Plan        *string // e.g. "friend"; nil when absent

	Elo       int
	HumanElo  int
	ManualElo int

	HighestScore       int
	HighestScoreGameID string
	BestWord           string
	BestWordScore      int
	BestWordGameID     string

	Games int // career game count, human-vs-human games only

	Timestamp time.Time
	LastLogin time.Time
}

// UserUpdate is a sparse set of writable User fields; nil means "leave
// unchanged". This is the Go translation of the Python kwargs update map
// from spec §4.1/§4.3.
type UserUpdate struct {
	Nickname     *string
	Image        *string
	ImageBlob    []byte
	Locale       *string
	Location     *string
	Prefs        *UserPrefs
	Inactive     *bool
	Ready        *bool
	ReadyTimed   *bool
	ChatDisabled *bool
	Plan         *string

	Elo       *int
	HumanElo  *int
	ManualElo *int

	HighestScore       *int
	HighestScoreGameID *string
	BestWord           *string
	BestWordScore      *int
	BestWordGameID     *string

	Games     *int
	LastLogin *time.Time
}

// EloRating is one per (userID, locale) (spec §3 "EloRating").
type EloRating struct {
	UserID    string
	Locale    string
	Elo       int
	HumanElo  int
	ManualElo int
	Timestamp time.Time
}

// RobotElo is one per (locale, robotLevel) (spec §3 "RobotElo").
type RobotElo struct {
	Locale     string
	RobotLevel int
	Elo        int
}
