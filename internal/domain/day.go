package domain

import (
	"sort"
	"time"
)

// DayStatus is the unlock status of a day for one user.
type DayStatus string

const (
	DayLocked    DayStatus = "locked"
	DayAvailable DayStatus = "available"
	DayCompleted DayStatus = "completed"
)

// Rank orders statuses so that progress never moves backwards.
func (s DayStatus) Rank() int {
	switch s {
	case DayAvailable:
		return 1
	case DayCompleted:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s DayStatus) Valid() bool {
	return s == DayLocked || s == DayAvailable || s == DayCompleted
}

// UnlockMethod is how a user unlocks a day.
type UnlockMethod string

const (
	MethodQRCode UnlockMethod = "qrcode"
	MethodManual UnlockMethod = "manual"
)

// Valid reports whether m is a supported method.
func (m UnlockMethod) Valid() bool {
	return m == MethodQRCode || m == MethodManual
}

// Decision is the outcome of a day gate evaluation.
type Decision string

const (
	Allowed           Decision = "allowed"
	BlockedBySequence Decision = "blocked-by-sequence"
	BlockedByTime     Decision = "blocked-by-time"
)

// EventDay is the catalog entry for one day of the event.
type EventDay struct {
	Number        int       `json:"number" yaml:"number"`
	ScheduledDate time.Time `json:"scheduledDate" yaml:"-"`
	Title         string    `json:"title" yaml:"title"`
	VideoURL      string    `json:"videoUrl" yaml:"video_url"`
}

// Day is a catalog day merged with one user's progress on it.
type Day struct {
	EventDay
	Status        DayStatus    `json:"status"`
	Points        int          `json:"points"`
	QRScanned     bool         `json:"qrScanned"`
	UnlockMethod  UnlockMethod `json:"unlockMethod,omitempty"`
	VideoWatched  bool         `json:"videoWatched"`
	QuizCompleted bool         `json:"quizCompleted"`
	QuizScore     int          `json:"quizScore"`
	UnlockedAt    *time.Time   `json:"unlockedAt,omitempty"`
}

// FindDay returns the day with the given number.
func FindDay(days []Day, number int) (Day, bool) {
	for _, d := range days {
		if d.Number == number {
			return d, true
		}
	}
	return Day{}, false
}

// ProgressPatch is a partial upsert of the (user, day) progress row.
// Nil fields keep whatever is stored.
type ProgressPatch struct {
	UserID           string
	DisplayName      string
	Day              int
	Status           *DayStatus
	QRScanned        *bool
	UnlockMethod     *UnlockMethod
	AttendancePoints *int
	VideoWatched     *bool
	VideoPoints      *int
	QuizCompleted    *bool
	QuizScore        *int
	UnlockedAt       *time.Time
}

// PendingUnlock is a deep-link unlock staged until the scanning user signs in.
type PendingUnlock struct {
	ID        string    `json:"id"`
	Day       int       `json:"day"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// RankingEntry is one line of the event leaderboard.
type RankingEntry struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Points      int       `json:"points"`
	LastUpdated time.Time `json:"-"`
}

// DayView is a day with the gate decisions for both unlock methods.
type DayView struct {
	Day
	QRCode Decision `json:"qrcode"`
	Manual Decision `json:"manual"`
}

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Identity is the authenticated caller as asserted by the auth provider.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Elevated    bool   `json:"elevated"`
}

// UnlockGrant is what the attendance validator answers for a QR unlock.
type UnlockGrant struct {
	Success bool `json:"success"`
	Day     int  `json:"day"`
	Points  int  `json:"points"`
}

// SortRanking orders entries by points desc, then earliest last update, then name.
func SortRanking(entries []RankingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		if !entries[i].LastUpdated.Equal(entries[j].LastUpdated) {
			return entries[i].LastUpdated.Before(entries[j].LastUpdated)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
}
