package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rvl-week-service/internal/domain"
)

type progressKey struct {
	userID string
	day    int
}

type progressRow struct {
	status           domain.DayStatus
	qrScanned        bool
	unlockMethod     domain.UnlockMethod
	attendancePoints int
	videoWatched     bool
	videoPoints      int
	quizCompleted    bool
	quizScore        int
	unlockedAt       *time.Time
	updatedAt        time.Time
}

func (r progressRow) points() int {
	return r.attendancePoints + r.videoPoints + r.quizScore
}

type participant struct {
	displayName string
	joinedAt    time.Time
}

// ProgressStore keeps per-user day progress in memory. Upserts are atomic per
// call, which is all the unlock flow relies on.
type ProgressStore struct {
	catalog []domain.EventDay
	clock   func() time.Time

	mu    sync.RWMutex
	rows  map[progressKey]*progressRow
	users map[string]*participant
}

func NewProgressStore(catalog []domain.EventDay) *ProgressStore {
	days := append([]domain.EventDay(nil), catalog...)
	sort.Slice(days, func(i, j int) bool { return days[i].Number < days[j].Number })
	return &ProgressStore{
		catalog: days,
		clock:   time.Now,
		rows:    make(map[progressKey]*progressRow),
		users:   make(map[string]*participant),
	}
}

// ListDays returns the whole catalog merged with the user's progress.
func (s *ProgressStore) ListDays(_ context.Context, userID string) ([]domain.Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make([]domain.Day, 0, len(s.catalog))
	for _, ev := range s.catalog {
		day := domain.Day{EventDay: ev, Status: domain.DayLocked}
		if row, ok := s.rows[progressKey{userID, ev.Number}]; ok {
			day.Status = row.status
			day.Points = row.points()
			day.QRScanned = row.qrScanned
			day.UnlockMethod = row.unlockMethod
			day.VideoWatched = row.videoWatched
			day.QuizCompleted = row.quizCompleted
			day.QuizScore = row.quizScore
			if row.unlockedAt != nil {
				at := *row.unlockedAt
				day.UnlockedAt = &at
			}
		}
		days = append(days, day)
	}
	return days, nil
}

// UpsertProgress applies patch to the (user, day) row, creating it if needed.
func (s *ProgressStore) UpsertProgress(_ context.Context, patch domain.ProgressPatch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *patch.Status)
	}
	if !s.knownDay(patch.Day) {
		return domain.ErrDayNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	user, ok := s.users[patch.UserID]
	if !ok {
		user = &participant{joinedAt: now}
		s.users[patch.UserID] = user
	}
	if patch.DisplayName != "" {
		user.displayName = patch.DisplayName
	}

	key := progressKey{patch.UserID, patch.Day}
	row, ok := s.rows[key]
	if !ok {
		row = &progressRow{status: domain.DayLocked}
		s.rows[key] = row
	}
	if patch.Status != nil && patch.Status.Rank() > row.status.Rank() {
		row.status = *patch.Status
	}
	if patch.QRScanned != nil {
		row.qrScanned = *patch.QRScanned
	}
	if patch.UnlockMethod != nil {
		row.unlockMethod = *patch.UnlockMethod
	}
	if patch.AttendancePoints != nil {
		row.attendancePoints = *patch.AttendancePoints
	}
	if patch.VideoWatched != nil {
		row.videoWatched = *patch.VideoWatched
	}
	if patch.VideoPoints != nil {
		row.videoPoints = *patch.VideoPoints
	}
	if patch.QuizCompleted != nil {
		row.quizCompleted = *patch.QuizCompleted
	}
	if patch.QuizScore != nil {
		row.quizScore = *patch.QuizScore
	}
	if patch.UnlockedAt != nil && row.unlockedAt == nil {
		at := *patch.UnlockedAt
		row.unlockedAt = &at
	}
	row.updatedAt = now
	return nil
}

// Ranking orders participants by points, then whoever got there first, then name.
func (s *ProgressStore) Ranking(_ context.Context, limit int) ([]domain.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string]*domain.RankingEntry, len(s.users))
	for id, u := range s.users {
		byUser[id] = &domain.RankingEntry{UserID: id, DisplayName: u.displayName, LastUpdated: u.joinedAt}
	}
	for key, row := range s.rows {
		entry := byUser[key.userID]
		entry.Points += row.points()
		if row.updatedAt.After(entry.LastUpdated) {
			entry.LastUpdated = row.updatedAt
		}
	}

	entries := make([]domain.RankingEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, *e)
	}
	domain.SortRanking(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *ProgressStore) knownDay(number int) bool {
	for _, d := range s.catalog {
		if d.Number == number {
			return true
		}
	}
	return false
}
