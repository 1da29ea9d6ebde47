package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"rvl-week-service/internal/domain"
	"rvl-week-service/internal/gate"
	"rvl-week-service/internal/quiz"
)

// ProgressStore is the per-user day progress collaborator.
type ProgressStore interface {
	ListDays(ctx context.Context, userID string) ([]domain.Day, error)
	UpsertProgress(ctx context.Context, patch domain.ProgressPatch) error
	Ranking(ctx context.Context, limit int) ([]domain.RankingEntry, error)
}

// ResultSink stores finished quizzes. Saving the same (user, day) twice must not fail.
type ResultSink interface {
	SaveQuizResult(ctx context.Context, result domain.QuizResult) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, day int) (domain.Quiz, error)
}

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(key string, session *quiz.Session) *quiz.Session
	Get(key string) (*quiz.Session, bool)
	Delete(key string, session *quiz.Session) bool
}

// Options tune an EventService. Zero values get sensible defaults.
type Options struct {
	QuizPoints  int
	VideoPoints int
	SaveTimeout time.Duration
	NewTicker   quiz.TickerFactory
	Now         func() time.Time
	Logger      *zap.Logger
}

// EventService is the application state shared by every transport. It owns
// no progress itself: every read goes to the stores so point totals always
// match what the server computed.
type EventService struct {
	progress ProgressStore
	results  ResultSink
	quizzes  QuizRepository
	sessions SessionRepository
	opts     Options
	log      *zap.Logger
}

func NewEventService(progress ProgressStore, results ResultSink, quizzes QuizRepository, sessions SessionRepository, opts Options) *EventService {
	if opts.QuizPoints <= 0 {
		opts.QuizPoints = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &EventService{
		progress: progress,
		results:  results,
		quizzes:  quizzes,
		sessions: sessions,
		opts:     opts,
		log:      opts.Logger,
	}
}

// ListDays returns the user's days with both unlock decisions evaluated now.
func (s *EventService) ListDays(ctx context.Context, user domain.Identity) ([]domain.DayView, error) {
	days, err := s.progress.ListDays(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	return gate.Views(days, s.opts.Now(), user.Elevated), nil
}

// StartQuiz creates a session in the intro phase for an unlocked day. A live
// session for the same user and day is closed and replaced.
func (s *EventService) StartQuiz(ctx context.Context, user domain.Identity, day int) (*quiz.Session, error) {
	current, err := s.day(ctx, user.UserID, day)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.DayLocked && !user.Elevated {
		return nil, domain.ErrDayLocked
	}
	if current.QuizCompleted {
		return nil, domain.ErrQuizAlreadyCompleted
	}

	content, err := s.quizzes.GetQuiz(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load quiz for day %d: %w", day, err)
	}
	session, err := quiz.NewSession(quiz.Config{
		UserID:      user.UserID,
		Day:         day,
		Questions:   content.Questions,
		TotalPoints: s.opts.QuizPoints,
		Recorder:    s,
		Logger:      s.log,
		SaveTimeout: s.opts.SaveTimeout,
		NewTicker:   s.opts.NewTicker,
		Now:         s.opts.Now,
	})
	if err != nil {
		return nil, err
	}

	if previous := s.sessions.Put(sessionKey(user.UserID, day), session); previous != nil {
		previous.Close()
	}
	s.log.Info("quiz session created", zap.String("user", user.UserID), zap.Int("day", day), zap.String("session", session.ID()))
	return session, nil
}

// Session returns the live session of user for day.
func (s *EventService) Session(userID string, day int) (*quiz.Session, error) {
	session, ok := s.sessions.Get(sessionKey(userID, day))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// EndQuiz abandons the session; unfinished answers are dropped.
func (s *EventService) EndQuiz(session *quiz.Session) {
	session.Close()
	s.sessions.Delete(sessionKey(session.UserID(), session.Day()), session)
}

// RecordResult is the persistence handoff of a finished session.
func (s *EventService) RecordResult(ctx context.Context, result domain.QuizResult) error {
	if err := s.results.SaveQuizResult(ctx, result); err != nil {
		return fmt.Errorf("save quiz result: %w", err)
	}
	err := s.progress.UpsertProgress(ctx, domain.ProgressPatch{
		UserID:        result.UserID,
		Day:           result.Day,
		Status:        domain.Ptr(domain.DayCompleted),
		QuizCompleted: domain.Ptr(true),
		QuizScore:     domain.Ptr(result.TotalScore),
	})
	if err != nil {
		return fmt.Errorf("record quiz score: %w", err)
	}
	return nil
}

// MarkVideoWatched flags the day's pastor video and grants its points once.
func (s *EventService) MarkVideoWatched(ctx context.Context, user domain.Identity, day int) ([]domain.DayView, error) {
	current, err := s.day(ctx, user.UserID, day)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.DayLocked {
		return nil, domain.ErrDayLocked
	}
	if !current.VideoWatched {
		err := s.progress.UpsertProgress(ctx, domain.ProgressPatch{
			UserID:       user.UserID,
			DisplayName:  user.DisplayName,
			Day:          day,
			VideoWatched: domain.Ptr(true),
			VideoPoints:  domain.Ptr(s.opts.VideoPoints),
		})
		if err != nil {
			return nil, fmt.Errorf("mark video watched: %w", err)
		}
	}
	return s.ListDays(ctx, user)
}

// Ranking returns the leaderboard, best first.
func (s *EventService) Ranking(ctx context.Context, limit int) ([]domain.RankingEntry, error) {
	entries, err := s.progress.Ranking(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	return entries, nil
}

func (s *EventService) day(ctx context.Context, userID string, number int) (domain.Day, error) {
	days, err := s.progress.ListDays(ctx, userID)
	if err != nil {
		return domain.Day{}, fmt.Errorf("list days: %w", err)
	}
	day, ok := domain.FindDay(days, number)
	if !ok {
		return domain.Day{}, domain.ErrDayNotFound
	}
	return day, nil
}

func sessionKey(userID string, day int) string {
	return fmt.Sprintf("%s:%d", userID, day)
}
