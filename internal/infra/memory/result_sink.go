package memory

import (
	"context"
	"sync"

	"rvl-week-service/internal/domain"
)

// ResultSink stores finished quiz results. The first result per (user, day) wins.
type ResultSink struct {
	mu      sync.RWMutex
	results map[progressKey]domain.QuizResult
}

func NewResultSink() *ResultSink {
	return &ResultSink{results: make(map[progressKey]domain.QuizResult)}
}

func (s *ResultSink) SaveQuizResult(_ context.Context, result domain.QuizResult) error {
	if len(result.Answers) > domain.MaxQuizQuestions {
		return domain.ErrTooManyAnswers
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{result.UserID, result.Day}
	if _, ok := s.results[key]; ok {
		return nil
	}
	result.Answers = append([]domain.AnswerRecord(nil), result.Answers...)
	s.results[key] = result
	return nil
}

// Result returns the stored result for a user and day.
func (s *ResultSink) Result(userID string, day int) (domain.QuizResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[progressKey{userID, day}]
	return r, ok
}
