package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"rvl-week-service/internal/domain"
)

// ResultSink stores finished quizzes; the first result per (user, day) wins.
type ResultSink struct {
	pool *pgxpool.Pool
}

func NewResultSink(pool *pgxpool.Pool) *ResultSink {
	return &ResultSink{pool: pool}
}

func (s *ResultSink) SaveQuizResult(ctx context.Context, result domain.QuizResult) error {
	if len(result.Answers) > domain.MaxQuizQuestions {
		return domain.ErrTooManyAnswers
	}
	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quiz_results (user_id, day, answers, total_score, completed_at)
		VALUES ($1, $2, $3::jsonb, $4, $5) ON CONFLICT (user_id, day) DO NOTHING`,
		result.UserID, result.Day, string(answers), result.TotalScore, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}
