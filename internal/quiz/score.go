package quiz

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"rvl-week-service/internal/domain"
)

var decayWindow = decimal.NewFromInt(domain.QuestionTimeLimit - domain.GracePeriod)

// Score maps the seconds a correct answer took to the points it earns.
// Answers within the grace period earn maxPoints; after that the award decays
// linearly to zero at the time limit. Results are rounded half-up to 2 decimals.
func Score(elapsedSeconds int, maxPoints float64) (float64, error) {
	if elapsedSeconds < 0 || elapsedSeconds > domain.QuestionTimeLimit {
		return 0, fmt.Errorf("%w: elapsed %ds outside [0, %d]", domain.ErrInvalidInput, elapsedSeconds, domain.QuestionTimeLimit)
	}
	if math.IsNaN(maxPoints) || math.IsInf(maxPoints, 0) || maxPoints <= 0 {
		return 0, fmt.Errorf("%w: max points %v must be positive", domain.ErrInvalidInput, maxPoints)
	}

	full := decimal.NewFromFloat(maxPoints)
	if elapsedSeconds <= domain.GracePeriod {
		return full.Round(2).InexactFloat64(), nil
	}
	left := decimal.NewFromInt(int64(domain.QuestionTimeLimit - elapsedSeconds))
	return full.Mul(left).Div(decayWindow).Round(2).InexactFloat64(), nil
}

// PointsPerQuestion splits a quiz's total points evenly over its questions.
func PointsPerQuestion(totalPoints, questions int) float64 {
	if questions <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(totalPoints)).
		Div(decimal.NewFromInt(int64(questions))).
		InexactFloat64()
}

// TotalScore sums per-question scores and rounds half-up to whole points.
func TotalScore(records []domain.AnswerRecord) int {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(decimal.NewFromFloat(r.Score))
	}
	return int(sum.Round(0).IntPart())
}

// ClampElapsed bounds elapsed seconds to the question time limit.
func ClampElapsed(elapsed int) int {
	if elapsed < 0 {
		return 0
	}
	if elapsed > domain.QuestionTimeLimit {
		return domain.QuestionTimeLimit
	}
	return elapsed
}
