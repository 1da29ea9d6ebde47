package domain

import (
	"fmt"
	"time"
)

const (
	// QuestionTimeLimit is the fixed per-question countdown, in whole seconds.
	QuestionTimeLimit = 60
	// GracePeriod is how long a correct answer still earns full points, in seconds.
	GracePeriod = 15
	// MaxQuizQuestions is the largest quiz the result sink accepts.
	MaxQuizQuestions = 3
)

// QuizQuestion is a multiple-choice question. Options are immutable once loaded.
type QuizQuestion struct {
	Prompt       string   `json:"prompt" yaml:"prompt" validate:"required"`
	Options      []string `json:"options" yaml:"options" validate:"min=2,dive,required"`
	CorrectIndex int      `json:"correctIndex" yaml:"correct_index" validate:"gte=0"`
	Explanation  string   `json:"explanation" yaml:"explanation"`
}

// CorrectOption returns the text of the correct option.
func (q QuizQuestion) CorrectOption() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// CheckBounds reports whether the correct index addresses one of the options.
func (q QuizQuestion) CheckBounds() error {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("%w: correct index %d outside %d options", ErrInvalidQuestion, q.CorrectIndex, len(q.Options))
	}
	return nil
}

// Quiz is the question set attached to one event day.
type Quiz struct {
	Day       int            `json:"day"`
	Questions []QuizQuestion `json:"questions"`
}

// AnswerRecord is the immutable outcome of one question.
type AnswerRecord struct {
	Question int     `json:"question"` // 1-based
	Answer   string  `json:"answer"`   // "" means no answer or timeout
	Elapsed  int     `json:"elapsed"`
	Correct  bool    `json:"correct"`
	Score    float64 `json:"score"`
}

// QuizResult is the payload handed to the result sink when a session finishes.
type QuizResult struct {
	UserID      string         `json:"userId"`
	Day         int            `json:"day"`
	Answers     []AnswerRecord `json:"answers"`
	TotalScore  int            `json:"totalScore"`
	CompletedAt time.Time      `json:"completedAt"`
}

// QuizPhase names a quiz session state.
type QuizPhase string

const (
	PhaseIntro       QuizPhase = "intro"
	PhasePlaying     QuizPhase = "playing"
	PhaseWaitingNext QuizPhase = "waiting-next"
	PhaseFinished    QuizPhase = "finished"
)

// QuizState is a point-in-time snapshot of a quiz session.
type QuizState struct {
	SessionID     string         `json:"sessionId"`
	Day           int            `json:"day"`
	Phase         QuizPhase      `json:"phase"`
	QuestionIndex int            `json:"questionIndex"`
	QuestionCount int            `json:"questionCount"`
	Question      *QuestionView  `json:"question,omitempty"`
	TimeRemaining int            `json:"timeRemaining"`
	Finished      bool           `json:"finished"`
	Saving        bool           `json:"saving"`
	Saved         bool           `json:"saved"`
	WaitingNext   bool           `json:"waitingNext"`
	LastScore     float64        `json:"lastScore"`
	Answers       []AnswerRecord `json:"answers"`
	TotalScore    int            `json:"totalScore"`
	SaveError     string         `json:"saveError,omitempty"`
}

// QuestionView is what a player sees of a question. The correct option and
// explanation are only revealed once the question has been answered.
type QuestionView struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}
