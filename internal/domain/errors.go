package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed caller input (bad elapsed time, empty quiz, bad link).
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyQuiz is returned when a quiz has no questions and cannot be started.
	ErrEmptyQuiz = fmt.Errorf("%w: quiz has no questions", ErrInvalidInput)
	// ErrInvalidQuestion is returned when a question violates its option invariant.
	ErrInvalidQuestion = fmt.Errorf("%w: malformed question", ErrInvalidInput)
	// ErrInvalidLink is returned when an unlock deep link cannot be parsed.
	ErrInvalidLink = fmt.Errorf("%w: malformed unlock link", ErrInvalidInput)
	// ErrValidation indicates a wrong QR code or an expired/foreign token.
	ErrValidation = errors.New("unlock validation failed")
	// ErrDayNotFound indicates the requested day is not part of the event.
	ErrDayNotFound = errors.New("day not found")
	// ErrDayLocked is returned when an activity needs the day to be unlocked first.
	ErrDayLocked = errors.New("day is locked")
	// ErrQuizAlreadyCompleted is returned when a user starts a quiz they already finished.
	ErrQuizAlreadyCompleted = errors.New("quiz already completed")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when no quiz session is active for a user and day.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrPendingNotFound is returned when a staged unlock intent is missing or expired.
	ErrPendingNotFound = errors.New("pending unlock not found")
	// ErrTooManyAnswers is returned when a quiz result carries more answers than the sink accepts.
	ErrTooManyAnswers = errors.New("too many answers in quiz result")
	// ErrUnauthorized is returned when a request has no valid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)
