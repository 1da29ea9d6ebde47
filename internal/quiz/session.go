package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"rvl-week-service/internal/domain"
)

// Recorder persists the result of a finished session.
type Recorder interface {
	RecordResult(ctx context.Context, result domain.QuizResult) error
}

// Ticker is the repeating interval that drives a session countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

const defaultSaveTimeout = 15 * time.Second

var validate = validator.New()

// Config carries everything a session needs. Recorder and Questions are required.
type Config struct {
	UserID      string
	Day         int
	Questions   []domain.QuizQuestion
	TotalPoints int
	Recorder    Recorder
	Logger      *zap.Logger
	SaveTimeout time.Duration
	NewTicker   TickerFactory
	Now         func() time.Time
}

// Session is one user's run through a day's quiz.
type Session struct {
	id          string
	userID      string
	day         int
	questions   []domain.QuizQuestion
	maxPoints   float64
	recorder    Recorder
	log         *zap.Logger
	saveTimeout time.Duration
	newTicker   TickerFactory
	now         func() time.Time

	mu          sync.Mutex
	phase       domain.QuizPhase
	index       int
	remaining   int
	lastScore   float64
	answers     []domain.AnswerRecord
	saving      bool
	saved       bool
	saveErr     error
	saveDone    chan struct{}
	closed      bool
	timer       Ticker
	timerStop   chan struct{}
	timerGen    uint64
	subscribers map[chan domain.QuizState]struct{}
}

// NewSession validates the questions and returns a session in the intro phase.
// An empty question list yields domain.ErrEmptyQuiz; more than
// domain.MaxQuizQuestions yields domain.ErrInvalidQuestion.
func NewSession(cfg Config) (*Session, error) {
	if len(cfg.Questions) == 0 {
		return nil, domain.ErrEmptyQuiz
	}
	if len(cfg.Questions) > domain.MaxQuizQuestions {
		return nil, fmt.Errorf("%w: %d questions, at most %d allowed", domain.ErrInvalidQuestion, len(cfg.Questions), domain.MaxQuizQuestions)
	}
	for i, q := range cfg.Questions {
		if err := validate.Struct(q); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", domain.ErrInvalidQuestion, i+1, err)
		}
		if err := q.CheckBounds(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("%w: session needs a recorder", domain.ErrInvalidInput)
	}
	if cfg.TotalPoints <= 0 {
		cfg.TotalPoints = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTicker
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	id := uuid.NewString()
	return &Session{
		id:          id,
		userID:      cfg.UserID,
		day:         cfg.Day,
		questions:   append([]domain.QuizQuestion(nil), cfg.Questions...),
		maxPoints:   PointsPerQuestion(cfg.TotalPoints, len(cfg.Questions)),
		recorder:    cfg.Recorder,
		log:         cfg.Logger.With(zap.String("session", id), zap.String("user", cfg.UserID), zap.Int("day", cfg.Day)),
		saveTimeout: cfg.SaveTimeout,
		newTicker:   cfg.NewTicker,
		now:         cfg.Now,
		phase:       domain.PhaseIntro,
		remaining:   domain.QuestionTimeLimit,
		subscribers: make(map[chan domain.QuizState]struct{}),
	}, nil
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }
func (s *Session) Day() int       { return s.day }

// Start leaves the intro screen and starts the countdown for question 1.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return domain.ErrEmptyQuiz
	}
	if s.closed || s.phase != domain.PhaseIntro {
		s.ignored("start")
		return nil
	}
	s.phase = domain.PhasePlaying
	s.index = 0
	s.remaining = domain.QuestionTimeLimit
	s.startTimerLocked()
	s.broadcastLocked()
	return nil
}

// Submit records the answer for the current question. The empty string means
// no answer. Only the first submission per question counts; the bool reports
// whether this call was accepted.
func (s *Session) Submit(answer string) (domain.AnswerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhasePlaying {
		s.ignored("submit")
		return domain.AnswerRecord{}, false
	}
	return s.submitLocked(answer), true
}

// Tick advances the countdown by one second, exactly like the interval timer.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked()
}

// Advance moves past the feedback screen to the next question, or finishes the
// quiz and starts saving it after the last one.
func (s *Session) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseWaitingNext {
		s.ignored("advance")
		return false
	}
	if s.index+1 < len(s.questions) {
		s.index++
		s.remaining = domain.QuestionTimeLimit
		s.phase = domain.PhasePlaying
		s.startTimerLocked()
		s.broadcastLocked()
		return true
	}

	s.phase = domain.PhaseFinished
	s.stopTimerLocked()
	s.startSaveLocked()
	s.broadcastLocked()
	return true
}

// RetrySave re-attempts persistence after a failed save.
func (s *Session) RetrySave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseFinished || s.saving || s.saved {
		s.ignored("retry")
		return false
	}
	s.startSaveLocked()
	s.broadcastLocked()
	return true
}

// AwaitSave blocks until the current save attempt ends and returns its error.
func (s *Session) AwaitSave(ctx context.Context) error {
	s.mu.Lock()
	done := s.saveDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveErr
}

// Close abandons the session: the timer stops, subscribers are released and
// answers of an unfinished quiz are discarded. A save already running completes.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	if s.phase != domain.PhaseFinished {
		s.answers = nil
	}
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() domain.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of state snapshots, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.QuizState, func()) {
	ch := make(chan domain.QuizState, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) submitLocked(answer string) domain.AnswerRecord {
	q := s.questions[s.index]
	elapsed := ClampElapsed(domain.QuestionTimeLimit - s.remaining)
	correct := answer != "" && answer == q.CorrectOption()

	score := 0.0
	if correct {
		var err error
		if score, err = Score(elapsed, s.maxPoints); err != nil {
			s.log.Error("score answer", zap.Error(err))
			score = 0
		}
	}

	record := domain.AnswerRecord{
		Question: s.index + 1,
		Answer:   answer,
		Elapsed:  elapsed,
		Correct:  correct,
		Score:    score,
	}
	s.answers = append(s.answers, record)
	s.lastScore = score
	s.stopTimerLocked()
	s.phase = domain.PhaseWaitingNext
	s.broadcastLocked()
	return record
}

func (s *Session) tickLocked() {
	if s.closed || s.phase != domain.PhasePlaying {
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining == 0 {
		s.submitLocked("")
		return
	}
	s.broadcastLocked()
}

func (s *Session) startTimerLocked() {
	s.stopTimerLocked()
	s.timerGen++
	gen := s.timerGen
	t := s.newTicker(time.Second)
	stop := make(chan struct{})
	s.timer, s.timerStop = t, stop
	go s.runTimer(t, stop, gen)
}

func (s *Session) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	close(s.timerStop)
	s.timer, s.timerStop = nil, nil
}

func (s *Session) runTimer(t Ticker, stop <-chan struct{}, gen uint64) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.mu.Lock()
			// a tick that raced with Stop belongs to a discarded timer
			if gen == s.timerGen && s.timer != nil {
				s.tickLocked()
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) startSaveLocked() {
	result := domain.QuizResult{
		UserID:      s.userID,
		Day:         s.day,
		Answers:     append([]domain.AnswerRecord(nil), s.answers...),
		TotalScore:  TotalScore(s.answers),
		CompletedAt: s.now(),
	}
	done := make(chan struct{})
	s.saving = true
	s.saveErr = nil
	s.saveDone = done
	go s.persist(result, done)
}

func (s *Session) persist(result domain.QuizResult, done chan struct{}) {
	defer close(done)
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	err := s.recorder.RecordResult(ctx, result)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.saveErr = err
		s.log.Error("save quiz result", zap.Int("total", result.TotalScore), zap.Error(err))
	} else {
		s.saved = true
		s.log.Info("quiz result saved", zap.Int("total", result.TotalScore))
	}
	s.broadcastLocked()
}

func (s *Session) ignored(action string) {
	s.log.Debug("quiz action ignored", zap.String("action", action), zap.String("phase", string(s.phase)), zap.Bool("closed", s.closed))
}

func (s *Session) broadcastLocked() {
	state := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			// drop the oldest snapshot so a slow reader never blocks the session
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

func (s *Session) snapshotLocked() domain.QuizState {
	state := domain.QuizState{
		SessionID:     s.id,
		Day:           s.day,
		Phase:         s.phase,
		QuestionIndex: s.index,
		QuestionCount: len(s.questions),
		TimeRemaining: s.remaining,
		Finished:      s.phase == domain.PhaseFinished,
		Saving:        s.saving,
		Saved:         s.saved,
		WaitingNext:   s.phase == domain.PhaseWaitingNext,
		LastScore:     s.lastScore,
		Answers:       append([]domain.AnswerRecord{}, s.answers...),
		TotalScore:    TotalScore(s.answers),
	}
	if s.saveErr != nil {
		state.SaveError = s.saveErr.Error()
	}
	if s.phase == domain.PhasePlaying || s.phase == domain.PhaseWaitingNext {
		q := s.questions[s.index]
		view := &domain.QuestionView{
			Prompt:  q.Prompt,
			Options: append([]string(nil), q.Options...),
		}
		if s.phase == domain.PhaseWaitingNext {
			view.CorrectOption = q.CorrectOption()
			view.Explanation = q.Explanation
		}
		state.Question = view
	}
	return state
}
