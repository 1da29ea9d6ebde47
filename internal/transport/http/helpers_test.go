package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"rvl-week-service/internal/app"
	"rvl-week-service/internal/attendance"
	"rvl-week-service/internal/auth"
	"rvl-week-service/internal/domain"
	"rvl-week-service/internal/gate"
	"rvl-week-service/internal/infra/memory"
	"rvl-week-service/internal/quiz"
	"rvl-week-service/internal/unlock"
)

type testServer struct {
	*httptest.Server
	store     *memory.ProgressStore
	sink      *memory.ResultSink
	verifier  *auth.Verifier
	validator *attendance.Validator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	start := time.Date(2026, 1, 19, 0, 0, 0, 0, gate.EventZone)
	store := memory.NewProgressStore([]domain.EventDay{
		{Number: 1, ScheduledDate: start},
		{Number: 2, ScheduledDate: start.AddDate(0, 0, 1)},
	})
	sink := memory.NewResultSink()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	now := func() time.Time { return time.Date(2026, 1, 19, 20, 0, 0, 0, gate.EventZone) }

	service := app.NewEventService(store, sink, quizzes, memory.NewSessionStore(), app.Options{
		QuizPoints:  100,
		VideoPoints: 20,
		NewTicker:   func(time.Duration) quiz.Ticker { return idleTicker{} },
		Now:         now,
	})
	validator, err := attendance.New(attendance.Config{
		Codes:            map[int]string{1: "RVL-DAY1"},
		Secret:           []byte("unlock-secret"),
		AttendancePoints: 50,
		HashCost:         bcrypt.MinCost,
		Now:              now,
	}, store)
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	orch := unlock.NewOrchestrator(store, validator, memory.NewPendingStore(time.Hour), nil).WithClock(now)
	verifier := auth.NewVerifier([]byte("auth-secret"), []string{"admin"})

	router := NewRouter(NewAPI(service, orch, nil, time.Hour), NewWSHandler(service, nil), verifier, zapNop())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, sink: sink, verifier: verifier, validator: validator}
}

func (s *testServer) token(t *testing.T, userID, name string) string {
	t.Helper()
	tok, err := s.verifier.Sign(domain.Identity{UserID: userID, DisplayName: name}, "member", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func sampleQuiz() map[int]domain.Quiz {
	return map[int]domain.Quiz{
		1: {
			Day: 1,
			Questions: []domain.QuizQuestion{
				{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
			},
		},
	}
}

type idleTicker struct{}

func (idleTicker) C() <-chan time.Time { return nil }
func (idleTicker) Stop()               {}
