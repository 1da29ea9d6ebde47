package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"rvl-week-service/internal/domain"
)

func TestWebSocketQuizFlow(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "u1", "Alice")
	_ = srv.store.UpsertProgress(context.Background(), domain.ProgressPatch{UserID: "u1", Day: 1, Status: domain.Ptr(domain.DayAvailable)})

	u := "ws" + srv.URL[len("http"):] + "/ws/quiz?day=1&access_token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the intro snapshot first.
	if state := readState(t, conn); state.Phase != domain.PhaseIntro {
		t.Fatalf("expected intro, got %s", state.Phase)
	}

	send(t, conn, map[string]any{"type": "start"})
	state := waitFor(t, conn, func(s domain.QuizState) bool { return s.Phase == domain.PhasePlaying })
	if state.Question == nil || state.Question.Prompt != "What is 2 + 2?" || state.Question.CorrectOption != "" {
		t.Fatalf("unexpected question view %+v", state.Question)
	}

	send(t, conn, map[string]any{"type": "answer", "payload": map[string]any{"answer": "4"}})
	state = waitFor(t, conn, func(s domain.QuizState) bool { return s.WaitingNext })
	if len(state.Answers) != 1 || !state.Answers[0].Correct || state.Answers[0].Score != 100 {
		t.Fatalf("unexpected answer record %+v", state.Answers)
	}

	send(t, conn, map[string]any{"type": "next"})
	state = waitFor(t, conn, func(s domain.QuizState) bool { return s.Saved })
	if !state.Finished || state.TotalScore != 100 {
		t.Fatalf("unexpected final state %+v", state)
	}
	if result, ok := srv.sink.Result("u1", 1); !ok || result.TotalScore != 100 {
		t.Fatalf("expected stored result, got %+v", result)
	}
}

func TestWebSocketRejectsLockedDay(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "u1", "Alice")

	u := "ws" + srv.URL[len("http"):] + "/ws/quiz?day=1&access_token=" + tok
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for a locked day")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func TestWebSocketUnsupportedMessage(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "u1", "Alice")
	_ = srv.store.UpsertProgress(context.Background(), domain.ProgressPatch{UserID: "u1", Day: 1, Status: domain.Ptr(domain.DayAvailable)})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+srv.URL[len("http"):]+"/ws/quiz?day=1&access_token="+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readState(t, conn)

	send(t, conn, map[string]any{"type": "dance"})
	msgType, _ := readNext(t, conn)
	if msgType != "error" {
		t.Fatalf("expected error, got %s", msgType)
	}
}

func TestWebSocketReplacedSessionStops(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "u1", "Alice")
	_ = srv.store.UpsertProgress(context.Background(), domain.ProgressPatch{UserID: "u1", Day: 1, Status: domain.Ptr(domain.DayAvailable)})
	u := "ws" + srv.URL[len("http"):] + "/ws/quiz?day=1&access_token=" + tok

	first, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()
	readState(t, first)

	second, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()
	readState(t, second)

	send(t, first, map[string]any{"type": "start"})
	msgType, _ := readNext(t, first)
	if msgType != "error" {
		t.Fatalf("expected replaced session error, got %s", msgType)
	}

	send(t, second, map[string]any{"type": "start"})
	state := waitFor(t, second, func(s domain.QuizState) bool { return s.Phase == domain.PhasePlaying })
	if state.TimeRemaining != domain.QuestionTimeLimit {
		t.Fatalf("unexpected state on live session %+v", state)
	}
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %v: %v", msg["type"], err)
	}
}

func waitFor(t *testing.T, conn *websocket.Conn, match func(domain.QuizState) bool) domain.QuizState {
	t.Helper()
	for i := 0; i < 10; i++ {
		if state := readState(t, conn); match(state) {
			return state
		}
	}
	t.Fatalf("state never matched")
	return domain.QuizState{}
}

func readState(t *testing.T, conn *websocket.Conn) domain.QuizState {
	t.Helper()
	msgType, msg := readNext(t, conn)
	if msgType != "state" {
		t.Fatalf("expected state, got %s", msgType)
	}
	return msg.Payload
}

func readNext(t *testing.T, conn *websocket.Conn) (string, outboundMessage[domain.QuizState]) {
	t.Helper()
	var msg outboundMessage[domain.QuizState]
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg
}
