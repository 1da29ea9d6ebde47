package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"rvl-week-service/internal/auth"
	"rvl-week-service/internal/domain"
	"rvl-week-service/internal/unlock"
)

func zapNop() *zap.Logger { return zap.NewNop() }

func TestStatusForRejectedToken(t *testing.T) {
	_, err := auth.NewVerifier([]byte("secret"), nil).Parse("not-a-token")
	if got := statusFor(err); got != http.StatusUnauthorized {
		t.Fatalf("expected 401 for rejected token, got %d", got)
	}
	if got := statusFor(domain.ErrDayLocked); got != http.StatusForbidden {
		t.Fatalf("expected 403 for locked day, got %d", got)
	}
}

func TestDaysRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/days")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUnlockWithCodeThenListDays(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "u1", "Alice")

	var res unlock.Result
	status := doJSON(t, http.MethodPost, srv.URL+"/api/days/1/unlock", tok, map[string]string{"method": "qrcode", "code": "rvl-day1 "}, &res)
	if status != http.StatusOK || !res.Success || res.PointsEarned != 50 {
		t.Fatalf("unexpected unlock %d %+v", status, res)
	}

	var days []domain.DayView
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/days", tok, nil, &days); status != http.StatusOK {
		t.Fatalf("list days status %d", status)
	}
	if len(days) != 2 || days[0].Status != domain.DayAvailable || days[0].Points != 50 {
		t.Fatalf("unexpected days %+v", days)
	}
	if days[1].QRCode != domain.Allowed || days[1].Manual != domain.BlockedByTime {
		t.Fatalf("unexpected day 2 decisions %+v", days[1])
	}
}

func TestUnlockWrongCodeReportsMessage(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "u1", "Alice")

	var res unlock.Result
	doJSON(t, http.MethodPost, srv.URL+"/api/days/1/unlock", tok, map[string]string{"method": "qrcode", "code": "nope"}, &res)
	if res.Success || !strings.Contains(res.Message, "try again") {
		t.Fatalf("unexpected result %+v", res)
	}

	var errBody errorResponse
	if status := doJSON(t, http.MethodPost, srv.URL+"/api/days/zero/unlock", tok, map[string]string{"method": "manual"}, &errBody); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad day, got %d", status)
	}
}

func TestDeepLinkStagesThenCompletes(t *testing.T) {
	srv := newTestServer(t)
	token, err := srv.validator.IssueToken(1, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	link := unlock.Link{Day: 1, Token: token}.String()

	var staged stagedResponse
	if status := doJSON(t, http.MethodGet, srv.URL+link, "", nil, &staged); status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	if staged.Pending.ID == "" || staged.Pending.Day != 1 {
		t.Fatalf("unexpected staged %+v", staged)
	}

	tok := srv.token(t, "u1", "Alice")
	var res unlock.Result
	doJSON(t, http.MethodPost, srv.URL+"/api/unlock/pending", tok, pendingBody{ID: staged.Pending.ID}, &res)
	if !res.Success || res.PointsEarned != 50 {
		t.Fatalf("unexpected completion %+v", res)
	}

	var again errorResponse
	if status := doJSON(t, http.MethodPost, srv.URL+"/api/unlock/pending", tok, nil, &again); status != http.StatusNotFound {
		t.Fatalf("expected 404 with no pending id, got %d", status)
	}
}

func TestDeepLinkSignedInUnlocksImmediately(t *testing.T) {
	srv := newTestServer(t)
	token, _ := srv.validator.IssueToken(1, time.Hour)
	tok := srv.token(t, "u1", "Alice")

	var res unlock.Result
	doJSON(t, http.MethodGet, srv.URL+unlock.Link{Day: 1, Token: token}.String(), tok, nil, &res)
	if !res.Success {
		t.Fatalf("expected unlock, got %+v", res)
	}

	var errBody errorResponse
	if status := doJSON(t, http.MethodGet, srv.URL+"/unlock?day=abc&token=x", "", nil, &errBody); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed link, got %d", status)
	}
}

func TestVideoAndRanking(t *testing.T) {
	srv := newTestServer(t)
	tok := srv.token(t, "u1", "Alice")

	var errBody errorResponse
	if status := doJSON(t, http.MethodPost, srv.URL+"/api/days/1/video", tok, nil, &errBody); status != http.StatusForbidden {
		t.Fatalf("expected 403 for locked day, got %d", status)
	}

	var res unlock.Result
	doJSON(t, http.MethodPost, srv.URL+"/api/days/1/unlock", tok, map[string]string{"method": "manual"}, &res)
	if !res.Success || res.PointsEarned != 0 {
		t.Fatalf("unexpected manual unlock %+v", res)
	}
	var days []domain.DayView
	if status := doJSON(t, http.MethodPost, srv.URL+"/api/days/1/video", tok, nil, &days); status != http.StatusOK {
		t.Fatalf("video status %d", status)
	}

	var ranking []domain.RankingEntry
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/ranking?limit=5", "", nil, &ranking); status != http.StatusOK {
		t.Fatalf("ranking status %d", status)
	}
	if len(ranking) != 1 || ranking[0].DisplayName != "Alice" || ranking[0].Points != 20 {
		t.Fatalf("unexpected ranking %+v", ranking)
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/ranking?limit=-1", "", nil, &errBody); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", status)
	}
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}
