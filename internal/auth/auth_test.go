package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rvl-week-service/internal/domain"
)

func TestSignAndParse(t *testing.T) {
	v := NewVerifier([]byte("secret"), []string{"admin"})

	tok, err := v.Sign(domain.Identity{UserID: "u1", DisplayName: "Alice"}, "admin", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := v.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.UserID != "u1" || id.DisplayName != "Alice" || !id.Elevated {
		t.Fatalf("unexpected identity %+v", id)
	}

	other := NewVerifier([]byte("other"), nil)
	if _, err := other.Parse(tok); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized for foreign signature, got %v", err)
	}
	expired, _ := v.Sign(domain.Identity{UserID: "u1"}, "", -time.Minute)
	if _, err := v.Parse(expired); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized for expired token, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier([]byte("secret"), nil)
	tok, _ := v.Sign(domain.Identity{UserID: "u1"}, "member", time.Hour)

	var seen domain.Identity
	h := v.WithAuth(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/days", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/days", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen.UserID != "u1" || seen.Elevated {
		t.Fatalf("expected authenticated member, got %d %+v", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/quiz?access_token="+tok, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected query token accepted, got %d", rec.Code)
	}
}
