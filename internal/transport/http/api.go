package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"rvl-week-service/internal/app"
	"rvl-week-service/internal/auth"
	"rvl-week-service/internal/domain"
	"rvl-week-service/internal/unlock"
)

const pendingCookie = "rvl_pending_unlock"

// API serves the REST surface of the event.
type API struct {
	service    *app.EventService
	unlocks    *unlock.Orchestrator
	log        *zap.Logger
	pendingTTL time.Duration
}

func NewAPI(service *app.EventService, unlocks *unlock.Orchestrator, log *zap.Logger, pendingTTL time.Duration) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{service: service, unlocks: unlocks, log: log, pendingTTL: pendingTTL}
}

type unlockBody struct {
	Method domain.UnlockMethod `json:"method"`
	Code   string              `json:"code"`
}

type pendingBody struct {
	ID string `json:"id"`
}

type stagedResponse struct {
	Pending domain.PendingUnlock `json:"pending"`
	Message string               `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ListDays handles GET /api/days.
func (a *API) ListDays(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.IdentityFromContext(r.Context())
	days, err := a.service.ListDays(r.Context(), user)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// UnlockDay handles POST /api/days/{day}/unlock.
func (a *API) UnlockDay(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.IdentityFromContext(r.Context())
	day, err := pathDay(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var body unlockBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid unlock payload"})
		return
	}
	res := a.unlocks.Unlock(r.Context(), unlock.Request{User: user, Day: day, Method: body.Method, Code: body.Code})
	writeJSON(w, http.StatusOK, res)
}

// WatchVideo handles POST /api/days/{day}/video.
func (a *API) WatchVideo(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.IdentityFromContext(r.Context())
	day, err := pathDay(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	days, err := a.service.MarkVideoWatched(r.Context(), user, day)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// Ranking handles GET /api/ranking?limit=N.
func (a *API) Ranking(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := a.service.Ranking(r.Context(), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// DeepLink handles GET /unlock?day=&token=. A signed-in user unlocks right away;
// anyone else gets the intent staged until they sign in.
func (a *API) DeepLink(w http.ResponseWriter, r *http.Request) {
	link, err := unlock.ParseQuery(r.URL.Query())
	if err != nil {
		a.fail(w, err)
		return
	}
	if user, ok := auth.IdentityFromContext(r.Context()); ok {
		res := a.unlocks.Unlock(r.Context(), unlock.Request{User: user, Day: link.Day, Method: domain.MethodQRCode, Token: link.Token})
		writeJSON(w, http.StatusOK, res)
		return
	}

	staged, err := a.unlocks.Stage(r.Context(), link)
	if err != nil {
		a.fail(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     pendingCookie,
		Value:    staged.ID,
		Path:     "/",
		MaxAge:   int(a.pendingTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusAccepted, stagedResponse{Pending: staged, Message: "Sign in to finish unlocking this day."})
}

// CompletePending handles POST /api/unlock/pending. The intent id comes from the
// body or, failing that, the cookie set by DeepLink.
func (a *API) CompletePending(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.IdentityFromContext(r.Context())
	var body pendingBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.ID == "" {
		if c, err := r.Cookie(pendingCookie); err == nil {
			body.ID = c.Value
		}
	}
	if body.ID == "" {
		a.fail(w, domain.ErrPendingNotFound)
		return
	}
	res := a.unlocks.CompletePending(r.Context(), user, body.ID)
	if res.Success {
		http.SetCookie(w, &http.Cookie{Name: pendingCookie, Value: "", Path: "/", MaxAge: -1})
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case auth.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrDayLocked):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDayNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPendingNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuizAlreadyCompleted):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func pathDay(r *http.Request) (int, error) {
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil || day <= 0 {
		return 0, domain.ErrInvalidInput
	}
	return day, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
