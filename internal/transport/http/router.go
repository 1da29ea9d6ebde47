package http

import (
	"net/http"

	"go.uber.org/zap"
	"rvl-week-service/internal/auth"
)

// NewRouter mounts every route behind the auth and logging middleware.
func NewRouter(api *API, ws *WSHandler, verifier *auth.Verifier, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("GET /api/days", auth.RequireAuth(http.HandlerFunc(api.ListDays)))
	mux.Handle("POST /api/days/{day}/unlock", auth.RequireAuth(http.HandlerFunc(api.UnlockDay)))
	mux.Handle("POST /api/days/{day}/video", auth.RequireAuth(http.HandlerFunc(api.WatchVideo)))
	mux.Handle("POST /api/unlock/pending", auth.RequireAuth(http.HandlerFunc(api.CompletePending)))
	mux.HandleFunc("GET /api/ranking", api.Ranking)
	mux.HandleFunc("GET /unlock", api.DeepLink)
	mux.Handle("GET /ws/quiz", auth.RequireAuth(http.HandlerFunc(ws.ServeWS)))

	return RequestLogger(log, verifier.WithAuth(mux))
}
