package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"rvl-week-service/internal/app"
	"rvl-week-service/internal/auth"
	"rvl-week-service/internal/domain"
)

const msgSessionReplaced = "This quiz was opened in another window."

// WSHandler drives one quiz session per websocket.
type WSHandler struct {
	service  *app.EventService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.EventService, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades GET /ws/quiz?day=N and plays the day's quiz over the socket.
// Closing the socket abandons an unfinished quiz.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: domain.ErrUnauthorized.Error()})
		return
	}
	day, err := strconv.Atoi(r.URL.Query().Get("day"))
	if err != nil || day <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid day"})
		return
	}

	session, err := h.service.StartQuiz(r.Context(), user, day)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	defer h.service.EndQuiz(session)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := session.Subscribe()
	defer cancel()

	log := h.log.With(zap.String("user", user.UserID), zap.Int("day", day), zap.String("session", session.ID()))
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case state, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: state}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		// a newer socket for the same day replaced this session
		if current, err := h.service.Session(user.UserID, day); err != nil || current != session {
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msgSessionReplaced}})
			break
		}
		switch inbound.Type {
		case "start":
			if err := session.Start(); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "answer":
			var payload answerPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
					continue
				}
			}
			session.Submit(payload.Answer)
		case "next":
			session.Advance()
		case "retry":
			session.RetrySave()
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
