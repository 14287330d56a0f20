// Package httpapi exposes the questionnaire engine over a webhook API.
// The chat-transport bridge posts one normalized event per request and
// receives the ordered outbound messages to render. This is the single
// boundary where engine failures are converted into the user-facing
// error texts.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkarpov/fitbot/internal/engine"
	"github.com/dkarpov/fitbot/internal/messages"
	"github.com/dkarpov/fitbot/internal/transport"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine    *engine.Engine
	msgs      messages.Messages
	tokenHash []byte
}

// New creates a new Handler. tokenHash is the bcrypt hash of the bearer
// token required on event requests; empty disables authentication.
func New(e *engine.Engine, msgs messages.Messages, tokenHash []byte) *Handler {
	return &Handler{engine: e, msgs: msgs, tokenHash: tokenHash}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.With(h.authMiddleware).Post("/users/{userID}/events", h.handleEvent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.tokenHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// eventResponse carries the ordered outbound messages of one pipeline.
type eventResponse struct {
	Messages []transport.Message `json:"messages"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var ev transport.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		slog.Warn("malformed event body", "user_id", userID, "error", err)
		h.respond(w, http.StatusBadRequest, h.serviceError())
		return
	}

	user := engine.User{ID: userID, Info: ev.UserInfo}
	ctx := r.Context()

	var msgs []transport.Message
	var err error
	switch ev.Type {
	case transport.EventStart:
		msgs, err = h.engine.Begin(ctx, user)
	case transport.EventRestart:
		msgs, err = h.engine.Restart(ctx, user)
	case transport.EventRewind:
		msgs, err = h.engine.RewindOne(ctx, user)
	case transport.EventHelp:
		msgs = []transport.Message{transport.Text(h.msgs.Help)}
	case transport.EventText, transport.EventChoice:
		if ev.Payload == "" {
			slog.Warn("answer event without payload", "user_id", userID, "type", ev.Type)
			h.respond(w, http.StatusBadRequest, h.serviceError())
			return
		}
		msgs, err = h.engine.SubmitAnswer(ctx, user, ev.Payload)
	case transport.EventImage:
		if ev.Payload == "" {
			slog.Warn("image event without reference", "user_id", userID)
			h.respond(w, http.StatusBadRequest, h.serviceError())
			return
		}
		msgs, err = h.engine.SubmitImage(ctx, user, ev.Payload)
	default:
		slog.Warn("unknown event type", "user_id", userID, "type", ev.Type)
		h.respond(w, http.StatusBadRequest, h.serviceError())
		return
	}

	if err != nil {
		slog.Error("engine pipeline failed", "user_id", userID, "type", ev.Type, "error", err)
		h.respond(w, http.StatusInternalServerError, h.serviceError())
		return
	}
	h.respond(w, http.StatusOK, msgs)
}

func (h *Handler) serviceError() []transport.Message {
	return []transport.Message{transport.Text(h.msgs.ServiceError)}
}

func (h *Handler) respond(w http.ResponseWriter, status int, msgs []transport.Message) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(eventResponse{Messages: msgs}); err != nil {
		slog.Error("encode response", "error", err)
	}
}
