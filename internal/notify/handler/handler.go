// Package handler streams live pass and venue events to connected viewers
// over server-sent events. Streams are best-effort mirrors of the hub: a
// client that connects late starts from silence and re-fetches current state
// through the read path.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/musicamatics/queueskip/internal/notify"
	"github.com/musicamatics/queueskip/internal/pass/models"
	"github.com/musicamatics/queueskip/internal/platform/middleware"
	"github.com/musicamatics/queueskip/internal/transport/http/shared"
	id "github.com/musicamatics/queueskip/pkg/domain"
	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

const heartbeatInterval = 15 * time.Second

// PassReader checks ownership before attaching a stream.
type PassReader interface {
	GetPass(ctx context.Context, passID id.PassID) (*models.Pass, error)
}

// Handler serves the event streams.
type Handler struct {
	hub    *notify.Hub
	passes PassReader
	logger *slog.Logger
}

func New(hub *notify.Hub, passes PassReader, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, passes: passes, logger: logger}
}

// Register mounts the event stream routes. The caller has already applied
// RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/passes/{passID}/events", h.handlePassEvents)
	r.With(middleware.RequireRole("staff", h.logger)).
		Get("/venues/{venueID}/events", h.handleVenueEvents)
}

func (h *Handler) handlePassEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passID, err := id.ParsePassID(chi.URLParam(r, "passID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	p, err := h.passes.GetPass(ctx, passID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if p.UserID.String() != middleware.GetUserID(ctx) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotOwner, "pass belongs to another holder"))
		return
	}

	h.stream(w, r, notify.PassTopic(passID))
}

func (h *Handler) handleVenueEvents(w http.ResponseWriter, r *http.Request) {
	venueID, err := id.ParseVenueID(chi.URLParam(r, "venueID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.stream(w, r, notify.VenueTopic(venueID))
}

// stream attaches the client to the topic until it disconnects.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, topic string) {
	ctx := r.Context()
	flusher := flusherFor(w)
	if flusher == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	events, cancel := h.hub.Subscribe(topic)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.WarnContext(ctx, "event encode failed", "topic", topic, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			flusher.Flush()
		}
	}
}

// flusherFor finds the connection's Flusher behind the middleware response
// writer wrappers, which expose the writer they wrap via Unwrap.
func flusherFor(w http.ResponseWriter) http.Flusher {
	for {
		switch v := w.(type) {
		case http.Flusher:
			return v
		case interface{ Unwrap() http.ResponseWriter }:
			w = v.Unwrap()
		default:
			return nil
		}
	}
}
