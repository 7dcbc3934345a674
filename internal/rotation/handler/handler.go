// Package handler exposes the rotating-credential endpoints: the holder's
// display surface (current code, QR render, forced refresh) and the staff
// scanner's validate call.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/musicamatics/queueskip/internal/credential"
	"github.com/musicamatics/queueskip/internal/pass/models"
	"github.com/musicamatics/queueskip/internal/platform/middleware"
	"github.com/musicamatics/queueskip/internal/rotation"
	"github.com/musicamatics/queueskip/internal/transport/http/shared"
	id "github.com/musicamatics/queueskip/pkg/domain"
	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

// Service is the rotation surface the handler consumes.
type Service interface {
	CurrentCredential(ctx context.Context, passID id.PassID) (*credential.Credential, error)
	Rotate(ctx context.Context, passID id.PassID) (*credential.Credential, error)
	Validate(ctx context.Context, opaqueToken string) (*rotation.ValidationResult, error)
}

// Scheduler controls the per-pass rotation timers.
type Scheduler interface {
	Start(passID id.PassID)
	Stop(passID id.PassID)
}

// PassReader checks ownership before handing out credentials.
type PassReader interface {
	GetPass(ctx context.Context, passID id.PassID) (*models.Pass, error)
}

// Handler handles credential display and validation endpoints.
type Handler struct {
	rotation  Service
	scheduler Scheduler
	passes    PassReader
	logger    *slog.Logger
}

func New(rotationSvc Service, scheduler Scheduler, passes PassReader, logger *slog.Logger) *Handler {
	return &Handler{rotation: rotationSvc, scheduler: scheduler, passes: passes, logger: logger}
}

// Register mounts the rotation routes. The caller has already applied the
// platform middleware chain and RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/passes/{passID}/credential", h.handleCredential)
	r.Post("/passes/{passID}/credential/refresh", h.handleRefresh)
	r.Delete("/passes/{passID}/display", h.handleStopDisplay)
	r.With(middleware.RequireRole("staff", h.logger)).
		Post("/validate", h.handleValidate)
}

// handleCredential returns the pass's current code and begins rotating it:
// fetching the credential is the "actively displayed" signal.
func (h *Handler) handleCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passID, ok := h.ownedPass(w, r)
	if !ok {
		return
	}

	cred, err := h.rotation.CurrentCredential(ctx, passID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.scheduler.Start(passID)

	if r.URL.Query().Get("render") == "qr" {
		png, err := credential.RenderQR(cred.Token)
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "render credential"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
		return
	}
	h.writeCredential(w, cred)
}

// handleRefresh forces a rotation outside the timer cadence.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passID, ok := h.ownedPass(w, r)
	if !ok {
		return
	}

	cred, err := h.rotation.Rotate(ctx, passID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.writeCredential(w, cred)
}

// handleStopDisplay ends the rotation timer when the holder closes the
// display.
func (h *Handler) handleStopDisplay(w http.ResponseWriter, r *http.Request) {
	passID, ok := h.ownedPass(w, r)
	if !ok {
		return
	}
	h.scheduler.Stop(passID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	res, err := h.rotation.Validate(ctx, req.Token)
	if err != nil {
		h.logger.InfoContext(ctx, "validation rejected",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, validateResponse{
		PassID:  res.PassID.String(),
		UserID:  res.UserID.String(),
		VenueID: res.VenueID.String(),
	})
}

// ownedPass parses the path param and confirms the caller holds the pass.
func (h *Handler) ownedPass(w http.ResponseWriter, r *http.Request) (id.PassID, bool) {
	ctx := r.Context()
	passID, err := id.ParsePassID(chi.URLParam(r, "passID"))
	if err != nil {
		shared.WriteError(w, err)
		return id.PassID{}, false
	}
	p, err := h.passes.GetPass(ctx, passID)
	if err != nil {
		shared.WriteError(w, err)
		return id.PassID{}, false
	}
	if p.UserID.String() != middleware.GetUserID(ctx) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotOwner, "pass belongs to another holder"))
		return id.PassID{}, false
	}
	return passID, true
}

func (h *Handler) writeCredential(w http.ResponseWriter, cred *credential.Credential) {
	dataURL, err := credential.RenderQRDataURL(cred.Token)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "render credential"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, credentialResponse{
		Token:     cred.Token,
		Signature: cred.Signature,
		IssuedAt:  cred.IssuedAt,
		ExpiresAt: cred.ExpiresAt,
		QRCode:    dataURL,
	})
}
