// Package handler is the thin HTTP layer over the pass ledger. It translates
// request bodies and path params into service calls and domain errors into
// the shared envelope; no business logic lives here.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/musicamatics/queueskip/internal/pass/models"
	"github.com/musicamatics/queueskip/internal/pass/service"
	"github.com/musicamatics/queueskip/internal/platform/middleware"
	"github.com/musicamatics/queueskip/internal/transport/http/shared"
	id "github.com/musicamatics/queueskip/pkg/domain"
	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

// Service is the pass ledger surface the handler consumes.
type Service interface {
	Allocate(ctx context.Context, userID id.UserID, venueID id.VenueID) ([]*models.Pass, error)
	Redeem(ctx context.Context, passID id.PassID, staffID id.StaffID) (*models.Pass, error)
	Transfer(ctx context.Context, passID id.PassID, fromUserID, toUserID id.UserID) (*service.TransferResult, error)
	GetPass(ctx context.Context, passID id.PassID) (*models.Pass, error)
	ListUserPasses(ctx context.Context, userID id.UserID, venueID id.VenueID) ([]*models.Pass, error)
}

// Handler handles pass lifecycle endpoints.
type Handler struct {
	passes Service
	logger *slog.Logger
}

func New(passes Service, logger *slog.Logger) *Handler {
	return &Handler{passes: passes, logger: logger}
}

// Register mounts the pass routes. The caller has already applied the
// platform middleware chain and RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/venues/{venueID}/passes", h.handleAllocate)
	r.Get("/venues/{venueID}/passes", h.handleList)
	r.Get("/passes/{passID}", h.handleGet)
	r.Post("/passes/{passID}/transfer", h.handleTransfer)
	r.With(middleware.RequireRole("staff", h.logger)).
		Post("/passes/{passID}/redeem", h.handleRedeem)
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(middleware.GetUserID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid caller identity"))
		return
	}
	venueID, err := id.ParseVenueID(chi.URLParam(r, "venueID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	issued, err := h.passes.Allocate(ctx, userID, venueID)
	if err != nil {
		h.logger.WarnContext(ctx, "allocate failed",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, allocateResponse{Passes: toPassViews(issued)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(middleware.GetUserID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid caller identity"))
		return
	}
	venueID, err := id.ParseVenueID(chi.URLParam(r, "venueID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	passes, err := h.passes.ListUserPasses(ctx, userID, venueID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{Passes: toPassViews(passes)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
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
	// Holders see their own passes; staff see any pass at their venue.
	if p.UserID.String() != middleware.GetUserID(ctx) && !isStaff(ctx) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotOwner, "pass belongs to another holder"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPassView(p))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fromUserID, err := id.ParseUserID(middleware.GetUserID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid caller identity"))
		return
	}
	passID, err := id.ParsePassID(chi.URLParam(r, "passID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	toUserID, err := id.ParseUserID(req.ToUserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.passes.Transfer(ctx, passID, fromUserID, toUserID)
	if err != nil {
		h.logger.WarnContext(ctx, "transfer failed",
			"request_id", middleware.GetRequestID(ctx), "pass_id", passID, "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, transferResponse{
		Source: toPassView(res.Source),
		New:    toPassView(res.New),
	})
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	staffID, err := id.ParseStaffID(middleware.GetUserID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid caller identity"))
		return
	}
	passID, err := id.ParsePassID(chi.URLParam(r, "passID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	p, err := h.passes.Redeem(ctx, passID, staffID)
	if err != nil {
		h.logger.WarnContext(ctx, "redeem failed",
			"request_id", middleware.GetRequestID(ctx), "pass_id", passID, "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPassView(p))
}

func isStaff(ctx context.Context) bool {
	role := middleware.GetRole(ctx)
	return role == "staff" || role == "admin"
}
