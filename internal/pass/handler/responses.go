package handler

import (
	"time"

	"github.com/musicamatics/queueskip/internal/pass/models"
)

type transferRequest struct {
	ToUserID string `json:"toUserId"`
}

type passView struct {
	ID           string               `json:"id"`
	UserID       string               `json:"userId"`
	VenueID      string               `json:"venueId"`
	PassTypeID   string               `json:"passTypeId"`
	Status       string               `json:"status"`
	ValidFrom    time.Time            `json:"validFrom"`
	ValidUntil   time.Time            `json:"validUntil"`
	Restrictions []models.Restriction `json:"restrictions,omitempty"`
	ReceiptID    string               `json:"receiptId,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
}

type allocateResponse struct {
	Passes []passView `json:"passes"`
}

type listResponse struct {
	Passes []passView `json:"passes"`
}

type transferResponse struct {
	Source passView `json:"source"`
	New    passView `json:"new"`
}

func toPassView(p *models.Pass) passView {
	return passView{
		ID:           p.ID.String(),
		UserID:       p.UserID.String(),
		VenueID:      p.VenueID.String(),
		PassTypeID:   p.PassTypeID.String(),
		Status:       string(p.Status),
		ValidFrom:    p.ValidFrom,
		ValidUntil:   p.ValidUntil,
		Restrictions: p.Restrictions,
		ReceiptID:    p.ReceiptID,
		CreatedAt:    p.CreatedAt,
	}
}

func toPassViews(passes []*models.Pass) []passView {
	views := make([]passView, len(passes))
	for i, p := range passes {
		views[i] = toPassView(p)
	}
	return views
}
