package handler

import "time"

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	PassID  string `json:"passId"`
	UserID  string `json:"userId"`
	VenueID string `json:"venueId"`
}

type credentialResponse struct {
	Token     string    `json:"token"`
	Signature string    `json:"signature"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	QRCode    string    `json:"qrCode"`
}
