// Package shared holds the response helpers every handler uses, so error
// envelopes and status mapping stay consistent across the API surface.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a coded domain error to its HTTP status and writes the
// error envelope. Uncoded errors surface as 500 INTERNAL.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	WriteJSON(w, statusFor(code), ErrorResponse{
		Error:     string(code),
		Message:   message,
		Retryable: dErrors.IsRetryable(err),
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeMalformedCredential:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotOwner, dErrors.CodeTransferDisabled, dErrors.CodeNotTransferable,
		dErrors.CodeRecipientNotEligible, dErrors.CodeRestricted:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyRedeemed, dErrors.CodeExpired, dErrors.CodeStaleCredential:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
