package api

import (
	"encoding/json"
	"net/http"

	"prepaid-subscription/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, errorBody{Error: reason, Message: msg})
}

// writeDomainError maps a use case error to its HTTP status and reason.
// Internal errors are not echoed to the caller.
func writeDomainError(w http.ResponseWriter, err error) {
	reason := domain.ReasonOf(err)
	status := StatusFor(reason)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, reason, msg)
}

// StatusFor returns the HTTP status used for a reason code.
func StatusFor(reason string) int {
	switch reason {
	case domain.ReasonInvalidArgument:
		return http.StatusBadRequest
	case domain.ReasonNotFound:
		return http.StatusNotFound
	case domain.ReasonAlreadyRedeemed, domain.ReasonRevoked, domain.ReasonExpired,
		domain.ReasonAlreadySubscribed, domain.ReasonConflict:
		return http.StatusConflict
	case domain.ReasonRateLimited:
		return http.StatusTooManyRequests
	case domain.ReasonUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
