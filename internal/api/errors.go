package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

// Error is the JSON body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeLinkUnavailable = "link_unavailable"
	ErrCodeNotConfigured   = "not_configured"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDriverError maps driver and protocol errors onto HTTP statuses.
func writeDriverError(w http.ResponseWriter, err error) {
	switch {
	case driver.IsInputError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, driver.ErrSendFailed),
		errors.Is(err, protocol.ErrNotConnected),
		errors.Is(err, protocol.ErrNoTransport):
		writeError(w, http.StatusServiceUnavailable, ErrCodeLinkUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
