package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/fileshare/internal/common"
)

// envelope is the JSON body of every non-download response.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	if _, ok := body["success"]; !ok {
		body["success"] = status < http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": false, "error": msg})
}

// statusFor maps a service error to the HTTP status and the message shown to
// the client. A refusal on a token restricted to someone else is reported
// like a missing file.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "file too large"
	case errors.Is(err, common.ErrAuthRequired):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrNotOwner):
		return http.StatusForbidden, "not the owner of this file"
	case errors.Is(err, common.ErrRefreshTokenExpired), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", common.ErrValidation)
	}
	return nil
}
