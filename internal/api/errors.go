package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/satoshigo/hunt/pkg/core"
)

const (
	kindUnauthorized = "Unauthorized"
	maxBodyBytes     = 1 << 20
)

var errUnauthorized = errors.New("missing or unknown api key")

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindInvalidAmount, core.KindInvalidInput:
		return http.StatusBadRequest
	case core.KindAlreadyCollected:
		return http.StatusConflict
	case core.KindOutOfRange:
		return http.StatusUnprocessableEntity
	case core.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes data with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Failed to encode response", "error", err)
	}
}

// writeError maps err to a status and writes an ErrorResponse. Upstream and
// internal failures are logged and answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnauthorized) {
		s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Kind: kindUnauthorized, Message: err.Error()})
		return
	}

	kind := core.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	switch kind {
	case core.KindUpstreamUnavailable:
		s.logger.WarnContext(r.Context(), "Upstream unavailable", "error", err)
		msg = "payment service unavailable, try again later"
	case core.KindInternal:
		s.logger.ErrorContext(r.Context(), "Request failed", "error", err)
		msg = "internal error"
	}
	s.writeJSON(w, status, ErrorResponse{Kind: kind, Message: msg})
}

// decodeJSON reads a JSON body into v. Malformed bodies are invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty: %w", core.ErrInvalidInput)
		}
		return fmt.Errorf("malformed request body: %v: %w", err, core.ErrInvalidInput)
	}
	return nil
}
