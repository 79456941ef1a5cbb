// Package handler holds the HTTP handlers for the market settlement API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tylerheishman/manifold/internal/domain"
)

// writeJSON marshals v as JSON and writes it with the given status code. If
// marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError maps err onto an HTTP status via domain.StatusCode and writes a
// JSON error body. Internal errors are logged and masked; domain APIErrors
// surface their message to the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := domain.StatusCode(err)

	var apiErr *domain.APIError
	msg := "internal server error"
	if errors.As(err, &apiErr) && status < 500 {
		msg = apiErr.Message
	}
	if status >= 500 {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewAPIError(400, "invalid request body")
	}
	return nil
}
