package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/growlog/growlog/internal/log"
)

// maxBodyBytes bounds request bodies. Base64 food images fit
// comfortably; anything larger is abuse.
const maxBodyBytes = 10 << 20

// Error kinds reported to callers. These are caller-facing outcomes,
// distinct from the internal fallbacks the pipeline applies silently.
const (
	errInvalidRequest  = "invalid_request"
	errExternalService = "external_service_error"
	errMalformedOutput = "malformed_model_output"
)

// ErrorResponse is the JSON error shape for all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// If encoding fails after WriteHeader, the status is already on the
// wire; the error is only logged.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, logger log.Logger, status int, kind, message string) {
	writeJSON(w, logger, status, ErrorResponse{Error: kind, Message: message})
}

// decodeBody parses a JSON request body into v with a size bound.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
