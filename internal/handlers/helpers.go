package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/queue"
	"github.com/ternarybob/sicknote/internal/services/analysis"
	"github.com/ternarybob/sicknote/internal/services/artifacts"
	"github.com/ternarybob/sicknote/internal/services/limiter"
	"github.com/ternarybob/sicknote/internal/services/mailer"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// StatusFor maps a service error onto an HTTP status code
func StatusFor(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, artifacts.ErrRecordNotFound), errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, limiter.ErrRateLimitExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, artifacts.ErrArtifactNotCached),
		errors.Is(err, analysis.ErrInvalidAnswers),
		errors.Is(err, mailer.ErrAttachmentMissing),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError logs err and writes it with the mapped status code.
// Internal errors are reported with the generic message only.
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, err error, message string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error().Err(err).Msg(message)
		WriteError(w, status, message)
		return
	}
	logger.Debug().Err(err).Int("status", status).Msg(message)
	WriteError(w, status, err.Error())
}

// PathID returns the first path segment after prefix.
// Example: PathID("/api/jobs/abc/results", "/api/jobs/") -> "abc"
func PathID(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return ""
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// GetLimitParam reads ?limit=, clamped to [1, max]
func GetLimitParam(r *http.Request, fallback, max int) int {
	limit := fallback
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
