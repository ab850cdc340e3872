package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/constants"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

var validate = validator.New()

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
	}
	return nil
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, quiz.ErrUnknownOption):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, quiz.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, quiz.ErrUnanswered),
		errors.Is(err, quiz.ErrNotQuestionStep),
		errors.Is(err, quiz.ErrNotCaptureStep),
		errors.Is(err, quiz.ErrSubmissionInFlight),
		errors.Is(err, quiz.ErrCompleted),
		errors.Is(err, quiz.ErrStepChanged),
		errors.Is(err, capture.ErrNotReady),
		errors.Is(err, capture.ErrFrameNotReady),
		errors.Is(err, capture.ErrNotPositioned),
		errors.Is(err, capture.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, capture.ErrDeviceUnavailable),
		errors.Is(err, capture.ErrDetectorLoadFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError sends err with the status errorStatus picks for it.
func respondDomainError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	respondError(w, status, msg)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
