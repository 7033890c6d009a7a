package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/services"
)

const defaultTimeout = 10 * time.Second

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,128}$`)

// validUserID rejects "." and "..", which match the pattern but are path segments.
func validUserID(id string) bool {
	return id != "." && id != ".." && userIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func contextWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(parent, d)
}

// userIDParam returns the {id} URL parameter, writing a 400 when it is malformed.
func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validUserID(id) {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "Invalid user id"))
		return "", false
	}
	return id, true
}

// decodeJSON decodes an optional JSON body into dst. An empty body leaves dst as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse(models.CodePayloadTooLarge, "Request body too large"))
		return false
	}
	writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "Invalid request body"))
	return false
}

// writeError maps service errors onto the API envelope. Unknown errors are logged and
// reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, op, userID string, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(verr.Fields))
	case errors.Is(err, services.ErrInvalidBirthday):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidBirthdayFormat,
			"Invalid birthday format, use MM-DD, YYYY-MM-DD, DD-MM-YYYY or YYYY-MM"))
	case errors.Is(err, services.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "Invalid input"))
	case errors.Is(err, services.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse(models.CodeNotFound, "User not found"))
	case errors.Is(err, services.ErrScreenshotNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse(models.CodeNotFound, "Screenshot not found"))
	case errors.Is(err, services.ErrPushDisabled):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse(models.CodeNotFound, "Push notifications are not configured"))
	case errors.Is(err, services.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(models.CodeUnauthorized, "Invalid credentials"))
	case errors.Is(err, services.ErrForbidden):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse(models.CodeForbidden, "Forbidden"))
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Str("user", userID).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(models.CodeInternal, "Internal server error"))
	}
}
