package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/services"
	pkghttp "github.com/rmvisser/gatehouse/pkg/http"
)

// writeServiceError maps service errors onto HTTP responses. Internal detail
// never reaches the client; unknown errors are logged and masked.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *services.ValidationError
	var rateLimitErr *services.RateLimitError

	switch {
	case errors.As(err, &validationErr):
		pkghttp.WriteValidationErrors(w, validationErr.Messages)
	case errors.As(err, &rateLimitErr):
		pkghttp.WriteTooManyRequests(w, "too many attempts, please try again later", rateLimitErr.RetryAfterSeconds)
	case errors.Is(err, models.ErrCSRFInvalid):
		pkghttp.WriteForbidden(w, "security validation failed, please reload the page and try again")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "comment has already been moderated")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "invalid request")
	default:
		logger.Error("unhandled service error", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "an unexpected error occurred")
	}
}
