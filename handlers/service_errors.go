package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/kudos-portal/services"
	"github.com/upb/kudos-portal/utils"
	"go.uber.org/zap"
)

// StatusForError maps a service error to the HTTP status it is reported with
func StatusForError(err error) int {
	switch {
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case services.IsForbiddenError(err):
		return http.StatusForbidden
	case services.IsConflictError(err):
		return http.StatusConflict
	case services.IsExternalError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the human readable part of err. Internal and untyped
// errors get a generic message so causes never leak to the client.
func UserMessage(err error) string {
	var domainErr *services.DomainError
	if services.IsInternalError(err) || !errors.As(err, &domainErr) {
		return "An unexpected error occurred"
	}
	return domainErr.Message
}

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := UserMessage(err)

	var writeErr error
	switch status := StatusForError(err); status {
	case http.StatusNotFound:
		writeErr = utils.WriteNotFound(w, message)
	case http.StatusBadRequest:
		writeErr = utils.WriteBadRequest(w, message, details)
	case http.StatusUnauthorized:
		writeErr = utils.WriteUnauthorized(w, message)
	case http.StatusForbidden:
		writeErr = utils.WriteForbidden(w, message)
	case http.StatusConflict:
		writeErr = utils.WriteConflict(w, message, details)
	case http.StatusBadGateway:
		logger.Warn("upstream service error", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, message)
	default:
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, message)
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
