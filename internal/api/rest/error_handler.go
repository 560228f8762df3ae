package rest

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/go-playground/validator/v10"
)

// writeError maps any error onto the standard envelope. Domain errors
// carry their own status codes; everything else is a 500 with the
// detail kept out of the response body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.StatusCode >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "request failed",
				"method", r.Method, "path", r.URL.Path, "code", appErr.Code, "error", err)
		}
		body := ErrorResponse{Error: ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}}
		writeJSON(w, appErr.StatusCode, body)
		return
	}

	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) {
		details := make(map[string]interface{}, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: details,
		}})
		return
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusRequestTimeout, ErrorResponse{Error: ErrorBody{
			Code:    "REQUEST_TIMEOUT",
			Message: "Request was canceled or timed out",
		}})
		return
	}

	slog.ErrorContext(r.Context(), "unhandled request error",
		"method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
		Code:    "INTERNAL_ERROR",
		Message: "An internal error occurred",
	}})
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
		Code:    code,
		Message: message,
	}})
}
