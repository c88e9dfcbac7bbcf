package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/submerge-go/internal/config"
	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/fetch"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
	"github.com/John-Robertt/submerge-go/internal/pipeline"
	"github.com/John-Robertt/submerge-go/internal/render"
	"github.com/John-Robertt/submerge-go/internal/sub"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

// statusOf maps an error from any pipeline stage to its HTTP status and
// payload. ok is false for errors no stage produced.
func statusOf(err error) (int, model.AppError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status, ae.AppError, true
	}

	var ce *config.Error
	if errors.As(err, &ce) {
		return http.StatusBadRequest, ce.AppError, true
	}

	var pe *pipeline.Error
	if errors.As(err, &pe) {
		if pe.AppError.Code == "CONFIGURATION_ERROR" {
			return http.StatusBadRequest, pe.AppError, true
		}
		// EMPTY_RESULT wraps the per-source failures; report the aggregate.
		return http.StatusUnprocessableEntity, pe.AppError, true
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return fe.Status, fe.AppError, true
	}

	// Content errors from upstream data => 422.
	var se *sub.ParseError
	if errors.As(err, &se) {
		return http.StatusUnprocessableEntity, se.AppError, true
	}

	var de *encode.DecodeError
	if errors.As(err, &de) {
		return http.StatusUnprocessableEntity, de.AppError, true
	}

	var ne *naming.RenameError
	if errors.As(err, &ne) {
		return http.StatusUnprocessableEntity, ne.AppError, true
	}

	var re *render.RenderError
	if errors.As(err, &re) {
		return http.StatusUnprocessableEntity, re.AppError, true
	}

	return 0, model.AppError{}, false
}

func (s *server) writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	status, app, ok := statusOf(err)
	if !ok {
		// Fallback: internal bug.
		status = http.StatusInternalServerError
		app = model.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "服务端内部错误",
			Stage:   "internal",
			Hint:    err.Error(),
		}
	}
	s.metrics.incAppError(app.Stage, app.Code)
	WriteError(w, status, app)
}
