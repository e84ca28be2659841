package engine

import (
	"errors"
	"fmt"

	"lims-forms/internal/client"
	"lims-forms/internal/form"
	"lims-forms/internal/section"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(kind, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", kind, id),
	}
}

func UnknownFormError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_FORM",
		Status:  404,
		Message: fmt.Sprintf("Unknown form: %s", name),
	}
}

func UnknownSectionError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_SECTION",
		Status:  404,
		Message: fmt.Sprintf("Unknown section: %s", name),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func InvalidPayloadError(msg string) *AppError {
	return NewAppError("INVALID_PAYLOAD", 400, msg)
}

func UnauthorizedError(msg string) *AppError {
	return NewAppError("UNAUTHORIZED", 401, msg)
}

func ForbiddenError(msg string) *AppError {
	return NewAppError("FORBIDDEN", 403, msg)
}

func UpstreamError(msg string) *AppError {
	return NewAppError("UPSTREAM_ERROR", 502, msg)
}

// toAppError maps domain errors to their API form. Unrecognized errors are
// returned unchanged and end up as INTERNAL_ERROR.
func toAppError(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var vErr *form.ValidationError
	if errors.As(err, &vErr) {
		details := make([]ErrorDetail, len(vErr.Problems))
		for i, p := range vErr.Problems {
			details[i] = ErrorDetail{Field: p.Field, Rule: p.Rule, Message: p.Message}
		}
		return ValidationError(details)
	}

	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status == 404 {
			return NewAppError("NOT_FOUND", 404, "Record not found on the backend")
		}
		return UpstreamError(fmt.Sprintf("Backend request failed with status %d", statusErr.Status))
	}

	switch {
	case errors.Is(err, form.ErrSessionNotFound):
		return NewAppError("NOT_FOUND", 404, "Session not found")
	case errors.Is(err, form.ErrSessionEnded):
		return NewAppError("SESSION_CLOSED", 409, "Session has ended")
	case errors.Is(err, form.ErrReadOnly):
		return NewAppError("READ_ONLY", 409, "Record is open in view mode")
	case errors.Is(err, form.ErrUnknownSection):
		return NewAppError("UNKNOWN_SECTION", 404, err.Error())
	case errors.Is(err, form.ErrUnknownField), errors.Is(err, form.ErrUnknownFlag):
		return InvalidPayloadError(err.Error())
	case errors.Is(err, section.ErrRowNotFound):
		return NewAppError("ROW_NOT_FOUND", 404, err.Error())
	case errors.Is(err, section.ErrUnknownAccessor):
		return InvalidPayloadError(err.Error())
	case errors.Is(err, section.ErrFixedCardinality):
		return NewAppError("FIXED_CARDINALITY", 409, err.Error())
	case errors.Is(err, section.ErrColumnNotEditable):
		return NewAppError("COLUMN_NOT_EDITABLE", 409, err.Error())
	}
	return err
}
