package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"codebook/api/internal/dataset"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// validationError reports client input rejected by codebook or upload checks.
// field names the offending form field so handlers can choose between a flash
// and a full error page.
func validationError(message, field string) *DomainError {
	details := any(nil)
	if field != "" {
		details = map[string]any{"field": field}
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func rangeError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "RANGE_ERROR", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, dataset.ErrRowOutOfRange) {
		return http.StatusUnprocessableEntity, "RANGE_ERROR", "Row index out of range", nil
	}
	if errors.Is(err, dataset.ErrNoTextColumn) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", dataset.ErrNoTextColumn.Error(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return http.StatusNotFound, "NOT_FOUND", "Dataset file not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// errorField extracts the field tag carried by a validation error, if any.
func errorField(err error) string {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return ""
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok {
		return ""
	}
	field, _ := details["field"].(string)
	return field
}
