package dto

import (
	"errors"
	"net/http"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/queue"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	ErrCodeValidationFormat   = "ERR_VALIDATION_FORMAT"
)

// Resource error codes
const (
	ErrCodeNotFound          = "ERR_NOT_FOUND"
	ErrCodeConflict          = "ERR_CONFLICT"
	ErrCodeDuplicateBinding  = "ERR_DUPLICATE_BINDING"
	ErrCodeAmbiguousMatch    = "ERR_AMBIGUOUS_MATCH"
	ErrCodeMissingDependency = "ERR_MISSING_DEPENDENCY"
	ErrCodeUnknownBackend    = "ERR_UNKNOWN_BACKEND"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Rate limiting and upstream error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	ErrCodeUpstream    = "ERR_UPSTREAM"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeUnknownBackend:    http.StatusNotFound,
	ErrCodeConflict:          http.StatusConflict,
	ErrCodeDuplicateBinding:  http.StatusConflict,
	ErrCodeAmbiguousMatch:    http.StatusConflict,
	ErrCodeMissingDependency: http.StatusUnprocessableEntity,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeRateLimited: http.StatusTooManyRequests,
	ErrCodeUpstream:    http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorCodes is checked in order; the first sentinel matched by errors.Is wins
var errorCodes = []struct {
	target error
	code   string
}{
	{channel.ErrBackendNotConfigured, ErrCodeUnknownBackend},
	{channel.ErrInvalidInput, ErrCodeInvalidInput},
	{channel.ErrInvalidFilter, ErrCodeInvalidInput},
	{channel.ErrNotFound, ErrCodeNotFound},
	{queue.ErrTaskNotFound, ErrCodeNotFound},
	{channel.ErrDuplicateBinding, ErrCodeDuplicateBinding},
	{channel.ErrAmbiguousMatch, ErrCodeAmbiguousMatch},
	{channel.ErrAmbiguousResult, ErrCodeAmbiguousMatch},
	{channel.ErrNoMatch, ErrCodeNotFound},
	{channel.ErrMissingDependency, ErrCodeMissingDependency},
}

// ErrorCodeFor classifies err into an API error code
func ErrorCodeFor(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.target) {
			return ec.code
		}
	}
	if _, ok := channel.AsChannelError(err); ok {
		return ErrCodeUpstream
	}
	return ErrCodeInternal
}
