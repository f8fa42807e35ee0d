package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Failure taxonomy shared by the stores and the session controller.
// Every value here is local and recoverable; the HTTP layer turns them into notifications.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("duplicate")
	ErrNotFound           = errors.New("not found")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrTokenAcquisition   = errors.New("token acquisition failed")
	ErrDeviceSetup        = errors.New("device setup failed")
	ErrInvalidNumber      = errors.New("invalid number")
	ErrCallInProgress     = errors.New("call in progress")

	// ErrInvalidState is returned when an operation is not legal in the current session state.
	ErrInvalidState = errors.New("invalid state")
	ErrNotConnected = errors.New("not connected")
)

// ValidationError lists every violated rule, not just the first.
type ValidationError struct {
	Violations []string
}

func NewValidation(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Kind names the failure class for UI notifications.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrTokenAcquisition):
		return "token_acquisition"
	case errors.Is(err, ErrDeviceSetup):
		return "device_setup"
	case errors.Is(err, ErrInvalidNumber):
		return "invalid_number"
	case errors.Is(err, ErrCallInProgress):
		return "call_in_progress"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the status code used by the JSON API.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "validation", "invalid_number":
		return http.StatusBadRequest
	case "duplicate", "call_in_progress", "invalid_state", "not_connected":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "missing_credentials":
		return http.StatusPreconditionFailed
	case "token_acquisition", "device_setup":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
