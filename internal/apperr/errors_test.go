package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("save: %w", NewValidation("name is required", "phone is required"))

	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "name is required; phone is required")

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Violations, 2)
}

func TestKindAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{NewValidation("x"), "validation", http.StatusBadRequest},
		{fmt.Errorf("add: %w", ErrDuplicate), "duplicate", http.StatusConflict},
		{ErrNotFound, "not_found", http.StatusNotFound},
		{ErrMissingCredentials, "missing_credentials", http.StatusPreconditionFailed},
		{ErrTokenAcquisition, "token_acquisition", http.StatusBadGateway},
		{ErrDeviceSetup, "device_setup", http.StatusBadGateway},
		{ErrInvalidNumber, "invalid_number", http.StatusBadRequest},
		{ErrCallInProgress, "call_in_progress", http.StatusConflict},
		{ErrInvalidState, "invalid_state", http.StatusConflict},
		{errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, Kind(tc.err), tc.err.Error())
		assert.Equal(t, tc.status, HTTPStatus(tc.err), tc.err.Error())
	}
	assert.Equal(t, "", Kind(nil))
}
