package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", Validation("rating must be between 1 and 5"), http.StatusBadRequest, "validation_error"},
		{"conflict", Conflict("component is not pending"), http.StatusBadRequest, "state_conflict"},
		{"not found", NotFound("component not found"), http.StatusNotFound, "not_found"},
		{"forbidden", Forbidden("coach or admin role required"), http.StatusForbidden, "forbidden"},
		{"unauthorized", Unauthorized("invalid token"), http.StatusUnauthorized, "unauthorized"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"wrapped", fmt.Errorf("submit: %w", NotFound("component not found")), http.StatusNotFound, "not_found"},
		{"plain", errors.New("connection refused"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, MapErrorToStatus(tt.err))
			assert.Equal(t, tt.kind, KindName(tt.err))
		})
	}
}

func TestAppError_MessageAndKind(t *testing.T) {
	err := Forbidden("only the owner can submit this component")

	assert.Equal(t, "only the owner can submit this component", err.Error())
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrNotFound))

	bare := New(ErrInternal, "")
	assert.Equal(t, ErrInternal.Error(), bare.Error())
}
