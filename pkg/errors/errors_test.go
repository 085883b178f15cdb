package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapUnwrapsToSentinelAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("slice 10-60: %w", Wrap(ErrRead, cause, "reading records"))

	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", ErrNotReady), http.StatusServiceUnavailable},
		{ErrBuildHalted, http.StatusServiceUnavailable},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{ErrJobInFlight, http.StatusConflict},
		{ErrSchema, http.StatusInternalServerError},
		{New(ErrRead, http.StatusBadGateway, "upstream"), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}
