package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesWrappedCopies(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := fmt.Errorf("create paypal order: %w", ErrProviderUnavailable.WithCause(cause))

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRateUnavailable)
	assert.Equal(t, KindProviderUnavailable, KindOf(err))
}

func TestToResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        ErrEmptyCart,
			wantStatus: http.StatusBadRequest,
			wantCode:   "EMPTY_CART",
			wantMsg:    "cart is empty",
		},
		{
			name:       "provider error hides cause",
			err:        ErrProviderUnavailable.WithCause(errors.New("paypal error 401: client_secret=abc")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "PROVIDER_UNAVAILABLE",
			wantMsg:    ErrProviderUnavailable.Message,
		},
		{
			name:       "unauthorized webhook",
			err:        fmt.Errorf("verify: %w", ErrUnauthorizedWebhook),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED_WEBHOOK",
			wantMsg:    ErrUnauthorizedWebhook.Message,
		},
		{
			name:       "echo http error",
			err:        echo.NewHTTPError(http.StatusNotFound, "route not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   "Not Found",
			wantMsg:    "route not found",
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ToResponse(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}
