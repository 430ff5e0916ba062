package handler

import (
	"context"
	"io"
	"net/http"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/middleware"
	"storefront-payments/internal/model"
	"storefront-payments/internal/payment"

	"github.com/labstack/echo/v4"
)

// WebhookProcessor is satisfied by *payment.Processor.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, provider model.PaymentProvider, headers http.Header, rawBody []byte) (*payment.ProcessingResult, error)
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperror.ErrValidation.WithMessage("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return apperror.ErrValidation.WithCause(err)
	}
	return nil
}

func currentUser(c echo.Context) (string, error) {
	id := middleware.UserID(c)
	if id == "" {
		return "", apperror.ErrUnauthorized
	}
	return id, nil
}

// readWebhook returns the body exactly as received; signatures are computed
// over these bytes.
func readWebhook(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, apperror.ErrInvalidWebhook.WithCause(err)
	}
	if len(body) == 0 {
		return nil, apperror.ErrInvalidWebhook.WithMessage("empty webhook body")
	}
	return body, nil
}
