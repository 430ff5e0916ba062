package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how they are reported to the caller.
type Kind struct {
	Name   string
	Status int
}

var (
	KindValidation          = Kind{Name: "VALIDATION", Status: http.StatusBadRequest}
	KindNotFound            = Kind{Name: "NOT_FOUND", Status: http.StatusNotFound}
	KindUnauthorized        = Kind{Name: "UNAUTHORIZED", Status: http.StatusUnauthorized}
	KindConflict            = Kind{Name: "CONFLICT", Status: http.StatusBadRequest}
	KindProviderUnavailable = Kind{Name: "PROVIDER_UNAVAILABLE", Status: http.StatusInternalServerError}
	KindExpired             = Kind{Name: "EXPIRED", Status: http.StatusBadRequest}
	KindInternal            = Kind{Name: "INTERNAL", Status: http.StatusInternalServerError}
)

type Error struct {
	Kind    Kind
	Code    string // stable machine-readable code
	Message string // public-facing message
	Cause   error  // internal cause, never sent to clients
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code so wrapped copies still satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of e carrying cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// WithMessage returns a copy of e with a more specific public message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Generic kinds.
var (
	ErrValidation          = New(KindValidation, "VALIDATION_FAILED", "invalid input")
	ErrNotFound            = New(KindNotFound, "NOT_FOUND", "record not found")
	ErrUnauthorized        = New(KindUnauthorized, "UNAUTHORIZED", "unauthorized")
	ErrConflict            = New(KindConflict, "CONFLICT", "conflict")
	ErrProviderUnavailable = New(KindProviderUnavailable, "PROVIDER_UNAVAILABLE", "payment provider unavailable, please try again later")
	ErrInternal            = New(KindInternal, "INTERNAL", "internal server error")
)

// Checkout.
var (
	ErrEmptyCart             = New(KindValidation, "EMPTY_CART", "cart is empty")
	ErrInvalidShippingMethod = New(KindValidation, "INVALID_SHIPPING_METHOD", "unknown shipping method")
	ErrIncompleteAddress     = New(KindValidation, "INCOMPLETE_ADDRESS", "shipping address is incomplete")
	ErrProductNotFound       = New(KindNotFound, "PRODUCT_NOT_FOUND", "product not found")
	ErrUnsupportedProvider   = New(KindValidation, "UNSUPPORTED_PAYMENT_METHOD", "unsupported payment method")
)

// Payments and webhooks.
var (
	ErrOrderNotFound       = New(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrInvalidWebhook      = New(KindValidation, "INVALID_WEBHOOK", "malformed webhook payload")
	ErrUnauthorizedWebhook = New(KindUnauthorized, "UNAUTHORIZED_WEBHOOK", "webhook signature verification failed")
	ErrRateUnavailable     = New(KindProviderUnavailable, "RATE_UNAVAILABLE", "exchange rate unavailable, please try again later")
	ErrRateExpired         = New(KindExpired, "RATE_EXPIRED", "exchange rate quote has expired")
	ErrPaymentExpired      = New(KindExpired, "PAYMENT_EXPIRED", "payment window has expired")
	ErrIllegalTransition   = New(KindConflict, "ILLEGAL_TRANSITION", "illegal payment status transition")
	ErrDuplicatePayment    = New(KindConflict, "DUPLICATE_PAYMENT", "payment already applied")
	ErrPaymentState        = New(KindConflict, "INVALID_PAYMENT_STATE", "order is not in a payable state")
)

// KindOf reports the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
