package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts err into a status and public body. Causes are never exposed;
// provider and internal failures collapse to a generic message.
func ToResponse(err error) (int, ErrorResponse) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind.Status, ErrorResponse{Code: appErr.Code, Message: appErr.Message}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
		return httpErr.Code, ErrorResponse{Code: http.StatusText(httpErr.Code), Message: msg}
	}

	return ErrInternal.Kind.Status, ErrorResponse{Code: ErrInternal.Code, Message: ErrInternal.Message}
}

// HTTPErrorHandler logs the full error internally and writes the safe response.
func HTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := ToResponse(err)

		fields := []zap.Field{
			zap.Error(err),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", status),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Info("request rejected", fields...)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("write error response", zap.Error(err))
		}
	}
}
