package middleware

import (
	"errors"
	"strings"

	"storefront-payments/internal/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

// AuthMiddleware accepts HS256 bearer tokens signed with secret and puts the
// token subject in the context as the user id.
func AuthMiddleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(key) == 0 {
				return apperror.ErrUnauthorized.WithCause(errors.New("jwt secret not configured"))
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return apperror.ErrUnauthorized.WithMessage("missing bearer token")
			}

			var claims jwt.RegisteredClaims
			_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
				return key, nil
			})
			if err != nil {
				return apperror.ErrUnauthorized.WithCause(err)
			}
			if claims.Subject == "" {
				return apperror.ErrUnauthorized.WithMessage("token has no subject")
			}

			c.Set(userIDKey, claims.Subject)
			return next(c)
		}
	}
}

// UserID returns the authenticated user, or "" outside AuthMiddleware.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// SetUserID is used by tests that bypass token parsing.
func SetUserID(c echo.Context, userID string) {
	c.Set(userIDKey, userID)
}
