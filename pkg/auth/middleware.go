package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/digitaltwin/internal/logging"
	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

// userIDKey is the echo context key holding the authenticated user ID.
const userIDKey = "authenticated_user_id"

// Verifier resolves a bearer token to a user ID.
type Verifier interface {
	Verify(token string) (int64, error)
}

// UserLookup confirms that a user still exists.
type UserLookup interface {
	Exists(ctx context.Context, userID int64) error
}

// BearerAuthMiddleware authenticates requests with an
// "Authorization: Bearer <token>" header. On success the user ID is stored
// in the echo context and in the request context for logging. Failures are
// returned as v1.ErrUnauthorized for the error handler to render.
func BearerAuthMiddleware(verifier Verifier, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return v1.Unauthorized("not authenticated")
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				return ErrInvalidToken
			}

			ctx := c.Request().Context()
			if err := users.Exists(ctx, userID); err != nil {
				if errors.Is(err, v1.ErrNotFound) {
					return ErrInvalidToken
				}
				return err
			}

			c.Set(userIDKey, userID)
			c.SetRequest(c.Request().WithContext(logging.WithUserID(ctx, userID)))
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserIDFromContext returns the user ID set by BearerAuthMiddleware.
func UserIDFromContext(c echo.Context) (int64, bool) {
	id, ok := c.Get(userIDKey).(int64)
	return id, ok
}
