package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"brokerdesk/internal/domain/entity"
	"brokerdesk/internal/infrastructure/firebase"
)

// UserSyncer materializes the local user record behind a verified
// session identity. The conversation use case implements it.
type UserSyncer interface {
	EnsureUser(ctx context.Context, id, name, email string) (*entity.User, error)
}

type AuthMiddleware struct {
	auth  *firebase.AuthClient
	users UserSyncer
}

func NewAuthMiddleware(auth *firebase.AuthClient, users UserSyncer) *AuthMiddleware {
	return &AuthMiddleware{
		auth:  auth,
		users: users,
	}
}

// Authenticate verifies the session ID token, syncs the caller's user
// record (first login creates it), and stores the uid in the request
// context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is required")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		identity, err := m.auth.VerifyToken(c.Request().Context(), parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		if _, err := m.users.EnsureUser(c.Request().Context(), identity.UID, identity.Name, identity.Email); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to sync user record")
		}

		c.Set("uid", identity.UID)

		return next(c)
	}
}
