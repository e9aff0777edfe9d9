package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/transcope/fleet-auth/internal/api/middleware"
	"github.com/transcope/fleet-auth/internal/core/domain"
)

// ctxClaims returns the claims injected by the Auth middleware. A missing
// value means the route was registered without Auth.
func ctxClaims(c echo.Context) (*domain.Claims, error) {
	claims, ok := c.Get(middleware.ContextClaims).(*domain.Claims)
	if !ok || claims == nil || claims.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}
