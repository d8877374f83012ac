package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/waldorf/school-records/internal/api/middleware"
	"github.com/waldorf/school-records/internal/core/domain"
)

// ctxPrincipal extracts the principal injected by the Auth middleware.
// A route mounted without Auth fails here with 401 rather than acting anonymously.
func ctxPrincipal(c echo.Context) (*domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok || p.ID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return p, nil
}
