package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/waldorf/school-records/internal/core/domain"
)

// RequireAny lets the request through when the principal holds at least one
// of the given authorities (role or permission).
func RequireAny(authorities ...domain.Authority) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing authentication"})
			}
			if !p.HasAny(authorities...) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
