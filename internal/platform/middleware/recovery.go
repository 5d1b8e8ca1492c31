package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/platform/auth"
)

// Recovery turns a handler panic into a 500 and logs it with the route and
// the calling principal. It sits outside the auth middleware, so the
// principal is read from the request as it stands after the panic.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				req := c.Request()
				ev := logger.Error().
					Str("method", req.Method).
					Str("route", c.Path()).
					Str("path", req.URL.Path).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack())
				if rid, ok := c.Get("request_id").(string); ok {
					ev = ev.Str("request_id", rid)
				}
				if p := auth.PrincipalFromContext(req.Context()); p != nil {
					ev = ev.Str("user_id", p.UserID.String()).Str("role", p.Role.String())
				}
				ev.Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
