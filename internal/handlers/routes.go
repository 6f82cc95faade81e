package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// NewServer builds the echo instance with logging, recovery and routes.
// admin may be nil, in which case the admin routes are not registered.
func NewServer(h *Handler, admin *AdminHandler, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/health", h.Health)
	e.GET("/", h.Index)
	e.GET("/api/impact/monthly", h.MonthlyImpact)

	if admin != nil {
		g := e.Group("/admin")
		g.POST("/run", admin.Run)
		g.POST("/seed", admin.Seed)
		g.GET("/status", admin.Status)
	}

	return e
}
