package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	TradingHandler *TradingHandler
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Health checks and dashboard polling would drown the log.
			path := c.Request().URL.Path
			return path == "/health" || path == "/api/positions"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":  "healthy",
			"service": "pairtrade-api",
		})
	})

	api := e.Group("/api")
	api.GET("/positions", config.TradingHandler.GetPositions)
	api.GET("/trades/recent", config.TradingHandler.GetRecentTrades)
	api.GET("/spreads/:pair/latest", config.TradingHandler.GetLatestSpread)
	api.GET("/params", config.TradingHandler.GetParams)
	api.POST("/backfill/trigger", config.TradingHandler.TriggerBackfill)
	api.POST("/scan/trigger", config.TradingHandler.TriggerScan)
}
