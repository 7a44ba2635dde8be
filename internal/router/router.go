package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking-settlement/internal/config"
	"github.com/iliyamo/cinema-booking-settlement/internal/handler"
	"github.com/iliyamo/cinema-booking-settlement/internal/middleware"
)

// RegisterRoutes wires every endpoint of the booking and settlement API onto
// the provided Echo instance.  Route groups mirror the trust levels of their
// callers: order endpoints are public but rate limited, the bank webhook is
// rate limited separately, and staff settlement requires a valid STAFF JWT.
// The seat map read sits behind the Redis response cache because it is the
// hottest read in the system and may lag by the cache TTL without risk —
// holds are re-verified at order creation.
func RegisterRoutes(e *echo.Echo, rdb *redis.Client, jwtSecret string,
	orders *handler.OrderHandler, webhook *handler.WebhookHandler,
	staff *handler.StaffHandler, seats *handler.SeatMapHandler) {

	// Liveness probe for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Public order lifecycle: create, poll, cancel.
	og := e.Group("/v1/orders", rl)
	og.POST("", orders.CreateOrder)
	og.GET("/:code/status", orders.Status)
	og.POST("/:code/cancel", orders.Cancel)

	// Bank payment notifications.  The provider retries on non-2xx, so the
	// handler acknowledges everything it could parse.
	e.POST("/v1/payments/webhook", webhook.Receive, rl)

	// Staff-only manual settlement for counter sales.
	sg := e.Group("/v1/staff")
	sg.Use(middleware.JWTAuth(jwtSecret))
	sg.Use(middleware.RequireRole("STAFF"))
	sg.POST("/orders/:code/settle", staff.Settle)

	// Cached seat availability read.
	e.GET("/v1/showtimes/:id/seats", seats.ByShowtime,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
}
