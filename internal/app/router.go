package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"autoride/internal/handler"
	"autoride/internal/middleware"
	"autoride/internal/ws"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler  *handler.RideHandler
	ChainHandler *handler.ChainHandler
	Hub          *ws.Hub
	RedisClient  *redis.Client
	NewRelicApp  *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NoticeErrors())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		v1.GET("/fare/quote", deps.ChainHandler.QuoteFare)
		v1.GET("/wallet", deps.ChainHandler.GetWallet)

		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/history", deps.RideHandler.GetHistory)
			rides.GET("/receipt", deps.RideHandler.GetReceipt)
			rides.GET("/chain", deps.ChainHandler.GetChainRides)
			rides.POST("/rating", deps.RideHandler.RateRide)
		}

		// Current ride routes.
		current := rides.Group("/current")
		{
			current.GET("", deps.RideHandler.GetCurrent)
			current.POST("/accept", deps.RideHandler.AcceptRide)
			current.POST("/start", deps.RideHandler.StartTrip)
			current.POST("/complete", deps.RideHandler.CompleteTrip)
			current.POST("/cancel", deps.RideHandler.CancelRide)
		}

		if deps.Hub != nil {
			v1.GET("/events", gin.WrapF(deps.Hub.ServeWS))
		}
	}

	return router
}
