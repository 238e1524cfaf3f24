package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/internal/anonymize"
	"github.com/hermnet/hermnet/ports"
	"github.com/hermnet/hermnet/service"
)

// RouterDeps bundles what the router needs from the rest of the system.
type RouterDeps struct {
	Anonymizer *anonymize.Anonymizer
	Limiter    *service.RateLimiter
	Tokenizer  ports.Tokenizer
	Registry   *service.RevocationRegistry
	Handlers   *Handlers
	Clock      ports.Clock
	Log        logrus.FieldLogger
}

// SetupRouter sets up the Gin router. The anonymizer runs first so no
// later stage ever sees a raw address; the rate limiter runs before any
// route handler.
func SetupRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(AnonymizerMiddleware(deps.Anonymizer, deps.Clock, deps.Log))
	router.Use(RateLimitMiddleware(deps.Limiter, deps.Log))

	requireAuth := AuthMiddleware(deps.Tokenizer, deps.Registry, deps.Log)

	auth := router.Group("/auth")
	{
		auth.POST("/register", deps.Handlers.Register)
		auth.POST("/challenge", deps.Handlers.Challenge)
		auth.POST("/login", deps.Handlers.Login)
		auth.POST("/logout", requireAuth, deps.Handlers.Logout)
	}

	api := router.Group("/api")
	api.Use(requireAuth)
	{
		api.GET("/me", deps.Handlers.Me)
		api.POST("/messages", deps.Handlers.SendMessage)
		api.GET("/messages", deps.Handlers.Inbox)
	}

	return router
}
