package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/handlers"
	"github.com/ArowuTest/tutorbot-backend/internal/middleware"
	"github.com/ArowuTest/tutorbot-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerDependencies holds the handlers the router mounts
type HandlerDependencies struct {
	AuthHandler      *handlers.AuthHandler
	UserHandler      *handlers.UserHandler
	CheckoutHandler  *handlers.CheckoutHandler
	BroadcastHandler *handlers.BroadcastHandler
	WebhookHandler   *handlers.WebhookHandler
	Tokens           *jwt.TokenService
	Database         Pinger
	Logger           *zap.Logger
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))

	router.GET("/health", health(deps.Database))

	// Payment provider callbacks
	webhook := router.Group("/webhook")
	{
		webhook.GET("/tribute", deps.WebhookHandler.Ping)
		webhook.POST("/tribute", middleware.WebhookKeyMiddleware(cfg.Webhook.APIKey), deps.WebhookHandler.Tribute)
	}

	public := router.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", deps.AuthHandler.Login)
		}
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(deps.Tokens))
	{
		users := protected.Group("/users")
		{
			users.GET("/count", deps.UserHandler.GetUserCount)
			users.POST("/optin", deps.UserHandler.SetOptInAll)
			users.GET("/:chat_id", deps.UserHandler.GetStatus)
			users.DELETE("/:chat_id", deps.UserHandler.DropChat)
			users.POST("/:chat_id/subscription", deps.UserHandler.Grant)
			users.POST("/:chat_id/extend", deps.UserHandler.ExtendPro)
			users.POST("/:chat_id/promo", deps.UserHandler.GrantPromo)
			users.PUT("/:chat_id/prefs", deps.UserHandler.UpdatePrefs)
			users.PUT("/:chat_id/optin", deps.UserHandler.SetOptIn)
			users.GET("/:chat_id/payments", deps.UserHandler.GetPayments)
		}

		protected.POST("/checkout", deps.CheckoutHandler.Create)
		protected.POST("/broadcast", deps.BroadcastHandler.Send)
	}

	return router
}

func health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
	}
}
