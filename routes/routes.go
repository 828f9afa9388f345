package routes

import (
	"time"

	"tailortalk/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterChatRoutes sets up the endpoints for booking conversations.
func RegisterChatRoutes(r *gin.Engine, hb *handlers.HandlerBundle, mw ...gin.HandlerFunc) {
	chat := r.Group("/api/chat")
	chat.Use(mw...)
	{
		chat.POST("/sessions", hb.StartSession)
		chat.GET("/sessions/:id", hb.GetSession)
		chat.DELETE("/sessions/:id", hb.CancelSession)
		chat.POST("/sessions/:id/turns", hb.HandleTurn)
		chat.POST("/sessions/:id/voice", hb.VoiceTurn)
	}
}

// RegisterCalendarRoutes sets up the read-only calendar queries.
func RegisterCalendarRoutes(r *gin.Engine, hb *handlers.HandlerBundle, mw ...gin.HandlerFunc) {
	cal := r.Group("/api/calendar")
	cal.Use(mw...)
	{
		cal.GET("/available-slots", hb.AvailableSlots)
		cal.GET("/upcoming-events", hb.UpcomingEvents)
		cal.POST("/check-availability", hb.CheckAvailability)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/healthz", hb.Health)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
// chatMiddleware applies to the chat and calendar groups only, so health
// probes are never rate limited.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, chatMiddleware ...gin.HandlerFunc) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	RegisterHealthRoute(r, hb)
	RegisterChatRoutes(r, hb, chatMiddleware...)
	RegisterCalendarRoutes(r, hb, chatMiddleware...)
}
