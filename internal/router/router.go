package router

import (
	"net/http"
	"strings"

	"github.com/Baaaki/component-review/internal/handler"
	"github.com/Baaaki/component-review/internal/metrics"
	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps carries everything the HTTP surface needs. RateLimiter is optional.
type Deps struct {
	Auth           middleware.Authenticator
	Metrics        *metrics.Metrics
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins string
	Production     bool

	AuthHandler         *handler.AuthHandler
	ComponentHandler    *handler.ComponentHandler
	ReviewHandler       *handler.ReviewHandler
	NotificationHandler *handler.NotificationHandler
	AdminHandler        *handler.AdminHandler
	AuditHandler        *handler.AuditHandler
}

// New builds the gin engine with middleware and every route registered
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	if d.Metrics != nil {
		r.Use(middleware.Instrument(d.Metrics))
	}
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.HSTSMiddleware(d.Production))
	r.Use(cors.New(corsConfig(d.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	requireAuth := middleware.RequireAuth(d.Auth)
	api := r.Group("/api")

	auth := api.Group("/auth")
	if d.RateLimiter != nil {
		auth.Use(d.RateLimiter.Middleware())
	}
	{
		auth.POST("/register", d.AuthHandler.Register)
		auth.POST("/login", d.AuthHandler.Login)
		auth.POST("/password/reset", d.AuthHandler.RequestPasswordReset)
		auth.POST("/password/reset/confirm", d.AuthHandler.ConfirmPasswordReset)
		auth.POST("/logout", requireAuth, d.AuthHandler.Logout)
		auth.GET("/me", requireAuth, d.AuthHandler.Me)
	}

	api.GET("/categories", d.ComponentHandler.Categories)

	components := api.Group("/components")
	{
		components.GET("", d.ComponentHandler.List)
		components.GET("/my", requireAuth, d.ComponentHandler.Mine)
		components.GET("/:id", middleware.OptionalAuth(d.Auth), d.ComponentHandler.Get)
		components.POST("", requireAuth, d.ComponentHandler.Create)
		components.PUT("/:id", requireAuth, d.ComponentHandler.Update)
		components.DELETE("/:id", requireAuth, d.ComponentHandler.Delete)
		components.POST("/:id/submit", requireAuth, d.ComponentHandler.Submit)
		components.POST("/:id/review", requireAuth, middleware.RequireValidator(), d.ComponentHandler.Review)
		components.GET("/:id/reviews", middleware.OptionalAuth(d.Auth), d.ReviewHandler.ListForComponent)
		components.POST("/:id/reviews", requireAuth, d.ReviewHandler.Create)
	}

	coach := api.Group("/coach", requireAuth, middleware.RequireValidator())
	{
		coach.GET("/pending", d.ComponentHandler.Pending)
		coach.GET("/stats", d.ComponentHandler.Stats)
	}

	reviews := api.Group("/reviews", requireAuth)
	{
		reviews.GET("/:id", d.ReviewHandler.Get)
		reviews.PUT("/:id", d.ReviewHandler.Update)
		reviews.DELETE("/:id", d.ReviewHandler.Delete)
	}

	notifications := api.Group("/notifications", requireAuth)
	{
		notifications.GET("", d.NotificationHandler.List)
		notifications.GET("/unread/count", d.NotificationHandler.UnreadCount)
		notifications.GET("/ws", d.NotificationHandler.Stream)
		notifications.POST("/read-all", d.NotificationHandler.MarkAllRead)
		notifications.PATCH("/:id/read", d.NotificationHandler.MarkRead)
	}

	admin := api.Group("/admin", requireAuth, middleware.RequireAdmin())
	{
		admin.GET("/users", d.AdminHandler.ListUsers)
		admin.PATCH("/users/:id/role", d.AdminHandler.ChangeRole)
		admin.PATCH("/users/:id/active", d.AdminHandler.SetActive)
		admin.DELETE("/users/:id", d.AdminHandler.DeleteUser)
		admin.GET("/users/:id/activity", d.AdminHandler.Activity)
	}

	audit := api.Group("/audit", requireAuth, middleware.RequireAdmin())
	{
		audit.GET("/logs", d.AuditHandler.List)
		audit.GET("/logs/:id", d.AuditHandler.Get)
		audit.GET("/stats", d.AuditHandler.Stats)
		audit.DELETE("/cleanup", d.AuditHandler.Cleanup)
	}

	return r
}

func corsConfig(allowed string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: true,
	}
	cfg.AllowOrigins = SplitOrigins(allowed)
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cfg
}

// SplitOrigins parses a comma separated origin list
func SplitOrigins(allowed string) []string {
	var out []string
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
