package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/handler"
	"github.com/examind/examportal-backend/internal/middleware"
	"github.com/examind/examportal-backend/internal/response"
	"github.com/examind/examportal-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Session    *handler.SessionHandler
	Attachment *handler.AttachmentHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Serve answer attachments statically with aggressive caching (1 year).
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireStudentJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireStudentJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT + Login Session) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckLoginSession(authService),
	)
	{
		studentAPI.POST("/assessments/:assessment_id/session/start", handlers.Session.Start)
		studentAPI.GET("/assessments/:assessment_id/paper", handlers.Session.GetPaper)
		studentAPI.GET("/assessments/:assessment_id/session", handlers.Session.GetState)
		studentAPI.DELETE("/assessments/:assessment_id/session", handlers.Session.Exit)
		studentAPI.PUT("/assessments/:assessment_id/session/answers/:question_id", handlers.Session.RecordAnswer)
		studentAPI.POST("/assessments/:assessment_id/session/answers/:question_id/attachment", handlers.Attachment.Upload)
		studentAPI.PUT("/assessments/:assessment_id/session/position", handlers.Session.Navigate)
		studentAPI.POST("/assessments/:assessment_id/session/signals", handlers.Session.ReportSignal)
		studentAPI.POST("/assessments/:assessment_id/session/submit", handlers.Session.Submit)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/assessments/:assessment_id/session", handlers.WS.Session)
	}

	return router
}
