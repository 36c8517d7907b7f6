package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sangammgr88/exam-portal-gateway/internal/config"
	"github.com/sangammgr88/exam-portal-gateway/internal/handler"
	"github.com/sangammgr88/exam-portal-gateway/internal/middleware"
	"github.com/sangammgr88/exam-portal-gateway/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Catalog *handler.CatalogHandler
	Attempt *handler.AttemptHandler
	Report  *handler.ReportHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
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

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for attempt creation (30 requests per minute per IP):
	// each create may cost an upstream exam fetch.
	createLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Student Group (Bearer Credential) ──────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireCredential())
	{
		api.GET("/exams", handlers.Catalog.ListExams)
		api.GET("/exams/:exam_id", handlers.Catalog.GetExam)

		api.POST("/attempts", createLimiter.Middleware(), handlers.Attempt.CreateAttempt)
		api.POST("/attempts/:attempt_id/start", handlers.Attempt.StartAttempt)
		api.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
		api.PUT("/attempts/:attempt_id/answer", handlers.Attempt.SaveAnswer)
		api.POST("/attempts/:attempt_id/flag", handlers.Attempt.ToggleFlag)
		api.PUT("/attempts/:attempt_id/position", handlers.Attempt.SetPosition)
		api.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitAttempt)
		api.DELETE("/attempts/:attempt_id", handlers.Attempt.CancelAttempt)
	}

	// ─── 2. WebSocket Group (Token via Header or Query) ────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCredential())
	{
		ws.GET("/attempts/:attempt_id/live", handlers.WS.AttemptLiveStream)
	}

	// ─── 3. Admin Group (Credential + Admin Role) ──────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireCredential(), middleware.RequireAdmin())
	{
		adminAPI.GET("/students/:student_id/report", handlers.Report.GetStudentReport)
		adminAPI.GET("/attempts/monitor", handlers.Monitor.MonitorAttemptsSSE)
	}

	return router
}
