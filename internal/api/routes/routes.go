package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/queueforge/taskqueue/internal/api/handlers"
	"github.com/queueforge/taskqueue/internal/api/middleware"
	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/scheduler"
	"github.com/queueforge/taskqueue/internal/store"
	"github.com/queueforge/taskqueue/pkg/logger"
)

// Setup wires the Control API's middleware chain and route groups.
// Grounded on the teacher's routes.Setup shape (setupMiddleware then
// setupRoutes), generalized from the teacher's auth/tasks resource set to
// this domain's queue resource family.
func Setup(router *gin.Engine, cfg *config.Config, log *logger.Logger, st store.Store, mgr *scheduler.Manager) {
	setupMiddleware(router, cfg, log)
	setupRoutes(router, cfg, log, st, mgr)
}

func setupMiddleware(router *gin.Engine, cfg *config.Config, log *logger.Logger) {
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))
	router.Use(log.GinLogger())
	router.Use(log.GinRecovery())
	router.Use(middleware.ErrorHandler())
}

func setupRoutes(router *gin.Engine, cfg *config.Config, log *logger.Logger, st store.Store, mgr *scheduler.Manager) {
	healthHandler := handlers.NewHealthHandler()
	healthHandler.AddHealthCheck("store", handlers.NewStoreHealthChecker(st))

	docsHandler := handlers.NewDocsHandler()
	queueHandler := handlers.NewQueueHandler(st, mgr, cfg.DefaultSettings(), log.Logger)
	streamHandler := handlers.NewStreamHandler(st, log.Logger)
	validation := middleware.NewValidationMiddleware(log.Logger)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Readiness)
	router.GET("/health/store", healthHandler.StoreStatus)

	router.GET("/api", docsHandler.GetAPIIndex)
	router.GET("/docs", docsHandler.RedirectToSwaggerUI)
	router.GET("/docs/*any", docsHandler.GetSwaggerUI())
	router.GET("/swagger.json", docsHandler.GetSwaggerJSON)
	router.GET("/swagger.yaml", docsHandler.GetSwaggerYAML)

	var queueRateLimit, queueCreationRateLimit gin.HandlerFunc
	if cfg.IsTest() {
		queueRateLimit = middleware.QueueRateLimitForTest(log.Logger)
		queueCreationRateLimit = middleware.QueueCreationRateLimitForTest(log.Logger)
	} else {
		queueRateLimit = middleware.QueueRateLimit(log.Logger)
		queueCreationRateLimit = middleware.QueueCreationRateLimit(log.Logger)
	}

	api := router.Group("/api")
	{
		api.POST("/queue",
			middleware.RequestSizeLimit(log.Logger, 1<<20),
			queueCreationRateLimit,
			validation.ValidateQueueCreation(),
			queueHandler.Create,
		)
		api.GET("/queues", queueRateLimit, queueHandler.List)
		api.GET("/queue/busy-agents", queueRateLimit, queueHandler.BusyAgents)
		api.GET("/queue/stream/:id", streamHandler.Stream)

		api.GET("/queue/:id", queueRateLimit, queueHandler.Get)
		api.DELETE("/queue/:id", queueRateLimit, queueHandler.Delete)
		api.POST("/queue/:id/start", queueRateLimit, queueHandler.Start)
		api.POST("/queue/:id/pause", queueRateLimit, queueHandler.Pause)
		api.POST("/queue/:id/resume", queueRateLimit, queueHandler.Resume)
		api.POST("/queue/:id/abort", queueRateLimit, queueHandler.Abort)
		api.POST("/queue/:id/tasks/:taskId/retry", queueRateLimit, queueHandler.RetryTask)
		api.GET("/queue/:id/dead-letter", queueRateLimit, queueHandler.DeadLetter)
		api.GET("/queue/:id/metrics", queueRateLimit, queueHandler.Metrics)
	}
}
