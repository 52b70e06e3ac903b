// Package main runs the Task Queue Engine's Control API server, wiring the
// Queue Store, Agent Invoker, Scheduler Manager and Recovery Coordinator
// behind a single gin HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/queueforge/taskqueue/internal/agent"
	"github.com/queueforge/taskqueue/internal/api/routes"
	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/recovery"
	"github.com/queueforge/taskqueue/internal/scheduler"
	"github.com/queueforge/taskqueue/internal/store"
	"github.com/queueforge/taskqueue/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)

	st, err := store.NewStore(context.Background(), &cfg.Store, log.Logger)
	if err != nil {
		log.Error("failed to initialize queue store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if cfg.Store.Backend == "composite" {
		migrateCfg := &store.MigrateConfig{StoreConfig: &cfg.Store, Logger: log.Logger}
		if err := store.MigrateUp(migrateCfg); err != nil {
			log.Error("failed to run store migrations", "error", err)
			os.Exit(1)
		}
	}

	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if !st.IsAvailable(healthCtx) {
		log.Warn("queue store reports unavailable at startup, continuing on fallback path")
	}
	healthCancel()

	invoker := agent.NewInvoker(&http.Client{Timeout: 0}, log.Logger)
	resolver := scheduler.StaticResolver(cfg.Agent.Endpoints)
	schedulerCfg := scheduler.Config{
		MaxRetryDelay:      cfg.Scheduler.MaxRetryDelay,
		RetryBackoffFactor: cfg.Scheduler.RetryBackoffFactor,
		ShutdownTimeout:    cfg.Scheduler.ShutdownTimeout,
	}
	mgr := scheduler.NewManager(st, invoker, resolver, schedulerCfg, log.Logger)

	coordinator := recovery.New(st, log.Logger)
	recoveryCtx, recoveryCancel := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := coordinator.Run(recoveryCtx)
	recoveryCancel()
	if err != nil {
		log.Error("recovery coordinator failed", "error", err)
		os.Exit(1)
	}
	if len(result.QueueIDs) > 0 {
		log.Info("recovery coordinator reset interrupted queues", "queue_ids", result.QueueIDs)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	routes.Setup(router, cfg, log, st, mgr)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // unbounded: SSE connections on /api/queue/stream/{id} stay open
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("starting server", "host", cfg.Server.Host, "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	for _, queueID := range mgr.ActiveQueueIDs() {
		if err := mgr.Stop(queueID); err != nil {
			log.Warn("failed to stop scheduler during shutdown", "queue_id", queueID, "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}
