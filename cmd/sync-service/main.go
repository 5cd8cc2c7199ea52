package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tiendamascotas/catalog_sync/alegra"
	"github.com/tiendamascotas/catalog_sync/catalogsync"
	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/images"
	"github.com/tiendamascotas/catalog_sync/middlewares"
	"github.com/tiendamascotas/catalog_sync/models"
	"github.com/tiendamascotas/catalog_sync/seo"
	"github.com/tiendamascotas/catalog_sync/shopify"
	"github.com/tiendamascotas/catalog_sync/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SYNC_SERVICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	cfg, err := config.LoadSyncConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())

	// Connections are established after the server starts listening (Cloud
	// Run wants a fast bind), so configured-but-not-yet-connected backends
	// gate the API behind a 503 until they are up.
	dbConfigured := strings.TrimSpace(os.Getenv("DB_HOST")) != ""
	redisConfigured := strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != ""
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		if (dbConfigured && config.GetDB() == nil) || (redisConfigured && config.GetRedisDB() == nil) {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	svc := buildService(cfg, logger)

	auth := middlewares.ServiceTokenMiddleware(cfg.ServiceToken)
	api := r.Group("/api/sync", auth)
	api.GET("/status", svc.StatusHandler())
	api.POST("/trigger", svc.TriggerHandler())
	api.GET("/runs", svc.RunsHandler())
	api.GET("/export", svc.ExportRunsHandler())
	api.GET("/runs/:id", svc.RunDetailHandler())
	api.POST("/runs/:id/retry", svc.RetryHandler())

	// Pub/Sub push endpoint for the sync worker.
	r.POST("/pubsub/catalog-sync", svc.PubSubPushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	if db != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			defer sqlDB.Close()
		}
		if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
			models.MigrateTable(db)
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func buildService(cfg *config.SyncConfig, logger *logrus.Logger) *catalogsync.Service {
	source := alegra.NewClient(cfg.Alegra, logger)
	target := shopify.NewClient(cfg.Shopify, logger)

	var describe catalogsync.Describer
	if c := seo.NewClient(cfg.OpenAIKey, logger); c != nil {
		describe = c
	}

	runner := &catalogsync.Runner{
		Source:         source,
		Reader:         target,
		Writer:         target,
		Images:         images.NewHandler(logger),
		Describe:       describe,
		TaxCollections: cfg.TaxCollections,
		Recorder:       catalogsync.NewRecorder(nil),
		Log:            logger,
	}
	return &catalogsync.Service{Runner: runner, Log: logger}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
