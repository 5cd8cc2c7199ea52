package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tiendamascotas/catalog_sync/alegra"
	"github.com/tiendamascotas/catalog_sync/catalogsync"
	"github.com/tiendamascotas/catalog_sync/config"
	"github.com/tiendamascotas/catalog_sync/images"
	"github.com/tiendamascotas/catalog_sync/models"
	"github.com/tiendamascotas/catalog_sync/seo"
	"github.com/tiendamascotas/catalog_sync/shopify"
)

// sync-once runs a single reconciliation and exits. DB and Redis are
// optional; without them the run is unrecorded and unlocked, which is
// fine for cron jobs and local testing.
func main() {
	logger := config.GetLogger()

	cfg, err := config.LoadSyncConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	if db != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			defer sqlDB.Close()
		}
		models.MigrateTable(db)
	}

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
		Locker:         config.GetRedisLock(),
		Recorder:       catalogsync.NewRecorder(db),
		Log:            logger,
	}

	summary, err := runner.Run(ctx, models.SyncTriggeredManual)
	if err != nil {
		if errors.Is(err, catalogsync.ErrRunInProgress) {
			logger.Warn("another sync run holds the lock; nothing to do")
			os.Exit(0)
		}
		logger.WithFields(logrus.Fields{"field": "sync"}).Fatal(err)
	}

	logger.WithFields(logrus.Fields{
		"upserted":    summary.Upserted,
		"unpublished": summary.Unpublished,
		"errors":      summary.Errors,
	}).Info("sync run complete")
	if summary.Errors > 0 {
		os.Exit(2)
	}
}
