// Command reconcile retries calendar work left behind by failed approvals
// and cancellations. It runs one pass and exits; schedule it externally.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/app"
	"github.com/nekogravitycat/meeting-booking-backend/internal/config"
	"github.com/nekogravitycat/meeting-booking-backend/internal/db"
	applog "github.com/nekogravitycat/meeting-booking-backend/internal/pkg/logger"
)

func main() {
	limit := flag.Int("limit", 0, "maximum work items to process (default RECONCILE_BATCH)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall time limit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *limit <= 0 {
		*limit = cfg.ReconcileBatch
	}

	logger, err := applog.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg.DBDSN, cfg.PoolOptions())
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()

	container, err := app.NewContainer(cfg, pool, logger)
	if err != nil {
		logger.Fatal("failed to init application", zap.Error(err))
	}

	report, err := container.Reconciler.Run(ctx, *limit)
	logger.Info("reconcile finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("retrying", report.Retrying),
		zap.Int("failed", report.Failed),
	)
	if err != nil {
		logger.Fatal("reconcile aborted", zap.Error(err))
	}
}
