package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/bootstrap"
	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/service"
	"github.com/segyhp/loan-engine/pkg/logger"
)

// jobTimeout bounds a single run so a stuck store cannot pile up runs.
const jobTimeout = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		zlog.Fatal("invalid scheduler timezone", zap.String("timezone", cfg.Scheduler.Timezone), zap.Error(err))
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := bootstrap.New(startCtx, cfg, zlog)
	cancelStart()
	if err != nil {
		zlog.Fatal("failed to initialize loan service", zap.Error(err))
	}
	defer app.Close()

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	if err := setupCronJobs(c, cfg, app.Service, zlog); err != nil {
		zlog.Fatal("failed to schedule jobs", zap.Error(err))
	}

	c.Start()
	zlog.Info("scheduler started", zap.String("timezone", location.String()))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down scheduler")
	<-c.Stop().Done()
	zlog.Info("scheduler stopped")
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, svc *service.LoanService, zlog *zap.Logger) error {
	if _, err := c.AddFunc(cfg.Scheduler.OverdueCron, func() {
		markOverdue(svc, zlog)
	}); err != nil {
		return err
	}

	window := cfg.GetReminderWindow()
	if _, err := c.AddFunc(cfg.Scheduler.ReminderCron, func() {
		sendPaymentReminders(svc, window, zlog)
	}); err != nil {
		return err
	}

	zlog.Info("cron jobs scheduled",
		zap.String("overdue", cfg.Scheduler.OverdueCron),
		zap.String("reminder", cfg.Scheduler.ReminderCron),
	)
	return nil
}

func markOverdue(svc *service.LoanService, zlog *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := svc.MarkOverdue(ctx, start)
	if err != nil {
		zlog.Error("overdue job failed", zap.Int64("marked", n), zap.Error(err))
		return
	}
	zlog.Info("overdue job finished", zap.Int64("marked", n), zap.Duration("took", time.Since(start)))
}

// sendPaymentReminders logs one reminder per installment due inside the
// window. Delivery to borrowers is handled downstream from these log lines.
func sendPaymentReminders(svc *service.LoanService, window time.Duration, zlog *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	due, err := svc.UpcomingDues(ctx, time.Now(), window)
	if err != nil {
		zlog.Error("reminder job failed", zap.Error(err))
		return
	}

	for _, entry := range due {
		zlog.Info("payment reminder",
			zap.String("loan_id", entry.LoanID),
			zap.String("entry_id", entry.ID),
			zap.Int("sequence", entry.Sequence),
			zap.Time("due_date", entry.DueDate),
			zap.String("amount", entry.Total.StringFixed(2)),
		)
	}
	zlog.Info("reminder job finished", zap.Int("reminders", len(due)))
}
