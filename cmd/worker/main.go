// Command worker consumes the confirmation queue and confirms pending
// bookings.  It serves /healthz and /readyz on WORKER_HEALTH_PORT.
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

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/seat-booking/internal/cache"
	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/database"
	"github.com/iliyamo/seat-booking/internal/handler"
	"github.com/iliyamo/seat-booking/internal/health"
	"github.com/iliyamo/seat-booking/internal/logger"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/repository"
	"github.com/iliyamo/seat-booking/internal/retry"
	"github.com/iliyamo/seat-booking/internal/service"
	"github.com/iliyamo/seat-booking/internal/worker"
)

var startup = retry.Strategy{Attempts: 5, Delay: 2 * time.Second, Backoff: 1.5, MaxDelay: 10 * time.Second}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("DB_USER", "DB_HOST", "DB_NAME")
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log, "worker")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenRetry(ctx, cfg.DB, startup, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Redis only serves seat-map invalidation here.
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	guard := cache.NewGuard(rdb, cfg.Cache, log)

	store := repository.NewBookingRepo(db, repository.NewSeatRepo(db))
	confirmer := service.NewBookingService(store, nil, guard, log)

	strategy := retry.Strategy{
		Attempts: cfg.Worker.Attempts,
		Delay:    cfg.Worker.BaseDelay,
		Backoff:  2,
		MaxDelay: cfg.Worker.MaxDelay,
	}
	w := worker.New(confirmer, strategy, cfg.Queue.Prefetch, log)
	consumer := queue.NewConsumer(queue.Dial(cfg.Queue.URL, cfg.Queue.DialTimeout), queue.TopologyFromConfig(cfg.Queue), cfg.Queue.Prefetch, "booking-worker", log)

	checker := health.NewChecker(2*time.Second).
		Add("store", db.PingContext, true).
		Add("queue", health.ReadyFunc(consumer.Consuming), true).
		Add("cache", guard.Ping, false)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", func(c echo.Context) error { return c.JSON(http.StatusOK, w.Stats()) })
	e.GET("/readyz", handler.Ready(checker))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consuming", zap.String("queue", cfg.Queue.Name), zap.Int("prefetch", cfg.Queue.Prefetch))
		return consumer.Run(gctx, w.Run)
	})
	g.Go(func() error {
		addr := ":" + cfg.Worker.HealthPort
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	s := w.Stats()
	log.Info("worker stopped",
		zap.Int64("acked", s.Acked), zap.Int64("acked_noop", s.AckedNoop),
		zap.Int64("dead_lettered", s.DeadLettered), zap.Int64("requeued", s.Requeued))
	return err
}
