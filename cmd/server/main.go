// Command server runs the booking HTTP API.
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
	"github.com/iliyamo/seat-booking/internal/router"
	"github.com/iliyamo/seat-booking/internal/service"
)

// startup retries dependency connections while containers come up.
var startup = retry.Strategy{Attempts: 5, Delay: 2 * time.Second, Backoff: 1.5, MaxDelay: 10 * time.Second}

// brokerReconnectInterval paces publisher reconnects while the broker is down.
const brokerReconnectInterval = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("DB_USER", "DB_HOST", "DB_NAME", "JWT_SECRET")
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log, "server")
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

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable, serving reads from the store without rate limiting", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}
	guard := cache.NewGuard(rdb, cfg.Cache, log)

	publisher := queue.NewPublisher(queue.Dial(cfg.Queue.URL, cfg.Queue.DialTimeout), queue.TopologyFromConfig(cfg.Queue), log)
	if err := startup.Do(ctx, func(ctx context.Context, _ int) error { return publisher.Connect(ctx) }); err != nil {
		// Maintain keeps reconnecting; readiness stays false until then.
		log.Error("broker unavailable at startup", zap.Error(err))
	}
	defer publisher.Close()

	seats := repository.NewSeatRepo(db)
	bookings := service.NewBookingService(repository.NewBookingRepo(db, seats), publisher, guard, log)
	catalog := service.NewCatalogService(repository.NewCatalogRepo(db), seats, guard)

	checker := health.NewChecker(2*time.Second).
		Add("store", db.PingContext, true).
		Add("queue", health.ReadyFunc(publisher.Ready), true).
		Add("cache", guard.Ping, false)

	e := router.New(router.Deps{
		Bookings:  handler.NewBookingHandler(bookings, log),
		Catalog:   handler.NewCatalogHandler(catalog, log),
		Readiness: checker,
		JWTSecret: cfg.JWT.Secret,
		RateLimit: cfg.RateLimit,
		Redis:     rdb,
		Log:       log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		publisher.Maintain(gctx, brokerReconnectInterval)
		return nil
	})
	g.Go(func() error {
		addr := ":" + cfg.App.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.App.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
