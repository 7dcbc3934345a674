package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/musicamatics/queueskip/internal/cache"
	"github.com/musicamatics/queueskip/internal/clock"
	"github.com/musicamatics/queueskip/internal/credential"
	"github.com/musicamatics/queueskip/internal/identity"
	"github.com/musicamatics/queueskip/internal/notary"
	"github.com/musicamatics/queueskip/internal/notify"
	notifyhandler "github.com/musicamatics/queueskip/internal/notify/handler"
	passhandler "github.com/musicamatics/queueskip/internal/pass/handler"
	passmetrics "github.com/musicamatics/queueskip/internal/pass/metrics"
	passservice "github.com/musicamatics/queueskip/internal/pass/service"
	passstore "github.com/musicamatics/queueskip/internal/pass/store"
	"github.com/musicamatics/queueskip/internal/platform/config"
	"github.com/musicamatics/queueskip/internal/platform/httpserver"
	"github.com/musicamatics/queueskip/internal/platform/logger"
	"github.com/musicamatics/queueskip/internal/platform/metrics"
	"github.com/musicamatics/queueskip/internal/platform/middleware"
	"github.com/musicamatics/queueskip/internal/platform/postgres"
	"github.com/musicamatics/queueskip/internal/platform/redis"
	"github.com/musicamatics/queueskip/internal/rotation"
	rotationhandler "github.com/musicamatics/queueskip/internal/rotation/handler"
	rotationmetrics "github.com/musicamatics/queueskip/internal/rotation/metrics"
	rotationstore "github.com/musicamatics/queueskip/internal/rotation/store"
	httptransport "github.com/musicamatics/queueskip/internal/transport/http"
	"github.com/musicamatics/queueskip/internal/venue"
	"github.com/musicamatics/queueskip/migrations"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and runs the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable stores, or in-memory when no database is configured.
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	var (
		passes  passstore.Store
		records rotationstore.Store
	)
	if db != nil {
		defer db.Close()
		if err := migrations.Apply(ctx, db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		passes = passstore.NewPostgres(db)
		records = rotationstore.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		passes = passstore.NewMemory()
		records = rotationstore.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory stores; state is lost on restart")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var displayCache *cache.Cache
	if redisClient != nil {
		defer redisClient.Close()
		displayCache = cache.New(redisClient)
		log.Info("display cache enabled")
	}

	venues := venue.NewMemoryProvider()
	if cfg.VenueConfigPath != "" {
		venues, err = venue.LoadFile(cfg.VenueConfigPath)
		if err != nil {
			return err
		}
		log.Info("venue configuration loaded", "path", cfg.VenueConfigPath)
	} else {
		log.Warn("VENUE_CONFIG not set, no venues configured")
	}

	clk := clock.NewSystem()
	hub := notify.NewHub()
	codec := credential.New(cfg.CredentialSecret,
		credential.WithRotationInterval(cfg.RotationInterval),
		credential.WithClockSkew(cfg.ClockSkew),
		credential.WithClock(clk),
	)

	// Notarization is best effort: without brokers the queue is absent and
	// lifecycle events are only logged.
	recorder, err := notary.NewKafkaRecorder(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	var queue *notary.Queue
	if recorder != nil {
		defer recorder.Close()
		queue = notary.NewQueue(recorder, log,
			notary.WithReceiptFunc(passservice.ReceiptFunc(passes)))
		log.Info("notarization enabled", "topic", cfg.Kafka.Topic)
	}

	// The rotation service reads passes straight from the store; it folds
	// expiry into the status itself, so it does not need the pass service.
	rotationSvc := rotation.NewService(codec, records, passes, displayCache, hub, clk, rotationmetrics.New(), log)
	scheduler := rotation.NewScheduler(rotationSvc, hub, log)

	passOpts := []passservice.Option{
		passservice.WithCache(displayCache),
		passservice.WithHub(hub),
		passservice.WithClock(clk),
		passservice.WithTimerStopper(scheduler),
		passservice.WithMetrics(passmetrics.New()),
		passservice.WithLogger(log),
	}
	if queue != nil {
		passOpts = append(passOpts, passservice.WithNotary(queue))
	}
	passSvc := passservice.NewService(passes, venues, passOpts...)

	var limiter *middleware.SlidingWindow
	if cfg.RateLimit > 0 {
		limiter = middleware.NewSlidingWindow(cfg.RateLimit, cfg.RateLimitWindow)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Metrics:   metrics.New(),
		Validator: identity.NewJWTValidator(cfg.AuthSecret),
		Limiter:   limiter,
		Passes:    passhandler.New(passSvc, log),
		Rotation:  rotationhandler.New(rotationSvc, scheduler, passSvc, log),
		Events:    notifyhandler.New(hub, passSvc, log),
		Healthz:   healthz(db, redisClient),
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	if queue != nil {
		g.Go(func() error {
			queue.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("starting queueskip server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		scheduler.StopAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if queue != nil {
		queue.Wait()
	}
	log.Info("shutdown complete")
	return nil
}

// healthz reports liveness plus readiness of whichever backing stores are
// configured.
func healthz(db *sql.DB, rc *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if rc != nil {
			if err := rc.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
