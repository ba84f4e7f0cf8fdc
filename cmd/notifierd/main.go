package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifier"
	"github.com/dmitrymomot/notifier/modules/ops"
	"github.com/dmitrymomot/notifier/pkg/config"
	"github.com/dmitrymomot/notifier/pkg/device"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/mongo"
	"github.com/dmitrymomot/notifier/pkg/notification"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/realtime"
	"github.com/dmitrymomot/notifier/pkg/redis"
	"github.com/dmitrymomot/notifier/pkg/scheduler"
	"github.com/dmitrymomot/notifier/pkg/sender"
)

type appConfig struct {
	Env                string        `env:"APP_ENV" envDefault:"development"`
	ServiceName        string        `env:"SERVICE_NAME" envDefault:"notifier"`
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	MongoDatabase      string        `env:"MONGODB_DATABASE" envDefault:"notifier"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	FCMCredentialsFile string        `env:"FCM_CREDENTIALS_FILE"`
	SMSEnabled         bool          `env:"SMS_ENABLED" envDefault:"false"`
	EmailEnabled       bool          `env:"EMAIL_ENABLED" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("notifierd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load app config: %w", err)
	}

	log := logger.New(logger.WithEnvironment(cfg.Env, cfg.ServiceName))
	slog.SetDefault(log)

	var mongoCfg mongo.Config
	if err := config.Load(&mongoCfg); err != nil {
		return fmt.Errorf("load mongo config: %w", err)
	}
	db, err := mongo.NewWithDatabase(ctx, mongoCfg, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			log.Warn("mongo disconnect failed", slog.Any("error", err))
		}
	}()

	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return fmt.Errorf("load redis config: %w", err)
	}
	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	store, err := notification.NewMongoStore(db.Collection("notifications"))
	if err != nil {
		return fmt.Errorf("notification store: %w", err)
	}
	tokenStorage, err := device.NewMongoStorage(db.Collection("device_tokens"))
	if err != nil {
		return fmt.Errorf("device token storage: %w", err)
	}
	registry, err := device.NewRegistry(tokenStorage, device.WithLogger(log))
	if err != nil {
		return fmt.Errorf("device registry: %w", err)
	}

	jobStorage, err := queue.NewRedisStorage(rdb)
	if err != nil {
		return fmt.Errorf("queue storage: %w", err)
	}
	q, err := queue.New(jobStorage, store, queue.WithLogger(log))
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	hub := realtime.NewHub()
	defer hub.Close()

	directory := newMongoDirectory(db.Collection("users"))

	svcOpts := []notifier.Option{notifier.WithLogger(log)}
	if cfg.FCMCredentialsFile != "" {
		push, err := sender.NewFCMSender(ctx, cfg.FCMCredentialsFile)
		if err != nil {
			return fmt.Errorf("fcm sender: %w", err)
		}
		svcOpts = append(svcOpts, notifier.WithPushSender(push))
	}
	if cfg.SMSEnabled {
		var snsCfg sender.SNSConfig
		if err := config.Load(&snsCfg); err != nil {
			return fmt.Errorf("load sns config: %w", err)
		}
		sms, err := sender.NewSNSSender(ctx, snsCfg)
		if err != nil {
			return fmt.Errorf("sns sender: %w", err)
		}
		svcOpts = append(svcOpts, notifier.WithSMSSender(sms))
	}
	if cfg.EmailEnabled {
		var pmCfg sender.PostmarkConfig
		if err := config.Load(&pmCfg); err != nil {
			return fmt.Errorf("load postmark config: %w", err)
		}
		email, err := sender.NewPostmarkSender(pmCfg)
		if err != nil {
			return fmt.Errorf("postmark sender: %w", err)
		}
		svcOpts = append(svcOpts, notifier.WithEmailSender(email))
	}

	svc, err := notifier.New(store, q, registry, hub, directory, svcOpts...)
	if err != nil {
		return fmt.Errorf("notification service: %w", err)
	}

	worker, err := queue.NewWorker(q, svc.Dispatcher(),
		queue.WithConcurrency(cfg.WorkerConcurrency),
		queue.WithWorkerLogger(log.With(logger.Component("worker"))),
	)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	sched := scheduler.New(scheduler.WithLogger(log.With(logger.Component("scheduler"))))
	if err := svc.RegisterMaintenanceJobs(sched); err != nil {
		return fmt.Errorf("maintenance jobs: %w", err)
	}

	mux := chi.NewRouter()
	mux.Get("/healthz", healthHandler(
		mongo.Healthcheck(db.Client()),
		redis.Healthcheck(rdb),
	))
	mux.Mount("/ops", ops.Router(svc, ops.WithLogger(log)))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(sched.Run(ctx))
	g.Go(func() error {
		log.InfoContext(ctx, "http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.InfoContext(ctx, "notifierd started", slog.String("env", cfg.Env))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// healthHandler reports 200 only when every dependency check passes.
func healthHandler(checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
