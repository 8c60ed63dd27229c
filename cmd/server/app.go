package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-stepflow/internal/api/handler"
	"go-stepflow/internal/catalog"
	"go-stepflow/internal/config"
	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/core/postgres/repository"
	"go-stepflow/internal/database"
	redisinfra "go-stepflow/internal/infrastructure/redis"
	"go-stepflow/internal/logging"
	"go-stepflow/internal/metrics"
	"go-stepflow/internal/notifier"
	"go-stepflow/internal/reaper"
	"go-stepflow/internal/resultsink"
	"go-stepflow/internal/service"
	"go-stepflow/internal/trigger"
	"go-stepflow/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func loadConfig(dir string) (*config.Config, *slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if dir != "" {
		cfg, err = config.Load(dir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format), nil
}

func openDatabase(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	return database.Open(database.Options{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        logging.GormLevel(cfg.Log.Level),
	}, logger)
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	return redisinfra.NewRedisClient(ctx, redisinfra.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func runServe(ctx context.Context, configDir string) error {
	cfg, logger, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()
	tx := repository.NewTransactor(db)
	stepRepo := repository.NewStepRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	resultRepo := repository.NewResultRepository(db)

	steps := service.NewStepCatalog(tx, stepRepo, logger)
	if cfg.Catalog.SeedFile != "" {
		if err := seedFrom(ctx, steps, cfg.Catalog.SeedFile, logger); err != nil {
			return err
		}
	}

	gateway, err := buildTrigger(cfg, rdb, m, logger)
	if err != nil {
		return err
	}

	pool := worker.NewPool(cfg.Notifier.QueueSize, logger)
	alerts := notifier.NewAsync(buildNotifier(cfg, logger), pool, m, logger)

	opts := []service.Option{service.WithMetrics(m), service.WithLogger(logger)}
	if rdb != nil {
		opts = append(opts, service.WithEventBus(redisinfra.NewRedisEventBus(rdb, cfg.Redis.EventChannel)))
	}
	engine := service.NewWorkflowService(service.Deps{
		Tx:       tx,
		Steps:    stepRepo,
		Progress: progressRepo,
		Results:  resultRepo,
		Writer:   resultsink.NewRegistry(resultRepo),
		Trigger:  gateway,
		Notifier: alerts,
	}, service.Config{
		MaxRetries: cfg.Workflow.MaxRetries,
		AutoRetry:  cfg.Workflow.AutoRetry,
	}, opts...)

	router := handler.NewRouter(
		handler.NewWorkflowHandler(engine, logger),
		handler.NewStepHandler(steps, logger),
		handler.RouterOptions{
			OperatorToken: cfg.Server.OperatorToken,
			Metrics:       m.Handler(),
			Health: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			Logger: logger,
		},
	)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return withPool(ctx, pool, cfg.Notifier.Workers, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)

		if cfg.Workflow.StaleAfter > 0 {
			r := reaper.New(engine, cfg.Workflow.StaleAfter, cfg.Workflow.ReaperSchedule, logger)
			g.Go(func() error { return r.Start(gctx) })
		}

		g.Go(func() error {
			logger.Info("server starting", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	})
}

// withPool runs the pool for as long as run does. The workers stop only after
// run has returned, so jobs submitted by requests still draining during
// shutdown are delivered.
func withPool(ctx context.Context, pool *worker.Pool, workers int, run func(ctx context.Context) error) error {
	poolCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	pool.StartPool(poolCtx, workers)

	err := run(ctx)
	stop()
	pool.Wait()
	return err
}

func buildTrigger(cfg *config.Config, rdb *redis.Client, m *metrics.Metrics, logger *slog.Logger) (*trigger.Gateway, error) {
	var transport trigger.Transport
	switch cfg.Trigger.Transport {
	case "http":
		transport = trigger.NewHTTPTransport(cfg.Trigger.URL, cfg.Trigger.Timeout, cfg.Trigger.RetryCount)
	case "queue":
		if rdb == nil {
			return nil, errors.New("queue transport needs redis.addr")
		}
		transport = trigger.NewQueueTransport(redisinfra.NewRedisQueue(rdb, cfg.Redis.ActivationQueue))
	default:
		transport = trigger.NewLogTransport(logger)
	}

	var inflight trigger.Inflight = trigger.NewMemoryInflight(cfg.Trigger.InflightSize, cfg.Trigger.InflightTTL)
	if rdb != nil {
		inflight = redisinfra.NewInflightRegistry(rdb, "stepflow:inflight", cfg.Trigger.InflightTTL)
	}
	return trigger.NewGateway(transport, inflight, m, logger), nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) ports.Notifier {
	if cfg.Notifier.Sink == "webhook" {
		return notifier.NewWebhookNotifier(cfg.Notifier.URL, cfg.Notifier.Timeout)
	}
	return notifier.NewLogNotifier(logger)
}

func seedFrom(ctx context.Context, steps service.StepCatalog, path string, logger *slog.Logger) error {
	file, err := catalog.LoadSeedFile(path)
	if err != nil {
		return err
	}
	created, err := catalog.Seed(ctx, steps, file, logger)
	if err != nil {
		return err
	}
	logger.Info("catalog seeded", "file", path, "created", created, "listed", len(file.Steps))
	return nil
}

func runMigrate(configDir string) error {
	cfg, logger, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema up to date")
	return nil
}

func runSeed(ctx context.Context, configDir, file string) error {
	cfg, logger, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	if file == "" {
		file = cfg.Catalog.SeedFile
	}
	if file == "" {
		return errors.New("no seed file: pass --file or set catalog.seed_file")
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	steps := service.NewStepCatalog(repository.NewTransactor(db), repository.NewStepRepository(db), logger)
	return seedFrom(ctx, steps, file, logger)
}

func runTail(ctx context.Context, configDir, source string, out io.Writer) error {
	cfg, _, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.New("tail needs redis.addr")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	enc := json.NewEncoder(out)

	switch source {
	case "events":
		events, err := redisinfra.NewRedisEventBus(rdb, cfg.Redis.EventChannel).SubscribeToCompleted(ctx)
		if err != nil {
			return err
		}
		for event := range events {
			if err := enc.Encode(event); err != nil {
				return err
			}
		}
		return nil
	case "activations":
		queue := redisinfra.NewRedisQueue(rdb, cfg.Redis.ActivationQueue)
		if depth, err := queue.Len(ctx); err == nil {
			fmt.Fprintf(out, "# %d queued\n", depth)
		}
		for ctx.Err() == nil {
			payload, err := queue.Pop(ctx, 5*time.Second)
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			fmt.Fprintln(out, string(payload))
		}
		return nil
	default:
		return fmt.Errorf("unknown source %q", source)
	}
}
