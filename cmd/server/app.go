package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/events"
	"github.com/phrazzld/inkwell-api/internal/generation/preset"
	"github.com/phrazzld/inkwell-api/internal/platform/memory"
	"github.com/phrazzld/inkwell-api/internal/platform/postgres"
	platformredis "github.com/phrazzld/inkwell-api/internal/platform/redis"
	"github.com/phrazzld/inkwell-api/internal/redact"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/phrazzld/inkwell-api/internal/service/auth"
	"github.com/phrazzld/inkwell-api/internal/storage"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/phrazzld/inkwell-api/internal/task"
	goredis "github.com/redis/go-redis/v9"
)

// application holds the shared dependencies of the server and releases them
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil for the memory backend.
	db     *sql.DB
	stores store.Stores
	tx     store.Transactor

	files storage.FileStore
	// localFiles is set when objects are served by this process.
	localFiles *storage.LocalStore
	redis      *goredis.Client

	jwtService  auth.JWTService
	accounts    *service.AccountService
	generations *service.GenerationService

	emitter    *events.InMemoryEventEmitter
	taskRunner *task.TaskRunner
}

// newApplication connects the configured backends and wires the services,
// the generation job factory and the task runner together. Nothing is
// started until Run.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	if err := app.openStores(ctx); err != nil {
		return nil, err
	}
	if err := app.openFiles(ctx); err != nil {
		return nil, err
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	settings, err := service.SettingsFromConfig(cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("invalid generation settings: %w", err)
	}

	var opts []service.GenerationOption
	if cfg.Redis.Addr != "" {
		app.redis, err = platformredis.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %s", redact.Error(err))
		}
		ttl := statusCacheTTL(cfg)
		opts = append(opts, service.WithStatusCache(platformredis.NewStatusCache(app.redis, ttl)))
		logger.Info("status cache enabled", slog.Duration("ttl", ttl))
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.generations, err = service.NewGenerationService(app.stores, app.tx, app.emitter, app.files, settings, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation service: %w", err)
	}

	app.accounts, err = service.NewAccountService(app.stores, app.tx, auth.NewBcryptVerifier(),
		cfg.Auth.InitialCredits, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create account service: %w", err)
	}

	library, err := preset.LoadLibrary(cfg.Generation.PresetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}
	producer, err := preset.NewProducer(library, app.files,
		preset.WithStepDelay(cfg.Generation.StepDelay),
		preset.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	logger.Info("preset library loaded",
		slog.String("dir", cfg.Generation.PresetDir),
		slog.Int("presets", library.Len()))

	app.taskRunner = task.NewTaskRunner(app.generations, task.TaskRunnerConfig{
		WorkerCount:            cfg.Task.WorkerCount,
		QueueSize:              cfg.Task.QueueSize,
		StuckTaskAge:           cfg.Task.StuckTaskAge,
		StuckTaskCheckInterval: cfg.Task.StuckTaskCheckInterval,
	}, logger)
	app.taskRunner.SetErrorHandler(func(t task.Task, err error) {
		logger.Error("generation job failed",
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()),
			slog.String("error", redact.Error(err)))
	})

	factory := task.NewGenerationJobFactory(producer, app.generations, cfg.Task.ProducerTimeout, logger)
	app.emitter.RegisterHandler(events.GenerationRequested,
		task.NewTaskFactoryEventHandler(factory, app.taskRunner, logger))

	logger.Info("application initialized")
	return app, nil
}

func (app *application) openStores(ctx context.Context) error {
	cfg := app.config
	switch cfg.Database.Backend {
	case "memory":
		db := memory.NewDB(cfg.Auth.BCryptCost)
		app.stores = db.Stores()
		app.tx = memory.NewTransactor(db)
		app.logger.Warn("using in-memory database, all data is lost on shutdown")

	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, db, app.logger, "up"); err != nil {
				return err
			}
		}
		t := postgres.NewTransactor(db, cfg.Auth.BCryptCost)
		app.stores = t.Stores()
		app.tx = t

	default:
		return fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
	return nil
}

func (app *application) openFiles(ctx context.Context) error {
	cfg := app.config.Storage
	switch cfg.Backend {
	case "local":
		local, err := storage.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("failed to open local storage: %w", err)
		}
		app.files = local
		app.localFiles = local

	case "minio":
		files, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:      cfg.Endpoint,
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			Bucket:        cfg.Bucket,
			UseSSL:        cfg.UseSSL,
			PresignExpiry: cfg.PresignExpiry,
		})
		if err != nil {
			return fmt.Errorf("failed to open object storage: %s", redact.Error(err))
		}
		app.files = files

	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return nil
}

// statusCacheTTL keeps cached views from outliving the presigned URLs they
// contain.
func statusCacheTTL(cfg *config.Config) time.Duration {
	ttl := cfg.Redis.StatusTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if cfg.Storage.Backend == "minio" {
		expiry := cfg.Storage.PresignExpiry
		if expiry <= 0 {
			expiry = time.Hour
		}
		ttl = min(ttl, expiry/2)
	}
	return ttl
}

// Run starts the task runner and serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	if err := app.taskRunner.Start(); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup stops the workers and closes every connection. It is safe to
// call on a partially initialized application.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error closing connections", slog.String("error", redact.Error(err)))
	}

	app.logger.Info("application shutdown completed")
}
