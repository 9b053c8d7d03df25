package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/docker"
	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/interp"
	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/postgres/store"
	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/rabbitmq"
	"gitlab.com/fcv-2025.net/codegrader/internal/adapter/redis/cooldown"
	"gitlab.com/fcv-2025.net/codegrader/internal/config"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/containerexec"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/containerpool"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/grading"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/submission"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
	logger2 "gitlab.com/fcv-2025.net/codegrader/internal/global/logger"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers"
	http2 "gitlab.com/fcv-2025.net/codegrader/internal/http"
	"gitlab.com/fcv-2025.net/codegrader/internal/schedulerengine"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == interp.WorkerCommand {
		runWorker()
		return
	}
	InitReader()
	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sysCfg := config.NewSystemConfig()
	if sysCfg.DebugMode {
		logger2.UseDebug()
	}
	logger := logger2.Logger
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting code grading service")

	if profile := os.Getenv("SANDBOX_PROFILE_FILE"); profile != "" {
		if err := sysCfg.SandboxConfig.ApplyProfile(profile); err != nil {
			logger.Error("Failed to apply sandbox profile", "path", profile, "error", err)
			os.Exit(1)
		}
	}

	ctxBg, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := setupDatabase(sysCfg.PostgresConfig)
	if err != nil {
		logger.Error("Failed to set up database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:        sysCfg.RedisConfig.Url,
		Password:    sysCfg.RedisConfig.Password,
		DB:          sysCfg.RedisConfig.DB,
		PoolSize:    sysCfg.RedisConfig.PoolSize,
		DialTimeout: sysCfg.RedisConfig.DialTimeout,
	})
	defer redisClient.Close()

	// SECONDARY PORTS
	executor, closeExecutor, err := setupExecutor(ctxBg, sysCfg.SandboxConfig, logger)
	if err != nil {
		logger.Error("Failed to set up executor", "mode", sysCfg.SandboxConfig.Exec.Mode, "error", err)
		os.Exit(1)
	}
	schema := sysCfg.PostgresConfig.Schema
	requestStore := store.New(db, logger, schema)
	storeFactory := store.NewFactory(db, logger, schema)
	cooldowns := cooldown.NewCooldownRepository(redisClient, logger)

	//services
	gradingSvc := grading.NewGradingService(executor, sysCfg.SandboxConfig.Exec.DefaultTimeout, logger)
	submissionSvc := submission.NewSubmissionService(
		requestStore,
		storeFactory,
		gradingSvc,
		cooldowns,
		sysCfg.PipelineCfg.Cooldown,
		logger,
	)

	stopPipeline, err := setupPipeline(ctxBg, sysCfg, submissionSvc, requestStore, logger)
	if err != nil {
		logger.Error("Failed to set up evaluation pipeline", "mode", sysCfg.PipelineCfg.DispatchMode, "error", err)
		os.Exit(1)
	}

	//server
	middleware := handlers.NewMiddlewareProvider(sysCfg.JwtConfig, logger)
	httpServer := http2.NewServer(sysCfg.HttpPort, "codegrader", *http2.NewServiceProvider(submissionSvc), middleware, logger)
	if err := httpServer.Init(); err != nil {
		logger.Error("Failed to init http server", "error", err)
		os.Exit(1)
	}
	serveErr := httpServer.Start()

	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			logger.Error("Http server stopped", "error", err)
		}
	}
	logger.Info("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Stop(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	stopPipeline(ctx)
	cancel()
	closeExecutor(ctx)

	logger.Info("successfully shutdown server")
}

// runWorker serves one in-process execution job for the parent service.
// Config and requests arrive on stdin, so no env file is read.
func runWorker() {
	logger := logger2.Logger
	defer func() { _ = logger.Sync() }()
	if err := interp.RunWorker(logger); err != nil {
		logger.Error("Execution worker failed", "error", err)
		os.Exit(1)
	}
}

// setupDatabase sets up the PostgreSQL connection pool
func setupDatabase(cfg *config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	return db, nil
}

// setupExecutor builds the code executor selected by the sandbox mode
func setupExecutor(ctx context.Context, cfg *config.SandboxConfig, logger primary.Logger) (secondary.CodeExecutor, func(context.Context), error) {
	switch cfg.Exec.Mode {
	case config.ExecInProcess:
		exe, err := os.Executable()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to locate worker binary: %w", err)
		}
		supervisor := interp.NewSupervisor(interp.SupervisorConfig{
			Command: []string{exe, interp.WorkerCommand},
			Worker: interp.WorkerOptions{
				AllowedPackages: cfg.Exec.AllowedPackages,
				MaxParallel:     cfg.Exec.MaxParallel,
				DefaultTimeout:  cfg.Exec.DefaultTimeout,
				MaxStackBytes:   cfg.Exec.WorkerMaxStackMB << 20,
			},
			Grace: cfg.Exec.WorkerGrace,
		}, logger)
		return supervisor, func(context.Context) {}, nil

	case config.ExecContainer:
		cli, err := docker.NewClient()
		if err != nil {
			return nil, nil, err
		}
		runtime := docker.NewRuntime(cli, logger)
		pool := containerpool.NewPool(runtime, containerpool.Config{
			MaxSize:        cfg.Pool.MaxSize,
			AcquireTimeout: cfg.Pool.AcquireTimeout,
			Spec: domain.UnitSpec{
				Image:       cfg.Pool.Image,
				MemoryBytes: cfg.Pool.MemoryMB << 20,
				CPUShare:    cfg.Pool.CPUShare,
				PidsLimit:   cfg.Pool.PidsLimit,
				User:        cfg.Pool.ExecUser,
				TmpfsPath:   cfg.Pool.WorkRoot,
				TmpfsBytes:  cfg.Pool.TmpfsMB << 20,
				WorkRoot:    cfg.Pool.WorkRoot,
				Labels:      map[string]string{"app": "codegrader"},
			},
		}, logger)
		if cfg.Pool.WarmSize > 0 {
			if err := pool.Warm(ctx, cfg.Pool.WarmSize); err != nil {
				logger.Warn("Failed to warm container pool", "size", cfg.Pool.WarmSize, "error", err)
			}
		}
		engine := containerexec.NewEngine(pool, runtime, containerexec.Config{
			WorkRoot:       cfg.Pool.WorkRoot,
			BuildTimeout:   cfg.Exec.BuildTimeout,
			DefaultTimeout: cfg.Exec.DefaultTimeout,
			Fused:          cfg.Exec.Fused,
			MaxParallel:    cfg.Exec.MaxParallel,
		}, logger)
		closeFn := func(ctx context.Context) {
			if err := pool.Close(ctx); err != nil {
				logger.Error("Failed to close container pool", "error", err)
			}
			_ = cli.Close()
		}
		return engine, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown exec mode %q", cfg.Exec.Mode)
	}
}

// setupPipeline starts the background evaluation pipeline and installs its
// dispatcher. Stale pending submissions are swept back into it.
func setupPipeline(
	ctx context.Context,
	cfg *config.AppConfig,
	svc *submission.SubmissionService,
	pending secondary.PendingSubmissionLister,
	logger primary.Logger,
) (func(context.Context), error) {
	var (
		dispatcher secondary.EvaluationDispatcher
		stop       func(context.Context)
	)
	switch cfg.PipelineCfg.DispatchMode {
	case config.DispatchLocal:
		engine := schedulerengine.NewEvaluationEngine(cfg.PipelineCfg, svc.Evaluate, logger)
		engine.Start(ctx)
		dispatcher = engine
		stop = func(ctx context.Context) {
			if err := engine.Stop(ctx); err != nil {
				logger.Error("Failed to stop evaluation engine", "error", err)
			}
		}

	case config.DispatchAMQP:
		broker, err := rabbitmq.Connect(cfg.AMQPConfig, logger)
		if err != nil {
			return nil, err
		}
		consumer, err := broker.Consumer(svc.Evaluate, cfg.PipelineCfg)
		if err != nil {
			_ = broker.Close()
			return nil, err
		}
		consumerCtx, stopConsumer := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			consumer.Run(consumerCtx)
			close(done)
		}()
		dispatcher = broker.Dispatcher()
		stop = func(ctx context.Context) {
			stopConsumer()
			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("Evaluation consumer did not stop in time")
			}
			if err := broker.Close(); err != nil {
				logger.Error("Failed to close amqp broker", "error", err)
			}
		}

	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", cfg.PipelineCfg.DispatchMode)
	}

	svc.SetDispatcher(dispatcher)
	recoveryCtx, stopRecovery := context.WithCancel(ctx)
	recovered := schedulerengine.NewPendingRecovery(cfg.PipelineCfg, pending, dispatcher, logger).Start(recoveryCtx)

	return func(ctx context.Context) {
		stopRecovery()
		select {
		case <-recovered:
		case <-ctx.Done():
			logger.Warn("Pending recovery did not stop in time")
		}
		stop(ctx)
	}, nil
}

// InitReader loads <env>.env when an environment name is given as the first argument
func InitReader() {
	if len(os.Args) < 2 {
		return
	}
	environment := os.Args[1]
	if err := godotenv.Load(environment + ".env"); err != nil {
		log.Fatalf("Error loading %s.env file", environment)
	}
}
