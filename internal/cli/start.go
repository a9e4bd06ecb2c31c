package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dialogue-lesson-service/internal/app"
	"dialogue-lesson-service/internal/config"
	"dialogue-lesson-service/internal/infra/gemini"
	"dialogue-lesson-service/internal/infra/memory"
	"dialogue-lesson-service/internal/infra/postgres"
	redisstore "dialogue-lesson-service/internal/infra/redis"
	"dialogue-lesson-service/internal/lesson"
	"dialogue-lesson-service/internal/logging"
	"dialogue-lesson-service/internal/metrics"
	transport "dialogue-lesson-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the lesson server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	deps.Metrics = m

	service := app.NewLessonService(deps)
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting lesson service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	// Let queued persistence writes finish before the stores close.
	service.Flush()
	return err
}

// buildDependencies picks the storage backends from config: Postgres for scripts and chat logs when
// configured, Redis for caching and session liveness, memory otherwise.
func buildDependencies(ctx context.Context, cfg config.Config, logger *zap.Logger) (app.Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.DurationOr(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return app.Dependencies{}, nil, err
		}
		closers = append(closers, pool.Close)
	}

	var loader memory.ScriptLoader
	if pool != nil {
		loader = postgres.NewScriptLoader(pool)
	} else {
		bundled, err := memory.BundledScripts()
		if err != nil {
			cleanup()
			return app.Dependencies{}, nil, err
		}
		loader = memory.NewStaticScriptLoader(bundled)
	}

	scriptTTL := config.DurationOr(cfg.Script.TTL, 10*time.Minute)
	deps := app.Dependencies{
		Pacer:         lesson.PacerFor(config.DurationOr(cfg.Pacing.MessageDelay, 0)),
		Logger:        logger,
		RemoteTimeout: config.DurationOr(cfg.Grading.RemoteTimeout, 0),
		DefaultLang:   cfg.Lesson.UILang,
	}

	switch {
	case redisClient != nil:
		deps.Scripts = redisstore.NewScriptRepository(redisClient, loader, scriptTTL)
		deps.Sessions = redisstore.NewSessionStore(redisClient, redisTTL)
	default:
		deps.Scripts = memory.NewScriptRepository(loader, scriptTTL)
		deps.Sessions = memory.NewSessionStore()
	}

	switch {
	case pool != nil:
		deps.Messages = postgres.NewMessageStore(pool)
		deps.Progress = postgres.NewProgressStore(pool)
	case redisClient != nil:
		deps.Messages = redisstore.NewMessageStore(redisClient, redisTTL)
		deps.Progress = redisstore.NewProgressStore(redisClient)
	default:
		deps.Messages = memory.NewMessageStore()
		deps.Progress = memory.NewProgressStore()
	}

	if cfg.Gemini.APIKey != "" {
		validator, err := gemini.NewValidator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			cleanup()
			return app.Dependencies{}, nil, err
		}
		closers = append(closers, func() { _ = validator.Close() })
		deps.Remote = validator
	} else {
		logger.Warn("gemini api key not configured; open-ended answers will ask to retry")
	}

	return deps, cleanup, nil
}
