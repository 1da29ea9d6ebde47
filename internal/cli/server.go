package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"rvl-week-service/internal/app"
	"rvl-week-service/internal/attendance"
	"rvl-week-service/internal/auth"
	"rvl-week-service/internal/config"
	"rvl-week-service/internal/infra/memory"
	pgstore "rvl-week-service/internal/infra/postgres"
	redisstore "rvl-week-service/internal/infra/redis"
	"rvl-week-service/internal/logging"
	transport "rvl-week-service/internal/transport/http"
	"rvl-week-service/internal/unlock"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the event server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Dir:        cfg.Logging.Dir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
}

var openRedis = func(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// collaborators are the stores the core talks to, picked by configuration.
type collaborators struct {
	progress interface {
		app.ProgressStore
		unlock.ProgressStore
	}
	results  app.ResultSink
	quizzes  app.QuizRepository
	sessions app.SessionRepository
	pending  unlock.PendingStore
	closers  []func()
}

func buildCollaborators(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *collaborators, err error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	c := &collaborators{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = openRedis(cfg)
		c.closers = append(c.closers, func() { _ = redisClient.Close() })
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(cfg.Quizzes())
	if cfg.Postgres.URL != "" {
		if err = runMigrations(ctx, cfg, log); err != nil {
			return nil, err
		}
		var pool *pgxpool.Pool
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pool.Close)

		store := pgstore.NewProgressStore(pool)
		if err = store.SeedDays(ctx, catalog); err != nil {
			return nil, err
		}
		quizLoader := pgstore.NewQuizLoader(pool)
		for _, q := range cfg.Quizzes() {
			if err = quizLoader.SaveQuiz(ctx, q); err != nil {
				return nil, err
			}
		}
		c.progress = store
		c.results = pgstore.NewResultSink(pool)
		loader = quizLoader
	} else {
		log.Warn("postgres not configured; progress is kept in memory")
		c.progress = memory.NewProgressStore(catalog)
		c.results = memory.NewResultSink()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	pendingTTL := config.TTLDuration(cfg.Unlock.PendingTTL, 24*time.Hour)
	if redisClient != nil {
		c.quizzes = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		c.sessions = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute), uuid.NewString())
		c.pending = redisstore.NewPendingStore(redisClient, pendingTTL)
	} else {
		c.quizzes = memory.NewQuizRepository(loader, quizTTL)
		c.sessions = memory.NewSessionStore()
		c.pending = memory.NewPendingStore(pendingTTL)
	}
	return c, nil
}

func (c *collaborators) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, err := buildCollaborators(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	service := app.NewEventService(deps.progress, deps.results, deps.quizzes, deps.sessions, app.Options{
		QuizPoints:  cfg.Quiz.TotalPoints,
		VideoPoints: cfg.Event.VideoPoints,
		SaveTimeout: config.TTLDuration(cfg.Quiz.SaveTimeout, 15*time.Second),
		Logger:      log.Named("quiz"),
	})
	validator, err := attendance.New(attendance.Config{
		Codes:            cfg.Event.Codes,
		Secret:           []byte(cfg.Unlock.Secret),
		AttendancePoints: cfg.Event.AttendancePoints,
		Logger:           log.Named("attendance"),
	}, deps.progress)
	if err != nil {
		return err
	}
	orchestrator := unlock.NewOrchestrator(deps.progress, validator, deps.pending, log.Named("unlock"))
	verifier := auth.NewVerifier([]byte(cfg.Auth.Secret), cfg.Auth.ElevatedRoles)

	pendingTTL := config.TTLDuration(cfg.Unlock.PendingTTL, 24*time.Hour)
	router := transport.NewRouter(
		transport.NewAPI(service, orchestrator, log.Named("api"), pendingTTL),
		transport.NewWSHandler(service, log.Named("ws")),
		verifier,
		log.Named("http"),
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: it would cut long-lived quiz websockets
	}

	go func() {
		log.Info("starting rvl week service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
