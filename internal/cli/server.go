package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lorequiz-service/internal/app"
	"lorequiz-service/internal/auth"
	"lorequiz-service/internal/config"
	"lorequiz-service/internal/infra/filesystem"
	"lorequiz-service/internal/infra/memory"
	pgstore "lorequiz-service/internal/infra/postgres"
	redisstore "lorequiz-service/internal/infra/redis"
	"lorequiz-service/internal/logger"
	transport "lorequiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores is the persistence chosen from config: Postgres and Redis when
// configured, process memory otherwise.
type stores struct {
	quizzes     app.QuizRepository
	sessions    app.SessionRepository
	profiles    app.ProfileStore
	leaderboard app.LeaderboardStore
	pending     app.PendingStore
	badges      app.BadgeCatalog
	close       func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret not configured")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	queue := app.NewPendingResultQueue(st.pending, log)
	submissions := app.NewSubmissionService(st.profiles, st.leaderboard, app.NewBadgeRuleEngine(badgeRules(cfg)...), queue, log)
	profiles := app.NewProfileService(st.profiles, st.badges, log)
	service := app.NewQuizService(app.QuizServiceConfig{
		Sessions:      st.sessions,
		Quizzes:       st.quizzes,
		Submissions:   submissions,
		Pending:       queue,
		Profiles:      profiles,
		Logger:        log,
		FeedbackDelay: config.TTLDuration(cfg.Quiz.FeedbackDelay, app.MinFeedbackDelay),
	})

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	tokens := auth.NewTokens(cfg.Auth.Secret)
	router := transport.NewRouter(transport.RouterDeps{
		WS:       transport.NewWSHandler(service, tokens, log),
		Ranker:   app.NewRanker(st.leaderboard),
		Profiles: profiles,
		Pending:  queue,
		Verifier: tokens,
		Logger:   log,
	})

	// No WriteTimeout: the deadline would carry over to hijacked websocket connections.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort), zap.String("env", cfg.Env))
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

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	var (
		pool        *pgxpool.Pool
		redisClient *redis.Client
		closers     []func()
	)
	st := &stores{close: func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return nil, err
		}
		pgCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("parse postgres url: %w", err)
		}
		if cfg.Postgres.MaxConns > 0 {
			pgCfg.MaxConns = int32(cfg.Postgres.MaxConns)
		}
		pool, err = pgxpool.ConnectConfig(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
	}

	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			st.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var loader memory.QuizLoader = filesystem.NewQuizLoader(cfg.Quiz.Dir)
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	pendingTTL := config.TTLDuration(cfg.Pending.TTL, 24*time.Hour)

	switch {
	case redisClient != nil:
		st.quizzes = redisstore.NewQuizRepository(redisClient, loader, quizTTL, log)
		st.sessions = redisstore.NewSessionStore(redisClient, redisTTL, log)
		st.pending = redisstore.NewPendingStore(redisClient, pendingTTL)
	default:
		quizzes := memory.NewQuizRepository(loader, quizTTL)
		warmQuizzes(ctx, quizzes, loader, log)
		st.quizzes = quizzes
		st.sessions = memory.NewSessionStore()
		st.pending = memory.NewPendingStore(pendingTTL)
	}

	switch {
	case pool != nil:
		st.profiles = pgstore.NewProfileStore(pool)
		st.leaderboard = pgstore.NewLeaderboardStore(pool)
		st.badges = pgstore.NewBadgeCatalog(pool)
	case redisClient != nil:
		st.profiles = memory.NewProfileStore()
		st.leaderboard = redisstore.NewLeaderboardStore(redisClient)
		st.badges = memory.NewBadgeCatalog(memory.DefaultBadges()...)
	default:
		st.profiles = memory.NewProfileStore()
		st.leaderboard = memory.NewLeaderboardStore()
		st.badges = memory.NewBadgeCatalog(memory.DefaultBadges()...)
	}

	log.Info("stores ready",
		zap.Bool("postgres", pool != nil),
		zap.Bool("redis", redisClient != nil),
		zap.String("quiz_dir", cfg.Quiz.Dir),
	)
	return st, nil
}

// badgeRules builds the rule set from config, sorted by quiz id so grants are
// listed in a stable order.
func badgeRules(cfg config.Config) []app.BadgeRule {
	rules := make([]app.BadgeRule, 0, len(cfg.Badges.Perfect)+1)
	for _, perfect := range cfg.Badges.Perfect {
		if perfect.Quiz == "" || perfect.Badge == "" {
			continue
		}
		rules = append(rules, app.PerfectScoreRule(perfect.Quiz, perfect.Badge))
	}
	if cfg.Badges.First != "" {
		rules = append(rules, app.FirstQuizRule(cfg.Badges.First))
	}
	return rules
}

// warmQuizzes preloads every quiz file so the first players skip the disk.
func warmQuizzes(ctx context.Context, quizzes *memory.QuizRepository, loader memory.QuizLoader, log *zap.Logger) {
	files, ok := loader.(*filesystem.QuizLoader)
	if !ok {
		return
	}
	ids, err := files.List()
	if err != nil {
		log.Warn("list quiz files failed", zap.Error(err))
		return
	}
	if err := quizzes.Warm(ctx, ids); err != nil {
		log.Warn("quiz warm-up incomplete", zap.Error(err))
		return
	}
	log.Info("quizzes warmed", zap.Int("count", len(ids)))
}
