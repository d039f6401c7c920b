package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lorequiz-service/internal/config"
	"lorequiz-service/internal/infra/filesystem"
	pgstore "lorequiz-service/internal/infra/postgres"
	"lorequiz-service/internal/logger"
)

// NewSeedCmd copies the quiz files from quiz.dir into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load quiz definition files into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runSeed(cmd.Context(), cfg, log)
		},
	}
}

func runSeed(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrations(ctx, cfg, log); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	files := filesystem.NewQuizLoader(cfg.Quiz.Dir)
	store := pgstore.NewQuizLoader(pool)
	ids, err := files.List()
	if err != nil {
		return err
	}

	var errs error
	for _, id := range ids {
		def, err := files.LoadQuiz(ctx, id)
		if err == nil {
			err = def.Validate()
		}
		if err == nil {
			err = store.SaveQuiz(ctx, def)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("quiz %s: %w", id, err))
			continue
		}
		log.Info("quiz seeded", zap.String("quiz", def.ID), zap.Int("questions", len(def.Questions)))
	}
	return errs
}
