package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"lorequiz-service/internal/config"
	pgmigrations "lorequiz-service/internal/infra/postgres/migrations"
	"lorequiz-service/internal/logger"
)

var errPostgresNotConfigured = errors.New("postgres url not configured")

// NewMigrateCmd applies, rolls back or lists schema migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *migrate.Migrator, log *zap.Logger) error {
				if rollback {
					return rollbackLast(ctx, m, log)
				}
				return migrateUp(ctx, m, log)
			})
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group")
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *migrate.Migrator, log *zap.Logger) error {
				ms, err := m.MigrationsWithStatus(ctx)
				if err != nil {
					return err
				}
				log.Info("migration status",
					zap.Stringer("applied", ms.Applied()),
					zap.Stringer("pending", ms.Unapplied()),
					zap.Stringer("last_group", ms.LastGroup()),
				)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, configPath string, fn func(context.Context, *migrate.Migrator, *zap.Logger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := openBun(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	return fn(ctx, m, log)
}

// runMigrations brings the schema up to date; start and seed call it before
// touching Postgres.
func runMigrations(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	db, err := openBun(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	return migrateUp(ctx, m, log)
}

func openBun(cfg config.Config) (*bun.DB, error) {
	if cfg.Postgres.URL == "" {
		return nil, errPostgresNotConfigured
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func migrateUp(ctx context.Context, m *migrate.Migrator, log *zap.Logger) error {
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() { _ = m.Unlock(ctx) }()

	group, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		log.Info("database is up to date")
		return nil
	}
	log.Info("migrations applied", zap.String("group", group.String()))
	return nil
}

func rollbackLast(ctx context.Context, m *migrate.Migrator, log *zap.Logger) error {
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() { _ = m.Unlock(ctx) }()

	group, err := m.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if group.IsZero() {
		log.Info("nothing to roll back")
		return nil
	}
	log.Info("migrations rolled back", zap.String("group", group.String()))
	return nil
}
