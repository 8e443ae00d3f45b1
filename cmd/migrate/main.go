package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcade/backend/internal/infrastructure/config"
	"github.com/arcade/backend/internal/infrastructure/logger"
	"github.com/arcade/backend/internal/infrastructure/migration"
	"github.com/arcade/backend/internal/infrastructure/persistence"
	"github.com/arcade/backend/migrations"
)

type options struct {
	configPath     string
	migrationsPath string
	logLevel       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "arcade-migrate",
		Short:         "Arcade database migration tool",
		Long:          "Applies the PostgreSQL schema migrations. With database.driver=sqlite, up runs GORM AutoMigrate instead.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: search ., /etc/arcade, /app)")
	root.PersistentFlags().StringVar(&opts.migrationsPath, "path", "", "migrations directory (default: migrations embedded in the binary)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newUpCmd(opts),
		newMigratorCmd(opts, "down", "Roll back all migrations", cobra.NoArgs, func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
			return m.Down()
		}),
		newMigratorCmd(opts, "steps <n>", "Apply n migrations (negative rolls back)", cobra.ExactArgs(1), func(m *migration.Migrator, _ *zap.Logger, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return m.Steps(n)
		}),
		newMigratorCmd(opts, "goto <version>", "Migrate up or down to a version", cobra.ExactArgs(1), func(m *migration.Migrator, _ *zap.Logger, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return m.GoTo(uint(v))
		}),
		newMigratorCmd(opts, "version", "Show the applied migration version", cobra.NoArgs, func(m *migration.Migrator, log *zap.Logger, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if v == 0 {
				log.Info("No migrations applied")
				return nil
			}
			log.Info("Current migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
			return nil
		}),
		newMigratorCmd(opts, "force <version>", "Set the version without running migrations (repairs a dirty state)", cobra.ExactArgs(1), func(m *migration.Migrator, _ *zap.Logger, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return m.Force(v)
		}),
		newCreateCmd(opts),
		newListCmd(opts),
	)
	return root
}

func (o *options) logger() (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      o.logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
}

func (o *options) config() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load()
}

func (o *options) migrationsDir() string {
	if o.migrationsPath != "" {
		return o.migrationsPath
	}
	return "migrations"
}

// withMigrator opens PostgreSQL, builds a Migrator and runs fn
func (o *options) withMigrator(fn func(m *migration.Migrator, log *zap.Logger) error) error {
	log, err := o.logger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	cfg, err := o.config()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("versioned migrations need postgres, database.driver is %q", cfg.Database.Driver)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, o.migrationsPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return fn(m, log)
}

func newMigratorCmd(opts *options, use, short string, args cobra.PositionalArgs, run func(*migration.Migrator, *zap.Logger, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			return opts.withMigrator(func(m *migration.Migrator, log *zap.Logger) error {
				return run(m, log, a)
			})
		},
	}
}

func newUpCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.Driver == config.DriverSQLite {
				return autoMigrateSQLite(opts, cfg)
			}
			return opts.withMigrator(func(m *migration.Migrator, _ *zap.Logger) error {
				return m.Up()
			})
		},
	}
}

func autoMigrateSQLite(opts *options, cfg *config.Config) error {
	log, err := opts.logger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		return err
	}
	log.Info("SQLite schema migrated", zap.String("path", cfg.Database.SQLitePath))
	return nil
}

func newCreateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create a new numbered migration file pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := ""
			if len(args) > 1 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(opts.migrationsDir(), args[0], description)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n        %s\n", mf.UpPath, mf.DownPath)
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fsys fs.FS = migrations.FS
			if opts.migrationsPath != "" {
				fsys = os.DirFS(opts.migrationsPath)
			}
			entries, err := migration.ListMigrations(fsys)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(out, "no migrations found")
				return nil
			}
			for _, e := range entries {
				down := ""
				if !e.HasDown {
					down = "  (no down migration)"
				}
				_, _ = fmt.Fprintf(out, "  %s%s\n", e, down)
			}
			return nil
		},
	}
}
