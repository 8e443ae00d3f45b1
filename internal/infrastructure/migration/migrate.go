package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/arcade/backend/migrations"
)

// lockTimeout bounds the wait for the advisory lock another replica may
// hold while it migrates the same database at startup.
const lockTimeout = 2 * time.Minute

// Migrator runs the versioned PostgreSQL schema through golang-migrate.
// Close releases the connection it was built on.
type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// New wraps an open connection. An empty dir selects the migrations
// embedded in the binary.
func New(db *sql.DB, dir string, log *zap.Logger) (*Migrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}

	var m *migrate.Migrate
	if dir == "" {
		src, srcErr := iofs.New(migrations.FS, ".")
		if srcErr != nil {
			return nil, fmt.Errorf("embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m.LockTimeout = lockTimeout
	m.Log = migrateLogger{log.Named("migrate").Sugar()}
	return &Migrator{m: m, log: log}, nil
}

// Up applies every pending migration.
func (g *Migrator) Up() error {
	return g.apply("up", g.m.Up)
}

// Down rolls every migration back.
func (g *Migrator) Down() error {
	return g.apply("down", g.m.Down)
}

// Steps applies n migrations, rolling back when n is negative.
func (g *Migrator) Steps(n int) error {
	return g.apply(fmt.Sprintf("steps %+d", n), func() error { return g.m.Steps(n) })
}

// GoTo migrates up or down to version.
func (g *Migrator) GoTo(version uint) error {
	return g.apply(fmt.Sprintf("goto %d", version), func() error { return g.m.Migrate(version) })
}

// apply runs one migrate action. Having nothing to do is not an error.
func (g *Migrator) apply(action string, run func() error) error {
	g.log.Info("Running migrations", zap.String("action", action))
	err := run()
	if errors.Is(err, migrate.ErrNoChange) {
		g.log.Info("Schema already current", zap.String("action", action))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", action, err)
	}

	version, dirty, err := g.Version()
	if err != nil {
		return err
	}
	g.log.Info("Migrations applied",
		zap.String("action", action),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Version reports the applied version; 0 means none.
func (g *Migrator) Version() (uint, bool, error) {
	version, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything. It is the
// repair step after a migration failed halfway and left the schema dirty.
func (g *Migrator) Force(version int) error {
	g.log.Warn("Forcing schema version", zap.Int("version", version))
	if err := g.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and the database connection.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

// migrateLogger routes golang-migrate's progress lines into zap.
type migrateLogger struct {
	log *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool { return false }
