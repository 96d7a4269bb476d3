package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/e2ee/internal/database"
)

// migrationSource maps a database driver to its migrations directory and the
// prefix golang-migrate expects on the connection string.
var migrationSource = map[string]struct{ dir, urlPrefix string }{
	database.DriverPostgres: {dir: "postgresql"},
	database.DriverMySQL:    {dir: "mysql", urlPrefix: "mysql://"},
}

// RunMigrations applies every pending migration under migrations/<dialect>. Running
// with nothing pending is not an error. The resulting schema version is logged.
func RunMigrations(logger *slog.Logger, dbDriver, dbConnectionString string) error {
	source, ok := migrationSource[dbDriver]
	if !ok {
		return fmt.Errorf("%w: %q", database.ErrUnsupportedDriver, dbDriver)
	}

	logger.Info("running database migrations", slog.String("driver", dbDriver))

	m, err := migrate.New("file://migrations/"+source.dir, source.urlPrefix+dbConnectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	logger.Info("migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}
