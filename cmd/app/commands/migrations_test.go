package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/e2ee/internal/database"
)

func TestRunMigrations(t *testing.T) {
	t.Run("unsupported driver", func(t *testing.T) {
		err := RunMigrations(discardLogger(), "sqlite3", "file::memory:")
		require.ErrorIs(t, err, database.ErrUnsupportedDriver)
	})

	for _, driver := range []string{database.DriverPostgres, database.DriverMySQL} {
		t.Run(driver+" invalid connection string", func(t *testing.T) {
			err := RunMigrations(discardLogger(), driver, "invalid-connection-string")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to create migrate instance")
		})
	}
}
