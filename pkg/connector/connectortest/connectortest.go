// Package connectortest opens throwaway SQLite stores for package tests.
package connectortest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/David-Botos/txn-ingress/pkg/config"
	"github.com/David-Botos/txn-ingress/pkg/connector"
)

// New returns a validated SQLite connector backed by a file in t.TempDir().
// The connector is closed when the test finishes.
func New(t testing.TB) *connector.SQLiteConnector {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "ingress.db"),
	}

	conn, err := connector.NewSQLiteConnector(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, conn.Validate(context.Background()))

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
