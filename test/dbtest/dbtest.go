// Package dbtest provides the shared Postgres-testcontainer helper used by
// the Registry and Memory service integration tests, mirroring the
// teacher's test/database helper adapted to a plain database/sql client (no
// generated ORM client).
package dbtest

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/soorma-platform/soorma/pkg/dbutil"
)

// NewTestDB spins up (or reuses, in CI, via TEST_DATABASE_URL) a Postgres
// instance, opens a pool against it, and applies migrationsFS rooted at
// dir. The container and pool are cleaned up automatically via t.Cleanup.
func NewTestDB(t *testing.T, migrationsFS fs.FS, dir string) *dbutil.Config {
	ctx := context.Background()

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		t.Log("using external PostgreSQL from TEST_DATABASE_URL")
		cfg := configFromURL(t, dsn)
		db, err := dbutil.Open(ctx, *cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, dbutil.RunMigrations(db, migrationsFS, dir, cfg.Database))
		return cfg
	}

	t.Log("using testcontainers for PostgreSQL")
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &dbutil.Config{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := dbutil.Open(ctx, *cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, dbutil.RunMigrations(db, migrationsFS, dir, cfg.Database))
	return cfg
}

func configFromURL(t *testing.T, dsn string) *dbutil.Config {
	u, err := url.Parse(dsn)
	require.NoError(t, err)

	port, _ := strconv.Atoi(u.Port())
	password, _ := u.User.Password()

	return &dbutil.Config{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  "disable",
	}
}
