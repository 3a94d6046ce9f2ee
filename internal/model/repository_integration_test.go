//go:build integration

package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/thep200/repo-harvester/cfg"
	"github.com/thep200/repo-harvester/pkg/db"
	"github.com/thep200/repo-harvester/pkg/log"
)

func setupPostgres(t *testing.T) *db.Database {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "github_data",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	config := cfg.Default().Database
	config.Host = host
	config.Port = port.Port()
	database := db.NewDatabase(config)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Ping(ctx))
	return database
}

func TestRepository_Integration_PostgresUpsert(t *testing.T) {
	database := setupPostgres(t)
	repo, err := NewRepository(cfg.Default(), log.NopLogger{}, database)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx))

	_, err = repo.Upsert(ctx, []Record{
		{OwnerName: "golang", EntityName: "go", PopularityScore: 1},
		{OwnerName: "golang", EntityName: "go", PopularityScore: 3},
		{OwnerName: "rust-lang", EntityName: "rust", PopularityScore: 2},
	})
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, []Record{{OwnerName: "golang", EntityName: "go", PopularityScore: 5}})
	require.NoError(t, err)

	top, err := repo.Top(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "go", top[0].RepoName)
	assert.Equal(t, 5, top[0].Stars)
}
