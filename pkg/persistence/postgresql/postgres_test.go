package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/persistencetest"
	"github.com/dukex/flowrun/pkg/persistence/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"executions", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowrun_test"),
			postgres.WithUsername("flowrun"),
			postgres.WithPassword("flowrun"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		err := p.Close(ctx)
		require.NoError(t, err)

		dropDb(ctx, t, databaseURL)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestPersistenceContract(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		t.Helper()

		p, _, _ := setupTestDB(t)

		return p
	})
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		_ = db.Close()
	}()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	for _, table := range []string{"workflows", "executions"} {
		var exists bool

		err = db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestMigrations_AreIdempotent(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
}

func TestWorkflowSave_KeepsStats(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := persistencetest.NewWorkflow("owner")
	require.NoError(t, repo.Save(ctx, workflow))
	require.NoError(t, repo.UpdateStats(ctx, workflow.ID, time.Now()))
	require.NoError(t, repo.UpdateStats(ctx, workflow.ID, time.Now()))

	workflow.Name = "Edited"
	workflow.ExecutionCount = 0
	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", loaded.Name)
	assert.Equal(t, int64(2), loaded.ExecutionCount)
}

func TestWorkflowSave_GeneratesID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := persistencetest.NewWorkflow("owner")
	workflow.ID = ""
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	_, err := uuid.Parse(workflow.ID)
	require.NoError(t, err)
}

func TestIdempotencyKey_IsUniquePerWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()
	workflowID := uuid.NewString()

	first := persistencetest.NewRecord(workflowID, time.Now())
	first.IdempotencyKey = "k"
	require.NoError(t, repo.Create(ctx, first))

	second := persistencetest.NewRecord(workflowID, time.Now())
	second.IdempotencyKey = "k"
	require.Error(t, repo.Create(ctx, second))

	other := persistencetest.NewRecord(uuid.NewString(), time.Now())
	other.IdempotencyKey = "k"
	require.NoError(t, repo.Create(ctx, other))
}

func TestExecution_PendingWithoutOutput(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	record := &models.ExecutionRecord{WorkflowID: uuid.NewString(), Status: models.ExecutionStatusPending, StartedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, record))

	loaded, err := repo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, loaded.Status)
	assert.Nil(t, loaded.OutputData)
	assert.Empty(t, loaded.Logs)
}
