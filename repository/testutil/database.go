package testutil

import (
	"context"
	"testing"

	"digitlotto/database"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// TestDatabase is a migrated postgres container owned by one test
type TestDatabase struct {
	Container *postgres.PostgresContainer
	DB        *database.DB
	URL       string
}

// SetupTestDatabase starts postgres, applies the embedded migrations and
// opens a pool. The container and pool are released when the test ends.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("digitlotto_test"),
		postgres.WithUsername("lotto"),
		postgres.WithPassword("lotto"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{
			"suite": "digitlotto",
			"test":  t.Name(),
		}),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrationsWithURL(url))

	db, err := database.NewConnection(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return &TestDatabase{Container: container, DB: db, URL: url}
}

// Truncate empties every settlement table and reseeds the commission row so a
// container can be shared by sequential subtests.
func (td *TestDatabase) Truncate(t *testing.T) {
	t.Helper()
	_, err := td.DB.Exec(context.Background(), `
		TRUNCATE payment_logs, bets, rounds RESTART IDENTITY CASCADE;
		UPDATE commission SET total_accumulated = 0, total_withdrawn = 0, last_withdrawal_at = NULL`)
	require.NoError(t, err)
}
