package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"vaultctl/config"
	"vaultctl/pkg/storage/postgres"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig points at a local server; set VAULTCTL_TEST_POSTGRES_HOST to run.
func testConfig(t *testing.T) config.PostgresConfig {
	t.Helper()
	host := os.Getenv("VAULTCTL_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("VAULTCTL_TEST_POSTGRES_HOST is not set")
	}
	return config.PostgresConfig{
		Host:     host,
		Port:     5432,
		User:     "postgres",
		Password: os.Getenv("VAULTCTL_TEST_POSTGRES_PASSWORD"),
		DBName:   "vaultctl_test",
		SSLMode:  "disable",
		TimeZone: "UTC",

		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=127.0.0.1 port=1 user=fail password=fail dbname=fail sslmode=disable connect_timeout=1"

	_, err := postgres.NewClient(invalidDSN)
	assert.Error(t, err)
}

// go test -v --run ^TestTxRecordSucceeded$
func TestTxRecordSucceeded(t *testing.T) {
	one, zero := uint64(1), uint64(0)

	assert.Equal(t, "vault_tx_record", postgres.TxRecord{}.TableName())
	assert.True(t, postgres.TxRecord{Status: &one}.Succeeded())
	assert.False(t, postgres.TxRecord{Status: &zero}.Succeeded())
	assert.False(t, postgres.TxRecord{Status: &one, Error: "nonce too low"}.Succeeded())
	assert.False(t, postgres.TxRecord{}.Succeeded())
}

// go test -v --run ^TestTxRecordCRUD$
func TestTxRecordCRUD(t *testing.T) {
	cfg := testConfig(t)

	client, err := postgres.InitializeAndMigrate(cfg, "dev", true)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, client.IsHealthy(ctx))

	runID := uuid.New()
	status := uint64(1)
	vault := "0x00000000000000000000000000000000000000aa"
	record := &postgres.TxRecord{
		RunID:   runID,
		Network: "testnet",
		Account: "0x00000000000000000000000000000000000000a1",
		Op:      "lpCancel",
		Vaults:  []string{vault},
		TxHash:  "0x01",
		Status:  &status,
	}
	require.NoError(t, client.InsertTx(ctx, record))
	assert.NotZero(t, record.ID)

	byVault, err := client.ListByVault(ctx, vault, 10)
	require.NoError(t, err)
	require.NotEmpty(t, byVault)
	assert.Equal(t, "lpCancel", byVault[0].Op)

	byRun, err := client.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.True(t, byRun[0].Succeeded())

	_, err = client.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	recent, err := client.ListRecent(ctx, "testnet", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
