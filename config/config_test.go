package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parsql-io/henka/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	assert.Equal(t, "schema_migrations", cfg.TableName)
	assert.Equal(t, "version", cfg.VersionColumn)
	assert.Equal(t, "name", cfg.NameColumn)
	assert.Equal(t, "applied_at", cfg.AppliedAtColumn)
	assert.Equal(t, "checksum", cfg.ChecksumColumn)
	assert.Equal(t, "execution_time_ms", cfg.ExecutionTimeColumn)
	assert.True(t, cfg.VerifyChecksums)
	assert.False(t, cfg.AllowOutOfOrder)
	assert.True(t, cfg.TransactionPerMigration)
}

func TestNew_AppliesOptionsOverDefault(t *testing.T) {
	t.Parallel()

	cfg := config.New(
		config.WithTableName("migrations_log"),
		config.WithVerifyChecksums(false),
		config.WithAllowOutOfOrder(true),
		config.WithTransactionPerMigration(false),
	)

	assert.Equal(t, "migrations_log", cfg.TableName)
	assert.False(t, cfg.VerifyChecksums)
	assert.True(t, cfg.AllowOutOfOrder)
	assert.False(t, cfg.TransactionPerMigration)

	// Untouched fields still come from Default.
	assert.Equal(t, "version", cfg.VersionColumn)
}
