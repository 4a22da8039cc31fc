// Package config holds the configuration value (C8): the bookkeeping table
// naming and policy switches every other component reads, with defaults
// matching the well-known table shape.
package config

// Config is the single configuration value threaded through the engine. Its
// zero value is not meaningful; use Default to obtain the baseline and
// Option funcs to override individual fields.
type Config struct {
	TableName             string
	VersionColumn          string
	NameColumn             string
	AppliedAtColumn        string
	ChecksumColumn         string
	ExecutionTimeColumn    string
	VerifyChecksums        bool
	AllowOutOfOrder        bool
	TransactionPerMigration bool
}

// Default returns the baseline configuration from the well-known defaults.
func Default() Config {
	return Config{
		TableName:               "schema_migrations",
		VersionColumn:           "version",
		NameColumn:              "name",
		AppliedAtColumn:         "applied_at",
		ChecksumColumn:          "checksum",
		ExecutionTimeColumn:     "execution_time_ms",
		VerifyChecksums:         true,
		AllowOutOfOrder:         false,
		TransactionPerMigration: true,
	}
}

// Option mutates a Config in place; New applies a sequence of them over
// Default().
type Option func(*Config)

// New builds a Config starting from Default and applying opts in order.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithTableName(name string) Option {
	return func(c *Config) { c.TableName = name }
}

func WithVerifyChecksums(verify bool) Option {
	return func(c *Config) { c.VerifyChecksums = verify }
}

func WithAllowOutOfOrder(allow bool) Option {
	return func(c *Config) { c.AllowOutOfOrder = allow }
}

func WithTransactionPerMigration(perMigration bool) Option {
	return func(c *Config) { c.TransactionPerMigration = perMigration }
}
