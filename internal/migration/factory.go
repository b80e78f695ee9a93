package migration

import (
	"fmt"

	appconfig "github.com/beadswarm/beads/config"
)

// NewMigratorFromConfig creates a new migrator from application configuration.
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewMigratorFromStorageConfig(cfg.Storage)
}

// NewMigratorFromStorageConfig creates a new migrator from storage configuration.
// StorageConfig.DSN is passed through as the migrate connection URL; for
// sqlite this may be a bare file path, which golang-migrate's sqlite3 driver
// accepts directly.
func NewMigratorFromStorageConfig(storageCfg appconfig.StorageConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(storageCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	dbURL := storageCfg.DSN
	if dbType == DatabaseTypeSQLite && dbURL != "" && dbURL != ":memory:" {
		dbURL = BuildDatabaseURL(dbType, "", 0, dbURL, "", "", "")
	}

	tableName := storageCfg.MigrationsTable
	if tableName == "" {
		tableName = "schema_migrations"
	}

	migCfg := &Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    tableName,
	}

	return NewMigrator(migCfg)
}

// NewMigratorFromURL creates a new migrator from a database URL.
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
