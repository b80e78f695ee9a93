// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package migration manages database schema migrations for PostgreSQL, MySQL,
and SQLite, built on golang-migrate.

# Overview

This package embeds per-dialect SQL migration files via embed.FS and drives
them through the golang-migrate engine for versioned schema changes. It
supports forward migration and rolling back one step; it has no
multi-step, goto-version or force-version operations.

# Core types

  - DefaultMigrator: wraps a golang-migrate instance and its database
    connection, exposing Up, Down (one step back), Version, Status, Info
    and Close. There is no separate Migrator interface.
  - Config: migration configuration — database type, connection URL and
    migrations table name.
  - DatabaseType: the database type enum (postgres/mysql/sqlite).
  - MigrationStatus / MigrationInfo: migration status and summary info.

# Capabilities

  - Multi-database support: DatabaseType plus embedded SQL auto-selects
    the right dialect.
  - Factory functions: NewMigratorFromConfig / NewMigratorFromStorageConfig /
    NewMigratorFromURL build a migrator from different configuration
    sources.
  - Helpers: ParseDatabaseType parses a type string, BuildDatabaseURL
    assembles a dialect-specific connection URL.
*/
package migration
