// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package config manages beads coordinator configuration.

# Overview

config owns the full lifecycle of runtime configuration: multi-source
loading and validation. Configuration merges in priority order
"defaults -> YAML file -> environment variables".

# Core types

  - Config: top-level aggregate covering Storage, Scheduler, Lease, Bus,
    Memory, Quality, Registry, Redis, Log, and Telemetry
  - Loader: builder-pattern loader supporting chained configuration of
    file path, environment prefix, and custom validators

# Usage

	cfg, err := config.NewLoader().
		WithConfigPath("beads.yaml").
		WithEnvPrefix("BEADS").
		Load()
*/
package config
