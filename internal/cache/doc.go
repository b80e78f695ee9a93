// Copyright 2026 Beads Authors. All rights reserved.
// Use of this source code is governed by an MIT license, found in the
// LICENSE file.

/*
Package cache provides a small in-process TTL + LRU cache for embedding
vectors, used by the memory store to avoid re-calling the embedding
provider for repeated semantic-search-by-text queries.

# Overview

QueryCache maps query text to the vector the provider returned for it.
Entries expire after a configured TTL and the cache holds at most a
configured number of entries, evicting least-recently-used entries when
full. The clock is injectable so tests control expiry deterministically.

# Core types

  - QueryCache: the cache itself, exposing Get/Put/Len/Purge.

All methods are safe for concurrent use.
*/
package cache
