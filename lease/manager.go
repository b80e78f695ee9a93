package lease

import (
	"context"
	"time"
)

// Manager is the lease manager contract. Every
// implementation must make Acquire a single atomic upsert: no
// read-then-write across a transaction boundary, so two agents racing
// for the same path never both believe they hold it.
type Manager interface {
	// Acquire attempts to take the lease on path for agentID, valid for
	// duration. It returns true iff the caller holds the lease once the
	// call returns: either the path was unheld, already held by
	// agentID, or its previous lease had expired.
	Acquire(ctx context.Context, path, agentID, taskID string, duration time.Duration) (bool, error)

	// Release drops the lease on path iff it is currently held by
	// agentID.
	Release(ctx context.Context, path, agentID string) error

	// ForceRelease drops the lease on path unconditionally. Used by the
	// stale-agent reaper.
	ForceRelease(ctx context.Context, path string) error

	// Check returns the current lease on path, or nil if unheld or
	// expired.
	Check(ctx context.Context, path string) (*Lease, error)

	// Extend pushes out the expiry on path iff it is currently held by
	// agentID, incrementing RenewedCount.
	Extend(ctx context.Context, path, agentID string, duration time.Duration) error

	// GetAgentLeases returns every unexpired lease held by agentID.
	GetAgentLeases(ctx context.Context, agentID string) ([]*Lease, error)

	// FindExpired returns every lease whose expiry has passed.
	FindExpired(ctx context.Context) ([]*Lease, error)

	// ReleaseAll drops every lease held by agentID, regardless of
	// expiry. Used when an agent deregisters or is reaped as stale.
	ReleaseAll(ctx context.Context, agentID string) error
}
