// Package types provides the shared vocabulary for the beads runtime: the
// ErrorKind enum, an injectable Clock, and id generators. It sits below
// storage, task, lease, bus, memory, quality, registry, and scheduler so
// those packages can share error and id conventions without importing one
// another.
package types
