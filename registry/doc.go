// Package registry implements the agent registry:
// agent identity, heartbeat tracking, and the stale-agent reaper that
// reclaims leases and resets abandoned task claims when an agent goes
// quiet for longer than its heartbeat-multiple threshold.
package registry
