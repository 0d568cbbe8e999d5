// Package limits groups the request-volume safeguards of the governance
// pipeline.
//
// The package is organized into sub-packages:
//
//   - ratelimit: per-(agent, tool) token bucket rate limiting
//   - quota: per-agent rolling-window action counting
//
// Both keep all state in memory, create buckets lazily on first
// reference, and guarantee per-key linearizability via per-key locks.
// No cross-key ordering is provided.
package limits
