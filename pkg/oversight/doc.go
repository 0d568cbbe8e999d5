// Package oversight provides the human-control side-channels of the
// governance pipeline: the process-wide kill-switch, the approval
// workflow for high-risk requests, and confidence-based escalation.
//
// None of these hold references back into the engine; the engine
// consults them at fixed points in its pipeline. Tests inject fresh
// instances rather than sharing process state.
package oversight
