package oversight

import (
	"log/slog"
	"sync"
	"time"
)

// KillSwitch is the process-wide emergency halt. While active, the
// engine denies every request with the activation reason, before any
// validator or policy runs.
//
// The switch is supplied by the composition root rather than being a
// true singleton, so tests can inject fresh instances.
type KillSwitch struct {
	mu          sync.Mutex
	active      bool
	activatedBy string
	activatedAt time.Time
	reason      string

	onChange func(active bool, reason string)
	logger   *slog.Logger
}

// KillSwitchStatus is a snapshot of the switch state.
type KillSwitchStatus struct {
	Active      bool
	ActivatedBy string
	ActivatedAt time.Time
	Reason      string
}

// NewKillSwitch creates an inactive switch. The optional onChange
// callback fires synchronously on every state change.
func NewKillSwitch(onChange func(active bool, reason string)) *KillSwitch {
	return &KillSwitch{
		onChange: onChange,
		logger:   slog.Default().With("component", "oversight.killswitch"),
	}
}

// Activate halts all tool calls. Activating an already-active switch is
// a no-op and does not re-fire the callback.
func (k *KillSwitch) Activate(by, reason string) {
	k.mu.Lock()
	if k.active {
		k.mu.Unlock()
		return
	}
	k.active = true
	k.activatedBy = by
	k.activatedAt = time.Now()
	k.reason = reason
	cb := k.onChange
	k.mu.Unlock()

	k.logger.Warn("kill-switch activated", "by", by, "reason", reason)
	if cb != nil {
		cb(true, reason)
	}
}

// Deactivate resumes normal operation. Deactivating an inactive switch
// is a no-op.
func (k *KillSwitch) Deactivate(by string) {
	k.mu.Lock()
	if !k.active {
		k.mu.Unlock()
		return
	}
	reason := k.reason
	k.active = false
	k.activatedBy = ""
	k.activatedAt = time.Time{}
	k.reason = ""
	cb := k.onChange
	k.mu.Unlock()

	k.logger.Info("kill-switch deactivated", "by", by)
	if cb != nil {
		cb(false, reason)
	}
}

// Active reports whether the switch is engaged.
func (k *KillSwitch) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

// Status returns a snapshot of the switch state.
func (k *KillSwitch) Status() KillSwitchStatus {
	k.mu.Lock()
	defer k.mu.Unlock()
	return KillSwitchStatus{
		Active:      k.active,
		ActivatedBy: k.activatedBy,
		ActivatedAt: k.activatedAt,
		Reason:      k.reason,
	}
}
