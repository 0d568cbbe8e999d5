package policy

import (
	"context"
	"fmt"
	"time"

	"enacthq/enact/pkg/governance"
)

// TimeWindow is a recurring daily window in local time.
type TimeWindow struct {
	// Start is the inclusive window start, "HH:MM".
	Start string `yaml:"start" json:"start"`

	// End is the exclusive window end, "HH:MM".
	End string `yaml:"end" json:"end"`

	// Days lists the weekdays the window applies to. Empty means every
	// day.
	Days []time.Weekday `yaml:"days_of_week" json:"days_of_week"`
}

type compiledWindow struct {
	startMinutes int
	endMinutes   int
	days         map[time.Weekday]bool
}

// Temporal allows requests whose evaluation time falls within any
// configured window; outside all windows the default applies.
type Temporal struct {
	windows      []compiledWindow
	defaultAllow bool

	// now is overridable for tests.
	now func() time.Time
}

// NewTemporal parses the windows and returns the policy.
func NewTemporal(windows []TimeWindow, defaultAllow bool) (*Temporal, error) {
	compiled := make([]compiledWindow, 0, len(windows))
	for i, w := range windows {
		cw, err := w.compile()
		if err != nil {
			return nil, fmt.Errorf("windows[%d]: %w", i, err)
		}
		compiled = append(compiled, cw)
	}
	return &Temporal{
		windows:      compiled,
		defaultAllow: defaultAllow,
		now:          time.Now,
	}, nil
}

// Evaluate implements governance.Policy against the local wall clock.
func (p *Temporal) Evaluate(_ context.Context, _ *governance.Request) governance.Decision {
	now := p.now()
	minutes := now.Hour()*60 + now.Minute()
	day := now.Weekday()

	for _, w := range p.windows {
		if !w.days[day] {
			continue
		}
		if minutes >= w.startMinutes && minutes < w.endMinutes {
			return governance.Decision{Allow: true, Reason: "within allowed time window"}
		}
	}
	return governance.Decision{Allow: p.defaultAllow, Reason: "outside allowed time windows"}
}

func (w TimeWindow) compile() (compiledWindow, error) {
	start, err := parseClock(w.Start)
	if err != nil {
		return compiledWindow{}, &WindowError{Field: "start", Cause: err}
	}
	end, err := parseClock(w.End)
	if err != nil {
		return compiledWindow{}, &WindowError{Field: "end", Cause: err}
	}
	if end <= start {
		return compiledWindow{}, &WindowError{Field: "end", Cause: fmt.Errorf("end %q must be after start %q", w.End, w.Start)}
	}

	days := make(map[time.Weekday]bool, 7)
	if len(w.Days) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			days[d] = true
		}
	} else {
		for _, d := range w.Days {
			if d < time.Sunday || d > time.Saturday {
				return compiledWindow{}, &WindowError{Field: "days_of_week", Cause: fmt.Errorf("invalid weekday %d", d)}
			}
			days[d] = true
		}
	}

	return compiledWindow{startMinutes: start, endMinutes: end, days: days}, nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
