package oversight

import (
	"log/slog"
)

// EscalationLevel classifies how much human involvement a low-confidence
// request needs.
type EscalationLevel string

const (
	// LevelNone requires nothing; the decision stands.
	LevelNone EscalationLevel = "none"

	// LevelNotify informs a human but does not block.
	LevelNotify EscalationLevel = "notify"

	// LevelReview blocks until a human reviews the request.
	LevelReview EscalationLevel = "review"

	// LevelApproval blocks until a human explicitly approves.
	LevelApproval EscalationLevel = "approval"
)

// Assessment is the result of mapping a confidence value to a level.
type Assessment struct {
	// Level is the escalation level.
	Level EscalationLevel

	// RequiresHuman is true for LevelReview and LevelApproval.
	RequiresHuman bool
}

// EscalationConfig holds the confidence thresholds. Confidence at or
// above High needs nothing; at or above Medium notifies; at or above
// Low requires review; below Low requires approval.
type EscalationConfig struct {
	High   float64
	Medium float64
	Low    float64

	// Callbacks, if set, maps levels to functions invoked synchronously
	// whenever that level is assessed.
	Callbacks map[EscalationLevel]func(Assessment)
}

// DefaultEscalationConfig returns thresholds 0.9 / 0.7 / 0.5.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{High: 0.9, Medium: 0.7, Low: 0.5}
}

// ConfidenceEscalation maps caller-reported confidence to escalation
// levels.
type ConfidenceEscalation struct {
	config EscalationConfig
	logger *slog.Logger
}

// NewConfidenceEscalation creates the escalator. Zero thresholds take
// the defaults.
func NewConfidenceEscalation(config EscalationConfig) *ConfidenceEscalation {
	defaults := DefaultEscalationConfig()
	if config.High == 0 {
		config.High = defaults.High
	}
	if config.Medium == 0 {
		config.Medium = defaults.Medium
	}
	if config.Low == 0 {
		config.Low = defaults.Low
	}
	return &ConfidenceEscalation{
		config: config,
		logger: slog.Default().With("component", "oversight.escalation"),
	}
}

// Assess maps a confidence value to its escalation level and fires the
// level's callback, if any.
func (e *ConfidenceEscalation) Assess(confidence float64) Assessment {
	var level EscalationLevel
	switch {
	case confidence >= e.config.High:
		level = LevelNone
	case confidence >= e.config.Medium:
		level = LevelNotify
	case confidence >= e.config.Low:
		level = LevelReview
	default:
		level = LevelApproval
	}

	assessment := Assessment{
		Level:         level,
		RequiresHuman: level == LevelReview || level == LevelApproval,
	}

	if level != LevelNone {
		e.logger.Debug("confidence escalation",
			"confidence", confidence,
			"level", level,
		)
	}
	if cb, ok := e.config.Callbacks[level]; ok && cb != nil {
		cb(assessment)
	}
	return assessment
}
