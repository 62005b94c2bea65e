package conversation

import "time"

type SLAStatus string

const (
	SLANormal   SLAStatus = "normal"
	SLAWarning  SLAStatus = "warning"
	SLAViolated SLAStatus = "violated"
)

const DefaultWarningWindow = 15 * time.Minute

// SLAEvaluator maps a deadline and the current time to an SLA status.
type SLAEvaluator struct {
	WarningWindow time.Duration
}

func (e SLAEvaluator) Evaluate(deadline, now time.Time) SLAStatus {
	window := e.WarningWindow
	if window <= 0 {
		window = DefaultWarningWindow
	}
	switch {
	case now.After(deadline):
		return SLAViolated
	case now.After(deadline.Add(-window)):
		return SLAWarning
	default:
		return SLANormal
	}
}

func (s SLAStatus) rank() int {
	switch s {
	case SLAViolated:
		return 2
	case SLAWarning:
		return 1
	default:
		return 0
	}
}
