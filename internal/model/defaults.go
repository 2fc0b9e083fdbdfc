package model

import "time"

// Shared defaults used by the server and CLI commands.
const (
	DefaultAnomalyThreshold  = 0.8
	DefaultContamination     = 0.1
	DefaultErrorThreshold    = 10
	DefaultCriticalThreshold = 5
	DefaultAlertCooldown     = 5 * time.Minute
)

// DefaultSeverityWeights is the expected share of each severity in normal traffic.
// The ERROR and CRITICAL entries double as the expected rates for rate detection.
func DefaultSeverityWeights() map[string]float64 {
	return map[string]float64{
		SeverityInfo:     0.80,
		SeverityWarning:  0.05,
		SeverityError:    0.12,
		SeverityCritical: 0.03,
	}
}
