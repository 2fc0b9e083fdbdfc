package detector

import (
	"fmt"

	"github.com/tinytelemetry/logops/internal/iforest"
	"github.com/tinytelemetry/logops/internal/model"
)

const (
	defaultExpectedErrorRate    = 0.12
	defaultExpectedCriticalRate = 0.03

	// DefaultVolumeWindowMinutes is the bucket width used for volume analysis.
	DefaultVolumeWindowMinutes = 60
	// DefaultBaselineCapacity bounds the rolling baseline history.
	DefaultBaselineCapacity = 1000
	// DefaultBaselineMinHistory is the history size required before the
	// severity distribution is (re)computed.
	DefaultBaselineMinHistory = 100
)

// Config holds engine settings that stay constant for a process lifetime.
type Config struct {
	// ConfidenceThreshold is the global cutoff applied after all detectors ran.
	ConfidenceThreshold float64
	// SeverityWeights is the expected share of each severity; ERROR and
	// CRITICAL entries are the expected rates for global rate detection.
	SeverityWeights     map[string]float64
	VolumeWindowMinutes int
	Forest              iforest.Params
	BaselineCapacity    int
	BaselineMinHistory  int
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: model.DefaultAnomalyThreshold,
		SeverityWeights:     model.DefaultSeverityWeights(),
		VolumeWindowMinutes: DefaultVolumeWindowMinutes,
		Forest:              iforest.DefaultParams(),
		BaselineCapacity:    DefaultBaselineCapacity,
		BaselineMinHistory:  DefaultBaselineMinHistory,
	}
}

// Validate reports settings the engine cannot run with.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.ConfidenceThreshold)
	}
	if c.Forest.Contamination <= 0 || c.Forest.Contamination > 0.5 {
		return fmt.Errorf("contamination %v outside (0,0.5]", c.Forest.Contamination)
	}
	for severity, w := range c.SeverityWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("severity weight %s=%v outside [0,1]", severity, w)
		}
	}
	return nil
}

// ExpectedErrorRate is the ERROR share considered normal.
func (c Config) ExpectedErrorRate() float64 {
	return c.expected(model.SeverityError, defaultExpectedErrorRate)
}

// ExpectedCriticalRate is the CRITICAL share considered normal.
func (c Config) ExpectedCriticalRate() float64 {
	return c.expected(model.SeverityCritical, defaultExpectedCriticalRate)
}

func (c Config) expected(severity string, fallback float64) float64 {
	if w, ok := c.SeverityWeights[severity]; ok {
		return w
	}
	return fallback
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SeverityWeights == nil {
		c.SeverityWeights = d.SeverityWeights
	}
	if c.VolumeWindowMinutes <= 0 {
		c.VolumeWindowMinutes = d.VolumeWindowMinutes
	}
	if c.Forest.Trees <= 0 {
		c.Forest.Trees = d.Forest.Trees
	}
	if c.Forest.MaxSamples <= 0 {
		c.Forest.MaxSamples = d.Forest.MaxSamples
	}
	if c.Forest.Contamination <= 0 {
		c.Forest.Contamination = d.Forest.Contamination
	}
	if c.BaselineCapacity <= 0 {
		c.BaselineCapacity = d.BaselineCapacity
	}
	if c.BaselineMinHistory <= 0 {
		c.BaselineMinHistory = d.BaselineMinHistory
	}
	return c
}
