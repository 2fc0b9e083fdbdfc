package detector

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/logops/internal/model"
)

const (
	rateMinRecords           = 20
	errorRateMultiplier      = 2.0
	criticalRateMultiplier   = 3.0
	serviceMinRecords        = 5
	serviceErrorThreshold    = 0.30
	serviceCriticalThreshold = 0.10
)

// GlobalRateDetector compares batch-wide ERROR and CRITICAL shares with their
// expected rates.
type GlobalRateDetector struct {
	expectedError    float64
	expectedCritical float64
	now              func() time.Time
}

// NewGlobalRateDetector creates a detector using the expected rates from cfg.
func NewGlobalRateDetector(cfg Config, now func() time.Time) *GlobalRateDetector {
	if now == nil {
		now = time.Now
	}
	return &GlobalRateDetector{
		expectedError:    cfg.ExpectedErrorRate(),
		expectedCritical: cfg.ExpectedCriticalRate(),
		now:              now,
	}
}

func (d *GlobalRateDetector) Name() string { return NameGlobalRate }

// Detect flags high_error_rate above twice the expected ERROR share and
// high_critical_rate above three times the expected CRITICAL share.
func (d *GlobalRateDetector) Detect(records []model.LogRecord) ([]model.AnomalyRecord, error) {
	if len(records) < rateMinRecords {
		return nil, nil
	}

	counts := countSeverities(records)
	total := len(records)
	errorRate := float64(counts[model.SeverityError]) / float64(total)
	criticalRate := float64(counts[model.SeverityCritical]) / float64(total)
	detectedAt := d.now().UTC()

	var anomalies []model.AnomalyRecord
	if d.expectedError > 0 && errorRate > d.expectedError*errorRateMultiplier {
		anomalies = append(anomalies, model.AnomalyRecord{
			Type:            model.AnomalyHighErrorRate,
			Timestamp:       detectedAt,
			Severity:        model.SeverityWarning,
			Description:     fmt.Sprintf("High error rate detected: %.2f%% (expected: %.2f%%)", errorRate*100, d.expectedError*100),
			ConfidenceScore: clamp01(errorRate / d.expectedError),
			AffectedService: model.AffectedMultiple,
			Metadata: map[string]interface{}{
				"error_rate":          errorRate,
				"expected_error_rate": d.expectedError,
				"error_count":         counts[model.SeverityError],
				"total_logs":          total,
			},
		})
	}
	if d.expectedCritical > 0 && criticalRate > d.expectedCritical*criticalRateMultiplier {
		anomalies = append(anomalies, model.AnomalyRecord{
			Type:            model.AnomalyHighCriticalRate,
			Timestamp:       detectedAt,
			Severity:        model.SeverityCritical,
			Description:     fmt.Sprintf("High critical rate detected: %.2f%% (expected: %.2f%%)", criticalRate*100, d.expectedCritical*100),
			ConfidenceScore: clamp01(criticalRate / d.expectedCritical),
			AffectedService: model.AffectedMultiple,
			Metadata: map[string]interface{}{
				"critical_rate":          criticalRate,
				"expected_critical_rate": d.expectedCritical,
				"critical_count":         counts[model.SeverityCritical],
				"total_logs":             total,
			},
		})
	}
	return anomalies, nil
}

// ServiceRateDetector flags services whose own ERROR or CRITICAL share is high.
type ServiceRateDetector struct {
	now func() time.Time
}

// NewServiceRateDetector creates a per-service rate detector.
func NewServiceRateDetector(now func() time.Time) *ServiceRateDetector {
	if now == nil {
		now = time.Now
	}
	return &ServiceRateDetector{now: now}
}

func (d *ServiceRateDetector) Name() string { return NameServiceRate }

type serviceCounts struct {
	name     string
	total    int
	errors   int
	critical int
}

// Detect reports services in order of first appearance. Services with fewer
// than five records are skipped.
func (d *ServiceRateDetector) Detect(records []model.LogRecord) ([]model.AnomalyRecord, error) {
	if len(records) < rateMinRecords {
		return nil, nil
	}

	index := make(map[string]int)
	var services []serviceCounts
	for i := range records {
		r := &records[i]
		pos, ok := index[r.Service]
		if !ok {
			pos = len(services)
			index[r.Service] = pos
			services = append(services, serviceCounts{name: r.Service})
		}
		sc := &services[pos]
		sc.total++
		switch r.Severity {
		case model.SeverityError:
			sc.errors++
		case model.SeverityCritical:
			sc.critical++
		}
	}

	detectedAt := d.now().UTC()
	var anomalies []model.AnomalyRecord
	for _, sc := range services {
		if sc.total < serviceMinRecords {
			continue
		}
		errorRate := float64(sc.errors) / float64(sc.total)
		criticalRate := float64(sc.critical) / float64(sc.total)

		if errorRate > serviceErrorThreshold {
			anomalies = append(anomalies, model.AnomalyRecord{
				Type:            model.AnomalyServiceErrorSpike,
				Timestamp:       detectedAt,
				Severity:        model.SeverityWarning,
				Description:     fmt.Sprintf("High error rate in %s service: %.2f%%", sc.name, errorRate*100),
				ConfidenceScore: clamp01(errorRate),
				AffectedService: sc.name,
				Metadata: map[string]interface{}{
					"service":     sc.name,
					"error_rate":  errorRate,
					"error_count": sc.errors,
					"total_logs":  sc.total,
				},
			})
		}
		if criticalRate > serviceCriticalThreshold {
			anomalies = append(anomalies, model.AnomalyRecord{
				Type:            model.AnomalyServiceCriticalSpike,
				Timestamp:       detectedAt,
				Severity:        model.SeverityCritical,
				Description:     fmt.Sprintf("High critical rate in %s service: %.2f%%", sc.name, criticalRate*100),
				ConfidenceScore: clamp01(criticalRate),
				AffectedService: sc.name,
				Metadata: map[string]interface{}{
					"service":        sc.name,
					"critical_rate":  criticalRate,
					"critical_count": sc.critical,
					"total_logs":     sc.total,
				},
			})
		}
	}
	return anomalies, nil
}

// countSeverities counts records by their literal severity string.
func countSeverities(records []model.LogRecord) map[string]int {
	counts := make(map[string]int)
	for i := range records {
		counts[records[i].Severity]++
	}
	return counts
}
