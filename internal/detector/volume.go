package detector

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
	"gonum.org/v1/gonum/stat"
)

const (
	volumeMinRecords = 10
	volumeMinBuckets = 3
	volumeZThreshold = 2.5
	volumeZScale     = 5.0
)

// VolumeDetector flags time buckets whose record count is far above the batch mean.
type VolumeDetector struct {
	windowMinutes int
}

// NewVolumeDetector creates a volume detector bucketing by windowMinutes of
// wall-clock time. Non-positive values fall back to hourly buckets.
func NewVolumeDetector(windowMinutes int) *VolumeDetector {
	if windowMinutes <= 0 {
		windowMinutes = DefaultVolumeWindowMinutes
	}
	return &VolumeDetector{windowMinutes: windowMinutes}
}

func (d *VolumeDetector) Name() string { return NameVolume }

type volumeBucket struct {
	start time.Time
	count int
}

// Detect returns one volume_spike per bucket with a z-score above 2.5.
func (d *VolumeDetector) Detect(records []model.LogRecord) ([]model.AnomalyRecord, error) {
	if len(records) < volumeMinRecords {
		return nil, nil
	}

	index := make(map[int64]int)
	var buckets []volumeBucket
	for i := range records {
		ts, err := timestamp.Parse(records[i].Timestamp)
		if err != nil {
			return nil, err
		}
		start := bucketStart(ts, d.windowMinutes)
		key := start.UnixNano()
		pos, ok := index[key]
		if !ok {
			pos = len(buckets)
			index[key] = pos
			buckets = append(buckets, volumeBucket{start: start})
		}
		buckets[pos].count++
	}
	if len(buckets) < volumeMinBuckets {
		return nil, nil
	}

	volumes := make([]float64, len(buckets))
	for i, b := range buckets {
		volumes[i] = float64(b.count)
	}
	mean, std := stat.PopMeanStdDev(volumes, nil)

	var anomalies []model.AnomalyRecord
	for _, b := range buckets {
		z := 0.0
		if std > 0 {
			z = (float64(b.count) - mean) / std
		}
		if z <= volumeZThreshold {
			continue
		}
		anomalies = append(anomalies, model.AnomalyRecord{
			Type:            model.AnomalyVolumeSpike,
			Timestamp:       b.start,
			Severity:        model.SeverityWarning,
			Description:     fmt.Sprintf("Log volume spike detected: %d logs (normal: %.1f ± %.1f)", b.count, mean, std),
			ConfidenceScore: clamp01(z / volumeZScale),
			AffectedService: model.AffectedMultiple,
			Metadata: map[string]interface{}{
				"volume":      b.count,
				"mean_volume": mean,
				"std_volume":  std,
				"z_score":     z,
			},
		})
	}
	return anomalies, nil
}

// bucketStart truncates ts to the start of its window, counted in wall-clock
// minutes from local midnight. Windows of a day or more bucket by calendar day.
func bucketStart(ts time.Time, windowMinutes int) time.Time {
	const minutesPerDay = 24 * 60
	if windowMinutes >= minutesPerDay {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	}
	minutes := ts.Hour()*60 + ts.Minute()
	minutes -= minutes % windowMinutes
	return time.Date(ts.Year(), ts.Month(), ts.Day(), minutes/60, minutes%60, 0, 0, ts.Location())
}
