// Package analyzer runs anomaly detection over ingested batches in the
// background, persists findings and raises alerts.
package analyzer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/detector"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/notify"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "analyzer")

// Defaults for Config.
const (
	DefaultWorkers      = 2
	DefaultQueueSize    = 128
	DefaultDrainTimeout = 5 * time.Second
)

// Engine is the detection contract the analyzer drives.
type Engine interface {
	Run(records []model.LogRecord) detector.Report
	UpdateBaseline(records []model.LogRecord)
}

// Notifier delivers alerts.
type Notifier interface {
	Send(ctx context.Context, a notify.Alert) (bool, error)
}

// Config tunes the analyzer.
type Config struct {
	Workers           int
	QueueSize         int
	ErrorThreshold    int
	CriticalThreshold int
	// DrainTimeout bounds alert delivery once shutdown starts. Batches left
	// in the queue are still analyzed and persisted.
	DrainTimeout time.Duration
}

// Result describes one analyzed batch.
type Result struct {
	Report     detector.Report
	AlertsSent int
}

// Analyzer consumes batches from a bounded queue.
type Analyzer struct {
	engine   Engine
	store    model.AnomalyWriter
	notifier Notifier
	cfg      Config

	queue  chan []model.LogRecord
	mu     sync.RWMutex
	closed bool
}

// New creates an analyzer. store and notifier may be nil.
func New(engine Engine, store model.AnomalyWriter, notifier Notifier, cfg Config) *Analyzer {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = model.DefaultErrorThreshold
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = model.DefaultCriticalThreshold
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	return &Analyzer{
		engine:   engine,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		queue:    make(chan []model.LogRecord, cfg.QueueSize),
	}
}

// Submit queues a batch without blocking. It reports false when the queue is
// full or the analyzer has stopped.
func (a *Analyzer) Submit(records []model.LogRecord) bool {
	if len(records) == 0 {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- records:
		return true
	default:
		return false
	}
}

// Run processes queued batches until ctx is cancelled, then drains the queue.
// Work in flight keeps running after cancellation until DrainTimeout expires.
func (a *Analyzer) Run(ctx context.Context) error {
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	g := new(errgroup.Group)
	for i := 0; i < a.cfg.Workers; i++ {
		g.Go(func() error {
			for batch := range a.queue {
				a.Analyze(workCtx, batch)
			}
			return nil
		})
	}

	<-ctx.Done()
	a.mu.Lock()
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	deadline := time.AfterFunc(a.cfg.DrainTimeout, func() {
		log.WithField("timeout", a.cfg.DrainTimeout).Warn("drain timeout reached, abandoning pending alerts")
		stopWork()
	})
	defer deadline.Stop()

	return g.Wait()
}

// Analyze runs detection over records, persists surviving anomalies, folds
// the batch into the baseline and sends alerts.
func (a *Analyzer) Analyze(ctx context.Context, records []model.LogRecord) Result {
	var res Result
	if len(records) == 0 {
		return res
	}

	res.Report = a.engine.Run(records)
	anomalies := res.Report.Anomalies
	if len(anomalies) > 0 && a.store != nil {
		if err := a.store.InsertAnomalies(anomalies); err != nil {
			log.WithError(err).WithField("anomalies", len(anomalies)).Error("failed to persist anomalies")
		}
	}
	a.engine.UpdateBaseline(records)

	if len(anomalies) > 0 {
		log.WithFields(logrus.Fields{
			"records":   len(records),
			"anomalies": len(anomalies),
		}).Info("anomalies detected")
	}

	if a.notifier == nil {
		return res
	}
	for _, alert := range a.alerts(records, anomalies) {
		sent, err := a.notifier.Send(ctx, alert)
		if err != nil {
			log.WithError(err).WithField("kind", alert.Kind).Warn("alert delivery failed")
			continue
		}
		if sent {
			res.AlertsSent++
		}
	}
	return res
}

// alerts lists the severity threshold alerts for the batch followed by one
// alert per anomaly.
func (a *Analyzer) alerts(records []model.LogRecord, anomalies []model.AnomalyRecord) []notify.Alert {
	var errorCount, criticalCount int
	errorServices := map[string]struct{}{}
	criticalServices := map[string]struct{}{}
	for i := range records {
		switch records[i].Severity {
		case model.SeverityError:
			errorCount++
			errorServices[records[i].Service] = struct{}{}
		case model.SeverityCritical:
			criticalCount++
			criticalServices[records[i].Service] = struct{}{}
		}
	}

	var out []notify.Alert
	if errorCount >= a.cfg.ErrorThreshold {
		out = append(out, notify.ThresholdAlert(notify.KindErrorSpike, errorCount, a.cfg.ErrorThreshold, sortedKeys(errorServices)))
	}
	if criticalCount >= a.cfg.CriticalThreshold {
		out = append(out, notify.ThresholdAlert(notify.KindCriticalSpike, criticalCount, a.cfg.CriticalThreshold, sortedKeys(criticalServices)))
	}
	for _, an := range anomalies {
		out = append(out, notify.AnomalyAlert(an))
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
