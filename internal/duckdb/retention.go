package duckdb

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRetentionDays applies when RetentionConfig is omitted.
const DefaultRetentionDays = 30

// Pruner deletes rows older than a cutoff.
type Pruner interface {
	DeleteBefore(cutoff time.Time) (int64, error)
}

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// RetentionCleaner periodically deletes logs and anomalies older than the
// retention period.
type RetentionCleaner struct {
	store         Pruner
	retentionDays int
	interval      time.Duration
	now           func() time.Time
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner runs one cleanup immediately and then every interval
// (hourly by default). Returns nil when retention is disabled.
func NewRetentionCleaner(store Pruner, conf ...RetentionConfig) *RetentionCleaner {
	days := DefaultRetentionDays
	interval := time.Hour
	if len(conf) > 0 {
		days = conf[0].RetentionDays
		if conf[0].Interval > 0 {
			interval = conf[0].Interval
		}
	}
	if days <= 0 {
		return nil
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: days,
		interval:      interval,
		now:           time.Now,
		done:          make(chan struct{}),
	}

	// catch up after downtime
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()
	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	rows, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		log.WithError(err).Error("retention cleanup failed")
		return
	}
	if rows > 0 {
		log.WithFields(logrus.Fields{
			"deleted":        rows,
			"retention_days": rc.retentionDays,
		}).Info("retention cleanup removed expired logs")
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
