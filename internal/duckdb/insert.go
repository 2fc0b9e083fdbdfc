package duckdb

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/logops/internal/model"
)

// Defaults for InsertBufferConfig.
const (
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 250 * time.Millisecond
	DefaultFlushQueueSize = 64
)

// InsertBuffer batches log records and flushes them to a LogWriter from a
// background goroutine. Add never blocks on database writes unless the flush
// queue is full, in which case the batch is written inline.
type InsertBuffer struct {
	writer        model.LogWriter
	mu            sync.Mutex
	pending       []*model.LogRecord
	flushChan     chan []*model.LogRecord
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once

	// sendMu guards closed and sends on flushChan.
	sendMu sync.RWMutex
	closed bool

	flushed           atomic.Int64
	dropped           atomic.Int64
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix seconds
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer starts a buffer writing to writer.
func NewInsertBuffer(writer model.LogWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]*model.LogRecord, 0, batchSize),
		flushChan:     make(chan []*model.LogRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure warns at most once every ten seconds.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.WithField("inline_flushes", count).Warn("flush queue full, writing inline")
	}
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]*model.LogRecord, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch)
}

func (b *InsertBuffer) enqueue(batch []*model.LogRecord) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flushBatch(batch)
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.flushBatch(batch)
	}
}

// Add queues a record for batch insertion. Records added after Stop are dropped.
func (b *InsertBuffer) Add(record *model.LogRecord) {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, record)
	var batch []*model.LogRecord
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]*model.LogRecord, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
}

// AddBatch queues every record in records.
func (b *InsertBuffer) AddBatch(records []model.LogRecord) {
	for i := range records {
		r := records[i]
		b.Add(&r)
	}
}

// Flushed is the number of records handed to the writer successfully.
func (b *InsertBuffer) Flushed() int64 { return b.flushed.Load() }

// Dropped is the number of records that could not be written.
func (b *InsertBuffer) Dropped() int64 { return b.dropped.Load() }

// Stop flushes remaining records and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// tickLoop's final drain must land before the queue is closed.
		b.tickWg.Wait()

		b.sendMu.Lock()
		b.closed = true
		close(b.flushChan)
		b.sendMu.Unlock()
		b.wg.Wait()

		// records added between the final drain and close
		b.mu.Lock()
		rest := b.pending
		b.pending = nil
		b.mu.Unlock()
		b.flushBatch(rest)
	})
}

func (b *InsertBuffer) flushBatch(batch []*model.LogRecord) {
	if len(batch) == 0 {
		return
	}
	if err := b.writer.InsertLogBatch(batch); err != nil {
		b.dropped.Add(int64(len(batch)))
		log.WithError(err).WithField("records", len(batch)).Error("flush failed")
		return
	}
	b.flushed.Add(int64(len(batch)))
}
