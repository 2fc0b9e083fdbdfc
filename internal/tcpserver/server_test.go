package tcpserver

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/model"
)

type recordingSink struct {
	mu      sync.Mutex
	records []model.LogRecord
	calls   int
}

func (r *recordingSink) Ingest(source string, records []model.LogRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if source != SourceTCP {
		return 0, fmt.Errorf("unexpected source %q", source)
	}
	r.calls++
	r.records = append(r.records, records...)
	return len(records), nil
}

func (r *recordingSink) snapshot() ([]model.LogRecord, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.LogRecord(nil), r.records...), r.calls
}

func TestNewServer_DefaultLocalhostAddress(t *testing.T) {
	t.Parallel()

	s := NewServer("", &recordingSink{})
	assert.Equal(t, DefaultAddr, s.Addr())
	assert.Equal(t, DefaultBatchSize, s.batchSize)
}

func TestNewServer_UsesConfiguredValues(t *testing.T) {
	t.Parallel()

	s := NewServer("0.0.0.0:5000", &recordingSink{}, ServerConfig{
		MaxLineSize:   2048,
		BatchSize:     7,
		FlushInterval: time.Minute,
	})
	assert.Equal(t, "0.0.0.0:5000", s.Addr())
	assert.Equal(t, 2048, s.maxLineSize)
	assert.Equal(t, 7, s.batchSize)
	assert.Equal(t, time.Minute, s.flushInterval)
}

func startServer(t *testing.T, sink Sink, conf ServerConfig) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", sink, conf)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestServerForwardsRecordsInBatches(t *testing.T) {
	sink := &recordingSink{}
	s := startServer(t, sink, ServerConfig{BatchSize: 2, FlushInterval: time.Hour})

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(conn, `{"timestamp":"2024-01-01T00:00:0%dZ","service":"api","severity":"ERROR","message":"m%d"}`+"\n", i, i)
		require.NoError(t, err)
	}
	_, err = conn.Write([]byte("garbage\n\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		records, _ := sink.snapshot()
		return len(records) == 5
	}, 5*time.Second, 10*time.Millisecond)

	records, calls := sink.snapshot()
	assert.Equal(t, 3, calls, "two full batches plus the remainder on close")
	assert.Equal(t, "m0", records[0].Message)
	assert.Equal(t, "m4", records[4].Message)
}

func TestServerFlushesOnInterval(t *testing.T) {
	sink := &recordingSink{}
	s := startServer(t, sink, ServerConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond})

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"service":"api","message":"still open"}` + "\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		records, _ := sink.snapshot()
		return len(records) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopClosesOpenConnections(t *testing.T) {
	sink := &recordingSink{}
	s := NewServer("127.0.0.1:0", sink, ServerConfig{BatchSize: 100, FlushInterval: time.Hour})
	require.NoError(t, s.Start())

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"service":"api","message":"pending"}` + "\n"))
	require.NoError(t, err)

	// Give the handler a moment to read the line before shutdown.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.conns) == 1
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	records, _ := sink.snapshot()
	assert.Len(t, records, 1, "partial batch flushed on shutdown")
}
