package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/model"
)

func TestDecodeLines(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"2024-01-15T10:30:45Z","service":"api","severity":"ERROR","message":"connection refused","source_ip":"10.0.0.1","user_id":"u1","region":"eu"}`,
		``,
		`{"level":"warn","msg":"slow query","time":"2024-01-15T10:31:00Z","app":"db","metadata":{"table":"orders"}}`,
		`not json`,
		`{"level":50,"time":1705312245000,"msg":"pino error","hostname":"web1"}`,
		`{"resourceLogs":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"otel-svc"}}]},"scopeLogs":[{"logRecords":[{"timeUnixNano":"1705312245000000000","severityText":"INFO","body":{"stringValue":"from otel"}}]}]}]}`,
	}, "\n")

	records, bad, err := DecodeLines(strings.NewReader(input), clock)
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, 4, bad[0].Line)
	assert.Contains(t, bad[0].Error(), "line 4")
	require.Len(t, records, 4)

	first := records[0]
	assert.Equal(t, "2024-01-15T10:30:45Z", first.Timestamp)
	assert.Equal(t, "api", first.Service)
	assert.Equal(t, "ERROR", first.Severity)
	assert.Equal(t, "connection refused", first.Message)
	assert.Equal(t, "10.0.0.1", first.SourceIP)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, map[string]interface{}{"region": "eu"}, first.Metadata)

	second := records[1]
	assert.Equal(t, "db", second.Service)
	assert.Equal(t, "warn", second.Severity, "normalization happens at ingestion")
	assert.Equal(t, "slow query", second.Message)
	assert.Equal(t, map[string]interface{}{"table": "orders"}, second.Metadata)

	third := records[2]
	assert.Equal(t, model.SeverityError, third.Severity)
	assert.Equal(t, "2024-01-15T09:50:45Z", third.Timestamp)
	assert.Equal(t, "web1", third.Metadata["hostname"])

	fourth := records[3]
	assert.Equal(t, "otel-svc", fourth.Service)
	assert.Equal(t, "from otel", fourth.Message)
}

func TestDecodeLineEpochSeconds(t *testing.T) {
	records, err := DecodeLine([]byte(`{"ts": 1705312245.5, "message": "x"}`), clock)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-01-15T09:50:45.5Z", records[0].Timestamp)
	assert.Nil(t, records[0].Metadata)
}
