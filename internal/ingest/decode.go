package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/otlp"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLineBytes = 4 * 1024 * 1024

// Field aliases accepted in JSON-lines input, in priority order.
var (
	timestampKeys = []string{"timestamp", "time", "ts", "@timestamp"}
	serviceKeys   = []string{"service", "service.name", "app", "logger"}
	severityKeys  = []string{"severity", "level", "lvl", "severity_text"}
	messageKeys   = []string{"message", "msg", "body"}
	sourceIPKeys  = []string{"source_ip", "client_ip", "ip"}
	userIDKeys    = []string{"user_id", "user", "uid"}
	requestIDKeys = []string{"request_id", "requestId", "reqId"}
)

// LineError describes an input line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// DecodeLines reads JSON-lines input. Each line is either a flat log object
// or an OTLP JSON export. Blank lines are skipped; undecodable lines are
// reported and skipped.
func DecodeLines(r io.Reader, now func() time.Time) ([]model.LogRecord, []LineError, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		records []model.LogRecord
		bad     []LineError
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		decoded, err := DecodeLine([]byte(line), now)
		if err != nil {
			bad = append(bad, LineError{Line: lineNo, Err: err})
			continue
		}
		records = append(records, decoded...)
	}
	return records, bad, scanner.Err()
}

// DecodeLine decodes one JSON object into one or more records.
func DecodeLine(line []byte, now func() time.Time) ([]model.LogRecord, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw["resourceLogs"]; ok {
		req, err := otlp.DecodeJSON(line)
		if err != nil {
			return nil, err
		}
		return otlp.Convert(req, now), nil
	}
	return []model.LogRecord{fromMap(raw)}, nil
}

func fromMap(raw map[string]interface{}) model.LogRecord {
	r := model.LogRecord{
		Timestamp: extractTimestamp(raw),
		Service:   extractString(raw, serviceKeys...),
		Severity:  extractSeverity(raw),
		Message:   extractString(raw, messageKeys...),
		SourceIP:  extractString(raw, sourceIPKeys...),
		UserID:    extractString(raw, userIDKeys...),
		RequestID: extractString(raw, requestIDKeys...),
	}
	if meta, ok := raw["metadata"].(map[string]interface{}); ok {
		delete(raw, "metadata")
		for k, v := range meta {
			raw[k] = v
		}
	}
	if len(raw) > 0 {
		r.Metadata = raw
	}
	return r
}

// extractString removes every alias from raw and returns the first non-empty value.
func extractString(raw map[string]interface{}, keys ...string) string {
	var found string
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		delete(raw, k)
		if found != "" || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			found = x
		default:
			found = fmt.Sprint(x)
		}
	}
	return found
}

func extractTimestamp(raw map[string]interface{}) string {
	for _, k := range timestampKeys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		delete(raw, k)
		switch x := v.(type) {
		case string:
			return x
		case float64:
			return timestamp.Format(epochTime(x))
		}
	}
	return ""
}

// epochTime accepts seconds or milliseconds since the epoch.
func epochTime(v float64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec := int64(v)
	return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC()
}

// extractSeverity also understands pino-style numeric levels.
func extractSeverity(raw map[string]interface{}) string {
	for _, k := range severityKeys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		delete(raw, k)
		switch x := v.(type) {
		case string:
			return x
		case float64:
			switch {
			case x >= 60:
				return model.SeverityCritical
			case x >= 50:
				return model.SeverityError
			case x >= 40:
				return model.SeverityWarning
			default:
				return model.SeverityInfo
			}
		}
	}
	return ""
}
