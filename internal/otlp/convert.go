// Package otlp receives OpenTelemetry log exports and converts them to
// engine log records.
package otlp

import (
	"encoding/base64"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tinytelemetry/logops/internal/logparse"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// UnknownService is used when neither resource nor record names a service.
const UnknownService = "unknown"

const serviceNameKey = "service.name"

var (
	sourceIPKeys  = []string{"client.address", "source.ip", "net.peer.ip"}
	userIDKeys    = []string{"enduser.id", "user.id"}
	requestIDKeys = []string{"request.id"}
)

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// DecodeJSON parses an OTLP/HTTP JSON export request body.
func DecodeJSON(body []byte) (*collogspb.ExportLogsServiceRequest, error) {
	req := &collogspb.ExportLogsServiceRequest{}
	if err := unmarshalOptions.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("decode otlp json: %w", err)
	}
	return req, nil
}

// Convert flattens an export request into log records. now stamps records
// that carry neither an event nor an observed time.
func Convert(req *collogspb.ExportLogsServiceRequest, now func() time.Time) []model.LogRecord {
	if now == nil {
		now = time.Now
	}
	var records []model.LogRecord
	for _, rl := range req.GetResourceLogs() {
		resource := attributeMap(rl.GetResource().GetAttributes())
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				records = append(records, convertRecord(lr, resource, now))
			}
		}
	}
	return records
}

func convertRecord(lr *logspb.LogRecord, resource map[string]interface{}, now func() time.Time) model.LogRecord {
	attrs := attributeMap(lr.GetAttributes())

	r := model.LogRecord{
		Timestamp: timestamp.Format(recordTime(lr, now)),
		Severity:  recordSeverity(lr),
		Message:   bodyString(lr.GetBody()),
		Service:   UnknownService,
	}
	if s, ok := resource[serviceNameKey].(string); ok && s != "" {
		r.Service = s
	} else if s, ok := attrs[serviceNameKey].(string); ok && s != "" {
		r.Service = s
	}
	delete(attrs, serviceNameKey)

	r.SourceIP = take(attrs, sourceIPKeys)
	r.UserID = take(attrs, userIDKeys)
	r.RequestID = take(attrs, requestIDKeys)
	if len(attrs) > 0 {
		r.Metadata = attrs
	}
	return r
}

func recordTime(lr *logspb.LogRecord, now func() time.Time) time.Time {
	if ns := lr.GetTimeUnixNano(); ns > 0 {
		return time.Unix(0, int64(ns)).UTC()
	}
	if ns := lr.GetObservedTimeUnixNano(); ns > 0 {
		return time.Unix(0, int64(ns)).UTC()
	}
	return now().UTC()
}

func recordSeverity(lr *logspb.LogRecord) string {
	if text := lr.GetSeverityText(); text != "" {
		return logparse.NormalizeSeverity(text)
	}
	if s := logparse.SeverityFromOTELNumber(int32(lr.GetSeverityNumber())); s != "" {
		return s
	}
	return model.SeverityInfo
}

// take removes the first non-empty string attribute among keys and returns it.
func take(attrs map[string]interface{}, keys []string) string {
	var found string
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok {
			continue
		}
		if found == "" {
			found = fmt.Sprint(v)
		}
		delete(attrs, k)
	}
	return found
}

func attributeMap(kvs []*commonpb.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs))
	for _, kv := range kvs {
		if kv.GetKey() == "" {
			continue
		}
		m[kv.GetKey()] = anyValue(kv.GetValue())
	}
	return m
}

func anyValue(v *commonpb.AnyValue) interface{} {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_BoolValue:
		return x.BoolValue
	case *commonpb.AnyValue_IntValue:
		return x.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return x.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return base64.StdEncoding.EncodeToString(x.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		values := x.ArrayValue.GetValues()
		out := make([]interface{}, 0, len(values))
		for _, item := range values {
			out = append(out, anyValue(item))
		}
		return out
	case *commonpb.AnyValue_KvlistValue:
		return attributeMap(x.KvlistValue.GetValues())
	default:
		return nil
	}
}

func bodyString(v *commonpb.AnyValue) string {
	switch x := anyValue(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]interface{}, []interface{}:
		s, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return s
	default:
		return fmt.Sprint(x)
	}
}
