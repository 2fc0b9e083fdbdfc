package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logops/internal/detector"
	"github.com/tinytelemetry/logops/internal/ingest"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/otlp"
	"github.com/tinytelemetry/logops/internal/timestamp"
	"google.golang.org/protobuf/encoding/protojson"
)

// SourceHTTP labels records received on the JSON ingest endpoints.
const SourceHTTP = "http"

const (
	defaultStatsHours   = 24
	defaultAnomalyLimit = 50
	defaultAnomalyHours = 24
	maxListLimit        = 1000
	maxOTLPBodyBytes    = 16 << 20
)

type batchRequest struct {
	Logs []model.LogRecord `json:"logs"`
}

type detectorOutcome struct {
	Name       string  `json:"name"`
	Anomalies  int     `json:"anomalies"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	logCount, err := s.store.TotalLogCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"timestamp":     timestamp.Format(s.now()),
		"uptime":        s.now().Sub(s.startTime).String(),
		"log_count":     logCount,
		"baseline_size": s.engine.BaselineSize(),
		"model_fitted":  s.engine.ModelState() == detector.ModelFitted,
	})
}

func (s *Server) handleIngestBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	s.ingest(c, req.Logs)
}

func (s *Server) handleIngestOne(c *gin.Context) {
	var rec model.LogRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	s.ingest(c, []model.LogRecord{rec})
}

// ingest rejects the whole request when any record is invalid.
func (s *Server) ingest(c *gin.Context, records []model.LogRecord) {
	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": ingest.ErrNoRecords.Error()})
		return
	}
	if err := ingest.NormalizeAll(records, s.now); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := s.ingester.Ingest(SourceHTTP, records)
	if err != nil && accepted == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"accepted": accepted,
	})
}

func (s *Server) handleListLogs(c *gin.Context) {
	filter := model.LogFilter{
		Service:  c.Query("service"),
		Severity: c.Query("severity"),
	}
	var err error
	if filter.Limit, err = intQuery(c, "limit", 100); err != nil || filter.Limit <= 0 || filter.Limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}
	if filter.Offset, err = intQuery(c, "offset", 0); err != nil || filter.Offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}
	if filter.Start, err = timeQuery(c, "start_time"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.End, err = timeQuery(c, "end_time"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logs, err := s.store.RecentLogs(filter)
	if err != nil {
		log.WithError(err).Error("list logs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query logs"})
		return
	}
	if logs == nil {
		logs = []model.LogRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"count":  len(logs),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	hours, err := intQuery(c, "hours", defaultStatsHours)
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
		return
	}
	end := s.now().UTC()
	stats, err := s.store.LogStats(end.Add(-time.Duration(hours)*time.Hour), end)
	if err != nil {
		log.WithError(err).Error("log stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute log stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAnomalies(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultAnomalyLimit)
	if err != nil || limit <= 0 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}
	hours, err := intQuery(c, "hours", defaultAnomalyHours)
	if err != nil || hours < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a non-negative integer"})
		return
	}

	var since time.Time
	if hours > 0 {
		since = s.now().Add(-time.Duration(hours) * time.Hour)
	}
	anomalies, err := s.store.RecentAnomalies(limit, since)
	if err != nil {
		log.WithError(err).Error("list anomalies failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query anomalies"})
		return
	}
	if anomalies == nil {
		anomalies = []model.AnomalyRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

func (s *Server) handleBaseline(c *gin.Context) {
	cfg := s.engine.Config()
	c.JSON(http.StatusOK, gin.H{
		"severity_distribution":  s.engine.SeverityDistribution(),
		"history_size":           s.engine.BaselineSize(),
		"model_state":            s.engine.ModelState().String(),
		"anomaly_threshold":      cfg.ConfidenceThreshold,
		"expected_error_rate":    cfg.ExpectedErrorRate(),
		"expected_critical_rate": cfg.ExpectedCriticalRate(),
	})
}

func (s *Server) handleDetect(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := ingest.NormalizeAll(req.Logs, s.now); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report := s.engine.Run(req.Logs)
	outcomes := make([]detectorOutcome, 0, len(report.Results))
	for _, res := range report.Results {
		o := detectorOutcome{
			Name:       res.Detector,
			Anomalies:  len(res.Anomalies),
			DurationMs: float64(res.Duration) / float64(time.Millisecond),
		}
		if res.Err != nil {
			o.Error = res.Err.Error()
		}
		outcomes = append(outcomes, o)
	}
	anomalies := report.Anomalies
	if anomalies == nil {
		anomalies = []model.AnomalyRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"anomalies": anomalies,
		"count":     len(anomalies),
		"analyzed":  len(req.Logs),
		"detectors": outcomes,
	})
}

func (s *Server) handleOTLP(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxOTLPBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	req, err := otlp.DecodeJSON(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := otlp.Deliver(s.ingester, otlp.SourceHTTP, otlp.Convert(req, s.now))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := protojson.Marshal(resp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode response"})
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func timeQuery(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := timestamp.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}
