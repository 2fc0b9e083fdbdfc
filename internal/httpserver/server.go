// Package httpserver exposes ingestion, query and detection over HTTP.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/detector"
	"github.com/tinytelemetry/logops/internal/model"
)

var log = logrus.WithField("component", "httpserver")

// DefaultAddr is used when no listen address is configured.
const DefaultAddr = "0.0.0.0:8000"

// Store is the storage contract required by the HTTP API.
type Store interface {
	model.ReadAPI
	Ping(ctx context.Context) error
}

// Engine is the detection contract required by the HTTP API.
type Engine interface {
	Run(records []model.LogRecord) detector.Report
	SeverityDistribution() map[string]float64
	BaselineSize() int
	ModelState() detector.ModelState
	Config() detector.Config
}

// Ingester accepts normalized records and returns how many were accepted.
type Ingester interface {
	Ingest(source string, records []model.LogRecord) (int, error)
}

// Options carries the optional parts of a Server.
type Options struct {
	// Gatherer backs GET /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Server provides the LogOps HTTP API.
type Server struct {
	addr      string
	store     Store
	engine    Engine
	ingester  Ingester
	gatherer  prometheus.Gatherer
	now       func() time.Time
	health    healthcheck.Handler
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store Store, engine Engine, ingester Ingester, opts ...Options) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		store:     store,
		engine:    engine,
		ingester:  ingester,
		gatherer:  o.Gatherer,
		now:       o.Now,
		health:    healthcheck.NewHandler(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: o.Now(),
	}
	s.health.AddReadinessCheck("duckdb", healthcheck.Timeout(func() error {
		return s.store.Ping(s.ctx)
	}, 2*time.Second))
	return s
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/live", gin.WrapH(s.health))
	r.GET("/ready", gin.WrapH(s.health))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.POST("/logs", s.handleIngestBatch)
	api.POST("/log", s.handleIngestOne)
	api.GET("/logs", s.handleListLogs)
	api.GET("/logs/stats", s.handleStats)
	api.GET("/anomalies", s.handleAnomalies)
	api.GET("/baseline", s.handleBaseline)
	api.POST("/detect", s.handleDetect)

	r.POST("/v1/logs", s.handleOTLP)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = s.now()

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped")
		}
	}()
	log.WithField("addr", listener.Addr().String()).Info("http api listening")
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
