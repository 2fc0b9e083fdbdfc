package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/analyzer"
	"github.com/tinytelemetry/logops/internal/detector"
	"github.com/tinytelemetry/logops/internal/duckdb"
	"github.com/tinytelemetry/logops/internal/httpserver"
	"github.com/tinytelemetry/logops/internal/ingest"
	"github.com/tinytelemetry/logops/internal/metrics"
	"github.com/tinytelemetry/logops/internal/notify"
	"github.com/tinytelemetry/logops/internal/otlp"
	"github.com/tinytelemetry/logops/internal/tcpserver"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "main")

// runServer starts ingestion, storage and background analysis.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg.LogLevel)
	defer cleanupLogger()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != "" && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Initialize DuckDB store
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	// Create insert buffer for batched DuckDB writes
	insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
	})
	defer insertBuffer.Stop()

	// Start retention cleaner for automatic log expiry
	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.LogRetention,
	})
	defer retentionCleaner.Stop()

	engine, err := detector.NewEngine(cfg.detectorConfig())
	if err != nil {
		return err
	}

	alerter := notify.NewTelegram(cfg.notifyConfig())
	if !alerter.Enabled() {
		log.Info("telegram alerting not configured, alerts will be skipped")
	}

	worker := analyzer.New(engine, store, alerter, cfg.analyzerConfig())
	pipeline := ingest.NewPipeline(insertBuffer, worker)

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, store, engine, pipeline)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	if cfg.OTLPEnabled {
		receiver := otlp.NewReceiver(cfg.OTLPAddr, pipeline)
		if err := receiver.Start(); err != nil {
			return fmt.Errorf("failed to start OTLP receiver: %w", err)
		}
		defer receiver.Stop()
	}

	if cfg.TCPEnabled {
		tcpServer := tcpserver.NewServer(cfg.TCPAddr, pipeline)
		if err := tcpServer.Start(); err != nil {
			return fmt.Errorf("failed to start TCP ingest: %w", err)
		}
		defer tcpServer.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, alerter.Enabled())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server: errgroup exited with error")
	}

	signal.Stop(sigCh)
	return nil
}

func configureRuntimeLogger(level string) func() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, PadLevelText: true, DisableQuote: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		logrus.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "logops")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logrus.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "logops.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		return func() {}
	}

	logrus.SetOutput(f)
	return func() {
		logrus.SetOutput(os.Stderr)
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, alerting bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔═╗╔═╗╔═╗
    ║  ║ ║║ ╦║ ║╠═╝╚═╗
    ╩═╝╚═╝╚═╝╚═╝╩  ╚═╝`)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	status := func(enabled bool, label, value string) string {
		if enabled {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	lines = append(lines, bold.Render("    Gateway"), "")
	lines = append(lines, status(cfg.APIEnabled, "HTTP API", cfg.APIAddr))
	lines = append(lines, status(cfg.OTLPEnabled, "OTLP gRPC", cfg.OTLPAddr))
	lines = append(lines, status(cfg.TCPEnabled, "TCP Ingest", cfg.TCPAddr))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Storage", dim.Render(shortenPath(cfg.DBPath))))
	if cfg.LogRetention > 0 {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Retention", dim.Render(fmt.Sprintf("%d days", cfg.LogRetention))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Retention", dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Detection"), "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Threshold", dim.Render(fmt.Sprintf("%.2f", cfg.AnomalyThreshold))))
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Workers", dim.Render(fmt.Sprint(cfg.AnalyzerWorkers))))
	lines = append(lines, status(alerting, "Telegram", "enabled"))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
