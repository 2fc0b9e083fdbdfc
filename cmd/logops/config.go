package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tinytelemetry/logops/internal/analyzer"
	"github.com/tinytelemetry/logops/internal/detector"
	"github.com/tinytelemetry/logops/internal/duckdb"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/notify"
)

const (
	envPrefix                  = "LOGOPS"
	defaultBindHost            = "127.0.0.1"
	defaultAPIPort             = 8000
	defaultOTLPPort            = 4317
	defaultTCPPort             = 4000
	defaultQueryTimeout        = duckdb.DefaultQueryTimeout
	defaultInsertBatchSize     = duckdb.DefaultBatchSize
	defaultInsertFlushInterval = duckdb.DefaultFlushInterval
	defaultInsertFlushQueue    = duckdb.DefaultFlushQueueSize
	defaultLogRetention        = 30 // days, 0 = disabled
	defaultAlertRate           = 20
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	LogLevel            string        `mapstructure:"log-level"`
	DBPath              string        `mapstructure:"db-path"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	OTLPEnabled         bool          `mapstructure:"otlp-enabled"`
	OTLPPort            int           `mapstructure:"otlp-port"`
	OTLPAddr            string        `mapstructure:"otlp-addr"`
	TCPEnabled          bool          `mapstructure:"tcp-enabled"`
	TCPPort             int           `mapstructure:"tcp-port"`
	TCPAddr             string        `mapstructure:"tcp-addr"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	LogRetention        int           `mapstructure:"log-retention"`

	AnomalyThreshold   float64 `mapstructure:"anomaly-threshold"`
	Contamination      float64 `mapstructure:"contamination"`
	VolumeWindow       int     `mapstructure:"volume-window"`
	BaselineCapacity   int     `mapstructure:"baseline-capacity"`
	BaselineMinHistory int     `mapstructure:"baseline-min-history"`

	AnalyzerWorkers   int           `mapstructure:"analyzer-workers"`
	AnalyzerQueue     int           `mapstructure:"analyzer-queue-size"`
	AnalyzerDrain     time.Duration `mapstructure:"analyzer-drain-timeout"`
	ErrorThreshold    int           `mapstructure:"error-threshold"`
	CriticalThreshold int           `mapstructure:"critical-threshold"`

	TelegramBotToken string        `mapstructure:"telegram-bot-token"`
	TelegramChatID   string        `mapstructure:"telegram-chat-id"`
	AlertCooldown    time.Duration `mapstructure:"alert-cooldown"`
	AlertRate        int           `mapstructure:"alert-rate"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

// loadConfig merges defaults, the config file, LOGOPS_* environment
// variables and explicitly set flags, in increasing precedence.
func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultDBPath := filepath.Join(home, ".local", "share", "logops", "logops.duckdb")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("log-level", logrus.InfoLevel.String())
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("otlp-enabled", true)
	v.SetDefault("otlp-port", defaultOTLPPort)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("log-retention", defaultLogRetention)
	v.SetDefault("anomaly-threshold", model.DefaultAnomalyThreshold)
	v.SetDefault("contamination", model.DefaultContamination)
	v.SetDefault("volume-window", detector.DefaultVolumeWindowMinutes)
	v.SetDefault("baseline-capacity", detector.DefaultBaselineCapacity)
	v.SetDefault("baseline-min-history", detector.DefaultBaselineMinHistory)
	v.SetDefault("analyzer-workers", analyzer.DefaultWorkers)
	v.SetDefault("analyzer-queue-size", analyzer.DefaultQueueSize)
	v.SetDefault("analyzer-drain-timeout", analyzer.DefaultDrainTimeout)
	v.SetDefault("error-threshold", model.DefaultErrorThreshold)
	v.SetDefault("critical-threshold", model.DefaultCriticalThreshold)
	v.SetDefault("telegram-bot-token", "")
	v.SetDefault("telegram-chat-id", "")
	v.SetDefault("alert-cooldown", model.DefaultAlertCooldown)
	v.SetDefault("alert-rate", defaultAlertRate)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "logops", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	// Expand ~ in db-path
	if strings.HasPrefix(cfg.DBPath, "~/") {
		cfg.DBPath = filepath.Join(home, cfg.DBPath[2:])
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}
	if cfg.OTLPAddr == "" {
		cfg.OTLPAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.OTLPPort))
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.TCPPort))
	}

	return cfg, nil
}

func (c appConfig) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	if c.OTLPPort <= 0 || c.OTLPPort > 65535 {
		return fmt.Errorf("invalid otlp-port: %d", c.OTLPPort)
	}
	if c.TCPPort <= 0 || c.TCPPort > 65535 {
		return fmt.Errorf("invalid tcp-port: %d", c.TCPPort)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	if c.ErrorThreshold <= 0 || c.CriticalThreshold <= 0 {
		return fmt.Errorf("error-threshold and critical-threshold must be positive")
	}
	if c.VolumeWindow <= 0 {
		return fmt.Errorf("invalid volume-window: %d", c.VolumeWindow)
	}
	return c.detectorConfig().Validate()
}

func (c appConfig) detectorConfig() detector.Config {
	dc := detector.DefaultConfig()
	dc.ConfidenceThreshold = c.AnomalyThreshold
	dc.Forest.Contamination = c.Contamination
	dc.VolumeWindowMinutes = c.VolumeWindow
	dc.BaselineCapacity = c.BaselineCapacity
	dc.BaselineMinHistory = c.BaselineMinHistory
	return dc
}

func (c appConfig) analyzerConfig() analyzer.Config {
	return analyzer.Config{
		Workers:           c.AnalyzerWorkers,
		QueueSize:         c.AnalyzerQueue,
		DrainTimeout:      c.AnalyzerDrain,
		ErrorThreshold:    c.ErrorThreshold,
		CriticalThreshold: c.CriticalThreshold,
	}
}

func (c appConfig) notifyConfig() notify.Config {
	return notify.Config{
		BotToken:          c.TelegramBotToken,
		ChatID:            c.TelegramChatID,
		Cooldown:          c.AlertCooldown,
		MessagesPerMinute: c.AlertRate,
	}
}
