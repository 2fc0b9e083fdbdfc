package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "logops",
		Short:         "Log ingestion and multi-method anomaly detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logops/config.yml)")
	root.PersistentFlags().String("log-level", logrus.InfoLevel.String(), "log level: debug, info, warning, error")

	root.AddCommand(newServeCmd(), newDetectCmd(), newGenerateCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion API, OTLP receiver and background analyzer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd)
		},
	}
	cmd.Flags().Int("api-port", defaultAPIPort, "HTTP API port")
	cmd.Flags().Int("otlp-port", defaultOTLPPort, "OTLP/gRPC port")
	cmd.Flags().Int("tcp-port", defaultTCPPort, "JSON-lines TCP ingest port")
	cmd.Flags().String("db-path", "", "DuckDB database path")
	return cmd
}

func serve(cmd *cobra.Command) error {
	cfg, err := loadConfig(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return runServer(cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "LogOps - Log Anomaly Detection\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", goVersion)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
