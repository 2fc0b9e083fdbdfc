package main

import (
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/tinytelemetry/logops/internal/detector"
	"github.com/tinytelemetry/logops/internal/ingest"
	"github.com/tinytelemetry/logops/internal/model"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type detectorSummary struct {
	Name      string `json:"name" yaml:"name"`
	Anomalies int    `json:"anomalies" yaml:"anomalies"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

type detectOutput struct {
	Analyzed  int                   `json:"analyzed" yaml:"analyzed"`
	Skipped   int                   `json:"skipped" yaml:"skipped"`
	Anomalies []model.AnomalyRecord `json:"anomalies" yaml:"anomalies"`
	Detectors []detectorSummary     `json:"detectors" yaml:"detectors"`
}

func newDetectCmd() *cobra.Command {
	var (
		file      string
		format    string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run anomaly detection once over a JSON-lines file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cmd.Flags().Changed("threshold") {
				cfg.AnomalyThreshold = threshold
			}

			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runDetect(cfg, in, cmd.OutOrStdout(), cmd.ErrOrStderr(), format)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON-lines input (default stdin)")
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum confidence to report (default from config)")
	return cmd
}

func runDetect(cfg appConfig, in io.Reader, out, errOut io.Writer, format string) error {
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported output format %q", format)
	}

	engine, err := detector.NewEngine(cfg.detectorConfig())
	if err != nil {
		return err
	}

	records, lineErrs, err := ingest.DecodeLines(in, time.Now)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	for _, le := range lineErrs {
		fmt.Fprintf(errOut, "skipping %v\n", le)
	}
	skipped := len(lineErrs)
	valid := records[:0]
	for i := range records {
		if err := ingest.Normalize(&records[i], time.Now); err != nil {
			fmt.Fprintf(errOut, "skipping record %d: %v\n", i, err)
			skipped++
			continue
		}
		valid = append(valid, records[i])
	}
	records = valid

	report := engine.Run(records)
	result := detectOutput{
		Analyzed:  len(records),
		Skipped:   skipped,
		Anomalies: report.Anomalies,
	}
	if result.Anomalies == nil {
		result.Anomalies = []model.AnomalyRecord{}
	}
	for _, res := range report.Results {
		s := detectorSummary{Name: res.Detector, Anomalies: len(res.Anomalies)}
		if res.Err != nil {
			s.Error = res.Err.Error()
		}
		result.Detectors = append(result.Detectors, s)
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
