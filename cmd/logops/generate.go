package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tinytelemetry/logops/internal/loggen"
	"github.com/tinytelemetry/logops/internal/model"
)

type generateOptions struct {
	Count        int
	Burst        int
	BurstService string
	Seed         int64
	Span         time.Duration
	URL          string
	BatchSize    int
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Emit synthetic logs as JSON lines or post them to a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			return runGenerate(ctx, opts, cmd.OutOrStdout(), http.DefaultClient)
		},
	}
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 100, "number of regular records")
	cmd.Flags().IntVar(&opts.Burst, "burst", 0, "number of ERROR/CRITICAL records to inject")
	cmd.Flags().StringVar(&opts.BurstService, "burst-service", "database", "service receiving the injected burst")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (default: time based)")
	cmd.Flags().DurationVar(&opts.Span, "span", 0, "spread regular records over this trailing window")
	cmd.Flags().StringVar(&opts.URL, "url", "", "post batches to this LogOps base URL instead of printing")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 100, "records per POST")
	return cmd
}

func runGenerate(ctx context.Context, opts generateOptions, out io.Writer, client *http.Client) error {
	if opts.Count < 0 || opts.Burst < 0 {
		return fmt.Errorf("count and burst must not be negative")
	}
	gen := loggen.New(loggen.Config{Seed: opts.Seed})

	var records []model.LogRecord
	if opts.Span > 0 {
		records = gen.Spread(opts.Count, opts.Span)
	} else {
		records = gen.Batch(opts.Count)
	}
	if opts.Burst > 0 {
		records = append(records, gen.Burst(opts.Burst, opts.BurstService)...)
	}

	if opts.URL == "" {
		enc := json.NewEncoder(out)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return err
			}
		}
		return nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	endpoint := strings.TrimRight(opts.URL, "/") + "/api/logs"
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := postBatch(ctx, client, endpoint, records[start:end]); err != nil {
			return err
		}
		fmt.Fprintf(out, "sent %d logs\n", end-start)
	}
	return nil
}

func postBatch(ctx context.Context, client *http.Client, endpoint string, records []model.LogRecord) error {
	body, err := json.Marshal(map[string]interface{}{"logs": records})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting logs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("posting logs: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
