package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/younsl/autoprotect/internal/audit"
	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/engine"
	"github.com/younsl/autoprotect/internal/logging"
	"github.com/younsl/autoprotect/internal/metrics"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/version"
	awsclient "github.com/younsl/autoprotect/pkg/aws"
	"github.com/younsl/autoprotect/pkg/formatter"
)

const (
	pushTimeout = 10 * time.Second
	metricsJob  = "autoprotect"
)

var (
	configPath  string
	regions     []string
	dryRun      bool
	exclusions  []string
	workers     int
	logLevel    string
	logFormat   string
	quiet       bool
	showVersion bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autoprotect",
		Short: "Attach the runtime security layer to eligible Lambda functions",
		Long: `autoprotect scans Lambda functions in the configured regions, skips any
function the security layer could break, and attaches the layer and its wrapper
to the rest. Every decision is written to an append-only audit log.

Dry-run is the default; set dryRun: false (or --dry-run=false) to apply changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println(version.Get())
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the YAML configuration file (env AUTOPROTECT_CONFIG)")
	rootCmd.PersistentFlags().StringSliceVarP(&regions, "regions", "r", nil,
		"AWS regions to scan (comma separated)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", true,
		"Compute and log changes without applying them")
	rootCmd.PersistentFlags().StringSliceVar(&exclusions, "exclude", nil,
		"Function names or ARNs to leave untouched")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0,
		"Concurrent functions per region")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, text, dev")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false,
		"Do not print the spinner and the result tables")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false,
		"Show version information")

	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// loadConfig applies only the flags that were set on the command line
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	var overrides config.Overrides
	if flags.Changed("regions") {
		overrides.Regions = regions
	}
	if flags.Changed("dry-run") {
		overrides.DryRun = &dryRun
	}
	if flags.Changed("exclude") {
		overrides.Exclusions = exclusions
	}
	if flags.Changed("workers") {
		overrides.Workers = &workers
	}
	if flags.Changed("log-level") {
		overrides.LogLevel = &logLevel
	}
	if flags.Changed("log-format") {
		overrides.LogFormat = &logFormat
	}

	path := configPath
	if path == "" {
		path = os.Getenv("AUTOPROTECT_CONFIG")
	}

	ctx := cmd.Context()
	return config.Load(path,
		config.WithOverrides(overrides),
		config.WithDefaultRegion(func() string { return awsclient.DefaultRegion(ctx) }),
	)
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	runID := uuid.NewString()
	started := time.Now()

	stats := awsclient.NewCallStats()
	clientOpts := awsclient.ClientOptions{
		Limiter:     rate.NewLimiter(rate.Limit(cfg.Concurrency.RequestsPerSecond), cfg.Concurrency.Burst),
		Stats:       stats,
		MaxAttempts: cfg.Concurrency.MaxAttempts,
		MaxBackoff:  cfg.Concurrency.MaxBackoff,
	}

	loadAuditConfig := func(ctx context.Context, region string) (aws.Config, error) {
		return awsclient.LoadRegionConfig(ctx, region, clientOpts)
	}
	sinks, err := buildSinks(ctx, cfg, runID, started, loadAuditConfig)
	if err != nil {
		return err
	}
	auditLog := audit.NewLogger(runID, cfg.DryRun, logger, sinks...)
	recorder := metrics.NewRecorder()

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[9], 200*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " Assessing Lambda functions ..."
		s.Start()
	}

	var processed atomic.Int64
	onRecord := func(rec models.AuditRecord) {
		if rec.Kind != models.RecordKindFunction {
			return
		}
		n := processed.Add(1)
		if s != nil {
			s.Lock()
			s.Suffix = fmt.Sprintf(" Assessing Lambda functions ... %d done", n)
			s.Unlock()
		}
	}

	summary, err := engine.Run(ctx, cfg, engine.Deps{
		Clients: func(ctx context.Context, region string) (engine.RegionClient, error) {
			awsCfg, err := awsclient.LoadRegionConfig(ctx, region, clientOpts)
			if err != nil {
				return nil, err
			}
			return awsclient.NewLambdaClient(awsCfg, logger), nil
		},
		Audit:    auditLog,
		Metrics:  recorder,
		Logger:   logger,
		RunID:    runID,
		OnRecord: onRecord,
	})

	// Flush the audit log even when the run was interrupted
	if closeErr := auditLog.Close(context.WithoutCancel(ctx)); closeErr != nil {
		logger.Error("audit log flush failed", "error", closeErr)
	}
	if err != nil {
		if s != nil {
			s.Stop()
		}
		return err
	}

	callStats := stats.Snapshot()
	recorder.ObserveCalls(callStats)
	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		if err := recorder.Push(pushCtx, cfg.Metrics.PushgatewayURL, metricsJob); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
		cancel()
	}

	elapsed := summary.Finished.Sub(summary.Started)
	if s != nil {
		s.FinalMSG = fmt.Sprintf("✓ [%d functions assessed] Lambda fleet analyzed - Completed in %.2f seconds\n",
			summary.Total(), elapsed.Seconds())
		s.Stop()
	}

	if !quiet {
		formatter.PrintDecisionTable(os.Stderr, summary.Records, summary.Started, elapsed)
		formatter.PrintChanges(os.Stderr, summary.Records, summary.DryRun)
		formatter.PrintAdvisories(os.Stderr, summary.Records)
		formatter.PrintRegionTable(os.Stderr, summary.Records)
		formatter.PrintSummary(os.Stderr, formatter.Summary{
			RunID:           summary.RunID,
			DryRun:          summary.DryRun,
			Verdicts:        summary.Verdicts,
			Outcomes:        summary.Outcomes,
			Reasons:         summary.Reasons,
			RegionFailures:  summary.RegionFailures,
			Deferred:        summary.Deferred,
			BudgetExhausted: summary.BudgetExhausted,
		})
		formatter.PrintAPIStats(os.Stderr, callStats)
	}

	return nil
}

// buildSinks opens every configured audit destination. Failing to open one aborts
// the run before any function is assessed, and the sinks already opened are closed.
func buildSinks(
	ctx context.Context,
	cfg config.Config,
	runID string,
	started time.Time,
	loadConfig func(ctx context.Context, region string) (aws.Config, error),
) (sinks []audit.Sink, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(err, closeSinks(ctx, sinks))
			sinks = nil
		}
	}()

	if cfg.Audit.Stdout {
		sinks = append(sinks, audit.NewJSONLSink(os.Stdout))
	}
	if cfg.Audit.File != "" {
		sink, err := audit.OpenJSONLFile(cfg.Audit.File)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, sink)
	}

	if cfg.Audit.CloudWatchLogGroup == "" && cfg.Audit.S3Bucket == "" {
		return sinks, nil
	}

	region := cfg.Audit.Region
	if region == "" {
		region = cfg.Regions[0]
	}
	awsCfg, err := loadConfig(ctx, region)
	if err != nil {
		return sinks, fmt.Errorf("load audit sink configuration for %s: %w", region, err)
	}

	if cfg.Audit.CloudWatchLogGroup != "" {
		sinks = append(sinks, audit.NewCloudWatchLogsSink(cloudwatchlogs.NewFromConfig(awsCfg), cfg.Audit.CloudWatchLogGroup, runID))
	}
	if cfg.Audit.S3Bucket != "" {
		sinks = append(sinks, audit.NewS3Sink(s3.NewFromConfig(awsCfg), cfg.Audit.S3Bucket, cfg.Audit.S3Prefix, runID, started))
	}
	return sinks, nil
}

func closeSinks(ctx context.Context, sinks []audit.Sink) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
