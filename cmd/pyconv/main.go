// Package main provides the pyconv CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pyconv/pkg/config"
	"github.com/Sumatoshi-tech/pyconv/pkg/convert"
	"github.com/Sumatoshi-tech/pyconv/pkg/observability"
	"github.com/Sumatoshi-tech/pyconv/pkg/version"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// convertArgCount is the number of positional arguments of the root command.
const convertArgCount = 2

var (
	// ErrUsage indicates a malformed invocation.
	ErrUsage = errors.New("usage")
	// errDiffers signals a diff that found differences; it is not printed.
	errDiffers = errors.New("outputs differ")
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	verbose    bool
	quiet      bool
	logJSON    bool
}

// convertOptions are the root command flags that override config values.
type convertOptions struct {
	indent          string
	report          string
	reportFile      string
	otlpEndpoint    string
	metricsTextfile string
	workers         int
	strict          bool
	noCopy          bool
	noWrap          bool
	noPretty        bool
	otlpInsecure    bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrUsage):
		fmt.Fprintf(stderr, "Error: %v\n", err)

		return exitUsage
	case errors.Is(err, errDiffers):
		return exitFailure
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)

		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	global := &globalOptions{}
	opts := &convertOptions{}

	rootCmd := &cobra.Command{
		Use:   "pyconv SOURCE_DIR RESULT_DIR",
		Short: "Normalize exported Python AST XML into position-stamped trees",
		Long: `pyconv converts XML exports of Python abstract syntax trees into a canonical
tree of constructs and identifier leaves. Every node gets an ID and its exact
line/column span, resolved against the .py file found next to each export.

Every *.xml under SOURCE_DIR is converted into RESULT_DIR together with a copy
of its Python source. Failed files are logged and skipped unless --strict.`,
		Args:          usageArgs(convertArgCount),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, global, opts, args[0], args[1])
		},
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		_ = cmd.Usage()

		return fmt.Errorf("%w: %w", ErrUsage, err)
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&global.configFile, "config", "", "config file (default is ./.pyconv.yaml or $HOME/.pyconv.yaml)")
	flags.BoolVarP(&global.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&global.quiet, "quiet", "q", false, "only log errors and skip the summary")
	flags.BoolVar(&global.logJSON, "log-json", false, "log in JSON")

	local := rootCmd.Flags()
	local.IntVarP(&opts.workers, "workers", "w", 0, "files converted concurrently (0 = sequential)")
	local.BoolVar(&opts.strict, "strict", false, "stop at the first failed file and exit non-zero")
	local.BoolVar(&opts.noCopy, "no-copy", false, "read sources in place instead of copying them to RESULT_DIR")
	local.BoolVar(&opts.noWrap, "no-wrap", false, "do not wrap exports in a SourceFile element")
	local.BoolVar(&opts.noPretty, "no-pretty", false, "write results without pretty printing")
	local.StringVar(&opts.indent, "indent", "", "pretty-print indent (default two spaces)")
	local.StringVarP(&opts.report, "report", "r", "", "print a run report (json, yaml, table)")
	local.StringVar(&opts.reportFile, "report-file", "", "write the run report to a file instead of stdout")
	local.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector address")
	local.BoolVar(&opts.otlpInsecure, "otlp-insecure", false, "disable TLS for OTLP export")
	local.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file at exit")

	rootCmd.AddCommand(diffCmd(global))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// usageArgs prints usage and fails with ErrUsage unless exactly n arguments are given.
func usageArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == n {
			return nil
		}

		_ = cmd.Usage()

		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrUsage, cmd.Name(), n, len(args))
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// loadConfig reads the config file and environment, then applies the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command, global *globalOptions, opts *convertOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(global.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyGlobalFlags(cfg, global)

	if opts != nil {
		applyConvertFlags(cmd, cfg, opts)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	return cfg, nil
}

func applyGlobalFlags(cfg *config.Config, global *globalOptions) {
	switch {
	case global.verbose:
		cfg.Logging.Level = "debug"
	case global.quiet:
		cfg.Logging.Level = "error"
	}

	if global.logJSON {
		cfg.Logging.JSON = true
	}
}

func applyConvertFlags(cmd *cobra.Command, cfg *config.Config, opts *convertOptions) {
	flags := cmd.Flags()

	if flags.Changed("workers") {
		cfg.Convert.Workers = opts.workers
	}

	if flags.Changed("strict") {
		cfg.Convert.Strict = opts.strict
	}

	if opts.noCopy {
		cfg.Convert.CopySource = false
	}

	if opts.noWrap {
		cfg.Convert.WrapSourceFile = false
	}

	if opts.noPretty {
		cfg.Output.Pretty = false
	}

	if flags.Changed("indent") {
		cfg.Output.Indent = opts.indent
	}

	if flags.Changed("report") {
		cfg.Output.Report = opts.report
	}

	if flags.Changed("report-file") {
		cfg.Output.ReportFile = opts.reportFile
	}

	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = opts.otlpEndpoint
	}

	if flags.Changed("otlp-insecure") {
		cfg.Telemetry.OTLPInsecure = opts.otlpInsecure
	}

	if flags.Changed("metrics-textfile") {
		cfg.Telemetry.MetricsTextfile = opts.metricsTextfile
	}
}

func initObservability(cmd *cobra.Command, cfg *config.Config, mode observability.AppMode) (observability.Providers, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Providers{}, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.LogOutput = cmd.ErrOrStderr()
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.MetricsTextfile = cfg.Telemetry.MetricsTextfile

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}

func runConvert(cmd *cobra.Command, global *globalOptions, opts *convertOptions, sourceDir, resultDir string) (err error) {
	cfg, err := loadConfig(cmd, global, opts)
	if err != nil {
		return err
	}

	providers, err := initObservability(cmd, cfg, observability.ModeConvert)
	if err != nil {
		return err
	}

	defer func() {
		if shutdownErr := providers.Shutdown(context.Background()); shutdownErr != nil {
			providers.Logger.Error("telemetry shutdown failed", "err", shutdownErr)
		}
	}()

	metrics, err := observability.NewConversionMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	conv := convert.NewConverter(convert.Options{
		OutputDir:      resultDir,
		Indent:         cfg.Output.Indent,
		Pretty:         cfg.Output.Pretty,
		CopySource:     cfg.Convert.CopySource,
		WrapSourceFile: cfg.Convert.WrapSourceFile,
	},
		convert.WithLogger(providers.Logger),
		convert.WithTracer(providers.Tracer),
		convert.WithMetrics(metrics),
	)

	runner := convert.NewRunner(conv,
		convert.WithWorkers(cfg.Convert.Workers),
		convert.WithStrict(cfg.Convert.Strict),
	)

	report, runErr := runner.Run(cmd.Context(), sourceDir)

	if report != nil {
		if reportErr := writeReport(cmd.OutOrStdout(), cfg, report); reportErr != nil {
			return reportErr
		}

		if !global.quiet {
			printSummary(cmd.OutOrStdout(), report)
		}
	}

	if runErr != nil {
		if cfg.Convert.Strict {
			return runErr
		}

		providers.Logger.Error("conversion run failed", "source", sourceDir, "err", runErr)
	}

	return nil
}

func writeReport(stdout io.Writer, cfg *config.Config, report *convert.Report) error {
	if cfg.Output.Report == config.ReportNone {
		return nil
	}

	if cfg.Output.ReportFile == "" {
		return report.Render(stdout, cfg.Output.Report)
	}

	file, err := os.Create(cfg.Output.ReportFile)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}

	if err := report.Render(file, cfg.Output.Report); err != nil {
		_ = file.Close()

		return err
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}

	return nil
}

func printSummary(w io.Writer, report *convert.Report) {
	totals := report.Totals

	color.New(color.FgGreen).Fprintf(w, "Converted %d/%d files", totals.Converted, totals.Files)

	if totals.Failed > 0 {
		color.New(color.FgRed).Fprintf(w, ", %d failed", totals.Failed)
	}

	if totals.Skipped > 0 {
		color.New(color.FgYellow).Fprintf(w, ", %d skipped", totals.Skipped)
	}

	fmt.Fprintf(w, " in %s\n", report.Duration.Round(time.Millisecond))

	failed := color.New(color.FgRed)

	for _, file := range report.Failures() {
		failed.Fprintf(w, "  FAIL %s [%s]: %s\n", file.Path, file.Stage, file.Error)
	}
}
