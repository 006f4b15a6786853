// Package config provides configuration loading and validation for pyconv.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sentinel validation errors.
var (
	// ErrInvalidWorkers indicates the workers value is negative.
	ErrInvalidWorkers = errors.New("convert.workers must be non-negative")
	// ErrInvalidIndent indicates the indent contains non-whitespace characters.
	ErrInvalidIndent = errors.New("output.indent must contain only spaces or tabs")
	// ErrInvalidReport indicates an unknown report format.
	ErrInvalidReport = errors.New("output.report must be one of json, yaml, table or empty")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("logging.level must be one of debug, info, warn, error")
)

// Config holds all configuration for a conversion run.
type Config struct {
	Convert   ConvertConfig   `mapstructure:"convert"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ConvertConfig controls the batch pipeline.
type ConvertConfig struct {
	// Workers is the number of files converted concurrently. Zero converts sequentially.
	Workers int `mapstructure:"workers"`
	// Strict stops the run at the first failed file.
	Strict bool `mapstructure:"strict"`
	// CopySource copies the companion .py file next to each result.
	CopySource bool `mapstructure:"copy_source"`
	// WrapSourceFile wraps every export in a SourceFile element.
	WrapSourceFile bool `mapstructure:"wrap_source_file"`
}

// OutputConfig controls how results and the run report are written.
type OutputConfig struct {
	Indent     string `mapstructure:"indent"`
	Report     string `mapstructure:"report"`
	ReportFile string `mapstructure:"report_file"`
	Pretty     bool   `mapstructure:"pretty"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC collector address. Empty disables OTLP export.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// MetricsTextfile is a Prometheus textfile written at the end of the run.
	MetricsTextfile string `mapstructure:"metrics_textfile"`
	OTLPInsecure    bool   `mapstructure:"otlp_insecure"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Convert: ConvertConfig{
			Workers:        DefaultConvertWorkers,
			Strict:         DefaultConvertStrict,
			CopySource:     DefaultConvertCopySource,
			WrapSourceFile: DefaultConvertWrapSourceFile,
		},
		Output: OutputConfig{
			Pretty:     DefaultOutputPretty,
			Indent:     DefaultOutputIndent,
			Report:     DefaultOutputReport,
			ReportFile: DefaultOutputReportFile,
		},
		Logging: LoggingConfig{
			Level: DefaultLoggingLevel,
			JSON:  DefaultLoggingJSON,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:    DefaultTelemetryOTLPEndpoint,
			OTLPInsecure:    DefaultTelemetryOTLPInsecure,
			MetricsTextfile: DefaultTelemetryMetricsTextfile,
		},
	}
}

// Validate checks every section and returns the first violation.
func (c *Config) Validate() error {
	if c.Convert.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Convert.Workers)
	}

	if strings.Trim(c.Output.Indent, " \t") != "" {
		return fmt.Errorf("%w: %q", ErrInvalidIndent, c.Output.Indent)
	}

	switch strings.ToLower(c.Output.Report) {
	case ReportNone, ReportJSON, ReportYAML, ReportTable:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidReport, c.Output.Report)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel maps the configured level name to a slog level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}
}
