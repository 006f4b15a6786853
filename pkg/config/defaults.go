package config

// Conversion defaults.
const (
	DefaultConvertWorkers        = 0
	DefaultConvertStrict         = false
	DefaultConvertCopySource     = true
	DefaultConvertWrapSourceFile = true
)

// Output defaults.
const (
	DefaultOutputPretty     = true
	DefaultOutputIndent     = "  "
	DefaultOutputReport     = ""
	DefaultOutputReportFile = ""
)

// Logging defaults.
const (
	DefaultLoggingLevel = "info"
	DefaultLoggingJSON  = false
)

// Telemetry defaults.
const (
	DefaultTelemetryOTLPEndpoint    = ""
	DefaultTelemetryOTLPInsecure    = false
	DefaultTelemetryMetricsTextfile = ""
)

// Report formats accepted by output.report.
const (
	ReportNone  = ""
	ReportJSON  = "json"
	ReportYAML  = "yaml"
	ReportTable = "table"
)
