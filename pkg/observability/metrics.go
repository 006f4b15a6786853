package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal       = "pyconv.files.total"
	metricFileDuration     = "pyconv.file.duration.seconds"
	metricNodesTotal       = "pyconv.nodes.total"
	metricIdentifiersTotal = "pyconv.identifiers.total"
	metricUnresolvedTotal  = "pyconv.unresolved.total"
	metricInflightFiles    = "pyconv.inflight.files"

	attrStatus = "status"
)

// Conversion statuses recorded on pyconv.files.total.
const (
	StatusConverted = "converted"
	StatusFailed    = "failed"
)

// durationBucketBoundaries covers 1ms to 60s: most exports convert in
// milliseconds, generated modules can take seconds.
//
//nolint:gochecknoglobals // fixed bucket layout.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// FileOutcome is what one file conversion contributes to the run metrics.
type FileOutcome struct {
	Status      string
	Duration    time.Duration
	Nodes       int
	Identifiers int
	Unresolved  int
}

// ConversionMetrics holds the OTel instruments of a conversion run.
type ConversionMetrics struct {
	filesTotal       metric.Int64Counter
	fileDuration     metric.Float64Histogram
	nodesTotal       metric.Int64Counter
	identifiersTotal metric.Int64Counter
	unresolvedTotal  metric.Int64Counter
	inflightFiles    metric.Int64UpDownCounter
}

// NewConversionMetrics creates the conversion instruments from the given meter.
func NewConversionMetrics(mt metric.Meter) (*ConversionMetrics, error) {
	filesTotal, err := mt.Int64Counter(metricFilesTotal,
		metric.WithDescription("Number of processed export files"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesTotal, err)
	}

	fileDuration, err := mt.Float64Histogram(metricFileDuration,
		metric.WithDescription("Per-file conversion duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFileDuration, err)
	}

	nodesTotal, err := mt.Int64Counter(metricNodesTotal,
		metric.WithDescription("Number of nodes stamped with an ID"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricNodesTotal, err)
	}

	identifiersTotal, err := mt.Int64Counter(metricIdentifiersTotal,
		metric.WithDescription("Number of identifier leaves created"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricIdentifiersTotal, err)
	}

	unresolvedTotal, err := mt.Int64Counter(metricUnresolvedTotal,
		metric.WithDescription("Number of tokens not found on their source line"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricUnresolvedTotal, err)
	}

	inflightFiles, err := mt.Int64UpDownCounter(metricInflightFiles,
		metric.WithDescription("Number of files being converted"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightFiles, err)
	}

	return &ConversionMetrics{
		filesTotal:       filesTotal,
		fileDuration:     fileDuration,
		nodesTotal:       nodesTotal,
		identifiersTotal: identifiersTotal,
		unresolvedTotal:  unresolvedTotal,
		inflightFiles:    inflightFiles,
	}, nil
}

// RecordFile records one finished file conversion.
func (cm *ConversionMetrics) RecordFile(ctx context.Context, outcome FileOutcome) {
	attrs := metric.WithAttributes(attribute.String(attrStatus, outcome.Status))

	cm.filesTotal.Add(ctx, 1, attrs)
	cm.fileDuration.Record(ctx, outcome.Duration.Seconds(), attrs)

	if outcome.Status != StatusConverted {
		return
	}

	cm.nodesTotal.Add(ctx, int64(outcome.Nodes))
	cm.identifiersTotal.Add(ctx, int64(outcome.Identifiers))
	cm.unresolvedTotal.Add(ctx, int64(outcome.Unresolved))
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (cm *ConversionMetrics) TrackInflight(ctx context.Context) func() {
	cm.inflightFiles.Add(ctx, 1)

	return func() {
		cm.inflightFiles.Add(ctx, -1)
	}
}
