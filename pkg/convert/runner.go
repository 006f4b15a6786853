package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrConversionFailed is returned by a strict run when a file fails.
var ErrConversionFailed = errors.New("conversion failed")

// Runner converts every export under a directory.
type Runner struct {
	conv    *Converter
	logger  *slog.Logger
	tracer  trace.Tracer
	workers int
	strict  bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers sets the number of files converted concurrently. Zero or
// less converts sequentially in discovery order.
func WithWorkers(workers int) RunnerOption {
	return func(r *Runner) {
		r.workers = workers
	}
}

// WithStrict makes the first failed file abort the run.
func WithStrict(strict bool) RunnerOption {
	return func(r *Runner) {
		r.strict = strict
	}
}

// NewRunner creates a Runner that shares conv's logger and tracer.
func NewRunner(conv *Converter, opts ...RunnerOption) *Runner {
	r := &Runner{
		conv:   conv,
		logger: conv.logger,
		tracer: conv.tracer,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run converts every export under sourceDir into the converter's output
// directory. Failed files are recorded in the report; the returned error
// is non-nil only when discovery fails, ctx is cancelled, or a file fails
// in strict mode. Files not reached are reported as skipped.
func (r *Runner) Run(ctx context.Context, sourceDir string) (*Report, error) {
	started := time.Now()

	ctx, span := r.tracer.Start(ctx, "pyconv.run",
		trace.WithAttributes(attribute.String("pyconv.source_dir", sourceDir)))
	defer span.End()

	files, err := Discover(sourceDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("discover exports: %w", err)
	}

	outputDir := r.conv.opts.OutputDir

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("create output directory: %w", err)
	}

	report := &Report{SourceDir: sourceDir, OutputDir: outputDir, Files: make([]FileResult, len(files))}
	for idx, path := range files {
		report.Files[idx] = FileResult{Path: path, Status: StatusSkipped}
	}

	var runErr error
	if r.workers <= 0 {
		runErr = r.runSequential(ctx, files, report.Files)
	} else {
		runErr = r.runParallel(ctx, files, report.Files)
	}

	report.Duration = time.Since(started)
	report.Summarize()

	span.SetAttributes(
		attribute.Int("pyconv.files", report.Totals.Files),
		attribute.Int("pyconv.failed", report.Totals.Failed),
	)

	r.logger.InfoContext(ctx, "conversion finished",
		"files", report.Totals.Files,
		"converted", report.Totals.Converted,
		"failed", report.Totals.Failed,
		"skipped", report.Totals.Skipped,
		"nodes", report.Totals.Nodes,
		"duration", report.Duration)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())

		return report, runErr
	}

	return report, nil
}

func (r *Runner) runSequential(ctx context.Context, files []string, results []FileResult) error {
	for idx, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		results[idx] = r.conv.ConvertFile(ctx, path)

		if err := r.check(results[idx]); err != nil {
			return err
		}
	}

	return nil
}

// runParallel converts files concurrently. Exports that write the same
// result name share one worker and run in discovery order, so they never
// race on the output directory and the last one wins as in sequential mode.
func (r *Runner) runParallel(ctx context.Context, files []string, results []FileResult) error {
	groups := groupByOutput(files)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(min(r.workers, max(len(groups), 1)))

	for _, indexes := range groups {
		group.Go(func() error {
			for _, idx := range indexes {
				if err := groupCtx.Err(); err != nil {
					return err
				}

				results[idx] = r.conv.ConvertFile(groupCtx, files[idx])

				if err := r.check(results[idx]); err != nil {
					return err
				}
			}

			return nil
		})
	}

	return group.Wait()
}

// groupByOutput returns the indexes of files grouped by result file name,
// in order of first appearance. The name match ignores case.
func groupByOutput(files []string) [][]int {
	var groups [][]int

	slot := make(map[string]int, len(files))

	for idx, path := range files {
		name := strings.ToLower(filepath.Base(path))

		pos, ok := slot[name]
		if !ok {
			pos = len(groups)
			slot[name] = pos
			groups = append(groups, nil)
		}

		groups[pos] = append(groups[pos], idx)
	}

	return groups
}

func (r *Runner) check(result FileResult) error {
	if !r.strict || result.Status != StatusFailed {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrConversionFailed, result.Err)
}
