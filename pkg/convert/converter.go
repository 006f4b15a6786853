// Package convert runs the export-to-canonical-tree pipeline over files
// and directories: companion lookup, source copy, normalization,
// serialization and pretty printing.
package convert

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/pyconv/pkg/observability"
	"github.com/Sumatoshi-tech/pyconv/pkg/pyast"
	"github.com/Sumatoshi-tech/pyconv/pkg/xmltree"
)

const tracerName = "pyconv/convert"

// ErrMissingCompanion indicates an export has no Python source next to it.
var ErrMissingCompanion = errors.New("companion python source not found")

// Stage names the pipeline step a file failed in.
type Stage string

// Pipeline stages, in execution order.
const (
	StageCompanion Stage = "companion"
	StageCopy      Stage = "copy"
	StageRead      Stage = "read"
	StageParse     Stage = "parse"
	StageNormalize Stage = "normalize"
	StageWrite     Stage = "write"
	StageFormat    Stage = "format"
)

// FileError reports the failure of one file at one stage.
type FileError struct {
	Err   error
	Path  string
	Stage Stage
}

func (e *FileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Options control where and how results are written.
type Options struct {
	// OutputDir receives one result per export, named after the export.
	OutputDir string
	// Indent is the pretty-print indent unit.
	Indent string
	// Pretty reformats every written result.
	Pretty bool
	// CopySource copies the companion source into OutputDir.
	CopySource bool
	// WrapSourceFile wraps the export in a SourceFile element.
	WrapSourceFile bool
}

// Converter converts single export files. It is safe for concurrent use;
// each call builds its own normalizer and source index.
type Converter struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.ConversionMetrics
	opts    Options
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConverterOption {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for per-file spans.
func WithTracer(tracer trace.Tracer) ConverterOption {
	return func(c *Converter) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMetrics records every conversion on metrics.
func WithMetrics(metrics *observability.ConversionMetrics) ConverterOption {
	return func(c *Converter) {
		c.metrics = metrics
	}
}

// NewConverter creates a Converter.
func NewConverter(opts Options, options ...ConverterOption) *Converter {
	if opts.Indent == "" {
		opts.Indent = xmltree.DefaultIndent
	}

	c := &Converter{
		opts:   opts,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// ConvertFile converts one export and writes the result into the output
// directory. Failures are reported in the result, never returned.
func (c *Converter) ConvertFile(ctx context.Context, exportPath string) FileResult {
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "pyconv.convert_file",
		trace.WithAttributes(attribute.String("pyconv.path", exportPath)))
	defer span.End()

	if c.metrics != nil {
		defer c.metrics.TrackInflight(ctx)()
	}

	ctx = observability.ContextWithFile(ctx, exportPath)

	c.logger.InfoContext(ctx, "converting file")

	result := FileResult{
		Path:   exportPath,
		Output: filepath.Join(c.opts.OutputDir, filepath.Base(exportPath)),
	}

	stats, written, err := c.convert(exportPath, result.Output)
	result.Duration = time.Since(start)
	result.Nodes = stats.Nodes()
	result.Identifiers = stats.Identifiers
	result.Unresolved = stats.Unresolved

	if err != nil {
		result.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logFailure(ctx, err)
	} else {
		result.Status = StatusConverted
		result.Bytes = written
		span.SetAttributes(
			attribute.Int("pyconv.nodes", result.Nodes),
			attribute.Int("pyconv.unresolved", result.Unresolved),
		)
	}

	if c.metrics != nil {
		c.metrics.RecordFile(ctx, observability.FileOutcome{
			Status:      string(result.Status),
			Duration:    result.Duration,
			Nodes:       result.Nodes,
			Identifiers: result.Identifiers,
			Unresolved:  result.Unresolved,
		})
	}

	return result
}

func (c *Converter) convert(exportPath, outputPath string) (pyast.Stats, int, error) {
	companion := CompanionPath(exportPath)

	if _, err := os.Stat(companion); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrMissingCompanion, companion)
		}

		return pyast.Stats{}, 0, &FileError{Path: exportPath, Stage: StageCompanion, Err: err}
	}

	if c.opts.CopySource {
		copied := filepath.Join(c.opts.OutputDir, filepath.Base(companion))
		if err := copyFile(companion, copied); err != nil {
			return pyast.Stats{}, 0, &FileError{Path: exportPath, Stage: StageCopy, Err: err}
		}
	}

	// The copy in OutputDir may belong to another export with the same name.
	source, err := os.ReadFile(companion)
	if err != nil {
		return pyast.Stats{}, 0, &FileError{Path: exportPath, Stage: StageRead, Err: err}
	}

	export, err := os.ReadFile(exportPath)
	if err != nil {
		return pyast.Stats{}, 0, &FileError{Path: exportPath, Stage: StageRead, Err: err}
	}

	doc, stats, err := Transform(export, source, companion, c.opts.WrapSourceFile,
		pyast.WithLogger(c.logger.With(observability.FileAttr(exportPath))))
	if err != nil {
		var fileErr *FileError
		if errors.As(err, &fileErr) {
			fileErr.Path = exportPath
		}

		return stats, 0, err
	}

	written, err := xmltree.WriteFile(outputPath, doc)
	if err != nil {
		return stats, 0, &FileError{Path: exportPath, Stage: StageWrite, Err: err}
	}

	if c.opts.Pretty {
		written, err = xmltree.FormatFile(outputPath, c.opts.Indent)
		if err != nil {
			return stats, 0, &FileError{Path: exportPath, Stage: StageFormat, Err: err}
		}
	}

	return stats, written, nil
}

func (c *Converter) logFailure(ctx context.Context, err error) {
	var nodeErr *pyast.NodeError
	if errors.As(err, &nodeErr) {
		c.logger.ErrorContext(ctx, "node normalization failed",
			"tag", nodeErr.Tag, "line", nodeErr.Line, "err", err)

		return
	}

	var fileErr *FileError
	if errors.As(err, &fileErr) {
		c.logger.ErrorContext(ctx, "file conversion failed", "stage", fileErr.Stage, "err", err)

		return
	}

	c.logger.ErrorContext(ctx, "file conversion failed", "err", err)
}

// Transform normalizes one export against its Python source in memory.
// With wrap set, the export is enclosed in a SourceFile element naming
// sourcePath. Errors are *FileError values carrying the failed stage.
func Transform(export, source []byte, sourcePath string, wrap bool, opts ...pyast.Option) (*xmltree.Node, pyast.Stats, error) {
	if wrap {
		export = WrapExport(export, sourcePath)
	}

	doc, err := xmltree.Parse(export)
	if err != nil {
		return nil, pyast.Stats{}, &FileError{Stage: StageParse, Err: err}
	}

	stats, err := pyast.Normalize(pyast.FindRoot(doc), pyast.SplitLines(source), opts...)
	if err != nil {
		return doc, stats, &FileError{Stage: StageNormalize, Err: err}
	}

	return doc, stats, nil
}

// Render serializes a converted document, pretty-printed when indent is non-empty.
func Render(doc *xmltree.Node, indent string) ([]byte, error) {
	data, err := xmltree.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}

	if indent == "" {
		return data, nil
	}

	return xmltree.Format(data, indent)
}

// WrapExport encloses an export in a SourceFile element opened on the
// export's first line, so element lines keep matching source lines. A
// leading XML declaration is removed, its line break is kept.
func WrapExport(export []byte, sourcePath string) []byte {
	body := bytes.TrimPrefix(export, []byte("\xef\xbb\xbf"))

	if bytes.HasPrefix(body, []byte("<?xml")) {
		if end := bytes.Index(body, []byte("?>")); end >= 0 {
			body = body[end+len("?>"):]
		}
	}

	var buf bytes.Buffer

	buf.Grow(len(body) + len(sourcePath) + 64)
	buf.WriteString(`<SourceFile Language="Python" FullName="`)
	_ = xml.EscapeText(&buf, []byte(sourcePath))
	buf.WriteString(`">`)
	buf.Write(body)

	if len(body) > 0 && body[len(body)-1] != '\n' {
		buf.WriteByte('\n')
	}

	buf.WriteString("</SourceFile>")

	return buf.Bytes()
}

func copyFile(src, dst string) error {
	if sameFile(src, dst) {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	return nil
}

func sameFile(a, b string) bool {
	aInfo, err := os.Stat(a)
	if err != nil {
		return false
	}

	bInfo, err := os.Stat(b)
	if err != nil {
		return false
	}

	return os.SameFile(aInfo, bInfo)
}
