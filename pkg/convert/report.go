package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat indicates an unsupported report format.
var ErrUnknownFormat = errors.New("unknown report format")

// Report formats.
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// Status is the outcome of one file.
type Status string

// File outcomes.
const (
	StatusConverted Status = "converted"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// FileResult describes the conversion of one export.
type FileResult struct {
	Err         error         `json:"-"                yaml:"-"`
	Path        string        `json:"path"             yaml:"path"`
	Output      string        `json:"output,omitempty" yaml:"output,omitempty"`
	Status      Status        `json:"status"           yaml:"status"`
	Stage       Stage         `json:"stage,omitempty"  yaml:"stage,omitempty"`
	Error       string        `json:"error,omitempty"  yaml:"error,omitempty"`
	Nodes       int           `json:"nodes"            yaml:"nodes"`
	Identifiers int           `json:"identifiers"      yaml:"identifiers"`
	Unresolved  int           `json:"unresolved"       yaml:"unresolved"`
	Bytes       int           `json:"bytes"            yaml:"bytes"`
	Duration    time.Duration `json:"duration_ns"      yaml:"duration"`
}

func (r *FileResult) fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	r.Error = err.Error()

	var fileErr *FileError
	if errors.As(err, &fileErr) {
		r.Stage = fileErr.Stage
	}
}

// Totals aggregates a run.
type Totals struct {
	Files       int `json:"files"       yaml:"files"`
	Converted   int `json:"converted"   yaml:"converted"`
	Failed      int `json:"failed"      yaml:"failed"`
	Skipped     int `json:"skipped"     yaml:"skipped"`
	Nodes       int `json:"nodes"       yaml:"nodes"`
	Identifiers int `json:"identifiers" yaml:"identifiers"`
	Unresolved  int `json:"unresolved"  yaml:"unresolved"`
	Bytes       int `json:"bytes"       yaml:"bytes"`
}

// Report is the outcome of a batch run, in discovery order.
type Report struct {
	SourceDir string        `json:"source_dir"  yaml:"source_dir"`
	OutputDir string        `json:"output_dir"  yaml:"output_dir"`
	Files     []FileResult  `json:"files"       yaml:"files"`
	Totals    Totals        `json:"totals"      yaml:"totals"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration"`
}

// Summarize recomputes the totals from the file results.
func (r *Report) Summarize() {
	totals := Totals{Files: len(r.Files)}

	for _, file := range r.Files {
		switch file.Status {
		case StatusConverted:
			totals.Converted++
			totals.Nodes += file.Nodes
			totals.Identifiers += file.Identifiers
			totals.Unresolved += file.Unresolved
			totals.Bytes += file.Bytes
		case StatusFailed:
			totals.Failed++
		case StatusSkipped:
			totals.Skipped++
		}
	}

	r.Totals = totals
}

// Failures returns the failed file results.
func (r *Report) Failures() []FileResult {
	var failed []FileResult

	for _, file := range r.Files {
		if file.Status == StatusFailed {
			failed = append(failed, file)
		}
	}

	return failed
}

// Render writes the report in the given format.
func (r *Report) Render(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}

		return nil
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}

		_, err = w.Write(data)

		return err
	case FormatTable:
		_, err := io.WriteString(w, r.table()+"\n")

		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func (r *Report) table() string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"File", "Status", "Nodes", "Identifiers", "Unresolved", "Size", "Time", "Error"})

	for _, file := range r.Files {
		size := ""
		if file.Status == StatusConverted {
			size = humanize.Bytes(uint64(file.Bytes))
		}

		tbl.AppendRow(table.Row{
			r.relative(file.Path),
			string(file.Status),
			file.Nodes,
			file.Identifiers,
			file.Unresolved,
			size,
			file.Duration.Round(time.Microsecond).String(),
			file.Error,
		})
	}

	tbl.AppendFooter(table.Row{
		"Total: " + strconv.Itoa(r.Totals.Files) + " files",
		fmt.Sprintf("%d ok / %d failed", r.Totals.Converted, r.Totals.Failed),
		humanize.Comma(int64(r.Totals.Nodes)),
		humanize.Comma(int64(r.Totals.Identifiers)),
		humanize.Comma(int64(r.Totals.Unresolved)),
		humanize.Bytes(uint64(r.Totals.Bytes)),
		r.Duration.Round(time.Millisecond).String(),
		"",
	})

	return tbl.Render()
}

func (r *Report) relative(path string) string {
	if r.SourceDir == "" {
		return path
	}

	root, err := filepath.Abs(r.SourceDir)
	if err != nil {
		return path
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}

	return rel
}
