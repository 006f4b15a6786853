package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pyconv/pkg/convert"
	"github.com/Sumatoshi-tech/pyconv/pkg/observability"
	"github.com/Sumatoshi-tech/pyconv/pkg/pyast"
)

// diffArgCount is the number of arguments the diff command takes.
const diffArgCount = 3

func diffCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff XML_FILE PY_FILE RESULT_XML",
		Short: "Convert one export in memory and compare it with an expected result",
		Long: `Normalize XML_FILE against PY_FILE without writing anything and compare the
rendering with RESULT_XML line by line. Exits 0 when both are identical and
1 when they differ, printing the differing lines.`,
		Args:          usageArgs(diffArgCount),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, global, args[0], args[1], args[2])
		},
	}
}

func runDiff(cmd *cobra.Command, global *globalOptions, exportPath, sourcePath, expectedPath string) error {
	cfg, err := loadConfig(cmd, global, nil)
	if err != nil {
		return err
	}

	providers, err := initObservability(cmd, cfg, observability.ModeDiff)
	if err != nil {
		return err
	}

	defer func() { _ = providers.Shutdown(cmd.Context()) }()

	export, err := os.ReadFile(exportPath)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	expected, err := os.ReadFile(expectedPath)
	if err != nil {
		return fmt.Errorf("read expected result: %w", err)
	}

	absExport, err := filepath.Abs(exportPath)
	if err != nil {
		return fmt.Errorf("resolve export path: %w", err)
	}

	doc, _, err := convert.Transform(export, source, convert.CompanionPath(absExport),
		cfg.Convert.WrapSourceFile, pyast.WithLogger(providers.Logger))
	if err != nil {
		return err
	}

	indent := ""
	if cfg.Output.Pretty {
		indent = cfg.Output.Indent
	}

	actual, err := convert.Render(doc, indent)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if bytes.Equal(normalizeNewlines(expected), normalizeNewlines(actual)) {
		color.New(color.FgGreen).Fprintf(out, "%s matches %s\n", exportPath, expectedPath)

		return nil
	}

	printLineDiff(out, string(normalizeNewlines(expected)), string(normalizeNewlines(actual)))

	return errDiffers
}

// printLineDiff writes a unified-style listing of the lines that differ
// between expected and actual.
func printLineDiff(w io.Writer, expected, actual string) {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToChars(expected, actual)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(src, dst, false), lines)

	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)

	for _, d := range diffs {
		for _, line := range splitDiffLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				removed.Fprintf(w, "-%s\n", line)
			case diffmatchpatch.DiffInsert:
				added.Fprintf(w, "+%s\n", line)
			case diffmatchpatch.DiffEqual:
			}
		}
	}
}

func splitDiffLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}

	return strings.Split(text, "\n")
}

func normalizeNewlines(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	return bytes.TrimRight(data, "\n")
}
