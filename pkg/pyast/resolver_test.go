package pyast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyconv/pkg/pyast"
)

func TestResolve_RepeatedTokensFollowBindings(t *testing.T) {
	t.Parallel()

	src := pyast.NewSourceIndex([]string{"import os", "", "x = x + 1"})
	resolver := pyast.NewResolver(src)

	first, err := resolver.Resolve(3, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, first.StartCol)
	assert.Equal(t, 1, first.EndCol)

	src.Bind(3, "x")

	second, err := resolver.Resolve(3, "x")
	require.NoError(t, err)
	assert.Equal(t, 5, second.StartCol)
	assert.Equal(t, 5, second.EndCol)

	plus, err := resolver.Resolve(3, "+")
	require.NoError(t, err)
	assert.Equal(t, 7, plus.StartCol)
	assert.Equal(t, 7, plus.EndCol)
	assert.Equal(t, 3, plus.StartLine)
	assert.Equal(t, 3, plus.EndLine)
}

func TestResolve_Operators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		probe    string
		col      int
		endCol   int
		fallback bool
	}{
		{name: "compound assignment", line: "y += 1", probe: "+=", col: 3, endCol: 4},
		{name: "plus skips compound form", line: "y += y + 1", probe: "+", col: 8, endCol: 8},
		{name: "star inside power", line: "z = x**2", probe: "*", col: 1, endCol: 1, fallback: true},
		{name: "power", line: "z = x**2", probe: "**", col: 6, endCol: 7},
		{name: "star after power", line: "z = x**2 * y", probe: "*", col: 10, endCol: 10},
		{name: "slash matches inside floor division", line: "q = a // b / c", probe: "/", col: 7, endCol: 7},
		{name: "floor division", line: "q = a // b", probe: "//", col: 7, endCol: 8},
		{name: "comparison", line: "if a <= b:", probe: "<=", col: 6, endCol: 7},
		{name: "minus skips compound form", line: "n -= n - 1", probe: "-", col: 8, endCol: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver := pyast.NewResolver(pyast.NewSourceIndex([]string{tt.line}))

			span, err := resolver.Resolve(1, tt.probe)
			require.NoError(t, err)
			assert.Equal(t, tt.col, span.StartCol)
			assert.Equal(t, tt.endCol, span.EndCol)
			assert.Equal(t, tt.fallback, span.Fallback)
		})
	}
}

func TestResolve_IdentifierBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		line  string
		probe string
		col   int
	}{
		{name: "inside longer name", line: "m = max(x)", probe: "x", col: 9},
		{name: "underscore suffix", line: "x_1 = x", probe: "x", col: 7},
		{name: "digit suffix", line: "a1 = a", probe: "a", col: 6},
		{name: "digit prefix", line: "x1 = 2x", probe: "x", col: 7},
		{name: "number literal", line: "v = 10 + 1", probe: "1", col: 10},
		{name: "string literal", line: `s = "ab" + ab`, probe: `"ab"`, col: 5},
		{name: "unicode columns", line: "é = é2 + é", probe: "é", col: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver := pyast.NewResolver(pyast.NewSourceIndex([]string{tt.line}))

			span, err := resolver.Resolve(1, tt.probe)
			require.NoError(t, err)
			assert.Equal(t, tt.col, span.StartCol)
			assert.False(t, span.Fallback)
		})
	}
}

func TestResolve_MultiLineProbe(t *testing.T) {
	t.Parallel()

	src := pyast.NewSourceIndex([]string{"def f(a):", "    return a"})
	resolver := pyast.NewResolver(src)

	span, err := resolver.Resolve(1, "a\na")
	require.NoError(t, err)
	assert.Equal(t, 1, span.StartLine)
	assert.Equal(t, 2, span.EndLine)
	assert.Equal(t, 1, span.StartCol)
	assert.Equal(t, 12, span.EndCol)
	assert.False(t, span.Fallback)

	// The end line falls back to the start line when it overruns the file.
	span, err = resolver.Resolve(2, "a\n\n\na")
	require.NoError(t, err)
	assert.Equal(t, 5, span.EndLine)
	assert.Equal(t, 12, span.EndCol)

	// An empty end line has no last column.
	span, err = pyast.NewResolver(pyast.NewSourceIndex([]string{"s = (a", ""})).Resolve(1, "a\n")
	require.NoError(t, err)
	assert.Equal(t, 2, span.EndLine)
	assert.Equal(t, 0, span.EndCol)
}

func TestResolve_EmptyAndMissing(t *testing.T) {
	t.Parallel()

	resolver := pyast.NewResolver(pyast.NewSourceIndex([]string{"pass"}))

	span, err := resolver.Resolve(1, "")
	require.NoError(t, err)
	assert.Equal(t, pyast.Span{StartLine: 1, EndLine: 1, StartCol: 1, EndCol: 1}, span)

	span, err = resolver.Resolve(1, "nothing")
	require.NoError(t, err)
	assert.True(t, span.Fallback)
	assert.Equal(t, 1, span.StartCol)
	assert.Equal(t, 7, span.EndCol)

	_, err = resolver.Resolve(2, "pass")
	require.ErrorIs(t, err, pyast.ErrLineOutOfRange)

	_, err = resolver.Resolve(0, "pass")
	require.ErrorIs(t, err, pyast.ErrLineOutOfRange)
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	assert.Nil(t, pyast.SplitLines(nil))
	assert.Equal(t, []string{"a", "b"}, pyast.SplitLines([]byte("a\nb\n")))
	assert.Equal(t, []string{"a", "", "b"}, pyast.SplitLines([]byte("a\r\n\r\nb")))
	assert.Equal(t, []string{"a", "b"}, pyast.SplitLines([]byte("a\rb")))
	assert.Equal(t, []string{""}, pyast.SplitLines([]byte("\n")))
}

func TestSourceIndex_Bindings(t *testing.T) {
	t.Parallel()

	src := pyast.NewSourceIndex([]string{"x = x"})
	src.Bind(1, "x")
	src.Bind(1, "=")
	src.Bind(1, "x")

	assert.Equal(t, []string{"x", "=", "x"}, src.Bound(1))
	assert.Equal(t, 2, src.Occurrences(1, "x"))
	assert.Zero(t, src.Occurrences(2, "x"))

	src.Reset()
	assert.Empty(t, src.Bound(1))
	assert.Equal(t, 1, src.LineCount())
}
