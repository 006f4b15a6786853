package pyast

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrLineOutOfRange is returned when a node points at a line the source file does not have.
var ErrLineOutOfRange = errors.New("line outside source file")

// Span is a resolved source range. Lines and columns are 1-based and inclusive.
type Span struct {
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
	// Fallback is set when a non-empty single-line probe was not found
	// on its line and StartCol defaulted to 1.
	Fallback bool
}

// Tokens located by their first occurrence on the line.
//
//nolint:gochecknoglobals // read-only lookup table.
var compoundTokens = map[string]bool{
	"+=": true, "-=": true, "*=": true, "/=": true,
	">=": true, "<=": true, "==": true, "!=": true,
	"%": true, ">": true, "<": true, "//": true,
}

// Arithmetic operators, disambiguated from compound forms that contain them.
//
//nolint:gochecknoglobals // read-only lookup table.
var arithmeticOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "**": true,
}

// Resolver computes the exact span of a token on a source line. Tokens
// already bound on the same line shift the search to the next occurrence.
type Resolver struct {
	src *SourceIndex
}

// NewResolver creates a resolver over src.
func NewResolver(src *SourceIndex) *Resolver {
	return &Resolver{src: src}
}

// Resolve locates probe on the given source line.
//
// EndLine is line plus the number of newlines in probe. For a multi-line
// probe EndCol is the length of the end line; otherwise it is the last
// column of the trimmed probe, never before StartCol.
func (r *Resolver) Resolve(line int, probe string) (Span, error) {
	text, ok := r.src.Line(line)
	if !ok {
		return Span{}, fmt.Errorf("%w: line %d of %d", ErrLineOutOfRange, line, r.src.LineCount())
	}

	span := Span{
		StartLine: line,
		EndLine:   line + strings.Count(probe, "\n"),
		StartCol:  1,
	}

	if col, found := r.column(line, []rune(text), probe); found {
		span.StartCol = col
	} else if probe != "" && span.EndLine == line {
		span.Fallback = true
	}

	if span.EndLine > line {
		endText, ok := r.src.Line(span.EndLine)
		if !ok {
			endText = text
		}

		// An empty end line yields EndCol 0.
		span.EndCol = utf8.RuneCountInString(endText)

		return span, nil
	}

	span.EndCol = max(span.StartCol+utf8.RuneCountInString(strings.TrimSpace(probe))-1, span.StartCol)

	return span, nil
}

func (r *Resolver) column(line int, text []rune, probe string) (int, bool) {
	needle := []rune(probe)
	if len(needle) == 0 || len(needle) > len(text) {
		return 0, false
	}

	// Compound tokens are assumed unique on their line.
	if compoundTokens[strings.TrimSpace(probe)] {
		idx := indexRunes(text, needle, 0)

		return idx + 1, idx >= 0
	}

	accept := identifierBoundary
	if arithmeticOperators[probe] {
		accept = operatorBoundary(probe)
	}

	idx := nthMatch(text, needle, r.src.Occurrences(line, probe), accept)

	return idx + 1, idx >= 0
}

type matchFilter func(text []rune, at, width int) bool

// nthMatch returns the index of the occurrence of needle that follows
// skip accepted occurrences, or -1.
func nthMatch(text, needle []rune, skip int, accept matchFilter) int {
	seen := 0

	for at := indexRunes(text, needle, 0); at >= 0; at = indexRunes(text, needle, at+1) {
		if !accept(text, at, len(needle)) {
			continue
		}

		if seen == skip {
			return at
		}

		seen++
	}

	return -1
}

// operatorBoundary rejects an operator that is the first half of a
// compound assignment, and a '*' that belongs to '**'. Only '*' has a
// doubled form rule: a '/' inside '//' is accepted.
func operatorBoundary(op string) matchFilter {
	return func(text []rune, at, width int) bool {
		after := at + width
		if after < len(text) && text[after] == '=' {
			return false
		}

		if op != "*" {
			return true
		}

		if after < len(text) && text[after] == '*' {
			return false
		}

		return at == 0 || text[at-1] != '*'
	}
}

// identifierBoundary rejects an occurrence glued to a neighboring name:
// a letter or '_' before it, or a letter, digit or '_' after it. "x"
// matches neither inside "max" nor inside "x_1", but does after "2".
func identifierBoundary(text []rune, at, width int) bool {
	if at > 0 && isWordRune(text[at]) && isNameRune(text[at-1]) {
		return false
	}

	last := at + width - 1

	return last+1 >= len(text) || !isWordRune(text[last]) || !isWordRune(text[last+1])
}

func isNameRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func indexRunes(text, needle []rune, from int) int {
	for at := from; at+len(needle) <= len(text); at++ {
		if runesEqualAt(text, needle, at) {
			return at
		}
	}

	return -1
}

func runesEqualAt(text, needle []rune, at int) bool {
	for idx, r := range needle {
		if text[at+idx] != r {
			return false
		}
	}

	return true
}
