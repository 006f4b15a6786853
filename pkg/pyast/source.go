package pyast

import "strings"

// SourceIndex holds a Python file as ordered lines together with the
// tokens already bound to identifier leaves on each line. Repeated
// tokens on a line are told apart by how many were bound before.
//
// A SourceIndex belongs to a single file conversion and is not safe for
// concurrent use.
type SourceIndex struct {
	bound map[int][]string
	lines []string
}

// NewSourceIndex creates an index over lines, where lines[0] is line 1.
func NewSourceIndex(lines []string) *SourceIndex {
	return &SourceIndex{lines: lines, bound: make(map[int][]string)}
}

// SplitLines splits source text into lines without terminators.
// "\n", "\r\n" and "\r" all end a line; a final terminator does not
// start an extra empty line.
func SplitLines(src []byte) []string {
	text := strings.ReplaceAll(string(src), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if text == "" {
		return nil
	}

	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// LineCount returns the number of source lines.
func (s *SourceIndex) LineCount() int {
	return len(s.lines)
}

// Line returns the 1-based source line.
func (s *SourceIndex) Line(line int) (string, bool) {
	if line < 1 || line > len(s.lines) {
		return "", false
	}

	return s.lines[line-1], true
}

// Bind records that text was consumed by an identifier leaf on line.
func (s *SourceIndex) Bind(line int, text string) {
	s.bound[line] = append(s.bound[line], text)
}

// Bound returns the texts bound on line, in binding order.
func (s *SourceIndex) Bound(line int) []string {
	return append([]string(nil), s.bound[line]...)
}

// Occurrences counts how many times text was bound on line.
func (s *SourceIndex) Occurrences(line int, text string) int {
	count := 0

	for _, bound := range s.bound[line] {
		if bound == text {
			count++
		}
	}

	return count
}

// Reset forgets every binding, keeping the lines.
func (s *SourceIndex) Reset() {
	s.bound = make(map[int][]string)
}
