package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultIndent is the indentation used when none is configured.
const DefaultIndent = "  "

// Format re-indents a serialized document for readability. Whitespace-only
// text between elements is dropped; elements holding only text stay on one
// line. Element, attribute and text content are otherwise unchanged.
func Format(data []byte, indent string) ([]byte, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = xml.HTMLEntity

	var out bytes.Buffer

	out.WriteString(xml.Header)

	enc := xml.NewEncoder(&out)
	enc.Indent("", indent)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		formatted, keep := reformatToken(tok)
		if !keep {
			continue
		}

		if err := enc.EncodeToken(formatted); err != nil {
			return nil, fmt.Errorf("format token: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flush formatted xml: %w", err)
	}

	out.WriteByte('\n')

	return out.Bytes(), nil
}

// FormatFile reformats the document at path in place and returns the new size.
func FormatFile(path, indent string) (int, error) {
	//nolint:gosec // path is produced by the converter, not user input.
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	formatted, err := Format(data, indent)
	if err != nil {
		return 0, fmt.Errorf("format %s: %w", path, err)
	}

	//nolint:gosec // output files are meant to be world-readable.
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}

	return len(formatted), nil
}

func reformatToken(tok xml.Token) (xml.Token, bool) {
	switch token := tok.(type) {
	case xml.ProcInst:
		if token.Target == "xml" {
			return nil, false
		}

		return token.Copy(), true
	case xml.CharData:
		if IsBlank(string(token)) {
			return nil, false
		}

		return token.Copy(), true
	case xml.StartElement:
		start := xml.StartElement{Name: xml.Name{Local: token.Name.Local}}

		for _, attr := range token.Attr {
			if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
				continue
			}

			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attr.Name.Local}, Value: attr.Value})
		}

		return start, true
	case xml.EndElement:
		return xml.EndElement{Name: xml.Name{Local: token.Name.Local}}, true
	case xml.Comment:
		return token.Copy(), true
	default:
		return nil, false
	}
}
