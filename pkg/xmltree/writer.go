package xmltree

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// Write serializes the tree rooted at n, preceded by the XML declaration.
// Empty text runs are skipped.
func Write(w io.Writer, n *Node) error {
	buffered := bufio.NewWriter(w)

	if _, err := buffered.WriteString(xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}

	enc := xml.NewEncoder(buffered)

	if err := encodeNode(enc, n); err != nil {
		return err
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush xml encoder: %w", err)
	}

	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flush xml output: %w", err)
	}

	return nil
}

// Marshal is Write into a byte slice.
func Marshal(n *Node) ([]byte, error) {
	var buf bytes.Buffer

	if err := Write(&buf, n); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// WriteFile serializes the tree to path and returns the number of bytes written.
func WriteFile(path string, n *Node) (int, error) {
	data, err := Marshal(n)
	if err != nil {
		return 0, err
	}

	//nolint:gosec // output files are meant to be world-readable.
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}

	return len(data), nil
}

func encodeNode(enc *xml.Encoder, n *Node) error {
	switch n.Kind {
	case KindDocument:
		for _, child := range n.Children {
			if err := encodeNode(enc, child); err != nil {
				return err
			}
		}
	case KindText:
		if n.Text == "" {
			return nil
		}

		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return fmt.Errorf("encode text: %w", err)
		}
	case KindElement:
		start := xml.StartElement{Name: xml.Name{Local: n.Tag}}
		for _, attr := range n.Attrs {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attr.Name}, Value: attr.Value})
		}

		if err := enc.EncodeToken(start); err != nil {
			return fmt.Errorf("encode <%s>: %w", n.Tag, err)
		}

		for _, child := range n.Children {
			if err := encodeNode(enc, child); err != nil {
				return err
			}
		}

		if err := enc.EncodeToken(start.End()); err != nil {
			return fmt.Errorf("encode </%s>: %w", n.Tag, err)
		}
	}

	return nil
}
