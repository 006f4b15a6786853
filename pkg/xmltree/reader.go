package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for reading.
var (
	ErrMalformed = errors.New("malformed xml")
	ErrNoRoot    = errors.New("xml document has no root element")
)

// Parse reads an XML document into a mutable tree. Each element records
// the line and column at which its start tag ended, which is the position
// a SAX locator reports for a start-element event.
func Parse(data []byte) (*Node, error) {
	return Read(bytes.NewReader(data))
}

// Read is Parse over a reader.
func Read(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)
	decoder.Entity = xml.HTMLEntity

	doc := NewDocument()
	stack := []*Node{doc}

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		top := stack[len(stack)-1]

		switch token := tok.(type) {
		case xml.StartElement:
			line, col := decoder.InputPos()

			el := &Node{Kind: KindElement, Tag: token.Name.Local, Line: line, Col: col}
			for _, attr := range token.Attr {
				if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
					continue
				}

				el.Attrs = append(el.Attrs, Attr{Name: attr.Name.Local, Value: attr.Value})
			}

			top.AppendChild(el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if top.Kind == KindDocument {
				continue
			}

			appendText(top, string(token))
		}
	}

	if doc.DocumentElement() == nil {
		return nil, ErrNoRoot
	}

	return doc, nil
}

// appendText merges adjacent character data (CDATA sections arrive as
// separate tokens) into a single text run.
func appendText(parent *Node, text string) {
	if count := len(parent.Children); count > 0 {
		if last := parent.Children[count-1]; last.IsText() {
			last.Text += text

			return
		}
	}

	parent.AppendChild(NewText(text))
}
