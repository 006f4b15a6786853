// Package xmltree provides a mutable XML document model whose elements
// remember the line and column on which their start tag ended.
//
// The model is deliberately small: documents, elements and text runs.
// Comments and processing instructions are dropped on read.
package xmltree

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies what a Node holds.
type Kind uint8

// Node kinds.
const (
	KindDocument Kind = iota
	KindElement
	KindText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindElement:
		return "element"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Attr is a single attribute. Attribute order is kept as inserted.
type Attr struct {
	Name  string
	Value string
}

// Node is an element, a text run or the document itself.
//
// Line and Col are 1-based and refer to the position right after the
// start tag of an element in the XML input. Nodes created by code carry
// zero positions.
type Node struct {
	Parent   *Node
	Tag      string
	Text     string
	Attrs    []Attr
	Children []*Node
	Line     int
	Col      int
	Kind     Kind
}

// NewDocument creates an empty document node.
func NewDocument() *Node {
	return &Node{Kind: KindDocument}
}

// NewElement creates a detached element.
func NewElement(tag string) *Node {
	return &Node{Kind: KindElement, Tag: tag}
}

// NewText creates a detached text run.
func NewText(text string) *Node {
	return &Node{Kind: KindText, Text: text}
}

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool {
	return n != nil && n.Kind == KindElement
}

// IsText reports whether n is a text run.
func (n *Node) IsText() bool {
	return n != nil && n.Kind == KindText
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, attr := range n.Attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}

	return "", false
}

// SetAttr sets an attribute, keeping its position when it already exists.
func (n *Node) SetAttr(name, value string) {
	for idx := range n.Attrs {
		if n.Attrs[idx].Name == name {
			n.Attrs[idx].Value = value

			return
		}
	}

	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Rename changes the element tag in place.
func (n *Node) Rename(tag string) {
	n.Tag = tag
}

// TextContent concatenates the text of every descendant text run in
// document order.
func (n *Node) TextContent() string {
	if n.IsText() {
		return n.Text
	}

	var sb strings.Builder

	n.appendText(&sb)

	return sb.String()
}

func (n *Node) appendText(sb *strings.Builder) {
	for _, child := range n.Children {
		if child.IsText() {
			sb.WriteString(child.Text)

			continue
		}

		child.appendText(sb)
	}
}

// IndexOf returns the position of child among n's children, or -1.
func (n *Node) IndexOf(child *Node) int {
	for idx, candidate := range n.Children {
		if candidate == child {
			return idx
		}
	}

	return -1
}

// InsertChild inserts child at idx, detaching it from any previous parent.
// An idx past the end appends.
func (n *Node) InsertChild(idx int, child *Node) {
	child.Detach()

	if idx < 0 {
		idx = 0
	}

	if idx >= len(n.Children) {
		n.Children = append(n.Children, child)
	} else {
		n.Children = append(n.Children, nil)
		copy(n.Children[idx+1:], n.Children[idx:])
		n.Children[idx] = child
	}

	child.Parent = n
}

// AppendChild adds child as the last child, detaching it from any previous parent.
func (n *Node) AppendChild(child *Node) {
	n.InsertChild(len(n.Children), child)
}

// RemoveChild removes child from n. It returns false when child is not a child of n.
func (n *Node) RemoveChild(child *Node) bool {
	idx := n.IndexOf(child)
	if idx < 0 {
		return false
	}

	n.Children = append(n.Children[:idx], n.Children[idx+1:]...)
	child.Parent = nil

	return true
}

// Detach removes n from its parent, if any.
func (n *Node) Detach() {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// RemoveChildren drops every child of n.
func (n *Node) RemoveChildren() {
	for _, child := range n.Children {
		child.Parent = nil
	}

	n.Children = nil
}

// HasSiblings reports whether n shares its parent with any other node.
func (n *Node) HasSiblings() bool {
	return n.Parent != nil && len(n.Parent.Children) > 1
}

// Elements returns the element children of n.
func (n *Node) Elements() []*Node {
	out := make([]*Node, 0, len(n.Children))

	for _, child := range n.Children {
		if child.IsElement() {
			out = append(out, child)
		}
	}

	return out
}

// DocumentElement returns the first element child of a document.
func (n *Node) DocumentElement() *Node {
	for _, child := range n.Children {
		if child.IsElement() {
			return child
		}
	}

	return nil
}

// Find returns the first element in pre-order (n included) whose tag is tag.
func (n *Node) Find(tag string) *Node {
	if n.IsElement() && n.Tag == tag {
		return n
	}

	for _, child := range n.Children {
		if found := child.Find(tag); found != nil {
			return found
		}
	}

	return nil
}

// Walk visits n and its descendants in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)

	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// IsBlank reports whether a text run holds only whitespace.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Capitalize upper-cases the first rune of tag.
func Capitalize(tag string) string {
	first, size := utf8.DecodeRuneInString(tag)
	if first == utf8.RuneError {
		return tag
	}

	return string(unicode.ToUpper(first)) + tag[size:]
}
