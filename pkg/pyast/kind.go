// Package pyast rewrites an exported Python AST document into the canonical
// construct/identifier tree and stamps every node with its source span.
package pyast

import (
	"unicode"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/pyconv/pkg/xmltree"
)

// Position attribute names written on every normalized node.
const (
	AttrID      = "ID"
	AttrLine    = "LineNr"
	AttrEndLine = "EndLineNr"
	AttrCol     = "ColNr"
	AttrEndCol  = "EndColNr"
)

// Tags produced or recognized by the normalizer.
const (
	TagModule     = "Module"
	TagNameDef    = "nameDef"
	TagIdentifier = "identifier"
	TagInterNode  = "interNode"
	TagBlock      = "Block"
	TagStatements = "statements"
	TagName       = "Name"

	attrDeclaredName = "name"
)

// Category tells a syntax construct apart from a schema field holder.
type Category uint8

// Categories.
const (
	// CategoryField is a lowercase-led tag: a field or container of the export schema.
	CategoryField Category = iota
	// CategoryConstruct is an uppercase-led tag: a real Python syntax construct.
	CategoryConstruct
)

// String returns the category name.
func (c Category) String() string {
	if c == CategoryConstruct {
		return "construct"
	}

	return "field"
}

// Classify derives the category of an element from its current tag.
// It is recomputed on every call so renames are always reflected.
// Text runs and documents are fields.
func Classify(n *xmltree.Node) Category {
	if !n.IsElement() {
		return CategoryField
	}

	first, _ := utf8.DecodeRuneInString(n.Tag)
	if first != utf8.RuneError && unicode.IsUpper(first) {
		return CategoryConstruct
	}

	return CategoryField
}

func isConstruct(n *xmltree.Node) bool {
	return Classify(n) == CategoryConstruct
}

// promote turns a field into a construct by capitalizing its tag.
func promote(n *xmltree.Node) {
	n.Rename(xmltree.Capitalize(n.Tag))
}

func isGuard(tag string) bool {
	return tag == TagNameDef || tag == TagIdentifier
}

func isDeclaration(tag string) bool {
	switch tag {
	case "ClassDef", "FunctionDef", "AsyncFunctionDef":
		return true
	default:
		return false
	}
}

// isLeafField matches fields whose text is a single operator or name:
// comparison operators, attribute names and bare names.
func isLeafField(tag string) bool {
	switch tag {
	case "cmpop", "attr", "name":
		return true
	default:
		return false
	}
}

func isStatementList(tag string) bool {
	return tag == "body" || tag == "orelse"
}

func hasConstructChild(n *xmltree.Node) bool {
	for _, child := range n.Children {
		if isConstruct(child) {
			return true
		}
	}

	return false
}

// repeatedTags returns the element tags that occur at least twice among
// n's children.
func repeatedTags(n *xmltree.Node) map[string]bool {
	counts := make(map[string]int)

	for _, child := range n.Children {
		if child.IsElement() {
			counts[child.Tag]++
		}
	}

	repeated := make(map[string]bool)

	for tag, count := range counts {
		if count > 1 {
			repeated[tag] = true
		}
	}

	return repeated
}

// FindRoot returns the element normalization starts from: the first
// Module element in document order, or the document element.
func FindRoot(doc *xmltree.Node) *xmltree.Node {
	if module := doc.Find(TagModule); module != nil {
		return module
	}

	if doc.Kind == xmltree.KindDocument {
		return doc.DocumentElement()
	}

	return doc
}
