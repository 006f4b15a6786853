package pyast

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/pyconv/pkg/xmltree"
)

// ErrMissingPosition is returned when a node that should already carry
// position attributes does not.
var ErrMissingPosition = errors.New("node has no position attributes")

// NodeError reports a failure while rewriting a single element.
type NodeError struct {
	Err  error
	Tag  string
	Line int
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("normalize <%s> at xml line %d: %v", e.Tag, e.Line, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Stats counts what a normalization produced.
type Stats struct {
	// Elements is the number of input elements stamped with a position.
	Elements int
	// Wrappers counts synthetic interNode, Block, statements, Name and nameDef nodes.
	Wrappers int
	// Identifiers counts identifier leaves.
	Identifiers int
	// Unresolved counts single-line probes that were not found on their line.
	Unresolved int
}

// Nodes is the total number of nodes carrying an ID.
func (s Stats) Nodes() int {
	return s.Elements + s.Wrappers + s.Identifiers
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// cursor walks the live children of parent. Children are re-read from
// the tree at every step, so nodes inserted ahead of next are visited.
type cursor struct {
	parent *xmltree.Node
	next   int
}

// Normalizer rewrites one exported tree in place. It is single-use per
// file: IDs and token bindings restart on every Normalize call.
type Normalizer struct {
	src      *SourceIndex
	resolver *Resolver
	logger   *slog.Logger
	cursors  []cursor
	stats    Stats
	nextID   int
}

// New creates a Normalizer over a source file.
func New(src *SourceIndex, opts ...Option) *Normalizer {
	n := &Normalizer{
		src:      src,
		resolver: NewResolver(src),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Normalize rewrites root using the given source lines.
func Normalize(root *xmltree.Node, lines []string, opts ...Option) (Stats, error) {
	return New(NewSourceIndex(lines), opts...).Normalize(root)
}

// Normalize rewrites the tree rooted at root in place.
//
// The walk is depth-first over the current tree state: after every edit
// the children of the node being walked are read again, so synthetic
// children inserted by a rewrite are visited before later siblings.
func (n *Normalizer) Normalize(root *xmltree.Node) (Stats, error) {
	n.nextID = 0
	n.stats = Stats{}
	n.cursors = n.cursors[:0]
	n.src.Reset()

	if _, err := n.visit(root); err != nil {
		return n.stats, err
	}

	for len(n.cursors) > 0 {
		top := len(n.cursors) - 1
		cur := n.cursors[top]

		if cur.next >= len(cur.parent.Children) {
			n.cursors = n.cursors[:top]

			continue
		}

		child := cur.parent.Children[cur.next]
		n.cursors[top].next++

		// Only text runs detach themselves, and they never push a cursor,
		// so top still addresses this parent.
		detached, err := n.visit(child)
		if err != nil {
			return n.stats, err
		}

		if detached {
			n.cursors[top].next--
		}
	}

	return n.stats, nil
}

// visit processes one node and reports whether it removed itself from its parent.
func (n *Normalizer) visit(node *xmltree.Node) (bool, error) {
	switch {
	case node.IsText():
		return n.visitText(node)
	case !node.IsElement(), isGuard(node.Tag):
		return false, nil
	}

	if err := n.rewrite(node); err != nil {
		var nodeErr *NodeError
		if errors.As(err, &nodeErr) {
			return false, err
		}

		return false, &NodeError{Tag: node.Tag, Line: node.Line, Err: err}
	}

	return false, nil
}

func (n *Normalizer) rewrite(node *xmltree.Node) error {
	if err := n.stamp(node, strings.TrimSpace(node.TextContent())); err != nil {
		return err
	}

	if isDeclaration(node.Tag) {
		if err := n.addNameDef(node); err != nil {
			return err
		}
	}

	if isLeafField(node.Tag) {
		return n.wrapLeafField(node)
	}

	if isStatementList(node.Tag) {
		return n.wrapStatements(node)
	}

	construct := isConstruct(node)

	switch {
	case construct && hasConstructChild(node):
		n.addInterNode(node)
	case construct && len(repeatedTags(node)) > 0:
		n.numberRepeated(node)
	case !construct && !hasConstructChild(node) && len(node.Children) > 1:
		return n.promoteChildren(node)
	default:
		n.descend(node, 0)
	}

	return nil
}

// visitText turns the only, non-blank text of a construct into an
// identifier leaf. Non-blank text that shares its parent is dropped.
func (n *Normalizer) visitText(text *xmltree.Node) (bool, error) {
	if xmltree.IsBlank(text.Text) {
		return false, nil
	}

	parent := text.Parent

	if text.HasSiblings() {
		parent.RemoveChild(text)

		return true, nil
	}

	if !isConstruct(parent) {
		return false, nil
	}

	if err := n.addIdentifier(parent, text.Text); err != nil {
		return false, &NodeError{Tag: parent.Tag, Line: parent.Line, Err: err}
	}

	parent.RemoveChild(text)

	return true, nil
}

// stamp assigns the next ID and the resolved span of probe.
func (n *Normalizer) stamp(node *xmltree.Node, probe string) error {
	span, err := n.resolver.Resolve(node.Line, probe)
	if err != nil {
		return err
	}

	node.SetAttr(AttrID, n.newID())
	setSpan(node, span)
	n.stats.Elements++

	if span.Fallback {
		n.stats.Unresolved++
		n.logger.Debug("token not found on source line", "tag", node.Tag, "line", node.Line, "probe", probe)
	}

	return nil
}

// addNameDef gives a class or function definition a leading
// nameDef/Name/identifier chain for its declared name.
func (n *Normalizer) addNameDef(decl *xmltree.Node) error {
	name, _ := decl.Attr(attrDeclaredName)
	name = strings.TrimSpace(name)

	span, err := n.resolver.Resolve(decl.Line, name)
	if err != nil {
		return err
	}

	nameDef := xmltree.NewElement(TagNameDef)
	nameDef.SetAttr(AttrID, n.newID())
	nameDef.SetAttr(attrDeclaredName, name)
	setSpan(nameDef, span)
	decl.InsertChild(0, nameDef)
	n.stats.Wrappers++

	return n.addIdentifier(n.wrap(nameDef, TagName), name)
}

// wrapLeafField replaces the text of an operator or name field with a
// Name/identifier pair. Its subtree is not walked further.
func (n *Normalizer) wrapLeafField(field *xmltree.Node) error {
	text := field.TextContent()
	field.RemoveChildren()

	return n.addIdentifier(n.wrap(field, TagName), text)
}

// wrapStatements rewrites body/orelse into Block/statements holding the
// existing statements in order.
func (n *Normalizer) wrapStatements(list *xmltree.Node) error {
	if list.Parent == nil {
		return fmt.Errorf("%w: <%s> has no owner", ErrMissingPosition, list.Tag)
	}

	owner, err := spanOf(list.Parent)
	if err != nil {
		return fmt.Errorf("owner <%s>: %w", list.Parent.Tag, err)
	}

	own, err := spanOf(list)
	if err != nil {
		return err
	}

	adjusted := Span{StartLine: owner.StartLine, EndLine: owner.EndLine, StartCol: own.StartCol, EndCol: own.EndCol}

	// A multi-line owner starts its statements below the header line.
	if owner.StartLine < owner.EndLine {
		adjusted.StartLine = min(own.StartLine+1, owner.EndLine)
	}

	setSpan(list, adjusted)

	block := n.wrap(list, TagBlock)
	relocate(list, block, isConstruct)

	statements := n.wrap(block, TagStatements)
	relocate(block, statements, isConstruct)

	// Fields left in the list are walked after the statements.
	n.descend(list, 1)
	n.descend(statements, 0)

	return nil
}

// addInterNode moves every child of a construct under a new interNode,
// promoting relocated fields to constructs.
func (n *Normalizer) addInterNode(node *xmltree.Node) {
	inter := n.wrap(node, TagInterNode)
	relocate(node, inter, (*xmltree.Node).IsElement)

	for _, child := range inter.Children {
		if !isConstruct(child) && !isGuard(child.Tag) {
			promote(child)
		}
	}

	n.descend(inter, 0)
}

// numberRepeated appends the 1-based ordinal among same-named siblings to
// every member of a repeated field group.
func (n *Normalizer) numberRepeated(node *xmltree.Node) {
	repeated := repeatedTags(node)
	ordinals := make(map[string]int, len(repeated))

	for _, child := range node.Children {
		if !child.IsElement() || !repeated[child.Tag] {
			continue
		}

		tag := child.Tag
		ordinals[tag]++
		child.Rename(tag + strconv.Itoa(ordinals[tag]))
	}

	n.descend(node, 0)
}

// promoteChildren turns every element of a multi-valued leaf field into a
// construct holding one identifier leaf with its former text.
func (n *Normalizer) promoteChildren(field *xmltree.Node) error {
	for idx := 0; idx < len(field.Children); {
		child := field.Children[idx]

		if child.IsText() {
			field.RemoveChild(child)

			continue
		}

		promote(child)

		if err := n.stamp(child, strings.TrimSpace(child.TextContent())); err != nil {
			return &NodeError{Tag: child.Tag, Line: child.Line, Err: err}
		}

		text := child.TextContent()
		child.RemoveChildren()

		if err := n.addIdentifier(child, text); err != nil {
			return &NodeError{Tag: child.Tag, Line: child.Line, Err: err}
		}

		idx++
	}

	return nil
}

// wrap inserts a synthetic first child that inherits parent's position.
func (n *Normalizer) wrap(parent *xmltree.Node, tag string) *xmltree.Node {
	wrapper := xmltree.NewElement(tag)
	wrapper.SetAttr(AttrID, n.newID())
	copyPosition(parent, wrapper)
	parent.InsertChild(0, wrapper)
	n.stats.Wrappers++

	return wrapper
}

// addIdentifier appends an identifier leaf to host and binds its text to
// host's line, so later lookups of the same token move past it.
func (n *Normalizer) addIdentifier(host *xmltree.Node, text string) error {
	text = strings.TrimSpace(text)

	line, err := lineOf(host)
	if err != nil {
		return err
	}

	n.src.Bind(line, text)

	leaf := xmltree.NewElement(TagIdentifier)
	leaf.SetAttr(AttrID, n.newID())
	copyPosition(host, leaf)
	leaf.AppendChild(xmltree.NewText(text))
	host.AppendChild(leaf)
	n.stats.Identifiers++

	return nil
}

func (n *Normalizer) descend(node *xmltree.Node, from int) {
	n.cursors = append(n.cursors, cursor{parent: node, next: from})
}

func (n *Normalizer) newID() string {
	id := strconv.Itoa(n.nextID)
	n.nextID++

	return id
}

// relocate moves the children of from accepted by movable under to,
// keeping their order. Text runs of from are dropped; other children stay.
func relocate(from, to *xmltree.Node, movable func(*xmltree.Node) bool) {
	for idx := 0; idx < len(from.Children); {
		child := from.Children[idx]

		switch {
		case child == to:
			idx++
		case child.IsText():
			from.RemoveChild(child)
		case movable(child):
			to.AppendChild(child)
		default:
			idx++
		}
	}
}

//nolint:gochecknoglobals // fixed attribute order.
var positionAttrs = [...]string{AttrLine, AttrEndLine, AttrCol, AttrEndCol}

func setSpan(node *xmltree.Node, span Span) {
	if span.EndLine < span.StartLine {
		span.EndLine = span.StartLine
	}

	if span.EndLine == span.StartLine && span.EndCol < span.StartCol {
		span.EndCol = span.StartCol
	}

	node.SetAttr(AttrLine, strconv.Itoa(span.StartLine))
	node.SetAttr(AttrEndLine, strconv.Itoa(span.EndLine))
	node.SetAttr(AttrCol, strconv.Itoa(span.StartCol))
	node.SetAttr(AttrEndCol, strconv.Itoa(span.EndCol))
}

func copyPosition(from, to *xmltree.Node) {
	for _, name := range positionAttrs {
		if value, ok := from.Attr(name); ok {
			to.SetAttr(name, value)
		}
	}
}

func spanOf(node *xmltree.Node) (Span, error) {
	var values [len(positionAttrs)]int

	for idx, name := range positionAttrs {
		raw, ok := node.Attr(name)
		if !ok {
			return Span{}, fmt.Errorf("%w: <%s> lacks %s", ErrMissingPosition, node.Tag, name)
		}

		value, err := strconv.Atoi(raw)
		if err != nil {
			return Span{}, fmt.Errorf("%w: <%s> %s=%q", ErrMissingPosition, node.Tag, name, raw)
		}

		values[idx] = value
	}

	return Span{StartLine: values[0], EndLine: values[1], StartCol: values[2], EndCol: values[3]}, nil
}

func lineOf(node *xmltree.Node) (int, error) {
	raw, ok := node.Attr(AttrLine)
	if !ok {
		return 0, fmt.Errorf("%w: <%s> lacks %s", ErrMissingPosition, node.Tag, AttrLine)
	}

	line, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: <%s> %s=%q", ErrMissingPosition, node.Tag, AttrLine, raw)
	}

	return line, nil
}
