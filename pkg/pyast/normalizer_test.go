package pyast_test

import (
	"bytes"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyconv/pkg/pyast"
	"github.com/Sumatoshi-tech/pyconv/pkg/xmltree"
)

const (
	assignSource = "x = x + 1"
	assignExport = `<Module><body><Assign><targets><Name>x</Name></targets>` +
		`<value><BinOp><left><Name>x</Name></left><op><Add>+</Add></op>` +
		`<right><Num>1</Num></right></BinOp></value></Assign></body></Module>`

	funcSource = "def f(a):\n    return a\n"
	funcExport = `<Module><body><FunctionDef name="f"><args><arg>a</arg></args><body>
<Return><value><Name>a</Name></value></Return></body></FunctionDef></body></Module>`
)

func normalize(t *testing.T, export, source string) (*xmltree.Node, pyast.Stats) {
	t.Helper()

	doc, err := xmltree.Parse([]byte(export))
	require.NoError(t, err)

	root := pyast.FindRoot(doc)
	stats, err := pyast.Normalize(root, pyast.SplitLines([]byte(source)))
	require.NoError(t, err)

	return root, stats
}

func attrInt(t *testing.T, n *xmltree.Node, name string) int {
	t.Helper()

	raw, ok := n.Attr(name)
	require.True(t, ok, "<%s> lacks %s", n.Tag, name)

	value, err := strconv.Atoi(raw)
	require.NoError(t, err)

	return value
}

func collect(root *xmltree.Node, tag string) []*xmltree.Node {
	var found []*xmltree.Node

	root.Walk(func(n *xmltree.Node) {
		if n.IsElement() && n.Tag == tag {
			found = append(found, n)
		}
	})

	return found
}

func TestNormalize_BindsRepeatedIdentifiers(t *testing.T) {
	t.Parallel()

	root, stats := normalize(t, assignExport, assignSource)

	leaves := collect(root, pyast.TagIdentifier)
	require.Len(t, leaves, 4)

	want := []struct {
		text string
		col  int
	}{{"x", 1}, {"x", 5}, {"+", 7}, {"1", 9}}

	for idx, leaf := range leaves {
		assert.Equal(t, want[idx].text, leaf.TextContent())
		assert.Equal(t, want[idx].col, attrInt(t, leaf, pyast.AttrCol), want[idx].text)
		assert.Equal(t, want[idx].col, attrInt(t, leaf, pyast.AttrEndCol), want[idx].text)
		assert.Equal(t, 1, attrInt(t, leaf, pyast.AttrLine))
	}

	assert.Equal(t, 4, stats.Identifiers)
	assert.Positive(t, stats.Unresolved)
}

func TestNormalize_DeclarationGetsNameDef(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t, "<Module><body><ClassDef name=\"Foo\"><body>\n<Pass>pass</Pass></body></ClassDef></body></Module>",
		"class Foo:\n    pass\n")

	class := root.Find("ClassDef")
	require.NotNil(t, class)

	nameDef := class.Children[0]
	assert.Equal(t, pyast.TagNameDef, nameDef.Tag)

	declared, _ := nameDef.Attr("name")
	assert.Equal(t, "Foo", declared)
	assert.Equal(t, 1, attrInt(t, nameDef, pyast.AttrLine))
	assert.Equal(t, 7, attrInt(t, nameDef, pyast.AttrCol))
	assert.Equal(t, 9, attrInt(t, nameDef, pyast.AttrEndCol))

	require.Len(t, nameDef.Children, 1)
	name := nameDef.Children[0]
	assert.Equal(t, pyast.TagName, name.Tag)

	require.Len(t, name.Children, 1)
	leaf := name.Children[0]
	assert.Equal(t, pyast.TagIdentifier, leaf.Tag)
	assert.Equal(t, "Foo", leaf.TextContent())
	assert.Equal(t, 7, attrInt(t, leaf, pyast.AttrCol))

	pass := root.Find("Pass")
	require.NotNil(t, pass)
	assert.Equal(t, 2, attrInt(t, pass, pyast.AttrLine))
	assert.Equal(t, 5, attrInt(t, pass, pyast.AttrCol))
	assert.Equal(t, 8, attrInt(t, pass, pyast.AttrEndCol))
}

func TestNormalize_NumbersRepeatedFields(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		`<Module><Assign><target>a</target><value>0</value><target>b</target><target>c</target></Assign></Module>`,
		"a = b = c = 0")

	assign := root.Find("Assign")
	require.NotNil(t, assign)

	var tags []string
	for _, child := range assign.Elements() {
		tags = append(tags, child.Tag)
	}

	assert.Equal(t, []string{"target1", "value", "target2", "target3"}, tags)

	for idx, col := range []int{1, 5, 9} {
		target := assign.Find("target" + strconv.Itoa(idx+1))
		require.NotNil(t, target)
		assert.Equal(t, col, attrInt(t, target, pyast.AttrCol))
		assert.Contains(t, target.Attrs, xmltree.Attr{Name: pyast.AttrLine, Value: "1"})
	}
}

func TestNormalize_StatementListBecomesBlock(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t, funcExport, funcSource)

	fn := root.Find("FunctionDef")
	require.NotNil(t, fn)
	assert.Equal(t, 2, attrInt(t, fn, pyast.AttrEndLine))

	var body *xmltree.Node
	for _, child := range fn.Elements() {
		if child.Tag == "body" {
			body = child
		}
	}

	require.NotNil(t, body)
	assert.Equal(t, 2, attrInt(t, body, pyast.AttrLine))
	assert.Equal(t, 2, attrInt(t, body, pyast.AttrEndLine))

	require.Len(t, body.Children, 1)
	block := body.Children[0]
	assert.Equal(t, pyast.TagBlock, block.Tag)

	require.Len(t, block.Children, 1)
	statements := block.Children[0]
	assert.Equal(t, pyast.TagStatements, statements.Tag)

	require.Len(t, statements.Children, 1)
	ret := statements.Children[0]
	assert.Equal(t, "Return", ret.Tag)
	assert.Equal(t, 2, attrInt(t, ret, pyast.AttrLine))
	assert.Equal(t, 12, attrInt(t, ret, pyast.AttrCol))

	arg := root.Find("arg")
	require.NotNil(t, arg)
	assert.Equal(t, 7, attrInt(t, arg, pyast.AttrCol))
	assert.Equal(t, "a", arg.TextContent())
}

func TestNormalize_KeepsStatementOrder(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		"<Module><body>\n<Expr><Name>a</Name></Expr>\n<Expr><Name>b</Name></Expr>\n<Expr><Name>c</Name></Expr></body></Module>",
		"# names\na\nb\nc\n")

	blocks := collect(root, pyast.TagBlock)
	require.Len(t, blocks, 1)

	statements := collect(root, pyast.TagStatements)
	require.Len(t, statements, 1)
	require.Len(t, statements[0].Children, 3)

	for idx, stmt := range statements[0].Children {
		assert.Equal(t, "Expr", stmt.Tag)
		assert.Equal(t, idx+2, attrInt(t, stmt, pyast.AttrLine))
	}
}

func TestNormalize_LeafFieldWrapsName(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		`<Module><Attribute><value><Name>self</Name></value><attr>x</attr></Attribute></Module>`,
		"self.x")

	attr := root.Find("attr")
	require.NotNil(t, attr)
	assert.Equal(t, 6, attrInt(t, attr, pyast.AttrCol))

	require.Len(t, attr.Children, 1)
	name := attr.Children[0]
	assert.Equal(t, pyast.TagName, name.Tag)
	assert.Equal(t, 6, attrInt(t, name, pyast.AttrCol))

	require.Len(t, name.Children, 1)
	assert.Equal(t, pyast.TagIdentifier, name.Children[0].Tag)
	assert.Equal(t, "x", name.Children[0].TextContent())
}

func TestNormalize_InterNodeSeparatesMixedChildren(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t, `<Module><Expr><Call>f</Call><kind>k</kind></Expr></Module>`, "f k")

	expr := root.Find("Expr")
	require.NotNil(t, expr)
	require.Len(t, expr.Children, 1)

	inter := expr.Children[0]
	assert.Equal(t, pyast.TagInterNode, inter.Tag)
	require.Len(t, inter.Children, 2)
	assert.Equal(t, "Call", inter.Children[0].Tag)
	assert.Equal(t, "Kind", inter.Children[1].Tag)

	// The promoted child is a construct now, so its text became a leaf.
	kind := inter.Children[1]
	require.Len(t, kind.Children, 1)
	assert.Equal(t, pyast.TagIdentifier, kind.Children[0].Tag)
	assert.Equal(t, 3, attrInt(t, kind.Children[0], pyast.AttrCol))
}

func TestNormalize_PromotesMultiValueFields(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t, "<Module><Import><names><alias>os</alias> <alias>sys</alias></names></Import></Module>",
		"import os, sys")

	names := root.Find("names")
	require.NotNil(t, names)
	require.Len(t, names.Children, 2)

	for idx, want := range []struct {
		text string
		col  int
	}{{"os", 8}, {"sys", 12}} {
		alias := names.Children[idx]
		assert.Equal(t, "Alias", alias.Tag)
		assert.Equal(t, want.col, attrInt(t, alias, pyast.AttrCol))

		require.Len(t, alias.Children, 1)
		assert.Equal(t, pyast.TagIdentifier, alias.Children[0].Tag)
		assert.Equal(t, want.text, alias.Children[0].TextContent())
	}
}

func TestNormalize_IDsAreUniqueAndOrdered(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ export, source string }{
		{assignExport, assignSource},
		{funcExport, funcSource},
	} {
		root, stats := normalize(t, tc.export, tc.source)

		var ids []int
		root.Walk(func(n *xmltree.Node) {
			if n.IsElement() {
				ids = append(ids, attrInt(t, n, pyast.AttrID))
			}
		})

		require.NotEmpty(t, ids)
		assert.Zero(t, ids[0])
		assert.Len(t, ids, stats.Nodes())

		for idx := 1; idx < len(ids); idx++ {
			assert.Greater(t, ids[idx], ids[idx-1])
		}
	}
}

func TestNormalize_SpansAreOrdered(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ export, source string }{
		{assignExport, assignSource},
		{funcExport, funcSource},
	} {
		root, _ := normalize(t, tc.export, tc.source)

		root.Walk(func(n *xmltree.Node) {
			if !n.IsElement() {
				return
			}

			startLine := attrInt(t, n, pyast.AttrLine)
			endLine := attrInt(t, n, pyast.AttrEndLine)
			assert.LessOrEqual(t, startLine, endLine, n.Tag)

			if startLine == endLine {
				assert.LessOrEqual(t, attrInt(t, n, pyast.AttrCol), attrInt(t, n, pyast.AttrEndCol), n.Tag)
			}
		})
	}
}

func TestNormalize_IsStable(t *testing.T) {
	t.Parallel()

	render := func(normalizer *pyast.Normalizer) []byte {
		doc, err := xmltree.Parse([]byte(funcExport))
		require.NoError(t, err)

		_, err = normalizer.Normalize(pyast.FindRoot(doc))
		require.NoError(t, err)

		out, err := xmltree.Marshal(doc)
		require.NoError(t, err)

		return out
	}

	normalizer := pyast.New(pyast.NewSourceIndex(pyast.SplitLines([]byte(funcSource))))
	first := render(normalizer)
	second := render(normalizer)
	fresh := render(pyast.New(pyast.NewSourceIndex(pyast.SplitLines([]byte(funcSource)))))

	assert.True(t, bytes.Equal(first, second))
	assert.True(t, bytes.Equal(first, fresh))
}

func TestNormalize_LineOutsideSource(t *testing.T) {
	t.Parallel()

	doc, err := xmltree.Parse([]byte("<Module>\n\n\n\n<Expr>x</Expr></Module>"))
	require.NoError(t, err)

	_, err = pyast.Normalize(pyast.FindRoot(doc), []string{"x"})
	require.ErrorIs(t, err, pyast.ErrLineOutOfRange)

	var nodeErr *pyast.NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "Expr", nodeErr.Tag)
	assert.Equal(t, 5, nodeErr.Line)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, pyast.CategoryConstruct, pyast.Classify(xmltree.NewElement("Assign")))
	assert.Equal(t, pyast.CategoryField, pyast.Classify(xmltree.NewElement("targets")))
	assert.Equal(t, pyast.CategoryField, pyast.Classify(xmltree.NewElement("_x")))
	assert.Equal(t, pyast.CategoryField, pyast.Classify(xmltree.NewText("Text")))

	el := xmltree.NewElement("orelse")
	el.Rename("Orelse")
	assert.Equal(t, pyast.CategoryConstruct, pyast.Classify(el))
	assert.Equal(t, "construct", pyast.CategoryConstruct.String())
}

func TestFindRoot(t *testing.T) {
	t.Parallel()

	doc, err := xmltree.Parse([]byte(`<SourceFile><Module/></SourceFile>`))
	require.NoError(t, err)
	assert.Equal(t, pyast.TagModule, pyast.FindRoot(doc).Tag)

	doc, err = xmltree.Parse([]byte(`<Expression/>`))
	require.NoError(t, err)
	assert.Equal(t, "Expression", pyast.FindRoot(doc).Tag)
}

func TestNormalize_OrelseBecomesBlock(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		"<Module><body><If><test><Name>a</Name></test><body>\n"+
			"<Expr><Name>b</Name></Expr></body>\n"+
			"<orelse>\n"+
			"<Expr><Name>c</Name></Expr></orelse></If></body></Module>",
		"if a:\n    b\nelse:\n    c\n")

	orelse := root.Find("orelse")
	require.NotNil(t, orelse)

	// The tag sits on line 3; the statements start one line below it.
	assert.Equal(t, 4, attrInt(t, orelse, pyast.AttrLine))
	assert.Equal(t, 4, attrInt(t, orelse, pyast.AttrEndLine))

	require.Len(t, orelse.Children, 1)
	block := orelse.Children[0]
	assert.Equal(t, pyast.TagBlock, block.Tag)

	require.Len(t, block.Children, 1)
	statements := block.Children[0]
	assert.Equal(t, pyast.TagStatements, statements.Tag)

	require.Len(t, statements.Children, 1)
	expr := statements.Children[0]
	assert.Equal(t, "Expr", expr.Tag)
	assert.Equal(t, 4, attrInt(t, expr, pyast.AttrLine))
	assert.Equal(t, 5, attrInt(t, expr, pyast.AttrCol))

	leaves := collect(expr, pyast.TagIdentifier)
	require.Len(t, leaves, 1)
	assert.Equal(t, "c", leaves[0].TextContent())
	assert.Equal(t, 5, attrInt(t, leaves[0], pyast.AttrCol))

	assert.Len(t, collect(root, pyast.TagBlock), 3)
}

func TestNormalize_ComparisonOperatorField(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		`<Module><Assign><targets><Name>r</Name></targets><value><Compare><left><Name>a</Name></left>`+
			`<ops><cmpop>==</cmpop></ops><comparators><Name>b</Name></comparators></Compare></value></Assign></Module>`,
		"r = a == b")

	cmpop := root.Find("cmpop")
	require.NotNil(t, cmpop)
	assert.Equal(t, 7, attrInt(t, cmpop, pyast.AttrCol))
	assert.Equal(t, 8, attrInt(t, cmpop, pyast.AttrEndCol))

	require.Len(t, cmpop.Children, 1)
	name := cmpop.Children[0]
	assert.Equal(t, pyast.TagName, name.Tag)

	require.Len(t, name.Children, 1)
	leaf := name.Children[0]
	assert.Equal(t, pyast.TagIdentifier, leaf.Tag)
	assert.Equal(t, "==", leaf.TextContent())
	assert.Equal(t, 7, attrInt(t, leaf, pyast.AttrCol))
	assert.Equal(t, 8, attrInt(t, leaf, pyast.AttrEndCol))
}

func TestNormalize_AsyncFunctionGetsNameDef(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		"<Module><body><AsyncFunctionDef name=\"g\"><body>\n<Pass>pass</Pass></body></AsyncFunctionDef></body></Module>",
		"async def g():\n    pass\n")

	fn := root.Find("AsyncFunctionDef")
	require.NotNil(t, fn)

	nameDef := fn.Children[0]
	require.Equal(t, pyast.TagNameDef, nameDef.Tag)
	assert.Equal(t, 11, attrInt(t, nameDef, pyast.AttrCol))

	leaves := collect(nameDef, pyast.TagIdentifier)
	require.Len(t, leaves, 1)
	assert.Equal(t, "g", leaves[0].TextContent())
	assert.Equal(t, 11, attrInt(t, leaves[0], pyast.AttrCol))
}

func TestNormalize_StatementListKeepsFieldsAfterBlock(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		`<Module><body><Expr><Name>x</Name></Expr><type_comment>x</type_comment></body></Module>`,
		"x  # type: x")

	body := root.Find("body")
	require.NotNil(t, body)

	var tags []string
	for _, child := range body.Elements() {
		tags = append(tags, child.Tag)
	}

	assert.Equal(t, []string{pyast.TagBlock, "type_comment"}, tags)

	leaves := collect(body, pyast.TagIdentifier)
	require.Len(t, leaves, 1)

	// The field is visited after the statements, so the statement's x is
	// bound first and the field resolves to the second x.
	comment := body.Children[1]
	assert.Greater(t, attrInt(t, comment, pyast.AttrID), attrInt(t, leaves[0], pyast.AttrID))
	assert.Equal(t, 12, attrInt(t, comment, pyast.AttrCol))
}

func TestNormalize_NumbersEachRepeatedGroup(t *testing.T) {
	t.Parallel()

	root, _ := normalize(t,
		`<Module><Call><arg>a</arg><kw>k</kw><arg>b</arg><kw>m</kw></Call></Module>`,
		"f(a, k, b, m)")

	call := root.Find("Call")
	require.NotNil(t, call)

	var tags []string
	for _, child := range call.Elements() {
		tags = append(tags, child.Tag)
	}

	assert.Equal(t, []string{"arg1", "kw1", "arg2", "kw2"}, tags)

	for idx, col := range []int{3, 6, 9, 12} {
		assert.Equal(t, col, attrInt(t, call.Elements()[idx], pyast.AttrCol), tags[idx])
	}
}

func TestNormalize_StatementListWithoutOwnerPosition(t *testing.T) {
	t.Parallel()

	doc, err := xmltree.Parse([]byte(`<body><Pass>pass</Pass></body>`))
	require.NoError(t, err)

	_, err = pyast.Normalize(pyast.FindRoot(doc), []string{"pass"})
	require.ErrorIs(t, err, pyast.ErrMissingPosition)

	var nodeErr *pyast.NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "body", nodeErr.Tag)
}
