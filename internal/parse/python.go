package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Tree-sitter node types for the Python grammar.
const (
	pyImportStatement     = "import_statement"
	pyImportFromStatement = "import_from_statement"
	pyDottedName          = "dotted_name"
	pyAliasedImport       = "aliased_import"
	pyWildcardImport      = "wildcard_import"
	pyClassDefinition     = "class_definition"
	pyFunctionDefinition  = "function_definition"
	pyDecoratedDefinition = "decorated_definition"
	pyDecorator           = "decorator"
	pyBlock               = "block"
	pyExpressionStatement = "expression_statement"
	pyParameters          = "parameters"
	pyType                = "type"
	pyIdentifier          = "identifier"
	pyAttribute           = "attribute"
	pyString              = "string"
	pyCall                = "call"
	pyAsync               = "async"
)

// PythonParser extracts symbol trees from Python source. Safe for concurrent
// use; each Parse call creates its own tree-sitter parser.
type PythonParser struct{}

var _ Parser = (*PythonParser)(nil)

func (p *PythonParser) Language() string { return "python" }

func (p *PythonParser) Parse(ctx context.Context, content []byte, path string) (*Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(content); err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	st, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer st.Close()

	root := st.RootNode()
	if err := checkSyntax(root); err != nil {
		return nil, err
	}
	tree := &Tree{
		Path:     path,
		Language: "python",
		Doc:      pyDocstring(root, content),
	}

	// Imports can appear at any nesting level.
	p.collectImports(root, content, tree)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.topLevel(root.NamedChild(i), content, tree)
	}
	return tree, nil
}

func (p *PythonParser) topLevel(node *sitter.Node, content []byte, tree *Tree) {
	node, decorators := pyUnwrapDecorated(node, content)
	if node == nil {
		return
	}
	switch node.Type() {
	case pyClassDefinition:
		tree.Classes = append(tree.Classes, p.class(node, content, decorators))
	case pyFunctionDefinition:
		tree.Functions = append(tree.Functions, p.function(node, content, decorators))
	}
}

// pyUnwrapDecorated peels a decorated_definition, returning the inner
// definition and its decorator names. Undecorated nodes pass through.
func pyUnwrapDecorated(node *sitter.Node, content []byte) (*sitter.Node, []string) {
	if node.Type() != pyDecoratedDefinition {
		return node, nil
	}
	var decorators []string
	var inner *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == pyDecorator {
			decorators = append(decorators, pyDecoratorName(child, content))
		} else {
			inner = child
		}
	}
	return inner, decorators
}

// pyDecoratorName reads the decorator expression, dropping call arguments:
// @app.route("/x") yields "app.route".
func pyDecoratorName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case pyIdentifier, pyAttribute:
			return nodeText(child, content)
		case pyCall:
			return nodeText(child.ChildByFieldName("function"), content)
		}
	}
	return strings.TrimPrefix(strings.TrimSpace(nodeText(node, content)), "@")
}

func (p *PythonParser) class(node *sitter.Node, content []byte, decorators []string) Class {
	cls := Class{
		Name:       nodeText(node.ChildByFieldName("name"), content),
		Decorators: decorators,
		StartLine:  lineOf(node),
		EndLine:    endLineOf(node),
	}

	// Superclass list: identifiers and dotted attributes only. Keyword
	// arguments like metaclass= are not base references.
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			switch arg.Type() {
			case pyIdentifier, pyAttribute:
				cls.Bases = append(cls.Bases, nodeText(arg, content))
			}
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		cls.Doc = pyDocstring(body, content)
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member, decs := pyUnwrapDecorated(body.NamedChild(i), content)
			if member != nil && member.Type() == pyFunctionDefinition {
				cls.Methods = append(cls.Methods, p.function(member, content, decs))
			}
		}
	}
	return cls
}

func (p *PythonParser) function(node *sitter.Node, content []byte, decorators []string) Function {
	fn := Function{
		Name:       nodeText(node.ChildByFieldName("name"), content),
		Decorators: decorators,
		StartLine:  lineOf(node),
		EndLine:    endLineOf(node),
	}

	var params, returnType string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case pyAsync:
			fn.Async = true
		case pyParameters:
			params = nodeText(child, content)
		case pyType:
			returnType = nodeText(child, content)
		case pyBlock:
			fn.Doc = pyDocstring(child, content)
			fn.Calls = pyCollectCalls(child, content)
		}
	}

	if fn.Async {
		fn.Signature = "async def " + fn.Name + params
	} else {
		fn.Signature = "def " + fn.Name + params
	}
	if returnType != "" {
		fn.Signature += " -> " + returnType
	}
	return fn
}

// pyDocstring returns the cleaned docstring of a block or module node: the
// first statement when it is a bare string expression.
func pyDocstring(block *sitter.Node, content []byte) string {
	if block == nil || block.NamedChildCount() == 0 {
		return ""
	}
	first := block.NamedChild(0)
	if first.Type() != pyExpressionStatement || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != pyString {
		return ""
	}
	return cleanDocstring(nodeText(str, content))
}

// cleanDocstring strips the surrounding quotes and whitespace from a raw
// string literal.
func cleanDocstring(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"r", "b", "u", "f", "R", "B", "U", "F"} {
		if len(s) > 1 && strings.HasPrefix(s, prefix) && (s[1] == '"' || s[1] == '\'') {
			s = s[1:]
			break
		}
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return s
}

// pyCollectCalls walks a function body and records every call expression,
// including those inside nested scopes.
func pyCollectCalls(node *sitter.Node, content []byte) []Call {
	var calls []Call
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == pyCall {
			if call, ok := pyCallRef(n, content); ok {
				calls = append(calls, call)
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return calls
}

// pyCallRef reads the callee of a call expression. Bare identifiers keep
// their name; attribute calls like obj.method() keep the final attribute
// with the receiver recorded separately. Computed callees are skipped.
func pyCallRef(node *sitter.Node, content []byte) (Call, bool) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return Call{}, false
	}
	switch fn.Type() {
	case pyIdentifier:
		return Call{Name: nodeText(fn, content), Line: lineOf(node)}, true
	case pyAttribute:
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return Call{}, false
		}
		call := Call{Name: nodeText(attr, content), Line: lineOf(node)}
		if obj := fn.ChildByFieldName("object"); obj != nil {
			switch obj.Type() {
			case pyIdentifier, pyAttribute:
				call.Receiver = nodeText(obj, content)
			}
		}
		return call, true
	}
	return Call{}, false
}

// collectImports walks the whole tree for import statements; Python allows
// them at any nesting level.
func (p *PythonParser) collectImports(node *sitter.Node, content []byte, tree *Tree) {
	switch node.Type() {
	case pyImportStatement:
		p.plainImport(node, content, tree)
		return
	case pyImportFromStatement:
		p.fromImport(node, content, tree)
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.collectImports(node.NamedChild(i), content, tree)
	}
}

// plainImport handles "import a.b, c as d": one Import per module.
func (p *PythonParser) plainImport(node *sitter.Node, content []byte, tree *Tree) {
	line := lineOf(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case pyDottedName:
			tree.Imports = append(tree.Imports, Import{
				Module: nodeText(child, content),
				Line:   line,
			})
		case pyAliasedImport:
			tree.Imports = append(tree.Imports, Import{
				Module: nodeText(child.ChildByFieldName("name"), content),
				Alias:  nodeText(child.ChildByFieldName("alias"), content),
				Line:   line,
			})
		}
	}
}

// fromImport handles "from x import a as b, c": one Import per name, with
// relative prefixes like ".." preserved on the module.
func (p *PythonParser) fromImport(node *sitter.Node, content []byte, tree *Tree) {
	moduleNode := node.ChildByFieldName("module_name")
	module := nodeText(moduleNode, content)
	line := lineOf(node)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if moduleNode != nil && child.StartByte() == moduleNode.StartByte() {
			continue
		}
		switch child.Type() {
		case pyDottedName:
			tree.Imports = append(tree.Imports, Import{
				Module: module,
				Name:   nodeText(child, content),
				Line:   line,
			})
		case pyAliasedImport:
			tree.Imports = append(tree.Imports, Import{
				Module: module,
				Name:   nodeText(child.ChildByFieldName("name"), content),
				Alias:  nodeText(child.ChildByFieldName("alias"), content),
				Line:   line,
			})
		case pyWildcardImport:
			tree.Imports = append(tree.Imports, Import{
				Module: module,
				Name:   "*",
				Line:   line,
			})
		}
	}
}
