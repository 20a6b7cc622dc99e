package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Tree-sitter node types shared by the JavaScript and TypeScript grammars.
const (
	jsImportStatement       = "import_statement"
	jsImportClause          = "import_clause"
	jsNamespaceImport       = "namespace_import"
	jsNamedImports          = "named_imports"
	jsImportSpecifier       = "import_specifier"
	jsString                = "string"
	jsStringFragment        = "string_fragment"
	jsExportStatement       = "export_statement"
	jsFunctionDeclaration   = "function_declaration"
	jsGeneratorFunctionDecl = "generator_function_declaration"
	jsClassDeclaration      = "class_declaration"
	jsClassHeritage         = "class_heritage"
	jsClassBody             = "class_body"
	jsMethodDefinition      = "method_definition"
	jsLexicalDeclaration    = "lexical_declaration"
	jsVariableDeclaration   = "variable_declaration"
	jsVariableDeclarator    = "variable_declarator"
	jsFormalParameters      = "formal_parameters"
	jsArrowFunction         = "arrow_function"
	jsStatementBlock        = "statement_block"
	jsCallExpression        = "call_expression"
	jsMemberExpression      = "member_expression"
	jsPropertyIdentifier    = "property_identifier"
	jsIdentifier            = "identifier"
	jsComment               = "comment"
	jsThis                  = "this"
	jsSuper                 = "super"
	jsAsync                 = "async"
	jsStatic                = "static"
)

// JavaScriptParser extracts symbol trees from JavaScript source, covering
// ES module imports, CommonJS require, classes with extends, and both
// declared and arrow-assigned functions.
type JavaScriptParser struct{}

var _ Parser = (*JavaScriptParser)(nil)

func (p *JavaScriptParser) Language() string { return "javascript" }

func (p *JavaScriptParser) Parse(ctx context.Context, content []byte, path string) (*Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(content); err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
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
		Language: "javascript",
		Doc:      jsLeadingComment(root, content),
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		jsTopLevel(root.NamedChild(i), content, tree)
	}
	return tree, nil
}

// jsTopLevel dispatches one top-level statement. Shared with the TypeScript
// parser, which layers its own node types on top.
func jsTopLevel(node *sitter.Node, content []byte, tree *Tree) {
	switch node.Type() {
	case jsImportStatement:
		jsImport(node, content, tree)
	case jsExportStatement:
		// export function f() {} / export default class C {}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			jsTopLevel(node.NamedChild(i), content, tree)
		}
	case jsFunctionDeclaration, jsGeneratorFunctionDecl:
		tree.Functions = append(tree.Functions, jsFunction(node, content))
	case jsClassDeclaration:
		tree.Classes = append(tree.Classes, jsClass(node, content))
	case jsLexicalDeclaration, jsVariableDeclaration:
		jsDeclaration(node, content, tree)
	}
}

// jsImport handles an ES module import statement: one Import per specifier,
// or a single record for bare side-effect imports.
func jsImport(node *sitter.Node, content []byte, tree *Tree) {
	line := lineOf(node)
	module := ""
	var clause *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case jsString:
			module = jsStringContent(child, content)
		case jsImportClause:
			clause = child
		}
	}
	if module == "" {
		return
	}
	if clause == nil {
		tree.Imports = append(tree.Imports, Import{Module: module, Line: line})
		return
	}

	added := false
	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		switch child.Type() {
		case jsIdentifier:
			// Default import: import foo from 'mod'
			tree.Imports = append(tree.Imports, Import{
				Module: module,
				Alias:  nodeText(child, content),
				Line:   line,
			})
			added = true
		case jsNamespaceImport:
			// import * as foo from 'mod'
			alias := ""
			for j := 0; j < int(child.ChildCount()); j++ {
				if gc := child.Child(j); gc.Type() == jsIdentifier {
					alias = nodeText(gc, content)
				}
			}
			tree.Imports = append(tree.Imports, Import{
				Module: module,
				Name:   "*",
				Alias:  alias,
				Line:   line,
			})
			added = true
		case jsNamedImports:
			// import { foo, bar as baz } from 'mod'
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != jsImportSpecifier {
					continue
				}
				imp := Import{Module: module, Line: line}
				imp.Name = nodeText(spec.ChildByFieldName("name"), content)
				imp.Alias = nodeText(spec.ChildByFieldName("alias"), content)
				tree.Imports = append(tree.Imports, imp)
				added = true
			}
		}
	}
	if !added {
		tree.Imports = append(tree.Imports, Import{Module: module, Line: line})
	}
}

// jsStringContent returns the unquoted contents of a string node.
func jsStringContent(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == jsStringFragment {
			return nodeText(child, content)
		}
	}
	return strings.Trim(nodeText(node, content), `"'`)
}

func jsFunction(node *sitter.Node, content []byte) Function {
	fn := Function{
		Doc:       jsDocComment(node, content),
		StartLine: lineOf(node),
		EndLine:   endLineOf(node),
	}
	var params string
	generator := node.Type() == jsGeneratorFunctionDecl
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case jsIdentifier:
			fn.Name = nodeText(child, content)
		case jsAsync:
			fn.Async = true
		case "*":
			generator = true
		case jsFormalParameters:
			params = nodeText(child, content)
		case jsStatementBlock:
			fn.Calls = jsCollectCalls(child, content)
		}
	}

	sig := "function"
	if fn.Async {
		sig = "async function"
	}
	if generator {
		sig += "*"
	}
	fn.Signature = sig + " " + fn.Name + params
	return fn
}

func jsClass(node *sitter.Node, content []byte) Class {
	cls := Class{
		Doc:       jsDocComment(node, content),
		StartLine: lineOf(node),
		EndLine:   endLineOf(node),
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case jsIdentifier, "type_identifier":
			if cls.Name == "" {
				cls.Name = nodeText(child, content)
			}
		case jsClassHeritage:
			cls.Bases = append(cls.Bases, jsHeritage(child, content)...)
		case jsClassBody:
			for j := 0; j < int(child.NamedChildCount()); j++ {
				member := child.NamedChild(j)
				if member.Type() == jsMethodDefinition {
					cls.Methods = append(cls.Methods, jsMethod(member, content))
				}
			}
		}
	}
	return cls
}

// jsHeritage reads base references from a class_heritage node. The
// JavaScript grammar nests the expression directly; TypeScript wraps it in
// extends_clause and implements_clause, both handled here.
func jsHeritage(node *sitter.Node, content []byte) []string {
	var bases []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case jsIdentifier, jsMemberExpression, "type_identifier", "nested_type_identifier":
			bases = append(bases, nodeText(n, content))
			return
		case "generic_type":
			// extends Base<T> keeps the bare name, not the type arguments
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				if c.Type() == "type_identifier" || c.Type() == "nested_type_identifier" {
					bases = append(bases, nodeText(c, content))
					break
				}
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return bases
}

func jsMethod(node *sitter.Node, content []byte) Function {
	fn := Function{
		Doc:       jsDocComment(node, content),
		StartLine: lineOf(node),
		EndLine:   endLineOf(node),
	}
	var params string
	static := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case jsPropertyIdentifier, "private_property_identifier", "computed_property_name":
			fn.Name = nodeText(child, content)
		case jsAsync:
			fn.Async = true
		case jsStatic:
			static = true
		case jsFormalParameters:
			params = nodeText(child, content)
		case jsStatementBlock:
			fn.Calls = jsCollectCalls(child, content)
		}
	}

	sig := fn.Name + params
	if fn.Async {
		sig = "async " + sig
	}
	if static {
		sig = "static " + sig
	}
	fn.Signature = sig
	return fn
}

// jsDeclaration handles const/let/var statements: CommonJS requires become
// imports, function-valued declarators become functions.
func jsDeclaration(node *sitter.Node, content []byte, tree *Tree) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != jsVariableDeclarator {
			continue
		}
		name := nodeText(decl.ChildByFieldName("name"), content)
		value := decl.ChildByFieldName("value")
		if name == "" || value == nil {
			continue
		}
		switch value.Type() {
		case jsCallExpression:
			if module, ok := jsRequireTarget(value, content); ok {
				tree.Imports = append(tree.Imports, Import{
					Module: module,
					Alias:  name,
					Line:   lineOf(node),
				})
			}
		case jsArrowFunction, "function", "function_expression", "generator_function":
			tree.Functions = append(tree.Functions, jsValueFunction(decl, name, value, content))
		}
	}
}

// jsRequireTarget matches require('mod') calls, returning the module path.
func jsRequireTarget(call *sitter.Node, content []byte) (string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != jsIdentifier || nodeText(fn, content) != "require" {
		return "", false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return "", false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if arg := args.NamedChild(i); arg.Type() == jsString {
			return jsStringContent(arg, content), true
		}
	}
	return "", false
}

// jsValueFunction builds a Function for `const name = (...) => ...` and
// function-expression assignments.
func jsValueFunction(decl *sitter.Node, name string, value *sitter.Node, content []byte) Function {
	fn := Function{
		Name:      name,
		Doc:       jsDocComment(decl, content),
		StartLine: lineOf(decl),
		EndLine:   endLineOf(decl),
	}
	params := "()"
	var body *sitter.Node
	for i := 0; i < int(value.ChildCount()); i++ {
		child := value.Child(i)
		switch child.Type() {
		case jsAsync:
			fn.Async = true
		case jsFormalParameters:
			params = nodeText(child, content)
		case jsIdentifier:
			// Single arrow parameter without parens: x => ...
			params = "(" + nodeText(child, content) + ")"
		case jsStatementBlock:
			body = child
		default:
			// Expression-body arrow: const f = x => g(x)
			if body == nil && child.IsNamed() {
				body = child
			}
		}
	}
	if body != nil {
		fn.Calls = jsCollectCalls(body, content)
	}

	if value.Type() == jsArrowFunction {
		if fn.Async {
			fn.Signature = "const " + name + " = async " + params + " => {}"
		} else {
			fn.Signature = "const " + name + " = " + params + " => {}"
		}
	} else {
		sig := "function"
		if fn.Async {
			sig = "async function"
		}
		fn.Signature = "const " + name + " = " + sig + params
	}
	return fn
}

// jsCollectCalls walks a body and records every call expression, including
// nested scopes.
func jsCollectCalls(node *sitter.Node, content []byte) []Call {
	var calls []Call
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == jsCallExpression {
			if call, ok := jsCallRef(n, content); ok {
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

// jsCallRef reads the callee of a call expression: bare identifiers keep
// their name, member calls keep the final property with the receiver text.
func jsCallRef(node *sitter.Node, content []byte) (Call, bool) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return Call{}, false
	}
	switch fn.Type() {
	case jsIdentifier:
		name := nodeText(fn, content)
		if name == "require" {
			return Call{}, false
		}
		return Call{Name: name, Line: lineOf(node)}, true
	case jsMemberExpression:
		prop := fn.ChildByFieldName("property")
		if prop == nil {
			return Call{}, false
		}
		call := Call{Name: nodeText(prop, content), Line: lineOf(node)}
		if obj := fn.ChildByFieldName("object"); obj != nil {
			switch obj.Type() {
			case jsIdentifier, jsMemberExpression, jsThis, jsSuper:
				call.Receiver = nodeText(obj, content)
			}
		}
		return call, true
	}
	return Call{}, false
}

// jsDocComment returns the JSDoc block immediately preceding a node, if any,
// with comment markers stripped. Nodes wrapped in an export statement look
// at the export's preceding sibling.
func jsDocComment(node *sitter.Node, content []byte) string {
	prev := node.PrevSibling()
	if prev == nil || prev.Type() != jsComment {
		if parent := node.Parent(); parent != nil && parent.Type() == jsExportStatement {
			prev = parent.PrevSibling()
		}
	}
	if prev == nil || prev.Type() != jsComment {
		return ""
	}
	text := nodeText(prev, content)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	return cleanBlockComment(text)
}

// jsLeadingComment returns the file's leading block comment when the first
// node in the file is a comment.
func jsLeadingComment(root *sitter.Node, content []byte) string {
	if root.ChildCount() == 0 {
		return ""
	}
	first := root.Child(0)
	if first.Type() != jsComment {
		return ""
	}
	text := nodeText(first, content)
	if !strings.HasPrefix(text, "/*") {
		return strings.TrimSpace(strings.TrimPrefix(text, "//"))
	}
	return cleanBlockComment(text)
}

// cleanBlockComment strips /** ... */ markers and leading asterisks.
func cleanBlockComment(text string) string {
	text = strings.TrimPrefix(text, "/**")
	text = strings.TrimPrefix(text, "/*")
	text = strings.TrimSuffix(text, "*/")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
