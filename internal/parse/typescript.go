package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Tree-sitter node types specific to the TypeScript grammar.
const (
	tsAbstractClassDeclaration = "abstract_class_declaration"
	tsInterfaceDeclaration     = "interface_declaration"
	tsInterfaceBody            = "interface_body"
	tsObjectType               = "object_type"
	tsMethodSignature          = "method_signature"
	tsTypeIdentifier           = "type_identifier"
	tsTypeAnnotation           = "type_annotation"
)

// TypeScriptParser extracts symbol trees from TypeScript and TSX source.
// Interfaces are recorded as classes: they participate in the inheritance
// graph through extends and implements the same way classes do.
type TypeScriptParser struct{}

var _ Parser = (*TypeScriptParser)(nil)

func (p *TypeScriptParser) Language() string { return "typescript" }

func (p *TypeScriptParser) Parse(ctx context.Context, content []byte, path string) (*Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(content); err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	if strings.HasSuffix(strings.ToLower(path), ".tsx") {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}
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
		Language: "typescript",
		Doc:      jsLeadingComment(root, content),
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.topLevel(root.NamedChild(i), content, tree)
	}
	return tree, nil
}

func (p *TypeScriptParser) topLevel(node *sitter.Node, content []byte, tree *Tree) {
	switch node.Type() {
	case jsExportStatement:
		for i := 0; i < int(node.NamedChildCount()); i++ {
			p.topLevel(node.NamedChild(i), content, tree)
		}
	case jsClassDeclaration, tsAbstractClassDeclaration:
		tree.Classes = append(tree.Classes, jsClass(node, content))
	case tsInterfaceDeclaration:
		tree.Classes = append(tree.Classes, p.interfaceDecl(node, content))
	case jsFunctionDeclaration, jsGeneratorFunctionDecl:
		fn := jsFunction(node, content)
		if ret := tsReturnType(node, content); ret != "" {
			fn.Signature += ret
		}
		tree.Functions = append(tree.Functions, fn)
	default:
		// Imports, variable declarations, and CommonJS requires share the
		// JavaScript grammar shapes.
		jsTopLevel(node, content, tree)
	}
}

// interfaceDecl records an interface as a Class. Method signatures become
// bodyless methods; extends references become bases.
func (p *TypeScriptParser) interfaceDecl(node *sitter.Node, content []byte) Class {
	cls := Class{
		Doc:       jsDocComment(node, content),
		StartLine: lineOf(node),
		EndLine:   endLineOf(node),
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case tsTypeIdentifier:
			if cls.Name == "" {
				cls.Name = nodeText(child, content)
			}
		case "extends_clause", "extends_type_clause":
			cls.Bases = append(cls.Bases, jsHeritage(child, content)...)
		case tsInterfaceBody, tsObjectType:
			for j := 0; j < int(child.NamedChildCount()); j++ {
				member := child.NamedChild(j)
				if member.Type() == tsMethodSignature {
					cls.Methods = append(cls.Methods, p.methodSignature(member, content))
				}
			}
		}
	}
	return cls
}

func (p *TypeScriptParser) methodSignature(node *sitter.Node, content []byte) Function {
	fn := Function{
		Doc:       jsDocComment(node, content),
		StartLine: lineOf(node),
		EndLine:   endLineOf(node),
	}
	var params string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case jsPropertyIdentifier:
			fn.Name = nodeText(child, content)
		case jsAsync:
			fn.Async = true
		case jsFormalParameters:
			params = nodeText(child, content)
		}
	}
	fn.Signature = fn.Name + params + tsReturnType(node, content)
	return fn
}

// tsReturnType reads the ": T" return annotation of a function-like node.
func tsReturnType(node *sitter.Node, content []byte) string {
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		return nodeText(ret, content)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == tsTypeAnnotation {
			return nodeText(child, content)
		}
	}
	return ""
}
