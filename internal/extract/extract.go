// Package extract turns parsed symbol trees into knowledge-graph
// generations. It runs in two phases: BuildIndex collects every
// declaration in a scan batch, then Extract resolves each file's
// references against that index plus the already-indexed graph. The
// split guarantees a reference can reach any declaration in the batch
// no matter which file was processed first.
package extract

import (
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/ayushkumar29/strata/internal/parse"
	"github.com/ayushkumar29/strata/internal/store"
)

// ErrMalformed marks a symbol tree the extractor refuses to process,
// such as a method without an owning class. Callers treat it as fatal
// for the file rather than degrading the graph.
var ErrMalformed = errors.New("malformed symbol tree")

// Resolver answers project-wide lookups against the persisted graph,
// covering files indexed in earlier runs that are not part of the
// current batch. *store.Store satisfies it.
type Resolver interface {
	LookupCandidates(name string) ([]*store.Node, error)
	ModuleByName(name string) (*store.Node, error)
	ModulesByBareName(name string) ([]*store.Node, error)
}

// Extractor builds generations from parsed trees. Safe for concurrent
// use: all per-file state lives on the stack and the shared index is
// read-only.
type Extractor struct {
	resolver Resolver
}

func New(resolver Resolver) *Extractor {
	return &Extractor{resolver: resolver}
}

// declaration is one top-level entity in source order. Exactly one of
// class or fn is set.
type declaration struct {
	class *parse.Class
	fn    *parse.Function
	line  int
	qn    string
}

// Extract produces the complete generation for one parsed file: its
// file and module anchor nodes, a node per declaration, and an edge per
// reference. Unresolved references keep their written name as a stub
// spec so the store records them either way.
func (e *Extractor) Extract(tree *parse.Tree, hash string, lineCount int, idx *Index) (store.Generation, error) {
	if err := validateTree(tree); err != nil {
		return store.Generation{}, err
	}

	decls := topDeclarations(tree)
	module := ModuleName(tree.Path, tree.Language)

	gen := store.Generation{
		File: store.File{
			Path:      tree.Path,
			Language:  tree.Language,
			Hash:      hash,
			LineCount: lineCount,
		},
	}

	fileKey := store.FileKey(tree.Path)
	gen.Nodes = append(gen.Nodes,
		&store.Node{
			Key:           fileKey,
			Kind:          store.KindFile,
			Name:          path.Base(tree.Path),
			QualifiedName: tree.Path,
			EndLine:       lineCount,
		},
		&store.Node{
			Key:           store.ModuleKey(module),
			Kind:          store.KindModule,
			Name:          lastSegment(module),
			QualifiedName: module,
			Doc:           tree.Doc,
		},
	)

	for _, d := range decls {
		if d.class != nil {
			gen.Nodes = append(gen.Nodes, classNodes(tree.Path, d.class)...)
		} else {
			gen.Nodes = append(gen.Nodes, functionNode(tree.Path, d.fn))
		}
	}

	for _, imp := range tree.Imports {
		tgt, err := e.resolveImport(tree, imp, idx)
		if err != nil {
			return store.Generation{}, err
		}
		gen.Edges = append(gen.Edges, edgeSpec(fileKey, store.EdgeImports, imp.Line, tgt))
	}

	for _, d := range decls {
		if d.class != nil {
			edges, err := e.classEdges(tree, d.class, fileKey, idx)
			if err != nil {
				return store.Generation{}, err
			}
			gen.Edges = append(gen.Edges, edges...)
			continue
		}
		fnKey := store.SymbolKey(tree.Path, d.fn.Name)
		gen.Edges = append(gen.Edges, store.EdgeSpec{
			SourceKey: fileKey, Kind: store.EdgeDeclares, Line: d.fn.StartLine, TargetKey: fnKey,
		})
		edges, err := e.callEdges(tree, nil, d.fn, fnKey, idx)
		if err != nil {
			return store.Generation{}, err
		}
		gen.Edges = append(gen.Edges, edges...)
	}

	return gen, nil
}

func (e *Extractor) classEdges(tree *parse.Tree, class *parse.Class, fileKey string, idx *Index) ([]store.EdgeSpec, error) {
	classKey := store.SymbolKey(tree.Path, class.Name)
	edges := []store.EdgeSpec{{
		SourceKey: fileKey, Kind: store.EdgeDeclares, Line: class.StartLine, TargetKey: classKey,
	}}

	for _, base := range class.Bases {
		tgt, err := e.resolveBase(tree, base, idx)
		if err != nil {
			return nil, err
		}
		if tgt.key == classKey {
			continue
		}
		edges = append(edges, edgeSpec(classKey, store.EdgeInheritsFrom, class.StartLine, tgt))
	}

	for i := range class.Methods {
		m := &class.Methods[i]
		methodKey := store.SymbolKey(tree.Path, parse.QualifiedName(class.Name, m.Name))
		edges = append(edges, store.EdgeSpec{
			SourceKey: classKey, Kind: store.EdgeContains, Line: m.StartLine, TargetKey: methodKey,
		})
		callEdges, err := e.callEdges(tree, class, m, methodKey, idx)
		if err != nil {
			return nil, err
		}
		edges = append(edges, callEdges...)
	}
	return edges, nil
}

// callEdges emits one CALLS edge per call site. Direct recursion is
// skipped; everything else is kept, including repeat calls to the same
// target from different lines.
func (e *Extractor) callEdges(tree *parse.Tree, owner *parse.Class, fn *parse.Function, sourceKey string, idx *Index) ([]store.EdgeSpec, error) {
	var edges []store.EdgeSpec
	for _, call := range fn.Calls {
		tgt, err := e.resolveCall(tree, owner, call, idx)
		if err != nil {
			return nil, err
		}
		if tgt.key == sourceKey {
			continue
		}
		edges = append(edges, edgeSpec(sourceKey, store.EdgeCalls, call.Line, tgt))
	}
	return edges, nil
}

func edgeSpec(sourceKey, kind string, line int, tgt target) store.EdgeSpec {
	spec := store.EdgeSpec{SourceKey: sourceKey, Kind: kind, Line: line, TargetKey: tgt.key}
	if tgt.key == "" {
		spec.StubKind = tgt.stubKind
		spec.StubName = tgt.stubName
	}
	return spec
}

func classNodes(filePath string, class *parse.Class) []*store.Node {
	nodes := []*store.Node{{
		Key:           store.SymbolKey(filePath, class.Name),
		Kind:          store.KindClass,
		Name:          class.Name,
		QualifiedName: class.Name,
		StartLine:     class.StartLine,
		EndLine:       class.EndLine,
		Doc:           class.Doc,
	}}
	for i := range class.Methods {
		m := &class.Methods[i]
		qn := parse.QualifiedName(class.Name, m.Name)
		nodes = append(nodes, &store.Node{
			Key:           store.SymbolKey(filePath, qn),
			Kind:          store.KindMethod,
			Name:          m.Name,
			QualifiedName: qn,
			StartLine:     m.StartLine,
			EndLine:       m.EndLine,
			Signature:     m.Signature,
			Doc:           m.Doc,
		})
	}
	return nodes
}

func functionNode(filePath string, fn *parse.Function) *store.Node {
	return &store.Node{
		Key:           store.SymbolKey(filePath, fn.Name),
		Kind:          store.KindFunction,
		Name:          fn.Name,
		QualifiedName: fn.Name,
		StartLine:     fn.StartLine,
		EndLine:       fn.EndLine,
		Signature:     fn.Signature,
		Doc:           fn.Doc,
	}
}

// topDeclarations merges classes and functions into source order.
// Redeclarations of a name collapse onto the first declaration so the
// file contributes one node per name.
func topDeclarations(tree *parse.Tree) []declaration {
	decls := make([]declaration, 0, len(tree.Classes)+len(tree.Functions))
	for i := range tree.Classes {
		c := &tree.Classes[i]
		decls = append(decls, declaration{class: c, line: c.StartLine, qn: c.Name})
	}
	for i := range tree.Functions {
		fn := &tree.Functions[i]
		decls = append(decls, declaration{fn: fn, line: fn.StartLine, qn: fn.Name})
	}
	sort.SliceStable(decls, func(i, j int) bool { return decls[i].line < decls[j].line })

	seen := make(map[string]bool, len(decls))
	kept := decls[:0]
	for _, d := range decls {
		if seen[d.qn] {
			continue
		}
		seen[d.qn] = true
		kept = append(kept, d)
	}
	return kept
}

func validateTree(tree *parse.Tree) error {
	for i := range tree.Classes {
		c := &tree.Classes[i]
		if c.Name == "" {
			if len(c.Methods) > 0 {
				return fmt.Errorf("%w: %s: method %q has no owning class", ErrMalformed, tree.Path, c.Methods[0].Name)
			}
			return fmt.Errorf("%w: %s: class without a name", ErrMalformed, tree.Path)
		}
		for j := range c.Methods {
			if c.Methods[j].Name == "" {
				return fmt.Errorf("%w: %s: unnamed method in class %q", ErrMalformed, tree.Path, c.Name)
			}
		}
	}
	for i := range tree.Functions {
		if tree.Functions[i].Name == "" {
			return fmt.Errorf("%w: %s: unnamed function", ErrMalformed, tree.Path)
		}
	}
	return nil
}
