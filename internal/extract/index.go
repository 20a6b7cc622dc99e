package extract

import (
	"path"
	"sort"
	"strings"

	"github.com/ayushkumar29/strata/internal/parse"
	"github.com/ayushkumar29/strata/internal/store"
)

// Candidate is a declaration visible to name resolution.
type Candidate struct {
	Key           string
	Path          string
	Kind          string
	Name          string
	QualifiedName string
}

// Index holds every declaration in one scan batch, keyed for the lookups
// resolution performs. It is built once per batch and never mutated
// afterwards; extraction workers share it by value of reference without
// locks.
type Index struct {
	modules     map[string]string      // qualified module name -> node key
	bareModules map[string][]string    // final segment -> qualified names
	symbols     map[string][]Candidate // bare or qualified name -> candidates
}

// BuildIndex walks a batch of parsed trees and records their modules,
// classes, functions and methods. Candidate lists are sorted by
// (path, qualified name) so resolution is deterministic regardless of
// scan order.
func BuildIndex(trees []*parse.Tree) *Index {
	idx := &Index{
		modules:     make(map[string]string),
		bareModules: make(map[string][]string),
		symbols:     make(map[string][]Candidate),
	}

	sorted := make([]*parse.Tree, len(trees))
	copy(sorted, trees)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, tree := range sorted {
		module := ModuleName(tree.Path, tree.Language)
		if _, taken := idx.modules[module]; !taken {
			idx.modules[module] = store.ModuleKey(module)
			bare := lastSegment(module)
			idx.bareModules[bare] = append(idx.bareModules[bare], module)
		}

		for _, class := range tree.Classes {
			idx.add(Candidate{
				Key:           store.SymbolKey(tree.Path, class.Name),
				Path:          tree.Path,
				Kind:          store.KindClass,
				Name:          class.Name,
				QualifiedName: class.Name,
			})
			for _, m := range class.Methods {
				qn := parse.QualifiedName(class.Name, m.Name)
				idx.add(Candidate{
					Key:           store.SymbolKey(tree.Path, qn),
					Path:          tree.Path,
					Kind:          store.KindMethod,
					Name:          m.Name,
					QualifiedName: qn,
				})
			}
		}
		for _, fn := range tree.Functions {
			idx.add(Candidate{
				Key:           store.SymbolKey(tree.Path, fn.Name),
				Path:          tree.Path,
				Kind:          store.KindFunction,
				Name:          fn.Name,
				QualifiedName: fn.Name,
			})
		}
	}

	for name := range idx.symbols {
		list := idx.symbols[name]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Path != list[j].Path {
				return list[i].Path < list[j].Path
			}
			return list[i].QualifiedName < list[j].QualifiedName
		})
		idx.symbols[name] = list
	}
	return idx
}

func (idx *Index) add(c Candidate) {
	idx.symbols[c.Name] = append(idx.symbols[c.Name], c)
	if c.QualifiedName != c.Name {
		idx.symbols[c.QualifiedName] = append(idx.symbols[c.QualifiedName], c)
	}
}

// Module returns the node key for an exact qualified module name.
func (idx *Index) Module(name string) (string, bool) {
	key, ok := idx.modules[name]
	return key, ok
}

// ModulesByBare returns the qualified names of batch modules whose final
// segment matches, sorted.
func (idx *Index) ModulesByBare(name string) []string {
	return idx.bareModules[name]
}

// Symbols returns batch candidates matching a bare or qualified name.
func (idx *Index) Symbols(name string) []Candidate {
	return idx.symbols[name]
}

// ModuleName derives the importable module name for a file path.
// Python paths become dotted names with __init__.py collapsing to its
// package; JavaScript and TypeScript keep slash-separated paths without
// the extension, with index files collapsing to their directory.
func ModuleName(filePath, language string) string {
	p := path.Clean(filePath)
	ext := path.Ext(p)
	base := strings.TrimSuffix(path.Base(p), ext)
	dir := path.Dir(p)

	anchor := base == "index"
	if language == parse.LangPython {
		anchor = base == "__init__"
	}
	if anchor && dir != "." {
		p = dir
	} else {
		p = strings.TrimSuffix(p, ext)
	}
	if language == parse.LangPython {
		return strings.ReplaceAll(p, "/", ".")
	}
	return p
}

// packageName returns the package a Python file belongs to. The package
// of pkg/sub/mod.py is pkg.sub; pkg/sub/__init__.py is its own package.
func packageName(filePath string) string {
	module := ModuleName(filePath, parse.LangPython)
	if strings.TrimSuffix(path.Base(filePath), ".py") == "__init__" {
		return module
	}
	if i := strings.LastIndex(module, "."); i >= 0 {
		return module[:i]
	}
	return ""
}

// lastSegment returns the final dotted or slashed segment of a module name.
func lastSegment(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}
