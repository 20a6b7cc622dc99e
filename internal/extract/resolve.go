package extract

import (
	"fmt"
	"path"
	"strings"

	"github.com/ayushkumar29/strata/internal/parse"
	"github.com/ayushkumar29/strata/internal/store"
)

// target is the outcome of resolving one reference: a node key when a
// declaration was found, otherwise the stub to record in its place.
type target struct {
	key      string
	stubKind string
	stubName string
}

func resolved(key string) target       { return target{key: key} }
func stubbed(kind, name string) target { return target{stubKind: kind, stubName: name} }

// kind tiers for call resolution. Earlier tiers win; within a tier the
// candidate sort order decides.
var (
	tiersBareCall = [][]string{{store.KindFunction, store.KindClass}}
	tiersSelfCall = [][]string{{store.KindMethod}, {store.KindFunction, store.KindClass}}
	tiersRecvCall = [][]string{{store.KindMethod, store.KindFunction, store.KindClass}}
	tiersClass    = [][]string{{store.KindClass}}
)

func isSelfReceiver(recv string) bool { return recv == "self" || recv == "this" }

// resolveCall applies the scope ladder for one call reference: owning
// class for self calls, then the current file, then the batch, then the
// already-indexed graph. Unresolved calls become function stubs.
func (e *Extractor) resolveCall(tree *parse.Tree, owner *parse.Class, call parse.Call, idx *Index) (target, error) {
	if owner != nil && isSelfReceiver(call.Receiver) {
		for _, m := range owner.Methods {
			if m.Name == call.Name {
				return resolved(store.SymbolKey(tree.Path, parse.QualifiedName(owner.Name, m.Name))), nil
			}
		}
	}

	tiers := tiersBareCall
	switch {
	case isSelfReceiver(call.Receiver):
		tiers = tiersSelfCall
	case call.Receiver != "":
		tiers = tiersRecvCall
	}

	if key := fileScopeMatch(tree, call.Name, tiers); key != "" {
		return resolved(key), nil
	}
	if key := pickBatch(idx.Symbols(call.Name), tiers); key != "" {
		return resolved(key), nil
	}
	key, err := e.pickStored(call.Name, tiers)
	if err != nil {
		return target{}, fmt.Errorf("resolve call %q: %w", call.Name, err)
	}
	if key != "" {
		return resolved(key), nil
	}
	return stubbed(store.KindFunction, call.Name), nil
}

// resolveBase resolves one inheritance reference. Dotted bases match
// classes by their final segment; the stub keeps the full written text.
func (e *Extractor) resolveBase(tree *parse.Tree, base string, idx *Index) (target, error) {
	name := base
	if i := strings.LastIndex(base, "."); i >= 0 {
		name = base[i+1:]
	}

	for _, c := range tree.Classes {
		if c.Name == name {
			return resolved(store.SymbolKey(tree.Path, c.Name)), nil
		}
	}
	if key := pickBatch(idx.Symbols(name), tiersClass); key != "" {
		return resolved(key), nil
	}
	key, err := e.pickStored(name, tiersClass)
	if err != nil {
		return target{}, fmt.Errorf("resolve base %q: %w", base, err)
	}
	if key != "" {
		return resolved(key), nil
	}
	return stubbed(store.KindClass, base), nil
}

// resolveImport resolves one import reference to a scanned module when
// possible. Relative references are rewritten against the importing
// file first, and never fall back to bare-name matching: their path is
// fully determined, so a miss is a stub.
func (e *Extractor) resolveImport(tree *parse.Tree, imp parse.Import, idx *Index) (target, error) {
	name, relative := moduleRef(tree, imp)
	if name == "" {
		name = imp.Module
	}

	if key, ok := idx.Module(name); ok {
		return resolved(key), nil
	}
	if key, err := e.storedModule(name); err != nil {
		return target{}, fmt.Errorf("resolve import %q: %w", imp.Module, err)
	} else if key != "" {
		return resolved(key), nil
	}

	if trimmed := strings.TrimSuffix(name, "/index"); trimmed != name && trimmed != "" {
		if key, ok := idx.Module(trimmed); ok {
			return resolved(key), nil
		}
		if key, err := e.storedModule(trimmed); err != nil {
			return target{}, fmt.Errorf("resolve import %q: %w", imp.Module, err)
		} else if key != "" {
			return resolved(key), nil
		}
	}

	if !relative {
		bare := lastSegment(name)
		if names := idx.ModulesByBare(bare); len(names) > 0 {
			return resolved(store.ModuleKey(names[0])), nil
		}
		if e.resolver != nil {
			mods, err := e.resolver.ModulesByBareName(bare)
			if err != nil {
				return target{}, fmt.Errorf("resolve import %q: %w", imp.Module, err)
			}
			if len(mods) > 0 {
				return resolved(mods[0].Key), nil
			}
		}
	}
	return stubbed(store.KindModule, name), nil
}

// moduleRef normalizes an import's written module text into the name
// space ModuleName produces, reporting whether it was relative.
func moduleRef(tree *parse.Tree, imp parse.Import) (string, bool) {
	m := imp.Module
	if tree.Language == parse.LangPython {
		if !strings.HasPrefix(m, ".") {
			return m, false
		}
		dots := 0
		for dots < len(m) && m[dots] == '.' {
			dots++
		}
		rest := m[dots:]
		var parts []string
		if pkg := packageName(tree.Path); pkg != "" {
			parts = strings.Split(pkg, ".")
		}
		if up := dots - 1; up > 0 {
			if up > len(parts) {
				up = len(parts)
			}
			parts = parts[:len(parts)-up]
		}
		if rest != "" {
			parts = append(parts, rest)
		}
		return strings.Join(parts, "."), true
	}

	if m == "." || m == ".." || strings.HasPrefix(m, "./") || strings.HasPrefix(m, "../") {
		joined := path.Join(path.Dir(tree.Path), m)
		if _, known := parse.LanguageForFile(joined); known {
			joined = strings.TrimSuffix(joined, path.Ext(joined))
		}
		return joined, true
	}
	return m, false
}

// fileScopeMatch scans the current file's declarations in source order.
func fileScopeMatch(tree *parse.Tree, name string, tiers [][]string) string {
	for _, tier := range tiers {
		for _, kind := range tier {
			switch kind {
			case store.KindMethod:
				for _, c := range tree.Classes {
					for _, m := range c.Methods {
						if m.Name == name {
							return store.SymbolKey(tree.Path, parse.QualifiedName(c.Name, m.Name))
						}
					}
				}
			case store.KindFunction:
				for _, fn := range tree.Functions {
					if fn.Name == name {
						return store.SymbolKey(tree.Path, fn.Name)
					}
				}
			case store.KindClass:
				for _, c := range tree.Classes {
					if c.Name == name {
						return store.SymbolKey(tree.Path, c.Name)
					}
				}
			}
		}
	}
	return ""
}

func pickBatch(candidates []Candidate, tiers [][]string) string {
	for _, tier := range tiers {
		for _, c := range candidates {
			for _, kind := range tier {
				if c.Kind == kind {
					return c.Key
				}
			}
		}
	}
	return ""
}

func (e *Extractor) pickStored(name string, tiers [][]string) (string, error) {
	if e.resolver == nil {
		return "", nil
	}
	nodes, err := e.resolver.LookupCandidates(name)
	if err != nil {
		return "", err
	}
	for _, tier := range tiers {
		for _, n := range nodes {
			for _, kind := range tier {
				if n.Kind == kind {
					return n.Key, nil
				}
			}
		}
	}
	return "", nil
}

func (e *Extractor) storedModule(name string) (string, error) {
	if e.resolver == nil {
		return "", nil
	}
	n, err := e.resolver.ModuleByName(name)
	if err != nil {
		return "", err
	}
	if n == nil {
		return "", nil
	}
	return n.Key, nil
}
