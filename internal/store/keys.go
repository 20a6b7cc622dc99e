package store

import "strings"

// Node keys are stable across re-indexing so edges can be repointed
// without rewriting unrelated generations.
//
//	file:<path>            file node
//	file:<path>:<qname>    symbol declared in a file
//	module:<name>          importable module, resolved or stub
//	stub:<kind>:<name>     unresolved call or inheritance target
//
// Module stubs share the module: prefix so a later scan of the real
// file adopts the stub in place instead of creating a duplicate.

// FileKey returns the node key for a source file.
func FileKey(path string) string {
	return "file:" + path
}

// SymbolKey returns the node key for a symbol declared in path.
func SymbolKey(path, qualifiedName string) string {
	return "file:" + path + ":" + qualifiedName
}

// ModuleKey returns the node key for a module name.
func ModuleKey(name string) string {
	return "module:" + name
}

// StubKey returns the node key for an unresolved reference target.
func StubKey(kind, name string) string {
	if kind == KindModule {
		return ModuleKey(name)
	}
	return "stub:" + kind + ":" + name
}

// stubKindFor maps a node kind to the kind its demoted stub carries.
// Methods demote to function stubs: a caller referenced the bare name,
// not the owning class.
func stubKindFor(kind string) string {
	if kind == KindMethod {
		return KindFunction
	}
	return kind
}

// lastSegment returns the final segment of a dotted or slashed module
// name: "app.models" -> "models", "lib/util" -> "util".
func lastSegment(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}
