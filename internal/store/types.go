package store

import "time"

// Node kinds. A file node anchors a file's generation; a module node is the
// file-as-module symbol that import edges target; class, function and
// method nodes are declarations.
const (
	KindFile     = "file"
	KindModule   = "module"
	KindClass    = "class"
	KindFunction = "function"
	KindMethod   = "method"
)

// Edge kinds.
const (
	EdgeDeclares     = "DECLARES"
	EdgeContains     = "CONTAINS"
	EdgeImports      = "IMPORTS"
	EdgeCalls        = "CALLS"
	EdgeInheritsFrom = "INHERITS_FROM"
)

// File is one indexed source file. Hash is the hex SHA-256 of the content
// at index time; an unchanged hash makes re-indexing a no-op.
type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	LastIndexed time.Time
}

// Node is one graph node: a declared symbol, a file anchor, or an
// unresolved stub standing in for a reference that could not be bound.
//
// Key is globally unique: "file:<path>" for file anchors,
// "file:<path>:<qualified_name>" for declarations, "module:<name>" for
// modules, and "stub:<kind>:<name>" for non-module stubs.
type Node struct {
	ID     int64
	FileID *int64 // nil for stubs
	Key    string
	Kind   string

	// Name is the bare name; QualifiedName includes the owning class for
	// methods and the dotted path for modules.
	Name          string
	QualifiedName string

	StartLine int
	EndLine   int
	Signature string
	Doc       string
	IsStub    bool
}

// Edge is one directed, typed relationship. The graph is a multigraph:
// repeated relationships between the same pair are all kept.
//
// FileID is the generation owner: the file whose extraction produced the
// edge. Replacing that file's data removes the edge.
type Edge struct {
	ID       int64
	FileID   int64
	SourceID int64
	TargetID int64
	Kind     string
	Line     int
}

// Neighbor pairs an edge with the node on its far side.
type Neighbor struct {
	Edge Edge
	Node *Node
}

// Stats summarizes the stored graph.
type Stats struct {
	Files       int
	Nodes       int
	Edges       int
	Stubs       int
	NodesByKind map[string]int
	EdgesByKind map[string]int
	Languages   map[string]int
}
