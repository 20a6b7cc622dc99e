package strata

import (
	"github.com/ayushkumar29/strata/internal/semindex"
	"github.com/ayushkumar29/strata/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs. These are Go type aliases (=) — identical to the
// internal types at compile time, so no conversion is ever needed.

type Store = store.Store
type File = store.File
type Node = store.Node
type Edge = store.Edge
type Neighbor = store.Neighbor
type Stats = store.Stats
type SemanticHit = semindex.Hit
type Embedder = semindex.Embedder

// Node kinds.
const (
	KindFile     = store.KindFile
	KindModule   = store.KindModule
	KindClass    = store.KindClass
	KindFunction = store.KindFunction
	KindMethod   = store.KindMethod
)

// Edge kinds.
const (
	EdgeDeclares     = store.EdgeDeclares
	EdgeContains     = store.EdgeContains
	EdgeImports      = store.EdgeImports
	EdgeCalls        = store.EdgeCalls
	EdgeInheritsFrom = store.EdgeInheritsFrom
)
