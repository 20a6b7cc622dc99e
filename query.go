package strata

import (
	"fmt"
	"sort"

	"github.com/ayushkumar29/strata/internal/store"
)

// QueryBuilder answers structural questions against the graph store.
// Traversals bulk-load the edge set and walk adjacency maps in memory --
// no recursive SQL or N+1 queries.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder wraps a store in the structural query API.
func NewQueryBuilder(s *store.Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// maxTraversalDepth caps BFS expansion regardless of what the caller
// asks for.
const maxTraversalDepth = 100

// Direction selects which way edges are followed during traversal.
type Direction int

const (
	// DirectionOut follows edges source to target: callees, imported
	// modules, base classes.
	DirectionOut Direction = iota

	// DirectionIn follows edges target to source: callers, importers,
	// subclasses.
	DirectionIn
)

// CallSite is one call-graph result: the symbol on the far side of the
// call edge and the location of the call itself.
type CallSite struct {
	Symbol *Node
	File   string
	Line   int
}

// ModuleDep is one import relationship between a file and a module.
type ModuleDep struct {
	Module *Node
	File   string
	Line   int
}

// TraversalNode is a node reached by BFS with its distance from the
// root. Via is the edge that first discovered the node, nil for the
// root itself.
type TraversalNode struct {
	Node  *Node
	Depth int
	Via   *Edge
}

// Traversal is the subgraph reachable from one root node. Nodes come
// back in (depth, discovery) order, the root first.
type Traversal struct {
	Root  *Node
	Nodes []TraversalNode
	Depth int
}

// Hierarchy is the inheritance context of one class: every transitive
// base and every transitive subclass.
type Hierarchy struct {
	Root        *Node
	Ancestors   []TraversalNode
	Descendants []TraversalNode
}

// OutlineClass is a class with its methods, for file structure output.
type OutlineClass struct {
	Class   *Node
	Methods []*Node
}

// Outline is the declaration structure of one file.
type Outline struct {
	File      *File
	Module    *Node
	Classes   []OutlineClass
	Functions []*Node
}

// PathStep is one hop in a dependency path. Edge is nil on the first
// step.
type PathStep struct {
	Node *Node
	Edge *Edge
}

// Resolve returns the nodes a symbol name could mean: exact bare or
// qualified name matches, real declarations before stubs. Returns an
// empty slice when the name is unknown.
func (q *QueryBuilder) Resolve(name string) ([]*Node, error) {
	nodes, err := q.store.NodesByName(name)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}
	return nodes, nil
}

// Search returns declarations whose name contains the fragment,
// case-insensitive, shortest names first.
func (q *QueryBuilder) Search(fragment string, limit int) ([]*Node, error) {
	nodes, err := q.store.SearchNodes(fragment, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", fragment, err)
	}
	return nodes, nil
}

// Callers returns every call site targeting a symbol with the given
// name. All nodes matching the name contribute, stub targets included,
// so callers of an external symbol are still found.
func (q *QueryBuilder) Callers(name string) ([]CallSite, error) {
	return q.callSites(name, DirectionIn)
}

// Callees returns every symbol called from functions or methods with
// the given name.
func (q *QueryBuilder) Callees(name string) ([]CallSite, error) {
	return q.callSites(name, DirectionOut)
}

func (q *QueryBuilder) callSites(name string, dir Direction) ([]CallSite, error) {
	nodes, err := q.Resolve(name)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	paths, err := q.filePaths()
	if err != nil {
		return nil, err
	}

	var sites []CallSite
	seen := make(map[int64]bool)
	for _, n := range nodes {
		var neighbors []Neighbor
		if dir == DirectionIn {
			neighbors, err = q.store.Incoming(n.ID, store.EdgeCalls)
		} else {
			neighbors, err = q.store.Outgoing(n.ID, store.EdgeCalls)
		}
		if err != nil {
			return nil, fmt.Errorf("call sites for %q: %w", name, err)
		}
		for _, nb := range neighbors {
			if seen[nb.Edge.ID] {
				continue
			}
			seen[nb.Edge.ID] = true
			sites = append(sites, CallSite{
				Symbol: nb.Node,
				File:   paths[nb.Edge.FileID],
				Line:   nb.Edge.Line,
			})
		}
	}

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].File != sites[j].File {
			return sites[i].File < sites[j].File
		}
		if sites[i].Line != sites[j].Line {
			return sites[i].Line < sites[j].Line
		}
		return sites[i].Symbol.Key < sites[j].Symbol.Key
	})
	return sites, nil
}

// Hierarchy returns the inheritance context of the named class:
// transitive bases as Ancestors, transitive subclasses as Descendants.
// Returns nil when no class with the name exists.
func (q *QueryBuilder) Hierarchy(name string) (*Hierarchy, error) {
	root, err := q.classByName(name)
	if err != nil || root == nil {
		return nil, err
	}

	up, err := q.Neighbors(root.ID, DirectionOut, maxTraversalDepth, store.EdgeInheritsFrom)
	if err != nil {
		return nil, fmt.Errorf("hierarchy of %q: %w", name, err)
	}
	down, err := q.Neighbors(root.ID, DirectionIn, maxTraversalDepth, store.EdgeInheritsFrom)
	if err != nil {
		return nil, fmt.Errorf("hierarchy of %q: %w", name, err)
	}
	if up == nil || down == nil {
		return nil, nil
	}

	return &Hierarchy{
		Root:        root,
		Ancestors:   up.Nodes[1:],
		Descendants: down.Nodes[1:],
	}, nil
}

// classByName picks the class node a name refers to, preferring real
// declarations over stubs.
func (q *QueryBuilder) classByName(name string) (*Node, error) {
	nodes, err := q.Resolve(name)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Kind == store.KindClass {
			return n, nil
		}
	}
	return nil, nil
}

// ImportsOf returns the modules a file imports, in line order. Returns
// nil when the path is not indexed.
func (q *QueryBuilder) ImportsOf(path string) ([]ModuleDep, error) {
	fileNode, err := q.store.NodeByKey(store.FileKey(path))
	if err != nil {
		return nil, fmt.Errorf("imports of %s: %w", path, err)
	}
	if fileNode == nil {
		return nil, nil
	}

	neighbors, err := q.store.Outgoing(fileNode.ID, store.EdgeImports)
	if err != nil {
		return nil, fmt.Errorf("imports of %s: %w", path, err)
	}

	deps := make([]ModuleDep, 0, len(neighbors))
	for _, nb := range neighbors {
		deps = append(deps, ModuleDep{Module: nb.Node, File: path, Line: nb.Edge.Line})
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Line != deps[j].Line {
			return deps[i].Line < deps[j].Line
		}
		return deps[i].Module.Key < deps[j].Module.Key
	})
	return deps, nil
}

// ImportersOf returns the files importing the named module. The name
// may be the dotted module path or its bare final segment.
func (q *QueryBuilder) ImportersOf(module string) ([]ModuleDep, error) {
	nodes, err := q.moduleNodes(module)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	paths, err := q.filePaths()
	if err != nil {
		return nil, err
	}

	var deps []ModuleDep
	seen := make(map[int64]bool)
	for _, mod := range nodes {
		neighbors, err := q.store.Incoming(mod.ID, store.EdgeImports)
		if err != nil {
			return nil, fmt.Errorf("importers of %q: %w", module, err)
		}
		for _, nb := range neighbors {
			if seen[nb.Edge.ID] {
				continue
			}
			seen[nb.Edge.ID] = true
			deps = append(deps, ModuleDep{
				Module: mod,
				File:   paths[nb.Edge.FileID],
				Line:   nb.Edge.Line,
			})
		}
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].File != deps[j].File {
			return deps[i].File < deps[j].File
		}
		return deps[i].Line < deps[j].Line
	})
	return deps, nil
}

// moduleNodes resolves a module reference: exact dotted name first,
// then bare-name fallback, then module stubs by either spelling.
func (q *QueryBuilder) moduleNodes(name string) ([]*Node, error) {
	mod, err := q.store.ModuleByName(name)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	if mod != nil {
		return []*Node{mod}, nil
	}
	mods, err := q.store.ModulesByBareName(name)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	if len(mods) > 0 {
		return mods, nil
	}
	// Unresolved imports leave module stubs behind; "who imports requests"
	// is answerable even when requests itself is external.
	stub, err := q.store.NodeByKey(store.ModuleKey(name))
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	if stub != nil {
		return []*Node{stub}, nil
	}
	return nil, nil
}

// FileStructure returns the declarations of one file: its module, its
// classes with their methods, and its top-level functions, in line
// order. Returns nil when the path is not indexed.
func (q *QueryBuilder) FileStructure(path string) (*Outline, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("structure of %s: %w", path, err)
	}
	if f == nil {
		return nil, nil
	}

	nodes, err := q.store.NodesByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("structure of %s: %w", path, err)
	}
	edges, err := q.store.EdgesByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("structure of %s: %w", path, err)
	}

	byID := make(map[int64]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	// CONTAINS edges attach methods to their class.
	methodOwner := make(map[int64]int64)
	for _, e := range edges {
		if e.Kind == store.EdgeContains {
			methodOwner[e.TargetID] = e.SourceID
		}
	}

	outline := &Outline{File: f}
	classIdx := make(map[int64]int)
	for _, n := range nodes {
		switch n.Kind {
		case store.KindModule:
			outline.Module = n
		case store.KindClass:
			classIdx[n.ID] = len(outline.Classes)
			outline.Classes = append(outline.Classes, OutlineClass{Class: n})
		case store.KindFunction:
			outline.Functions = append(outline.Functions, n)
		}
	}
	for _, n := range nodes {
		if n.Kind != store.KindMethod {
			continue
		}
		owner, ok := methodOwner[n.ID]
		if !ok {
			continue
		}
		if i, ok := classIdx[owner]; ok {
			outline.Classes[i].Methods = append(outline.Classes[i].Methods, n)
		}
	}
	return outline, nil
}

// Neighbors walks the graph from a root node with BFS, following edges
// of the given kinds (all kinds when empty) in one direction. maxDepth
// 0 returns only the root; negative is an error; values above 100 are
// capped. Returns nil when the node does not exist.
func (q *QueryBuilder) Neighbors(nodeID int64, dir Direction, maxDepth int, kinds ...string) (*Traversal, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("neighbors: maxDepth must be non-negative, got %d", maxDepth)
	}
	if maxDepth > maxTraversalDepth {
		maxDepth = maxTraversalDepth
	}

	root, err := q.store.NodeByID(nodeID)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	if root == nil {
		return nil, nil
	}

	result := &Traversal{
		Root:  root,
		Nodes: []TraversalNode{{Node: root, Depth: 0}},
	}
	if maxDepth == 0 {
		return result, nil
	}

	adj, err := q.adjacency(dir, kinds)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}

	// BFS with a visited set; discovery order is deterministic because
	// adjacency lists follow edge insertion order.
	visited := map[int64]int{nodeID: 0}
	via := map[int64]Edge{}
	order := []int64{}
	queue := []int64{nodeID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		depth := visited[current]
		if depth >= maxDepth {
			continue
		}
		for _, h := range adj[current] {
			if _, seen := visited[h.next]; seen {
				continue
			}
			visited[h.next] = depth + 1
			via[h.next] = h.edge
			if depth+1 > result.Depth {
				result.Depth = depth + 1
			}
			order = append(order, h.next)
			queue = append(queue, h.next)
		}
	}

	loaded, err := q.store.NodesByIDs(order)
	if err != nil {
		return nil, fmt.Errorf("neighbors: load nodes: %w", err)
	}
	for _, id := range order {
		n, ok := loaded[id]
		if !ok {
			continue
		}
		e := via[id]
		result.Nodes = append(result.Nodes, TraversalNode{Node: n, Depth: visited[id], Via: &e})
	}
	return result, nil
}

// hop is one adjacency entry: the far node and the edge reaching it.
type hop struct {
	next int64
	edge Edge
}

// adjacency bulk-loads the edge set into one-directional adjacency
// lists, optionally restricted to the given edge kinds.
func (q *QueryBuilder) adjacency(dir Direction, kinds []string) (map[int64][]hop, error) {
	edges, err := q.store.AllEdges()
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	keep := map[string]bool{}
	for _, k := range kinds {
		keep[k] = true
	}

	adj := make(map[int64][]hop)
	for _, e := range edges {
		if len(keep) > 0 && !keep[e.Kind] {
			continue
		}
		if dir == DirectionOut {
			adj[e.SourceID] = append(adj[e.SourceID], hop{next: e.TargetID, edge: e})
		} else {
			adj[e.TargetID] = append(adj[e.TargetID], hop{next: e.SourceID, edge: e})
		}
	}
	return adj, nil
}

// PathBetween returns a shortest dependency path connecting two named
// symbols, treating edges as undirected. Returns nil when either name
// is unknown or no path exists. With several equally short paths the
// one discovered first in edge order wins, so results are stable.
func (q *QueryBuilder) PathBetween(from, to string) ([]PathStep, error) {
	fromNodes, err := q.Resolve(from)
	if err != nil {
		return nil, err
	}
	toNodes, err := q.Resolve(to)
	if err != nil {
		return nil, err
	}
	if len(fromNodes) == 0 || len(toNodes) == 0 {
		return nil, nil
	}
	src := fromNodes[0]
	targets := make(map[int64]bool, len(toNodes))
	for _, n := range toNodes {
		targets[n.ID] = true
	}
	if targets[src.ID] {
		return []PathStep{{Node: src}}, nil
	}

	edges, err := q.store.AllEdges()
	if err != nil {
		return nil, fmt.Errorf("path between: %w", err)
	}
	adj := make(map[int64][]hop)
	for _, e := range edges {
		adj[e.SourceID] = append(adj[e.SourceID], hop{next: e.TargetID, edge: e})
		adj[e.TargetID] = append(adj[e.TargetID], hop{next: e.SourceID, edge: e})
	}

	type arrival struct {
		prev int64
		edge Edge
	}
	visited := map[int64]arrival{src.ID: {prev: src.ID}}
	queue := []int64{src.ID}
	var found int64 = -1
	for len(queue) > 0 && found < 0 {
		current := queue[0]
		queue = queue[1:]
		for _, h := range adj[current] {
			if _, seen := visited[h.next]; seen {
				continue
			}
			visited[h.next] = arrival{prev: current, edge: h.edge}
			if targets[h.next] {
				found = h.next
				break
			}
			queue = append(queue, h.next)
		}
	}
	if found < 0 {
		return nil, nil
	}

	// Walk arrivals back to the source, then reverse.
	var ids []int64
	var viaEdges []Edge
	for id := found; id != src.ID; {
		a := visited[id]
		ids = append(ids, id)
		viaEdges = append(viaEdges, a.edge)
		id = a.prev
	}
	ids = append(ids, src.ID)

	loaded, err := q.store.NodesByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("path between: load nodes: %w", err)
	}

	steps := make([]PathStep, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		step := PathStep{Node: loaded[ids[i]]}
		if i < len(viaEdges) {
			e := viaEdges[i]
			step.Edge = &e
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// filePaths bulk-loads the file id to path mapping used when rendering
// edge locations.
func (q *QueryBuilder) filePaths() (map[int64]string, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	paths := make(map[int64]string, len(files))
	for _, f := range files {
		paths[f.ID] = f.Path
	}
	return paths, nil
}
