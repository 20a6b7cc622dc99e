package strata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayushkumar29/strata/internal/store"
)

// plannerExpandDepth bounds structural expansion around a seed when a
// relationship verb picked the edge kinds to walk.
const plannerExpandDepth = 3

// maxSeeds bounds how many resolved nodes a question may expand from.
const maxSeeds = 8

// channelResult carries one channel's evidence to the merge step.
type channelResult struct {
	name     string
	ran      bool
	hits     []Evidence
	err      error
	duration time.Duration
}

func (c *channelResult) stats() ChannelStats {
	return ChannelStats{Ran: c.ran, Hits: len(c.hits), Failed: c.err != nil, Duration: c.duration}
}

// dispatch runs the channels the route asks for, concurrently, each
// under its own timeout. Unavailable backends are retried within the
// retry budget; a timeout or failure on one channel never cancels the
// other.
func (p *Planner) dispatch(ctx context.Context, in intent) (structural, semantic *channelResult) {
	structural = &channelResult{name: "structural"}
	semantic = &channelResult{name: "semantic"}

	timeout := time.Duration(p.cfg.Query.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var g errgroup.Group
	if in.route != RouteSemantic {
		structural.ran = true
		g.Go(func() error {
			chCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			started := time.Now()
			structural.err = retryTransient(chCtx, func() error {
				var err error
				structural.hits, err = p.askStructural(chCtx, in)
				return err
			})
			structural.duration = time.Since(started)
			return nil
		})
	}
	if in.route != RouteStructural {
		semantic.ran = true
		g.Go(func() error {
			chCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			started := time.Now()
			semantic.err = retryTransient(chCtx, func() error {
				var err error
				semantic.hits, err = p.askSemantic(chCtx, in)
				return err
			})
			semantic.duration = time.Since(started)
			return nil
		})
	}
	// Failures are recorded on the channel results, never returned, so
	// one channel cannot cancel its sibling.
	_ = g.Wait()
	return structural, semantic
}

// askSemantic embeds the question and returns the nearest symbols.
func (p *Planner) askSemantic(ctx context.Context, in intent) ([]Evidence, error) {
	hits, err := p.sem.Search(ctx, in.question, p.cfg.Query.Limit, p.cfg.Query.MinScore)
	if err != nil {
		return nil, err
	}
	evidence := make([]Evidence, 0, len(hits))
	for _, h := range hits {
		evidence = append(evidence, Evidence{
			SymbolKey: h.SymbolKey,
			Path:      h.Path,
			Kind:      h.Kind,
			Name:      h.Name,
			Reason:    "matches the question's meaning",
			Score:     h.Score,
		})
	}
	return evidence, nil
}

// seedNode is one resolved starting point for graph expansion.
type seedNode struct {
	node *Node
	term string
}

// askStructural resolves the question's symbol terms to graph nodes
// and expands around them. Relevance decays with distance: a node at
// depth d scores 1/(1+d), so the seed itself scores 1.
func (p *Planner) askStructural(ctx context.Context, in intent) ([]Evidence, error) {
	seeds, err := p.structuralSeeds(in)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	paths, err := p.query.filePaths()
	if err != nil {
		return nil, err
	}

	best := make(map[string]Evidence)
	order := []string{}
	add := func(ev Evidence) {
		have, ok := best[ev.SymbolKey]
		if !ok {
			best[ev.SymbolKey] = ev
			order = append(order, ev.SymbolKey)
			return
		}
		if ev.Score > have.Score {
			ev.Reason = appendReasonText(have.Reason, ev.Reason)
			best[ev.SymbolKey] = ev
		}
	}

	depth := 1
	var kinds []string
	if in.relation != nil {
		depth = plannerExpandDepth
		kinds = in.relation.kinds
	}

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		add(Evidence{
			SymbolKey: seed.node.Key,
			Path:      nodePath(seed.node, paths),
			Kind:      seed.node.Kind,
			Name:      seed.node.QualifiedName,
			Reason:    fmt.Sprintf("name matches %q", seed.term),
			Score:     1,
		})

		for _, dir := range directionsFor(in.relation) {
			tr, err := p.query.Neighbors(seed.node.ID, dir, depth, kinds...)
			if err != nil {
				return nil, err
			}
			if tr == nil {
				continue
			}
			for _, tn := range tr.Nodes[1:] {
				kind := ""
				if tn.Via != nil {
					kind = tn.Via.Kind
				}
				add(Evidence{
					SymbolKey: tn.Node.Key,
					Path:      nodePath(tn.Node, paths),
					Kind:      tn.Node.Kind,
					Name:      tn.Node.QualifiedName,
					Reason:    traversalReason(kind, dir, seed.node.QualifiedName, tn.Depth),
					Score:     1 / float64(1+tn.Depth),
				})
			}
		}
	}

	evidence := make([]Evidence, 0, len(order))
	for _, key := range order {
		evidence = append(evidence, best[key])
	}
	sortEvidence(evidence)
	return evidence, nil
}

// structuralSeeds resolves symbol terms to nodes: exact matches for
// every term, fragment search as a fallback for the explicit ones. A
// question about a file seeds that file's module too, so importer
// questions phrased with file names still land.
func (p *Planner) structuralSeeds(in intent) ([]seedNode, error) {
	var seeds []seedNode
	seen := make(map[int64]bool)
	addAll := func(term string, nodes []*Node) {
		for _, n := range nodes {
			if len(seeds) >= maxSeeds {
				return
			}
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			seeds = append(seeds, seedNode{node: n, term: term})
		}
	}

	for _, term := range in.symbols {
		nodes, err := p.query.Resolve(term)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			nodes, err = p.query.Search(term, p.cfg.Query.Limit)
			if err != nil {
				return nil, err
			}
		}
		addAll(term, nodes)
	}
	for _, term := range in.candidates {
		nodes, err := p.query.Resolve(term)
		if err != nil {
			return nil, err
		}
		addAll(term, nodes)
	}

	if in.relation != nil && containsKind(in.relation.kinds, store.EdgeImports) {
		for _, seed := range seeds {
			if seed.node.Kind != store.KindFile || seed.node.FileID == nil {
				continue
			}
			mod, err := p.query.store.ModuleByFileID(*seed.node.FileID)
			if err != nil {
				return nil, err
			}
			if mod != nil {
				addAll(seed.term, []*Node{mod})
			}
		}
	}
	return seeds, nil
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// directionsFor expands a relation into the traversal directions to
// run. No relation means a shallow look in both directions.
func directionsFor(rel *relation) []Direction {
	if rel == nil || rel.both {
		return []Direction{DirectionIn, DirectionOut}
	}
	return []Direction{rel.dir}
}

// nodePath renders the file a node belongs to, empty for stubs.
func nodePath(n *Node, paths map[int64]string) string {
	if n.FileID == nil {
		return ""
	}
	return paths[*n.FileID]
}

// traversalReason phrases why a traversed node is evidence. Depth
// beyond one marks the relationship as transitive.
func traversalReason(edgeKind string, dir Direction, seedName string, depth int) string {
	var phrase string
	switch edgeKind {
	case store.EdgeCalls:
		phrase = pick(dir, "calls", "called by")
	case store.EdgeImports:
		phrase = pick(dir, "imports", "imported by")
	case store.EdgeInheritsFrom:
		phrase = pick(dir, "inherits from", "base class of")
	case store.EdgeContains:
		phrase = pick(dir, "contains", "method of")
	case store.EdgeDeclares:
		phrase = pick(dir, "declares", "declared in")
	default:
		phrase = "connected to"
	}
	reason := phrase + " " + seedName
	if depth > 1 {
		reason = fmt.Sprintf("%s (depth %d)", reason, depth)
	}
	return reason
}

func pick(dir Direction, in, out string) string {
	if dir == DirectionIn {
		return in
	}
	return out
}

// appendReasonText joins a new reason onto an existing one, skipping
// duplicates.
func appendReasonText(existing, next string) string {
	if existing == "" || existing == next {
		return next
	}
	return existing + "; " + next
}

// sortEvidence orders by score descending, ties broken by symbol key
// so equal scores rank deterministically.
func sortEvidence(evidence []Evidence) {
	sort.Slice(evidence, func(i, j int) bool {
		if evidence[i].Score != evidence[j].Score {
			return evidence[i].Score > evidence[j].Score
		}
		return evidence[i].SymbolKey < evidence[j].SymbolKey
	})
}
