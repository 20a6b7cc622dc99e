package strata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ayushkumar29/strata/internal/config"
	"github.com/ayushkumar29/strata/internal/semindex"
)

// Route identifies which retrieval channels served a question.
type Route string

const (
	RouteStructural Route = "structural"
	RouteSemantic   Route = "semantic"
	RouteHybrid     Route = "hybrid"
)

// Evidence is one ranked answer fragment: a symbol and why it is
// relevant to the question.
type Evidence struct {
	SymbolKey string
	Path      string
	Kind      string
	Name      string
	Reason    string
	Score     float64
}

// ChannelStats reports one retrieval channel's contribution to an
// answer.
type ChannelStats struct {
	Ran      bool
	Hits     int
	Failed   bool
	Duration time.Duration
}

// Answer is the planner's output for one question: ranked evidence
// plus enough bookkeeping to explain how it was produced. Rendering
// the evidence into prose is a downstream consumer's job.
type Answer struct {
	ID         string
	Question   string
	Route      Route
	Evidence   []Evidence
	Degraded   bool
	Structural ChannelStats
	Semantic   ChannelStats
	Duration   time.Duration
}

// Planner routes natural-language questions across the graph and the
// semantic index and merges both result sets into one ranking.
//
// Create one with [Engine.Planner]; a Planner is stateless and safe
// for concurrent use.
type Planner struct {
	query *QueryBuilder
	sem   *semindex.Index
	cfg   *config.Config
	log   *slog.Logger
}

// Ask classifies the question, dispatches the chosen channels
// concurrently, and returns merged, ranked evidence. A failing channel
// degrades the answer to the surviving one; ErrNoEvidence is returned
// when every channel failed or came back empty.
func (p *Planner) Ask(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()
	in := classify(question)

	answer := &Answer{
		ID:       uuid.NewString(),
		Question: question,
		Route:    in.route,
	}
	p.log.Debug("question classified",
		"answer_id", answer.ID,
		"route", in.route,
		"symbols", in.symbols,
		"candidates", in.candidates,
	)

	structural, semantic := p.dispatch(ctx, in)
	answer.Structural = structural.stats()
	answer.Semantic = semantic.stats()

	ranFailed := 0
	ranTotal := 0
	for _, ch := range []*channelResult{structural, semantic} {
		if !ch.ran {
			continue
		}
		ranTotal++
		if ch.err != nil {
			ranFailed++
			p.log.Warn("query channel failed",
				"answer_id", answer.ID,
				"channel", ch.name,
				"error", ch.err,
			)
		}
	}
	if ranFailed == ranTotal {
		return nil, fmt.Errorf("all query channels failed: %w", ErrNoEvidence)
	}
	answer.Degraded = ranFailed > 0

	answer.Evidence = p.merge(structural.hits, semantic.hits)
	answer.Duration = time.Since(start)
	if len(answer.Evidence) == 0 {
		return nil, ErrNoEvidence
	}

	p.log.Debug("question answered",
		"answer_id", answer.ID,
		"evidence", len(answer.Evidence),
		"degraded", answer.Degraded,
		"duration", answer.Duration.Round(time.Millisecond),
	)
	return answer, nil
}

// merge folds both channels into one ranking. A symbol present in both
// gets the weighted sum of its scores; weights come from configuration
// and default to an even split.
func (p *Planner) merge(structural, semantic []Evidence) []Evidence {
	type channelScores struct {
		structural float64
		semantic   float64
		ev         Evidence
		reasons    []string
	}

	scoreMap := make(map[string]channelScores)
	order := make([]string, 0, len(structural)+len(semantic))

	for _, ev := range structural {
		entry, ok := scoreMap[ev.SymbolKey]
		if !ok {
			entry.ev = ev
			order = append(order, ev.SymbolKey)
		}
		if ev.Score > entry.structural {
			entry.structural = ev.Score
		}
		entry.reasons = appendReason(entry.reasons, ev.Reason)
		scoreMap[ev.SymbolKey] = entry
	}
	for _, ev := range semantic {
		entry, ok := scoreMap[ev.SymbolKey]
		if !ok {
			entry.ev = ev
			order = append(order, ev.SymbolKey)
		}
		if ev.Score > entry.semantic {
			entry.semantic = ev.Score
		}
		entry.reasons = appendReason(entry.reasons, ev.Reason)
		scoreMap[ev.SymbolKey] = entry
	}

	merged := make([]Evidence, 0, len(order))
	for _, key := range order {
		entry := scoreMap[key]
		ev := entry.ev
		ev.Score = p.cfg.Query.GraphWeight*entry.structural +
			p.cfg.Query.SemanticWeight*entry.semantic
		ev.Reason = joinReasons(entry.reasons)
		merged = append(merged, ev)
	}

	sortEvidence(merged)
	if limit := p.cfg.Query.Limit; len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func appendReason(reasons []string, reason string) []string {
	for _, r := range reasons {
		if r == reason {
			return reasons
		}
	}
	return append(reasons, reason)
}

func joinReasons(reasons []string) string {
	switch len(reasons) {
	case 0:
		return ""
	case 1:
		return reasons[0]
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
