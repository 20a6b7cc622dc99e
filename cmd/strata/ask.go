package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayushkumar29/strata"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>...",
	Short: "Ask a natural-language question about the codebase",
	Long:  "Classifies the question, queries the graph and the semantic index as the phrasing warrants, and returns ranked evidence. \"Who calls validate_user?\" walks the graph; \"where is retry logic?\" searches by meaning.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("ask", err)
	}
	defer engine.Close()

	question := strings.Join(args, " ")
	answer, err := engine.Planner().Ask(cmd.Context(), question)
	if err != nil {
		if errors.Is(err, strata.ErrNoEvidence) {
			return outputError("ask", fmt.Errorf("no evidence found for %q", question))
		}
		return outputError("ask", err)
	}

	count := len(answer.Evidence)
	return outputResult(CLIResult{Command: "ask", Results: answerToCLI(answer), TotalCount: &count})
}

func answerToCLI(a *strata.Answer) CLIAnswer {
	out := CLIAnswer{
		ID:         a.ID,
		Question:   a.Question,
		Route:      string(a.Route),
		Degraded:   a.Degraded,
		Evidence:   make([]CLIEvidence, len(a.Evidence)),
		Structural: channelToCLI(a.Structural),
		Semantic:   channelToCLI(a.Semantic),
		DurationMs: a.Duration.Milliseconds(),
	}
	for i, ev := range a.Evidence {
		out.Evidence[i] = CLIEvidence{
			SymbolKey: ev.SymbolKey,
			File:      ev.Path,
			Kind:      ev.Kind,
			Name:      ev.Name,
			Reason:    ev.Reason,
			Score:     ev.Score,
		}
	}
	return out
}

func channelToCLI(c strata.ChannelStats) CLIChannel {
	return CLIChannel{
		Ran:        c.Ran,
		Hits:       c.Hits,
		Failed:     c.Failed,
		DurationMs: c.Duration.Milliseconds(),
	}
}

func reportToCLI(r *strata.Report) CLIReport {
	out := CLIReport{
		RunID:      r.RunID,
		Scanned:    r.Scanned,
		Indexed:    r.Indexed,
		Skipped:    r.Skipped,
		Deleted:    r.Deleted,
		Embedded:   r.Embedded,
		DurationMs: r.Duration.Milliseconds(),
	}
	for _, fe := range r.Errors {
		out.Errors = append(out.Errors, CLIFileError{Path: fe.Path, Error: fe.Err.Error()})
	}
	return out
}

func statsToCLI(st *strata.IndexStats) CLIStats {
	return CLIStats{
		Files:           st.Files,
		Nodes:           st.Nodes,
		Edges:           st.Edges,
		Stubs:           st.Stubs,
		EmbeddedSymbols: st.EmbeddedSymbols,
		NodesByKind:     st.NodesByKind,
		EdgesByKind:     st.EdgesByKind,
		Languages:       st.Languages,
	}
}
