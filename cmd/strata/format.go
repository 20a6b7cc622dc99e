package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatNodesText renders declarations as aligned columns.
func formatNodesText(w io.Writer, nodes []CLINode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tFILE\tLINE")
	for _, n := range nodes {
		name := n.QualifiedName
		if n.Stub {
			name += " (external)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", name, n.Kind, n.File, n.StartLine)
	}
	tw.Flush()
}

// formatCallSitesText renders call-graph results as aligned columns.
func formatCallSitesText(w io.Writer, sites []CLICallSite) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tKIND\tCALL SITE")
	for _, s := range sites {
		fmt.Fprintf(tw, "%s\t%s\t%s:%d\n", s.Symbol.QualifiedName, s.Symbol.Kind, s.File, s.Line)
	}
	tw.Flush()
}

// formatModuleDepsText renders import relationships as aligned columns.
func formatModuleDepsText(w io.Writer, deps []CLIModuleDep) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tFILE\tLINE")
	for _, d := range deps {
		name := d.Module.QualifiedName
		if d.Module.Stub {
			name += " (external)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", name, d.File, d.Line)
	}
	tw.Flush()
}

// formatOutlineText renders a file outline as an indented tree.
func formatOutlineText(w io.Writer, o CLIOutline) {
	fmt.Fprintf(w, "%s (%s)\n", o.Path, o.Language)
	if o.Module != nil {
		fmt.Fprintf(w, "module %s\n", o.Module.QualifiedName)
	}
	for _, c := range o.Classes {
		fmt.Fprintf(w, "  class %s", c.Class.Name)
		if c.Class.Signature != "" {
			fmt.Fprintf(w, "(%s)", c.Class.Signature)
		}
		fmt.Fprintf(w, "  :%d\n", c.Class.StartLine)
		for _, m := range c.Methods {
			fmt.Fprintf(w, "    def %s  :%d\n", m.Name, m.StartLine)
		}
	}
	for _, f := range o.Functions {
		fmt.Fprintf(w, "  def %s  :%d\n", f.Name, f.StartLine)
	}
}

// formatHierarchyText renders a class hierarchy in two sections.
func formatHierarchyText(w io.Writer, h CLIHierarchy) {
	fmt.Fprintf(w, "class %s", h.Root.QualifiedName)
	if h.Root.File != "" {
		fmt.Fprintf(w, "  (%s:%d)", h.Root.File, h.Root.StartLine)
	}
	fmt.Fprintln(w)

	if len(h.Ancestors) > 0 {
		fmt.Fprintln(w, "Bases:")
		for _, a := range h.Ancestors {
			fmt.Fprintf(w, "  %s%s  depth %d\n", a.Symbol.QualifiedName, stubSuffix(a.Symbol), a.Depth)
		}
	}
	if len(h.Descendants) > 0 {
		fmt.Fprintln(w, "Subclasses:")
		for _, d := range h.Descendants {
			fmt.Fprintf(w, "  %s%s  depth %d\n", d.Symbol.QualifiedName, stubSuffix(d.Symbol), d.Depth)
		}
	}
	if len(h.Ancestors) == 0 && len(h.Descendants) == 0 {
		fmt.Fprintln(w, "No inheritance relationships recorded.")
	}
}

// formatPathText renders a dependency path one hop per line.
func formatPathText(w io.Writer, steps []CLIPathStep) {
	if len(steps) == 0 {
		fmt.Fprintln(w, "No path found.")
		return
	}
	for _, s := range steps {
		if s.Edge == "" {
			fmt.Fprintf(w, "%s (%s)\n", s.Symbol.QualifiedName, s.Symbol.Kind)
			continue
		}
		fmt.Fprintf(w, "  via %s: %s (%s)\n", s.Edge, s.Symbol.QualifiedName, s.Symbol.Kind)
	}
}

// formatSemanticHitsText renders semantic search results.
func formatSemanticHitsText(w io.Writer, hits []CLISemanticHit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tNAME\tKIND\tFILE")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", h.Score, h.Name, h.Kind, h.File)
	}
	tw.Flush()
}

// formatAnswerText renders a planner answer: the route taken, then the
// evidence ranked best first.
func formatAnswerText(w io.Writer, a CLIAnswer) {
	fmt.Fprintf(w, "Route: %s\n", a.Route)
	if a.Degraded {
		fmt.Fprintln(w, "Note: one retrieval channel failed; results come from the other.")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tNAME\tKIND\tFILE\tWHY")
	for _, ev := range a.Evidence {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%s\n", ev.Score, ev.Name, ev.Kind, ev.File, ev.Reason)
	}
	tw.Flush()
}

// formatStatsText renders index statistics as readable text.
func formatStatsText(w io.Writer, st CLIStats) {
	fmt.Fprintln(w, "Index Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Files: %d\n", st.Files)
	fmt.Fprintf(w, "Nodes: %d (%d stubs)\n", st.Nodes, st.Stubs)
	fmt.Fprintf(w, "Edges: %d\n", st.Edges)
	fmt.Fprintf(w, "Embedded symbols: %d\n", st.EmbeddedSymbols)

	if len(st.Languages) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Languages:")
		for _, lang := range sortedKeys(st.Languages) {
			fmt.Fprintf(w, "  %s: %d files\n", lang, st.Languages[lang])
		}
	}
	if len(st.NodesByKind) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Nodes by kind:")
		for _, kind := range sortedKeys(st.NodesByKind) {
			fmt.Fprintf(w, "  %s: %d\n", kind, st.NodesByKind[kind])
		}
	}
	if len(st.EdgesByKind) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Edges by kind:")
		for _, kind := range sortedKeys(st.EdgesByKind) {
			fmt.Fprintf(w, "  %s: %d\n", kind, st.EdgesByKind[kind])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stubSuffix(n CLINode) string {
	if n.Stub {
		return " (external)"
	}
	return ""
}

// outputResultText dispatches to the appropriate text formatter based
// on the result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []CLINode:
		formatNodesText(w, v)
	case []CLICallSite:
		formatCallSitesText(w, v)
	case []CLIModuleDep:
		formatModuleDepsText(w, v)
	case CLIOutline:
		formatOutlineText(w, v)
	case CLIHierarchy:
		formatHierarchyText(w, v)
	case []CLIPathStep:
		formatPathText(w, v)
	case []CLISemanticHit:
		formatSemanticHitsText(w, v)
	case CLIAnswer:
		formatAnswerText(w, v)
	case CLIStats:
		formatStatsText(w, v)
	case nil:
		// No output for nil results.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
