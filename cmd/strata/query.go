package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayushkumar29/strata"
)

var flagLimit int

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the knowledge graph",
	Long:  "Structural queries against an indexed project. All line numbers are 1-based.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "result limit for search commands")

	queryCmd.AddCommand(resolveCmd)
	queryCmd.AddCommand(searchCmd)
	queryCmd.AddCommand(callersCmd)
	queryCmd.AddCommand(calleesCmd)
	queryCmd.AddCommand(importsCmd)
	queryCmd.AddCommand(importersCmd)
	queryCmd.AddCommand(structureCmd)
	queryCmd.AddCommand(hierarchyCmd)
	queryCmd.AddCommand(pathCmd)
	queryCmd.AddCommand(semanticCmd)
}

// --- Output helpers ---

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so
// RunE can propagate it to Cobra. In JSON mode the error is written to
// stdout as a CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// --- Conversion helpers ---

// filePathIndex bulk-loads the file id to path mapping so node
// conversion never does per-row lookups.
func filePathIndex(e *strata.Engine) map[int64]string {
	files, err := e.Store().Files()
	if err != nil {
		return nil
	}
	paths := make(map[int64]string, len(files))
	for _, f := range files {
		paths[f.ID] = f.Path
	}
	return paths
}

func nodeToCLI(paths map[int64]string, n *strata.Node) CLINode {
	c := CLINode{
		Key:           n.Key,
		Kind:          n.Kind,
		Name:          n.Name,
		QualifiedName: n.QualifiedName,
		StartLine:     n.StartLine,
		EndLine:       n.EndLine,
		Signature:     n.Signature,
		Stub:          n.IsStub,
	}
	if n.FileID != nil {
		c.File = paths[*n.FileID]
	}
	return c
}

func nodesToCLI(paths map[int64]string, nodes []*strata.Node) []CLINode {
	out := make([]CLINode, len(nodes))
	for i, n := range nodes {
		out[i] = nodeToCLI(paths, n)
	}
	return out
}

func callSitesToCLI(paths map[int64]string, sites []strata.CallSite) []CLICallSite {
	out := make([]CLICallSite, len(sites))
	for i, s := range sites {
		out[i] = CLICallSite{Symbol: nodeToCLI(paths, s.Symbol), File: s.File, Line: s.Line}
	}
	return out
}

func moduleDepsToCLI(paths map[int64]string, deps []strata.ModuleDep) []CLIModuleDep {
	out := make([]CLIModuleDep, len(deps))
	for i, d := range deps {
		out[i] = CLIModuleDep{Module: nodeToCLI(paths, d.Module), File: d.File, Line: d.Line}
	}
	return out
}

func relatedToCLI(paths map[int64]string, nodes []strata.TraversalNode) []CLIRelated {
	out := make([]CLIRelated, len(nodes))
	for i, tn := range nodes {
		out[i] = CLIRelated{Symbol: nodeToCLI(paths, tn.Node), Depth: tn.Depth}
		if tn.Via != nil {
			out[i].Edge = tn.Via.Kind
		}
	}
	return out
}

// --- Name-based commands ---

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Find the declarations a name refers to",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("resolve", err)
	}
	defer engine.Close()

	nodes, err := engine.Query().Resolve(args[0])
	if err != nil {
		return outputError("resolve", err)
	}
	results := nodesToCLI(filePathIndex(engine), nodes)
	count := len(results)
	return outputResult(CLIResult{Command: "resolve", Results: results, TotalCount: &count})
}

var searchCmd = &cobra.Command{
	Use:   "search <fragment>",
	Short: "Find declarations whose name contains a fragment",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("search", err)
	}
	defer engine.Close()

	nodes, err := engine.Query().Search(args[0], flagLimit)
	if err != nil {
		return outputError("search", err)
	}
	results := nodesToCLI(filePathIndex(engine), nodes)
	count := len(results)
	return outputResult(CLIResult{Command: "search", Results: results, TotalCount: &count})
}

var callersCmd = &cobra.Command{
	Use:   "callers <name>",
	Short: "Find call sites targeting a function or method",
	Args:  cobra.ExactArgs(1),
	RunE:  runCallers,
}

func runCallers(cmd *cobra.Command, args []string) error {
	return runCallSites("callers", args[0], (*strata.QueryBuilder).Callers)
}

var calleesCmd = &cobra.Command{
	Use:   "callees <name>",
	Short: "Find the symbols a function or method calls",
	Args:  cobra.ExactArgs(1),
	RunE:  runCallees,
}

func runCallees(cmd *cobra.Command, args []string) error {
	return runCallSites("callees", args[0], (*strata.QueryBuilder).Callees)
}

func runCallSites(command, name string, fn func(*strata.QueryBuilder, string) ([]strata.CallSite, error)) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError(command, err)
	}
	defer engine.Close()

	q := engine.Query()
	nodes, err := q.Resolve(name)
	if err != nil {
		return outputError(command, err)
	}
	if len(nodes) == 0 {
		return outputError(command, fmt.Errorf("symbol not found: %s", name))
	}

	sites, err := fn(q, name)
	if err != nil {
		return outputError(command, err)
	}
	results := callSitesToCLI(filePathIndex(engine), sites)
	count := len(results)
	return outputResult(CLIResult{Command: command, Results: results, TotalCount: &count})
}

var importsCmd = &cobra.Command{
	Use:   "imports <file>",
	Short: "List the modules a file imports",
	Args:  cobra.ExactArgs(1),
	RunE:  runImports,
}

func runImports(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("imports", err)
	}
	defer engine.Close()

	rel := projectRelPath(engine, args[0])
	deps, err := engine.Query().ImportsOf(rel)
	if err != nil {
		return outputError("imports", err)
	}
	if deps == nil {
		return outputError("imports", fmt.Errorf("file not indexed: %s", rel))
	}
	results := moduleDepsToCLI(filePathIndex(engine), deps)
	count := len(results)
	return outputResult(CLIResult{Command: "imports", Results: results, TotalCount: &count})
}

var importersCmd = &cobra.Command{
	Use:   "importers <module>",
	Short: "List the files importing a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runImporters,
}

func runImporters(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("importers", err)
	}
	defer engine.Close()

	deps, err := engine.Query().ImportersOf(args[0])
	if err != nil {
		return outputError("importers", err)
	}
	results := moduleDepsToCLI(filePathIndex(engine), deps)
	count := len(results)
	return outputResult(CLIResult{Command: "importers", Results: results, TotalCount: &count})
}

var structureCmd = &cobra.Command{
	Use:   "structure <file>",
	Short: "Show the declaration structure of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runStructure,
}

func runStructure(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("structure", err)
	}
	defer engine.Close()

	rel := projectRelPath(engine, args[0])
	outline, err := engine.Query().FileStructure(rel)
	if err != nil {
		return outputError("structure", err)
	}
	if outline == nil {
		return outputError("structure", fmt.Errorf("file not indexed: %s", rel))
	}

	paths := filePathIndex(engine)
	result := CLIOutline{
		Path:      outline.File.Path,
		Language:  outline.File.Language,
		Classes:   make([]CLIOutlineClass, len(outline.Classes)),
		Functions: nodesToCLI(paths, outline.Functions),
	}
	if outline.Module != nil {
		m := nodeToCLI(paths, outline.Module)
		result.Module = &m
	}
	for i, oc := range outline.Classes {
		result.Classes[i] = CLIOutlineClass{
			Class:   nodeToCLI(paths, oc.Class),
			Methods: nodesToCLI(paths, oc.Methods),
		}
	}
	one := 1
	return outputResult(CLIResult{Command: "structure", Results: result, TotalCount: &one})
}

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy <class>",
	Short: "Show a class's ancestors and descendants",
	Args:  cobra.ExactArgs(1),
	RunE:  runHierarchy,
}

func runHierarchy(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("hierarchy", err)
	}
	defer engine.Close()

	h, err := engine.Query().Hierarchy(args[0])
	if err != nil {
		return outputError("hierarchy", err)
	}
	if h == nil {
		return outputError("hierarchy", fmt.Errorf("class not found: %s", args[0]))
	}

	paths := filePathIndex(engine)
	result := CLIHierarchy{
		Root:        nodeToCLI(paths, h.Root),
		Ancestors:   relatedToCLI(paths, h.Ancestors),
		Descendants: relatedToCLI(paths, h.Descendants),
	}
	one := 1
	return outputResult(CLIResult{Command: "hierarchy", Results: result, TotalCount: &one})
}

var pathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Find a shortest dependency path between two symbols",
	Args:  cobra.ExactArgs(2),
	RunE:  runPath,
}

func runPath(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("path", err)
	}
	defer engine.Close()

	q := engine.Query()
	for _, name := range args {
		nodes, err := q.Resolve(name)
		if err != nil {
			return outputError("path", err)
		}
		if len(nodes) == 0 {
			return outputError("path", fmt.Errorf("symbol not found: %s", name))
		}
	}

	steps, err := q.PathBetween(args[0], args[1])
	if err != nil {
		return outputError("path", err)
	}

	paths := filePathIndex(engine)
	results := make([]CLIPathStep, len(steps))
	for i, s := range steps {
		results[i] = CLIPathStep{Symbol: nodeToCLI(paths, s.Node)}
		if s.Edge != nil {
			results[i].Edge = s.Edge.Kind
		}
	}
	count := len(results)
	return outputResult(CLIResult{Command: "path", Results: results, TotalCount: &count})
}

var flagKinds []string

var semanticCmd = &cobra.Command{
	Use:   "semantic <text>...",
	Short: "Search symbols by meaning",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSemantic,
}

func init() {
	semanticCmd.Flags().StringSliceVar(&flagKinds, "kind", nil, "restrict hits to symbol kinds (class, function, method)")
}

func runSemantic(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("semantic", err)
	}
	defer engine.Close()

	hits, err := engine.SearchSemantic(cmd.Context(), strings.Join(args, " "), flagLimit, flagKinds...)
	if err != nil {
		return outputError("semantic", err)
	}

	results := make([]CLISemanticHit, len(hits))
	for i, h := range hits {
		results[i] = CLISemanticHit{
			SymbolKey: h.SymbolKey,
			File:      h.Path,
			Kind:      h.Kind,
			Name:      h.Name,
			Snippet:   h.Snippet,
			Score:     h.Score,
		}
	}
	count := len(results)
	return outputResult(CLIResult{Command: "semantic", Results: results, TotalCount: &count})
}

// projectRelPath normalizes a file argument to the root-relative slash
// form stored in the graph. Relative arguments are taken as already
// root-relative.
func projectRelPath(e *strata.Engine, arg string) string {
	if filepath.IsAbs(arg) {
		if rel, err := e.RelPath(arg); err == nil {
			return rel
		}
	}
	return filepath.ToSlash(arg)
}
