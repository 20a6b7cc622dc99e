package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayushkumar29/strata"
	"github.com/ayushkumar29/strata/internal/config"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "strata",
	Short:         "Code knowledge graph with hybrid structural and semantic query",
	Long:          "Strata parses source code with tree-sitter into a SQLite knowledge graph plus a semantic vector index, and answers questions by combining graph traversal with semantic search.",
	Version:       strata.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "index directory (default: .strata relative to project root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)
}

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a project directory",
	Long:  "Scans the project, parses changed source files, extracts declarations and relationships into the graph, and embeds symbols into the semantic index. Files in the store but gone from disk are reconciled away.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "clear both indexes and reindex from scratch")
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("index", err)
	}

	engine, err := openEngine(root)
	if err != nil {
		return outputError("index", err)
	}
	defer engine.Close()

	if flagForce {
		if err := engine.Clear(); err != nil {
			return outputError("index", fmt.Errorf("clearing indexes: %w", err))
		}
		fmt.Fprintln(os.Stderr, "Cleared indexes")
	}

	report, err := engine.IndexDirectory(cmd.Context())
	if err != nil {
		return outputError("index", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (%d indexed, %d skipped, %d deleted, %d errors)\n",
		root,
		report.Duration.Round(time.Millisecond),
		report.Indexed,
		report.Skipped,
		report.Deleted,
		len(report.Errors),
	)
	for _, fe := range report.Errors {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", fe.Path, fe.Err)
	}

	if flagFormat == "text" {
		return nil
	}
	return outputResult(CLIResult{Command: "index", Results: reportToCLI(report)})
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	engine, err := openEngineHere()
	if err != nil {
		return outputError("stats", err)
	}
	defer engine.Close()

	st, err := engine.Stats()
	if err != nil {
		return outputError("stats", err)
	}
	return outputResult(CLIResult{Command: "stats", Results: statsToCLI(st)})
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long:  "Creates .strata/config.yaml with the default settings so the knobs are visible and editable.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("init", err)
	}
	path := filepath.Join(config.Dir(root), "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return outputError("init", fmt.Errorf("config already exists: %s", path))
	}
	if err := config.Default().Save(root); err != nil {
		return outputError("init", fmt.Errorf("writing config: %w", err))
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a project and re-index on change",
	Long:  "Performs one full index, then watches the tree and incrementally re-indexes changed files after a debounce window. Runs until interrupted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("watch", err)
	}

	engine, err := openEngine(root)
	if err != nil {
		return outputError("watch", err)
	}
	defer engine.Close()

	ctx := cmd.Context()
	report, err := engine.IndexDirectory(ctx)
	if err != nil {
		return outputError("watch", err)
	}
	fmt.Fprintf(os.Stderr, "Indexed %d files, watching %s\n", report.Indexed, root)

	if err := engine.Watch(ctx); err != nil && ctx.Err() == nil {
		return outputError("watch", err)
	}
	return nil
}

// resolveTargetDir returns the absolute path of the directory to work
// on: the positional argument, or the enclosing project root.
func resolveTargetDir(args []string) (string, error) {
	if len(args) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting cwd: %w", err)
		}
		return findProjectRoot(cwd), nil
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", args[0], err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for an existing
// .strata index, then for a .git directory. Returns startDir when
// neither is found.
func findProjectRoot(startDir string) string {
	for _, marker := range []string{".strata", ".git"} {
		dir := startDir
		for {
			if info, err := os.Stat(filepath.Join(dir, marker)); err == nil && info.IsDir() {
				return dir
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return startDir
}

// openEngine opens an Engine rooted at dir, honoring --db.
func openEngine(dir string) (*strata.Engine, error) {
	opts := []strata.Option{strata.WithLogger(slog.Default())}
	if flagDB != "" {
		indexDir := flagDB
		if !filepath.IsAbs(indexDir) {
			indexDir = filepath.Join(dir, indexDir)
		}
		opts = append(opts, strata.WithIndexDir(indexDir))
	}
	return strata.New(dir, opts...)
}

// openEngineHere opens an Engine for the project enclosing the current
// directory, failing when nothing has been indexed yet.
func openEngineHere() (*strata.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	root := findProjectRoot(cwd)
	if flagDB == "" {
		if _, err := os.Stat(config.GraphPath(root)); os.IsNotExist(err) {
			return nil, fmt.Errorf("index not found: %s (run 'strata index' first)", config.GraphPath(root))
		}
	}
	return openEngine(root)
}
