package strata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ayushkumar29/strata/internal/config"
	"github.com/ayushkumar29/strata/internal/semindex"
	"github.com/ayushkumar29/strata/internal/store"
)

// Engine orchestrates the pipeline: file discovery, change detection,
// parallel extraction, graph commits, semantic embedding, and query
// access. All stored file paths are relative to the engine root.
type Engine struct {
	root           string
	cfg            *config.Config
	store          *store.Store
	sem            *semindex.Index
	log            *slog.Logger
	workers        int
	excludeMatcher *ignore.GitIgnore
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	cfg         *config.Config
	log         *slog.Logger
	embedder    semindex.Embedder
	embedderSet bool
	workers     int
	indexDir    string
}

// WithConfig supplies a configuration instead of loading
// .strata/config.yaml from the root.
func WithConfig(cfg *config.Config) Option {
	return func(o *engineOptions) { o.cfg = cfg }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(o *engineOptions) { o.log = log }
}

// WithEmbedder overrides the configured embedding provider. Passing nil
// disables the semantic index.
func WithEmbedder(embedder semindex.Embedder) Option {
	return func(o *engineOptions) {
		o.embedder = embedder
		o.embedderSet = true
	}
}

// WithWorkers sets extraction parallelism. 1 means fully serial.
func WithWorkers(n int) Option {
	return func(o *engineOptions) { o.workers = n }
}

// WithIndexDir overrides where the graph and vector databases live.
// Default is .strata under the project root.
func WithIndexDir(dir string) Option {
	return func(o *engineOptions) { o.indexDir = dir }
}

// New creates an Engine rooted at a project directory. Both databases
// live under <root>/.strata; the directory is created if needed.
func New(root string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		cfg, err = config.Load(abs)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	indexDir := o.indexDir
	if indexDir == "" {
		indexDir = config.Dir(abs)
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	s, err := store.NewStore(filepath.Join(indexDir, config.GraphDB))
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate graph store: %w", err)
	}

	embedder := o.embedder
	if !o.embedderSet {
		embedder = embedderFromConfig(cfg)
	}
	sem, err := semindex.Open(filepath.Join(indexDir, config.VectorsDB), embedder)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open semantic index: %w", err)
	}
	if err := sem.Migrate(); err != nil {
		sem.Close()
		s.Close()
		return nil, fmt.Errorf("migrate semantic index: %w", err)
	}

	workers := o.workers
	if workers <= 0 {
		workers = cfg.Index.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	log := o.log
	if log == nil {
		log = slog.Default()
	}

	var matcher *ignore.GitIgnore
	if len(cfg.Index.Exclude) > 0 {
		matcher = ignore.CompileIgnoreLines(cfg.Index.Exclude...)
	}

	return &Engine{
		root:           abs,
		cfg:            cfg,
		store:          s,
		sem:            sem,
		log:            log,
		workers:        workers,
		excludeMatcher: matcher,
	}, nil
}

// embedderFromConfig builds the embedding backend the configuration
// names. The hash provider keeps indexing fully offline.
func embedderFromConfig(cfg *config.Config) semindex.Embedder {
	switch cfg.Embedding.Provider {
	case "openai":
		return semindex.NewOpenAIEmbedder(
			cfg.Embedding.BaseURL,
			os.Getenv(cfg.Embedding.APIKeyEnv),
			cfg.Embedding.Model,
		)
	case "off":
		return nil
	default:
		return &semindex.HashEmbedder{Dim: cfg.Embedding.Dim}
	}
}

// Close releases both database handles.
func (e *Engine) Close() error {
	serr := e.store.Close()
	xerr := e.sem.Close()
	if serr != nil {
		return serr
	}
	return xerr
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// Store returns the underlying graph store for direct access.
func (e *Engine) Store() *Store { return e.store }

// Query returns a QueryBuilder over the graph store.
func (e *Engine) Query() *QueryBuilder {
	return NewQueryBuilder(e.store)
}

// Planner returns a query planner combining the graph and the semantic
// index under the configured weights.
func (e *Engine) Planner() *Planner {
	return &Planner{
		query: e.Query(),
		sem:   e.sem,
		cfg:   e.cfg,
		log:   e.log,
	}
}

// IndexStats extends graph statistics with the semantic side.
type IndexStats struct {
	Stats
	EmbeddedSymbols int
}

// Stats summarizes everything currently indexed.
func (e *Engine) Stats() (*IndexStats, error) {
	st, err := e.store.Stats()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	embedded, err := e.sem.Count()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &IndexStats{Stats: *st, EmbeddedSymbols: embedded}, nil
}

// Clear removes all indexed data from both stores.
func (e *Engine) Clear() error {
	if err := e.store.Clear(); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	if err := e.sem.Clear(); err != nil {
		return fmt.Errorf("clear semantic index: %w", err)
	}
	return nil
}

// SearchSemantic searches symbols by meaning. Returns up to k hits
// above the configured minimum similarity, optionally restricted to
// the given symbol kinds.
func (e *Engine) SearchSemantic(ctx context.Context, query string, k int, kinds ...string) ([]SemanticHit, error) {
	return e.sem.Search(ctx, query, k, e.cfg.Query.MinScore, kinds...)
}

// IndexDirectory scans the root, indexes every changed file, and
// reconciles deletions: files in the store but absent from the scan are
// removed, demoting still-referenced symbols to stubs.
func (e *Engine) IndexDirectory(ctx context.Context) (*Report, error) {
	start := time.Now()
	paths, err := e.ScanDirectory()
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	report, err := e.IndexFiles(ctx, paths)
	if err != nil {
		return report, err
	}
	if err := e.reconcile(paths, report); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	e.log.Info("index complete",
		"run_id", report.RunID,
		"scanned", report.Scanned,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"errors", len(report.Errors),
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// reconcile removes store entries for files the scan no longer sees.
func (e *Engine) reconcile(scanned []string, report *Report) error {
	seen := make(map[string]bool, len(scanned))
	for _, p := range scanned {
		seen[p] = true
	}

	files, err := e.store.Files()
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		if err := e.store.DeleteFileData(f.Path); err != nil {
			return fmt.Errorf("reconcile %s: %w", f.Path, err)
		}
		if err := e.sem.DeleteByFile(f.Path); err != nil {
			return fmt.Errorf("reconcile %s: %w", f.Path, err)
		}
		report.Deleted++
		e.log.Debug("removed deleted file", "path", f.Path)
	}
	return nil
}

// DeleteFiles removes the given files from both indexes. Paths may be
// absolute or root-relative; unknown paths are ignored.
func (e *Engine) DeleteFiles(paths []string) error {
	for _, p := range paths {
		rel, err := e.RelPath(p)
		if err != nil {
			return err
		}
		if err := e.store.DeleteFileData(rel); err != nil {
			return fmt.Errorf("delete %s: %w", rel, err)
		}
		if err := e.sem.DeleteByFile(rel); err != nil {
			return fmt.Errorf("delete %s: %w", rel, err)
		}
	}
	return nil
}

// RelPath normalizes a path to root-relative slash form. Absolute
// paths must lie under the engine root; relative paths are taken as
// already root-relative.
func (e *Engine) RelPath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(e.root, filepath.FromSlash(p))
	}
	rel, err := filepath.Rel(e.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the project root", p)
	}
	return filepath.ToSlash(rel), nil
}
