package strata

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayushkumar29/strata/internal/extract"
	"github.com/ayushkumar29/strata/internal/parse"
	"github.com/ayushkumar29/strata/internal/semindex"
	"github.com/ayushkumar29/strata/internal/store"
)

// Report summarizes one indexing run. Per-file failures are collected
// here rather than aborting the batch; the caller decides what to do
// with them.
type Report struct {
	RunID    string
	Scanned  int
	Indexed  int
	Skipped  int
	Deleted  int
	Embedded int
	Errors   []FileError
	Duration time.Duration
}

func (r *Report) fail(path string, err error) {
	r.Errors = append(r.Errors, FileError{Path: path, Err: err})
}

// FileError records why one file could not be indexed.
type FileError struct {
	Path string
	Err  error
}

func (fe FileError) Error() string { return fe.Path + ": " + fe.Err.Error() }

func (fe FileError) Unwrap() error { return fe.Err }

// workItem carries one changed file through the pipeline phases.
type workItem struct {
	path      string // root-relative slash path
	lang      string
	content   []byte
	hash      string
	lineCount int

	tree *parse.Tree
	gen  store.Generation
}

// IndexFiles indexes the given files through a four-step pipeline:
//
//	Step 1 (serial):   hash check; unchanged files drop out.
//	Step 2 (parallel): parse changed files into symbol trees.
//	Barrier:           build the batch declaration index.
//	Step 3 (parallel): extract generations, resolving references
//	                   against the index and the persisted graph.
//	Step 4 (serial):   commit generations, then refresh embeddings.
//
// The barrier between parsing and extraction guarantees a reference in
// any file can reach a declaration in any other file of the batch,
// regardless of processing order.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Scanned: len(paths)}

	// ---- Step 1: serial prepare ----
	var items []*workItem
	for _, p := range paths {
		rel, err := e.RelPath(p)
		if err != nil {
			report.fail(p, err)
			continue
		}
		item, skip, err := e.prepareFile(rel)
		if err != nil {
			report.fail(rel, err)
			continue
		}
		if skip {
			report.Skipped++
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		report.Duration = time.Since(start)
		return report, nil
	}

	// ---- Step 2: parallel parse ----
	parsed := e.runWorkers(ctx, items, report, func(ctx context.Context, item *workItem) error {
		parser, ok := parse.ForLanguage(item.lang)
		if !ok {
			return fmt.Errorf("no parser for %s", item.lang)
		}
		tree, err := parser.Parse(ctx, item.content, item.path)
		if err != nil {
			perr := &ParseError{Path: item.path, Err: err}
			var serr *parse.SyntaxError
			if errors.As(err, &serr) {
				perr.Line, perr.Col = serr.Line, serr.Col
			}
			return perr
		}
		item.tree = tree
		return nil
	})
	if err := ctx.Err(); err != nil {
		return report, err
	}

	// ---- Barrier: batch declaration index ----
	trees := make([]*parse.Tree, len(parsed))
	for i, item := range parsed {
		trees[i] = item.tree
	}
	idx := extract.BuildIndex(trees)

	// ---- Step 3: parallel extract ----
	extractor := extract.New(e.store)
	extracted := e.runWorkers(ctx, parsed, report, func(_ context.Context, item *workItem) error {
		gen, err := extractor.Extract(item.tree, item.hash, item.lineCount, idx)
		if err != nil {
			return err
		}
		item.gen = gen
		return nil
	})
	if err := ctx.Err(); err != nil {
		return report, err
	}

	// ---- Step 4: serial commit ----
	var entries []semindex.Entry
	for _, item := range extracted {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := retryTransient(ctx, func() error {
			return e.store.ReplaceFileData(item.gen)
		})
		if err != nil {
			report.fail(item.path, fmt.Errorf("commit: %w", err))
			continue
		}
		report.Indexed++
		e.log.Debug("indexed file",
			"run_id", report.RunID,
			"path", item.path,
			"nodes", len(item.gen.Nodes),
			"edges", len(item.gen.Edges),
		)

		// Entries are built after commit: key disambiguation during the
		// commit may have renamed a node.
		fileEntries := symbolEntries(item.gen)
		keep := make([]string, 0, len(fileEntries))
		for _, en := range fileEntries {
			keep = append(keep, en.SymbolKey)
		}
		if err := e.sem.DeleteMissing(item.path, keep); err != nil {
			e.log.Warn("semantic prune failed", "path", item.path, "error", err)
		}
		entries = append(entries, fileEntries...)
	}

	err := retryTransient(ctx, func() error {
		return e.sem.IndexSymbols(ctx, entries)
	})
	if err != nil {
		// The graph data is already committed; a failing embedding
		// backend degrades search, it does not fail the run.
		e.log.Warn("semantic indexing degraded", "run_id", report.RunID, "error", err)
	} else {
		report.Embedded = len(entries)
	}

	report.Duration = time.Since(start)
	return report, nil
}

// prepareFile reads and hashes one candidate. skip=true means the file
// is unsupported, over the size cap, or unchanged since its stored
// generation.
func (e *Engine) prepareFile(relPath string) (*workItem, bool, error) {
	lang, ok := parse.LanguageForFile(relPath)
	if !ok {
		return nil, true, nil
	}

	content, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, false, &ScanError{Path: relPath, Err: err}
	}
	if !e.withinSizeLimit(int64(len(content))) {
		e.log.Warn("file exceeds size cap, skipping", "path", relPath, "bytes", len(content))
		return nil, true, nil
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := e.store.FileByPath(relPath)
	if err != nil {
		return nil, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return nil, true, nil
	}

	return &workItem{
		path:      relPath,
		lang:      lang,
		content:   content,
		hash:      hash,
		lineCount: bytes.Count(content, []byte{'\n'}) + 1,
	}, false, nil
}

// runWorkers applies fn to every item with bounded parallelism. Failed
// items are recorded on the report; survivors come back in input order
// so downstream phases stay deterministic.
func (e *Engine) runWorkers(ctx context.Context, items []*workItem, report *Report, fn func(context.Context, *workItem) error) []*workItem {
	workers := min(e.workers, len(items))
	if workers < 1 {
		workers = 1
	}

	workCh := make(chan *workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		fails = make(map[string]error)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if ctx.Err() != nil {
					return
				}
				if err := fn(ctx, item); err != nil {
					mu.Lock()
					fails[item.path] = err
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	var kept []*workItem
	for _, item := range items {
		if err, ok := fails[item.path]; ok {
			report.fail(item.path, err)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// symbolEntries renders the embeddable entries of a committed
// generation: one per class, function and method.
func symbolEntries(gen store.Generation) []semindex.Entry {
	var entries []semindex.Entry
	for _, n := range gen.Nodes {
		switch n.Kind {
		case store.KindClass, store.KindFunction, store.KindMethod:
		default:
			continue
		}
		entries = append(entries, semindex.Entry{
			SymbolKey: n.Key,
			Path:      gen.File.Path,
			Kind:      n.Kind,
			Name:      n.QualifiedName,
			Snippet:   semindex.Snippet(n.Kind, n.QualifiedName, n.Doc, n.Signature, gen.File.Path),
		})
	}
	return entries
}
