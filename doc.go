// Package strata builds a queryable knowledge graph from a codebase. It
// parses Python, JavaScript and TypeScript sources with tree-sitter,
// extracts declarations and their relationships into SQLite, embeds
// symbols into a semantic index, and answers natural-language questions
// by combining graph traversal with semantic search.
//
// # Pipeline
//
// Indexing runs in three phases per batch:
//
//  1. Prepare: read each file, hash its content, and skip files whose
//     hash matches the stored generation.
//  2. Extract: parse changed files in parallel, then resolve every
//     reference against an index of the whole batch plus the persisted
//     graph. References that cannot be bound become named stub nodes.
//  3. Commit: replace each file's generation atomically and refresh the
//     file's symbol embeddings.
//
// A full scan ends with reconciliation: files present in the store but
// missing from the scan are deleted, demoting still-referenced symbols
// to stubs.
//
// # Usage
//
// Create an Engine rooted at a project directory, index, and query:
//
//	e, err := strata.New("/path/to/project")
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.IndexDirectory(ctx)
//
//	q := e.Query()
//	sites, err := q.Callers("authenticate")
//
//	answer, err := e.Planner().Ask(ctx, "who calls authenticate?")
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] answers structural
// questions:
//
//   - [QueryBuilder.Callers] / [QueryBuilder.Callees]: the call graph
//     around a function or method.
//   - [QueryBuilder.Hierarchy]: ancestors and descendants of a class.
//   - [QueryBuilder.ImportsOf] / [QueryBuilder.ImportersOf]: module
//     dependencies in both directions.
//   - [QueryBuilder.FileStructure]: the declarations of one file.
//   - [QueryBuilder.PathBetween]: a shortest dependency path between
//     two symbols.
//   - [QueryBuilder.Search]: name-fragment search over declarations.
//
// [Engine.SearchSemantic] searches by meaning instead of name. The
// [Planner] returned by [Engine.Planner] classifies a natural-language
// question, dispatches the graph and semantic branches concurrently,
// and merges both result sets into one ranked answer.
//
// # Incremental Indexing
//
// [Engine.IndexFiles] skips unchanged files by content hash. Replacing
// a file never rewrites other files' data: cross-file references into
// the replaced file survive as stubs and re-resolve when either side is
// next scanned.
package strata
