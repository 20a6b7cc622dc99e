package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// indexTestFile commits a minimal generation: the file row plus its file
// and module anchor nodes.
func indexTestFile(t *testing.T, s *Store, path, lang, module string) Generation {
	t.Helper()
	gen := Generation{
		File: File{Path: path, Language: lang, Hash: "hash-" + path, LineCount: 10},
		Nodes: []*Node{
			{Key: FileKey(path), Kind: KindFile, Name: filepath.Base(path), QualifiedName: path},
			{Key: ModuleKey(module), Kind: KindModule, Name: lastSegment(module), QualifiedName: module},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))
	return gen
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "nodes", "edges", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	// Running migrate again should not error.
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// File operations
// =============================================================================

func TestFile_IndexAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	indexTestFile(t, s, "src/main.py", "python", "src.main")

	got, err := s.FileByPath("src/main.py")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "src/main.py", got.Path)
	assert.Equal(t, "python", got.Language)
	assert.Equal(t, "hash-src/main.py", got.Hash)
	assert.Equal(t, 10, got.LineCount)
	assert.False(t, got.LastIndexed.IsZero())

	byID, err := s.FileByID(got.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, got.Path, byID.Path)
}

func TestFile_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.FileByPath("nonexistent.py")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFile_ByLanguage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	indexTestFile(t, s, "a.py", "python", "a")
	indexTestFile(t, s, "b.py", "python", "b")
	indexTestFile(t, s, "c.js", "javascript", "c")

	pyFiles, err := s.FilesByLanguage("python")
	require.NoError(t, err)
	assert.Len(t, pyFiles, 2)

	jsFiles, err := s.FilesByLanguage("javascript")
	require.NoError(t, err)
	assert.Len(t, jsFiles, 1)
}

func TestFile_ListOrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	indexTestFile(t, s, "zeta.py", "python", "zeta")
	indexTestFile(t, s, "alpha.py", "python", "alpha")

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "alpha.py", files[0].Path)
	assert.Equal(t, "zeta.py", files[1].Path)
}

// =============================================================================
// Node queries
// =============================================================================

func TestNode_ByKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	gen := Generation{
		File: File{Path: "svc.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("svc.py"), Kind: KindFile, Name: "svc.py", QualifiedName: "svc.py"},
			{Key: SymbolKey("svc.py", "Service"), Kind: KindClass, Name: "Service", QualifiedName: "Service", StartLine: 3, EndLine: 20, Doc: "Core service."},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	n, err := s.NodeByKey("file:svc.py:Service")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, KindClass, n.Kind)
	assert.Equal(t, "Service", n.Name)
	assert.Equal(t, "Core service.", n.Doc)
	assert.False(t, n.IsStub)
	require.NotNil(t, n.FileID)

	missing, err := s.NodeByKey("file:svc.py:Absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNode_ByFileOrderedByLine(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	gen := Generation{
		File: File{Path: "a.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("a.py"), Kind: KindFile, Name: "a.py", QualifiedName: "a.py"},
			{Key: SymbolKey("a.py", "late"), Kind: KindFunction, Name: "late", QualifiedName: "late", StartLine: 30, EndLine: 35},
			{Key: SymbolKey("a.py", "early"), Kind: KindFunction, Name: "early", QualifiedName: "early", StartLine: 2, EndLine: 5},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	f, err := s.FileByPath("a.py")
	require.NoError(t, err)
	nodes, err := s.NodesByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "a.py", nodes[0].Name)
	assert.Equal(t, "early", nodes[1].Name)
	assert.Equal(t, "late", nodes[2].Name)
}

func TestNode_ByNameMatchesQualifiedName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	gen := Generation{
		File: File{Path: "a.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("a.py"), Kind: KindFile, Name: "a.py", QualifiedName: "a.py"},
			{Key: SymbolKey("a.py", "Svc"), Kind: KindClass, Name: "Svc", QualifiedName: "Svc", StartLine: 1, EndLine: 9},
			{Key: SymbolKey("a.py", "Svc.run"), Kind: KindMethod, Name: "run", QualifiedName: "Svc.run", StartLine: 2, EndLine: 4},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	byBare, err := s.NodesByName("run")
	require.NoError(t, err)
	require.Len(t, byBare, 1)
	assert.Equal(t, "Svc.run", byBare[0].QualifiedName)

	byQualified, err := s.NodesByName("Svc.run")
	require.NoError(t, err)
	require.Len(t, byQualified, 1)
	assert.Equal(t, byBare[0].ID, byQualified[0].ID)
}

func TestNode_LookupCandidatesExcludesStubs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	// b.py calls an unknown helper, producing a stub with that name.
	gen := Generation{
		File: File{Path: "b.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("b.py"), Kind: KindFile, Name: "b.py", QualifiedName: "b.py"},
			{Key: SymbolKey("b.py", "caller"), Kind: KindFunction, Name: "caller", QualifiedName: "caller", StartLine: 1, EndLine: 3},
		},
		Edges: []EdgeSpec{
			{SourceKey: SymbolKey("b.py", "caller"), Kind: EdgeCalls, Line: 2, StubKind: KindFunction, StubName: "helper"},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	stubbed, err := s.NodeByKey(StubKey(KindFunction, "helper"))
	require.NoError(t, err)
	require.NotNil(t, stubbed)

	candidates, err := s.LookupCandidates("helper")
	require.NoError(t, err)
	assert.Empty(t, candidates)

	candidates, err = s.LookupCandidates("caller")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "caller", candidates[0].Name)
}

func TestModule_ExactAndBareName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	indexTestFile(t, s, "app/models.py", "python", "app.models")

	exact, err := s.ModuleByName("app.models")
	require.NoError(t, err)
	require.NotNil(t, exact)
	assert.Equal(t, "models", exact.Name)

	none, err := s.ModuleByName("models")
	require.NoError(t, err)
	assert.Nil(t, none)

	bare, err := s.ModulesByBareName("models")
	require.NoError(t, err)
	require.Len(t, bare, 1)
	assert.Equal(t, "app.models", bare[0].QualifiedName)
}

func TestNode_SearchBySubstring(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	gen := Generation{
		File: File{Path: "a.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("a.py"), Kind: KindFile, Name: "a.py", QualifiedName: "a.py"},
			{Key: SymbolKey("a.py", "UserService"), Kind: KindClass, Name: "UserService", QualifiedName: "UserService", StartLine: 1, EndLine: 9},
			{Key: SymbolKey("a.py", "UserService.find_user"), Kind: KindMethod, Name: "find_user", QualifiedName: "UserService.find_user", StartLine: 2, EndLine: 4},
			{Key: SymbolKey("a.py", "unrelated"), Kind: KindFunction, Name: "unrelated", QualifiedName: "unrelated", StartLine: 11, EndLine: 12},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	hits, err := s.SearchNodes("user", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// Shorter qualified names rank first.
	assert.Equal(t, "UserService", hits[0].Name)
	assert.Equal(t, "find_user", hits[1].Name)
}

// =============================================================================
// Edge queries
// =============================================================================

func TestEdge_OutgoingAndIncoming(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	gen := Generation{
		File: File{Path: "a.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("a.py"), Kind: KindFile, Name: "a.py", QualifiedName: "a.py"},
			{Key: SymbolKey("a.py", "caller"), Kind: KindFunction, Name: "caller", QualifiedName: "caller", StartLine: 1, EndLine: 3},
			{Key: SymbolKey("a.py", "callee"), Kind: KindFunction, Name: "callee", QualifiedName: "callee", StartLine: 5, EndLine: 7},
		},
		Edges: []EdgeSpec{
			{SourceKey: FileKey("a.py"), Kind: EdgeDeclares, TargetKey: SymbolKey("a.py", "caller")},
			{SourceKey: FileKey("a.py"), Kind: EdgeDeclares, TargetKey: SymbolKey("a.py", "callee")},
			{SourceKey: SymbolKey("a.py", "caller"), Kind: EdgeCalls, Line: 2, TargetKey: SymbolKey("a.py", "callee")},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	caller, err := s.NodeByKey(SymbolKey("a.py", "caller"))
	require.NoError(t, err)

	out, err := s.Outgoing(caller.ID, EdgeCalls)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "callee", out[0].Node.Name)
	assert.Equal(t, 2, out[0].Edge.Line)

	callee, err := s.NodeByKey(SymbolKey("a.py", "callee"))
	require.NoError(t, err)
	in, err := s.Incoming(callee.ID, EdgeCalls)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "caller", in[0].Node.Name)

	declared, err := s.Incoming(callee.ID)
	require.NoError(t, err)
	assert.Len(t, declared, 2)
}

func TestEdge_MultigraphKeepsDuplicates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	gen := Generation{
		File: File{Path: "a.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("a.py"), Kind: KindFile, Name: "a.py", QualifiedName: "a.py"},
			{Key: SymbolKey("a.py", "caller"), Kind: KindFunction, Name: "caller", QualifiedName: "caller", StartLine: 1, EndLine: 5},
			{Key: SymbolKey("a.py", "callee"), Kind: KindFunction, Name: "callee", QualifiedName: "callee", StartLine: 7, EndLine: 9},
		},
		Edges: []EdgeSpec{
			{SourceKey: SymbolKey("a.py", "caller"), Kind: EdgeCalls, Line: 2, TargetKey: SymbolKey("a.py", "callee")},
			{SourceKey: SymbolKey("a.py", "caller"), Kind: EdgeCalls, Line: 4, TargetKey: SymbolKey("a.py", "callee")},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	caller, err := s.NodeByKey(SymbolKey("a.py", "caller"))
	require.NoError(t, err)
	edges, err := s.EdgesBySource(caller.ID, EdgeCalls)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, 2, edges[0].Line)
	assert.Equal(t, 4, edges[1].Line)
}

// =============================================================================
// Metadata
// =============================================================================

func TestMetadata_SetGetReplace(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.GetMetadata("schema_version")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetMetadata("schema_version", "1"))
	require.NoError(t, s.SetMetadata("schema_version", "2"))

	got, err = s.GetMetadata("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

// =============================================================================
// Stats
// =============================================================================

func TestStats_Counts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	gen := Generation{
		File: File{Path: "a.py", Language: "python", Hash: "h1"},
		Nodes: []*Node{
			{Key: FileKey("a.py"), Kind: KindFile, Name: "a.py", QualifiedName: "a.py"},
			{Key: ModuleKey("a"), Kind: KindModule, Name: "a", QualifiedName: "a"},
			{Key: SymbolKey("a.py", "caller"), Kind: KindFunction, Name: "caller", QualifiedName: "caller", StartLine: 1, EndLine: 3},
		},
		Edges: []EdgeSpec{
			{SourceKey: FileKey("a.py"), Kind: EdgeDeclares, TargetKey: SymbolKey("a.py", "caller")},
			{SourceKey: SymbolKey("a.py", "caller"), Kind: EdgeCalls, Line: 2, StubKind: KindFunction, StubName: "missing"},
		},
	}
	require.NoError(t, s.ReplaceFileData(gen))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 4, st.Nodes) // three declared plus one stub
	assert.Equal(t, 2, st.Edges)
	assert.Equal(t, 1, st.Stubs)
	assert.Equal(t, 1, st.NodesByKind[KindFunction])
	assert.Equal(t, 1, st.NodesByKind[KindFile])
	assert.Equal(t, 1, st.EdgesByKind[EdgeCalls])
	assert.Equal(t, 1, st.EdgesByKind[EdgeDeclares])
	assert.Equal(t, 1, st.Languages["python"])
}
