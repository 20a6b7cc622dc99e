package strata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushkumar29/strata/internal/config"
	"github.com/ayushkumar29/strata/internal/store"
)

// Fixture project: an auth module, an app entry point calling into it,
// and a small class hierarchy.

const authSrc = `import hashlib

def validate_user(name):
    return len(name) > 0

def login(name, password):
    if validate_user(name):
        return hashlib.sha256(password.encode())
    return None

class Session:
    def start(self):
        return login("root", "secret")
`

const appSrc = `from auth import login

def main():
    return login("admin", "hunter2")
`

const modelsSrc = `class Base:
    pass

class User(Base):
    pass

class Admin(User):
    pass
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	base := []Option{WithLogger(quietLogger()), WithWorkers(2)}
	e, err := New(root, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, root
}

func writeSource(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func writeFixture(t *testing.T, root string) {
	t.Helper()
	writeSource(t, root, "auth.py", authSrc)
	writeSource(t, root, "app.py", appSrc)
	writeSource(t, root, "models.py", modelsSrc)
}

// failEmbedder simulates an embedding backend outage.
type failEmbedder struct{}

func (failEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend down")
}

func (failEmbedder) Fingerprint() string { return "fail/test" }

func TestNew_CreatesIndexDirectory(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, root, e.Root())
	assert.FileExists(t, filepath.Join(root, ".strata", "graph.db"))
	assert.FileExists(t, filepath.Join(root, ".strata", "vectors.db"))
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project root")
}

func TestNew_RootNotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	_, err := New(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestWithIndexDir(t *testing.T) {
	root := t.TempDir()
	idx := filepath.Join(t.TempDir(), "cache")
	e, err := New(root, WithLogger(quietLogger()), WithIndexDir(idx))
	require.NoError(t, err)
	defer e.Close()

	assert.FileExists(t, filepath.Join(idx, "graph.db"))
	_, err = os.Stat(filepath.Join(root, ".strata"))
	assert.True(t, os.IsNotExist(err))
}

func TestRelPath(t *testing.T) {
	e, root := newTestEngine(t)

	rel, err := e.RelPath(filepath.Join(root, "pkg", "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "pkg/a.py", rel)

	rel, err = e.RelPath("pkg/a.py")
	require.NoError(t, err)
	assert.Equal(t, "pkg/a.py", rel)

	_, err = e.RelPath("/somewhere/else/a.py")
	assert.Error(t, err)

	_, err = e.RelPath("../outside.py")
	assert.Error(t, err)
}

func TestIndexDirectory_FullPipeline(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)

	report, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 8, report.Embedded)
	assert.Empty(t, report.Errors)
	assert.Greater(t, report.Duration, time.Duration(0))

	q := e.Query()

	// The login declaration resolved across the batch.
	nodes, err := q.Resolve("login")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	login := nodes[0]
	assert.Equal(t, store.SymbolKey("auth.py", "login"), login.Key)
	assert.Equal(t, store.KindFunction, login.Kind)
	assert.Equal(t, 6, login.StartLine)
	assert.Equal(t, "def login(name, password)", login.Signature)
	assert.False(t, login.IsStub)

	// Both call sites found: one cross-file, one from a method.
	callers, err := q.Callers("login")
	require.NoError(t, err)
	require.Len(t, callers, 2)
	assert.Equal(t, "main", callers[0].Symbol.QualifiedName)
	assert.Equal(t, "app.py", callers[0].File)
	assert.Equal(t, 4, callers[0].Line)
	assert.Equal(t, "Session.start", callers[1].Symbol.QualifiedName)
	assert.Equal(t, "auth.py", callers[1].File)
	assert.Equal(t, 13, callers[1].Line)

	// Callees include unresolved externals as stubs.
	callees, err := q.Callees("login")
	require.NoError(t, err)
	require.Len(t, callees, 3)
	assert.Equal(t, "validate_user", callees[0].Symbol.Name)
	assert.Equal(t, 7, callees[0].Line)
	assert.False(t, callees[0].Symbol.IsStub)
	assert.Equal(t, "encode", callees[1].Symbol.Name)
	assert.True(t, callees[1].Symbol.IsStub)
	assert.Equal(t, "sha256", callees[2].Symbol.Name)
	assert.True(t, callees[2].Symbol.IsStub)

	// Import edges in both directions.
	imports, err := q.ImportsOf("auth.py")
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "hashlib", imports[0].Module.Name)
	assert.True(t, imports[0].Module.IsStub)
	assert.Equal(t, 1, imports[0].Line)

	importers, err := q.ImportersOf("auth")
	require.NoError(t, err)
	require.Len(t, importers, 1)
	assert.Equal(t, "app.py", importers[0].File)
	assert.Equal(t, 1, importers[0].Line)
	assert.False(t, importers[0].Module.IsStub)

	// Inheritance in both directions.
	hier, err := q.Hierarchy("User")
	require.NoError(t, err)
	require.NotNil(t, hier)
	require.Len(t, hier.Ancestors, 1)
	assert.Equal(t, "Base", hier.Ancestors[0].Node.Name)
	require.Len(t, hier.Descendants, 1)
	assert.Equal(t, "Admin", hier.Descendants[0].Node.Name)

	// File outline: module, functions, class with its method.
	outline, err := q.FileStructure("auth.py")
	require.NoError(t, err)
	require.NotNil(t, outline)
	require.NotNil(t, outline.Module)
	assert.Equal(t, "auth", outline.Module.QualifiedName)
	require.Len(t, outline.Functions, 2)
	assert.Equal(t, "validate_user", outline.Functions[0].Name)
	assert.Equal(t, "login", outline.Functions[1].Name)
	require.Len(t, outline.Classes, 1)
	assert.Equal(t, "Session", outline.Classes[0].Class.Name)
	require.Len(t, outline.Classes[0].Methods, 1)
	assert.Equal(t, "Session.start", outline.Classes[0].Methods[0].QualifiedName)

	// Connectivity across files down to an external stub.
	path, err := q.PathBetween("main", "sha256")
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, "main", path[0].Node.Name)
	assert.Nil(t, path[0].Edge)
	assert.Equal(t, "login", path[1].Node.Name)
	assert.Equal(t, store.EdgeCalls, path[1].Edge.Kind)
	assert.Equal(t, "sha256", path[2].Node.Name)
	assert.True(t, path[2].Node.IsStub)
}

func TestIndexDirectory_SecondRunSkipsUnchanged(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)

	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	report, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 0, report.Embedded)
}

func TestIndexFiles_ReindexesChangedFile(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	writeSource(t, root, "auth.py", authSrc+`
def logout(session):
    session.close()
`)

	report, err := e.IndexFiles(context.Background(), []string{"auth.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 0, report.Skipped)

	nodes, err := e.Query().Resolve("logout")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.False(t, nodes[0].IsStub)

	st, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 9, st.EmbeddedSymbols)
}

func TestIndexDirectory_RemovesDeletedFiles(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "app.py")))

	report, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Deleted)

	f, err := e.Store().FileByPath("app.py")
	require.NoError(t, err)
	assert.Nil(t, f)

	callers, err := e.Query().Callers("login")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "Session.start", callers[0].Symbol.QualifiedName)

	importers, err := e.Query().ImportersOf("auth")
	require.NoError(t, err)
	assert.Empty(t, importers)

	st, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 7, st.EmbeddedSymbols)
}

func TestDeleteFiles_DemotesReferencedSymbolsToStubs(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.DeleteFiles([]string{"auth.py"}))

	f, err := e.Store().FileByPath("auth.py")
	require.NoError(t, err)
	assert.Nil(t, f)

	// login is still called from app.py, so it survives as a stub.
	nodes, err := e.Query().Resolve("login")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].IsStub)
	assert.Equal(t, store.StubKey(store.KindFunction, "login"), nodes[0].Key)
	assert.Nil(t, nodes[0].FileID)

	// Session had no external references and is gone.
	nodes, err = e.Query().Resolve("Session")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	// The call site into the now-external symbol is still answerable.
	callers, err := e.Query().Callers("login")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "main", callers[0].Symbol.QualifiedName)

	// The auth module demotes in place; its importer is preserved.
	importers, err := e.Query().ImportersOf("auth")
	require.NoError(t, err)
	require.Len(t, importers, 1)
	assert.Equal(t, "app.py", importers[0].File)
	assert.True(t, importers[0].Module.IsStub)

	// hashlib lost its last reference and was pruned.
	importers, err = e.Query().ImportersOf("hashlib")
	require.NoError(t, err)
	assert.Empty(t, importers)

	st, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, st.EmbeddedSymbols)
}

func TestIndexFiles_ReadoptsStubsOnReturn(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.DeleteFiles([]string{"auth.py"}))

	// The file never left the disk; indexing it again must reclaim the
	// stub and reconnect the existing call edge.
	report, err := e.IndexFiles(context.Background(), []string{"auth.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)

	nodes, err := e.Query().Resolve("login")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.False(t, nodes[0].IsStub)
	assert.Equal(t, store.SymbolKey("auth.py", "login"), nodes[0].Key)

	callers, err := e.Query().Callers("login")
	require.NoError(t, err)
	assert.Len(t, callers, 2)
}

func TestIndexFiles_RecordsParseErrors(t *testing.T) {
	e, root := newTestEngine(t)
	writeSource(t, root, "good.py", "def ok():\n    pass\n")
	writeSource(t, root, "broken.py", "def broken(:\n    return 1\n")

	report, err := e.IndexFiles(context.Background(), []string{"broken.py", "good.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "broken.py", report.Errors[0].Path)

	var perr *ParseError
	require.ErrorAs(t, report.Errors[0].Err, &perr)
	assert.Equal(t, "broken.py", perr.Path)
	assert.GreaterOrEqual(t, perr.Line, 1)

	f, err := e.Store().FileByPath("broken.py")
	require.NoError(t, err)
	assert.Nil(t, f)

	nodes, err := e.Query().Resolve("ok")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestIndexFiles_SkipsUnsupportedAndRecordsUnreadable(t *testing.T) {
	e, root := newTestEngine(t)
	writeSource(t, root, "notes.txt", "nothing to parse")

	report, err := e.IndexFiles(context.Background(), []string{"notes.txt", "ghost.py", "/outside/x.py"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Indexed)
	require.Len(t, report.Errors, 2)

	assert.Equal(t, "ghost.py", report.Errors[0].Path)
	var serr *ScanError
	assert.ErrorAs(t, report.Errors[0].Err, &serr)

	assert.Equal(t, "/outside/x.py", report.Errors[1].Path)
	assert.Contains(t, report.Errors[1].Err.Error(), "outside the project root")
}

func TestIndexFiles_SkipsOversizedFile(t *testing.T) {
	cfg := config.Default()
	cfg.Index.MaxFileSizeKB = 1
	e, root := newTestEngine(t, WithConfig(cfg))
	writeSource(t, root, "small.py", "def tiny():\n    return 1\n")
	writeSource(t, root, "huge.py", "BLOB = \""+strings.Repeat("z", 4096)+"\"\n")

	report, err := e.IndexFiles(context.Background(), []string{"small.py", "huge.py"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Errors)

	f, err := e.Store().FileByPath("huge.py")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestEngine_Stats(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	st, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Files)
	assert.Equal(t, 4, st.Stubs)
	assert.Equal(t, 4, st.NodesByKind[store.KindClass])
	assert.Equal(t, 1, st.NodesByKind[store.KindMethod])
	assert.Equal(t, 6, st.EdgesByKind[store.EdgeCalls])
	assert.Equal(t, 2, st.EdgesByKind[store.EdgeImports])
	assert.Equal(t, 2, st.EdgesByKind[store.EdgeInheritsFrom])
	assert.Equal(t, 3, st.Languages["python"])
	assert.Equal(t, 8, st.EmbeddedSymbols)
}

func TestEngine_Clear(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Clear())

	st, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Files)
	assert.Equal(t, 0, st.Nodes)
	assert.Equal(t, 0, st.EmbeddedSymbols)

	nodes, err := e.Query().Resolve("login")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestSearchSemantic(t *testing.T) {
	e, root := newTestEngine(t)
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	hits, err := e.SearchSemantic(context.Background(), "login", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, store.SymbolKey("auth.py", "login"), hits[0].SymbolKey)
	assert.Greater(t, hits[0].Score, 0.25)

	// A kind filter drops everything else but keeps the ranking.
	hits, err = e.SearchSemantic(context.Background(), "login", 5, store.KindFunction)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, store.KindFunction, h.Kind)
	}
	assert.Equal(t, store.SymbolKey("auth.py", "login"), hits[0].SymbolKey)
}

func TestSearchSemantic_NoEmbedder(t *testing.T) {
	e, root := newTestEngine(t, WithEmbedder(nil))
	writeFixture(t, root)
	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	_, err = e.SearchSemantic(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestIndexDirectory_EmbedderOutageDegrades(t *testing.T) {
	e, root := newTestEngine(t, WithEmbedder(failEmbedder{}))
	writeFixture(t, root)

	report, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, 0, report.Embedded)

	// The graph side is unaffected.
	nodes, err := e.Query().Resolve("login")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	st, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, st.EmbeddedSymbols)
}
