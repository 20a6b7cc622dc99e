// Package parse turns source files into language-neutral symbol trees using
// tree-sitter grammars. Each supported language has its own parser; all of
// them produce the same Tree shape so the extractor downstream never needs
// language-specific handling.
package parse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxFileSize bounds the input accepted by all parsers. Generated bundles
// and vendored blobs above this are skipped rather than parsed.
const maxFileSize = 10 * 1024 * 1024

// Canonical language names shared across the pipeline.
const (
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
)

var (
	// ErrTooLarge is returned for files exceeding the parser size limit.
	ErrTooLarge = errors.New("file exceeds parser size limit")

	// ErrInvalidUTF8 is returned when content is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("content is not valid UTF-8")
)

// SyntaxError reports the first unparseable region of a source file. A file
// that produces one is excluded from the current generation; the rest of the
// batch proceeds.
type SyntaxError struct {
	Line int
	Col  int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d", e.Line, e.Col)
}

// Parser extracts a symbol tree from one source file. Implementations must
// be safe for concurrent use; each Parse call creates its own tree-sitter
// parser instance.
type Parser interface {
	Language() string
	Parse(ctx context.Context, content []byte, path string) (*Tree, error)
}

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".py":  LangPython,
	".js":  LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".jsx": LangJavaScript,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
}

var (
	langToParser map[string]Parser
	parsersOnce  sync.Once
)

func initParsers() {
	parsersOnce.Do(func() {
		langToParser = map[string]Parser{
			LangPython:     &PythonParser{},
			LangJavaScript: &JavaScriptParser{},
			LangTypeScript: &TypeScriptParser{},
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// ForFile returns the parser responsible for a file path, chosen by
// extension. Returns (nil, false) for unsupported extensions.
func ForFile(path string) (Parser, bool) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, false
	}
	return ForLanguage(lang)
}

// ForLanguage returns the parser for a canonical language name.
func ForLanguage(lang string) (Parser, bool) {
	initParsers()
	p, ok := langToParser[lang]
	return p, ok
}

// Extensions returns all file extensions with a registered parser, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(extToLanguage))
	for ext := range extToLanguage {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// validate applies the shared size and encoding checks.
func validate(content []byte) error {
	if len(content) > maxFileSize {
		return ErrTooLarge
	}
	if !utf8.Valid(content) {
		return ErrInvalidUTF8
	}
	return nil
}

// checkSyntax rejects trees containing parse errors, locating the first
// error or missing node for the report. Grammars recover around local
// damage, so the walk dives only into subtrees that carry an error.
func checkSyntax(root *sitter.Node) error {
	if !root.HasError() {
		return nil
	}
	if bad := firstErrorNode(root); bad != nil {
		return &SyntaxError{
			Line: int(bad.StartPoint().Row) + 1,
			Col:  int(bad.StartPoint().Column) + 1,
		}
	}
	return &SyntaxError{Line: 1, Col: 1}
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.HasError() {
			continue
		}
		if bad := firstErrorNode(child); bad != nil {
			return bad
		}
	}
	return nil
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

// lineOf returns the 1-based start line of a node.
func lineOf(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// endLineOf returns the 1-based end line of a node.
func endLineOf(node *sitter.Node) int {
	return int(node.EndPoint().Row) + 1
}
