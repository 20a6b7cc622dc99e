package strata

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ayushkumar29/strata/internal/parse"
)

// skipDirs are directories never worth descending into.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"venv":         true,
	"dist":         true,
	"build":        true,
}

// ScanDirectory discovers the indexable source files under the engine
// root. Inside a git repository it uses git ls-files so .gitignore is
// respected exactly; otherwise it walks the filesystem, skipping hidden
// directories, the built-in skip list, and root .gitignore patterns.
// Configured exclude patterns apply to both. Paths come back relative
// to the root, slash-separated and sorted.
func (e *Engine) ScanDirectory() ([]string, error) {
	paths, err := e.gitListFiles()
	if err != nil {
		paths, err = e.walkListFiles()
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// gitListFiles lists tracked and untracked-but-not-ignored files via
// git. Entries that no longer exist on disk (tracked but deleted) are
// dropped so reconciliation sees them as gone.
func (e *Engine) gitListFiles() ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = e.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !e.includePath(line) {
			continue
		}
		info, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(line)))
		if err != nil || !e.withinSizeLimit(info.Size()) {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used when
// git is unavailable or the root is not a repository.
func (e *Engine) walkListFiles() ([]string, error) {
	matcher := e.gitignoreMatcher()

	var paths []string
	err := filepath.WalkDir(e.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == e.root {
				return err
			}
			// Unreadable subtrees are skipped, not fatal.
			e.log.Warn("scan skipped unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(e.root, p)
		if rerr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if !e.includePath(rel) {
			return nil
		}
		if info, ierr := d.Info(); ierr != nil || !e.withinSizeLimit(info.Size()) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, &ScanError{Path: e.root, Err: err}
	}
	return paths, nil
}

// includePath applies the language registry and configured excludes to
// a root-relative slash path.
func (e *Engine) includePath(rel string) bool {
	if _, ok := parse.LanguageForFile(rel); !ok {
		return false
	}
	if e.excludeMatcher != nil && e.excludeMatcher.MatchesPath(rel) {
		return false
	}
	return true
}

// withinSizeLimit reports whether a file of the given byte size passes
// the configured cap. Zero disables the cap.
func (e *Engine) withinSizeLimit(size int64) bool {
	kb := e.cfg.Index.MaxFileSizeKB
	if kb <= 0 {
		return true
	}
	return size <= int64(kb)*1024
}

// gitignoreMatcher compiles the root .gitignore, or nil when absent.
// The git listing path never needs it; git applies ignores itself.
func (e *Engine) gitignoreMatcher() *ignore.GitIgnore {
	matcher, err := ignore.CompileIgnoreFile(filepath.Join(e.root, ".gitignore"))
	if err != nil {
		return nil
	}
	return matcher
}
