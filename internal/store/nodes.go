package store

import (
	"database/sql"
	"fmt"
)

const nodeCols = `id, file_id, key, kind, name, qualified_name,
	start_line, end_line, signature, doc, is_stub`

func scanNode(scanner interface{ Scan(...any) error }) (*Node, error) {
	n := &Node{}
	err := scanner.Scan(
		&n.ID, &n.FileID, &n.Key, &n.Kind, &n.Name, &n.QualifiedName,
		&n.StartLine, &n.EndLine, &n.Signature, &n.Doc, &n.IsStub,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) queryNodes(query string, args ...any) ([]*Node, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrap("query nodes", err)
	}
	defer rows.Close()
	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// NodeByID returns one node, or nil when absent.
func (s *Store) NodeByID(id int64) (*Node, error) {
	n, err := scanNode(s.db.QueryRow(
		"SELECT "+nodeCols+" FROM nodes WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("node by id", err)
	}
	return n, nil
}

// NodeByKey returns the node with the given unique key, or nil.
func (s *Store) NodeByKey(key string) (*Node, error) {
	n, err := scanNode(s.db.QueryRow(
		"SELECT "+nodeCols+" FROM nodes WHERE key = ?", key,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("node by key", err)
	}
	return n, nil
}

// NodesByFile returns a file's generation ordered by position, the file
// anchor and module first.
func (s *Store) NodesByFile(fileID int64) ([]*Node, error) {
	return s.queryNodes(
		"SELECT "+nodeCols+" FROM nodes WHERE file_id = ? ORDER BY start_line, key", fileID,
	)
}

// NodesByName returns nodes whose bare or qualified name matches, real
// declarations before stubs, then by key for determinism.
func (s *Store) NodesByName(name string) ([]*Node, error) {
	return s.queryNodes(
		"SELECT "+nodeCols+" FROM nodes WHERE name = ? OR qualified_name = ? ORDER BY is_stub, key",
		name, name,
	)
}

// LookupCandidates returns non-stub declaration nodes matching a reference
// name, for project-wide resolution. Matches bare and qualified names.
func (s *Store) LookupCandidates(name string) ([]*Node, error) {
	return s.queryNodes(
		`SELECT `+nodeCols+` FROM nodes
		 WHERE (name = ? OR qualified_name = ?) AND is_stub = FALSE
		   AND kind IN (?, ?, ?)
		 ORDER BY key`,
		name, name, KindClass, KindFunction, KindMethod,
	)
}

// ModuleByName returns the resolved module node with the exact qualified
// name, or nil.
func (s *Store) ModuleByName(name string) (*Node, error) {
	n, err := scanNode(s.db.QueryRow(
		"SELECT "+nodeCols+" FROM nodes WHERE kind = ? AND qualified_name = ? AND is_stub = FALSE",
		KindModule, name,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("module by name", err)
	}
	return n, nil
}

// ModulesByBareName returns resolved module nodes whose final path segment
// matches, ordered by qualified name. Used as an import-resolution
// fallback when no exact dotted match exists.
func (s *Store) ModulesByBareName(name string) ([]*Node, error) {
	return s.queryNodes(
		"SELECT "+nodeCols+" FROM nodes WHERE kind = ? AND name = ? AND is_stub = FALSE ORDER BY qualified_name",
		KindModule, name,
	)
}

// ModuleByFileID returns the module node belonging to a file, or nil.
func (s *Store) ModuleByFileID(fileID int64) (*Node, error) {
	n, err := scanNode(s.db.QueryRow(
		"SELECT "+nodeCols+" FROM nodes WHERE kind = ? AND file_id = ?",
		KindModule, fileID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("module by file", err)
	}
	return n, nil
}

// NodesByIDs bulk-loads nodes by id into a map. Missing ids are simply
// absent from the result.
func (s *Store) NodesByIDs(ids []int64) (map[int64]*Node, error) {
	result := make(map[int64]*Node, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	nodes, err := s.queryNodes(
		"SELECT "+nodeCols+" FROM nodes WHERE id IN ("+placeholderList(len(ids))+")",
		args...,
	)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		result[n.ID] = n
	}
	return result, nil
}

// NodesByKind returns all nodes of one kind ordered by key. Stubs are
// included; callers filter on IsStub when they need declarations only.
func (s *Store) NodesByKind(kind string) ([]*Node, error) {
	return s.queryNodes(
		"SELECT "+nodeCols+" FROM nodes WHERE kind = ? ORDER BY key", kind,
	)
}

// SearchNodes returns non-stub declaration nodes whose name contains the
// given fragment, case-insensitive, capped at limit.
func (s *Store) SearchNodes(fragment string, limit int) ([]*Node, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + fragment + "%"
	return s.queryNodes(
		`SELECT `+nodeCols+` FROM nodes
		 WHERE is_stub = FALSE AND kind != ? AND (name LIKE ? OR qualified_name LIKE ?)
		 ORDER BY length(qualified_name), key LIMIT ?`,
		KindFile, pattern, pattern, limit,
	)
}
