package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Generation is the complete extraction output for one source file: the
// file row, every node it declares, and every edge its references
// produce. ReplaceFileData swaps a file's previous generation for a new
// one atomically; readers never observe a half-replaced file.
type Generation struct {
	File  File
	Nodes []*Node
	Edges []EdgeSpec
}

// EdgeSpec names an edge by node key instead of row id, since ids are
// not assigned until commit. TargetKey is the resolved target when the
// extractor found one; StubKind and StubName describe the stub to
// create (or reuse) when TargetKey is empty or no longer present.
type EdgeSpec struct {
	SourceKey string
	Kind      string
	Line      int
	TargetKey string
	StubKind  string
	StubName  string
}

// ReplaceFileData atomically replaces a file's generation. Edges from
// other files that point into the replaced generation are preserved:
// their targets are demoted to stubs during the delete phase, then
// re-adopted by matching nodes of the new generation.
func (s *Store) ReplaceFileData(gen Generation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrap("begin replace", err)
	}
	defer tx.Rollback()

	existing, err := s.fileByPathTx(tx, gen.File.Path)
	if err != nil {
		return err
	}

	file := gen.File
	file.LastIndexed = time.Now().UTC()
	if existing != nil {
		if err := deleteFileDataTx(tx, existing.ID); err != nil {
			return err
		}
		_, err = tx.Exec(
			`UPDATE files SET language = ?, hash = ?, line_count = ?, last_indexed = ? WHERE id = ?`,
			file.Language, file.Hash, file.LineCount, file.LastIndexed, existing.ID,
		)
		if err != nil {
			return wrap("update file", err)
		}
		file.ID = existing.ID
	} else {
		res, err := tx.Exec(
			`INSERT INTO files (path, language, hash, line_count, last_indexed) VALUES (?, ?, ?, ?, ?)`,
			file.Path, file.Language, file.Hash, file.LineCount, file.LastIndexed,
		)
		if err != nil {
			return wrap("insert file", err)
		}
		file.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("file id: %w", err)
		}
	}

	idByKey := make(map[string]int64, len(gen.Nodes))
	for _, n := range gen.Nodes {
		if err := insertGenerationNodeTx(tx, file, n, idByKey); err != nil {
			return err
		}
	}
	if err := adoptStubsTx(tx, gen.Nodes, idByKey); err != nil {
		return err
	}

	for _, spec := range gen.Edges {
		if err := insertEdgeSpecTx(tx, file.ID, spec, idByKey); err != nil {
			return err
		}
	}

	if err := pruneOrphanStubsTx(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit replace", err)
	}
	return nil
}

// DeleteFileData removes a file and its generation. Nodes still
// referenced from other files are demoted to stubs rather than
// deleted: a reference never silently disappears because its target's
// file went away. Deleting an unknown path is a no-op.
func (s *Store) DeleteFileData(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrap("begin delete", err)
	}
	defer tx.Rollback()

	file, err := s.fileByPathTx(tx, path)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}
	if err := deleteFileDataTx(tx, file.ID); err != nil {
		return err
	}
	if err := pruneOrphanStubsTx(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, file.ID); err != nil {
		return wrap("delete file", err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit delete", err)
	}
	return nil
}

// Clear removes all graph data. Metadata survives so schema bookkeeping
// persists across a rebuild.
func (s *Store) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrap("begin clear", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM edges`,
		`DELETE FROM nodes`,
		`DELETE FROM files`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return wrap("clear", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit clear", err)
	}
	return nil
}

// deleteFileDataTx removes a file's generation but leaves the file row
// for the caller. Runs in reverse dependency order: own edges first,
// then nodes, demoting any node an external edge still targets.
func deleteFileDataTx(tx *sql.Tx, fileID int64) error {
	if _, err := tx.Exec(`DELETE FROM edges WHERE file_id = ?`, fileID); err != nil {
		return wrap("delete edges", err)
	}

	// Only targets can be external: every edge's source lives in the
	// generation that owns the edge, and those were just removed.
	rows, err := tx.Query(
		`SELECT DISTINCT n.id, n.kind, n.name FROM nodes n
		 JOIN edges e ON e.target_id = n.id
		 WHERE n.file_id = ? ORDER BY n.id`, fileID,
	)
	if err != nil {
		return wrap("find referenced nodes", err)
	}
	type referenced struct {
		id   int64
		kind string
		name string
	}
	var refs []referenced
	for rows.Next() {
		var r referenced
		if err := rows.Scan(&r.id, &r.kind, &r.name); err != nil {
			rows.Close()
			return fmt.Errorf("scan referenced node: %w", err)
		}
		refs = append(refs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrap("find referenced nodes", err)
	}

	for _, r := range refs {
		if err := demoteNodeTx(tx, r.id, r.kind, r.name); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM nodes WHERE file_id = ?`, fileID); err != nil {
		return wrap("delete nodes", err)
	}
	return nil
}

// demoteNodeTx turns a still-referenced node into a stub. Module nodes
// keep their key so a future scan adopts them in place; symbol nodes
// move to the stub keyspace. When an equivalent stub already exists the
// node's edges are repointed at it and the node is dropped.
func demoteNodeTx(tx *sql.Tx, nodeID int64, kind, name string) error {
	if kind == KindModule {
		_, err := tx.Exec(
			`UPDATE nodes SET file_id = NULL, is_stub = 1,
			 start_line = 0, end_line = 0, signature = '', doc = ''
			 WHERE id = ?`, nodeID,
		)
		if err != nil {
			return wrap("demote module", err)
		}
		return nil
	}

	stubKind := stubKindFor(kind)
	key := StubKey(stubKind, name)
	existingID, ok, err := nodeIDByKeyTx(tx, key)
	if err != nil {
		return err
	}
	if ok {
		if _, err := tx.Exec(`UPDATE edges SET target_id = ? WHERE target_id = ?`, existingID, nodeID); err != nil {
			return wrap("repoint edges", err)
		}
		if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, nodeID); err != nil {
			return wrap("drop demoted node", err)
		}
		return nil
	}

	_, err = tx.Exec(
		`UPDATE nodes SET file_id = NULL, is_stub = 1, key = ?, kind = ?,
		 qualified_name = name, start_line = 0, end_line = 0, signature = '', doc = ''
		 WHERE id = ?`, key, stubKind, nodeID,
	)
	if err != nil {
		return wrap("demote node", err)
	}
	return nil
}

// insertGenerationNodeTx inserts one node of a new generation. A stub
// squatting on the node's key is adopted in place; a live node from
// another file on the same key forces a disambiguated key.
func insertGenerationNodeTx(tx *sql.Tx, file File, n *Node, idByKey map[string]int64) error {
	n.FileID = &file.ID
	n.IsStub = false

	existingID, ok, err := nodeIDByKeyTx(tx, n.Key)
	if err != nil {
		return err
	}
	if ok {
		var isStub bool
		if err := tx.QueryRow(`SELECT is_stub FROM nodes WHERE id = ?`, existingID).Scan(&isStub); err != nil {
			return wrap("check stub", err)
		}
		if isStub {
			_, err := tx.Exec(
				`UPDATE nodes SET file_id = ?, kind = ?, name = ?, qualified_name = ?,
				 start_line = ?, end_line = ?, signature = ?, doc = ?, is_stub = 0
				 WHERE id = ?`,
				file.ID, n.Kind, n.Name, n.QualifiedName,
				n.StartLine, n.EndLine, n.Signature, n.Doc, existingID,
			)
			if err != nil {
				return wrap("adopt stub", err)
			}
			n.ID = existingID
			idByKey[n.Key] = n.ID
			return nil
		}
		// Two files mapping to one module name, e.g. util.js next to
		// util.ts. The later file keeps a path-qualified key.
		n.Key = n.Key + "@" + file.Path
	}

	res, err := tx.Exec(
		`INSERT INTO nodes (file_id, key, kind, name, qualified_name, start_line, end_line, signature, doc, is_stub)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		file.ID, n.Key, n.Kind, n.Name, n.QualifiedName,
		n.StartLine, n.EndLine, n.Signature, n.Doc,
	)
	if err != nil {
		return wrap("insert node", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("node id: %w", err)
	}
	idByKey[n.Key] = n.ID
	return nil
}

// adoptStubsTx repoints edges at stubs whose name matches a node of the
// new generation, then drops the stubs. A reference that stayed
// unresolved only because its target had not been scanned yet resolves
// once the target arrives, in either scan order.
func adoptStubsTx(tx *sql.Tx, nodes []*Node, idByKey map[string]int64) error {
	adopted := make(map[int64]bool)
	for _, n := range nodes {
		if n.Kind != KindClass && n.Kind != KindFunction && n.Kind != KindMethod {
			continue
		}
		keys := []string{StubKey(stubKindFor(n.Kind), n.Name)}
		if n.QualifiedName != n.Name {
			keys = append(keys, StubKey(stubKindFor(n.Kind), n.QualifiedName))
		}
		for _, key := range keys {
			stubID, ok, err := nodeIDByKeyTx(tx, key)
			if err != nil {
				return err
			}
			if !ok || adopted[stubID] {
				continue
			}
			if _, err := tx.Exec(`UPDATE edges SET target_id = ? WHERE target_id = ?`, idByKey[n.Key], stubID); err != nil {
				return wrap("adopt stub edges", err)
			}
			if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, stubID); err != nil {
				return wrap("drop adopted stub", err)
			}
			adopted[stubID] = true
		}
	}
	return nil
}

// insertEdgeSpecTx resolves an EdgeSpec's keys to row ids and inserts
// the edge. The source must come from the current generation; a target
// that cannot be found falls back to a find-or-create stub so the
// reference is recorded either way.
func insertEdgeSpecTx(tx *sql.Tx, fileID int64, spec EdgeSpec, idByKey map[string]int64) error {
	sourceID, ok := idByKey[spec.SourceKey]
	if !ok {
		return fmt.Errorf("%w: edge source %q not in generation", ErrInvariant, spec.SourceKey)
	}

	var targetID int64
	if spec.TargetKey != "" {
		if id, ok := idByKey[spec.TargetKey]; ok {
			targetID = id
		} else if id, ok, err := nodeIDByKeyTx(tx, spec.TargetKey); err != nil {
			return err
		} else if ok {
			targetID = id
		}
	}
	if targetID == 0 {
		if spec.StubName == "" {
			return fmt.Errorf("%w: edge %s from %q has no target and no stub", ErrInvariant, spec.Kind, spec.SourceKey)
		}
		id, err := findOrCreateStubTx(tx, spec.StubKind, spec.StubName)
		if err != nil {
			return err
		}
		targetID = id
	}

	_, err := tx.Exec(
		`INSERT INTO edges (file_id, source_id, target_id, kind, line) VALUES (?, ?, ?, ?, ?)`,
		fileID, sourceID, targetID, spec.Kind, spec.Line,
	)
	if err != nil {
		return wrap("insert edge", err)
	}
	return nil
}

func findOrCreateStubTx(tx *sql.Tx, kind, name string) (int64, error) {
	key := StubKey(kind, name)
	if id, ok, err := nodeIDByKeyTx(tx, key); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}
	res, err := tx.Exec(
		`INSERT INTO nodes (file_id, key, kind, name, qualified_name, start_line, end_line, signature, doc, is_stub)
		 VALUES (NULL, ?, ?, ?, ?, 0, 0, '', '', 1)`,
		key, kind, lastSegment(name), name,
	)
	if err != nil {
		return 0, wrap("insert stub", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("stub id: %w", err)
	}
	return id, nil
}

// pruneOrphanStubsTx drops stubs nothing points at anymore. Stubs are
// never edge sources, so the target side is the whole story.
func pruneOrphanStubsTx(tx *sql.Tx) error {
	_, err := tx.Exec(
		`DELETE FROM nodes WHERE is_stub = 1
		 AND id NOT IN (SELECT DISTINCT target_id FROM edges)`,
	)
	if err != nil {
		return wrap("prune stubs", err)
	}
	return nil
}

func nodeIDByKeyTx(tx *sql.Tx, key string) (int64, bool, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM nodes WHERE key = ?`, key).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap("node by key", err)
	}
	return id, true, nil
}

func (s *Store) fileByPathTx(tx *sql.Tx, path string) (*File, error) {
	f, err := scanFile(tx.QueryRow(`SELECT `+fileCols+` FROM files WHERE path = ?`, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("file by path", err)
	}
	return &f, nil
}
