package store

import (
	"fmt"
	"strings"
)

const edgeCols = `id, file_id, source_id, target_id, kind, line`

func scanEdge(scanner interface{ Scan(...any) error }) (Edge, error) {
	var e Edge
	err := scanner.Scan(&e.ID, &e.FileID, &e.SourceID, &e.TargetID, &e.Kind, &e.Line)
	return e, err
}

// EdgesBySource returns edges leaving a node, optionally filtered by kind.
func (s *Store) EdgesBySource(nodeID int64, kinds ...string) ([]Edge, error) {
	return s.queryEdges("source_id", nodeID, kinds)
}

// EdgesByTarget returns edges entering a node, optionally filtered by kind.
func (s *Store) EdgesByTarget(nodeID int64, kinds ...string) ([]Edge, error) {
	return s.queryEdges("target_id", nodeID, kinds)
}

func (s *Store) queryEdges(col string, nodeID int64, kinds []string) ([]Edge, error) {
	query := "SELECT " + edgeCols + " FROM edges WHERE " + col + " = ?"
	args := []any{nodeID}
	if len(kinds) > 0 {
		query += " AND kind IN (" + placeholderList(len(kinds)) + ")"
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += " ORDER BY kind, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrap("query edges", err)
	}
	defer rows.Close()
	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Outgoing returns the neighbors reachable by edges leaving a node,
// optionally filtered by edge kind, in deterministic order.
func (s *Store) Outgoing(nodeID int64, kinds ...string) ([]Neighbor, error) {
	return s.neighbors("source_id", "target_id", nodeID, kinds)
}

// Incoming returns the neighbors with edges entering a node, optionally
// filtered by edge kind, in deterministic order.
func (s *Store) Incoming(nodeID int64, kinds ...string) ([]Neighbor, error) {
	return s.neighbors("target_id", "source_id", nodeID, kinds)
}

func (s *Store) neighbors(matchCol, joinCol string, nodeID int64, kinds []string) ([]Neighbor, error) {
	var b strings.Builder
	b.WriteString(`SELECT e.id, e.file_id, e.source_id, e.target_id, e.kind, e.line,
		n.id, n.file_id, n.key, n.kind, n.name, n.qualified_name,
		n.start_line, n.end_line, n.signature, n.doc, n.is_stub
		FROM edges e JOIN nodes n ON n.id = e.`)
	b.WriteString(joinCol)
	b.WriteString(" WHERE e.")
	b.WriteString(matchCol)
	b.WriteString(" = ?")
	args := []any{nodeID}
	if len(kinds) > 0 {
		b.WriteString(" AND e.kind IN (" + placeholderList(len(kinds)) + ")")
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	b.WriteString(" ORDER BY e.kind, n.key, e.id")

	rows, err := s.db.Query(b.String(), args...)
	if err != nil {
		return nil, wrap("query neighbors", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var nb Neighbor
		n := &Node{}
		err := rows.Scan(
			&nb.Edge.ID, &nb.Edge.FileID, &nb.Edge.SourceID, &nb.Edge.TargetID, &nb.Edge.Kind, &nb.Edge.Line,
			&n.ID, &n.FileID, &n.Key, &n.Kind, &n.Name, &n.QualifiedName,
			&n.StartLine, &n.EndLine, &n.Signature, &n.Doc, &n.IsStub,
		)
		if err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		nb.Node = n
		neighbors = append(neighbors, nb)
	}
	return neighbors, rows.Err()
}

// AllEdges returns every edge ordered by id. Graph traversals bulk-load
// the edge set once and walk adjacency maps in memory.
func (s *Store) AllEdges() ([]Edge, error) {
	rows, err := s.db.Query("SELECT " + edgeCols + " FROM edges ORDER BY id")
	if err != nil {
		return nil, wrap("all edges", err)
	}
	defer rows.Close()
	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesByFile returns the edges owned by a file's generation.
func (s *Store) EdgesByFile(fileID int64) ([]Edge, error) {
	rows, err := s.db.Query(
		"SELECT "+edgeCols+" FROM edges WHERE file_id = ? ORDER BY kind, id", fileID,
	)
	if err != nil {
		return nil, wrap("edges by file", err)
	}
	defer rows.Close()
	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
