package store

// Stats reports index-wide counts. Nodes includes stubs; NodesByKind
// counts only resolved nodes so the two reconcile via Stubs.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{
		NodesByKind: make(map[string]int),
		EdgesByKind: make(map[string]int),
		Languages:   make(map[string]int),
	}

	row := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM files),
		(SELECT COUNT(*) FROM nodes),
		(SELECT COUNT(*) FROM edges),
		(SELECT COUNT(*) FROM nodes WHERE is_stub = 1)`)
	if err := row.Scan(&st.Files, &st.Nodes, &st.Edges, &st.Stubs); err != nil {
		return nil, wrap("stats totals", err)
	}

	if err := s.countInto(st.NodesByKind,
		`SELECT kind, COUNT(*) FROM nodes WHERE is_stub = 0 GROUP BY kind`); err != nil {
		return nil, err
	}
	if err := s.countInto(st.EdgesByKind,
		`SELECT kind, COUNT(*) FROM edges GROUP BY kind`); err != nil {
		return nil, err
	}
	if err := s.countInto(st.Languages,
		`SELECT language, COUNT(*) FROM files GROUP BY language`); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) countInto(dst map[string]int, query string) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return wrap("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return wrap("stats scan", err)
		}
		dst[key] = n
	}
	return rows.Err()
}
