package store

import (
	"database/sql"
	"fmt"
)

const fileCols = `id, path, language, hash, line_count, last_indexed`

func scanFile(scanner interface{ Scan(...any) error }) (File, error) {
	var f File
	err := scanner.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.LineCount, &f.LastIndexed)
	return f, err
}

// FileByPath returns the file record for a path, or nil when not indexed.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow(
		"SELECT "+fileCols+" FROM files WHERE path = ?", path,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("file by path", err)
	}
	return &f, nil
}

// FileByID returns the file record for an ID, or nil when absent.
func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow(
		"SELECT "+fileCols+" FROM files WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("file by id", err)
	}
	return &f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrap("query files", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// Files returns all indexed files ordered by path.
func (s *Store) Files() ([]*File, error) {
	return s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
}

// FilesByLanguage returns indexed files for one language, ordered by path.
func (s *Store) FilesByLanguage(language string) ([]*File, error) {
	return s.queryFiles(
		"SELECT "+fileCols+" FROM files WHERE language = ? ORDER BY path", language,
	)
}
