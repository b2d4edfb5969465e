// Package graphstore is the GraphGateway: a typed wrapper over the graph
// store, backed by a SQLite database reached through database/sql. Every
// query runs as a single atomic statement (or, for multi-table operations,
// a single transaction).
//
// Every mutating method here is one parameterized statement or, where it
// must touch more than one table, one transaction (RenameGroup, RenameFile
// and DeleteFile here, the rest in tx.go) against three tables: groups,
// files, edges. The listing queries are answered from the in-memory bitmap
// index (index.go) rather than from SQL. No
// SQL is ever built by string concatenation; identifiers are validated
// before use and values travel as bind parameters.
package graphstore

import (
	"database/sql"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/groupfs/groupfs/internal/fserr"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS groups (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS files (
	name  TEXT PRIMARY KEY,
	value BLOB
);
CREATE TABLE IF NOT EXISTS edges (
	file TEXT NOT NULL REFERENCES files(name) DEFERRABLE INITIALLY DEFERRED,
	grp  TEXT NOT NULL REFERENCES groups(name) DEFERRABLE INITIALLY DEFERRED,
	PRIMARY KEY (file, grp)
);
CREATE TRIGGER IF NOT EXISTS files_name_not_group BEFORE INSERT ON files
WHEN EXISTS (SELECT 1 FROM groups WHERE name = NEW.name)
BEGIN SELECT RAISE(ABORT, 'name already used by a group'); END;
CREATE TRIGGER IF NOT EXISTS groups_name_not_file BEFORE INSERT ON groups
WHEN EXISTS (SELECT 1 FROM files WHERE name = NEW.name)
BEGIN SELECT RAISE(ABORT, 'name already used by a file'); END;
CREATE INDEX IF NOT EXISTS edges_by_group ON edges(grp);
CREATE INDEX IF NOT EXISTS edges_by_file ON edges(file);
`

// Store is the GraphGateway. It owns the SQLite connection, the roaring
// bitmap conjunctive-filter index (index.go) and the name-classification
// cache (classify.go). Both caches are pure performance layers over the SQL
// tables, which remain the single source of truth — every mutating method
// keeps them in sync in the same call, never lazily.
type Store struct {
	db *sql.DB

	mu  sync.RWMutex
	idx *bitmapIndex

	classMu sync.Mutex
	class   *lru.Cache[string, classResult]
}

// Open connects to the SQLite-backed graph store at dsn (a file path, or
// ":memory:" for tests) and ensures the schema exists. dsn stands in for
// whatever connection string a networked graph store would take at
// startup; a file-based store has no network password, but a networked
// GraphGateway would take the same constructor shape.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fserr.Wrap(fserr.IO, "open", dsn, err)
	}
	// A single writer connection avoids SQLITE_BUSY from concurrent writers
	// stepping on each other; groupfs serves requests single-threaded per
	// mount anyway, so this never serializes real work.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fserr.Wrap(fserr.IO, "open", dsn, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fserr.Wrap(fserr.IO, "open", dsn, err)
	}

	cache, err := lru.New[string, classResult](4096)
	if err != nil {
		_ = db.Close()
		return nil, fserr.Wrap(fserr.IO, "open", dsn, err)
	}

	s := &Store{
		db:    db,
		idx:   newBitmapIndex(),
		class: cache,
	}
	if err := s.idx.load(db); err != nil {
		_ = db.Close()
		return nil, fserr.Wrap(fserr.IO, "open", dsn, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// validateName rejects identifiers containing a quote or backslash before
// they ever reach a query. SQLite placeholders make injection impossible
// regardless, but callers expect illegal identifiers to be rejected
// outright (EINVAL), not merely neutralized.
func validateName(op, name string) error {
	if name == "" || strings.ContainsAny(name, "'\"\\") {
		return fserr.New(fserr.Invalid, op, name)
	}
	return nil
}

// reservedStatsName is PathResolver's virtual /_stats.json diagnostic file.
// It never exists as a real group or file row, so creation of either must
// reject it outright rather than silently shadowing the virtual file.
const reservedStatsName = "_stats.json"

func validateCreatableName(op, name string) error {
	if err := validateName(op, name); err != nil {
		return err
	}
	if name == reservedStatsName {
		return fserr.New(fserr.Exists, op, name)
	}
	return nil
}

// IsGroup reports whether name is a group's primary key.
func (s *Store) IsGroup(name string) (bool, error) {
	if err := validateName("IsGroup", name); err != nil {
		return false, err
	}
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM groups WHERE name = ?", name).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fserr.Wrap(fserr.IO, "IsGroup", name, err)
	}
	return true, nil
}

// IsFile reports whether name is a file's primary key.
func (s *Store) IsFile(name string) (bool, error) {
	if err := validateName("IsFile", name); err != nil {
		return false, err
	}
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM files WHERE name = ?", name).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fserr.Wrap(fserr.IO, "IsFile", name, err)
	}
	return true, nil
}

// CreateGroup inserts a new group. The caller (PathResolver/FSOps) has
// already checked that no group or file of this name exists.
func (s *Store) CreateGroup(name string) error {
	if err := validateCreatableName("CreateGroup", name); err != nil {
		return err
	}
	if _, err := s.db.Exec("INSERT INTO groups (name) VALUES (?)", name); err != nil {
		return fserr.Wrap(fserr.IO, "CreateGroup", name, err)
	}
	s.mu.Lock()
	s.idx.addGroup(name)
	s.mu.Unlock()
	s.invalidateClass(name)
	return nil
}

// CreateFile inserts a new file node with no value.
func (s *Store) CreateFile(name string) error {
	if err := validateCreatableName("CreateFile", name); err != nil {
		return err
	}
	if _, err := s.db.Exec("INSERT INTO files (name, value) VALUES (?, NULL)", name); err != nil {
		return fserr.Wrap(fserr.IO, "CreateFile", name, err)
	}
	s.mu.Lock()
	s.idx.addFile(name)
	s.mu.Unlock()
	s.invalidateClass(name)
	return nil
}

// LinkFileToGroup creates one isInGroup edge. Not required to be idempotent
// — the caller ensures no duplicate exists.
func (s *Store) LinkFileToGroup(file, group string) error {
	if err := validateName("LinkFileToGroup", file); err != nil {
		return err
	}
	if err := validateName("LinkFileToGroup", group); err != nil {
		return err
	}
	if _, err := s.db.Exec("INSERT INTO edges (file, grp) VALUES (?, ?)", file, group); err != nil {
		return fserr.Wrap(fserr.IO, "LinkFileToGroup", file+" -> "+group, err)
	}
	s.mu.Lock()
	s.idx.link(file, group)
	s.mu.Unlock()
	return nil
}

// UnlinkFileFromGroup deletes the edge if present.
func (s *Store) UnlinkFileFromGroup(file, group string) error {
	if err := validateName("UnlinkFileFromGroup", file); err != nil {
		return err
	}
	if err := validateName("UnlinkFileFromGroup", group); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM edges WHERE file = ? AND grp = ?", file, group); err != nil {
		return fserr.Wrap(fserr.IO, "UnlinkFileFromGroup", file+" -> "+group, err)
	}
	s.mu.Lock()
	s.idx.unlink(file, group)
	s.mu.Unlock()
	return nil
}

// DeleteGroup deletes the group node. The caller has verified it has no
// files (GroupHasFiles returned false).
func (s *Store) DeleteGroup(name string) error {
	if err := validateName("DeleteGroup", name); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM groups WHERE name = ?", name); err != nil {
		return fserr.Wrap(fserr.IO, "DeleteGroup", name, err)
	}
	s.mu.Lock()
	s.idx.removeGroup(name)
	s.mu.Unlock()
	s.invalidateClass(name)
	return nil
}

// DeleteFile deletes the file node and all incident edges atomically (a
// single statement per table, bracketed in one transaction).
func (s *Store) DeleteFile(name string) error {
	if err := validateName("DeleteFile", name); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fserr.Wrap(fserr.IO, "DeleteFile", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM edges WHERE file = ?", name); err != nil {
		return fserr.Wrap(fserr.IO, "DeleteFile", name, err)
	}
	if _, err := tx.Exec("DELETE FROM files WHERE name = ?", name); err != nil {
		return fserr.Wrap(fserr.IO, "DeleteFile", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fserr.Wrap(fserr.IO, "DeleteFile", name, err)
	}

	s.mu.Lock()
	s.idx.removeFile(name)
	s.mu.Unlock()
	s.invalidateClass(name)
	return nil
}

// RenameGroup updates the name property. The caller has verified uniqueness.
func (s *Store) RenameGroup(oldName, newName string) error {
	if err := validateName("RenameGroup", oldName); err != nil {
		return err
	}
	if err := validateName("RenameGroup", newName); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fserr.Wrap(fserr.IO, "RenameGroup", oldName, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("UPDATE groups SET name = ? WHERE name = ?", newName, oldName); err != nil {
		return fserr.Wrap(fserr.IO, "RenameGroup", oldName, err)
	}
	if _, err := tx.Exec("UPDATE edges SET grp = ? WHERE grp = ?", newName, oldName); err != nil {
		return fserr.Wrap(fserr.IO, "RenameGroup", oldName, err)
	}
	if err := tx.Commit(); err != nil {
		return fserr.Wrap(fserr.IO, "RenameGroup", oldName, err)
	}

	s.mu.Lock()
	s.idx.renameGroup(oldName, newName)
	s.mu.Unlock()
	s.invalidateClass(oldName)
	s.invalidateClass(newName)
	return nil
}

// RenameFile updates the name property. The caller has verified uniqueness.
func (s *Store) RenameFile(oldName, newName string) error {
	if err := validateName("RenameFile", oldName); err != nil {
		return err
	}
	if err := validateName("RenameFile", newName); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fserr.Wrap(fserr.IO, "RenameFile", oldName, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("UPDATE files SET name = ? WHERE name = ?", newName, oldName); err != nil {
		return fserr.Wrap(fserr.IO, "RenameFile", oldName, err)
	}
	if _, err := tx.Exec("UPDATE edges SET file = ? WHERE file = ?", newName, oldName); err != nil {
		return fserr.Wrap(fserr.IO, "RenameFile", oldName, err)
	}
	if err := tx.Commit(); err != nil {
		return fserr.Wrap(fserr.IO, "RenameFile", oldName, err)
	}

	s.mu.Lock()
	s.idx.renameFile(oldName, newName)
	s.mu.Unlock()
	s.invalidateClass(oldName)
	s.invalidateClass(newName)
	return nil
}

// ReadFileValue returns the value property, or (nil, nil) if absent.
func (s *Store) ReadFileValue(name string) ([]byte, error) {
	if err := validateName("ReadFileValue", name); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.QueryRow("SELECT value FROM files WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fserr.New(fserr.NotFound, "ReadFileValue", name)
	}
	if err != nil {
		return nil, fserr.Wrap(fserr.IO, "ReadFileValue", name, err)
	}
	return value, nil
}

// WriteFileValue sets value, replacing any prior value entirely.
func (s *Store) WriteFileValue(name string, value []byte) error {
	if err := validateName("WriteFileValue", name); err != nil {
		return err
	}
	res, err := s.db.Exec("UPDATE files SET value = ? WHERE name = ?", value, name)
	if err != nil {
		return fserr.Wrap(fserr.IO, "WriteFileValue", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fserr.Wrap(fserr.IO, "WriteFileValue", name, err)
	}
	if n == 0 {
		return fserr.New(fserr.NotFound, "WriteFileValue", name)
	}
	return nil
}

// GroupHasFiles reports whether at least one file is linked to name.
func (s *Store) GroupHasFiles(name string) (bool, error) {
	if err := validateName("GroupHasFiles", name); err != nil {
		return false, err
	}
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM edges WHERE grp = ? LIMIT 1", name).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fserr.Wrap(fserr.IO, "GroupHasFiles", name, err)
	}
	return true, nil
}

// FileGroups returns the sorted set of groups a file currently belongs to.
func (s *Store) FileGroups(name string) ([]string, error) {
	rows, err := s.db.Query("SELECT grp FROM edges WHERE file = ? ORDER BY grp", name)
	if err != nil {
		return nil, fserr.Wrap(fserr.IO, "fileGroups", name, err)
	}
	defer func() { _ = rows.Close() }()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fserr.Wrap(fserr.IO, "fileGroups", name, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Stats reports total group and file counts for the /_stats.json diagnostic
// file.
func (s *Store) Stats() (groups, files int, err error) {
	if err = s.db.QueryRow("SELECT count(*) FROM groups").Scan(&groups); err != nil {
		return 0, 0, fserr.Wrap(fserr.IO, "Stats", "", err)
	}
	if err = s.db.QueryRow("SELECT count(*) FROM files").Scan(&files); err != nil {
		return 0, 0, fserr.Wrap(fserr.IO, "Stats", "", err)
	}
	return groups, files, nil
}
