// Package binary is the Persistor Binary Layer: group/attribute/dataset
// primitives realized as rows in a single SQLite file opened with the
// pure-Go driver. The HDF5-flavored "group", "attribute", "dataset", and
// "hard link" vocabulary maps onto this schema:
//
//   - a group is a row in nodes, self-referencing parent_id for containment;
//   - an attribute is a row in attributes, keyed by (node_id, key);
//   - a dataset is the rows table, holding notes or measurement samples for
//     one owning node, ordered by seq;
//   - a hard link is an extra nodes row that shares its target's
//     canonical_id instead of owning independent content.
package binary

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// CurrentVersion is the file-format version written by Create and checked
// by Open.
const CurrentVersion = 2

var (
	// ErrPathExists is returned by Create when path already exists.
	ErrPathExists = errors.New("binary: path already exists")
	// ErrNotExist is returned by Open when path does not exist.
	ErrNotExist = errors.New("binary: file does not exist")
	// ErrNoVersion is returned by Open when the file lacks a version attribute.
	ErrNoVersion = errors.New("binary: file has no version attribute")
	// ErrVersionMismatch is returned by Open when the version does not match CurrentVersion.
	ErrVersionMismatch = errors.New("binary: file version mismatch")
	// ErrTopLevelShape is returned by Open when the file does not have exactly one top-level group.
	ErrTopLevelShape = errors.New("binary: file must have exactly one top-level group")
)

// Store is one open container file.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES nodes(id),
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	canonical_id TEXT REFERENCES nodes(id)
);
CREATE INDEX IF NOT EXISTS nodes_parent_idx ON nodes(parent_id);
CREATE INDEX IF NOT EXISTS nodes_canonical_idx ON nodes(canonical_id);
CREATE TABLE IF NOT EXISTS attributes (
	node_id TEXT NOT NULL REFERENCES nodes(id),
	key TEXT NOT NULL,
	value TEXT,
	PRIMARY KEY (node_id, key)
);
CREATE TABLE IF NOT EXISTS rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	node_id TEXT NOT NULL REFERENCES nodes(id),
	seq INTEGER NOT NULL,
	time_ticks INTEGER,
	time_offset_hours REAL,
	text TEXT,
	quantity REAL,
	unit TEXT
);
CREATE INDEX IF NOT EXISTS rows_node_seq_idx ON rows(node_id, seq);
`

// Create opens a brand-new container at path, failing if it already exists.
// It writes the schema and the file-level version attribute but does not
// insert the root Experiment — that is Session's job.
func Create(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrPathExists
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("binary: stat %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("binary: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("binary: create schema: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO meta(key, value) VALUES('version', ?)`, fmt.Sprint(CurrentVersion)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("binary: write version: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Open opens an existing container, enforcing the version gate and the
// single-top-level-group shape invariant.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	} else if err != nil {
		return nil, fmt.Errorf("binary: stat %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("binary: open %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.checkVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.checkTopLevelShape(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkVersion() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'version'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoVersion
	}
	if err != nil {
		return fmt.Errorf("binary: read version: %w", err)
	}
	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return fmt.Errorf("%w: unparseable version %q", ErrVersionMismatch, value)
	}
	if version != CurrentVersion {
		return fmt.Errorf("%w: file is version %d, expected %d", ErrVersionMismatch, version, CurrentVersion)
	}
	return nil
}

func (s *Store) checkTopLevelShape() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM nodes WHERE parent_id IS NULL AND canonical_id IS NULL`).Scan(&count); err != nil {
		return fmt.Errorf("binary: count top-level nodes: %w", err)
	}
	if count != 1 {
		return fmt.Errorf("%w: found %d", ErrTopLevelShape, count)
	}
	return nil
}

// Path returns the container's filesystem path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying connection for callers (e.g. Session) that need
// to run their own statements/transactions against the same file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }
