package binary

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Node is one row of the nodes table (a "group" in the container's
// vocabulary).
type Node struct {
	ID          string
	ParentID    *string
	Kind        string
	Name        string
	CanonicalID *string
}

// CreateGroup inserts a new node. parentID is nil for the root Experiment
// group only.
func (s *Store) CreateGroup(id string, parentID *string, kind, name string) error {
	_, err := s.db.Exec(`INSERT INTO nodes(id, parent_id, kind, name) VALUES(?, ?, ?, ?)`, id, parentID, kind, name)
	if err != nil {
		return fmt.Errorf("binary: create group %s: %w", name, err)
	}
	return nil
}

// CreateHardLink inserts a node under parentID that shares canonicalID's
// identity instead of owning independent content — a cross-reference
// represented as a hard-link, not a copy.
func (s *Store) CreateHardLink(id, parentID, canonicalID, kind, name string) error {
	_, err := s.db.Exec(`INSERT INTO nodes(id, parent_id, kind, name, canonical_id) VALUES(?, ?, ?, ?, ?)`,
		id, parentID, kind, name, canonicalID)
	if err != nil {
		return fmt.Errorf("binary: create hard link %s: %w", name, err)
	}
	return nil
}

// GetNode fetches a node by id.
func (s *Store) GetNode(id string) (Node, error) {
	var n Node
	err := s.db.QueryRow(`SELECT id, parent_id, kind, name, canonical_id FROM nodes WHERE id = ?`, id).
		Scan(&n.ID, &n.ParentID, &n.Kind, &n.Name, &n.CanonicalID)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("binary: node %s not found", id)
	}
	if err != nil {
		return Node{}, fmt.Errorf("binary: get node %s: %w", id, err)
	}
	return n, nil
}

// Children lists all direct children of parentID, hard-link nodes included;
// a hard link is distinguishable by its non-nil CanonicalID.
func (s *Store) Children(parentID string) ([]Node, error) {
	rows, err := s.db.Query(`SELECT id, parent_id, kind, name, canonical_id FROM nodes WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, fmt.Errorf("binary: children of %s: %w", parentID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Kind, &n.Name, &n.CanonicalID); err != nil {
			return nil, fmt.Errorf("binary: scan child: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ReferenceCount returns the number of hard-link nodes pointing at id via
// canonical_id, used to enforce delete-guard rules — Source deletion
// requires that no EpochGroup still references it.
func (s *Store) ReferenceCount(id string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM nodes WHERE canonical_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("binary: reference count for %s: %w", id, err)
	}
	return n, nil
}

// DeleteNode removes a node and its attributes/rows. Callers must have
// already enforced the delete-guard rules.
func (s *Store) DeleteNode(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("binary: delete node %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM rows WHERE node_id = ?`, id); err != nil {
		return fmt.Errorf("binary: delete rows for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM attributes WHERE node_id = ?`, id); err != nil {
		return fmt.Errorf("binary: delete attributes for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("binary: delete node %s: %w", id, err)
	}
	return tx.Commit()
}

// SetAttribute upserts one attribute value, JSON-encoded, on a node.
func (s *Store) SetAttribute(nodeID, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("binary: encode attribute %s.%s: %w", nodeID, key, err)
	}
	_, err = s.db.Exec(`INSERT INTO attributes(node_id, key, value) VALUES(?, ?, ?)
		ON CONFLICT(node_id, key) DO UPDATE SET value = excluded.value`, nodeID, key, string(encoded))
	if err != nil {
		return fmt.Errorf("binary: set attribute %s.%s: %w", nodeID, key, err)
	}
	return nil
}

// GetAttribute reads and JSON-decodes one attribute value into dst.
func (s *Store) GetAttribute(nodeID, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM attributes WHERE node_id = ? AND key = ?`, nodeID, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("binary: get attribute %s.%s: %w", nodeID, key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("binary: decode attribute %s.%s: %w", nodeID, key, err)
	}
	return true, nil
}

// DeleteAttribute removes one attribute; a missing key is not an error —
// keyword/property removal semantics rely on this.
func (s *Store) DeleteAttribute(nodeID, key string) error {
	_, err := s.db.Exec(`DELETE FROM attributes WHERE node_id = ? AND key = ?`, nodeID, key)
	if err != nil {
		return fmt.Errorf("binary: delete attribute %s.%s: %w", nodeID, key, err)
	}
	return nil
}

// Attributes returns every attribute key present on a node, decoded values
// left as raw JSON for the caller to interpret.
func (s *Store) Attributes(nodeID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(`SELECT key, value FROM attributes WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("binary: attributes of %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("binary: scan attribute: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}
