package binary

import (
	"database/sql"
	"fmt"
)

// NoteRow is one row of a "notes" dataset: extensible, appended one row at
// a time, unlimited length.
type NoteRow struct {
	TimeTicks       int64
	TimeOffsetHours float64
	Text            string
}

// MeasurementRow is one row of a "data" dataset: fixed length, equal to the
// number of samples. Unit is truncated to 10 bytes by the caller
// (pkg/daq.TruncatedUnit) before it reaches here — this layer
// just stores whatever string it is given.
type MeasurementRow struct {
	Quantity float64
	Unit     string
}

// nextSeq returns the next insertion-order sequence number for nodeID's
// dataset, so appends are always ordered even across separate calls.
func (s *Store) nextSeq(tx *sql.Tx, nodeID string) (int64, error) {
	var max sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(seq) FROM rows WHERE node_id = ?`, nodeID).Scan(&max); err != nil {
		return 0, fmt.Errorf("binary: next seq for %s: %w", nodeID, err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64 + 1, nil
}

// AppendNote appends one row to nodeID's notes dataset, creating the
// dataset lazily on first write (the dataset is just the node itself —
// nodeID identifies the "notes" subgroup/dataset combination, see
// persistor.Session).
func (s *Store) AppendNote(nodeID string, row NoteRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("binary: append note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	seq, err := s.nextSeq(tx, nodeID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO rows(node_id, seq, time_ticks, time_offset_hours, text) VALUES(?, ?, ?, ?, ?)`,
		nodeID, seq, row.TimeTicks, row.TimeOffsetHours, row.Text); err != nil {
		return fmt.Errorf("binary: append note: %w", err)
	}
	return tx.Commit()
}

// Notes returns every row of nodeID's notes dataset in insertion order.
func (s *Store) Notes(nodeID string) ([]NoteRow, error) {
	rows, err := s.db.Query(`SELECT time_ticks, time_offset_hours, text FROM rows WHERE node_id = ? ORDER BY seq ASC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("binary: notes for %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []NoteRow
	for rows.Next() {
		var r NoteRow
		if err := rows.Scan(&r.TimeTicks, &r.TimeOffsetHours, &r.Text); err != nil {
			return nil, fmt.Errorf("binary: scan note: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WriteMeasurements writes a fixed-length "data" dataset for nodeID,
// replacing any prior contents — data datasets are written once, at
// serialize() time, never incrementally appended.
func (s *Store) WriteMeasurements(nodeID string, samples []MeasurementRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("binary: write measurements: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM rows WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("binary: clear measurements for %s: %w", nodeID, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO rows(node_id, seq, quantity, unit) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("binary: prepare measurement insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for i, sample := range samples {
		if _, err := stmt.Exec(nodeID, i, sample.Quantity, sample.Unit); err != nil {
			return fmt.Errorf("binary: write measurement %d for %s: %w", i, nodeID, err)
		}
	}
	return tx.Commit()
}

// Measurements returns a dataset's samples in stored order.
func (s *Store) Measurements(nodeID string) ([]MeasurementRow, error) {
	rows, err := s.db.Query(`SELECT quantity, unit FROM rows WHERE node_id = ? ORDER BY seq ASC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("binary: measurements for %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []MeasurementRow
	for rows.Next() {
		var r MeasurementRow
		var unit sql.NullString
		if err := rows.Scan(&r.Quantity, &unit); err != nil {
			return nil, fmt.Errorf("binary: scan measurement: %w", err)
		}
		r.Unit = unit.String
		out = append(out, r)
	}
	return out, rows.Err()
}
