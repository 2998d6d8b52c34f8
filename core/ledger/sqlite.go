package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists ledger records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS ledger_records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        actor_id TEXT,
        cycle_id INTEGER,
        state TEXT,
        ts INTEGER,
        record TEXT,
        UNIQUE(actor_id, cycle_id)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record to the database.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_records (actor_id, cycle_id, state, ts, record) VALUES (?, ?, ?, ?, ?)`,
		rec.ActorID, rec.CycleID, string(rec.State), rec.Timestamp.Unix(), string(b))
	return err
}

// Update replaces the stored record for the same actor and cycle.
func (s *SQLiteStore) Update(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_records SET state = ?, ts = ?, record = ? WHERE actor_id = ? AND cycle_id = ?`,
		string(rec.State), rec.Timestamp.Unix(), string(b), rec.ActorID, rec.CycleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ledger: no record for %s cycle %d", rec.ActorID, rec.CycleID)
	}
	return nil
}

// Query returns records matching q, ordered by actor then cycle.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT record FROM ledger_records WHERE 1=1`
	if q.ActorID != "" {
		query += ` AND actor_id = ?`
		args = append(args, q.ActorID)
	}
	if q.CycleID != 0 {
		query += ` AND cycle_id = ?`
		args = append(args, q.CycleID)
	}
	if q.State != "" {
		query += ` AND state = ?`
		args = append(args, string(q.State))
	}
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.Unix())
	}
	query += ` ORDER BY actor_id, cycle_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Head returns the latest non-rejected record for the actor.
func (s *SQLiteStore) Head(ctx context.Context, actorID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM ledger_records WHERE actor_id = ? AND state != ? ORDER BY cycle_id DESC LIMIT 1`,
		actorID, string(StateRejected))
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var r Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, true, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
