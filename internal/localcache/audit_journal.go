package localcache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// AuditJournal is a best-effort, agent-local SQLite log of chunk read/write
// operations, useful for diagnosing a node's own behavior; it is never
// consulted to answer a read or write, only appended to.
type AuditJournal struct {
	db *sql.DB
}

// AuditOp is one recorded chunk operation.
type AuditOp struct {
	Timestamp time.Time
	Op        string // "read", "write" or "delete"
	Path      string
	Index     uint64
	DriveID   string
	Result    string // "ok" or an error string
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS chunk_ops (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	op TEXT NOT NULL,
	path TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	drive_id TEXT NOT NULL,
	result TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunk_ops_ts ON chunk_ops(ts);
`

// OpenAuditJournal opens (creating if necessary) the SQLite database at path.
func OpenAuditJournal(path string) (*AuditJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localcache: open audit journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("localcache: init audit schema: %w", err)
	}
	return &AuditJournal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *AuditJournal) Close() error { return j.db.Close() }

// Record appends op to the journal.
func (j *AuditJournal) Record(op AuditOp) error {
	_, err := j.db.Exec(
		`INSERT INTO chunk_ops (ts, op, path, chunk_index, drive_id, result) VALUES (?, ?, ?, ?, ?, ?)`,
		op.Timestamp.Unix(), op.Op, op.Path, op.Index, op.DriveID, op.Result,
	)
	if err != nil {
		return fmt.Errorf("localcache: record op: %w", err)
	}
	return nil
}

// Recent returns the most recent limit operations, newest first.
func (j *AuditJournal) Recent(limit int) ([]AuditOp, error) {
	rows, err := j.db.Query(
		`SELECT ts, op, path, chunk_index, drive_id, result FROM chunk_ops ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("localcache: query recent: %w", err)
	}
	defer rows.Close()

	var ops []AuditOp
	for rows.Next() {
		var ts int64
		var o AuditOp
		if err := rows.Scan(&ts, &o.Op, &o.Path, &o.Index, &o.DriveID, &o.Result); err != nil {
			return nil, fmt.Errorf("localcache: scan recent: %w", err)
		}
		o.Timestamp = time.Unix(ts, 0)
		ops = append(ops, o)
	}
	return ops, rows.Err()
}
