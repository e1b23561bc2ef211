// Package registry provides a lightweight SQLite-backed record of
// (docId, lastAccessed, version) per document (SPEC_FULL EXPANSION B/C.1).
// It is deliberately not the system of record for document content — that
// is the snapshot+oplog pair in internal/docstore, per spec §4.4 — this
// package only tracks metadata the idle-document sweeper and the STATS op
// need to survive process restarts.
package registry

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Registry wraps a SQLite connection holding the document_registry table.
type Registry struct {
	db *sql.DB
}

// Open creates a Registry backed by the SQLite database at uri, running
// migrations. uri may be ":memory:" for tests or an in-process registry
// with no restart durability.
func Open(uri string) (*Registry, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, errors.Wrap(err, "open registry database")
	}
	if uri == ":memory:" {
		// Each pooled connection to ":memory:" opens its own empty
		// database, so keep a single connection that holds the schema.
		db.SetMaxOpenConns(1)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate registry database")
	}
	return &Registry{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Touch upserts a document's lastAccessed timestamp and version, called on
// every load-or-create and every successful edit (SPEC_FULL EXPANSION C.1).
func (r *Registry) Touch(docID string, version int, at time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO document_registry (doc_id, last_accessed, version)
		VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			last_accessed = excluded.last_accessed,
			version = excluded.version
	`, docID, at.Unix(), version)
	if err != nil {
		return errors.Wrap(err, "touch registry entry")
	}
	return nil
}

// LastAccessed returns the recorded lastAccessed time for docID, or
// (zero time, false) if the document has never been touched.
func (r *Registry) LastAccessed(docID string) (time.Time, bool, error) {
	var unixSeconds int64
	err := r.db.QueryRow("SELECT last_accessed FROM document_registry WHERE doc_id = ?", docID).Scan(&unixSeconds)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "query last accessed")
	}
	return time.Unix(unixSeconds, 0), true, nil
}

// IdleSince returns the doc IDs whose lastAccessed is older than cutoff,
// used by the idle-document sweeper (SPEC_FULL EXPANSION C.1).
func (r *Registry) IdleSince(cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query("SELECT doc_id FROM document_registry WHERE last_accessed < ?", cutoff.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "query idle documents")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan idle document row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the total number of registered documents, used by the
// STATS op (SPEC_FULL EXPANSION C.2).
func (r *Registry) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM document_registry").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count registry entries")
	}
	return n, nil
}
