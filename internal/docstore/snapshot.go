// Package docstore implements the crash-recoverable snapshot+oplog
// persistence layer described in spec §4.4: a per-document JSON snapshot
// file plus an append-only JSON-lines operation log, and a recovery
// routine that reconstructs (content, version) from the pair.
package docstore

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/shiv248/textsync/internal/protocol"
)

// Store is a directory pair (snapshot-dir, oplog-dir) holding one file per
// document, named after spec §6's persistence layout.
type Store struct {
	SnapshotDir string
	OplogDir    string
}

// New returns a Store rooted at the given directories. Callers are
// responsible for creating the directories (cmd/server does this once at
// startup); docstore does not mkdir on every write.
func New(snapshotDir, oplogDir string) *Store {
	return &Store{SnapshotDir: snapshotDir, OplogDir: oplogDir}
}

func (s *Store) snapshotPath(docID string) string {
	return filepath.Join(s.SnapshotDir, docID+".json")
}

func (s *Store) oplogPath(docID string) string {
	return filepath.Join(s.OplogDir, docID+".logl")
}

// SaveSnapshot crash-atomically writes {docId, version, content} for doc,
// pretty-printed UTF-8, via a temp-file-then-rename so a reader never
// observes a partially written snapshot (spec §4.4). On any error the temp
// file is removed by renameio's Cleanup.
func (s *Store) SaveSnapshot(docID string, version int, content string) error {
	data, err := json.MarshalIndent(protocol.SnapshotFile{
		DocID:   docID,
		Version: version,
		Content: content,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	t, err := renameio.NewPendingFile(s.snapshotPath(docID))
	if err != nil {
		return errors.Wrap(err, "create snapshot temp file")
	}
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return errors.Wrap(err, "write snapshot temp file")
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return errors.Wrap(err, "replace snapshot file")
	}
	return nil
}

// AppendOplog appends one canonical JSON line to the document's oplog in
// append mode (spec §4.4). Writes are serialized by the caller holding the
// document's mutex; AppendOplog itself performs a single os-level append
// write per call.
func (s *Store) AppendOplog(docID string, version int, p protocol.Patch, by string) error {
	entry := protocol.OplogEntry{
		DocID:   docID,
		Version: version,
		Patch:   p,
		By:      by,
		TS:      float64(time.Now().UnixNano()) / 1e9,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal oplog entry")
	}
	line = append(line, '\n')

	f, err := openAppend(s.oplogPath(docID))
	if err != nil {
		return errors.Wrap(err, "open oplog for append")
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return errors.Wrap(err, "append oplog entry")
	}
	return nil
}
