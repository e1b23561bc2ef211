package docstore

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/shiv248/textsync/internal/patch"
	"github.com/shiv248/textsync/internal/protocol"
)

// RecoveryLogger receives warnings during replay for malformed lines and
// errors for patch application failures, matching the Python original's
// LOGGER.warning/LOGGER.error split (spec §4.4, §7 Recovery).
type RecoveryLogger interface {
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type discardLogger struct{}

func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}

// LoadDocContent reconstructs (content, version) for docID from the
// snapshot file and oplog, per spec §4.4:
//  1. read the snapshot if present and parseable, else start from ("", 0).
//  2. stream the oplog line by line, skipping blank/malformed lines,
//     applying entries with version > current version, and stopping replay
//     (but keeping everything applied so far) on the first patch failure.
//
// Replaying from an older snapshot must yield the same (content, version)
// as replaying from a newer one — entries with version <= current are
// simply skipped, never reapplied.
func (s *Store) LoadDocContent(docID string, logger RecoveryLogger) (string, int) {
	if logger == nil {
		logger = discardLogger{}
	}
	content, version := s.readSnapshot(docID, logger)
	return s.replayOplog(docID, content, version, logger)
}

func (s *Store) readSnapshot(docID string, logger RecoveryLogger) (string, int) {
	path := s.snapshotPath(docID)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("snapshot load failed (%s): %v", docID, err)
		}
		return "", 0
	}

	var snap protocol.SnapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn("snapshot load failed (%s): %v", docID, err)
		return "", 0
	}
	return snap.Content, snap.Version
}

func (s *Store) replayOplog(docID, baseContent string, baseVersion int, logger RecoveryLogger) (string, int) {
	path := s.oplogPath(docID)
	f, err := os.Open(path)
	if err != nil {
		return baseContent, baseVersion
	}
	defer f.Close()

	content := baseContent
	version := baseVersion

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxMessageBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry protocol.OplogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logger.Warn("skip bad oplog line (%s)", docID)
			continue
		}

		if entry.Version <= version {
			continue
		}

		newContent, err := patch.ApplyPatch(content, entry.Patch)
		if err != nil {
			logger.Error("oplog patch failed (%s v%d): %v", docID, entry.Version, errors.WithStack(err))
			break
		}
		content = newContent
		version = entry.Version
	}

	return content, version
}
