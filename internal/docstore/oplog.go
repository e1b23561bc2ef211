package docstore

import (
	"os"

	"github.com/pkg/errors"
)

const filePerm = 0o644
const dirPerm = 0o755

// EnsureDirs creates the snapshot and oplog directories if they don't
// already exist, mirroring the Python original's ensure_storage.
func (s *Store) EnsureDirs() error {
	if err := os.MkdirAll(s.SnapshotDir, dirPerm); err != nil {
		return errors.Wrap(err, "create snapshot dir")
	}
	if err := os.MkdirAll(s.OplogDir, dirPerm); err != nil {
		return errors.Wrap(err, "create oplog dir")
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
}
