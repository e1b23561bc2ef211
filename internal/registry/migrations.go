package registry

import (
	"database/sql"
	"embed"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/shiv248/textsync/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrate applies all pending migrations in filename order, tracking the
// applied set in a schema_migrations table. Grounded on
// shiv248-kolabpad/pkg/database/migrations.go.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			filename TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(err, "create migrations table")
	}

	var currentVersion int
	_ = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied := 0
	for i, entry := range entries {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		filename := entry.Name()
		logger.Info("applying registry migration %d: %s", version, filename)

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read migration %s", filename)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return errors.Wrapf(err, "apply migration %s", filename)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, filename, applied_at) VALUES (?, ?, ?)",
			version, filename, time.Now().Unix(),
		); err != nil {
			return errors.Wrapf(err, "record migration %s", filename)
		}
		applied++
	}

	if applied > 0 {
		logger.Info("applied %d registry migration(s)", applied)
	}
	return nil
}
