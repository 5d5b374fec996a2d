// Package db owns the on-disk workspace layout: a hidden .ideaforge
// directory holding a single SQLite file.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".ideaforge"
	dbFile   = "ideaforge.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the state directory under workspace if it does
// not exist yet and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(orDot(workspace), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Open ensures the workspace exists and opens its database. Foreign keys
// are enabled per connection via the DSN pragma; a busy timeout keeps the
// sweep worker and the API from tripping over each other's writes.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", Path(cfg.Workspace))
	return sql.Open("sqlite", dsn)
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(orDot(workspace), stateDir, dbFile)
}

func orDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
