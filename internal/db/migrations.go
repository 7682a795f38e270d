package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

// Migrate applies every file under migrations/ in name order, once.
func Migrate(database *sql.DB, migrationFS fs.FS) error {
	_, err := database.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		var count int
		if err := database.QueryRow("SELECT COUNT(*) FROM _migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}
		if err := applyMigration(database, migrationFS, name); err != nil {
			return err
		}
		applied++
		slog.Info("applied migration", "file", name)
	}

	slog.Debug("migrations checked", "total", len(names), "applied", applied)
	return nil
}

func applyMigration(database *sql.DB, migrationFS fs.FS, name string) error {
	content, err := fs.ReadFile(migrationFS, "migrations/"+name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := database.Begin()
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("exec migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO _migrations (filename) VALUES (?)", name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}
