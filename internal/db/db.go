// Package db keeps the history of cleaning runs in SQLite: each run, the
// outcome and cleaned output of every file in it, a full-text index over
// those files, and the few settings the web UI remembers.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory history
const MemoryPath = ":memory:"

const (
	schemaVersion        = "1"
	settingSchemaVersion = "schema_version"
	settingLastMode      = "last_mode"
)

// ErrNewerSchema is returned when the file was written by a newer release
var ErrNewerSchema = errors.New("database schema is newer than this release")

// driverParams are appended to the path: timestamps in SQLite's own format,
// foreign keys for the run_files cascade, and a wait instead of SQLITE_BUSY
// when a second process holds the file
var driverParams = []string{
	"_time_format=sqlite",
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
}

// DB is the run history store
type DB struct {
	*sql.DB
}

// Open opens the run history at path, creating the parent directory and the
// schema when missing
func Open(path string) (*DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path+"?"+strings.Join(driverParams, "&"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives in its connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// migrate creates the tables and stamps the schema version. A file stamped
// by a newer release is refused rather than written with an older layout.
func (db *DB) migrate() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	version, err := db.GetSetting(settingSchemaVersion)
	if err != nil {
		return err
	}
	switch {
	case version == "":
		return db.SetSetting(settingSchemaVersion, schemaVersion)
	case version > schemaVersion:
		return fmt.Errorf("%w: %s > %s", ErrNewerSchema, version, schemaVersion)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// GetSetting returns a stored setting, empty when unset
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// LastMode returns the cleaning mode of the last upload, empty before the first
func (db *DB) LastMode() (string, error) {
	return db.GetSetting(settingLastMode)
}

// SetLastMode remembers the cleaning mode chosen for an upload
func (db *DB) SetLastMode(mode string) error {
	return db.SetSetting(settingLastMode, mode)
}
