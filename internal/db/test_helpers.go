package db

import (
	"testing"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestRunFile creates a run file with default values
func CreateTestRunFile(filename, reason, preview string, changed bool) *RunFile {
	return &RunFile{
		Filename: filename,
		Changed:  changed,
		Reason:   reason,
		Outcome:  reason,
		Messages: 1,
		Preview:  preview,
		Output:   []byte("Subject: " + filename + "\r\n\r\n" + preview + "\r\n"),
	}
}

// InsertTestRun inserts a run with its files and returns the run
func InsertTestRun(t *testing.T, db *DB, mode string, files []*RunFile) *Run {
	t.Helper()

	run := &Run{Source: SourceUpload, Mode: mode, TotalFiles: len(files)}
	for _, f := range files {
		if f.Failed {
			run.FailedFiles++
		} else if f.Changed {
			run.ChangedFiles++
		}
	}

	if _, err := db.InsertRun(run); err != nil {
		t.Fatalf("Failed to insert test run: %v", err)
	}
	if err := db.InsertRunFiles(run.ID, files); err != nil {
		t.Fatalf("Failed to insert test run files: %v", err)
	}

	return run
}
