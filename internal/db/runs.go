package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

// Run sources
const (
	SourceUpload = "upload"
	SourceScan   = "scan"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		// Try multiple time formats
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05.999999999 -0700",
			"2006-01-02 15:04:05 -0700",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
		}

		var t time.Time
		var err error
		for _, format := range formats {
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}

		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// Run is one cleaning run
type Run struct {
	ID           int64
	Source       string
	Mode         string
	TotalFiles   int
	ChangedFiles int
	FailedFiles  int
	CreatedAt    NullTime
}

// RunFile is one processed file of a run
type RunFile struct {
	ID       int64
	RunID    int64
	Filename string
	Changed  bool
	Reason   string
	Outcome  string
	Failed   bool
	Messages int
	Preview  string
	Output   []byte // only loaded by GetRunFile and GetRunOutputs
	Size     int64
}

// InsertRun inserts a new run and returns its ID
func (db *DB) InsertRun(run *Run) (int64, error) {
	if !run.CreatedAt.Valid {
		run.CreatedAt = NullTime{Time: time.Now().UTC(), Valid: true}
	}

	result, err := db.Exec(`
		INSERT INTO runs (source, mode, total_files, changed_files, failed_files, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.Source, run.Mode, run.TotalFiles, run.ChangedFiles, run.FailedFiles, run.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return id, nil
}

// GetRun retrieves a run by its ID, nil when it does not exist
func (db *DB) GetRun(id int64) (*Run, error) {
	run := &Run{}
	err := db.QueryRow(`
		SELECT id, source, mode, total_files, changed_files, failed_files, created_at
		FROM runs WHERE id = ?
	`, id).Scan(
		&run.ID, &run.Source, &run.Mode, &run.TotalFiles, &run.ChangedFiles, &run.FailedFiles, &run.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs with pagination
func (db *DB) ListRuns(limit, offset int) ([]*Run, error) {
	rows, err := db.Query(`
		SELECT id, source, mode, total_files, changed_files, failed_files, created_at
		FROM runs
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID, &run.Source, &run.Mode, &run.TotalFiles, &run.ChangedFiles, &run.FailedFiles, &run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// CountRuns returns the total number of runs
func (db *DB) CountRuns() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// DeleteRun removes a run together with its files
func (db *DB) DeleteRun(id int64) error {
	if _, err := db.Exec("DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// InsertRunFiles inserts the files of a run in a single transaction and sets
// their IDs
func (db *DB) InsertRunFiles(runID int64, files []*RunFile) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_files (
			run_id, filename, changed, reason, outcome, failed,
			messages, preview, output, size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		f.RunID = runID
		f.Size = int64(len(f.Output))

		result, err := stmt.Exec(
			f.RunID, f.Filename, f.Changed, f.Reason, f.Outcome, f.Failed,
			f.Messages, f.Preview, f.Output, f.Size,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run file %s: %w", f.Filename, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		f.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRunFiles retrieves the files of a run in insertion order, without their
// output
func (db *DB) GetRunFiles(runID int64) ([]*RunFile, error) {
	return db.queryRunFiles(false, runID)
}

// GetRunOutputs retrieves the files of a run including their output
func (db *DB) GetRunOutputs(runID int64) ([]*RunFile, error) {
	return db.queryRunFiles(true, runID)
}

func (db *DB) queryRunFiles(withOutput bool, runID int64) ([]*RunFile, error) {
	output := "NULL"
	if withOutput {
		output = "output"
	}

	rows, err := db.Query(`
		SELECT id, run_id, filename, changed, reason, outcome, failed,
		       messages, preview, `+output+`, size
		FROM run_files WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run files: %w", err)
	}
	defer rows.Close()

	var files []*RunFile
	for rows.Next() {
		f := &RunFile{}
		if err := scanRunFile(rows, f); err != nil {
			return nil, fmt.Errorf("failed to scan run file: %w", err)
		}
		files = append(files, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run files: %w", err)
	}

	return files, nil
}

// GetRunFile retrieves a single run file with its output, nil when it does
// not exist
func (db *DB) GetRunFile(id int64) (*RunFile, error) {
	f := &RunFile{}
	row := db.QueryRow(`
		SELECT id, run_id, filename, changed, reason, outcome, failed,
		       messages, preview, output, size
		FROM run_files WHERE id = ?
	`, id)
	err := scanRunFile(row, f)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run file: %w", err)
	}
	return f, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunFile(row rowScanner, f *RunFile) error {
	var outcome, preview sql.NullString
	err := row.Scan(
		&f.ID, &f.RunID, &f.Filename, &f.Changed, &f.Reason, &outcome, &f.Failed,
		&f.Messages, &preview, &f.Output, &f.Size,
	)
	f.Outcome = outcome.String
	f.Preview = preview.String
	return err
}

// Stats holds database statistics
type Stats struct {
	TotalRuns    int
	TotalFiles   int
	ChangedFiles int
	FailedFiles  int
	LastRun      time.Time
}

// GetStats returns current database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN changed = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN failed = 1 THEN 1 ELSE 0 END), 0)
		FROM run_files
	`).Scan(&stats.TotalFiles, &stats.ChangedFiles, &stats.FailedFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to count run files: %w", err)
	}

	var last NullTime
	err = db.QueryRow("SELECT created_at FROM runs ORDER BY id DESC LIMIT 1").Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last run time: %w", err)
	}
	if last.Valid {
		stats.LastRun = last.Time
	}

	return stats, nil
}
