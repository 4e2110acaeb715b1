package db

// Each run keeps its cleaned outputs so the archive and the workbook can be
// rebuilt later. Originals are never stored.
const schema = `
-- One row per cleaning run (upload or directory scan)
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,            -- 'upload' or 'scan'
    mode TEXT NOT NULL,              -- 'full' or 'links'
    total_files INTEGER DEFAULT 0,
    changed_files INTEGER DEFAULT 0,
    failed_files INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per file of a run
CREATE TABLE IF NOT EXISTS run_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    filename TEXT NOT NULL,
    changed BOOLEAN DEFAULT 0,
    reason TEXT NOT NULL,
    outcome TEXT,
    failed BOOLEAN DEFAULT 0,
    messages INTEGER DEFAULT 0,
    preview TEXT,                    -- plain text of the cleaned output
    output BLOB,                     -- cleaned file, NULL for failed files
    size INTEGER DEFAULT 0,
    FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

-- Full-text search over run files
CREATE VIRTUAL TABLE IF NOT EXISTS run_files_fts USING fts5(
    filename,
    reason,
    preview,
    content='run_files',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS run_files_ai AFTER INSERT ON run_files BEGIN
    INSERT INTO run_files_fts(rowid, filename, reason, preview)
    VALUES (new.id, new.filename, new.reason, new.preview);
END;

CREATE TRIGGER IF NOT EXISTS run_files_ad AFTER DELETE ON run_files BEGIN
    INSERT INTO run_files_fts(run_files_fts, rowid, filename, reason, preview)
    VALUES ('delete', old.id, old.filename, old.reason, old.preview);
END;

-- Settings (schema version, mode of the last upload)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_files_run_id ON run_files(run_id);
`
