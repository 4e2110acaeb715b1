package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer CleanupTestDB(t, db)

	count, err := db.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInsertRun_GetRun(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	created := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	run := &Run{
		Source:       SourceScan,
		Mode:         "links",
		TotalFiles:   3,
		ChangedFiles: 2,
		FailedFiles:  1,
		CreatedAt:    NullTime{Time: created, Valid: true},
	}
	id, err := db.InsertRun(run)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)

	got, err := db.GetRun(id)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, SourceScan, got.Source)
	assert.Equal(t, "links", got.Mode)
	assert.Equal(t, 3, got.TotalFiles)
	assert.Equal(t, 2, got.ChangedFiles)
	assert.Equal(t, 1, got.FailedFiles)
	require.True(t, got.CreatedAt.Valid)
	assert.True(t, created.Equal(got.CreatedAt.Time), "got %v", got.CreatedAt.Time)
}

func TestInsertRun_DefaultsCreatedAt(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	run := &Run{Source: SourceUpload, Mode: "full"}
	_, err := db.InsertRun(run)
	require.NoError(t, err)
	assert.True(t, run.CreatedAt.Valid)
}

func TestGetRun_NotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	run, err := db.GetRun(42)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestListRuns_Pagination(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	for i := 0; i < 5; i++ {
		InsertTestRun(t, db, "full", nil)
	}

	count, err := db.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	first, err := db.ListRuns(2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Greater(t, first[0].ID, first[1].ID, "Newest run first")

	last, err := db.ListRuns(2, 4)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, int64(1), last[0].ID)
}

func TestRunFiles(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	files := []*RunFile{
		CreateTestRunFile("a.eml", "Links removed and emails masked", "hello there", true),
		{Filename: "b.eml", Reason: "Error: failed to read file: boom", Failed: true},
		CreateTestRunFile("c.eml", "No HTML part found", "plain words", false),
	}
	run := InsertTestRun(t, db, "full", files)

	for _, f := range files {
		assert.NotZero(t, f.ID)
		assert.Equal(t, run.ID, f.RunID)
	}

	list, err := db.GetRunFiles(run.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "a.eml", list[0].Filename)
	assert.True(t, list[0].Changed)
	assert.Nil(t, list[0].Output, "Listing skips outputs")
	assert.Equal(t, int64(len(files[0].Output)), list[0].Size)
	assert.True(t, list[1].Failed)
	assert.Equal(t, "c.eml", list[2].Filename)

	outputs, err := db.GetRunOutputs(run.ID)
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.Equal(t, files[0].Output, outputs[0].Output)
	assert.Empty(t, outputs[1].Output)

	one, err := db.GetRunFile(files[2].ID)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "plain words", one.Preview)
	assert.Equal(t, files[2].Output, one.Output)

	missing, err := db.GetRunFile(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteRun_Cascades(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	run := InsertTestRun(t, db, "full", []*RunFile{
		CreateTestRunFile("gone.eml", "Links removed", "remove me", true),
	})
	keep := InsertTestRun(t, db, "full", []*RunFile{
		CreateTestRunFile("kept.eml", "Links removed", "keep me", true),
	})

	require.NoError(t, db.DeleteRun(run.ID))

	got, err := db.GetRun(run.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	files, err := db.GetRunFiles(run.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	results, err := db.SearchRunFiles("me", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "Deleted files leave the search index")
	assert.Equal(t, keep.ID, results[0].RunID)
}

func TestGetStats(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRuns)
	assert.True(t, stats.LastRun.IsZero())

	InsertTestRun(t, db, "full", []*RunFile{
		CreateTestRunFile("a.eml", "Links removed", "x", true),
		CreateTestRunFile("b.eml", "No changes made", "y", false),
		{Filename: "c.eml", Reason: "Error: bad", Failed: true},
	})

	stats, err = db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 1, stats.ChangedFiles)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.False(t, stats.LastRun.IsZero())
}

func TestSettings(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	value, err := db.GetSetting("last_mode")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, db.SetSetting("last_mode", "links"))
	require.NoError(t, db.SetSetting("last_mode", "full"))

	value, err = db.LastMode()
	require.NoError(t, err)
	assert.Equal(t, "full", value)

	require.NoError(t, db.SetLastMode("links"))
	value, err = db.GetSetting("last_mode")
	require.NoError(t, err)
	assert.Equal(t, "links", value)

	version, err := db.GetSetting(settingSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SetSetting(settingSchemaVersion, "9"))
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrNewerSchema)
}

func TestNullTime_Scan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		valid bool
		fails bool
	}{
		{name: "nil", value: nil},
		{name: "time", value: time.Now(), valid: true},
		{name: "sqlite default", value: "2024-01-02 03:04:05", valid: true},
		{name: "driver format", value: "2024-01-02 03:04:05.123+00:00", valid: true},
		{name: "rfc3339", value: "2024-01-02T03:04:05Z", valid: true},
		{name: "garbage", value: "yesterday", fails: true},
		{name: "wrong type", value: 42, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nt NullTime
			err := nt.Scan(tt.value)
			if tt.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.valid, nt.Valid)
		})
	}
}
