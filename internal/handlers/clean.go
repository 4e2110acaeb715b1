package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/batch"
	"github.com/subh7987/hyper-link-remover/internal/cleaner"
	"github.com/subh7987/hyper-link-remover/internal/db"
	"github.com/subh7987/hyper-link-remover/internal/scanner"
)

// Clean handles an upload: every accepted file is cleaned, the run is stored
// and the browser is redirected to it
func (h *Handlers) Clean(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Upload exceeds %d MB", h.cfg.MaxUploadMB), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	mode, err := cleaner.ParseMode(r.FormValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var inputs []batch.Input
	for _, fh := range r.MultipartForm.File["files"] {
		if scanner.KindOf(fh.Filename) == scanner.KindUnknown {
			h.log.Debug("Skipping upload", zap.String("file", fh.Filename))
			continue
		}
		data, err := readUpload(fh)
		inputs = append(inputs, batch.Input{Name: fh.Filename, Data: data, Err: err})
	}
	if len(inputs) == 0 {
		http.Error(w, "No .eml or .mbox files uploaded", http.StatusBadRequest)
		return
	}

	results := h.newBatch(mode).CleanAll(inputs)

	runID, err := h.saveRun(db.SourceUpload, mode, results)
	if err != nil {
		h.log.Error("Failed to save run", zap.Error(err))
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}

	if err := h.db.SetLastMode(string(mode)); err != nil {
		h.log.Warn("Failed to remember mode", zap.Error(err))
	}

	http.Redirect(w, r, fmt.Sprintf("/runs/%d", runID), http.StatusSeeOther)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// newBatch creates a batch cleaner, workers 0 keeps one per CPU
func (h *Handlers) newBatch(mode cleaner.Mode) *batch.Cleaner {
	c := batch.New(mode, h.log)
	if h.cfg.Workers > 0 {
		c.WithConcurrency(h.cfg.Workers)
	}
	return c
}

// saveRun stores a finished batch with its outputs
func (h *Handlers) saveRun(source string, mode cleaner.Mode, results []batch.FileResult) (int64, error) {
	summary := batch.Summarize(results)

	run := &db.Run{
		Source:       source,
		Mode:         string(mode),
		TotalFiles:   summary.TotalFound,
		ChangedFiles: summary.Changed,
		FailedFiles:  summary.Failed,
	}
	if _, err := h.db.InsertRun(run); err != nil {
		return 0, err
	}

	files := make([]*db.RunFile, len(results))
	for i, res := range results {
		files[i] = &db.RunFile{
			Filename: res.Filename,
			Changed:  res.Changed,
			Reason:   res.Reason,
			Outcome:  string(res.Outcome),
			Failed:   res.Err != nil,
			Messages: res.Messages,
			Preview:  res.Preview,
			Output:   res.Output,
		}
	}
	if err := h.db.InsertRunFiles(run.ID, files); err != nil {
		return 0, err
	}

	h.log.Info("Run saved",
		zap.Int64("run", run.ID),
		zap.String("source", source),
		zap.Int("files", summary.TotalFound),
		zap.Int("changed", summary.Changed),
		zap.Int("failed", summary.Failed))

	return run.ID, nil
}
