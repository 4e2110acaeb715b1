package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/batch"
	"github.com/subh7987/hyper-link-remover/internal/cleaner"
	"github.com/subh7987/hyper-link-remover/internal/db"
	"github.com/subh7987/hyper-link-remover/internal/parser"
	"github.com/subh7987/hyper-link-remover/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// loadRun resolves the {id} parameter, writing the error response itself
func (h *Handlers) loadRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	id, err := urlID(r, "id")
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return nil, false
	}

	run, err := h.db.GetRun(id)
	if err != nil {
		h.log.Error("Failed to load run", zap.Int64("run", id), zap.Error(err))
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return nil, false
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	return run, true
}

// loadRunFile resolves {id} and {fileID}; the file must belong to the run
func (h *Handlers) loadRunFile(w http.ResponseWriter, r *http.Request) (*db.RunFile, bool) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return nil, false
	}

	fileID, err := urlID(r, "fileID")
	if err != nil {
		http.Error(w, "Invalid file ID", http.StatusBadRequest)
		return nil, false
	}

	f, err := h.db.GetRunFile(fileID)
	if err != nil {
		h.log.Error("Failed to load run file", zap.Int64("file", fileID), zap.Error(err))
		http.Error(w, "Failed to load file", http.StatusInternalServerError)
		return nil, false
	}
	if f == nil || f.RunID != run.ID || f.Failed {
		http.Error(w, "File not found", http.StatusNotFound)
		return nil, false
	}
	return f, true
}

// ViewRun shows the per-file results of a run
func (h *Handlers) ViewRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	files, err := h.db.GetRunFiles(run.ID)
	if err != nil {
		h.log.Error("Failed to load run files", zap.Int64("run", run.ID), zap.Error(err))
		http.Error(w, "Failed to load run files", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"PageTitle": fmt.Sprintf("Run #%d - EML Cleaner", run.ID),
		"Run":       run,
		"Files":     files,
	}
	h.render(w, "run.html", data)
}

// DeleteRun removes a run and returns to the home page
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteRun(run.ID); err != nil {
		h.log.Error("Failed to delete run", zap.Int64("run", run.ID), zap.Error(err))
		http.Error(w, "Failed to delete run", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DownloadArchive serves the cleaned files of a run as a ZIP archive
func (h *Handlers) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	files, err := h.db.GetRunOutputs(run.ID)
	if err != nil {
		h.log.Error("Failed to load run outputs", zap.Int64("run", run.ID), zap.Error(err))
		http.Error(w, "Failed to load run files", http.StatusInternalServerError)
		return
	}

	data, err := report.Archive(toResults(files))
	if err != nil {
		h.log.Error("Failed to build archive", zap.Int64("run", run.ID), zap.Error(err))
		http.Error(w, "Failed to build archive", http.StatusInternalServerError)
		return
	}

	serveDownload(w, report.ArchiveName, "application/zip", data)
}

// DownloadReport serves the processing report workbook of a run
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	files, err := h.db.GetRunFiles(run.ID)
	if err != nil {
		h.log.Error("Failed to load run files", zap.Int64("run", run.ID), zap.Error(err))
		http.Error(w, "Failed to load run files", http.StatusInternalServerError)
		return
	}

	data, err := report.Workbook(toResults(files))
	if err != nil {
		h.log.Error("Failed to build report", zap.Int64("run", run.ID), zap.Error(err))
		http.Error(w, "Failed to build report", http.StatusInternalServerError)
		return
	}

	serveDownload(w, report.WorkbookName, xlsxContentType, data)
}

// DownloadFile serves one cleaned file
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	f, ok := h.loadRunFile(w, r)
	if !ok {
		return
	}

	contentType := "message/rfc822"
	if strings.HasSuffix(strings.ToLower(f.Filename), ".mbox") {
		contentType = "application/mbox"
	}
	serveDownload(w, sanitizeFilename(f.Filename), contentType, f.Output)
}

// PreviewFile renders the cleaned HTML body of a file. The body is passed
// through the UGC policy, so scripts and handlers never reach the browser.
func (h *Handlers) PreviewFile(w http.ResponseWriter, r *http.Request) {
	f, ok := h.loadRunFile(w, r)
	if !ok {
		return
	}

	var (
		subject string
		body    template.HTML
		isHTML  bool
	)
	msg, err := parser.Parse(f.Output)
	if err == nil {
		subject = msg.Subject()
		if html, found := msg.HTMLBody(); found {
			body, isHTML = template.HTML(h.policy.Sanitize(html)), true
		}
	}

	data := map[string]interface{}{
		"PageTitle": f.Filename + " - EML Cleaner",
		"File":      f,
		"Subject":   subject,
		"Body":      body,
		"IsHTML":    isHTML,
		"Text":      f.Preview,
	}
	h.render(w, "preview.html", data)
}

// toResults turns stored run files back into batch results for packaging
func toResults(files []*db.RunFile) []batch.FileResult {
	results := make([]batch.FileResult, len(files))
	for i, f := range files {
		results[i] = batch.FileResult{
			Filename: f.Filename,
			Changed:  f.Changed,
			Reason:   f.Reason,
			Outcome:  cleaner.Outcome(f.Outcome),
			Output:   f.Output,
			Messages: f.Messages,
			Preview:  f.Preview,
		}
		if f.Failed {
			results[i].Err = errors.New(strings.TrimPrefix(f.Reason, "Error: "))
		}
	}
	return results
}

func serveDownload(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": filename,
		}))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(data)
}

// sanitizeFilename removes dangerous characters from download filenames
func sanitizeFilename(filename string) string {
	// Remove path separators
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))

	// Remove any control characters and quotes
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1
		}
		return r
	}, filename)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	if cleaned == "" || cleaned == "." || cleaned == "/" {
		cleaned = "cleaned.eml"
	}

	return cleaned
}
