package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/batch"
	"github.com/subh7987/hyper-link-remover/internal/db"
	"github.com/subh7987/hyper-link-remover/internal/scanner"
)

// ScanProgress holds the state of the directory clean started from the scan
// page. Only one scan runs at a time.
type ScanProgress struct {
	mu              sync.RWMutex
	isScanning      bool
	current         int
	total           int
	currentFile     string
	completed       bool
	err             error
	runID           int64
	progressClients []chan ProgressEvent
}

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	Type string      `json:"type"` // "progress", "complete", "error"
	Data interface{} `json:"data"`
}

func newScanProgress() *ScanProgress {
	return &ScanProgress{
		progressClients: make([]chan ProgressEvent, 0),
	}
}

// Running reports whether a scan is in progress
func (sp *ScanProgress) Running() bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.isScanning
}

// Last returns the outcome of the most recent finished scan: the stored run ID
// or the error that stopped it. Both are zero before the first scan ends.
func (sp *ScanProgress) Last() (int64, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	if !sp.completed {
		return 0, nil
	}
	return sp.runID, sp.err
}

// ScanPage displays the scan page
func (h *Handlers) ScanPage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn("Error getting stats", zap.Error(err))
		stats = &db.Stats{} // Use empty stats on error
	}

	lastRun := "Never"
	if !stats.LastRun.IsZero() {
		lastRun = stats.LastRun.Local().Format("Jan 2, 2006 3:04 PM")
	}

	lastRunID, lastErr := h.scan.Last()
	lastError := ""
	if lastErr != nil {
		lastError = lastErr.Error()
	}

	data := map[string]interface{}{
		"PageTitle":  "Clean folder - EML Cleaner",
		"LastRunID":  lastRunID,
		"LastError":  lastError,
		"InputPath":  h.cfg.InputPath,
		"OutputPath": h.cfg.OutputPath,
		"Mode":       string(h.cfg.CleanMode()),
		"Scanning":   h.scan.Running(),
		"Stats": map[string]interface{}{
			"TotalRuns":    stats.TotalRuns,
			"TotalFiles":   stats.TotalFiles,
			"ChangedFiles": stats.ChangedFiles,
			"LastRun":      lastRun,
		},
	}

	h.render(w, "scan.html", data)
}

// Scan cleans the configured input directory into the output directory in
// the background and stores the result as a run
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	sp := h.scan

	sp.mu.Lock()
	if sp.isScanning {
		sp.mu.Unlock()
		http.Error(w, "Scan already in progress", http.StatusConflict)
		return
	}

	// Reset progress state
	sp.isScanning = true
	sp.current = 0
	sp.total = 0
	sp.currentFile = ""
	sp.completed = false
	sp.err = nil
	sp.runID = 0
	sp.mu.Unlock()

	mode := h.cfg.CleanMode()

	// Run scan in background
	go func() {
		defer func() {
			sp.mu.Lock()
			sp.isScanning = false
			sp.completed = true
			sp.mu.Unlock()
		}()

		// Announce the total before the first file finishes
		if total, err := scanner.NewScanner(h.cfg.InputPath).CountFiles(); err == nil {
			sp.mu.Lock()
			sp.total = total
			sp.mu.Unlock()
			sp.broadcastProgress()
		}

		summary, err := h.newBatch(mode).CleanDir(h.cfg.InputPath, h.cfg.OutputPath, func(current, total int, name string) {
			sp.mu.Lock()
			sp.current = current
			sp.total = total
			sp.currentFile = name
			sp.mu.Unlock()

			// Broadcast to all SSE clients
			sp.broadcastProgress()
		})
		if err != nil {
			h.log.Error("Scan failed", zap.String("path", h.cfg.InputPath), zap.Error(err))
			sp.fail(err)
			return
		}

		runID, err := h.saveRun(db.SourceScan, mode, summary.Results)
		if err != nil {
			h.log.Error("Failed to save scan run", zap.Error(err))
			sp.fail(err)
			return
		}

		sp.mu.Lock()
		sp.runID = runID
		sp.mu.Unlock()

		sp.broadcastComplete(summary, runID)
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "Scan started")
}

// ScanProgressSSE handles Server-Sent Events for scan progress
func (h *Handlers) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	sp := h.scan

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Create a channel for this client
	clientChan := make(chan ProgressEvent, 10)

	// Register client
	sp.mu.Lock()
	sp.progressClients = append(sp.progressClients, clientChan)

	// Send initial state if scan is in progress
	if sp.isScanning {
		h.sendSSE(w, flusher, "progress", sp.progressData())
	}
	sp.mu.Unlock()

	// Listen for updates or client disconnect
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			sp.removeClient(clientChan)
			return

		case event := <-clientChan:
			h.sendSSE(w, flusher, event.Type, event.Data)

			// Close connection after complete or error
			if event.Type == "complete" || event.Type == "error" {
				sp.removeClient(clientChan)
				return
			}
		}
	}
}

func (sp *ScanProgress) removeClient(clientChan chan ProgressEvent) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, ch := range sp.progressClients {
		if ch == clientChan {
			sp.progressClients = append(sp.progressClients[:i], sp.progressClients[i+1:]...)
			break
		}
	}
}

// progressData must be called with the lock held
func (sp *ScanProgress) progressData() map[string]interface{} {
	return map[string]interface{}{
		"current": sp.current,
		"total":   sp.total,
		"file":    sp.currentFile,
	}
}

// broadcastProgress sends progress update to all connected clients
func (sp *ScanProgress) broadcastProgress() {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	sp.broadcast(ProgressEvent{Type: "progress", Data: sp.progressData()})
}

// broadcastComplete sends completion event to all connected clients
func (sp *ScanProgress) broadcastComplete(summary *batch.Summary, runID int64) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	sp.broadcast(ProgressEvent{
		Type: "complete",
		Data: map[string]interface{}{
			"found":     summary.TotalFound,
			"changed":   summary.Changed,
			"unchanged": summary.Unchanged,
			"failed":    summary.Failed,
			"run":       runID,
		},
	})
}

// fail records err and sends an error event to all connected clients
func (sp *ScanProgress) fail(err error) {
	sp.mu.Lock()
	sp.err = err
	sp.mu.Unlock()

	sp.mu.RLock()
	defer sp.mu.RUnlock()
	sp.broadcast(ProgressEvent{
		Type: "error",
		Data: map[string]interface{}{"error": err.Error()},
	})
}

// broadcast must be called with at least the read lock held
func (sp *ScanProgress) broadcast(event ProgressEvent) {
	for _, client := range sp.progressClients {
		select {
		case client <- event:
		default:
			// Client channel full, skip
		}
	}
}

// sendSSE sends an SSE message to the client
func (h *Handlers) sendSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.log.Error("Error marshaling SSE data", zap.Error(err))
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
