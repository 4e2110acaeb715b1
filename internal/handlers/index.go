package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/cleaner"
	"github.com/subh7987/hyper-link-remover/internal/db"
)

// recentRuns is how many runs the home page lists
const recentRuns = 20

// Index handles the home page: upload form and recent runs
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error("Failed to get stats", zap.Error(err))
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}

	runs, err := h.db.ListRuns(recentRuns, 0)
	if err != nil {
		h.log.Error("Failed to list runs", zap.Error(err))
		http.Error(w, "Failed to load runs", http.StatusInternalServerError)
		return
	}

	// Preselect the last mode used
	mode := h.cfg.CleanMode()
	if last, err := h.db.LastMode(); err == nil && last != "" {
		if m, err := cleaner.ParseMode(last); err == nil {
			mode = m
		}
	}

	data := map[string]interface{}{
		"PageTitle": "EML Cleaner",
		"Stats":     stats,
		"Runs":      runs,
		"Mode":      string(mode),
		"MaxUpload": h.cfg.MaxUploadMB,
	}
	if runs == nil {
		data["Runs"] = []*db.Run{}
	}

	h.render(w, "index.html", data)
}
