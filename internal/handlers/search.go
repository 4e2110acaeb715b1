package handlers

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Search handles search requests over stored run files
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	results, err := h.db.SearchRunFiles(query, 50)
	if err != nil {
		h.log.Error("Search failed", zap.String("query", query), zap.Error(err))
		http.Error(w, fmt.Sprintf("Search failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	// Return HTML fragment for HTMX
	if len(results) == 0 {
		fmt.Fprintf(w, `
			<div class="empty">
				<p>No files found</p>
			</div>`)
		return
	}

	for _, result := range results {
		link := fmt.Sprintf("/runs/%d", result.RunID)
		if !result.Failed {
			link = fmt.Sprintf("/runs/%d/files/%d/preview", result.RunID, result.ID)
		}

		fmt.Fprintf(w, `
			<div class="result">
				<a href="%s">
					<div class="result-head">
						<h3>%s</h3>
						<span class="muted">Run #%d</span>
					</div>
					<p class="reason">%s</p>
					<p class="snippet">%s</p>
				</a>
			</div>`,
			link,
			html.EscapeString(result.Filename),
			result.RunID,
			html.EscapeString(result.Reason),
			highlight(result.Snippet),
		)
	}
}

// highlight escapes a snippet but keeps the <mark> tags added by FTS5
func highlight(snippet string) string {
	escaped := html.EscapeString(snippet)
	escaped = strings.ReplaceAll(escaped, "&lt;mark&gt;", "<mark>")
	return strings.ReplaceAll(escaped, "&lt;/mark&gt;", "</mark>")
}
