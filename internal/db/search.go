package db

import (
	"fmt"
	"strings"
	"unicode"
)

// RunFileSearchResult represents a search result with snippet
type RunFileSearchResult struct {
	RunFile
	Snippet string
}

// SearchRunFiles performs a full-text search over filenames, reasons and
// previews of all runs. An empty query lists the most recent files.
func (db *DB) SearchRunFiles(query string, limit int) ([]*RunFileSearchResult, error) {
	ftsQuery := buildMatchQuery(query)

	var (
		sqlQuery string
		args     []interface{}
	)
	if ftsQuery == "" {
		sqlQuery = `
			SELECT f.id, f.run_id, f.filename, f.changed, f.reason, f.outcome, f.failed,
			       f.messages, f.preview, NULL, f.size, '' as snippet
			FROM run_files f
			ORDER BY f.id DESC
			LIMIT ?
		`
		args = []interface{}{limit}
	} else {
		sqlQuery = `
			SELECT f.id, f.run_id, f.filename, f.changed, f.reason, f.outcome, f.failed,
			       f.messages, f.preview, NULL, f.size,
			       snippet(run_files_fts, 2, '<mark>', '</mark>', '...', 32) as snippet
			FROM run_files f
			JOIN run_files_fts ON f.id = run_files_fts.rowid
			WHERE run_files_fts MATCH ?
			ORDER BY rank
			LIMIT ?
		`
		args = []interface{}{ftsQuery, limit}
	}

	rows, err := db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search run files: %w", err)
	}
	defer rows.Close()

	var results []*RunFileSearchResult
	for rows.Next() {
		result := &RunFileSearchResult{}
		err := rows.Scan(
			&result.ID, &result.RunID, &result.Filename, &result.Changed, &result.Reason, &result.Outcome, &result.Failed,
			&result.Messages, &result.Preview, &result.Output, &result.Size,
			&result.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		// Snippet only covers preview matches
		if result.Snippet == "" || !strings.Contains(result.Snippet, "<mark>") {
			result.Snippet = truncateText(result.Preview, 200)
		}

		results = append(results, result)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// buildMatchQuery turns user input into an FTS5 prefix query:
// `links removed` -> `"links"* "removed"*`
func buildMatchQuery(query string) string {
	terms := strings.Fields(query)
	fuzzyTerms := make([]string, 0, len(terms))
	for _, term := range terms {
		if !strings.ContainsFunc(term, isWordRune) {
			continue
		}
		// Quote terms so FTS5 operators in user input are taken literally
		term = strings.ReplaceAll(term, `"`, `""`)
		fuzzyTerms = append(fuzzyTerms, `"`+term+`"*`)
	}
	return strings.Join(fuzzyTerms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// truncateText truncates text to maxLen runes
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
