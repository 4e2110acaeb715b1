package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Kind tells single messages apart from mailboxes
type Kind int

const (
	KindUnknown Kind = iota
	KindEML
	KindMbox
)

// KindOf classifies a file by extension
func KindOf(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".eml":
		return KindEML
	case ".mbox":
		return KindMbox
	}
	return KindUnknown
}

// Scanner scans directories for .eml and .mbox files
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Scan recursively scans for mail files and returns paths relative to rootPath,
// with forward slashes, in lexical order
func (s *Scanner) Scan() ([]string, error) {
	var files []string

	// Get absolute path of root for reliable relative path calculation
	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if d.IsDir() || KindOf(path) == KindUnknown {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		// Normalize to forward slashes for cross-platform compatibility
		files = append(files, filepath.ToSlash(relPath))

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return files, nil
}

// CountFiles counts the mail files below the root
func (s *Scanner) CountFiles() (int, error) {
	files, err := s.Scan()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}
