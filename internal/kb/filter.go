package kb

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ScanFilter decides which files in the data directory are eligible for
// ingestion. Dotfiles are always skipped; configured patterns are
// matched against both the relative path and the basename.
type ScanFilter struct {
	exclude []string
}

func NewScanFilter(exclude []string) *ScanFilter {
	return &ScanFilter{exclude: exclude}
}

// ShouldIngest reports whether a relative path passes the filter.
func (f *ScanFilter) ShouldIngest(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, part := range strings.Split(relPath, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	base := filepath.Base(relPath)
	for _, pattern := range f.exclude {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return false
		}
		if matched, _ := doublestar.Match(pattern, base); matched {
			return false
		}
	}
	return true
}

// ListDocuments walks dataDir and returns the sorted absolute paths of
// every file that passes the filter.
func ListDocuments(dataDir string, filter *ScanFilter) ([]string, error) {
	if filter == nil {
		filter = NewScanFilter(nil)
	}
	var files []string
	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		if filter.ShouldIngest(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dataDir, err)
	}
	sort.Strings(files)
	return files, nil
}
