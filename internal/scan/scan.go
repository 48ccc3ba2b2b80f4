// Package scan discovers RAW files on disk for the browse API and for
// expanding directory paths in run requests.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gwlsn/rawray/internal/raw"
)

// Entry represents a file or directory visible to the browser.
type Entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	RawCount int       `json:"raw_count,omitempty"` // For directories: RAW files underneath
}

// Result contains one directory listing.
type Result struct {
	Path     string   `json:"path"`
	Parent   string   `json:"parent,omitempty"`
	Entries  []*Entry `json:"entries"`
	RawCount int      `json:"raw_count"` // RAW files directly in this directory
}

// Scanner lists directories and finds RAW files under a configured root.
// Paths outside the root are clamped back to it.
type Scanner struct {
	root string
}

// NewScanner creates a Scanner rooted at the given directory.
func NewScanner(root string) *Scanner {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	return &Scanner{root: absRoot}
}

// Root returns the scanner's root directory.
func (s *Scanner) Root() string {
	return s.root
}

// Browse returns the RAW files and subdirectories of one directory.
func (s *Scanner) Browse(ctx context.Context, path string) (*Result, error) {
	cleanPath := s.confine(path)

	dirEntries, err := os.ReadDir(cleanPath)
	if err != nil {
		return nil, err
	}

	result := &Result{Path: cleanPath, Entries: make([]*Entry, 0, len(dirEntries))}
	if cleanPath != s.root {
		result.Parent = filepath.Dir(cleanPath)
	}

	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}

		full := filepath.Join(cleanPath, de.Name())
		if de.IsDir() {
			count, _ := s.countRaw(ctx, full)
			result.Entries = append(result.Entries, &Entry{
				Name:     de.Name(),
				Path:     full,
				IsDir:    true,
				RawCount: count,
			})
			continue
		}

		if !raw.IsRawFile(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		result.Entries = append(result.Entries, &Entry{
			Name:    de.Name(),
			Path:    full,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		result.RawCount++
	}

	// Directories first, then files, both alphabetical
	sort.Slice(result.Entries, func(i, j int) bool {
		a, b := result.Entries[i], result.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})

	return result, nil
}

// FindRawFiles walks a directory tree and returns every RAW file in it,
// sorted. This is what expands a directory path in a run request.
func (s *Scanner) FindRawFiles(ctx context.Context, root string) ([]string, error) {
	root = s.confine(root)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if raw.IsRawFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// countRaw counts RAW files under a directory, recursively.
func (s *Scanner) countRaw(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep counting the rest
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.IsDir() && raw.IsRawFile(path) {
			count++
		}
		return nil
	})
	return count, err
}

// confine resolves a path and forces it under the scanner's root.
func (s *Scanner) confine(path string) string {
	if path == "" {
		return s.root
	}
	clean, err := filepath.Abs(path)
	if err != nil {
		clean = filepath.Clean(path)
	}
	if clean != s.root && !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return s.root
	}
	return clean
}
