// Package testgen provides utilities for generating test files (CBZ, EPUB,
// PDF) and library directory trees with configurable metadata for testing the
// scanner and job worker.
package testgen

import (
	"os"
	"path/filepath"
	"testing"
)

// CBZOptions configures the generated CBZ file.
type CBZOptions struct {
	Title          string
	Series         string
	Number         *float64
	Volume         *int
	Summary        string
	Writer         string
	Penciller      string
	AgeRating      string // free-form, e.g. "Teen" or "12 and up"
	Year           int
	PageCount      int    // defaults to 3
	NoPages        bool   // write zero page images (overrides PageCount)
	HasComicInfo   bool   // whether to include ComicInfo.xml
	CoverPageType  string // "FrontCover", "InnerCover", or "" (none specified)
	CoverPageIndex int    // 0-based index the cover page type is attached to
	ImageFormat    string // "png" or "jpeg", defaults to "png"
	HiddenEntries  bool   // include dotfile and __MACOSX entries that must be skipped
}

// EPUBOptions configures the generated EPUB file.
type EPUBOptions struct {
	Title         string
	Authors       []string
	Publisher     string
	Description   string // may contain HTML tags
	Subjects      []string
	Series        string
	SeriesNumber  *float64
	Date          string // dc:date value, e.g. "2019-07-01"
	ChapterCount  int    // spine length, defaults to 1
	HasCover      bool
	CoverMimeType string // "image/jpeg" or "image/png", defaults to "image/png"
}

// PDFOptions configures the generated PDF file.
type PDFOptions struct {
	Title     string
	PageCount int // defaults to 1
}

// TempDir creates a temporary directory for testing and registers cleanup.
// The directory is automatically removed when the test completes.
func TempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// TempLibraryDir creates a temporary library directory structure for testing.
// Returns the library path that should be used when creating a library.
func TempLibraryDir(t *testing.T) string {
	t.Helper()
	return TempDir(t, "testgen-library-*")
}

// CreateSubDir creates a subdirectory within the given parent directory.
// Returns the full path to the created subdirectory.
func CreateSubDir(t *testing.T, parent, name string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory %s: %v", dir, err)
	}
	return dir
}

// WriteFile creates a file with the given content in the specified directory.
// Returns the full path to the created file.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile reads and returns the contents of a file.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return data
}

// StringPtr is a helper to create a pointer to a string.
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr is a helper to create a pointer to a float64.
func Float64Ptr(f float64) *float64 {
	return &f
}

// IntPtr is a helper to create a pointer to an int.
func IntPtr(i int) *int {
	return &i
}
