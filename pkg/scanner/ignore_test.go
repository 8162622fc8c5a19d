package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]string{
		"# skip working files",
		"",
		"*.tmp",
		"drafts/**",
		"  !drafts/keep.cbz",
	})
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "*.tmp", rules[0].Pattern)
	assert.False(t, rules[0].Negate)
	assert.Equal(t, "drafts/keep.cbz", rules[2].Pattern)
	assert.True(t, rules[2].Negate)
}

func TestParseRules_InvalidGlob(t *testing.T) {
	_, err := ParseRules([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestValidateRules(t *testing.T) {
	assert.NoError(t, ValidateRules([]string{"*.tmp", "!keep/**"}))
	assert.Error(t, ValidateRules([]string{"[bad"}))
	assert.NoError(t, ValidateRules(nil))
}

func TestIgnoreMatcher(t *testing.T) {
	dir := t.TempDir()
	m, err := NewIgnoreMatcher(dir, []string{"*.tmp", "scratch/**"})
	require.NoError(t, err)

	assert.True(t, m.Ignored(filepath.Join(dir, "notes.tmp")))
	assert.True(t, m.Ignored(filepath.Join(dir, "scratch", "wip.cbz")))
	assert.False(t, m.Ignored(filepath.Join(dir, "Series A", "001.cbz")))

	// Outside the library tree nothing matches.
	assert.False(t, m.Ignored("/elsewhere/notes.tmp"))
}

func TestIgnoreMatcher_RootFile(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte("# generated\n*.bak\n"), 0o644)
	require.NoError(t, err)

	m, err := NewIgnoreMatcher(dir, nil)
	require.NoError(t, err)

	assert.True(t, m.Ignored(filepath.Join(dir, "old.bak")))
	assert.False(t, m.Ignored(filepath.Join(dir, "new.cbz")))
}

func TestIgnoreMatcher_LastMatchWins(t *testing.T) {
	dir := t.TempDir()
	seriesDir := filepath.Join(dir, "Series A")
	require.NoError(t, os.MkdirAll(seriesDir, 0o755))
	err := os.WriteFile(filepath.Join(seriesDir, IgnoreFileName), []byte("!keep.tmp\n"), 0o644)
	require.NoError(t, err)

	m, err := NewIgnoreMatcher(dir, []string{"**/*.tmp"})
	require.NoError(t, err)
	require.NoError(t, m.AddFile(filepath.Join(seriesDir, IgnoreFileName)))

	// The deeper file re-includes one name; siblings stay ignored.
	assert.False(t, m.Ignored(filepath.Join(seriesDir, "keep.tmp")))
	assert.True(t, m.Ignored(filepath.Join(seriesDir, "drop.tmp")))
	assert.True(t, m.Ignored(filepath.Join(dir, "root.tmp")))
}

func TestIgnoreMatcher_MissingFileIsFine(t *testing.T) {
	dir := t.TempDir()
	m, err := NewIgnoreMatcher(dir, nil)
	require.NoError(t, err)
	require.NoError(t, m.AddFile(filepath.Join(dir, "nope", IgnoreFileName)))
	assert.False(t, m.Ignored(filepath.Join(dir, "anything.cbz")))
}

func TestIgnoreMatcher_InvalidLibraryRule(t *testing.T) {
	dir := t.TempDir()
	_, err := NewIgnoreMatcher(dir, []string{"[bad"})
	assert.Error(t, err)
}
