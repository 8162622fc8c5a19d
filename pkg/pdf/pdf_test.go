package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stumpapp/stump/internal/testgen"
	"github.com/stumpapp/stump/pkg/mediafile"
)

func TestPageCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testgen.TempDir(t, "pdf-test-*")
	p := New(Options{})

	path := testgen.GeneratePDF(t, dir, "doc.pdf", testgen.PDFOptions{
		Title:     "Test Document",
		PageCount: 4,
	})
	count, err := p.PageCount(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestPageCountMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testgen.TempDir(t, "pdf-test-*")
	p := New(Options{})

	_, err := p.PageCount(ctx, filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
	assert.True(t, mediafile.IsKind(err, mediafile.ErrorKindIO))
}

func TestPageCountCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testgen.TempDir(t, "pdf-test-*")
	p := New(Options{})

	path := filepath.Join(dir, "junk.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 except not really"), 0o644))

	_, err := p.PageCount(ctx, path)
	require.Error(t, err)
	assert.True(t, mediafile.IsKind(err, mediafile.ErrorKindCorrupt))
}

func TestPageRenderingDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testgen.TempDir(t, "pdf-test-*")
	p := New(Options{RenderingEnabled: false})

	path := testgen.GeneratePDF(t, dir, "doc.pdf", testgen.PDFOptions{PageCount: 2})

	_, _, err := p.Page(ctx, path, 1)
	require.Error(t, err)
	assert.True(t, mediafile.IsKind(err, mediafile.ErrorKindUnsupported))

	_, _, err = p.Cover(ctx, path)
	require.Error(t, err)
	assert.True(t, mediafile.IsKind(err, mediafile.ErrorKindUnsupported))
}

func TestReadMetadataRenderingDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testgen.TempDir(t, "pdf-test-*")
	p := New(Options{RenderingEnabled: false})

	path := testgen.GeneratePDF(t, dir, "doc.pdf", testgen.PDFOptions{Title: "Untouched"})

	meta, err := p.ReadMetadata(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testgen.TempDir(t, "pdf-test-*")
	p := New(Options{})

	a := testgen.GeneratePDF(t, dir, "a.pdf", testgen.PDFOptions{Title: "Alpha", PageCount: 1})
	b := testgen.GeneratePDF(t, dir, "b.pdf", testgen.PDFOptions{Title: "Beta", PageCount: 1})

	hashA1, err := p.Hash(ctx, a)
	require.NoError(t, err)
	hashA2, err := p.Hash(ctx, a)
	require.NoError(t, err)
	hashB, err := p.Hash(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, hashA1, hashA2)
	assert.NotEqual(t, hashA1, hashB)
}

func TestCloseWithoutUse(t *testing.T) {
	t.Parallel()
	p := New(Options{RenderingEnabled: true})
	assert.NoError(t, p.Close())
}

func TestParseCreationDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		year  int
		month int
		day   int
	}{
		{name: "full timestamp", input: "D:20240215120000Z", year: 2024, month: 2, day: 15},
		{name: "with offset", input: "D:19960301093000+02'00'", year: 1996, month: 3, day: 1},
		{name: "date only", input: "D:20111105", year: 2011, month: 11, day: 5},
		{name: "no prefix", input: "20240215", year: 2024, month: 2, day: 15},
		{name: "year and month", input: "D:202406", year: 2024, month: 6},
		{name: "year only", input: "D:2024", year: 2024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			year, month, day := parseCreationDate(tt.input)
			require.NotNil(t, year)
			assert.Equal(t, tt.year, *year)
			if tt.month == 0 {
				assert.Nil(t, month)
			} else {
				require.NotNil(t, month)
				assert.Equal(t, tt.month, *month)
			}
			if tt.day == 0 {
				assert.Nil(t, day)
			} else {
				require.NotNil(t, day)
				assert.Equal(t, tt.day, *day)
			}
		})
	}

	for _, input := range []string{"", "D:", "garbage", "D:00ab"} {
		year, month, day := parseCreationDate(input)
		assert.Nil(t, year, "input %q", input)
		assert.Nil(t, month, "input %q", input)
		assert.Nil(t, day, "input %q", input)
	}
}
