package testgen

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// GenerateCBZ creates a valid CBZ file at the specified path with the given
// options. The generated CBZ contains:
// - ComicInfo.xml (if HasComicInfo is true)
// - Page images (000.png, 001.png, etc.)
func GenerateCBZ(t *testing.T, dir, filename string, opts CBZOptions) string {
	t.Helper()

	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create CBZ file: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	// Set defaults
	pageCount := opts.PageCount
	if pageCount <= 0 {
		pageCount = 3
	}
	if opts.NoPages {
		pageCount = 0
	}
	imageFormat := opts.ImageFormat
	if imageFormat == "" {
		imageFormat = "png"
	}

	// 1. Add ComicInfo.xml if requested
	if opts.HasComicInfo {
		comicInfo := generateComicInfo(opts, pageCount)
		if err := writeZipFile(zw, "ComicInfo.xml", []byte(comicInfo)); err != nil {
			t.Fatalf("failed to write ComicInfo.xml: %v", err)
		}
	}

	// 2. Generate page images
	mimeType := "image/png"
	ext := "png"
	if imageFormat == "jpeg" || imageFormat == "jpg" {
		mimeType = "image/jpeg"
		ext = "jpg"
	}

	for i := 0; i < pageCount; i++ {
		imgData := generateImage(t, mimeType)
		imgName := fmt.Sprintf("%03d.%s", i, ext)
		if err := writeZipFile(zw, imgName, imgData); err != nil {
			t.Fatalf("failed to write page %s: %v", imgName, err)
		}
	}

	// 3. Optionally add entries the processor must ignore.
	if opts.HiddenEntries {
		if err := writeZipFile(zw, ".DS_Store", []byte("junk")); err != nil {
			t.Fatalf("failed to write hidden entry: %v", err)
		}
		if err := writeZipFile(zw, "__MACOSX/000."+ext, []byte("resource fork")); err != nil {
			t.Fatalf("failed to write __MACOSX entry: %v", err)
		}
	}

	return path
}

// GenerateCorruptCBZ writes a file with a CBZ extension whose contents are not
// a valid zip archive.
func GenerateCorruptCBZ(t *testing.T, dir, filename string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	// A plausible-length blob with no zip signature anywhere.
	data := bytes.Repeat([]byte("this is not a zip archive\n"), 64)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write corrupt CBZ: %v", err)
	}
	return path
}

func generateComicInfo(opts CBZOptions, pageCount int) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ComicInfo>
`)

	if opts.Title != "" {
		buf.WriteString(fmt.Sprintf("  <Title>%s</Title>\n", escapeXML(opts.Title)))
	}
	if opts.Series != "" {
		buf.WriteString(fmt.Sprintf("  <Series>%s</Series>\n", escapeXML(opts.Series)))
	}
	if opts.Number != nil {
		// Format as integer if it's a whole number
		if *opts.Number == float64(int(*opts.Number)) {
			buf.WriteString(fmt.Sprintf("  <Number>%d</Number>\n", int(*opts.Number)))
		} else {
			buf.WriteString(fmt.Sprintf("  <Number>%.1f</Number>\n", *opts.Number))
		}
	}
	if opts.Volume != nil {
		buf.WriteString(fmt.Sprintf("  <Volume>%d</Volume>\n", *opts.Volume))
	}
	if opts.Summary != "" {
		buf.WriteString(fmt.Sprintf("  <Summary>%s</Summary>\n", escapeXML(opts.Summary)))
	}
	if opts.Writer != "" {
		buf.WriteString(fmt.Sprintf("  <Writer>%s</Writer>\n", escapeXML(opts.Writer)))
	}
	if opts.Penciller != "" {
		buf.WriteString(fmt.Sprintf("  <Penciller>%s</Penciller>\n", escapeXML(opts.Penciller)))
	}
	if opts.AgeRating != "" {
		buf.WriteString(fmt.Sprintf("  <AgeRating>%s</AgeRating>\n", escapeXML(opts.AgeRating)))
	}
	if opts.Year > 0 {
		buf.WriteString(fmt.Sprintf("  <Year>%d</Year>\n", opts.Year))
	}

	buf.WriteString(fmt.Sprintf("  <PageCount>%d</PageCount>\n", pageCount))

	// Add page info if cover page type is specified
	if opts.CoverPageType != "" {
		buf.WriteString("  <Pages>\n")
		for i := 0; i < pageCount; i++ {
			pageType := ""
			if i == opts.CoverPageIndex {
				pageType = fmt.Sprintf(" Type=%q", opts.CoverPageType)
			}
			buf.WriteString(fmt.Sprintf("    <Page Image=\"%d\"%s/>\n", i, pageType))
		}
		buf.WriteString("  </Pages>\n")
	}

	buf.WriteString("</ComicInfo>")

	return buf.String()
}
