package testgen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// GeneratePDF creates a minimal but structurally valid PDF at the specified
// path: a catalog, a page tree with PageCount empty pages, and an info
// dictionary carrying the title. Offsets in the xref table are computed while
// writing so strict parsers accept the file.
func GeneratePDF(t *testing.T, dir, filename string, opts PDFOptions) string {
	t.Helper()

	pageCount := opts.PageCount
	if pageCount <= 0 {
		pageCount = 1
	}

	// Object numbering: 1 catalog, 2 page tree, 3..2+N pages, 3+N info.
	infoNum := 3 + pageCount

	var buf bytes.Buffer
	offsets := make([]int, 0, infoNum)

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	var kids bytes.Buffer
	for i := 0; i < pageCount; i++ {
		if i > 0 {
			kids.WriteString(" ")
		}
		fmt.Fprintf(&kids, "%d 0 R", 3+i)
	}
	writeObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", kids.String(), pageCount))

	for i := 0; i < pageCount; i++ {
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n", 3+i))
	}

	writeObj(fmt.Sprintf("%d 0 obj\n<< /Title (%s) >>\nendobj\n", infoNum, escapePDFString(opts.Title)))

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", infoNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", infoNum+1, infoNum, xrefOffset)

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("failed to write PDF: %v", err)
	}
	return path
}

func escapePDFString(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
