package htmlutil

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags are the elements that imply a visual break. Both opening and
// closing tags emit a newline; the duplicates collapse during normalization.
var blockTags = map[string]bool{
	"article":    true,
	"blockquote": true,
	"br":         true,
	"div":        true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
	"li":         true,
	"ol":         true,
	"p":          true,
	"section":    true,
	"table":      true,
	"tr":         true,
	"ul":         true,
}

// skipTags are elements whose text content is never part of the prose.
var skipTags = map[string]bool{
	"script": true,
	"style":  true,
}

// StripTags removes all HTML markup from a string and normalizes whitespace.
// Block-level tags (p, div, br, etc.) become newlines to preserve paragraph
// structure, entities are decoded, and runs of spaces collapse to one.
func StripTags(fragment string) string {
	if fragment == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// EOF, or malformed markup; keep whatever text was collected.
			return normalizeWhitespace(b.String())
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skipTags[tag] {
				skipDepth++
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skipTags[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		}
	}
}

// decodeHTMLEntities decodes named and numeric HTML entities to their
// character equivalents.
func decodeHTMLEntities(s string) string {
	return html.UnescapeString(s)
}

// normalizeWhitespace collapses runs of whitespace within each line to a
// single space and drops blank lines, preserving the newlines that block
// tags introduced.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}
