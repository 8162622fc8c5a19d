package mediafile

import "strings"

// Metadata is the format-independent embedded metadata extracted from a media
// file. Every field is optional; nil means the format did not declare it.
// List-valued fields keep the comma-delimited form the source formats use.
type Metadata struct {
	Title        *string
	Series       *string
	Number       *float64
	Volume       *int
	Summary      *string
	Notes        *string
	Genre        *string
	Writers      *string
	Pencillers   *string
	Inkers       *string
	Colorists    *string
	Letterers    *string
	CoverArtists *string
	Editors      *string
	Publisher    *string
	Links        *string
	Characters   *string
	Teams        *string
	AgeRating    *int
	Year         *int
	Month        *int
	Day          *int
	PageCount    *int
}

// JoinNames joins a list into the comma-delimited form the metadata columns
// use. Blank entries are dropped; an empty list yields nil.
func JoinNames(names []string) *string {
	kept := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	joined := strings.Join(kept, ", ")
	return &joined
}

// OptionalString trims s and returns a pointer to it, or nil when blank.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
