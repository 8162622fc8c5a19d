package epub

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/stumpapp/stump/pkg/htmlutil"
	"github.com/stumpapp/stump/pkg/mediafile"
)

// Package is the OPF package document.
type Package struct {
	XMLName          xml.Name `xml:"package"`
	Text             string   `xml:",chardata"`
	Xmlns            string   `xml:"xmlns,attr"`
	Version          string   `xml:"version,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`
	Metadata         struct {
		Text    string `xml:",chardata"`
		Opf     string `xml:"opf,attr"`
		Dc      string `xml:"dc,attr"`
		Dcterms string `xml:"dcterms,attr"`
		Xsi     string `xml:"xsi,attr"`
		Calibre string `xml:"calibre,attr"`
		Title   []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"title"`
		Creator []struct {
			Text   string `xml:",chardata"`
			ID     string `xml:"id,attr"`
			Role   string `xml:"role,attr"`
			FileAs string `xml:"file-as,attr"`
		} `xml:"creator"`
		Contributor struct {
			Text string `xml:",chardata"`
			Role string `xml:"role,attr"`
		} `xml:"contributor"`
		Description string   `xml:"description"`
		Publisher   string   `xml:"publisher"`
		Subject     []string `xml:"subject"`
		Identifier  []struct {
			Text   string `xml:",chardata"`
			ID     string `xml:"id,attr"`
			Scheme string `xml:"scheme,attr"`
		} `xml:"identifier"`
		Date     string `xml:"date"`
		Rights   string `xml:"rights"`
		Language string `xml:"language"`
		Meta     []struct {
			Text     string `xml:",chardata"`
			ID       string `xml:"id,attr"`
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Refines  string `xml:"refines,attr"`
			Property string `xml:"property,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Text string         `xml:",chardata"`
		Item []ManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Text    string `xml:",chardata"`
		Toc     string `xml:"toc,attr"`
		Itemref []struct {
			Text  string `xml:",chardata"`
			Idref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
	Guide struct {
		Text      string `xml:",chardata"`
		Reference []struct {
			Text  string `xml:",chardata"`
			Type  string `xml:"type,attr"`
			Href  string `xml:"href,attr"`
			Title string `xml:"title,attr"`
		} `xml:"reference"`
	} `xml:"guide"`
}

// ManifestItem is a single manifest entry.
type ManifestItem struct {
	Text       string `xml:",chardata"`
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// metaContentByName returns the content of an EPUB 2 style <meta name=...>
// element.
func (pkg *Package) metaContentByName(name string) string {
	for _, m := range pkg.Metadata.Meta {
		if m.Refines == "" && m.Name == name {
			return m.Content
		}
	}
	return ""
}

// metaProperties groups refining meta elements by the id they refine, so
// title-type, role, and group-position lookups are cheap.
func (pkg *Package) metaProperties() map[string]map[string]string {
	props := map[string]map[string]string{}
	for _, m := range pkg.Metadata.Meta {
		if m.Refines == "" {
			continue
		}
		key := strings.ReplaceAll(m.Refines, "#", "")
		if _, ok := props[key]; !ok {
			props[key] = map[string]string{}
		}
		props[key][m.Property] = m.Text
	}
	return props
}

func (pkg *Package) toMetadata() *mediafile.Metadata {
	props := pkg.metaProperties()

	// Parse out the main title of the book.
	title := ""
	if len(pkg.Metadata.Title) == 1 {
		title = pkg.Metadata.Title[0].Text
	} else if len(pkg.Metadata.Title) > 1 {
		for _, t := range pkg.Metadata.Title {
			if t.ID != "" && props[t.ID] != nil && props[t.ID]["title-type"] == "main" {
				title = t.Text
				break
			}
		}
	}

	var authors []string
	for _, creator := range pkg.Metadata.Creator {
		role := creator.Role
		if role == "" && creator.ID != "" && props[creator.ID] != nil {
			role = props[creator.ID]["role"]
		}
		if role == "aut" || len(pkg.Metadata.Creator) == 1 {
			authors = append(authors, creator.Text)
		}
	}

	series, number := pkg.seriesInfo(props)

	meta := &mediafile.Metadata{
		Title:     mediafile.OptionalString(title),
		Series:    mediafile.OptionalString(series),
		Number:    number,
		Writers:   mediafile.JoinNames(authors),
		Publisher: mediafile.OptionalString(pkg.Metadata.Publisher),
		Summary:   mediafile.OptionalString(htmlutil.StripTags(pkg.Metadata.Description)),
		Genre:     mediafile.JoinNames(pkg.Metadata.Subject),
	}
	meta.Year, meta.Month, meta.Day = parseDate(pkg.Metadata.Date)
	return meta
}

// seriesInfo pulls series name and position: EPUB 3 belongs-to-collection
// first, then the calibre meta tags.
func (pkg *Package) seriesInfo(props map[string]map[string]string) (string, *float64) {
	for _, m := range pkg.Metadata.Meta {
		if m.Refines != "" || m.Property != "belongs-to-collection" {
			continue
		}
		var number *float64
		if m.ID != "" && props[m.ID] != nil {
			if pos := props[m.ID]["group-position"]; pos != "" {
				if num, err := strconv.ParseFloat(pos, 64); err == nil {
					number = &num
				}
			}
		}
		return m.Text, number
	}

	series := pkg.metaContentByName("calibre:series")
	var number *float64
	if idx := pkg.metaContentByName("calibre:series_index"); idx != "" {
		if num, err := strconv.ParseFloat(idx, 64); err == nil {
			number = &num
		}
	}
	return series, number
}

// parseDate accepts the dc:date shapes seen in the wild: a bare year,
// year-month, a full date, or a full timestamp.
func parseDate(value string) (*int, *int, *int) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil, nil
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			y, m, d := ts.Year(), int(ts.Month()), ts.Day()
			return &y, &m, &d
		}
	}
	if ts, err := time.Parse("2006-01", value); err == nil {
		y, m := ts.Year(), int(ts.Month())
		return &y, &m, nil
	}
	if y, err := strconv.Atoi(value); err == nil && y > 0 {
		return &y, nil, nil
	}
	return nil, nil, nil
}
