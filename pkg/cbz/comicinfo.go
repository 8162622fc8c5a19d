package cbz

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/mediafile"
)

// ComicInfo is the de facto standard metadata document found inside comic
// archives, originally from ComicRack.
type ComicInfo struct {
	XMLName         xml.Name `xml:"ComicInfo"`
	Title           string   `xml:"Title"`
	Series          string   `xml:"Series"`
	Number          string   `xml:"Number"`
	Volume          string   `xml:"Volume"`
	Summary         string   `xml:"Summary"`
	Notes           string   `xml:"Notes"`
	Year            string   `xml:"Year"`
	Month           string   `xml:"Month"`
	Day             string   `xml:"Day"`
	Writer          string   `xml:"Writer"`
	Penciller       string   `xml:"Penciller"`
	Inker           string   `xml:"Inker"`
	Colorist        string   `xml:"Colorist"`
	Letterer        string   `xml:"Letterer"`
	CoverArtist     string   `xml:"CoverArtist"`
	Editor          string   `xml:"Editor"`
	Translator      string   `xml:"Translator"`
	Publisher       string   `xml:"Publisher"`
	Imprint         string   `xml:"Imprint"`
	Genre           string   `xml:"Genre"`
	Tags            string   `xml:"Tags"`
	Web             string   `xml:"Web"`
	Characters      string   `xml:"Characters"`
	Teams           string   `xml:"Teams"`
	Locations       string   `xml:"Locations"`
	StoryArc        string   `xml:"StoryArc"`
	AgeRating       string   `xml:"AgeRating"`
	CommunityRating string   `xml:"CommunityRating"`
	PageCount       string   `xml:"PageCount"`
	LanguageISO     string   `xml:"LanguageISO"`
	Format          string   `xml:"Format"`
	BlackAndWhite   string   `xml:"BlackAndWhite"`
	Manga           string   `xml:"Manga"`
	GTIN            string   `xml:"GTIN"`
	Pages           struct {
		Page []ComicPageInfo `xml:"Page"`
	} `xml:"Pages"`
}

type ComicPageInfo struct {
	Image       string `xml:"Image,attr"`
	Type        string `xml:"Type,attr"`
	DoublePage  string `xml:"DoublePage,attr"`
	ImageSize   string `xml:"ImageSize,attr"`
	ImageWidth  string `xml:"ImageWidth,attr"`
	ImageHeight string `xml:"ImageHeight,attr"`
}

// ParseComicInfo decodes a ComicInfo.xml document.
func ParseComicInfo(data []byte) (*ComicInfo, error) {
	info := &ComicInfo{}
	if err := xml.Unmarshal(data, info); err != nil {
		return nil, errors.WithStack(err)
	}
	return info, nil
}

// CoverPageIndex returns the 0-based image index flagged as the cover.
// FrontCover wins over InnerCover; nil means no page was flagged.
func (info *ComicInfo) CoverPageIndex() *int {
	for _, pageType := range []string{"frontcover", "innercover"} {
		for _, page := range info.Pages.Page {
			if strings.ToLower(page.Type) != pageType {
				continue
			}
			if idx, err := strconv.Atoi(page.Image); err == nil && idx >= 0 {
				return &idx
			}
		}
	}
	return nil
}

// ToMetadata converts the document into the shared metadata shape.
func (info *ComicInfo) ToMetadata() *mediafile.Metadata {
	meta := &mediafile.Metadata{
		Title:        mediafile.OptionalString(info.Title),
		Series:       mediafile.OptionalString(info.Series),
		Summary:      mediafile.OptionalString(info.Summary),
		Notes:        mediafile.OptionalString(info.Notes),
		Genre:        mediafile.JoinNames(splitNames(info.Genre)),
		Writers:      mediafile.JoinNames(splitNames(info.Writer)),
		Pencillers:   mediafile.JoinNames(splitNames(info.Penciller)),
		Inkers:       mediafile.JoinNames(splitNames(info.Inker)),
		Colorists:    mediafile.JoinNames(splitNames(info.Colorist)),
		Letterers:    mediafile.JoinNames(splitNames(info.Letterer)),
		CoverArtists: mediafile.JoinNames(splitNames(info.CoverArtist)),
		Editors:      mediafile.JoinNames(splitNames(info.Editor)),
		Publisher:    mediafile.OptionalString(info.Publisher),
		Links:        mediafile.OptionalString(info.Web),
		Characters:   mediafile.JoinNames(splitNames(info.Characters)),
		Teams:        mediafile.JoinNames(splitNames(info.Teams)),
		AgeRating:    mediafile.ParseAgeRating(info.AgeRating),
	}

	if num, err := strconv.ParseFloat(strings.TrimSpace(info.Number), 64); err == nil {
		meta.Number = &num
	}
	meta.Volume = parseOptionalInt(info.Volume)
	meta.Year = parseOptionalInt(info.Year)
	meta.Month = parseOptionalInt(info.Month)
	meta.Day = parseOptionalInt(info.Day)
	meta.PageCount = parseOptionalInt(info.PageCount)

	return meta
}

func parseOptionalInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}
