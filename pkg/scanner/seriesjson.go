package scanner

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
)

// SeriesMetadataFilename is the optional metadata file in a series directory.
const SeriesMetadataFilename = "series.json"

// SeriesMetadata is the schema of a series.json file. Every field is
// optional and unknown fields are ignored.
type SeriesMetadata struct {
	Type        *string    `json:"type,omitempty"`
	Name        *string    `json:"name,omitempty"`
	SortName    *string    `json:"sort_name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Publisher   *string    `json:"publisher,omitempty"`
	Imprint     *string    `json:"imprint,omitempty"`
	AgeRating   *AgeRating `json:"age_rating,omitempty" tstype:"number | string"`
	Status      *string    `json:"status,omitempty"`
}

// AgeRating accepts either a number or a free-form rating phrase ("Teen",
// "Mature 17+"). Phrases normalize to a minimum age; unrecognized ones parse
// to nil without failing the file.
type AgeRating struct {
	Age *int
}

func (r *AgeRating) UnmarshalJSON(data []byte) error {
	var age int
	if err := json.Unmarshal(data, &age); err == nil {
		r.Age = &age
		return nil
	}

	var phrase string
	if err := json.Unmarshal(data, &phrase); err != nil {
		return errors.WithStack(err)
	}
	r.Age = mediafile.ParseAgeRating(phrase)
	return nil
}

func (r *AgeRating) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Age)
}

// ReadSeriesMetadata loads series.json from dir. A missing file returns
// (nil, nil); malformed JSON returns a MetadataParse error so the caller can
// record it without failing the scan.
func ReadSeriesMetadata(dir string) (*SeriesMetadata, error) {
	path := filepath.Join(dir, SeriesMetadataFilename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, mediafile.IOError(path, err)
	}

	meta := &SeriesMetadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, mediafile.MetadataParse(path, err)
	}

	return meta, nil
}

// Apply copies the metadata onto a series row. The name override only applies
// when non-blank; path stays the identity.
func (m *SeriesMetadata) Apply(series *models.Series) {
	if m.Name != nil && *m.Name != "" {
		series.Name = *m.Name
	}
	series.MetaType = m.Type
	if m.SortName != nil {
		series.SortName = m.SortName
	}
	series.Description = m.Description
	series.Publisher = m.Publisher
	series.Imprint = m.Imprint
	if m.AgeRating != nil {
		series.AgeRating = m.AgeRating.Age
	} else {
		series.AgeRating = nil
	}
	series.MetaStatus = m.Status
}

// SeriesMetadataColumns are the series columns Apply touches, for targeted
// updates on metadata revisits.
var SeriesMetadataColumns = []string{
	"name", "meta_type", "sort_name", "description", "publisher", "imprint",
	"age_rating", "meta_status",
}
