package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/models"
)

// Spec describes a unit of background work. The fingerprint identifies
// equivalent work so that submitting a spec while an equivalent job is still
// queued or running collapses onto the existing job.
type Spec interface {
	Kind() string
	Fingerprint() string
	Name() string
	Description() string
}

// Enqueuer submits and controls jobs. It is implemented by the worker
// controller; handlers and the scheduler depend on this interface instead of
// the worker package.
type Enqueuer interface {
	Enqueue(ctx context.Context, spec Spec) (*models.Job, error)
	Cancel(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
}

// LibraryScanSpec scans one library tree and synchronizes its series and
// media rows.
type LibraryScanSpec struct {
	LibraryID     string `json:"library_id"`
	VisitStrategy string `json:"visit_strategy,omitempty" tstype:"VisitStrategy"`
}

func (s *LibraryScanSpec) Kind() string { return models.JobKindLibraryScan }

func (s *LibraryScanSpec) Fingerprint() string {
	return models.JobKindLibraryScan + ":" + s.LibraryID
}

func (s *LibraryScanSpec) Name() string { return "Library scan" }

func (s *LibraryScanSpec) Description() string {
	return fmt.Sprintf("Scan library %s for new, changed, and missing files.", s.LibraryID)
}

// SeriesScanSpec scans a single series directory.
type SeriesScanSpec struct {
	SeriesID      string `json:"series_id"`
	VisitStrategy string `json:"visit_strategy,omitempty" tstype:"VisitStrategy"`
}

func (s *SeriesScanSpec) Kind() string { return models.JobKindSeriesScan }

func (s *SeriesScanSpec) Fingerprint() string {
	return models.JobKindSeriesScan + ":" + s.SeriesID
}

func (s *SeriesScanSpec) Name() string { return "Series scan" }

func (s *SeriesScanSpec) Description() string {
	return fmt.Sprintf("Scan series %s for new, changed, and missing files.", s.SeriesID)
}

// ThumbnailGenerationSpec generates thumbnails for a library, a series, or an
// explicit set of media ids. Exactly one target should be set.
type ThumbnailGenerationSpec struct {
	LibraryID string   `json:"library_id,omitempty"`
	SeriesID  string   `json:"series_id,omitempty"`
	MediaIDs  []string `json:"media_ids,omitempty"`
	Force     bool     `json:"force,omitempty"`
}

func (s *ThumbnailGenerationSpec) Kind() string { return models.JobKindThumbnailGeneration }

func (s *ThumbnailGenerationSpec) Fingerprint() string {
	target := s.LibraryID
	if target == "" {
		target = s.SeriesID
	}
	if target == "" {
		target = strings.Join(s.MediaIDs, ",")
	}
	return fmt.Sprintf("%s:%s:force=%t", models.JobKindThumbnailGeneration, target, s.Force)
}

func (s *ThumbnailGenerationSpec) Name() string { return "Thumbnail generation" }

func (s *ThumbnailGenerationSpec) Description() string {
	switch {
	case s.LibraryID != "":
		return fmt.Sprintf("Generate thumbnails for library %s.", s.LibraryID)
	case s.SeriesID != "":
		return fmt.Sprintf("Generate thumbnails for series %s.", s.SeriesID)
	default:
		return fmt.Sprintf("Generate thumbnails for %d media.", len(s.MediaIDs))
	}
}

// AnalyzeMediaSpec measures page dimensions for one media file or for every
// media file in a library.
type AnalyzeMediaSpec struct {
	MediaID   string `json:"media_id,omitempty"`
	LibraryID string `json:"library_id,omitempty"`
}

func (s *AnalyzeMediaSpec) Kind() string { return models.JobKindAnalyzeMedia }

func (s *AnalyzeMediaSpec) Fingerprint() string {
	target := s.MediaID
	if target == "" {
		target = s.LibraryID
	}
	return models.JobKindAnalyzeMedia + ":" + target
}

func (s *AnalyzeMediaSpec) Name() string { return "Analyze media" }

func (s *AnalyzeMediaSpec) Description() string {
	if s.MediaID != "" {
		return fmt.Sprintf("Measure page dimensions for media %s.", s.MediaID)
	}
	return fmt.Sprintf("Measure page dimensions for library %s.", s.LibraryID)
}

// UnmarshalSpec parses serialized spec params for the given job kind. Params
// may be empty, in which case the zero spec is returned.
func UnmarshalSpec(kind string, params []byte) (Spec, error) {
	var spec Spec
	switch kind {
	case models.JobKindLibraryScan:
		spec = &LibraryScanSpec{}
	case models.JobKindSeriesScan:
		spec = &SeriesScanSpec{}
	case models.JobKindThumbnailGeneration:
		spec = &ThumbnailGenerationSpec{}
	case models.JobKindAnalyzeMedia:
		spec = &AnalyzeMediaSpec{}
	default:
		return nil, errors.Errorf("unknown job kind %q", kind)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, spec); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return spec, nil
}
