package media

type ListMediaQuery struct {
	Limit     int      `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=100"`
	Offset    int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	SeriesID  *string  `query:"series_id" json:"series_id,omitempty" tstype:"string"`
	LibraryID *string  `query:"library_id" json:"library_id,omitempty" tstype:"string"`
	Status    []string `query:"status" json:"status,omitempty" validate:"dive,oneof=READY MISSING ERROR"`
}
