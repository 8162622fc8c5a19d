package series

type ListSeriesQuery struct {
	Limit     int      `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset    int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	LibraryID *string  `query:"library_id" json:"library_id,omitempty" tstype:"string"`
	Status    []string `query:"status" json:"status,omitempty" validate:"dive,oneof=READY MISSING ERROR"`
}

type ScanSeriesPayload struct {
	VisitStrategy string `json:"visit_strategy,omitempty" validate:"omitempty,oneof=DEFAULT REGEN_META REGEN_HASHES" tstype:"VisitStrategy"`
}
