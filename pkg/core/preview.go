package core

// ColumnHeader describes one column of a preview page.
type ColumnHeader struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	SourceType string `json:"source_type"`
}

// PreviewPage is one page of rows read from an assembled cube view.
type PreviewPage struct {
	RevisionID string         `json:"revision_id"`
	Locale     Locale         `json:"locale"`
	PageNumber int            `json:"page_number"`
	PageSize   int            `json:"page_size"`
	TotalRows  int            `json:"total_rows"`
	TotalPages int            `json:"total_pages"`
	Headers    []ColumnHeader `json:"headers"`
	Rows       [][]string     `json:"rows"`
}
