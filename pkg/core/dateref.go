package core

import "time"

// DatePeriodType is the granularity of a date reference row.
type DatePeriodType string

const (
	PeriodTypeYear        DatePeriodType = "year"
	PeriodTypeQuarter     DatePeriodType = "quarter"
	PeriodTypeMonth       DatePeriodType = "month"
	PeriodTypeSpecificDay DatePeriodType = "specific_day"
)

// DateRefRow is one row of a generated date reference table. Rows produced
// for a single extractor and input set are unique by DateCode; periodic rows
// within one year cover contiguous, non-overlapping intervals.
type DateRefRow struct {
	DateCode   string         `json:"date_code"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Type       DatePeriodType `json:"type"`
	ParentCode string         `json:"parent_code,omitempty"`
}
