package core

import (
	"encoding/json"
	"fmt"
)

// ExtractorKind discriminates the closed set of dimension extractor variants.
type ExtractorKind string

const (
	KindRaw           ExtractorKind = "raw"
	KindText          ExtractorKind = "text"
	KindNumeric       ExtractorKind = "numeric"
	KindDatePeriod    ExtractorKind = "date_period"
	KindLookupTable   ExtractorKind = "lookup_table"
	KindReferenceData ExtractorKind = "reference_data"
	KindNoteCodes     ExtractorKind = "note_codes"
	KindMeasure       ExtractorKind = "measure"
)

// DimensionExtractor is the closed tagged union describing how a dimension
// column's raw codes are interpreted. The set of implementations is sealed;
// resolver switches over Kind() cover every variant.
type DimensionExtractor interface {
	Kind() ExtractorKind
	sealed()
}

// RawExtractor passes codes through untouched.
type RawExtractor struct{}

// TextExtractor treats codes as free text, no join.
type TextExtractor struct{}

// NumericExtractor treats codes as numeric values, no join.
type NumericExtractor struct{}

// PeriodKind selects the calendar interpretation of a date period dimension.
type PeriodKind string

const (
	PeriodCalendar    PeriodKind = "calendar"
	PeriodFinancial   PeriodKind = "financial"
	PeriodPointInTime PeriodKind = "point_in_time"
)

// DatePeriodExtractor describes a date or period dimension. Year, quarter and
// month formats are declarative tokens expanded by the reference generator;
// DateFormat applies to the point-in-time kind only.
type DatePeriodExtractor struct {
	PeriodKind    PeriodKind
	YearFormat    string
	QuarterFormat string
	MonthFormat   string
	DateFormat    string

	// QuarterTotalIsFifthQuarter replaces the bare year row with a Q5 row
	// standing for the annual total.
	QuarterTotalIsFifthQuarter bool
}

// LookupTableExtractor describes a dimension backed by an uploaded
// code-to-description lookup table.
type LookupTableExtractor struct {
	JoinColumn         string
	SortColumn         string
	NotesColumns       map[Locale]string
	DescriptionColumns map[Locale]string

	// IsLegacyFormat requires sort, notes and description columns to all be
	// present in the uploaded table.
	IsLegacyFormat bool
}

// ReferenceDataExtractor describes a dimension backed by the shared
// classification hierarchies, filtered to the given category keys.
type ReferenceDataExtractor struct {
	CategoryKeys []string
}

// NoteCodesExtractor marks the note-codes column.
type NoteCodesExtractor struct{}

// MeasureExtractor marks the measure column and carries its formatting rule.
type MeasureExtractor struct {
	DecimalPlaces int
}

func (RawExtractor) Kind() ExtractorKind           { return KindRaw }
func (TextExtractor) Kind() ExtractorKind          { return KindText }
func (NumericExtractor) Kind() ExtractorKind       { return KindNumeric }
func (DatePeriodExtractor) Kind() ExtractorKind    { return KindDatePeriod }
func (LookupTableExtractor) Kind() ExtractorKind   { return KindLookupTable }
func (ReferenceDataExtractor) Kind() ExtractorKind { return KindReferenceData }
func (NoteCodesExtractor) Kind() ExtractorKind     { return KindNoteCodes }
func (MeasureExtractor) Kind() ExtractorKind       { return KindMeasure }

func (RawExtractor) sealed()           {}
func (TextExtractor) sealed()          {}
func (NumericExtractor) sealed()       {}
func (DatePeriodExtractor) sealed()    {}
func (LookupTableExtractor) sealed()   {}
func (ReferenceDataExtractor) sealed() {}
func (NoteCodesExtractor) sealed()     {}
func (MeasureExtractor) sealed()       {}

// extractorEnvelope is the JSON wire form stored in the metadata store.
type extractorEnvelope struct {
	Type ExtractorKind `json:"type"`

	PeriodKind                 PeriodKind `json:"period_kind,omitempty"`
	YearFormat                 string     `json:"year_format,omitempty"`
	QuarterFormat              string     `json:"quarter_format,omitempty"`
	MonthFormat                string     `json:"month_format,omitempty"`
	DateFormat                 string     `json:"date_format,omitempty"`
	QuarterTotalIsFifthQuarter bool       `json:"quarter_total_is_fifth_quarter,omitempty"`

	JoinColumn         string            `json:"join_column,omitempty"`
	SortColumn         string            `json:"sort_column,omitempty"`
	NotesColumns       map[Locale]string `json:"notes_columns,omitempty"`
	DescriptionColumns map[Locale]string `json:"description_columns,omitempty"`
	IsLegacyFormat     bool              `json:"is_legacy_format,omitempty"`

	CategoryKeys []string `json:"category_keys,omitempty"`

	DecimalPlaces int `json:"decimal_places,omitempty"`
}

// MarshalExtractor serializes an extractor to its JSON wire form.
func MarshalExtractor(e DimensionExtractor) ([]byte, error) {
	env := extractorEnvelope{Type: e.Kind()}
	switch v := e.(type) {
	case RawExtractor, TextExtractor, NumericExtractor, NoteCodesExtractor:
		// discriminator only
	case DatePeriodExtractor:
		env.PeriodKind = v.PeriodKind
		env.YearFormat = v.YearFormat
		env.QuarterFormat = v.QuarterFormat
		env.MonthFormat = v.MonthFormat
		env.DateFormat = v.DateFormat
		env.QuarterTotalIsFifthQuarter = v.QuarterTotalIsFifthQuarter
	case LookupTableExtractor:
		env.JoinColumn = v.JoinColumn
		env.SortColumn = v.SortColumn
		env.NotesColumns = v.NotesColumns
		env.DescriptionColumns = v.DescriptionColumns
		env.IsLegacyFormat = v.IsLegacyFormat
	case ReferenceDataExtractor:
		env.CategoryKeys = v.CategoryKeys
	case MeasureExtractor:
		env.DecimalPlaces = v.DecimalPlaces
	default:
		return nil, fmt.Errorf("unknown extractor kind: %s", e.Kind())
	}
	return json.Marshal(env)
}

// UnmarshalExtractor parses the JSON wire form back into a concrete extractor.
func UnmarshalExtractor(data []byte) (DimensionExtractor, error) {
	var env extractorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse extractor config: %w", err)
	}

	switch env.Type {
	case KindRaw:
		return RawExtractor{}, nil
	case KindText:
		return TextExtractor{}, nil
	case KindNumeric:
		return NumericExtractor{}, nil
	case KindDatePeriod:
		return DatePeriodExtractor{
			PeriodKind:                 env.PeriodKind,
			YearFormat:                 env.YearFormat,
			QuarterFormat:              env.QuarterFormat,
			MonthFormat:                env.MonthFormat,
			DateFormat:                 env.DateFormat,
			QuarterTotalIsFifthQuarter: env.QuarterTotalIsFifthQuarter,
		}, nil
	case KindLookupTable:
		return LookupTableExtractor{
			JoinColumn:         env.JoinColumn,
			SortColumn:         env.SortColumn,
			NotesColumns:       env.NotesColumns,
			DescriptionColumns: env.DescriptionColumns,
			IsLegacyFormat:     env.IsLegacyFormat,
		}, nil
	case KindReferenceData:
		return ReferenceDataExtractor{CategoryKeys: env.CategoryKeys}, nil
	case KindNoteCodes:
		return NoteCodesExtractor{}, nil
	case KindMeasure:
		return MeasureExtractor{DecimalPlaces: env.DecimalPlaces}, nil
	default:
		return nil, fmt.Errorf("unknown extractor type: %q", env.Type)
	}
}
