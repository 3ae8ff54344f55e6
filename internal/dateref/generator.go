// Package dateref generates date and period reference tables from declarative
// extractor formats. Generation is pure and deterministic: the same extractor
// and raw codes always produce the same rows, with no I/O.
package dateref

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openstats-labs/statcube/pkg/core"
)

// Format error messages are fixed and returned verbatim for editor
// correction. Do not reword.
const (
	msgUnknownYearFormat    = "Unknown year format"
	msgUnknownQuarterFormat = "Unknown quarter format"
	msgUnknownMonthFormat   = "Unknown month format"
)

// quarterPlaceholder is substituted with the quarter number 1-4 (or 5 for
// the annual-total row).
const quarterPlaceholder = "X"

// dateLayouts maps the supported point-in-time formats to Go layouts.
var dateLayouts = map[string]string{
	"dd/MM/yyyy":          "02/01/2006",
	"dd/MM/yyyy hh:mm:ss": "02/01/2006 15:04:05",
	"dd-MM-yyyy":          "02-01-2006",
	"yyyy-MM-dd":          "2006-01-02",
	"yyyyMMdd":            "20060102",
}

// Generate builds the reference table for one date-period extractor and the
// raw codes observed in its fact column. Within one year, rows are emitted
// year, then quarters, then months grouped per quarter; there is no
// cross-year ordering guarantee.
func Generate(ext core.DatePeriodExtractor, rawCodes []string) ([]core.DateRefRow, error) {
	if ext.PeriodKind == core.PeriodPointInTime {
		return generatePointInTime(ext.DateFormat, rawCodes)
	}
	return generatePeriodic(ext, rawCodes)
}

// generatePeriodic handles the calendar and financial year breakdowns.
func generatePeriodic(ext core.DatePeriodExtractor, rawCodes []string) ([]core.DateRefRow, error) {
	financial, err := parseYearFormat(ext.YearFormat)
	if err != nil {
		return nil, err
	}

	// Validate breakdown formats up front so a bad format fails the same way
	// regardless of input values.
	if ext.QuarterFormat != "" {
		if !strings.Contains(ext.QuarterFormat, quarterPlaceholder) {
			return nil, &core.ConfigurationError{
				Message: msgUnknownQuarterFormat,
				Key:     "config.unknown_format",
				Params:  map[string]any{"format": ext.QuarterFormat},
			}
		}
	}
	if ext.MonthFormat != "" {
		if _, err := renderMonth(ext.MonthFormat, time.January); err != nil {
			return nil, err
		}
	}

	years, err := distinctYears(rawCodes)
	if err != nil {
		return nil, err
	}

	var rows []core.DateRefRow
	for _, year := range years {
		rows = append(rows, yearRows(ext, year, financial)...)
	}
	return rows, nil
}

// yearRows emits the rows for one year: the year row (or its Q5 stand-in),
// quarters, and months nested under their parent period.
func yearRows(ext core.DatePeriodExtractor, year int, financial bool) []core.DateRefRow {
	yc := renderYearCode(year, financial)
	start := yearStart(year, financial)
	end := start.AddDate(1, 0, 0).Add(-time.Second)

	hasQuarters := ext.QuarterFormat != ""
	hasMonths := ext.MonthFormat != ""
	fifthQuarterTotal := hasQuarters && ext.QuarterTotalIsFifthQuarter

	var rows []core.DateRefRow

	// The annual-total code: the bare year row, unless the fifth-quarter
	// scheme replaces it with Q5 (emitted after the real quarters).
	totalCode := yc
	if fifthQuarterTotal {
		totalCode = yc + strings.ReplaceAll(ext.QuarterFormat, quarterPlaceholder, "5")
	} else {
		rows = append(rows, core.DateRefRow{
			DateCode: yc,
			Start:    start,
			End:      end,
			Type:     core.PeriodTypeYear,
		})
	}

	if hasQuarters {
		for q := 1; q <= 4; q++ {
			qStart := start.AddDate(0, 3*(q-1), 0)
			qEnd := qStart.AddDate(0, 3, 0).Add(-time.Second)
			qCode := yc + strings.ReplaceAll(ext.QuarterFormat, quarterPlaceholder, strconv.Itoa(q))
			rows = append(rows, core.DateRefRow{
				DateCode:   qCode,
				Start:      qStart,
				End:        qEnd,
				Type:       core.PeriodTypeQuarter,
				ParentCode: totalCode,
			})
			if hasMonths {
				rows = append(rows, monthRows(ext.MonthFormat, yc, qCode, qStart, 3)...)
			}
		}
		if fifthQuarterTotal {
			rows = append(rows, core.DateRefRow{
				DateCode: totalCode,
				Start:    start,
				End:      end,
				Type:     core.PeriodTypeYear,
			})
		}
	} else if hasMonths {
		rows = append(rows, monthRows(ext.MonthFormat, yc, yc, start, 12)...)
	}

	return rows
}

// monthRows emits count month rows starting at start, parented to parentCode.
// The month format was validated before generation, so rendering cannot fail.
func monthRows(format, yearCode, parentCode string, start time.Time, count int) []core.DateRefRow {
	rows := make([]core.DateRefRow, 0, count)
	for i := 0; i < count; i++ {
		mStart := start.AddDate(0, i, 0)
		mEnd := mStart.AddDate(0, 1, 0).Add(-time.Second)
		mCode, _ := renderMonth(format, mStart.Month())
		rows = append(rows, core.DateRefRow{
			DateCode:   yearCode + mCode,
			Start:      mStart,
			End:        mEnd,
			Type:       core.PeriodTypeMonth,
			ParentCode: parentCode,
		})
	}
	return rows
}

// generatePointInTime parses each raw value as a single calendar day.
func generatePointInTime(format string, rawCodes []string) ([]core.DateRefRow, error) {
	layout, ok := dateLayouts[format]
	if !ok {
		return nil, &core.ConfigurationError{
			Message: fmt.Sprintf("Unknown Date Format. Format given: %s", format),
			Key:     "config.unknown_format",
			Params:  map[string]any{"format": format},
		}
	}

	seen := make(map[string]bool, len(rawCodes))
	rows := make([]core.DateRefRow, 0, len(rawCodes))
	for _, code := range rawCodes {
		if seen[code] {
			continue
		}
		seen[code] = true

		ts, err := time.ParseInLocation(layout, code, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("cannot parse date value %q using format %q: %w", code, format, err)
		}

		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		rows = append(rows, core.DateRefRow{
			DateCode: code,
			Start:    day,
			End:      day.Add(24*time.Hour - time.Second),
			Type:     core.PeriodTypeSpecificDay,
		})
	}
	return rows, nil
}

// parseYearFormat classifies the year format token. YYYY is a calendar year;
// the double-year tokens are financial years running April to March.
func parseYearFormat(format string) (financial bool, err error) {
	switch format {
	case "YYYY":
		return false, nil
	case "YYYYYY", "YYYY/YYYY", "YYYY-YYYY", "YYYY/YY", "YYYY-YY":
		return true, nil
	default:
		return false, &core.ConfigurationError{
			Message: msgUnknownYearFormat,
			Key:     "config.unknown_format",
			Params:  map[string]any{"format": format},
		}
	}
}

// renderYearCode renders the canonical code for a year. Financial years are
// always rendered start year plus the last two digits of the end year,
// whatever separator the input format used: 2023 becomes "202324".
func renderYearCode(year int, financial bool) string {
	if financial {
		return fmt.Sprintf("%d%02d", year, (year+1)%100)
	}
	return strconv.Itoa(year)
}

// yearStart returns the first instant of the year: 1 January for calendar
// years, 1 April for financial years.
func yearStart(year int, financial bool) time.Time {
	if financial {
		return time.Date(year, time.April, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// renderMonth renders one month per the month format token.
func renderMonth(format string, m time.Month) (string, error) {
	name := m.String()[:3]
	switch format {
	case "MMM":
		return name, nil
	case "mMM":
		return strings.ToLower(name), nil
	case "mm":
		return fmt.Sprintf("%02d", int(m)), nil
	default:
		return "", &core.ConfigurationError{
			Message: msgUnknownMonthFormat,
			Key:     "config.unknown_format",
			Params:  map[string]any{"format": format},
		}
	}
}

// distinctYears extracts the distinct start years from raw codes, sorted
// ascending. The year is the leading four digits of each code, which covers
// every supported year rendering ("2023", "2023/24", "202324Q1", ...).
func distinctYears(rawCodes []string) ([]int, error) {
	seen := make(map[int]bool)
	for _, code := range rawCodes {
		trimmed := strings.TrimSpace(code)
		if len(trimmed) < 4 {
			return nil, fmt.Errorf("cannot parse year from value %q", code)
		}
		year, err := strconv.Atoi(trimmed[:4])
		if err != nil {
			return nil, fmt.Errorf("cannot parse year from value %q", code)
		}
		seen[year] = true
	}

	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}
