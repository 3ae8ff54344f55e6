package dateref

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats-labs/statcube/pkg/core"
)

func codes(rows []core.DateRefRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.DateCode
	}
	return out
}

func TestGenerate_CalendarYear(t *testing.T) {
	ext := core.DatePeriodExtractor{PeriodKind: core.PeriodCalendar, YearFormat: "YYYY"}

	rows, err := Generate(ext, []string{"2023"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "2023", rows[0].DateCode)
	assert.Equal(t, core.PeriodTypeYear, rows[0].Type)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), rows[0].Start)
	assert.Equal(t, time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC), rows[0].End)
}

func TestGenerate_FinancialYearCode(t *testing.T) {
	// Every financial token renders the same canonical code.
	for _, format := range []string{"YYYYYY", "YYYY/YYYY", "YYYY-YYYY", "YYYY/YY", "YYYY-YY"} {
		ext := core.DatePeriodExtractor{PeriodKind: core.PeriodFinancial, YearFormat: format}

		rows, err := Generate(ext, []string{"2023"})
		require.NoError(t, err, "format %s", format)
		require.Len(t, rows, 1, "format %s", format)

		assert.Equal(t, "202324", rows[0].DateCode, "format %s", format)
		assert.Equal(t, time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC), rows[0].Start)
		assert.Equal(t, time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC), rows[0].End)
	}
}

func TestGenerate_FinancialYearWithQuarters(t *testing.T) {
	ext := core.DatePeriodExtractor{
		PeriodKind:    core.PeriodFinancial,
		YearFormat:    "YYYYYY",
		QuarterFormat: "QX",
	}

	rows, err := Generate(ext, []string{"2023"})
	require.NoError(t, err)

	assert.Equal(t, []string{"202324", "202324Q1", "202324Q2", "202324Q3", "202324Q4"}, codes(rows))

	// Financial quarters start in April.
	q1 := rows[1]
	assert.Equal(t, time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC), q1.Start)
	assert.Equal(t, time.Date(2023, time.June, 30, 23, 59, 59, 0, time.UTC), q1.End)
	assert.Equal(t, "202324", q1.ParentCode)

	q4 := rows[4]
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), q4.Start)
	assert.Equal(t, time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC), q4.End)
}

func TestGenerate_QuarterTotalIsFifthQuarter(t *testing.T) {
	ext := core.DatePeriodExtractor{
		PeriodKind:                 core.PeriodFinancial,
		YearFormat:                 "YYYYYY",
		QuarterFormat:              "QX",
		QuarterTotalIsFifthQuarter: true,
	}

	rows, err := Generate(ext, []string{"2023"})
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.ElementsMatch(t,
		[]string{"202324Q1", "202324Q2", "202324Q3", "202324Q4", "202324Q5"},
		codes(rows))
	assert.NotContains(t, codes(rows), "202324")

	// Q5 stands for the annual total: full-year interval.
	var q5 core.DateRefRow
	for _, r := range rows {
		if r.DateCode == "202324Q5" {
			q5 = r
		}
	}
	assert.Equal(t, time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC), q5.Start)
	assert.Equal(t, time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC), q5.End)
}

func TestGenerate_FinancialYearWithMonths(t *testing.T) {
	ext := core.DatePeriodExtractor{
		PeriodKind:  core.PeriodFinancial,
		YearFormat:  "YYYYYY",
		MonthFormat: "MMM",
	}

	rows, err := Generate(ext, []string{"2023"})
	require.NoError(t, err)
	require.Len(t, rows, 13)

	// Year row first, then months April through March.
	assert.Equal(t, "202324", rows[0].DateCode)
	wantMonths := []string{"Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec", "Jan", "Feb", "Mar"}
	for i, m := range wantMonths {
		row := rows[i+1]
		assert.Equal(t, "202324"+m, row.DateCode)
		assert.Equal(t, core.PeriodTypeMonth, row.Type)
		assert.Equal(t, "202324", row.ParentCode)
	}
}

func TestGenerate_MonthFormats(t *testing.T) {
	tests := []struct {
		format string
		want   string // first month code for calendar year 2023
	}{
		{"MMM", "2023Jan"},
		{"mMM", "2023jan"},
		{"mm", "202301"},
	}

	for _, tt := range tests {
		ext := core.DatePeriodExtractor{PeriodKind: core.PeriodCalendar, YearFormat: "YYYY", MonthFormat: tt.format}
		rows, err := Generate(ext, []string{"2023"})
		require.NoError(t, err, "format %s", tt.format)
		require.Len(t, rows, 13)
		assert.Equal(t, tt.want, rows[1].DateCode, "format %s", tt.format)
	}
}

func TestGenerate_QuartersAndMonthsNested(t *testing.T) {
	ext := core.DatePeriodExtractor{
		PeriodKind:    core.PeriodFinancial,
		YearFormat:    "YYYYYY",
		QuarterFormat: "QX",
		MonthFormat:   "MMM",
	}

	rows, err := Generate(ext, []string{"2023"})
	require.NoError(t, err)
	// year + 4 quarters + 12 months
	require.Len(t, rows, 17)

	want := []string{
		"202324",
		"202324Q1", "202324Apr", "202324May", "202324Jun",
		"202324Q2", "202324Jul", "202324Aug", "202324Sep",
		"202324Q3", "202324Oct", "202324Nov", "202324Dec",
		"202324Q4", "202324Jan", "202324Feb", "202324Mar",
	}
	assert.Equal(t, want, codes(rows))

	// Months are parented to their quarter, quarters to the year.
	assert.Equal(t, "202324Q1", rows[2].ParentCode)
	assert.Equal(t, "202324", rows[1].ParentCode)
}

func TestGenerate_MultipleYearsDeduplicated(t *testing.T) {
	ext := core.DatePeriodExtractor{PeriodKind: core.PeriodFinancial, YearFormat: "YYYY/YY", QuarterFormat: "QX"}

	rows, err := Generate(ext, []string{"2023/24", "2022/23", "2023/24"})
	require.NoError(t, err)
	require.Len(t, rows, 10)

	// Years ascending, codes unique.
	assert.Equal(t, "202223", rows[0].DateCode)
	assert.Equal(t, "202324", rows[5].DateCode)
	seen := make(map[string]bool)
	for _, r := range rows {
		assert.False(t, seen[r.DateCode], "duplicate code %s", r.DateCode)
		seen[r.DateCode] = true
	}
}

func TestGenerate_QuarterIntervalsContiguous(t *testing.T) {
	ext := core.DatePeriodExtractor{PeriodKind: core.PeriodCalendar, YearFormat: "YYYY", QuarterFormat: "QX"}

	rows, err := Generate(ext, []string{"2023"})
	require.NoError(t, err)
	require.Len(t, rows, 5)

	for i := 2; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		assert.Equal(t, prev.End.Add(time.Second), cur.Start,
			"gap between %s and %s", prev.DateCode, cur.DateCode)
	}
}

func TestGenerate_PointInTime(t *testing.T) {
	ext := core.DatePeriodExtractor{PeriodKind: core.PeriodPointInTime, DateFormat: "yyyyMMdd"}

	rows, err := Generate(ext, []string{"20231201"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "20231201", rows[0].DateCode)
	assert.Equal(t, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), rows[0].Start)
	assert.Equal(t, time.Date(2023, time.December, 1, 23, 59, 59, 0, time.UTC), rows[0].End)
	assert.Equal(t, core.PeriodTypeSpecificDay, rows[0].Type)
}

func TestGenerate_PointInTimeFormats(t *testing.T) {
	tests := []struct {
		format string
		value  string
	}{
		{"dd/MM/yyyy", "01/12/2023"},
		{"dd/MM/yyyy hh:mm:ss", "01/12/2023 14:30:00"},
		{"dd-MM-yyyy", "01-12-2023"},
		{"yyyy-MM-dd", "2023-12-01"},
		{"yyyyMMdd", "20231201"},
	}

	for _, tt := range tests {
		ext := core.DatePeriodExtractor{PeriodKind: core.PeriodPointInTime, DateFormat: tt.format}
		rows, err := Generate(ext, []string{tt.value})
		require.NoError(t, err, "format %s", tt.format)
		require.Len(t, rows, 1)

		// Time-of-day is discarded: the interval is always the calendar day.
		assert.Equal(t, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), rows[0].Start, "format %s", tt.format)
		assert.Equal(t, time.Date(2023, time.December, 1, 23, 59, 59, 0, time.UTC), rows[0].End, "format %s", tt.format)
	}
}

func TestGenerate_UnknownFormats(t *testing.T) {
	tests := []struct {
		name string
		ext  core.DatePeriodExtractor
		want string
	}{
		{
			name: "year",
			ext:  core.DatePeriodExtractor{YearFormat: "YY"},
			want: "Unknown year format",
		},
		{
			name: "quarter",
			ext:  core.DatePeriodExtractor{YearFormat: "YYYY", QuarterFormat: "ZZ"},
			want: "Unknown quarter format",
		},
		{
			name: "month",
			ext:  core.DatePeriodExtractor{YearFormat: "YYYY", MonthFormat: "MM"},
			want: "Unknown month format",
		},
		{
			name: "date",
			ext:  core.DatePeriodExtractor{PeriodKind: core.PeriodPointInTime, DateFormat: "dd.MM.yyyy"},
			want: "Unknown Date Format. Format given: dd.MM.yyyy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.ext, []string{"2023"})
			require.Error(t, err)

			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.want, cfgErr.Error())
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	ext := core.DatePeriodExtractor{
		PeriodKind:    core.PeriodFinancial,
		YearFormat:    "YYYYYY",
		QuarterFormat: "QX",
		MonthFormat:   "mMM",
	}
	input := []string{"2021", "2023", "2022"}

	first, err := Generate(ext, input)
	require.NoError(t, err)
	second, err := Generate(ext, input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerate_UnparseableYear(t *testing.T) {
	ext := core.DatePeriodExtractor{YearFormat: "YYYY"}
	_, err := Generate(ext, []string{"abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"abc"`)
}
