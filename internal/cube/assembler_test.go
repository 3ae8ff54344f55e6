package cube

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats-labs/statcube/internal/i18n"
	"github.com/openstats-labs/statcube/internal/state"
	"github.com/openstats-labs/statcube/internal/storage"
	"github.com/openstats-labs/statcube/internal/testutil"
	"github.com/openstats-labs/statcube/pkg/adapter"
	"github.com/openstats-labs/statcube/pkg/adapters/duckdb"
	"github.com/openstats-labs/statcube/pkg/core"
)

const factCSV = `Year,AreaCode,Notes,Data,Measure
2024,W01,,300,Count
2023,W02,"e,p",200,Count
2023,W01,e,100,Count
`

const areasCSV = `Code,Sort,Description_en,Description_cy
W01,1,Cardiff,Caerdydd
W02,2,Swansea,Abertawe
`

type env struct {
	db      adapter.Adapter
	store   *state.SQLiteStore
	files   *storage.FileStore
	builder *Builder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	db := duckdb.New(logger)
	require.NoError(t, db.Connect(context.Background(), adapter.Config{Type: "duckdb"}))
	t.Cleanup(func() { _ = db.Close() })

	store := state.NewSQLiteStore(logger)
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "meta.db")))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	files := storage.NewFileStore(t.TempDir(), logger)

	catalog, err := i18n.NewCatalog()
	require.NoError(t, err)

	return &env{
		db:      db,
		store:   store,
		files:   files,
		builder: New(db, store, files, catalog, logger),
	}
}

func (e *env) seedRevision(t *testing.T, fact string) *core.Revision {
	t.Helper()

	ds := &core.Dataset{Title: map[core.Locale]string{
		core.LocaleEnglish: "Dwellings", core.LocaleWelsh: "Anheddau",
	}}
	require.NoError(t, e.store.CreateDataset(ds))

	rev := &core.Revision{DatasetID: ds.ID, FactFile: "fact.csv", Directory: "uploads"}
	require.NoError(t, e.store.CreateRevision(rev))
	require.NoError(t, e.files.SaveBuffer(context.Background(), "fact.csv", "uploads", []byte(fact)))
	return rev
}

func (e *env) addDimension(t *testing.T, rev *core.Revision, name string, index int, role core.ColumnRole, ext core.DimensionExtractor, lookupFile string) {
	t.Helper()

	var extJSON []byte
	if ext != nil {
		var err error
		extJSON, err = core.MarshalExtractor(ext)
		require.NoError(t, err)
	}
	require.NoError(t, e.store.CreateDimension(&core.Dimension{
		RevisionID: rev.ID, ColumnName: name, ColumnIndex: index,
		Role: role, ExtractorJSON: extJSON, LookupFile: lookupFile,
	}))
}

// seedStandard wires the shared fixture: a year dimension, a lookup-backed
// area dimension, note codes, data values and a one-decimal measure.
func (e *env) seedStandard(t *testing.T) *core.Revision {
	t.Helper()

	rev := e.seedRevision(t, factCSV)
	require.NoError(t, e.files.SaveBuffer(context.Background(), "areas.csv", "uploads", []byte(areasCSV)))

	e.addDimension(t, rev, "Year", 0, core.RoleDimension, core.DatePeriodExtractor{
		PeriodKind: core.PeriodCalendar, YearFormat: "YYYY",
	}, "")
	e.addDimension(t, rev, "AreaCode", 1, core.RoleDimension, core.LookupTableExtractor{
		JoinColumn: "Code",
		SortColumn: "Sort",
		DescriptionColumns: map[core.Locale]string{
			core.LocaleEnglish: "Description_en",
			core.LocaleWelsh:   "Description_cy",
		},
	}, "areas.csv")
	e.addDimension(t, rev, "Notes", 2, core.RoleNoteCodes, nil, "")
	e.addDimension(t, rev, "Data", 3, core.RoleDataValues, nil, "")
	e.addDimension(t, rev, "Measure", 4, core.RoleMeasure, core.MeasureExtractor{DecimalPlaces: 1}, "")
	return rev
}

type previewRow struct {
	year, area, data, measure string
	notes                     sql.NullString
}

func (e *env) readDefaultView(t *testing.T, schema string, locale core.Locale) []previewRow {
	t.Helper()

	rows, err := e.db.Query(context.Background(),
		fmt.Sprintf("SELECT * FROM %s.%s", schema, core.DefaultViewName(locale)))
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []previewRow
	for rows.Next() {
		var r previewRow
		require.NoError(t, rows.Scan(&r.year, &r.area, &r.notes, &r.data, &r.measure))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestBuild_EndToEnd(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)

	result := e.builder.Build(context.Background(), rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status, "errors: %+v", result.Errors)
	require.NotEmpty(t, result.SchemaName)
	require.NotNil(t, result.BuiltAt)
	assert.Empty(t, result.Warnings)

	cube, err := e.store.GetCube(rev.ID)
	require.NoError(t, err)
	require.NotNil(t, cube)
	assert.Equal(t, result.SchemaName, cube.SchemaName)

	got := e.readDefaultView(t, cube.SchemaName, core.LocaleEnglish)
	require.Len(t, got, 3)

	// Ordered by period start then lookup sort order.
	assert.Equal(t, previewRow{
		year: "2023", area: "Cardiff", data: "100.0", measure: "Count",
		notes: sql.NullString{String: "Estimated", Valid: true},
	}, got[0])
	assert.Equal(t, previewRow{
		year: "2023", area: "Swansea", data: "200.0", measure: "Count",
		notes: sql.NullString{String: "Estimated; Provisional", Valid: true},
	}, got[1])
	assert.Equal(t, "2024", got[2].year)
	assert.Equal(t, "Cardiff", got[2].area)
	assert.False(t, got[2].notes.Valid)
	assert.Equal(t, "300.0", got[2].data)
}

func TestBuild_WelshView(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)

	result := e.builder.Build(context.Background(), rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status)

	got := e.readDefaultView(t, result.SchemaName, core.LocaleWelsh)
	require.Len(t, got, 3)
	assert.Equal(t, "Caerdydd", got[0].area)
	assert.Equal(t, "Abertawe", got[1].area)
	assert.Equal(t, "Amcangyfrifol; Dros dro", got[1].notes.String)
}

func TestBuild_RawViewKeepsCodes(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)

	result := e.builder.Build(context.Background(), rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status)

	rows, err := e.db.Query(context.Background(), fmt.Sprintf(
		`SELECT CAST("Year" AS VARCHAR), "AreaCode" FROM %s.%s ORDER BY 1, 2`,
		result.SchemaName, core.RawViewName(core.LocaleEnglish)))
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	require.True(t, rows.Next())
	var year, area string
	require.NoError(t, rows.Scan(&year, &area))
	assert.Equal(t, "2023", year)
	assert.Equal(t, "W01", area)
}

func TestBuild_UnusedLookupKeysWarnOnly(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)
	require.NoError(t, e.files.SaveBuffer(context.Background(), "areas.csv", "uploads",
		[]byte(areasCSV+"W03,3,Newport,Casnewydd\n")))

	result := e.builder.Build(context.Background(), rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "AreaCode")
}

func TestBuild_NumericFactColumnWithTextLookupKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// The fact column infers numeric; the lookup carries an extra
	// non-numeric key. The unused key is a warning, and the serving view
	// must still read.
	rev := e.seedRevision(t, "Year,Band,Data\n2023,1,100\n2023,2,200\n")
	require.NoError(t, e.files.SaveBuffer(ctx, "bands.csv", "uploads",
		[]byte("Code,Sort,Description_en,Description_cy\n1,1,Band one,Band un\n2,2,Band two,Band dau\nNA,3,Not applicable,Ddim yn berthnasol\n")))

	e.addDimension(t, rev, "Year", 0, core.RoleDimension, core.DatePeriodExtractor{
		PeriodKind: core.PeriodCalendar, YearFormat: "YYYY",
	}, "")
	e.addDimension(t, rev, "Band", 1, core.RoleDimension, core.LookupTableExtractor{
		JoinColumn: "Code",
		SortColumn: "Sort",
		DescriptionColumns: map[core.Locale]string{
			core.LocaleEnglish: "Description_en",
			core.LocaleWelsh:   "Description_cy",
		},
	}, "bands.csv")
	e.addDimension(t, rev, "Data", 2, core.RoleDataValues, nil, "")

	result := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status, "errors: %+v", result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Band")

	rows, err := e.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s.%s",
		result.SchemaName, core.DefaultViewName(core.LocaleEnglish)))
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var bands []string
	for rows.Next() {
		var year, band, data sql.NullString
		require.NoError(t, rows.Scan(&year, &band, &data))
		bands = append(bands, band.String)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"Band one", "Band two"}, bands)
}

func TestBuild_LookupMissingConfiguredColumns(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rev := e.seedRevision(t, factCSV)
	require.NoError(t, e.files.SaveBuffer(ctx, "areas.csv", "uploads", []byte(areasCSV)))

	e.addDimension(t, rev, "AreaCode", 1, core.RoleDimension, core.LookupTableExtractor{
		JoinColumn: "Code",
		SortColumn: "Rank",
		DescriptionColumns: map[core.Locale]string{
			core.LocaleEnglish: "Label",
			core.LocaleWelsh:   "Description_cy",
		},
	}, "areas.csv")
	e.addDimension(t, rev, "Data", 3, core.RoleDataValues, nil, "")

	result := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusFailed, result.Status)
	require.NotNil(t, result.Errors)
	assert.Equal(t, 400, result.Errors.Status)
	require.Len(t, result.Errors.Errors, 1)

	fieldErr := result.Errors.Errors[0]
	assert.Equal(t, "lookup.shape_invalid", fieldErr.Message.Key)
	assert.Contains(t, fieldErr.Message.Params["columns"], "Rank")
	assert.Contains(t, fieldErr.Message.Params["columns"], "Label")
}

func TestBuild_UnmatchedLookupPreservesServingCube(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)
	ctx := context.Background()

	first := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusCompleted, first.Status)

	// A rebuild against a fact table with an unknown area code must fail
	// without touching the serving cube.
	require.NoError(t, e.files.SaveBuffer(ctx, "fact.csv", "uploads",
		[]byte("Year,AreaCode,Notes,Data,Measure\n2023,W99,,1,Count\n")))

	second := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusFailed, second.Status)
	require.NotNil(t, second.Errors)
	assert.Equal(t, 400, second.Errors.Status)
	require.Len(t, second.Errors.Errors, 1)

	fieldErr := second.Errors.Errors[0]
	assert.Equal(t, "AreaCode", fieldErr.Field)
	assert.Equal(t, "lookup.unmatched_values", fieldErr.Message.Key)
	assert.Contains(t, fieldErr.Message.Params["values"], "W99")
	require.Len(t, fieldErr.UserMessage, 2)
	assert.Equal(t, core.LocaleEnglish, fieldErr.UserMessage[0].Lang)
	assert.Contains(t, fieldErr.UserMessage[0].Message, "W99")
	assert.Equal(t, core.LocaleWelsh, fieldErr.UserMessage[1].Lang)
	assert.Contains(t, fieldErr.UserMessage[1].Message, "W99")

	cube, err := e.store.GetCube(rev.ID)
	require.NoError(t, err)
	require.NotNil(t, cube)
	assert.Equal(t, first.SchemaName, cube.SchemaName)
	assert.Len(t, e.readDefaultView(t, cube.SchemaName, core.LocaleEnglish), 3)
}

func TestBuild_UnknownYearFormat(t *testing.T) {
	e := newEnv(t)
	rev := e.seedRevision(t, "Year,Data\n2023,1\n")
	e.addDimension(t, rev, "Year", 0, core.RoleDimension, core.DatePeriodExtractor{
		PeriodKind: core.PeriodCalendar, YearFormat: "YY",
	}, "")
	e.addDimension(t, rev, "Data", 1, core.RoleDataValues, nil, "")

	result := e.builder.Build(context.Background(), rev.ID)
	require.Equal(t, core.BuildStatusFailed, result.Status)
	require.NotNil(t, result.Errors)
	require.Len(t, result.Errors.Errors, 1)

	fieldErr := result.Errors.Errors[0]
	assert.Equal(t, "config.unknown_format", fieldErr.Message.Key)
	assert.Equal(t, "Unknown year format", fieldErr.Message.Params["message"])
	assert.Equal(t, "Year", fieldErr.Message.Params["column"])
	assert.Contains(t, fieldErr.UserMessage[0].Message, "Unknown year format")
}

func TestBuild_MissingDataValuesColumn(t *testing.T) {
	e := newEnv(t)
	rev := e.seedRevision(t, "Year,Data\n2023,1\n")
	e.addDimension(t, rev, "Year", 0, core.RoleDimension, core.DatePeriodExtractor{
		PeriodKind: core.PeriodCalendar, YearFormat: "YYYY",
	}, "")

	result := e.builder.Build(context.Background(), rev.ID)
	require.Equal(t, core.BuildStatusFailed, result.Status)
	require.NotNil(t, result.Errors)
	assert.Equal(t, "classification.data_values_missing", result.Errors.Errors[0].Message.Key)
}

func TestBuild_ConcurrentDuplicateRejected(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)

	lock := e.builder.lockFor(rev.ID)
	lock.Lock()
	defer lock.Unlock()

	result := e.builder.Build(context.Background(), rev.ID)
	assert.Equal(t, core.BuildStatusRejected, result.Status)
	require.NotNil(t, result.Errors)
	assert.Equal(t, 409, result.Errors.Status)
	assert.Equal(t, "build.in_progress", result.Errors.Errors[0].Message.Key)
}

func TestBuild_RevisionNotFound(t *testing.T) {
	e := newEnv(t)

	result := e.builder.Build(context.Background(), "no-such-revision")
	require.Equal(t, core.BuildStatusFailed, result.Status)
	require.NotNil(t, result.Errors)
	assert.Equal(t, 404, result.Errors.Status)
	assert.Equal(t, "build.revision_not_found", result.Errors.Errors[0].Message.Key)
}

func TestBuild_RebuildDropsSupersededSchema(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)
	ctx := context.Background()

	first := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusCompleted, first.Status)
	firstRows := e.readDefaultView(t, first.SchemaName, core.LocaleEnglish)

	second := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusCompleted, second.Status)
	assert.NotEqual(t, first.SchemaName, second.SchemaName)

	// The superseded schema is gone; the new one serves.
	_, err := e.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s.%s",
		first.SchemaName, core.DefaultViewName(core.LocaleEnglish)))
	require.Error(t, err)

	// Unchanged inputs rebuild to the same rows.
	secondRows := e.readDefaultView(t, second.SchemaName, core.LocaleEnglish)
	require.Len(t, secondRows, 3)
	assert.ElementsMatch(t, firstRows, secondRows)

	cube, err := e.store.GetCube(rev.ID)
	require.NoError(t, err)
	assert.Equal(t, second.SchemaName, cube.SchemaName)
}

func TestBuild_ReferenceDataDimension(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.db.Exec(ctx, "CREATE SCHEMA refdata"))
	require.NoError(t, e.db.Exec(ctx,
		`CREATE TABLE refdata.reference_data (category_key VARCHAR, code VARCHAR, sort_order INTEGER,
		 description_en VARCHAR, description_cy VARCHAR, notes_en VARCHAR, notes_cy VARCHAR)`))
	require.NoError(t, e.db.Exec(ctx,
		`INSERT INTO refdata.reference_data VALUES
		 ('gender', 'M', 1, 'Male', 'Gwryw', NULL, NULL),
		 ('gender', 'F', 2, 'Female', 'Benyw', NULL, NULL),
		 ('tenure', 'O', 1, 'Owned', 'Perchnogaeth', NULL, NULL)`))

	rev := e.seedRevision(t, "Gender,Data\nF,10\nM,20\n")
	e.addDimension(t, rev, "Gender", 0, core.RoleDimension, core.ReferenceDataExtractor{
		CategoryKeys: []string{"gender"},
	}, "")
	e.addDimension(t, rev, "Data", 1, core.RoleDataValues, nil, "")

	result := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status, "errors: %+v", result.Errors)

	rows, err := e.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s.%s",
		result.SchemaName, core.DefaultViewName(core.LocaleEnglish)))
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var got []string
	for rows.Next() {
		var gender, genderNotes, data sql.NullString
		require.NoError(t, rows.Scan(&gender, &genderNotes, &data))
		got = append(got, gender.String)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"Male", "Female"}, got)
}

func TestTeardown(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)
	ctx := context.Background()

	result := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status)

	require.NoError(t, e.builder.Teardown(ctx, rev.ID))

	cube, err := e.store.GetCube(rev.ID)
	require.NoError(t, err)
	assert.Nil(t, cube)

	_, err = e.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s.%s",
		result.SchemaName, core.DefaultViewName(core.LocaleEnglish)))
	require.Error(t, err)
}

func TestBuild_RecordsBuildHistory(t *testing.T) {
	e := newEnv(t)
	rev := e.seedStandard(t)
	ctx := context.Background()

	result := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusCompleted, result.Status)
	require.NotEmpty(t, result.BuildID)

	build, err := e.store.GetBuild(result.BuildID)
	require.NoError(t, err)
	assert.Equal(t, core.BuildStatusCompleted, build.Status)
	require.NotNil(t, build.CompletedAt)

	// A failed attempt is recorded alongside the successful one.
	require.NoError(t, e.files.SaveBuffer(ctx, "fact.csv", "uploads",
		[]byte("Year,AreaCode,Notes,Data,Measure\n2023,W99,,1,Count\n")))
	failed := e.builder.Build(ctx, rev.ID)
	require.Equal(t, core.BuildStatusFailed, failed.Status)

	builds, err := e.store.ListBuilds(rev.ID, 10)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, core.BuildStatusFailed, builds[0].Status)
	assert.NotEmpty(t, builds[0].Error)
}
