package preview

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats-labs/statcube/internal/cube"
	"github.com/openstats-labs/statcube/internal/i18n"
	"github.com/openstats-labs/statcube/internal/state"
	"github.com/openstats-labs/statcube/internal/storage"
	"github.com/openstats-labs/statcube/internal/testutil"
	"github.com/openstats-labs/statcube/pkg/adapter"
	"github.com/openstats-labs/statcube/pkg/adapters/duckdb"
	"github.com/openstats-labs/statcube/pkg/core"
)

const factCSV = `Year,AreaCode,Data
2024,W01,300
2023,W02,200
2023,W01,100
`

const areasCSV = `Code,Sort,Description_en,Description_cy
W01,1,Cardiff,Caerdydd
W02,2,Swansea,Abertawe
`

type env struct {
	svc   *Service
	store *state.SQLiteStore
	rev   *core.Revision
}

// newEnv assembles a three-row cube and returns a service reading it. When
// built is false the revision exists but has no cube.
func newEnv(t *testing.T, built bool) *env {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	db := duckdb.New(logger)
	require.NoError(t, db.Connect(ctx, adapter.Config{Type: "duckdb"}))
	t.Cleanup(func() { _ = db.Close() })

	store := state.NewSQLiteStore(logger)
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "meta.db")))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	files := storage.NewFileStore(t.TempDir(), logger)
	catalog, err := i18n.NewCatalog()
	require.NoError(t, err)

	ds := &core.Dataset{Title: map[core.Locale]string{core.LocaleEnglish: "Dwellings"}}
	require.NoError(t, store.CreateDataset(ds))
	rev := &core.Revision{DatasetID: ds.ID, FactFile: "fact.csv", Directory: "uploads"}
	require.NoError(t, store.CreateRevision(rev))

	require.NoError(t, files.SaveBuffer(ctx, "fact.csv", "uploads", []byte(factCSV)))
	require.NoError(t, files.SaveBuffer(ctx, "areas.csv", "uploads", []byte(areasCSV)))

	yearExt, err := core.MarshalExtractor(core.DatePeriodExtractor{
		PeriodKind: core.PeriodCalendar, YearFormat: "YYYY",
	})
	require.NoError(t, err)
	areaExt, err := core.MarshalExtractor(core.LookupTableExtractor{
		JoinColumn: "Code",
		SortColumn: "Sort",
		DescriptionColumns: map[core.Locale]string{
			core.LocaleEnglish: "Description_en",
			core.LocaleWelsh:   "Description_cy",
		},
	})
	require.NoError(t, err)

	require.NoError(t, store.CreateDimension(&core.Dimension{
		RevisionID: rev.ID, ColumnName: "Year", ColumnIndex: 0,
		Role: core.RoleDimension, ExtractorJSON: yearExt,
	}))
	require.NoError(t, store.CreateDimension(&core.Dimension{
		RevisionID: rev.ID, ColumnName: "AreaCode", ColumnIndex: 1,
		Role: core.RoleDimension, ExtractorJSON: areaExt, LookupFile: "areas.csv",
	}))
	require.NoError(t, store.CreateDimension(&core.Dimension{
		RevisionID: rev.ID, ColumnName: "Data", ColumnIndex: 2, Role: core.RoleDataValues,
	}))

	if built {
		result := cube.New(db, store, files, catalog, logger).Build(ctx, rev.ID)
		require.Equal(t, core.BuildStatusCompleted, result.Status, "errors: %+v", result.Errors)
	}

	return &env{
		svc:   New(db, store, catalog, logger),
		store: store,
		rev:   rev,
	}
}

func TestGetPreview_FirstPage(t *testing.T) {
	e := newEnv(t, true)

	page, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 1, 2, core.LocaleEnglish, false)
	require.Nil(t, errResp)
	require.NotNil(t, page)

	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, 2, page.PageSize)
	assert.Equal(t, 3, page.TotalRows)
	assert.Equal(t, 2, page.TotalPages)

	require.Len(t, page.Headers, 3)
	assert.Equal(t, core.ColumnHeader{Index: 0, Name: "Year", SourceType: "dimension"}, page.Headers[0])
	assert.Equal(t, core.ColumnHeader{Index: 1, Name: "AreaCode", SourceType: "dimension"}, page.Headers[1])
	assert.Equal(t, core.ColumnHeader{Index: 2, Name: "Data", SourceType: "data_values"}, page.Headers[2])

	// Ordered by period start then lookup sort order.
	require.Len(t, page.Rows, 2)
	assert.Equal(t, []string{"2023", "Cardiff", "100"}, page.Rows[0])
	assert.Equal(t, []string{"2023", "Swansea", "200"}, page.Rows[1])
}

func TestGetPreview_LastPage(t *testing.T) {
	e := newEnv(t, true)

	page, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 2, 2, core.LocaleEnglish, false)
	require.Nil(t, errResp)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, []string{"2024", "Cardiff", "300"}, page.Rows[0])
}

func TestGetPreview_WelshLocale(t *testing.T) {
	e := newEnv(t, true)

	page, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 1, 10, core.LocaleWelsh, false)
	require.Nil(t, errResp)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "Caerdydd", page.Rows[0][1])
	assert.Equal(t, core.LocaleWelsh, page.Locale)
}

func TestGetPreview_RawView(t *testing.T) {
	e := newEnv(t, true)

	page, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 1, 10, core.LocaleEnglish, true)
	require.Nil(t, errResp)
	require.Len(t, page.Rows, 3)

	// Raw views keep the uploaded codes and order.
	assert.Equal(t, []string{"2024", "W01", "300"}, page.Rows[0])
}

func TestGetPreview_CollectsAllRequestViolations(t *testing.T) {
	e := newEnv(t, true)

	_, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 0, 0, core.Locale("fr"), false)
	require.NotNil(t, errResp)
	assert.Equal(t, 400, errResp.Status)
	require.Len(t, errResp.Errors, 3)

	assert.Equal(t, "locale", errResp.Errors[0].Field)
	assert.Equal(t, "preview.locale_unknown", errResp.Errors[0].Message.Key)
	assert.Equal(t, "page_size", errResp.Errors[1].Field)
	assert.Equal(t, "preview.page_size_out_of_range", errResp.Errors[1].Message.Key)
	assert.Equal(t, 1, errResp.Errors[1].Message.Params["min"])
	assert.Equal(t, 1000, errResp.Errors[1].Message.Params["max"])
	assert.Equal(t, "page_number", errResp.Errors[2].Field)
	assert.Equal(t, "preview.page_number_invalid", errResp.Errors[2].Message.Key)
	assert.Equal(t, 0, errResp.Errors[2].Message.Params["given"])

	// Both locales are rendered for every violation.
	require.Len(t, errResp.Errors[0].UserMessage, 2)
	assert.Equal(t, core.LocaleEnglish, errResp.Errors[0].UserMessage[0].Lang)
	assert.Equal(t, core.LocaleWelsh, errResp.Errors[0].UserMessage[1].Lang)
}

func TestGetPreview_PageNumberOutOfRange(t *testing.T) {
	e := newEnv(t, true)

	_, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 5, 2, core.LocaleEnglish, false)
	require.NotNil(t, errResp)
	assert.Equal(t, 400, errResp.Status)
	require.Len(t, errResp.Errors, 1)
	assert.Equal(t, "preview.page_number_out_of_range", errResp.Errors[0].Message.Key)
	assert.Equal(t, 2, errResp.Errors[0].Message.Params["max"])
	assert.Equal(t, 5, errResp.Errors[0].Message.Params["given"])
}

func TestGetPreview_CubeNotBuilt(t *testing.T) {
	e := newEnv(t, false)

	_, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 1, 10, core.LocaleEnglish, false)
	require.NotNil(t, errResp)
	assert.Equal(t, 404, errResp.Status)
	assert.Equal(t, "preview.cube_not_built", errResp.Errors[0].Message.Key)
}

func TestGetPreview_CustomPageSizeBounds(t *testing.T) {
	e := newEnv(t, true)
	e.svc.WithPageSizeBounds(1, 2)

	_, errResp := e.svc.GetPreview(context.Background(), e.rev.ID, 1, 3, core.LocaleEnglish, false)
	require.NotNil(t, errResp)
	assert.Equal(t, "preview.page_size_out_of_range", errResp.Errors[0].Message.Key)
	assert.Equal(t, 2, errResp.Errors[0].Message.Params["max"])
}
