// Package preview pages through an assembled cube's views. Reads always go
// through the revision's serving cube pointer, so a build in progress never
// changes what a preview returns.
package preview

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openstats-labs/statcube/pkg/adapter"
	"github.com/openstats-labs/statcube/pkg/core"
)

// Default page size bounds; both are configuration-overridable.
const (
	DefaultMinPageSize = 1
	DefaultMaxPageSize = 1000
)

// notesSuffix marks the companion footnote columns emitted by default views.
const notesSuffix = "_notes"

// Service reads preview pages from assembled cubes.
type Service struct {
	db         adapter.Adapter
	store      core.Store
	translator core.Translator
	logger     *slog.Logger

	minPageSize int
	maxPageSize int
}

// New creates a preview Service with the default page size bounds.
// If logger is nil, a discard logger is used.
func New(db adapter.Adapter, store core.Store, translator core.Translator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		db:          db,
		store:       store,
		translator:  translator,
		logger:      logger,
		minPageSize: DefaultMinPageSize,
		maxPageSize: DefaultMaxPageSize,
	}
}

// WithPageSizeBounds overrides the allowed page size range.
func (s *Service) WithPageSizeBounds(minSize, maxSize int) *Service {
	s.minPageSize = minSize
	s.maxPageSize = maxSize
	return s
}

// GetPreview returns one page of a revision's cube. Raw selects the
// untransformed view instead of the locale-resolved one. Request-level
// violations are all collected into a single bilingual response before any
// row is read.
func (s *Service) GetPreview(ctx context.Context, revisionID string, pageNumber, pageSize int, locale core.Locale, raw bool) (*core.PreviewPage, *core.ErrorResponse) {
	var fieldErrs []core.FieldError
	if !locale.Valid() {
		fieldErrs = append(fieldErrs, core.NewFieldError(s.translator,
			"locale", "preview.locale_unknown", map[string]any{"given": string(locale)}))
	}
	if pageSize < s.minPageSize || pageSize > s.maxPageSize {
		fieldErrs = append(fieldErrs, core.NewFieldError(s.translator,
			"page_size", "preview.page_size_out_of_range", map[string]any{
				"min": s.minPageSize, "max": s.maxPageSize, "given": pageSize,
			}))
	}
	if pageNumber < 1 {
		fieldErrs = append(fieldErrs, core.NewFieldError(s.translator,
			"page_number", "preview.page_number_invalid", map[string]any{"given": pageNumber}))
	}
	if len(fieldErrs) > 0 {
		return nil, &core.ErrorResponse{Status: http.StatusBadRequest, Errors: fieldErrs}
	}

	cube, err := s.store.GetCube(revisionID)
	if err != nil {
		return nil, s.internal(revisionID, err)
	}
	if cube == nil {
		return nil, &core.ErrorResponse{
			Status: http.StatusNotFound,
			Errors: []core.FieldError{
				core.NewFieldError(s.translator, "revision", "preview.cube_not_built",
					map[string]any{"revision": revisionID}),
			},
		}
	}

	view := core.DefaultViewName(locale)
	if raw {
		view = core.RawViewName(locale)
	}

	total, err := s.countRows(ctx, cube.SchemaName, view)
	if err != nil {
		return nil, s.internal(revisionID, err)
	}

	// The lower bound was checked before any query; the upper bound needs
	// the row count.
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages > 0 && pageNumber > totalPages {
		return nil, &core.ErrorResponse{
			Status: http.StatusBadRequest,
			Errors: []core.FieldError{
				core.NewFieldError(s.translator, "page_number", "preview.page_number_out_of_range",
					map[string]any{"max": totalPages, "given": pageNumber}),
			},
		}
	}

	headers, pageRows, err := s.readPage(ctx, revisionID, cube.SchemaName, view, pageNumber, pageSize)
	if err != nil {
		return nil, s.internal(revisionID, err)
	}

	return &core.PreviewPage{
		RevisionID: revisionID,
		Locale:     locale,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalRows:  total,
		TotalPages: totalPages,
		Headers:    headers,
		Rows:       pageRows,
	}, nil
}

// countRows counts the view's rows for page arithmetic.
func (s *Service) countRows(ctx context.Context, schema, view string) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", schema, view)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return 0, &core.EngineError{Statement: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var total int
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("failed to scan row count: %w", err)
		}
	}
	return total, rows.Err()
}

// readPage reads one page of the view and derives the column headers from
// the result shape and the revision's dimension metadata.
func (s *Service) readPage(ctx context.Context, revisionID, schema, view string, pageNumber, pageSize int) ([]core.ColumnHeader, [][]string, error) {
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d OFFSET %d",
		schema, view, pageSize, (pageNumber-1)*pageSize)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, nil, &core.EngineError{Statement: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}

	dims, err := s.store.GetDimensions(revisionID)
	if err != nil {
		return nil, nil, err
	}
	roleByName := make(map[string]core.ColumnRole, len(dims))
	for _, d := range dims {
		roleByName[d.ColumnName] = d.Role
	}

	headers := make([]core.ColumnHeader, len(names))
	for i, name := range names {
		sourceType := string(roleByName[name])
		if sourceType == "" && strings.HasSuffix(name, notesSuffix) {
			sourceType = "notes"
		}
		headers[i] = core.ColumnHeader{Index: i, Name: name, SourceType: sourceType}
	}

	var out [][]string
	for rows.Next() {
		cells := make([]sql.NullString, len(names))
		dests := make([]any, len(names))
		for i := range cells {
			dests[i] = &cells[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan preview row: %w", err)
		}

		row := make([]string, len(names))
		for i, c := range cells {
			row[i] = c.String
		}
		out = append(out, row)
	}
	return headers, out, rows.Err()
}

// internal wraps engine and metadata failures into a generic localized
// response; the underlying statement is only logged.
func (s *Service) internal(revisionID string, err error) *core.ErrorResponse {
	if engineErr, ok := err.(*core.EngineError); ok {
		s.logger.Error("preview statement failed", "revision", revisionID,
			"error", engineErr.Err, "statement", engineErr.Statement)
	} else {
		s.logger.Error("preview failed", "revision", revisionID, "error", err)
	}
	return &core.ErrorResponse{
		Status: http.StatusInternalServerError,
		Errors: []core.FieldError{
			core.NewFieldError(s.translator, "preview", "preview.engine_failure", nil),
		},
	}
}
