// Package cube assembles revision cubes: it stages the fact table and every
// dimension's support table in a fresh schema, validates coverage, creates
// the bilingual views, and atomically swaps the revision's serving pointer.
// A failed build never touches the previously serving cube.
package cube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openstats-labs/statcube/internal/resolver"
	"github.com/openstats-labs/statcube/internal/storage"
	"github.com/openstats-labs/statcube/internal/validator"
	"github.com/openstats-labs/statcube/pkg/adapter"
	"github.com/openstats-labs/statcube/pkg/core"
)

// factTable is the staged fact table name inside every cube schema.
const factTable = "fact"

// DefaultRefDataSchema is the shared schema holding reference-data
// classifications, outside any cube schema.
const DefaultRefDataSchema = "refdata"

// refDataTable is the classification table inside the reference-data schema.
const refDataTable = "reference_data"

// Builder assembles cubes for revisions. Builds for the same revision are
// serialized by a per-revision lock; a concurrent duplicate is rejected
// rather than queued.
type Builder struct {
	db         adapter.Adapter
	store      core.Store
	buffers    storage.BufferStore
	translator core.Translator
	logger     *slog.Logger

	resolver  *resolver.Resolver
	validator *validator.Validator
	refSchema string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Builder. If logger is nil, a discard logger is used.
func New(db adapter.Adapter, store core.Store, buffers storage.BufferStore, translator core.Translator, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		db:         db,
		store:      store,
		buffers:    buffers,
		translator: translator,
		logger:     logger,
		resolver:   resolver.New(translator),
		validator:  validator.New(db, translator, logger),
		refSchema:  DefaultRefDataSchema,
		locks:      make(map[string]*sync.Mutex),
	}
}

// WithRefDataSchema overrides the shared reference-data schema name.
func (b *Builder) WithRefDataSchema(name string) *Builder {
	b.refSchema = name
	return b
}

// Build assembles the cube for a revision and returns the outcome. Failures
// are carried in the result rather than returned: the caller always gets a
// reportable BuildResult and any previously built cube keeps serving.
func (b *Builder) Build(ctx context.Context, revisionID string) core.BuildResult {
	lock := b.lockFor(revisionID)
	if !lock.TryLock() {
		return core.BuildResult{
			RevisionID: revisionID,
			Status:     core.BuildStatusRejected,
			Errors: &core.ErrorResponse{
				Status: http.StatusConflict,
				Errors: []core.FieldError{
					core.NewFieldError(b.translator, "revision", "build.in_progress", nil),
				},
			},
		}
	}
	defer lock.Unlock()

	rev, err := b.store.GetRevision(revisionID)
	if errors.Is(err, core.ErrNotFound) {
		return core.BuildResult{
			RevisionID: revisionID,
			Status:     core.BuildStatusFailed,
			Errors: &core.ErrorResponse{
				Status: http.StatusNotFound,
				Errors: []core.FieldError{
					core.NewFieldError(b.translator, "revision", "build.revision_not_found",
						map[string]any{"revision": revisionID}),
				},
			},
		}
	}
	if err != nil {
		return b.failedResult(revisionID, "", "", err)
	}

	build := &core.Build{RevisionID: revisionID}
	if err := b.store.CreateBuild(build); err != nil {
		return b.failedResult(revisionID, rev.DatasetID, "", err)
	}

	schema := stagingSchemaName(revisionID)
	b.logger.Info("building cube", "revision", revisionID, "schema", schema)

	warnings, err := b.assemble(ctx, rev, schema)
	if err != nil {
		b.dropSchema(ctx, schema)
		_ = b.store.CompleteBuild(build.ID, core.BuildStatusFailed, err.Error())
		result := b.failedResult(revisionID, rev.DatasetID, build.ID, err)
		result.Warnings = warnings
		return result
	}

	builtAt := time.Now().UTC()
	previous, err := b.store.SwapCube(revisionID, schema, builtAt)
	if err != nil {
		b.dropSchema(ctx, schema)
		_ = b.store.CompleteBuild(build.ID, core.BuildStatusFailed, err.Error())
		return b.failedResult(revisionID, rev.DatasetID, build.ID, err)
	}
	if previous != "" {
		b.dropSchema(ctx, previous)
	}

	_ = b.store.CompleteBuild(build.ID, core.BuildStatusCompleted, "")
	b.logger.Info("cube built", "revision", revisionID, "schema", schema, "warnings", len(warnings))

	return core.BuildResult{
		BuildID:    build.ID,
		RevisionID: revisionID,
		Status:     core.BuildStatusCompleted,
		SchemaName: schema,
		BuiltAt:    &builtAt,
		Warnings:   warnings,
	}
}

// Teardown drops a revision's serving cube and clears its pointer. Called on
// revision deletion.
func (b *Builder) Teardown(ctx context.Context, revisionID string) error {
	lock := b.lockFor(revisionID)
	lock.Lock()
	defer lock.Unlock()

	schema, err := b.store.DeleteCube(revisionID)
	if err != nil {
		return err
	}
	if schema != "" {
		b.dropSchema(ctx, schema)
	}
	return nil
}

// assemble runs the staging pipeline: fact load, support tables, coverage
// validation, views. The staging schema is dropped by the caller on failure.
func (b *Builder) assemble(ctx context.Context, rev *core.Revision, schema string) ([]string, error) {
	dims, err := b.store.GetDimensions(rev.ID)
	if err != nil {
		return nil, err
	}

	plan, err := b.resolver.Resolve(dims)
	if err != nil {
		return nil, err
	}

	if err := b.exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
		return nil, err
	}

	if err := b.loadFact(ctx, rev, schema); err != nil {
		return nil, err
	}

	for _, d := range dims {
		if d.Role != core.RoleDimension {
			continue
		}
		ext, err := core.UnmarshalExtractor(d.ExtractorJSON)
		if err != nil {
			return nil, fmt.Errorf("dimension %s: %w", d.ColumnName, err)
		}

		switch v := ext.(type) {
		case core.DatePeriodExtractor:
			err = b.buildDateRef(ctx, schema, d, v)
		case core.LookupTableExtractor:
			err = b.buildLookup(ctx, rev, schema, d, v)
		case core.ReferenceDataExtractor:
			err = b.buildRefData(ctx, schema, d, v)
		}
		if err != nil {
			return nil, err
		}
	}

	if plan.NoteCodes != nil {
		if err := b.buildNoteRef(ctx, schema); err != nil {
			return nil, err
		}
	}

	warnings, err := b.validator.Check(ctx, schema, factTable, plan.Contracts)
	if err != nil {
		return warnings, err
	}

	for _, stmt := range viewStatements(schema, plan, b.db.DialectName()) {
		if err := b.exec(ctx, stmt); err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// lockFor returns the build lock for a revision, creating it on first use.
func (b *Builder) lockFor(revisionID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[revisionID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[revisionID] = l
	}
	return l
}

// failedResult classifies an error into a bilingual failed BuildResult.
// Validation and configuration problems surface their field detail; storage
// and engine failures surface only a generic localized message.
func (b *Builder) failedResult(revisionID, datasetID, buildID string, err error) core.BuildResult {
	result := core.BuildResult{
		BuildID:    buildID,
		RevisionID: revisionID,
		Status:     core.BuildStatusFailed,
	}

	var vErr *core.ValidationError
	var cErr *core.ConfigurationError
	var sErr *core.StorageError
	var eErr *core.EngineError

	switch {
	case errors.As(err, &vErr):
		result.Errors = &core.ErrorResponse{
			Status:    http.StatusBadRequest,
			DatasetID: datasetID,
			Errors:    vErr.Fields,
		}
	case errors.As(err, &cErr):
		result.Errors = &core.ErrorResponse{
			Status:    http.StatusBadRequest,
			DatasetID: datasetID,
			Errors: []core.FieldError{
				core.NewFieldError(b.translator, "config", cErr.Key,
					mergeParams(cErr.Params, map[string]any{"message": cErr.Message})),
			},
		}
	case errors.As(err, &sErr):
		b.logger.Error("buffer storage failed", "revision", revisionID, "op", sErr.Op, "name", sErr.Name, "error", sErr.Err)
		result.Errors = &core.ErrorResponse{
			Status:    http.StatusInternalServerError,
			DatasetID: datasetID,
			Errors: []core.FieldError{
				core.NewFieldError(b.translator, "storage", "build.storage_failure", nil),
			},
		}
	case errors.As(err, &eErr):
		b.logger.Error("engine statement failed", "revision", revisionID, "error", eErr.Err, "statement", eErr.Statement)
		result.Errors = &core.ErrorResponse{
			Status:    http.StatusInternalServerError,
			DatasetID: datasetID,
			Errors: []core.FieldError{
				core.NewFieldError(b.translator, "engine", "build.engine_failure", nil),
			},
		}
	default:
		b.logger.Error("build failed", "revision", revisionID, "error", err)
		result.Errors = &core.ErrorResponse{
			Status:    http.StatusInternalServerError,
			DatasetID: datasetID,
			Errors: []core.FieldError{
				core.NewFieldError(b.translator, "build", "build.engine_failure", nil),
			},
		}
	}
	return result
}

// exec runs a statement and classifies failures as engine errors so the raw
// SQL is logged but never surfaced.
func (b *Builder) exec(ctx context.Context, stmt string) error {
	if err := b.db.Exec(ctx, stmt); err != nil {
		return &core.EngineError{Statement: stmt, Err: err}
	}
	return nil
}

// dropSchema removes a staging or superseded schema. Failures are logged and
// otherwise ignored; an orphaned schema is never serving.
func (b *Builder) dropSchema(ctx context.Context, schema string) {
	stmt := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)
	if err := b.db.Exec(ctx, stmt); err != nil {
		b.logger.Warn("failed to drop schema", "schema", schema, "error", err)
	}
}

// stagingSchemaName generates a fresh schema name for one build attempt.
// Uniqueness per attempt means a failed build never collides with the
// serving schema or a concurrent attempt for another revision.
func stagingSchemaName(revisionID string) string {
	return fmt.Sprintf("c%s_s%s", sanitizeIdent(revisionID), uuid.New().String()[:8])
}

// sanitizeIdent reduces an identifier fragment to lowercase alphanumerics.
func sanitizeIdent(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func mergeParams(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
