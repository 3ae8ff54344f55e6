// Package validator checks that the observed codes of every joined dimension
// are fully covered by its support table before any view is built. Missing
// coverage is fatal; support keys never observed in the fact table are only
// a warning.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openstats-labs/statcube/internal/resolver"
	"github.com/openstats-labs/statcube/pkg/adapter"
	"github.com/openstats-labs/statcube/pkg/core"
)

// maxListedValues caps how many offending values one field error lists.
const maxListedValues = 50

// Validator runs coverage checks against a loaded staging schema.
type Validator struct {
	db         adapter.Adapter
	translator core.Translator
	logger     *slog.Logger
}

// New creates a Validator. If logger is nil, a discard logger is used.
func New(db adapter.Adapter, translator core.Translator, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{db: db, translator: translator, logger: logger}
}

// Check verifies coverage for every joined contract in the staging schema.
// All unmatched dimensions are collected into a single ValidationError so the
// editor sees every problem at once. Returned warnings describe unused
// support keys.
func (v *Validator) Check(ctx context.Context, schema, factTable string, contracts []resolver.JoinContract) ([]string, error) {
	var warnings []string
	var fieldErrs []core.FieldError

	for _, c := range contracts {
		if !c.HasJoin() {
			continue
		}

		missing, err := v.missingValues(ctx, schema, factTable, c)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			listed := missing
			if len(listed) > maxListedValues {
				listed = listed[:maxListedValues]
			}
			fieldErrs = append(fieldErrs, core.NewFieldError(v.translator,
				c.Column.Name, "lookup.unmatched_values", map[string]any{
					"column": c.Column.Name,
					"values": strings.Join(listed, ", "),
				}))
			continue
		}

		unused, err := v.unusedKeyCount(ctx, schema, factTable, c)
		if err != nil {
			return nil, err
		}
		if unused > 0 {
			v.logger.Warn("support table has unused keys",
				"column", c.Column.Name, "table", c.SupportTable, "count", unused)
			warnings = append(warnings,
				fmt.Sprintf("column %s: %d lookup entries are never used by the fact table", c.Column.Name, unused))
		}
	}

	if len(fieldErrs) > 0 {
		return warnings, &core.ValidationError{Fields: fieldErrs}
	}
	return warnings, nil
}

// CheckLookupShape verifies that a legacy-format uploaded lookup table
// actually contains the configured sort, notes and description columns.
// Runs before value matching.
func (v *Validator) CheckLookupShape(meta *adapter.Metadata, column string, ext core.LookupTableExtractor) error {
	if !ext.IsLegacyFormat {
		return nil
	}

	present := make(map[string]bool, len(meta.Columns))
	for _, c := range meta.Columns {
		present[strings.ToLower(c.Name)] = true
	}

	required := []string{ext.JoinColumn, ext.SortColumn}
	for _, l := range core.Locales() {
		required = append(required, ext.DescriptionColumns[l], ext.NotesColumns[l])
	}

	var missing []string
	for _, name := range required {
		if name == "" || !present[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return &core.ValidationError{Fields: []core.FieldError{
			core.NewFieldError(v.translator, column, "lookup.shape_invalid", map[string]any{
				"column":  column,
				"columns": strings.Join(missing, ", "),
			}),
		}}
	}
	return nil
}

// missingValues returns fact codes with no support-table entry, sorted.
func (v *Validator) missingValues(ctx context.Context, schema, factTable string, c resolver.JoinContract) ([]string, error) {
	joinCol := "code"
	if c.Kind == core.KindDatePeriod {
		joinCol = "date_code"
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT CAST(%s.%s AS VARCHAR) AS v
		FROM %s.%s %s
		LEFT JOIN %s.%s %s ON %s
		WHERE %s.%s IS NULL AND %s.%s IS NOT NULL
		ORDER BY v`,
		resolver.FactAlias, quoteIdent(c.Column.Name),
		schema, factTable, resolver.FactAlias,
		schema, c.SupportTable, c.Alias, joinCondition(c, joinCol),
		c.Alias, joinCol, resolver.FactAlias, quoteIdent(c.Column.Name))

	return v.queryStrings(ctx, query)
}

// unusedKeyCount counts support keys never observed in the fact column.
func (v *Validator) unusedKeyCount(ctx context.Context, schema, factTable string, c resolver.JoinContract) (int64, error) {
	joinCol := "code"
	if c.Kind == core.KindDatePeriod {
		joinCol = "date_code"
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s.%s s
		WHERE s.%s NOT IN (
			SELECT DISTINCT CAST(%s AS VARCHAR) FROM %s.%s WHERE %s IS NOT NULL
		)`,
		schema, c.SupportTable,
		joinCol,
		quoteIdent(c.Column.Name), schema, factTable, quoteIdent(c.Column.Name))

	rows, err := v.db.Query(ctx, query)
	if err != nil {
		return 0, &core.EngineError{Statement: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to scan unused key count: %w", err)
		}
	}
	return count, rows.Err()
}

func (v *Validator) queryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := v.db.Query(ctx, query)
	if err != nil {
		return nil, &core.EngineError{Statement: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// joinCondition matches the fact column against the support key as text, so
// numeric fact columns still compare against normalized VARCHAR keys.
func joinCondition(c resolver.JoinContract, joinCol string) string {
	return fmt.Sprintf("CAST(%s.%s AS VARCHAR) = %s.%s",
		resolver.FactAlias, quoteIdent(c.Column.Name), c.Alias, joinCol)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
