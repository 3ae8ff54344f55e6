package cube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openstats-labs/statcube/internal/dateref"
	"github.com/openstats-labs/statcube/internal/resolver"
	"github.com/openstats-labs/statcube/internal/storage"
	"github.com/openstats-labs/statcube/pkg/core"
)

// insertBatchSize caps how many rows one INSERT statement carries.
const insertBatchSize = 500

// tsLayout renders timestamps as SQL literals.
const tsLayout = "2006-01-02 15:04:05"

// loadFact stages the revision's fact buffer into <schema>.fact.
func (b *Builder) loadFact(ctx context.Context, rev *core.Revision, schema string) error {
	data, err := storage.LoadWithRetry(ctx, b.buffers, rev.FactFile, rev.Directory)
	if err != nil {
		return err
	}
	return b.loadCSVBuffer(ctx, schema+"."+factTable, data)
}

// loadCSVBuffer writes a buffer to a temp file and bulk-loads it through the
// adapter. The adapter infers column types from the CSV.
func (b *Builder) loadCSVBuffer(ctx context.Context, table string, data []byte) error {
	tmp, err := os.CreateTemp("", "statcube-*.csv")
	if err != nil {
		return &core.StorageError{Op: "stage", Name: table, Err: err}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &core.StorageError{Op: "stage", Name: table, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &core.StorageError{Op: "stage", Name: table, Err: err}
	}

	if err := b.db.LoadCSV(ctx, table, tmp.Name()); err != nil {
		return &core.EngineError{Statement: "load csv into " + table, Err: err}
	}
	return nil
}

// buildDateRef generates and stages the date reference table for one
// date-period dimension from the codes observed in its fact column.
func (b *Builder) buildDateRef(ctx context.Context, schema string, d *core.Dimension, ext core.DatePeriodExtractor) error {
	codes, err := b.distinctCodes(ctx, schema, d.ColumnName)
	if err != nil {
		return err
	}

	rows, err := dateref.Generate(ext, codes)
	if err != nil {
		var cfgErr *core.ConfigurationError
		if errors.As(err, &cfgErr) {
			return &core.ConfigurationError{
				Message: cfgErr.Message,
				Key:     cfgErr.Key,
				Params:  mergeParams(cfgErr.Params, map[string]any{"column": d.ColumnName}),
			}
		}
		return fmt.Errorf("dimension %s: %w", d.ColumnName, err)
	}

	table := fmt.Sprintf("%s.%s", schema, resolver.DateRefTableName(d.ColumnIndex))
	create := fmt.Sprintf(
		`CREATE TABLE %s (date_code VARCHAR, start_ts TIMESTAMP, end_ts TIMESTAMP, period_type VARCHAR, parent_code VARCHAR)`,
		table)
	if err := b.exec(ctx, create); err != nil {
		return err
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		values := make([]string, 0, end-start)
		for _, r := range rows[start:end] {
			parent := "NULL"
			if r.ParentCode != "" {
				parent = quoteString(r.ParentCode)
			}
			values = append(values, fmt.Sprintf("(%s, '%s', '%s', %s, %s)",
				quoteString(r.DateCode),
				r.Start.UTC().Format(tsLayout),
				r.End.UTC().Format(tsLayout),
				quoteString(string(r.Type)),
				parent))
		}
		insert := fmt.Sprintf("INSERT INTO %s VALUES %s", table, strings.Join(values, ", "))
		if err := b.exec(ctx, insert); err != nil {
			return err
		}
	}
	return nil
}

// buildLookup stages an uploaded lookup buffer and normalizes it to the
// fixed support-table shape, whatever columns the upload used.
func (b *Builder) buildLookup(ctx context.Context, rev *core.Revision, schema string, d *core.Dimension, ext core.LookupTableExtractor) error {
	if d.LookupFile == "" {
		return &core.ValidationError{Fields: []core.FieldError{
			core.NewFieldError(b.translator, d.ColumnName, "lookup.shape_invalid", map[string]any{
				"column":  d.ColumnName,
				"columns": "uploaded lookup file",
			}),
		}}
	}

	data, err := storage.LoadWithRetry(ctx, b.buffers, d.LookupFile, rev.Directory)
	if err != nil {
		return err
	}

	table := resolver.LookupTableName(d.ColumnIndex)
	src := fmt.Sprintf("%s.%s_src", schema, table)
	if err := b.loadCSVBuffer(ctx, src, data); err != nil {
		return err
	}

	meta, err := b.db.GetTableMetadata(ctx, src)
	if err != nil {
		return &core.EngineError{Statement: "describe " + src, Err: err}
	}
	if err := b.validator.CheckLookupShape(meta, d.ColumnName, ext); err != nil {
		return err
	}

	actual := make(map[string]string, len(meta.Columns))
	for _, c := range meta.Columns {
		actual[strings.ToLower(c.Name)] = c.Name
	}

	// A configured column the upload does not carry is a shape error, not an
	// engine failure; collect every absent name before reporting.
	var absent []string
	seen := make(map[string]bool)
	col := func(name string) (string, bool) {
		if name == "" {
			return "", false
		}
		exact, ok := actual[strings.ToLower(name)]
		if !ok {
			if !seen[name] {
				seen[name] = true
				absent = append(absent, name)
			}
			return "", false
		}
		return quoteIdent(exact), true
	}

	joinCol, ok := col(ext.JoinColumn)
	if !ok {
		columns := "join_column"
		if len(absent) > 0 {
			columns = strings.Join(absent, ", ")
		}
		return &core.ValidationError{Fields: []core.FieldError{
			core.NewFieldError(b.translator, d.ColumnName, "lookup.shape_invalid", map[string]any{
				"column":  d.ColumnName,
				"columns": columns,
			}),
		}}
	}

	sortExpr := "CAST(NULL AS INTEGER)"
	if c, ok := col(ext.SortColumn); ok {
		sortExpr = c
	}

	selects := []string{
		fmt.Sprintf("CAST(%s AS VARCHAR) AS code", joinCol),
		sortExpr + " AS sort_order",
	}
	for _, l := range core.Locales() {
		desc, ok := col(ext.DescriptionColumns[l])
		if !ok {
			// Fall back to the English description, then to the code itself.
			if desc, ok = col(ext.DescriptionColumns[core.LocaleEnglish]); !ok {
				desc = joinCol
			}
		}
		selects = append(selects, fmt.Sprintf("CAST(%s AS VARCHAR) AS description_%s", desc, l))
	}
	for _, l := range core.Locales() {
		notesExpr := "CAST(NULL AS VARCHAR)"
		if c, ok := col(ext.NotesColumns[l]); ok {
			notesExpr = fmt.Sprintf("CAST(%s AS VARCHAR)", c)
		}
		selects = append(selects, fmt.Sprintf("%s AS notes_%s", notesExpr, l))
	}

	if len(absent) > 0 {
		return &core.ValidationError{Fields: []core.FieldError{
			core.NewFieldError(b.translator, d.ColumnName, "lookup.shape_invalid", map[string]any{
				"column":  d.ColumnName,
				"columns": strings.Join(absent, ", "),
			}),
		}}
	}

	ctas := fmt.Sprintf("CREATE TABLE %s.%s AS SELECT %s FROM %s",
		schema, table, strings.Join(selects, ", "), src)
	if err := b.exec(ctx, ctas); err != nil {
		return err
	}
	return b.exec(ctx, fmt.Sprintf("DROP TABLE %s", src))
}

// buildRefData filters the shared classification table down to the
// dimension's category keys.
func (b *Builder) buildRefData(ctx context.Context, schema string, d *core.Dimension, ext core.ReferenceDataExtractor) error {
	where := ""
	if len(ext.CategoryKeys) > 0 {
		keys := make([]string, len(ext.CategoryKeys))
		for i, k := range ext.CategoryKeys {
			keys[i] = quoteString(k)
		}
		where = fmt.Sprintf(" WHERE category_key IN (%s)", strings.Join(keys, ", "))
	}

	ctas := fmt.Sprintf(
		`CREATE TABLE %s.%s AS
		 SELECT CAST(code AS VARCHAR) AS code, sort_order, description_en, description_cy, notes_en, notes_cy
		 FROM %s.%s%s`,
		schema, resolver.RefDataTableName(d.ColumnIndex),
		b.refSchema, refDataTable, where)
	return b.exec(ctx, ctas)
}

// builtinNotes is the fixed note-code marker catalog expanded into footnote
// text by the default views.
var builtinNotes = []struct {
	code string
	en   string
	cy   string
}{
	{"a", "Average", "Cyfartaledd"},
	{"b", "Break in series", "Toriad yn y gyfres"},
	{"c", "Confidential", "Cyfrinachol"},
	{"e", "Estimated", "Amcangyfrifol"},
	{"f", "Forecast", "Rhagolwg"},
	{"p", "Provisional", "Dros dro"},
	{"r", "Revised", "Diwygiedig"},
	{"u", "Low reliability", "Dibynadwyedd isel"},
	{"x", "Not available", "Ddim ar gael"},
	{"z", "Not applicable", "Ddim yn berthnasol"},
}

// buildNoteRef stages the built-in note-code reference table.
func (b *Builder) buildNoteRef(ctx context.Context, schema string) error {
	table := schema + ".note_ref"
	create := fmt.Sprintf("CREATE TABLE %s (code VARCHAR, description_en VARCHAR, description_cy VARCHAR)", table)
	if err := b.exec(ctx, create); err != nil {
		return err
	}

	values := make([]string, len(builtinNotes))
	for i, n := range builtinNotes {
		values[i] = fmt.Sprintf("(%s, %s, %s)", quoteString(n.code), quoteString(n.en), quoteString(n.cy))
	}
	return b.exec(ctx, fmt.Sprintf("INSERT INTO %s VALUES %s", table, strings.Join(values, ", ")))
}

// distinctCodes reads the distinct non-null codes of one fact column, sorted
// so downstream generation is deterministic.
func (b *Builder) distinctCodes(ctx context.Context, schema, column string) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT CAST(%s.%s AS VARCHAR) AS v FROM %s.%s %s WHERE %s.%s IS NOT NULL ORDER BY v`,
		resolver.FactAlias, quoteIdent(column),
		schema, factTable, resolver.FactAlias,
		resolver.FactAlias, quoteIdent(column))

	rows, err := b.db.Query(ctx, query)
	if err != nil {
		return nil, &core.EngineError{Statement: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var codes []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, v)
	}
	return codes, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
