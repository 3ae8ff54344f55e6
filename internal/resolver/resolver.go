// Package resolver classifies fact-table columns and turns per-column
// extractor configuration into join contracts: which support table a
// dimension joins to, on which column, and which expressions produce its
// localized display and notes text.
//
// Support tables are normalized by the assembler to fixed column names
// (code, sort_order, description_<locale>, notes_<locale>; date reference
// tables use date_code, start_ts, end_ts, period_type, parent_code), so
// contracts never depend on the shape of uploaded files.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openstats-labs/statcube/pkg/core"
)

// FactAlias is the alias of the fact table in generated view SQL.
const FactAlias = "f"

// JoinContract is the resolved join strategy for one fact-table column.
type JoinContract struct {
	Column core.FactColumn
	Kind   core.ExtractorKind

	// SupportTable is the bare support table name inside the cube schema;
	// empty for pass-through dimensions.
	SupportTable string

	// Alias is the deterministic alias for the support table in view SQL.
	Alias string

	// DisplayExpr is the SQL expression producing the localized display
	// value for the dimension.
	DisplayExpr map[core.Locale]string

	// NotesExpr produces localized footnote text; nil when the dimension
	// carries no notes.
	NotesExpr map[core.Locale]string

	// SortExpr orders the dimension in default views; empty for none.
	SortExpr string
}

// HasJoin reports whether the contract requires a support table join.
func (c JoinContract) HasJoin() bool { return c.SupportTable != "" }

// JoinClause renders the LEFT JOIN for the contract within a cube schema.
// Coverage is validated before any view is built, so the left join never
// manufactures or drops fact rows. The fact column is compared as text with
// the same cast the coverage check uses; support keys are VARCHAR while the
// fact column's inferred type depends on the upload.
func (c JoinContract) JoinClause(schema string) string {
	if !c.HasJoin() {
		return ""
	}
	joinCol := "code"
	if c.Kind == core.KindDatePeriod {
		joinCol = "date_code"
	}
	return fmt.Sprintf("LEFT JOIN %s.%s %s ON CAST(%s.%s AS VARCHAR) = %s.%s",
		schema, c.SupportTable, c.Alias,
		FactAlias, quoteIdent(c.Column.Name), c.Alias, joinCol)
}

// Plan is the full resolution of a revision's fact table.
type Plan struct {
	// Contracts holds one contract per dimension column, in column order.
	Contracts []JoinContract

	// DataValues is the single observed-values column.
	DataValues core.FactColumn

	// NoteCodes is the optional note-codes column.
	NoteCodes *core.FactColumn

	// Measure is the optional measure column.
	Measure *core.FactColumn

	// MeasureDecimals is the measure's declared decimal rule; -1 when no
	// measure column declares one.
	MeasureDecimals int
}

// Resolver resolves dimension configuration into join contracts.
type Resolver struct {
	translator core.Translator
}

// New creates a Resolver. The translator renders bilingual classification
// errors.
func New(translator core.Translator) *Resolver {
	return &Resolver{translator: translator}
}

// Resolve validates column cardinality and produces the join plan for a
// revision's dimensions. Dimensions are processed in column order so the
// generated plan, and therefore the generated SQL, is deterministic.
func (r *Resolver) Resolve(dims []*core.Dimension) (*Plan, error) {
	ordered := make([]*core.Dimension, len(dims))
	copy(ordered, dims)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ColumnIndex < ordered[j].ColumnIndex })

	plan, err := r.classify(ordered)
	if err != nil {
		return nil, err
	}

	for _, d := range ordered {
		if d.Role != core.RoleDimension {
			continue
		}

		ext, err := core.UnmarshalExtractor(d.ExtractorJSON)
		if err != nil {
			return nil, fmt.Errorf("dimension %s: %w", d.ColumnName, err)
		}

		contract, err := r.resolveDimension(d, ext)
		if err != nil {
			return nil, err
		}
		plan.Contracts = append(plan.Contracts, contract)
	}

	return plan, nil
}

// classify enforces the closed-cardinality rules: exactly one DataValues,
// at most one NoteCodes, at most one Measure.
func (r *Resolver) classify(dims []*core.Dimension) (*Plan, error) {
	plan := &Plan{MeasureDecimals: -1}

	var fieldErrs []core.FieldError
	dataValues := 0
	for _, d := range dims {
		col := d.FactColumn()
		switch d.Role {
		case core.RoleDataValues:
			dataValues++
			if dataValues > 1 {
				fieldErrs = append(fieldErrs, core.NewFieldError(r.translator,
					d.ColumnName, "classification.data_values_multiple", nil))
				continue
			}
			plan.DataValues = col
		case core.RoleNoteCodes:
			if plan.NoteCodes != nil {
				fieldErrs = append(fieldErrs, core.NewFieldError(r.translator,
					d.ColumnName, "classification.note_codes_multiple", nil))
				continue
			}
			c := col
			plan.NoteCodes = &c
		case core.RoleMeasure:
			if plan.Measure != nil {
				fieldErrs = append(fieldErrs, core.NewFieldError(r.translator,
					d.ColumnName, "classification.measure_multiple", nil))
				continue
			}
			c := col
			plan.Measure = &c
			if len(d.ExtractorJSON) > 0 {
				ext, err := core.UnmarshalExtractor(d.ExtractorJSON)
				if err != nil {
					return nil, fmt.Errorf("measure %s: %w", d.ColumnName, err)
				}
				if m, ok := ext.(core.MeasureExtractor); ok {
					plan.MeasureDecimals = m.DecimalPlaces
				}
			}
		}
	}

	if dataValues == 0 {
		fieldErrs = append(fieldErrs, core.NewFieldError(r.translator,
			"data_values", "classification.data_values_missing", nil))
	}

	if len(fieldErrs) > 0 {
		return nil, &core.ValidationError{Fields: fieldErrs}
	}
	return plan, nil
}

// resolveDimension maps one dimension column to its join contract. The
// switch covers every extractor kind; the union is sealed in pkg/core.
func (r *Resolver) resolveDimension(d *core.Dimension, ext core.DimensionExtractor) (JoinContract, error) {
	col := d.FactColumn()
	alias := fmt.Sprintf("d%d", d.ColumnIndex)
	passthrough := fmt.Sprintf("%s.%s", FactAlias, quoteIdent(d.ColumnName))

	switch v := ext.(type) {
	case core.RawExtractor, core.TextExtractor, core.NumericExtractor:
		return JoinContract{
			Column:      col,
			Kind:        ext.Kind(),
			DisplayExpr: sameForAllLocales(passthrough),
		}, nil

	case core.DatePeriodExtractor:
		return JoinContract{
			Column:       col,
			Kind:         core.KindDatePeriod,
			SupportTable: DateRefTableName(d.ColumnIndex),
			Alias:        alias,
			DisplayExpr:  sameForAllLocales(alias + ".date_code"),
			SortExpr:     alias + ".start_ts",
		}, nil

	case core.LookupTableExtractor:
		if err := r.checkLookupConfig(d.ColumnName, v); err != nil {
			return JoinContract{}, err
		}
		contract := JoinContract{
			Column:       col,
			Kind:         core.KindLookupTable,
			SupportTable: LookupTableName(d.ColumnIndex),
			Alias:        alias,
			DisplayExpr:  perLocale(alias, "description"),
			SortExpr:     alias + ".sort_order",
		}
		if v.IsLegacyFormat || len(v.NotesColumns) > 0 {
			contract.NotesExpr = perLocale(alias, "notes")
		}
		return contract, nil

	case core.ReferenceDataExtractor:
		return JoinContract{
			Column:       col,
			Kind:         core.KindReferenceData,
			SupportTable: RefDataTableName(d.ColumnIndex),
			Alias:        alias,
			DisplayExpr:  perLocale(alias, "description"),
			NotesExpr:    perLocale(alias, "notes"),
			SortExpr:     alias + ".sort_order",
		}, nil

	case core.NoteCodesExtractor, core.MeasureExtractor:
		return JoinContract{}, fmt.Errorf("column %s: extractor %s is not valid for a dimension column",
			d.ColumnName, ext.Kind())

	default:
		return JoinContract{}, fmt.Errorf("column %s: unknown extractor kind %s", d.ColumnName, ext.Kind())
	}
}

// checkLookupConfig enforces the legacy lookup shape: sort, notes and
// description columns must all be configured for every locale.
func (r *Resolver) checkLookupConfig(column string, ext core.LookupTableExtractor) error {
	if ext.JoinColumn == "" {
		return &core.ValidationError{Fields: []core.FieldError{
			core.NewFieldError(r.translator, column, "lookup.shape_invalid",
				map[string]any{"column": column, "columns": "join_column"}),
		}}
	}

	if !ext.IsLegacyFormat {
		return nil
	}

	var missing []string
	if ext.SortColumn == "" {
		missing = append(missing, "sort")
	}
	for _, l := range core.Locales() {
		if ext.DescriptionColumns[l] == "" {
			missing = append(missing, "description_"+string(l))
		}
		if ext.NotesColumns[l] == "" {
			missing = append(missing, "notes_"+string(l))
		}
	}

	if len(missing) > 0 {
		return &core.ValidationError{Fields: []core.FieldError{
			core.NewFieldError(r.translator, column, "lookup.shape_invalid",
				map[string]any{"column": column, "columns": strings.Join(missing, ", ")}),
		}}
	}
	return nil
}

// DateRefTableName is the support table for a date-period dimension.
func DateRefTableName(columnIndex int) string { return fmt.Sprintf("ref_c%d", columnIndex) }

// LookupTableName is the normalized support table for a lookup dimension.
func LookupTableName(columnIndex int) string { return fmt.Sprintf("lu_c%d", columnIndex) }

// RefDataTableName is the filtered support table for a reference-data
// dimension.
func RefDataTableName(columnIndex int) string { return fmt.Sprintf("rd_c%d", columnIndex) }

func sameForAllLocales(expr string) map[core.Locale]string {
	out := make(map[core.Locale]string, len(core.Locales()))
	for _, l := range core.Locales() {
		out[l] = expr
	}
	return out
}

func perLocale(alias, column string) map[core.Locale]string {
	out := make(map[core.Locale]string, len(core.Locales()))
	for _, l := range core.Locales() {
		out[l] = fmt.Sprintf("%s.%s_%s", alias, column, l)
	}
	return out
}

// quoteIdent quotes a fact-table column name for SQL. Uploaded column names
// may contain spaces or mixed case.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
