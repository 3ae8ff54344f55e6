package cube

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openstats-labs/statcube/internal/resolver"
	"github.com/openstats-labs/statcube/pkg/core"
)

// dialectPostgres selects the postgres renditions of the few expressions
// where the analytical targets diverge. Everything else the assembler emits
// is common SQL.
const dialectPostgres = "postgres"

// viewStatements renders the four view DDL statements for a cube schema.
// Contracts are already in column order and every expression is derived from
// them, so unchanged inputs produce byte-identical DDL.
func viewStatements(schema string, plan *resolver.Plan, dialect string) []string {
	stmts := make([]string, 0, 2*len(core.Locales()))
	for _, l := range core.Locales() {
		stmts = append(stmts, rawViewSQL(schema, l))
	}
	for _, l := range core.Locales() {
		stmts = append(stmts, defaultViewSQL(schema, l, plan, dialect))
	}
	return stmts
}

// rawViewSQL exposes the staged fact table untransformed. Both locales get
// the same shape; raw views exist so editors can inspect exactly what was
// uploaded.
func rawViewSQL(schema string, l core.Locale) string {
	return fmt.Sprintf("CREATE VIEW %s.%s AS SELECT %s.* FROM %s.%s %s",
		schema, core.RawViewName(l),
		resolver.FactAlias, schema, factTable, resolver.FactAlias)
}

// defaultViewSQL renders the locale-resolved view: display text per
// dimension, the measure formatting rule applied to observed values, and
// note codes expanded to footnote text. Columns keep the fact table's order;
// dimensions carrying notes gain a trailing companion column.
func defaultViewSQL(schema string, l core.Locale, plan *resolver.Plan, dialect string) string {
	type column struct {
		index int
		exprs []string
	}
	var columns []column

	for _, c := range plan.Contracts {
		exprs := []string{c.DisplayExpr[l] + " AS " + quoteIdent(c.Column.Name)}
		if c.NotesExpr != nil {
			exprs = append(exprs, c.NotesExpr[l]+" AS "+quoteIdent(c.Column.Name+"_notes"))
		}
		columns = append(columns, column{c.Column.Index, exprs})
	}

	columns = append(columns, column{
		index: plan.DataValues.Index,
		exprs: []string{dataValuesExpr(plan, dialect) + " AS " + quoteIdent(plan.DataValues.Name)},
	})
	if plan.NoteCodes != nil {
		columns = append(columns, column{
			index: plan.NoteCodes.Index,
			exprs: []string{noteCodesExpr(schema, l, *plan.NoteCodes, dialect) + " AS " + quoteIdent(plan.NoteCodes.Name)},
		})
	}
	if plan.Measure != nil {
		columns = append(columns, column{
			index: plan.Measure.Index,
			exprs: []string{factColumnRef(plan.Measure.Name) + " AS " + quoteIdent(plan.Measure.Name)},
		})
	}

	sort.Slice(columns, func(i, j int) bool { return columns[i].index < columns[j].index })

	var selects []string
	for _, c := range columns {
		selects = append(selects, c.exprs...)
	}

	from := []string{fmt.Sprintf("FROM %s.%s %s", schema, factTable, resolver.FactAlias)}
	var orderBy []string
	for _, c := range plan.Contracts {
		if c.HasJoin() {
			from = append(from, c.JoinClause(schema))
		}
		if c.SortExpr != "" {
			orderBy = append(orderBy, c.SortExpr)
		}
	}

	stmt := fmt.Sprintf("CREATE VIEW %s.%s AS\nSELECT %s\n%s",
		schema, core.DefaultViewName(l),
		strings.Join(selects, ",\n       "),
		strings.Join(from, "\n"))
	if len(orderBy) > 0 {
		stmt += "\nORDER BY " + strings.Join(orderBy, ", ")
	}
	return stmt
}

// dataValuesExpr applies the measure's decimal rule to the observed values
// column; without a rule the raw value passes through.
func dataValuesExpr(plan *resolver.Plan, dialect string) string {
	ref := factColumnRef(plan.DataValues.Name)
	if plan.MeasureDecimals < 0 {
		return ref
	}
	if dialect == dialectPostgres {
		return fmt.Sprintf("to_char(CAST(%s AS numeric), '%s')", ref, pgDecimalFormat(plan.MeasureDecimals))
	}
	return fmt.Sprintf("printf('%%.%df', CAST(%s AS DOUBLE))", plan.MeasureDecimals, ref)
}

// pgDecimalFormat builds a to_char picture with a fixed number of decimal
// places and no padding.
func pgDecimalFormat(decimals int) string {
	picture := "FM999999999999990"
	if decimals > 0 {
		picture += "." + strings.Repeat("0", decimals)
	}
	return picture
}

// noteCodesExpr expands a comma-separated note-code list to localized
// footnote text, joined with semicolons in code order.
func noteCodesExpr(schema string, l core.Locale, col core.FactColumn, dialect string) string {
	ref := factColumnRef(col.Name)
	if dialect == dialectPostgres {
		return fmt.Sprintf(
			`(SELECT string_agg(n.description_%s, '; ' ORDER BY n.code) FROM %s.note_ref n `+
				`WHERE n.code = ANY(string_to_array(replace(CAST(%s AS VARCHAR), ' ', ''), ',')))`,
			l, schema, ref)
	}
	return fmt.Sprintf(
		`(SELECT string_agg(n.description_%s, '; ' ORDER BY n.code) FROM %s.note_ref n `+
			`WHERE list_contains(string_split(replace(CAST(%s AS VARCHAR), ' ', ''), ','), n.code))`,
		l, schema, ref)
}

func factColumnRef(name string) string {
	return resolver.FactAlias + "." + quoteIdent(name)
}
