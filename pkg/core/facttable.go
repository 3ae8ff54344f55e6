package core

// ColumnRole classifies a fact-table column.
type ColumnRole string

const (
	// RoleDimension marks a column resolved against a lookup or reference axis.
	RoleDimension ColumnRole = "dimension"

	// RoleDataValues marks the single observed-values column.
	RoleDataValues ColumnRole = "data_values"

	// RoleNoteCodes marks the optional note-codes column.
	RoleNoteCodes ColumnRole = "note_codes"

	// RoleMeasure marks the optional measure column.
	RoleMeasure ColumnRole = "measure"

	// RoleIgnored marks a column excluded from the cube.
	RoleIgnored ColumnRole = "ignored"
)

// FactColumn describes one column of the uploaded fact table.
type FactColumn struct {
	Name     string     `json:"name"`
	Index    int        `json:"index"`
	Datatype string     `json:"datatype"`
	Role     ColumnRole `json:"role"`
}
