package core

import (
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) by Store lookups when the requested
// entity does not exist.
var ErrNotFound = errors.New("not found")

// Dataset is one published dataset.
type Dataset struct {
	ID        string            `json:"id"`
	Title     map[Locale]string `json:"title"`
	CreatedAt time.Time         `json:"created_at"`
}

// Revision is one versioned edition of a dataset: a fact-table buffer plus
// dimension configuration.
type Revision struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"dataset_id"`
	Index     int       `json:"index"`
	FactFile  string    `json:"fact_file"`
	Directory string    `json:"directory"`
	CreatedAt time.Time `json:"created_at"`
}

// Dimension is the stored configuration for one fact-table column: its
// descriptor, its extractor config, and the optional uploaded lookup buffer.
type Dimension struct {
	ID            string     `json:"id"`
	RevisionID    string     `json:"revision_id"`
	ColumnName    string     `json:"column_name"`
	ColumnIndex   int        `json:"column_index"`
	Datatype      string     `json:"datatype"`
	Role          ColumnRole `json:"role"`
	ExtractorJSON []byte     `json:"extractor,omitempty"`
	LookupFile    string     `json:"lookup_file,omitempty"`
}

// FactColumn returns the column descriptor portion of the dimension.
func (d *Dimension) FactColumn() FactColumn {
	return FactColumn{
		Name:     d.ColumnName,
		Index:    d.ColumnIndex,
		Datatype: d.Datatype,
		Role:     d.Role,
	}
}

// Store is the metadata store contract. The engine reads dataset, revision
// and dimension configuration and writes only cube pointers and build
// records; entity CRUD beyond that belongs to the surrounding system.
type Store interface {
	Close() error

	CreateDataset(d *Dataset) error
	GetDataset(id string) (*Dataset, error)

	CreateRevision(r *Revision) error
	GetRevision(id string) (*Revision, error)
	DeleteRevision(id string) error

	CreateDimension(d *Dimension) error
	GetDimensions(revisionID string) ([]*Dimension, error)

	// GetCube returns the serving cube for a revision, or nil if none has
	// been built yet.
	GetCube(revisionID string) (*Cube, error)

	// SwapCube atomically points the revision at a freshly built schema and
	// returns the previously serving schema name (empty if none).
	SwapCube(revisionID, schemaName string, builtAt time.Time) (string, error)

	// DeleteCube clears the revision's cube pointer and returns the schema
	// name that was serving (empty if none).
	DeleteCube(revisionID string) (string, error)

	CreateBuild(b *Build) error
	CompleteBuild(id string, status BuildStatus, errMsg string) error
	GetBuild(id string) (*Build, error)
	ListBuilds(revisionID string, limit int) ([]*Build, error)
}
