package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openstats-labs/statcube/pkg/core"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = core.ErrNotFound

// --- Dataset operations ---

// CreateDataset inserts a dataset. An empty ID is generated.
func (s *SQLiteStore) CreateDataset(d *core.Dataset) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if d.ID == "" {
		d.ID = generateID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO datasets (id, title_en, title_cy, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Title[core.LocaleEnglish], d.Title[core.LocaleWelsh], d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	return nil
}

// GetDataset retrieves a dataset by ID.
func (s *SQLiteStore) GetDataset(id string) (*core.Dataset, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	d := &core.Dataset{Title: make(map[core.Locale]string)}
	var titleEN, titleCY string
	err := s.db.QueryRow(
		`SELECT id, title_en, title_cy, created_at FROM datasets WHERE id = ?`, id,
	).Scan(&d.ID, &titleEN, &titleCY, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	d.Title[core.LocaleEnglish] = titleEN
	d.Title[core.LocaleWelsh] = titleCY
	return d, nil
}

// --- Revision operations ---

// CreateRevision inserts a revision. An empty ID is generated.
func (s *SQLiteStore) CreateRevision(r *core.Revision) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if r.ID == "" {
		r.ID = generateID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO revisions (id, dataset_id, revision_index, fact_file, directory, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.DatasetID, r.Index, r.FactFile, r.Directory, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create revision: %w", err)
	}
	return nil
}

// GetRevision retrieves a revision by ID.
func (s *SQLiteStore) GetRevision(id string) (*core.Revision, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	r := &core.Revision{}
	err := s.db.QueryRow(
		`SELECT id, dataset_id, revision_index, fact_file, directory, created_at
		 FROM revisions WHERE id = ?`, id,
	).Scan(&r.ID, &r.DatasetID, &r.Index, &r.FactFile, &r.Directory, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	return r, nil
}

// DeleteRevision removes a revision; dimensions and the cube pointer cascade.
func (s *SQLiteStore) DeleteRevision(id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if _, err := s.db.Exec(`DELETE FROM revisions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete revision: %w", err)
	}
	return nil
}

// --- Dimension operations ---

// CreateDimension inserts a dimension configuration row.
func (s *SQLiteStore) CreateDimension(d *core.Dimension) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if d.ID == "" {
		d.ID = generateID()
	}

	var extractor any
	if len(d.ExtractorJSON) > 0 {
		extractor = string(d.ExtractorJSON)
	}

	_, err := s.db.Exec(
		`INSERT INTO dimensions (id, revision_id, column_name, column_index, datatype, role, extractor_json, lookup_file)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RevisionID, d.ColumnName, d.ColumnIndex, d.Datatype, string(d.Role), extractor, d.LookupFile,
	)
	if err != nil {
		return fmt.Errorf("failed to create dimension: %w", err)
	}
	return nil
}

// GetDimensions retrieves a revision's dimensions in column order.
func (s *SQLiteStore) GetDimensions(revisionID string) ([]*core.Dimension, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, revision_id, column_name, column_index, datatype, role, extractor_json, lookup_file
		 FROM dimensions WHERE revision_id = ? ORDER BY column_index`, revisionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query dimensions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dims []*core.Dimension
	for rows.Next() {
		d := &core.Dimension{}
		var role string
		var extractor sql.NullString
		if err := rows.Scan(&d.ID, &d.RevisionID, &d.ColumnName, &d.ColumnIndex,
			&d.Datatype, &role, &extractor, &d.LookupFile); err != nil {
			return nil, fmt.Errorf("failed to scan dimension: %w", err)
		}
		d.Role = core.ColumnRole(role)
		if extractor.Valid {
			d.ExtractorJSON = []byte(extractor.String)
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

// --- Cube pointer operations ---

// GetCube returns the serving cube for a revision, or nil if none is built.
func (s *SQLiteStore) GetCube(revisionID string) (*core.Cube, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	c := &core.Cube{}
	err := s.db.QueryRow(
		`SELECT revision_id, schema_name, built_at FROM cubes WHERE revision_id = ?`, revisionID,
	).Scan(&c.RevisionID, &c.SchemaName, &c.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cube: %w", err)
	}
	return c, nil
}

// SwapCube atomically points the revision at a freshly built schema and
// returns the previously serving schema name.
func (s *SQLiteStore) SwapCube(revisionID, schemaName string, builtAt time.Time) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin swap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	err = tx.QueryRow(`SELECT schema_name FROM cubes WHERE revision_id = ?`, revisionID).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read serving cube: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO cubes (revision_id, schema_name, built_at) VALUES (?, ?, ?)
		 ON CONFLICT (revision_id) DO UPDATE SET schema_name = excluded.schema_name, built_at = excluded.built_at`,
		revisionID, schemaName, builtAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to swap cube pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit swap: %w", err)
	}
	return previous, nil
}

// DeleteCube clears the revision's cube pointer and returns the schema name
// that was serving.
func (s *SQLiteStore) DeleteCube(revisionID string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	var previous string
	err := s.db.QueryRow(`SELECT schema_name FROM cubes WHERE revision_id = ?`, revisionID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read serving cube: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM cubes WHERE revision_id = ?`, revisionID); err != nil {
		return "", fmt.Errorf("failed to delete cube pointer: %w", err)
	}
	return previous, nil
}

// --- Build operations ---

// CreateBuild records the start of a build attempt. An empty ID is generated.
func (s *SQLiteStore) CreateBuild(b *core.Build) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if b.ID == "" {
		b.ID = generateID()
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = core.BuildStatusRunning
	}

	_, err := s.db.Exec(
		`INSERT INTO builds (id, revision_id, schema_name, status, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.RevisionID, b.SchemaName, string(b.Status), b.Error, b.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

// CompleteBuild marks a build with its final status.
func (s *SQLiteStore) CompleteBuild(id string, status core.BuildStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`UPDATE builds SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete build: %w", err)
	}
	return nil
}

// GetBuild retrieves a build by ID.
func (s *SQLiteStore) GetBuild(id string) (*core.Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	b := &core.Build{}
	var status string
	var completedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, revision_id, schema_name, status, error, started_at, completed_at
		 FROM builds WHERE id = ?`, id,
	).Scan(&b.ID, &b.RevisionID, &b.SchemaName, &status, &b.Error, &b.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("build %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}

	b.Status = core.BuildStatus(status)
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return b, nil
}

// ListBuilds returns a revision's builds, newest first.
func (s *SQLiteStore) ListBuilds(revisionID string, limit int) ([]*core.Build, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, revision_id, schema_name, status, error, started_at, completed_at
		 FROM builds WHERE revision_id = ? ORDER BY started_at DESC LIMIT ?`, revisionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []*core.Build
	for rows.Next() {
		b := &core.Build{}
		var status string
		var completedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.RevisionID, &b.SchemaName, &status, &b.Error,
			&b.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		b.Status = core.BuildStatus(status)
		if completedAt.Valid {
			b.CompletedAt = &completedAt.Time
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// Ensure SQLiteStore implements the store contract.
var _ core.Store = (*SQLiteStore)(nil)
