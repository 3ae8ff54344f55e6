package core

import (
	"fmt"
	"time"
)

// Cube records the serving namespace for one revision's assembled cube.
// The schema holds the fact table, every dimension's support table and the
// four generated views; it is swapped in atomically and read-only afterwards.
type Cube struct {
	RevisionID string    `json:"revision_id"`
	SchemaName string    `json:"schema_name"`
	BuiltAt    time.Time `json:"built_at"`
}

// RawViewName returns the name of the untransformed view for a locale.
func RawViewName(l Locale) string {
	return fmt.Sprintf("raw_view_%s", l)
}

// DefaultViewName returns the name of the locale-resolved view.
func DefaultViewName(l Locale) string {
	return fmt.Sprintf("default_view_%s", l)
}

// BuildStatus is the lifecycle state of a cube build.
type BuildStatus string

const (
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusCompleted BuildStatus = "completed"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusRejected  BuildStatus = "rejected"
)

// Build is one recorded build attempt for a revision.
type Build struct {
	ID          string      `json:"id"`
	RevisionID  string      `json:"revision_id"`
	SchemaName  string      `json:"schema_name,omitempty"`
	Status      BuildStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// BuildResult is returned by the assembler. Failures are carried in the
// result, never thrown across the build boundary, so a previously built cube
// keeps serving previews after a failed rebuild.
type BuildResult struct {
	BuildID    string         `json:"build_id,omitempty"`
	RevisionID string         `json:"revision_id"`
	Status     BuildStatus    `json:"status"`
	SchemaName string         `json:"schema_name,omitempty"`
	BuiltAt    *time.Time     `json:"built_at,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	Errors     *ErrorResponse `json:"errors,omitempty"`
}
