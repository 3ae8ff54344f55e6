package core

import (
	"fmt"
	"strings"
)

// TranslatedMessage is one localized rendering of a user-facing message.
type TranslatedMessage struct {
	Lang    Locale `json:"lang"`
	Message string `json:"message"`
}

// MessageKey identifies a translatable message and its parameters.
type MessageKey struct {
	Key    string         `json:"key"`
	Params map[string]any `json:"params,omitempty"`
}

// FieldError is one field-level failure in a bilingual error payload.
type FieldError struct {
	Field       string              `json:"field"`
	UserMessage []TranslatedMessage `json:"user_message"`
	Message     MessageKey          `json:"message"`
}

// ErrorResponse is the bilingual error wire shape shared by the build and
// preview surfaces.
type ErrorResponse struct {
	Status    int          `json:"status"`
	DatasetID string       `json:"dataset_id,omitempty"`
	Errors    []FieldError `json:"errors"`
}

// ConfigurationError reports an invalid extractor configuration, such as an
// unrecognized year, quarter, month or date format. It is fatal and returned
// verbatim for editor correction; Message is fixed and tested exactly.
type ConfigurationError struct {
	Message string
	Key     string
	Params  map[string]any
}

func (e *ConfigurationError) Error() string { return e.Message }

// ValidationError reports request- or data-level failures: unmatched lookup
// values, out-of-range page parameters, column cardinality violations. It is
// fatal for the request but never corrupts an existing cube.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	fields := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = f.Field
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// StorageError reports a failure loading or saving a buffer. Storage failures
// are transient: callers retry with backoff before surfacing them.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EngineError reports a SQL or schema failure in the analytical engine. The
// full statement is logged; only a generic localized message is surfaced.
type EngineError struct {
	Statement string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine statement failed: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
