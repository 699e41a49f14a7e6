package extract

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/ragle/driver-recon/internal/model"
)

// Kind classifies why a source contributed nothing.
type Kind string

const (
	KindMissingSource      Kind = "missing_source_file"
	KindUnrecognizedSchema Kind = "unrecognized_schema"
)

// ErrErrorBudgetExceeded is returned when a source has more malformed rows
// than the strictness profile allows.
var ErrErrorBudgetExceeded = eris.New("extract: malformed row budget exceeded")

// SourceError describes a source that degraded to an empty result.
type SourceError struct {
	Source model.Source
	Kind   Kind
	Path   string
	Err    error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("extract: %s %s", e.Source, e.Kind)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsMissingSource reports whether err is a missing-source SourceError.
func IsMissingSource(err error) bool {
	return isKind(err, KindMissingSource)
}

// IsUnrecognizedSchema reports whether err is an unrecognized-schema SourceError.
func IsUnrecognizedSchema(err error) bool {
	return isKind(err, KindUnrecognizedSchema)
}

func isKind(err error, kind Kind) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == kind
}

func missing(src model.Source, path string, err error) *SourceError {
	return &SourceError{Source: src, Kind: KindMissingSource, Path: path, Err: err}
}

func unrecognized(src model.Source, path string, err error) *SourceError {
	return &SourceError{Source: src, Kind: KindUnrecognizedSchema, Path: path, Err: err}
}
