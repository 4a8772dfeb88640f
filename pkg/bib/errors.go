package bib

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no indexed record, identifier or legacy
// path matches the request.
var ErrNotFound = errors.New("no matching reference found")

// AmbiguousInputError indicates the request matched records that cannot be
// reconciled: either one identifier value claimed under conflicting types,
// or multiple conflicting primary identifiers. Distinct from not-found.
type AmbiguousInputError struct {
	ID    string
	Types []string
}

func (e *AmbiguousInputError) Error() string {
	return fmt.Sprintf("identifier %q claimed with conflicting types: %s", e.ID, strings.Join(e.Types, ", "))
}

// BenignQueryError marks a malformed user-supplied pattern (regex, JSON
// path). It is absorbed into an empty result set at the query translator
// boundary and never propagates further up.
type BenignQueryError struct {
	Query string
	Err   error
}

func (e *BenignQueryError) Error() string {
	return fmt.Sprintf("invalid query pattern %q: %v", e.Query, e.Err)
}

func (e *BenignQueryError) Unwrap() error { return e.Err }

// UpstreamUnavailableError indicates an external bibliographic API
// (DOI registry, datatracker) timed out or failed.
type UpstreamUnavailableError struct {
	Service string
	Err     error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// ValidationError collects structural problems found while parsing one
// source record's body. It is attached to that record's provenance entry
// and never aborts a merge.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid bibliographic data: " + strings.Join(e.Problems, "; ")
}
