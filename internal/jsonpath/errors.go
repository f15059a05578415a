package jsonpath

import "errors"

// Domain errors for the jsonpath package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, jsonpath.ErrPathMissing) {
//	    // stale capability data; surface path-missing to the caller
//	}
var (
	// ErrInvalidPath is returned when a path expression cannot be parsed.
	ErrInvalidPath = errors.New("jsonpath: invalid path")

	// ErrPathMissing is returned when a key or index does not exist in the payload.
	ErrPathMissing = errors.New("jsonpath: path missing")

	// ErrNotTraversable is returned when a path descends through a non-container leaf.
	ErrNotTraversable = errors.New("jsonpath: not traversable")
)
