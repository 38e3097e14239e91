package search

import "errors"

var (
	// ErrUnknownTable is returned for table names outside the registry.
	ErrUnknownTable = errors.New("search: unknown table")
	// ErrInvalidFilter reports a malformed filter value.
	ErrInvalidFilter = errors.New("search: invalid filter")
	// ErrClosed is returned by a controller after Close.
	ErrClosed = errors.New("search: controller closed")
)
