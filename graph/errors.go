package graph

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these; match with errors.Is.
var (
	// ErrWrongType covers wrong argument types, layer values that cannot be
	// cast to their declared element kind, and schema mismatches on load.
	ErrWrongType = errors.New("graph: wrong type")

	// ErrBadValue covers structurally invalid input: wrong array rank or
	// shape, non-square adjacency, ambiguous append sizing, bad indices.
	ErrBadValue = errors.New("graph: invalid value")

	// ErrStorage covers filesystem-level failures: write-once collisions,
	// missing persisted data, files that do not fit the schema.
	ErrStorage = errors.New("graph: storage")

	// ErrNotImplemented marks functionality that is declared but unfinished.
	ErrNotImplemented = errors.New("graph: not implemented")
)

// Specific errors, each wrapping its kind so both the precise error and the
// kind match under errors.Is.
var (
	// ErrAmbiguousAppend is returned by Modify when no indices are given and
	// no supplied multi-observation array implies a count.
	ErrAmbiguousAppend = fmt.Errorf("%w: cannot infer observation count from supplied arrays", ErrBadValue)

	// ErrNonSquareAdjacency is returned when an adjacency matrix is not
	// n_node by n_node.
	ErrNonSquareAdjacency = fmt.Errorf("%w: adjacency matrix is not square over the node set", ErrBadValue)

	// ErrIndexRange is returned for a negative or out-of-range observation
	// index.
	ErrIndexRange = fmt.Errorf("%w: observation index out of range", ErrBadValue)

	// ErrUnknownField is returned by readers for a field name the schema
	// does not declare. (Modify treats unknown layer names as a soft skip
	// instead.)
	ErrUnknownField = fmt.Errorf("%w: unknown field", ErrBadValue)

	// ErrExists is returned by write-once creation when the target path is
	// already occupied.
	ErrExists = fmt.Errorf("%w: path already exists", ErrStorage)

	// ErrMissing is returned by load operations when there is nothing
	// persisted at the derived path.
	ErrMissing = fmt.Errorf("%w: no persisted data at path", ErrStorage)

	// ErrCorrupt is returned when a persisted file does not fit the
	// requested schema.
	ErrCorrupt = fmt.Errorf("%w: file does not match schema", ErrStorage)
)
