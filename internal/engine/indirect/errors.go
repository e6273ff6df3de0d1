package indirect

import (
	"errors"
	"math"
)

var (
	// ErrInvalidGeometry is returned for empty or non-triangle geometry.
	ErrInvalidGeometry = errors.New("indirect: invalid geometry")
	// ErrIndexOutOfRange is returned when an index references a vertex the
	// mesh does not have.
	ErrIndexOutOfRange = errors.New("indirect: index out of range")
	// ErrCapacityOverflow is returned when packed offsets or requested
	// capacities would not fit the command format.
	ErrCapacityOverflow = errors.New("indirect: capacity overflow")
	// ErrUnknownMesh is returned for ids that have no GPU draw slot.
	ErrUnknownMesh = errors.New("indirect: unknown mesh")
)

// Limits imposed by the 32-bit fields of IndirectCommand.
const (
	maxVertexCount int64 = math.MaxInt32
	maxIndexCount  int64 = math.MaxUint32
	maxMeshCount   int64 = math.MaxInt32
)
