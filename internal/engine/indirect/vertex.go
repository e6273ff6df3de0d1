package indirect

import (
	"fmt"
	"unsafe"

	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/pkg/math"
)

// Vertex is the interleaved vertex format of the merged vertex buffer.
// Tangent.W carries the bitangent sign.
type Vertex struct {
	Position [3]float32
	Color    [3]float32
	UV       [2]float32
	Normal   [3]float32
	Tangent  [4]float32
	Layer    float32
}

// VertexSize is the byte size of Vertex.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// VertexLayout describes Vertex to the device.
var VertexLayout = gpu.VertexLayout{
	Stride: uint32(VertexSize),
	Attributes: []gpu.VertexAttribute{
		{Location: 0, Components: 3, Offset: uint32(unsafe.Offsetof(Vertex{}.Position))},
		{Location: 1, Components: 3, Offset: uint32(unsafe.Offsetof(Vertex{}.Color))},
		{Location: 2, Components: 2, Offset: uint32(unsafe.Offsetof(Vertex{}.UV))},
		{Location: 3, Components: 3, Offset: uint32(unsafe.Offsetof(Vertex{}.Normal))},
		{Location: 4, Components: 4, Offset: uint32(unsafe.Offsetof(Vertex{}.Tangent))},
		{Location: 5, Components: 1, Offset: uint32(unsafe.Offsetof(Vertex{}.Layer))},
	},
}

// Geometry is one mesh's vertices and triangle-list indices. Indices are
// local to Vertices.
type Geometry struct {
	Vertices []Vertex
	Indices  []uint32
}

// Validate checks that the geometry can be packed.
func (g Geometry) Validate() error {
	if len(g.Vertices) == 0 || len(g.Indices) == 0 {
		return fmt.Errorf("%w: %d vertices, %d indices", ErrInvalidGeometry, len(g.Vertices), len(g.Indices))
	}
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices is not a triangle list", ErrInvalidGeometry, len(g.Indices))
	}
	if int64(len(g.Vertices)) > maxVertexCount || int64(len(g.Indices)) > maxIndexCount {
		return fmt.Errorf("%w: mesh of %d vertices, %d indices", ErrCapacityOverflow, len(g.Vertices), len(g.Indices))
	}
	n := uint32(len(g.Vertices))
	for i, idx := range g.Indices {
		if idx >= n {
			return fmt.Errorf("%w: index %d at %d, mesh has %d vertices", ErrIndexOutOfRange, idx, i, n)
		}
	}
	return nil
}

// Bounds returns the object-space bounding box of the vertex positions.
func (g Geometry) Bounds() math.AABB {
	b := math.EmptyAABB()
	for i := range g.Vertices {
		p := &g.Vertices[i].Position
		b = b.Extend(math.Vec3{X: p[0], Y: p[1], Z: p[2]})
	}
	return b
}

// vertexBytes views vertices as raw bytes without copying.
func vertexBytes(vs []Vertex) []byte {
	if len(vs) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vs[0])), len(vs)*VertexSize)
}

// indexBytes views indices as raw bytes without copying.
func indexBytes(is []uint32) []byte {
	if len(is) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&is[0])), len(is)*4)
}
