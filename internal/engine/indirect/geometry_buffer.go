package indirect

import (
	"fmt"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

// geometryBuffer owns the merged vertex and index buffers.
type geometryBuffer struct {
	dev gpu.Device
	reg *gpu.Registry

	vertices gpu.Buffer
	indices  gpu.Buffer

	vertexCapacity int
	indexCapacity  int
}

// reserve recreates whichever buffer is smaller than requested. The device
// must be idle. It reports whether anything was reallocated.
func (g *geometryBuffer) reserve(vertices, indices int) (bool, error) {
	grew := false
	if vertices > g.vertexCapacity || g.vertices == nil {
		b, err := g.dev.CreateBuffer(gpu.BufferDesc{
			Label: "indirect.vertices",
			Size:  int64(vertices) * int64(VertexSize),
			Usage: gpu.UsageVertex | gpu.UsageStorage | gpu.UsageCopyDst,
		})
		if err != nil {
			return grew, fmt.Errorf("allocating vertex buffer for %d vertices: %w", vertices, err)
		}
		g.reg.Release(g.vertices)
		g.reg.Track(b, "indirect.vertices")
		g.vertices = b
		g.vertexCapacity = vertices
		grew = true
	}
	if indices > g.indexCapacity || g.indices == nil {
		b, err := g.dev.CreateBuffer(gpu.BufferDesc{
			Label: "indirect.indices",
			Size:  int64(indices) * 4,
			Usage: gpu.UsageIndex | gpu.UsageStorage | gpu.UsageCopyDst,
		})
		if err != nil {
			return grew, fmt.Errorf("allocating index buffer for %d indices: %w", indices, err)
		}
		g.reg.Release(g.indices)
		g.reg.Track(b, "indirect.indices")
		g.indices = b
		g.indexCapacity = indices
		grew = true
	}
	return grew, nil
}

// upload copies the merged arrays to the start of the buffers.
func (g *geometryBuffer) upload(vertices []Vertex, indices []uint32) error {
	if len(vertices) > 0 {
		if err := g.dev.WriteBuffer(g.vertices, 0, vertexBytes(vertices)); err != nil {
			return fmt.Errorf("uploading %d vertices: %w", len(vertices), err)
		}
	}
	if len(indices) > 0 {
		if err := g.dev.WriteBuffer(g.indices, 0, indexBytes(indices)); err != nil {
			return fmt.Errorf("uploading %d indices: %w", len(indices), err)
		}
	}
	return nil
}

func (g *geometryBuffer) ready() bool {
	return g.vertices != nil && g.indices != nil
}
