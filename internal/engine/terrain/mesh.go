package terrain

import (
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/pkg/math"
)

// Height bands, lowest first. Layer on each vertex is the band index.
var bands = []struct {
	top   float32 // upper bound as a fraction of HeightScale
	color [3]float32
}{
	{-0.45, [3]float32{0.76, 0.70, 0.50}}, // sand
	{0.15, [3]float32{0.30, 0.55, 0.22}},  // grass
	{0.55, [3]float32{0.45, 0.42, 0.38}},  // rock
	{2, [3]float32{0.95, 0.95, 0.97}},     // snow
}

// band returns the layer index and color for a height.
func band(height, scale float32) (int, [3]float32) {
	t := float32(0)
	if scale > 0 {
		t = height / scale
	}
	for i, b := range bands {
		if t < b.top {
			return i, b.color
		}
	}
	last := len(bands) - 1
	return last, bands[last].color
}

// BuildChunk tessellates one chunk into a (res+1)^2 vertex grid. Heights and
// normals are sampled in world space so neighbouring chunks share their edge
// vertices exactly.
func BuildChunk(h *Heightmap, c ChunkCoord, size float32, res int) Chunk {
	if res < 1 {
		res = 1
	}
	origin := c.Origin(size)
	step := size / float32(res)
	side := res + 1

	vertices := make([]indirect.Vertex, 0, side*side)
	for j := range side {
		for i := range side {
			lx := float32(i) * step
			lz := float32(j) * step
			wx, wz := origin.X+lx, origin.Z+lz

			y := h.Height(wx, wz)
			n := h.Normal(wx, wz)
			dx, _ := h.Slope(wx, wz)
			t := math.Vec3{X: 1, Y: dx}.Normalize()
			layer, color := band(y, h.HeightScale)

			vertices = append(vertices, indirect.Vertex{
				Position: [3]float32{lx, y, lz},
				Color:    color,
				UV:       [2]float32{float32(i) / float32(res), float32(j) / float32(res)},
				Normal:   [3]float32{n.X, n.Y, n.Z},
				Tangent:  [4]float32{t.X, t.Y, t.Z, 1},
				Layer:    float32(layer),
			})
		}
	}

	indices := make([]uint32, 0, res*res*6)
	for j := range res {
		for i := range res {
			v00 := uint32(j*side + i)
			v10 := v00 + 1
			v01 := v00 + uint32(side)
			v11 := v01 + 1
			// Counter-clockwise seen from above.
			indices = append(indices,
				v00, v01, v10,
				v10, v01, v11,
			)
		}
	}

	return Chunk{
		Coord:    c,
		Geometry: indirect.Geometry{Vertices: vertices, Indices: indices},
		Model:    math.Translate(origin.X, 0, origin.Z),
	}
}
