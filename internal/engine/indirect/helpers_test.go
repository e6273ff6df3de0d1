package indirect

import (
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/gpu/soft"
	"github.com/Faultbox/strata/pkg/math"
)

func vert(x, y, z float32) Vertex {
	return Vertex{
		Position: [3]float32{x, y, z},
		Color:    [3]float32{1, 1, 1},
		Normal:   [3]float32{0, 0, 1},
		Tangent:  [4]float32{1, 0, 0, 1},
	}
}

// quad is a unit quad in the XY plane, tagged by layer so geometry from
// different meshes is distinguishable after packing.
func quad(tag float32) Geometry {
	vs := []Vertex{vert(-0.5, -0.5, 0), vert(0.5, -0.5, 0), vert(0.5, 0.5, 0), vert(-0.5, 0.5, 0)}
	for i := range vs {
		vs[i].Layer = tag
		vs[i].UV = [2]float32{float32(i), tag}
	}
	return Geometry{Vertices: vs, Indices: []uint32{0, 1, 2, 2, 3, 0}}
}

func triangle(tag float32) Geometry {
	vs := []Vertex{vert(0, 0, 0), vert(1, 0, 0), vert(0, 1, 0)}
	for i := range vs {
		vs[i].Layer = tag
	}
	return Geometry{Vertices: vs, Indices: []uint32{0, 1, 2}}
}

// grid returns an n×n patch of quads.
func grid(n int, tag float32) Geometry {
	var g Geometry
	for z := 0; z <= n; z++ {
		for x := 0; x <= n; x++ {
			v := vert(float32(x), 0, float32(z))
			v.Layer = tag
			g.Vertices = append(g.Vertices, v)
		}
	}
	row := uint32(n + 1)
	for z := uint32(0); z < uint32(n); z++ {
		for x := uint32(0); x < uint32(n); x++ {
			i := z*row + x
			g.Indices = append(g.Indices, i, i+row, i+1, i+1, i+row, i+row+1)
		}
	}
	return g
}

type fixture struct {
	dev   *soft.Device
	table *MeshTable
	r     *Renderer
	logs  *observer.ObservedLogs
}

func newFixture(t *testing.T, features gpu.Features, mutate ...func(*Options)) *fixture {
	t.Helper()
	dev := soft.New(soft.Config{Features: features})
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	table, r := New(dev, opts, zap.New(core))
	t.Cleanup(func() { _ = r.Close() })
	return &fixture{dev: dev, table: table, r: r, logs: logs}
}

func (f *fixture) add(t *testing.T, g Geometry, model math.Mat4) uint32 {
	t.Helper()
	id, err := f.table.Add(g, model)
	require.NoError(t, err)
	return id
}

func (f *fixture) rebuild(t *testing.T) {
	t.Helper()
	require.NoError(t, f.r.Rebuild())
}

// frame records a cull pass and one draw, the way the viewer does.
func (f *fixture) frame(t *testing.T, viewProj math.Mat4, maxDraws uint32) {
	t.Helper()
	require.NoError(t, f.dev.Submit(func(rec gpu.Recorder) {
		f.r.PrepareCull(rec, viewProj, maxDraws)
		rec.BeginRenderPass(gpu.RenderPassDesc{Label: "main", ClearColor: true, ClearDepth: true, Depth: 1})
		f.r.DrawPrepared(rec, maxDraws)
		rec.EndRenderPass()
	}))
}

func (f *fixture) messages() []string {
	var out []string
	for _, e := range f.logs.All() {
		out = append(out, e.Message)
	}
	return out
}

func readCommands(dev *soft.Device, b gpu.Buffer, n int) []IndirectCommand {
	raw := dev.Bytes(b)
	out := make([]IndirectCommand, n)
	for i := range out {
		c := raw[i*IndirectCommandSize:]
		out[i] = IndirectCommand{
			IndexCount:    binary.LittleEndian.Uint32(c[0:]),
			InstanceCount: binary.LittleEndian.Uint32(c[4:]),
			FirstIndex:    binary.LittleEndian.Uint32(c[8:]),
			VertexOffset:  int32(binary.LittleEndian.Uint32(c[12:])),
			FirstInstance: binary.LittleEndian.Uint32(c[16:]),
		}
	}
	return out
}

func readBounds(dev *soft.Device, b gpu.Buffer, slot int) math.AABB {
	raw := dev.Bytes(b)[int64(slot)*boundsSize:]
	f := func(off int) float32 { return gomath.Float32frombits(binary.LittleEndian.Uint32(raw[off:])) }
	return math.AABB{
		Min: math.Vec3{X: f(0), Y: f(4), Z: f(8)},
		Max: math.Vec3{X: f(16), Y: f(20), Z: f(24)},
	}
}

func readVertices(dev *soft.Device, b gpu.Buffer, first, n int) []Vertex {
	raw := dev.Bytes(b)
	out := make([]Vertex, n)
	copy(vertexBytes(out), raw[first*VertexSize:(first+n)*VertexSize])
	return out
}

func readIndices(dev *soft.Device, b gpu.Buffer, first, n int) []uint32 {
	raw := dev.Bytes(b)
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[(first+i)*4:])
	}
	return out
}

// camera looks down -Z from z=10 with a 60 degree field of view.
func camera() math.Mat4 {
	proj := math.Perspective(gomath.Pi/3, 1, 0.1, 100)
	view := math.LookAt(math.Vec3{X: 0, Y: 0, Z: 10}, math.Vec3{}, math.Vec3{X: 0, Y: 1, Z: 0})
	return proj.Mul(view)
}
