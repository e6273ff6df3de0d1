package scene

import (
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/gpu/soft"
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/pkg/math"
)

func quad() indirect.Geometry {
	v := func(x, y float32) indirect.Vertex {
		return indirect.Vertex{
			Position: [3]float32{x, y, 0},
			Color:    [3]float32{1, 1, 1},
			Normal:   [3]float32{0, 0, 1},
			Tangent:  [4]float32{1, 0, 0, 1},
		}
	}
	return indirect.Geometry{
		Vertices: []indirect.Vertex{v(-0.5, -0.5), v(0.5, -0.5), v(0.5, 0.5), v(-0.5, 0.5)},
		Indices:  []uint32{0, 1, 2, 2, 3, 0},
	}
}

func viewProj() math.Mat4 {
	proj := math.Perspective(gomath.Pi/3, 1, 0.1, 100)
	view := math.LookAt(math.Vec3{Z: 10}, math.Vec3{}, math.Vec3{Y: 1})
	return proj.Mul(view)
}

type fixture struct {
	dev   *soft.Device
	table *indirect.MeshTable
	r     *indirect.Renderer
	solid *SolidRenderer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dev := soft.New(soft.Config{Features: soft.AllFeatures()})
	table, r := indirect.New(dev, indirect.DefaultOptions(), nil)
	t.Cleanup(func() { _ = r.Close() })
	solid, err := NewSolidRenderer(dev, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(solid.Destroy)
	return &fixture{dev: dev, table: table, r: r, solid: solid}
}

func (f *fixture) add(t *testing.T, model math.Mat4) {
	t.Helper()
	_, err := f.table.Add(quad(), model)
	require.NoError(t, err)
}

func (f *fixture) render(t *testing.T) {
	t.Helper()
	require.NoError(t, f.r.Rebuild())
	var renderErr error
	require.NoError(t, f.dev.Submit(func(rec gpu.Recorder) {
		renderErr = f.solid.Render(rec, f.r, Frame{ViewProj: viewProj()})
	}))
	require.NoError(t, renderErr)
}

func drawsBy(dev *soft.Device) map[string]int {
	out := make(map[string]int)
	for _, d := range dev.Draws() {
		out[d.Pipeline]++
	}
	return out
}

func TestRenderDepthThenColor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, math.Identity())
	f.add(t, math.Translate(1, 0, 0))
	f.add(t, math.Translate(-1, 0, 0))
	f.render(t)

	require.Empty(t, f.dev.Violations())
	assert.Equal(t, map[string]int{"scene.depth": 3, "scene.solid": 3}, drawsBy(f.dev))

	var ops []soft.Op
	for _, c := range f.dev.Commands() {
		switch c.Op {
		case soft.OpDispatch, soft.OpBeginRenderPass, soft.OpSetRenderPipeline,
			soft.OpDrawIndexedIndirectCount, soft.OpEndRenderPass:
			ops = append(ops, c.Op)
		}
	}
	assert.Equal(t, []soft.Op{
		soft.OpDispatch,
		soft.OpBeginRenderPass,
		soft.OpSetRenderPipeline, soft.OpDrawIndexedIndirectCount,
		soft.OpSetRenderPipeline, soft.OpDrawIndexedIndirectCount,
		soft.OpEndRenderPass,
	}, ops)

	for i, d := range f.dev.Draws()[:3] {
		assert.Equal(t, uint32(i), d.FirstInstance, "first instance indexes the models buffer")
	}
}

func TestRenderWithoutPrepass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DepthPrepass = false
	f := newFixture(t, cfg)
	f.add(t, math.Identity())
	f.render(t)

	require.Empty(t, f.dev.Violations())
	assert.Equal(t, map[string]int{"scene.solid": 1}, drawsBy(f.dev))
}

func TestRenderSkipsCulledMeshes(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, math.Identity())
	f.add(t, math.Translate(1000, 0, 0))
	f.add(t, math.Translate(0, 1, 0))
	f.render(t)

	require.Empty(t, f.dev.Violations())
	assert.Equal(t, map[string]int{"scene.depth": 2, "scene.solid": 2}, drawsBy(f.dev))
}

func TestRenderRebindsGrownModels(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.add(t, math.Identity())
	f.render(t)
	first := f.solid.models
	require.NotNil(t, first)

	for i := range 40 {
		f.add(t, math.Translate(float32(i%5), float32(i/5), -float32(i)))
	}
	f.dev.ResetLog()
	f.render(t)

	require.Empty(t, f.dev.Violations())
	assert.NotSame(t, first, f.solid.models)
	assert.Equal(t, f.r.ModelsBuffer(), f.solid.models)
}

func TestRenderBeforeRebuild(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	require.NoError(t, f.dev.Submit(func(rec gpu.Recorder) {
		require.NoError(t, f.solid.Render(rec, f.r, Frame{ViewProj: viewProj()}))
	}))

	assert.Empty(t, f.dev.Violations(), "the pass is still closed")
	assert.Empty(t, f.dev.Draws())
	assert.Nil(t, f.solid.group)
}

func TestEncodeFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LightDir = [3]float32{0, 2, 0}
	cfg.Ambient = 0.25
	s := &SolidRenderer{config: cfg}
	s.SetFog([3]float32{0.1, 0.2, 0.3}, 0.01)

	vp := viewProj()
	b := s.encodeFrame(vp)
	require.Len(t, b, frameSize)

	f := func(at int) float32 { return gomath.Float32frombits(binary.LittleEndian.Uint32(b[at:])) }
	for i := range vp {
		assert.Equal(t, vp[i], f(i*4))
	}
	assert.Equal(t, []float32{0, 1, 0, 0.25}, []float32{f(64), f(68), f(72), f(76)}, "light is normalized")
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.01}, []float32{f(80), f(84), f(88), f(92)})
}

func TestColorCompareFollowsPrepass(t *testing.T) {
	assert.Equal(t, gpu.CompareLess, (&SolidRenderer{config: Config{}}).colorCompare())
	assert.Equal(t, gpu.CompareLessEqual, (&SolidRenderer{config: DefaultConfig()}).colorCompare())
}

func TestConfigFrom(t *testing.T) {
	sc := config.Default().Scene
	sc.SunAzimuth = 0
	sc.SunElevation = 90
	sc.DepthPrepass = false
	sc.FogDensity = 0.02

	cfg := ConfigFrom(sc)
	assert.False(t, cfg.DepthPrepass)
	assert.InDelta(t, 0, cfg.LightDir[0], 1e-6)
	assert.InDelta(t, 1, cfg.LightDir[1], 1e-6)
	assert.InDelta(t, 0, cfg.LightDir[2], 1e-6)
	assert.Equal(t, sc.Ambient, cfg.Ambient)
	assert.Equal(t, float32(0.02), cfg.FogDensity)
	assert.Equal(t, DefaultConfig().ClearColor, cfg.ClearColor)
}
