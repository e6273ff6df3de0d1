package indirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/strata/pkg/math"
)

func unitBox() math.AABB {
	return math.AABB{Min: math.Vec3{X: -1, Y: -1, Z: -1}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}
}

func TestVisible(t *testing.T) {
	vp := camera()

	tests := []struct {
		name  string
		model math.Mat4
		box   math.AABB
		want  bool
	}{
		{"at origin", math.Identity(), unitBox(), true},
		{"straddling left plane", math.Translate(-6.5, 0, 0), unitBox(), true},
		{"far left", math.Translate(-100, 0, 0), unitBox(), false},
		{"behind camera", math.Translate(0, 0, 20), unitBox(), false},
		{"past far plane", math.Translate(0, 0, -200), unitBox(), false},
		{"inverted", math.Identity(), math.InvertedAABB(), false},
		{"flat quad", math.Identity(), quad(0).Bounds(), true},
		{"scaled into view", math.Translate(-30, 0, 0).Mul(math.Scale(40, 1, 1)), unitBox(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Visible(vp, tt.model, tt.box))
		})
	}
}

// The clip-space test must agree with the plane test on boxes that are
// clearly in or out.
func TestVisibleAgreesWithFrustum(t *testing.T) {
	vp := camera()
	fr := math.FrustumFromMatrix(vp)
	for x := -40; x <= 40; x += 4 {
		for z := -120; z <= 20; z += 4 {
			box := unitBox()
			model := math.Translate(float32(x), 0, float32(z))
			world := box.Transform(model)
			if fr.IntersectsAABB(world) {
				continue
			}
			assert.False(t, Visible(vp, model, box), "box at %d,%d", x, z)
		}
	}
}

func TestCullParamsLayout(t *testing.T) {
	p := cullParams{ViewProj: camera(), MeshCount: 130, MaxDraws: 7}
	b := p.encode()
	require.Len(t, b, cullParamsSize)
	assert.Equal(t, p, decodeCullParams(b))
	assert.Equal(t, cullParams{}, decodeCullParams(b[:10]))
}

func TestCullReference(t *testing.T) {
	records := []MeshRecord{
		{ID: 1, IndexCount: 6, Model: math.Identity(), Bounds: unitBox()},
		{ID: 2, IndexCount: 3, FirstIndex: 6, BaseVertex: 4, Model: math.Translate(500, 0, 0), Bounds: unitBox()},
		{ID: 3, IndexCount: 3, FirstIndex: 9, BaseVertex: 7, Model: math.Identity(), Bounds: unitBox()},
		{ID: 4, IndexCount: 3, FirstIndex: 12, BaseVertex: 10, Model: math.Identity(), Bounds: math.InvertedAABB()},
	}
	got := CullReference(records, camera(), 0)
	assert.Equal(t, []IndirectCommand{
		{IndexCount: 6, InstanceCount: 1},
		{IndexCount: 3, InstanceCount: 1, FirstIndex: 9, VertexOffset: 7, FirstInstance: 2},
	}, got)

	assert.Len(t, CullReference(records, camera(), 1), 1)
}

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, 64, VertexSize)
	require.Len(t, VertexLayout.Attributes, 6)

	var prev uint32
	for i, a := range VertexLayout.Attributes {
		assert.Equal(t, uint32(i), a.Location)
		if i > 0 {
			assert.Greater(t, a.Offset, prev)
		}
		prev = a.Offset
	}
	assert.Equal(t, uint32(60), VertexLayout.Attributes[5].Offset)
	assert.Equal(t, int64(20), int64(IndirectCommandSize))
	assert.Equal(t, int64(32), boundsSize)
	assert.Equal(t, int64(64), modelSize)
}

func TestGeometryBounds(t *testing.T) {
	g := grid(3, 0)
	b := g.Bounds()
	assert.Equal(t, math.Vec3{}, b.Min)
	assert.Equal(t, math.Vec3{X: 3, Y: 0, Z: 3}, b.Max)
}
