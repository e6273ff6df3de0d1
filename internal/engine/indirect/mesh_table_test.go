package indirect

import (
	"maps"
	gomath "math"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/strata/internal/engine/gpu/soft"
	"github.com/Faultbox/strata/pkg/math"
)

func TestAddSingleQuad(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	id := f.add(t, quad(1), math.Identity())
	assert.Equal(t, uint32(1), id)
	assert.Equal(t, 1, f.table.MeshCount())
	assert.True(t, f.table.IsDirty())

	info, ok := f.table.MeshInfo(1)
	require.True(t, ok)
	assert.Equal(t, uint32(6), info.IndexCount)
	assert.Equal(t, int32(0), info.BaseVertex)
	assert.Equal(t, uint32(0), info.FirstIndex)
	assert.Equal(t, math.Vec3{X: -0.5, Y: -0.5, Z: 0}, info.Bounds.Min)
	assert.Equal(t, math.Vec3{X: 0.5, Y: 0.5, Z: 0}, info.Bounds.Max)
}

func TestAddTwoQuads(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	f.add(t, quad(1), math.Identity())
	id := f.add(t, quad(2), math.Identity())
	assert.Equal(t, uint32(2), id)

	vs, is := f.table.Merged()
	assert.Len(t, vs, 8)
	assert.Len(t, is, 12)

	info, ok := f.table.MeshInfo(2)
	require.True(t, ok)
	assert.Equal(t, int32(4), info.BaseVertex)
	assert.Equal(t, uint32(6), info.FirstIndex)
	assert.Equal(t, uint32(1), info.DrawIndex)
	assert.Equal(t, int64(IndirectCommandSize), info.IndirectOffset)
}

func TestReplaceAppendsLast(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	f.add(t, quad(1), math.Identity())
	f.add(t, quad(2), math.Identity())

	id, err := f.table.AddOrReplace(triangle(3), math.Translate(1, 0, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	assert.Equal(t, 2, f.table.MeshCount())

	infos := f.table.ActiveMeshInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, uint32(2), infos[0].ID)
	assert.Equal(t, uint32(1), infos[1].ID, "replaced mesh is drawn last")
	assert.Equal(t, uint32(3), infos[1].VertexCount)
	assert.Equal(t, uint32(3), infos[1].IndexCount)
	assert.Equal(t, math.Translate(1, 0, 0), infos[1].Model)

	vs, is := f.table.Merged()
	two := infos[0]
	assert.Equal(t, quad(2).Vertices, vs[two.BaseVertex:two.BaseVertex+int32(two.VertexCount)])
	assert.Equal(t, quad(2).Indices, is[two.FirstIndex:two.FirstIndex+two.IndexCount])
}

func TestRemoveThenRebuild(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	f.add(t, quad(1), math.Identity())
	f.add(t, quad(2), math.Identity())
	_, err := f.table.AddOrReplace(triangle(3), math.Identity(), 1)
	require.NoError(t, err)

	assert.True(t, f.table.Remove(2))
	assert.False(t, f.table.Remove(2), "second remove is a no-op")

	vs, _ := f.table.Merged()
	assert.Len(t, vs, 7, "removed geometry stays until rebuild")

	f.rebuild(t)

	infos := f.table.ActiveMeshInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, uint32(1), infos[0].ID)

	vs, is := f.table.Merged()
	assert.Equal(t, triangle(3).Vertices, vs)
	assert.Equal(t, triangle(3).Indices, is)
	assert.False(t, f.table.IsDirty())
}

func TestEnsureCapacityOnEmptyTable(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	grow, err := f.table.EnsureCapacity(1000, 3000, 100)
	require.NoError(t, err)
	assert.True(t, grow)
	assert.True(t, f.table.IsDirty())

	f.rebuild(t)
	assert.GreaterOrEqual(t, f.r.VertexCapacity(), 1250)
	assert.GreaterOrEqual(t, f.r.IndexCapacity(), 3750)
	assert.GreaterOrEqual(t, f.r.MeshCapacity(), 125)

	grow, err = f.table.EnsureCapacity(10, 30, 1)
	require.NoError(t, err)
	assert.False(t, grow, "smaller request must not trigger a rebuild")
	assert.False(t, f.table.IsDirty())
}

func TestEnsureCapacityRejectsOverflow(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	_, err := f.table.EnsureCapacity(-1, 0, 0)
	require.ErrorIs(t, err, ErrCapacityOverflow)

	tests := []struct {
		name                      string
		vertices, indices, meshes int
	}{
		{"vertices past int32 after headroom", int(maxVertexCount), 0, 0},
		{"vertices max int", gomath.MaxInt, 0, 0},
		{"indices max int", 0, gomath.MaxInt, 0},
		{"meshes max int", 0, 0, gomath.MaxInt},
		{"meshes half max int", 0, 0, gomath.MaxInt / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grow, err := f.table.EnsureCapacity(tt.vertices, tt.indices, tt.meshes)
			require.ErrorIs(t, err, ErrCapacityOverflow)
			assert.False(t, grow)
			assert.False(t, f.table.IsDirty())
		})
	}
}

func TestWithHeadroom(t *testing.T) {
	n, ok := withHeadroom(0, 0.25, maxMeshCount)
	assert.True(t, ok)
	assert.Zero(t, n)

	n, ok = withHeadroom(1000, 0.25, maxMeshCount)
	assert.True(t, ok)
	assert.Equal(t, 1250, n)

	n, ok = withHeadroom(int(maxMeshCount), 0, maxMeshCount)
	assert.True(t, ok, "exactly at the limit")
	assert.Equal(t, int(maxMeshCount), n)

	_, ok = withHeadroom(gomath.MaxInt, 0.25, maxIndexCount)
	assert.False(t, ok)
}

func TestNextCapacityClampsToLimit(t *testing.T) {
	assert.Equal(t, 1024, nextCapacity(0, 0, 10, 1024, 0.25, maxVertexCount))
	assert.Equal(t, 2000, nextCapacity(0, 2000, 10, 1024, 0.25, maxVertexCount))
	assert.Equal(t, 2500, nextCapacity(1024, 0, 2000, 1024, 0.25, maxVertexCount))
	assert.Equal(t, int(maxVertexCount), nextCapacity(1024, 0, int(maxVertexCount), 1024, 0.25, maxVertexCount))
}

func TestAddRejectsMalformedGeometry(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())
	f.add(t, quad(1), math.Identity())
	f.rebuild(t)

	tests := []struct {
		name string
		g    Geometry
		err  error
	}{
		{"empty", Geometry{}, ErrInvalidGeometry},
		{"no indices", Geometry{Vertices: quad(0).Vertices}, ErrInvalidGeometry},
		{"not triangles", Geometry{Vertices: quad(0).Vertices, Indices: []uint32{0, 1}}, ErrInvalidGeometry},
		{"index out of range", Geometry{Vertices: quad(0).Vertices, Indices: []uint32{0, 1, 4}}, ErrIndexOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.table.Add(tt.g, math.Identity())
			require.ErrorIs(t, err, tt.err)
			_, err = f.table.AddOrReplace(tt.g, math.Identity(), 1)
			require.ErrorIs(t, err, tt.err)
		})
	}

	assert.Equal(t, 1, f.table.MeshCount())
	assert.False(t, f.table.IsDirty(), "rejected geometry must leave the table untouched")
}

func TestAutoIDsSkipExplicitIDs(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	_, err := f.table.AddOrReplace(quad(1), math.Identity(), 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), f.add(t, quad(2), math.Identity()))

	_, err = f.table.AddOrReplace(quad(3), math.Identity(), 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), f.add(t, quad(4), math.Identity()))
}

func TestReplaceIsIdempotentOnCount(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())
	f.add(t, quad(1), math.Identity())

	for i := 0; i < 10; i++ {
		_, err := f.table.AddOrReplace(triangle(float32(i)), math.Identity(), 42)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.table.MeshCount())

	f.rebuild(t)
	assert.Equal(t, 2, f.r.MeshCount())
	vs, _ := f.table.Merged()
	assert.Len(t, vs, 4+3)
}

// TestRandomChurnRoundTrip applies random mutations and checks after every
// rebuild that the uploaded commands reproduce each live mesh exactly.
func TestRandomChurnRoundTrip(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())
	rng := rand.New(rand.NewSource(7))
	model := map[uint32]Geometry{}

	for step := 0; step < 300; step++ {
		switch op := rng.Intn(10); {
		case op < 4:
			g := grid(1+rng.Intn(4), float32(step))
			id := f.add(t, g, math.Translate(float32(step), 0, 0))
			model[id] = g
		case op < 7 && len(model) > 0:
			id := pick(rng, model)
			g := triangle(float32(step))
			_, err := f.table.AddOrReplace(g, math.Identity(), id)
			require.NoError(t, err)
			model[id] = g
		case len(model) > 0:
			id := pick(rng, model)
			require.True(t, f.table.Remove(id))
			delete(model, id)
		}

		if step%25 != 24 {
			continue
		}
		f.rebuild(t)
		require.Equal(t, len(model), f.r.MeshCount())

		cmds := readCommands(f.dev, f.r.IndirectBuffer(), f.r.MeshCount())
		infos := f.table.ActiveMeshInfos()
		require.Len(t, infos, len(model))

		next := uint32(0)
		for i, info := range infos {
			want, ok := model[info.ID]
			require.True(t, ok, "mesh %d should have been removed", info.ID)

			c := cmds[i]
			assert.Equal(t, uint32(i), c.FirstInstance)
			assert.Equal(t, uint32(1), c.InstanceCount)
			assert.Equal(t, next, c.FirstIndex, "index ranges must be contiguous")
			next += c.IndexCount

			got := readIndices(f.dev, f.r.IndexBuffer(), int(c.FirstIndex), int(c.IndexCount))
			assert.Equal(t, want.Indices, got)
			gotV := readVertices(f.dev, f.r.VertexBuffer(), int(c.VertexOffset), len(want.Vertices))
			assert.Equal(t, want.Vertices, gotV)
		}
	}
}

func pick(rng *rand.Rand, m map[uint32]Geometry) uint32 {
	ids := slices.Sorted(maps.Keys(m))
	return ids[rng.Intn(len(ids))]
}

func TestConcurrentMutation(t *testing.T) {
	f := newFixture(t, soft.AllFeatures())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := uint32(w*1000 + i)
				if _, err := f.table.AddOrReplace(quad(float32(w)), math.Identity(), id); err != nil {
					t.Error(err)
					return
				}
				if i%3 == 0 {
					f.table.Remove(id)
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		require.NoError(t, f.r.Rebuild())
	}
	f.rebuild(t)

	// 50 per worker, every third removed.
	assert.Equal(t, 4*33, f.table.MeshCount())
	assert.Equal(t, 4*33, f.r.MeshCount())
}
