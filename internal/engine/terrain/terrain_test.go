package terrain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/gpu/soft"
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/pkg/math"
)

func TestChunkIDRoundTrip(t *testing.T) {
	coords := []ChunkCoord{
		{0, 0}, {1, -1}, {-1, 1}, {-16384, 16383}, {16383, -32768}, {12, 900},
	}
	seen := make(map[uint32]ChunkCoord)
	for _, c := range coords {
		id := c.ID()
		if !IsChunkID(id) {
			t.Errorf("%v: id %#x is not tagged", c, id)
		}
		if got := CoordFromID(id); got != c {
			t.Errorf("CoordFromID(%v.ID()) = %v", c, got)
		}
		if prev, dup := seen[id]; dup {
			t.Errorf("%v and %v share id %#x", prev, c, id)
		}
		seen[id] = c
	}
	if IsChunkID(42) {
		t.Error("automatic ids must not look like chunk ids")
	}
}

func TestChunkAddressable(t *testing.T) {
	tests := []struct {
		c    ChunkCoord
		want bool
	}{
		{ChunkCoord{0, 0}, true},
		{ChunkCoord{MinChunkX, MinChunkZ}, true},
		{ChunkCoord{MaxChunkX, MaxChunkZ}, true},
		{ChunkCoord{MaxChunkX + 1, 0}, false},
		{ChunkCoord{MinChunkX - 1, 0}, false},
		{ChunkCoord{0, MaxChunkZ + 1}, false},
		{ChunkCoord{0, MinChunkZ - 1}, false},
	}
	for _, tt := range tests {
		if got := tt.c.Addressable(); got != tt.want {
			t.Errorf("%v.Addressable() = %v, want %v", tt.c, got, tt.want)
		}
		if tt.want && CoordFromID(tt.c.ID()) != tt.c {
			t.Errorf("%v does not round-trip through its id", tt.c)
		}
	}

	// The first coordinate past the X range wraps onto the minimum.
	over := ChunkCoord{MaxChunkX + 1, 0}
	if over.ID() != (ChunkCoord{MinChunkX, 0}).ID() {
		t.Errorf("expected %v to alias the minimum X chunk", over)
	}
}

func TestChunkAt(t *testing.T) {
	tests := []struct {
		pos  math.Vec3
		want ChunkCoord
	}{
		{math.Vec3{X: 0, Z: 0}, ChunkCoord{0, 0}},
		{math.Vec3{X: 31.9, Z: 0.1}, ChunkCoord{0, 0}},
		{math.Vec3{X: 32, Z: 64}, ChunkCoord{1, 2}},
		{math.Vec3{X: -0.1, Z: -32}, ChunkCoord{-1, -1}},
		{math.Vec3{X: -32.1, Z: 5}, ChunkCoord{-2, 0}},
	}
	for _, tt := range tests {
		if got := ChunkAt(tt.pos, 32); got != tt.want {
			t.Errorf("ChunkAt(%v) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

func TestHeightmapDeterministic(t *testing.T) {
	a := NewHeightmap(1, 10)
	b := NewHeightmap(1, 10)
	c := NewHeightmap(2, 10)

	differs := false
	for i := range 50 {
		x, z := float32(i)*3.7, float32(i)*-5.3
		ha := a.Height(x, z)
		if hb := b.Height(x, z); ha != hb {
			t.Fatalf("same seed gave %v and %v at (%v,%v)", ha, hb, x, z)
		}
		if ha < -10 || ha > 10 {
			t.Fatalf("height %v outside [-10,10]", ha)
		}
		if c.Height(x, z) != ha {
			differs = true
		}
	}
	if !differs {
		t.Error("different seeds produced identical terrain")
	}
}

func TestHeightmapNormalPointsUp(t *testing.T) {
	h := NewHeightmap(5, 20)
	for i := range 20 {
		n := h.Normal(float32(i)*11, float32(i)*7)
		if n.Y <= 0 {
			t.Errorf("normal %v points down", n)
		}
		if l := n.Length(); l < 0.999 || l > 1.001 {
			t.Errorf("normal %v has length %v", n, l)
		}
	}
}

func TestFlatHeightmap(t *testing.T) {
	h := NewHeightmap(9, 0)
	if got := h.Height(12, 34); got != 0 {
		t.Errorf("zero scale should be flat, got %v", got)
	}
	n := h.Normal(12, 34)
	if n != (math.Vec3{Y: 1}) {
		t.Errorf("flat normal = %v", n)
	}
}

func TestBuildChunk(t *testing.T) {
	h := NewHeightmap(3, 12)
	c := BuildChunk(h, ChunkCoord{X: 2, Z: -1}, 32, 8)

	if err := c.Geometry.Validate(); err != nil {
		t.Fatalf("chunk geometry invalid: %v", err)
	}
	if got := len(c.Geometry.Vertices); got != 81 {
		t.Errorf("expected 81 vertices, got %d", got)
	}
	if got := len(c.Geometry.Indices); got != 8*8*6 {
		t.Errorf("expected %d indices, got %d", 8*8*6, got)
	}

	b := c.Geometry.Bounds()
	if b.Min.X != 0 || b.Max.X != 32 || b.Min.Z != 0 || b.Max.Z != 32 {
		t.Errorf("local bounds %v, want [0,32] on X and Z", b)
	}
	origin := c.Model.TransformPoint([3]float32{0, 0, 0})
	if origin != [3]float32{64, 0, -32} {
		t.Errorf("model places origin at %v", origin)
	}

	for i, v := range c.Geometry.Vertices {
		if v.Layer < 0 || int(v.Layer) >= len(bands) {
			t.Fatalf("vertex %d has layer %v", i, v.Layer)
		}
		if v.Normal[1] <= 0 {
			t.Fatalf("vertex %d normal %v points down", i, v.Normal)
		}
	}
}

func TestBuildChunkWindsUpward(t *testing.T) {
	c := BuildChunk(NewHeightmap(0, 0), ChunkCoord{}, 4, 2)
	vs := c.Geometry.Vertices
	is := c.Geometry.Indices
	for tri := 0; tri < len(is); tri += 3 {
		a, b, d := vs[is[tri]].Position, vs[is[tri+1]].Position, vs[is[tri+2]].Position
		e1 := math.Vec3{X: b[0] - a[0], Y: b[1] - a[1], Z: b[2] - a[2]}
		e2 := math.Vec3{X: d[0] - a[0], Y: d[1] - a[1], Z: d[2] - a[2]}
		if n := e1.Cross(e2); n.Y <= 0 {
			t.Fatalf("triangle %d faces down: %v", tri/3, n)
		}
	}
}

func TestChunkEdgesMatch(t *testing.T) {
	h := NewHeightmap(11, 15)
	const size, res = 16, 4
	left := BuildChunk(h, ChunkCoord{X: 0, Z: 0}, size, res)
	right := BuildChunk(h, ChunkCoord{X: 1, Z: 0}, size, res)

	side := res + 1
	for j := range side {
		l := left.Geometry.Vertices[j*side+res]
		r := right.Geometry.Vertices[j*side]
		lw := left.Model.TransformPoint(l.Position)
		rw := right.Model.TransformPoint(r.Position)
		if lw != rw {
			t.Errorf("row %d: edge vertices %v and %v differ", j, lw, rw)
		}
		if l.Normal != r.Normal {
			t.Errorf("row %d: edge normals %v and %v differ", j, l.Normal, r.Normal)
		}
	}
}

type fakeTable struct {
	mu       sync.Mutex
	meshes   map[uint32]int
	removed  int
	fail     bool
	reserved [][3]int
}

func newFakeTable() *fakeTable {
	return &fakeTable{meshes: make(map[uint32]int)}
}

func (f *fakeTable) AddOrReplace(g indirect.Geometry, _ math.Mat4, id uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("table full")
	}
	f.meshes[id] = len(g.Vertices)
	return id, nil
}

func (f *fakeTable) Remove(id uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.meshes[id]; !ok {
		return false
	}
	delete(f.meshes, id)
	f.removed++
	return true
}

func (f *fakeTable) EnsureCapacity(vertices, indices, meshes int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = append(f.reserved, [3]int{vertices, indices, meshes})
	return true, nil
}

func (f *fakeTable) reservations() [][3]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][3]int(nil), f.reserved...)
}

func (f *fakeTable) has(c ChunkCoord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.meshes[c.ID()]
	return ok
}

func (f *fakeTable) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.meshes)
}

func testTerrainConfig() config.TerrainConfig {
	return config.TerrainConfig{
		Seed:            4,
		ChunkSize:       16,
		ChunkResolution: 4,
		ViewRadius:      2,
		HeightScale:     8,
		Workers:         3,
	}
}

func waitIdle(t *testing.T, s *Streamer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("streamer did not settle: %v", err)
	}
}

func TestStreamerLoadsRadius(t *testing.T) {
	table := newFakeTable()
	s := NewStreamer(testTerrainConfig(), table, nil)
	defer s.Close()

	s.Update(math.Vec3{X: 8, Z: 8})
	waitIdle(t, s)

	want := chunksInRadius(2)
	if got := s.Resident(); got != want {
		t.Errorf("expected %d resident chunks, got %d", want, got)
	}
	if got := table.len(); got != want {
		t.Errorf("expected %d meshes in table, got %d", want, got)
	}
	if !table.has(ChunkCoord{2, 0}) || table.has(ChunkCoord{2, 2}) {
		t.Error("resident set is not the circular radius")
	}
}

func TestStreamerMovesWithCamera(t *testing.T) {
	table := newFakeTable()
	s := NewStreamer(testTerrainConfig(), table, nil)
	defer s.Close()

	s.Update(math.Vec3{})
	waitIdle(t, s)

	// Move five chunks east: nothing overlaps a radius-2 circle.
	s.Update(math.Vec3{X: 5 * 16})
	waitIdle(t, s)

	want := chunksInRadius(2)
	if got := table.len(); got != want {
		t.Errorf("expected %d meshes after move, got %d", want, got)
	}
	if table.has(ChunkCoord{0, 0}) {
		t.Error("old center chunk still resident")
	}
	if !table.has(ChunkCoord{5, 0}) {
		t.Error("new center chunk not resident")
	}
	if table.removed != want {
		t.Errorf("expected %d removals, got %d", want, table.removed)
	}
}

func TestStreamerUpdateIsIdempotent(t *testing.T) {
	table := newFakeTable()
	s := NewStreamer(testTerrainConfig(), table, nil)
	defer s.Close()

	for range 10 {
		s.Update(math.Vec3{X: 3, Z: 3})
	}
	waitIdle(t, s)
	s.Update(math.Vec3{X: 4, Z: 4})

	if got := s.Pending(); got != 0 {
		t.Errorf("expected nothing queued for a settled center, got %d", got)
	}
	if got := table.len(); got != chunksInRadius(2) {
		t.Errorf("expected %d meshes, got %d", chunksInRadius(2), got)
	}
}

func TestStreamerTableErrors(t *testing.T) {
	table := newFakeTable()
	table.fail = true
	s := NewStreamer(testTerrainConfig(), table, nil)
	defer s.Close()

	s.Update(math.Vec3{})
	waitIdle(t, s)
	if got := s.Resident(); got != 0 {
		t.Errorf("expected no resident chunks, got %d", got)
	}

	// Failed chunks are not retried until they leave the radius.
	table.mu.Lock()
	table.fail = false
	table.mu.Unlock()
	s.Update(math.Vec3{})
	waitIdle(t, s)
	if got := table.len(); got != 0 {
		t.Errorf("expected failed chunks to stay out, got %d", got)
	}
}

func TestStreamerSkipsUnaddressableChunks(t *testing.T) {
	table := newFakeTable()
	cfg := testTerrainConfig()
	s := NewStreamer(cfg, table, nil)
	defer s.Close()

	// Centered on the last addressable X column: the chunks east of it
	// would alias the far west edge of the map.
	edge := ChunkCoord{X: MaxChunkX, Z: 0}
	s.Update(math.Vec3{X: (float32(edge.X) + 0.5) * cfg.ChunkSize, Z: 0.5 * cfg.ChunkSize})
	waitIdle(t, s)

	if !table.has(edge) {
		t.Fatal("edge chunk not resident")
	}
	if table.has(ChunkCoord{X: MinChunkX, Z: 0}) {
		t.Error("chunk past the edge was loaded under an aliased id")
	}
	// Columns X-2..X of a radius-2 circle: 1 + 3 + 5 chunks.
	if got := table.len(); got != 9 {
		t.Errorf("expected 9 addressable chunks, got %d", got)
	}
	for id := range table.meshes {
		if c := CoordFromID(id); c.X < edge.X-2 || c.X > edge.X {
			t.Errorf("unexpected chunk %v", c)
		}
	}
}

func TestStreamerReservesCapacity(t *testing.T) {
	table := newFakeTable()
	cfg := testTerrainConfig()
	s := NewStreamer(cfg, table, nil)
	defer s.Close()

	// Radius 2 holds 13 chunks of 5x5 vertices and 4x4 quads.
	got := table.reservations()
	if len(got) != 1 || got[0] != [3]int{13 * 25, 13 * 96, 13} {
		t.Fatalf("reservations on start = %v", got)
	}

	s.SetViewRadius(2)
	if n := len(table.reservations()); n != 1 {
		t.Errorf("unchanged radius reserved again (%d calls)", n)
	}

	s.SetViewRadius(3)
	got = table.reservations()
	want := chunksInRadius(3)
	if len(got) != 2 || got[1] != [3]int{want * 25, want * 96, want} {
		t.Errorf("reservations after growing = %v", got)
	}
	if s.ViewRadius() != 3 {
		t.Errorf("expected radius 3, got %d", s.ViewRadius())
	}
}

func TestStreamerShrinksWithRadius(t *testing.T) {
	table := newFakeTable()
	s := NewStreamer(testTerrainConfig(), table, nil)
	defer s.Close()

	s.Update(math.Vec3{X: 8, Z: 8})
	waitIdle(t, s)

	s.SetViewRadius(1)
	s.Update(math.Vec3{X: 8, Z: 8})
	waitIdle(t, s)
	if got := table.len(); got != chunksInRadius(1) {
		t.Errorf("expected %d meshes after shrinking, got %d", chunksInRadius(1), got)
	}
	if table.has(ChunkCoord{2, 0}) {
		t.Error("chunk outside the new radius still resident")
	}

	s.SetViewRadius(2)
	s.Update(math.Vec3{X: 8, Z: 8})
	waitIdle(t, s)
	if got := table.len(); got != chunksInRadius(2) {
		t.Errorf("expected %d meshes after growing back, got %d", chunksInRadius(2), got)
	}
}

func TestStreamerPresizesMeshTable(t *testing.T) {
	dev := soft.New(soft.Config{Features: soft.AllFeatures()})
	opts := indirect.DefaultOptions()
	opts.InitialVertices, opts.InitialIndices, opts.InitialMeshes = 0, 0, 0
	table, r := indirect.New(dev, opts, nil)
	defer r.Close()

	cfg := testTerrainConfig()
	cfg.ChunkResolution = 32
	s := NewStreamer(cfg, table, nil)
	defer s.Close()

	if !table.IsDirty() {
		t.Fatal("reservation did not mark the table dirty")
	}
	if err := r.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	gen := r.Generation()
	if got, want := r.VertexCapacity(), 13*33*33; got < want {
		t.Errorf("vertex capacity %d below the resident set's %d", got, want)
	}

	s.Update(math.Vec3{X: 8, Z: 8})
	waitIdle(t, s)
	if err := r.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if r.MeshCount() != 13 {
		t.Errorf("expected 13 commands, got %d", r.MeshCount())
	}
	if r.Generation() != gen {
		t.Error("streaming the reserved set reallocated buffers")
	}
}

func TestStreamerFeedsMeshTable(t *testing.T) {
	dev := soft.New(soft.Config{Features: soft.AllFeatures()})
	table, r := indirect.New(dev, indirect.DefaultOptions(), nil)
	defer r.Close()

	cfg := testTerrainConfig()
	cfg.ViewRadius = 1
	s := NewStreamer(cfg, table, nil)
	defer s.Close()

	s.Update(math.Vec3{})
	waitIdle(t, s)

	if got := table.MeshCount(); got != 5 {
		t.Fatalf("expected 5 meshes, got %d", got)
	}
	for _, info := range table.ActiveMeshInfos() {
		if !IsChunkID(info.ID) {
			t.Errorf("mesh %d is not a terrain chunk", info.ID)
		}
		if info.VertexCount != 25 {
			t.Errorf("chunk %v has %d vertices", CoordFromID(info.ID), info.VertexCount)
		}
	}
	if err := r.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if got := r.MeshCount(); got != 5 {
		t.Errorf("expected 5 commands, got %d", got)
	}
}
