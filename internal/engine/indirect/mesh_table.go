package indirect

import (
	"fmt"
	gomath "math"
	"sync"

	"github.com/Faultbox/strata/pkg/math"
)

// MeshRecord describes one packed mesh. Offsets refer to the merged arrays
// as of the last repack.
type MeshRecord struct {
	ID          uint32
	BaseVertex  int32
	FirstIndex  uint32
	IndexCount  uint32
	VertexCount uint32
	Model       math.Mat4
	// Bounds is the object-space box of the mesh's vertex positions.
	Bounds math.AABB
	// DrawIndex is the draw-order slot, also used as the command's
	// FirstInstance.
	DrawIndex      uint32
	IndirectOffset int64
	Active         bool
}

// capacity counts elements, not bytes.
type capacity struct {
	vertices int
	indices  int
	meshes   int
}

// MeshTable is the CPU-side packer and the mutation handle of the renderer.
// All methods are safe for concurrent use.
//
// The merged vertex and index slices are never written after they are
// published: every mutation that changes geometry builds fresh slices, so
// a snapshot taken under the lock stays valid after it is released.
type MeshTable struct {
	mu       sync.Mutex
	headroom float64

	records  []MeshRecord
	index    map[uint32]int
	vertices []Vertex
	indices  []uint32
	nextID   uint32
	dirty    bool

	current capacity
	target  capacity
}

func newMeshTable(headroom float64, initial capacity) *MeshTable {
	return &MeshTable{
		headroom: headroom,
		index:    make(map[uint32]int),
		nextID:   1,
		target:   initial,
	}
}

// Add packs g under the next free automatic id and returns the id.
func (t *MeshTable) Add(g Geometry, model math.Mat4) (uint32, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	for {
		if _, used := t.index[id]; !used && id != 0 {
			break
		}
		id++
	}
	if err := t.replaceLocked(g, model, id); err != nil {
		return 0, err
	}
	return id, nil
}

// AddOrReplace packs g under id. An existing mesh with the same id is
// dropped and the new geometry is appended after every other active mesh.
//
// Each call re-linearizes the whole table, so callers should batch
// mutations rather than issue them per frame.
func (t *MeshTable) AddOrReplace(g Geometry, model math.Mat4, id uint32) (uint32, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.replaceLocked(g, model, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *MeshTable) replaceLocked(g Geometry, model math.Mat4, id uint32) error {
	vertexTotal := int64(len(g.Vertices))
	indexTotal := int64(len(g.Indices))
	meshTotal := int64(1)
	for i := range t.records {
		r := &t.records[i]
		if !r.Active || r.ID == id {
			continue
		}
		vertexTotal += int64(r.VertexCount)
		indexTotal += int64(r.IndexCount)
		meshTotal++
	}
	if vertexTotal > maxVertexCount || indexTotal > maxIndexCount || meshTotal > maxMeshCount {
		return fmt.Errorf("%w: packing mesh %d would need %d vertices, %d indices",
			ErrCapacityOverflow, id, vertexTotal, indexTotal)
	}

	p := newPacker(int(vertexTotal), int(indexTotal), int(meshTotal))
	for i := range t.records {
		r := &t.records[i]
		if !r.Active || r.ID == id {
			continue
		}
		p.appendRecord(*r, t.vertices, t.indices)
	}
	p.append(MeshRecord{
		ID:     id,
		Model:  model,
		Bounds: g.Bounds(),
		Active: true,
	}, g.Vertices, g.Indices)

	t.publish(p)
	if id >= t.nextID && id != gomath.MaxUint32 {
		t.nextID = id + 1
	}
	return nil
}

// Remove marks the mesh inactive. Its geometry stays in the merged arrays
// until the next rebuild. It reports whether id was active.
func (t *MeshTable) Remove(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return false
	}
	t.records[i].Active = false
	delete(t.index, id)
	t.dirty = true
	return true
}

// EnsureCapacity reserves room for the given totals plus headroom. It marks
// the table dirty and returns true when the next rebuild has to grow a
// buffer. Capacities never shrink.
func (t *MeshTable) EnsureCapacity(vertices, indices, meshes int) (bool, error) {
	if vertices < 0 || indices < 0 || meshes < 0 {
		return false, fmt.Errorf("%w: negative capacity request %d/%d/%d", ErrCapacityOverflow, vertices, indices, meshes)
	}
	var need capacity
	var okV, okI, okM bool
	need.vertices, okV = withHeadroom(vertices, t.headroom, maxVertexCount)
	need.indices, okI = withHeadroom(indices, t.headroom, maxIndexCount)
	need.meshes, okM = withHeadroom(meshes, t.headroom, maxMeshCount)
	if !okV || !okI || !okM {
		return false, fmt.Errorf("%w: capacity request %d/%d/%d", ErrCapacityOverflow, vertices, indices, meshes)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	grow := false
	if need.vertices > max(t.current.vertices, t.target.vertices) {
		t.target.vertices = need.vertices
		grow = true
	}
	if need.indices > max(t.current.indices, t.target.indices) {
		t.target.indices = need.indices
		grow = true
	}
	if need.meshes > max(t.current.meshes, t.target.meshes) {
		t.target.meshes = need.meshes
		grow = true
	}
	if grow {
		t.dirty = true
	}
	return grow, nil
}

// MeshInfo returns a copy of the active record for id.
func (t *MeshTable) MeshInfo(id uint32) (MeshRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return MeshRecord{}, false
	}
	return t.records[i], true
}

// ActiveMeshInfos returns copies of all active records in draw order.
func (t *MeshTable) ActiveMeshInfos() []MeshRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]MeshRecord, 0, len(t.index))
	for _, r := range t.records {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// MeshCount returns the number of active meshes.
func (t *MeshTable) MeshCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

// IsDirty reports whether a rebuild is pending.
func (t *MeshTable) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// Merged returns the merged vertex and index arrays, including geometry of
// meshes removed since the last rebuild. The slices must not be modified.
func (t *MeshTable) Merged() ([]Vertex, []uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vertices, t.indices
}

// snapshot is the table state a rebuild uploads.
type snapshot struct {
	records  []MeshRecord
	vertices []Vertex
	indices  []uint32
	target   capacity
}

// snapshot evicts inactive meshes, clears the dirty flag and returns the
// packed state. It returns false when nothing changed since the last call.
func (t *MeshTable) snapshot() (snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dirty {
		return snapshot{}, false
	}
	if len(t.index) != len(t.records) {
		p := newPacker(0, 0, len(t.index))
		for _, r := range t.records {
			if r.Active {
				p.appendRecord(r, t.vertices, t.indices)
			}
		}
		t.publish(p)
	}
	t.dirty = false
	return snapshot{
		records:  append([]MeshRecord(nil), t.records...),
		vertices: t.vertices,
		indices:  t.indices,
		target:   t.target,
	}, true
}

// markDirty makes the next snapshot report changes again, after an upload
// of the previous one failed.
func (t *MeshTable) markDirty() {
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
}

// setCapacity records the capacities a rebuild allocated.
func (t *MeshTable) setCapacity(c capacity) {
	t.mu.Lock()
	t.current = c
	t.mu.Unlock()
}

func (t *MeshTable) publish(p *packer) {
	t.records = p.records
	t.vertices = p.vertices
	t.indices = p.indices
	t.index = make(map[uint32]int, len(p.records))
	for i, r := range p.records {
		t.index[r.ID] = i
	}
	t.dirty = true
}

// packer builds fresh merged arrays in draw order.
type packer struct {
	records  []MeshRecord
	vertices []Vertex
	indices  []uint32
}

func newPacker(vertices, indices, meshes int) *packer {
	return &packer{
		records:  make([]MeshRecord, 0, meshes),
		vertices: make([]Vertex, 0, vertices),
		indices:  make([]uint32, 0, indices),
	}
}

func (p *packer) appendRecord(r MeshRecord, vertices []Vertex, indices []uint32) {
	vs := vertices[r.BaseVertex : int64(r.BaseVertex)+int64(r.VertexCount)]
	is := indices[r.FirstIndex : int64(r.FirstIndex)+int64(r.IndexCount)]
	p.append(r, vs, is)
}

func (p *packer) append(r MeshRecord, vs []Vertex, is []uint32) {
	r.BaseVertex = int32(len(p.vertices))
	r.FirstIndex = uint32(len(p.indices))
	r.VertexCount = uint32(len(vs))
	r.IndexCount = uint32(len(is))
	r.DrawIndex = uint32(len(p.records))
	r.IndirectOffset = int64(r.DrawIndex) * IndirectCommandSize
	p.vertices = append(p.vertices, vs...)
	p.indices = append(p.indices, is...)
	p.records = append(p.records, r)
}

// withHeadroom returns n grown by the fractional headroom, rounded up. It
// reports false when the grown count would exceed limit; the check runs in
// float64 so huge n cannot wrap on the conversion back to int.
func withHeadroom(n int, headroom float64, limit int64) (int, bool) {
	if n == 0 {
		return 0, true
	}
	grown := gomath.Ceil(float64(n) * (1 + headroom))
	if grown > float64(limit) {
		return 0, false
	}
	return int(grown), true
}
