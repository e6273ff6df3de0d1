// Package indirect packs many meshes into shared vertex and index buffers
// and draws them with a single GPU-culled indirect draw.
//
// New returns two handles. The MeshTable is safe for concurrent use and is
// where meshes are added, replaced and removed. The Renderer issues GPU
// work and must only be used by the goroutine that records frames:
//
//	table, r := indirect.New(dev, opts, log)
//	id, _ := table.Add(geom, model)
//	// every frame
//	r.Rebuild()
//	dev.Submit(func(rec gpu.Recorder) {
//		r.PrepareCull(rec, viewProj, 0)
//		rec.BeginRenderPass(pass)
//		r.DrawPrepared(rec, 0)
//		rec.EndRenderPass()
//	})
package indirect

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/logger"
	"github.com/Faultbox/strata/pkg/math"
)

// Smallest buffers a rebuild allocates.
const (
	minVertexCapacity = 1024
	minIndexCapacity  = 3072
	minMeshCapacity   = 64
)

// Options configures the renderer.
type Options struct {
	// Headroom is the fractional slack added whenever a buffer grows.
	Headroom        float64
	InitialVertices int
	InitialIndices  int
	InitialMeshes   int
	// Cull enables the GPU frustum-cull pass.
	Cull bool
	// IndirectCount is config.IndirectCountAuto, On or Off.
	IndirectCount string
	// SPIRV loads the cull shader from WGSL compiled to SPIR-V.
	SPIRV bool
}

// DefaultOptions returns the options of the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Indirect)
}

// OptionsFromConfig converts the indirect section of the configuration.
func OptionsFromConfig(c config.IndirectConfig) Options {
	return Options{
		Headroom:        c.Headroom,
		InitialVertices: c.InitialVertices,
		InitialIndices:  c.InitialIndices,
		InitialMeshes:   c.InitialMeshes,
		Cull:            c.Cull,
		IndirectCount:   c.IndirectCount,
		SPIRV:           c.CullShader == config.CullShaderSPIRV,
	}
}

// Stats describes the renderer after its last rebuild.
type Stats struct {
	Meshes         int
	Vertices       int
	Indices        int
	VertexCapacity int
	IndexCapacity  int
	MeshCapacity   int
	Rebuilds       int
	Reallocations  int
	LastRebuild    time.Duration
	Culling        bool
	IndirectCount  bool
}

// Renderer is the render handle: it owns the GPU buffers and records the
// cull and draw commands. It is not safe for concurrent use.
type Renderer struct {
	dev   gpu.Device
	table *MeshTable
	opts  Options
	log   *zap.Logger
	once  *logger.Once
	reg   *gpu.Registry

	geom geometryBuffer
	cmds commandSet
	cull culler

	built      bool
	culled     bool
	generation uint64
	stats      Stats

	readbacks gpu.CompletionQueue[gpu.Buffer]
	staging   []gpu.Buffer
	free      []gpu.Buffer
	lastCount uint32
}

// New creates a mesh table and the renderer that uploads it to dev.
func New(dev gpu.Device, opts Options, log *zap.Logger) (*MeshTable, *Renderer) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("indirect")
	if opts.Headroom < 0 {
		opts.Headroom = 0
	}

	table := newMeshTable(opts.Headroom, capacity{
		vertices: opts.InitialVertices,
		indices:  opts.InitialIndices,
		meshes:   opts.InitialMeshes,
	})
	reg := gpu.NewRegistry(log)
	once := logger.NewOnce(log)

	r := &Renderer{
		dev:   dev,
		table: table,
		opts:  opts,
		log:   log,
		once:  once,
		reg:   reg,
		geom:  geometryBuffer{dev: dev, reg: reg},
		cmds:  commandSet{dev: dev, reg: reg},
		cull: culler{
			dev:      dev,
			reg:      reg,
			log:      log,
			once:     once,
			enabled:  opts.Cull,
			useSPIRV: opts.SPIRV,
		},
	}
	return table, r
}

// Table returns the mutation handle the renderer uploads from.
func (r *Renderer) Table() *MeshTable { return r.table }

// IsDirty reports whether the next Rebuild has work to do.
func (r *Renderer) IsDirty() bool { return r.table.IsDirty() }

// Rebuild uploads the mesh table if it changed since the last call. It
// waits for the device to go idle first, since buffers may be replaced.
// Allocation failures are returned; the renderer then draws nothing and
// the table stays dirty, so the next Rebuild retries the upload.
func (r *Renderer) Rebuild() (err error) {
	snap, ok := r.table.snapshot()
	if !ok {
		return nil
	}
	defer func() {
		if err != nil {
			r.built = false
			r.culled = false
			r.table.markDirty()
		}
	}()
	start := time.Now()

	if err := r.dev.WaitIdle(); err != nil {
		return fmt.Errorf("rebuild: wait idle: %w", err)
	}

	h := r.opts.Headroom
	want := capacity{
		vertices: nextCapacity(r.geom.vertexCapacity, snap.target.vertices, len(snap.vertices), minVertexCapacity, h, maxVertexCount),
		indices:  nextCapacity(r.geom.indexCapacity, snap.target.indices, len(snap.indices), minIndexCapacity, h, maxIndexCount),
		meshes:   nextCapacity(r.cmds.capacity, snap.target.meshes, len(snap.records), minMeshCapacity, h, maxMeshCount),
	}

	grewGeom, err := r.geom.reserve(want.vertices, want.indices)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	grewCmds, err := r.cmds.reserve(want.meshes)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	r.reg.Collect()

	if err := r.geom.upload(snap.vertices, snap.indices); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	if err := r.cmds.upload(snap.records); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	r.table.setCapacity(want)

	if grewGeom || grewCmds || !r.built {
		r.generation++
		r.stats.Reallocations++
		r.cull.bind(&r.cmds)
		r.log.Debug("buffers reallocated",
			zap.Int("vertex_capacity", want.vertices),
			zap.Int("index_capacity", want.indices),
			zap.Int("mesh_capacity", want.meshes),
		)
	}

	r.built = true
	r.culled = false
	r.stats.Rebuilds++
	r.stats.LastRebuild = time.Since(start)
	r.stats.Meshes = len(snap.records)
	r.stats.Vertices = len(snap.vertices)
	r.stats.Indices = len(snap.indices)
	r.stats.VertexCapacity = want.vertices
	r.stats.IndexCapacity = want.indices
	r.stats.MeshCapacity = want.meshes

	r.log.Debug("rebuilt",
		zap.Int("meshes", len(snap.records)),
		zap.Int("vertices", len(snap.vertices)),
		zap.Int("indices", len(snap.indices)),
		zap.Duration("took", r.stats.LastRebuild),
	)
	return nil
}

// nextCapacity keeps the current capacity unless count or an explicit
// target exceeds it. Growth for count includes headroom, clamped to limit.
func nextCapacity(current, target, count, floor int, headroom float64, limit int64) int {
	want := max(current, target, floor)
	if count > want {
		grown, ok := withHeadroom(count, headroom, limit)
		if !ok {
			grown = int(limit)
		}
		want = grown
	}
	return want
}

// EraseMeshFromGPU hides a mesh from the current GPU buffers without a
// rebuild by zeroing its command and inverting its bounds. The write is
// synchronous.
func (r *Renderer) EraseMeshFromGPU(id uint32) error {
	return r.cmds.erase(id)
}

// PrepareCull records the frustum-cull pass. It must be recorded outside
// any render pass and before DrawPrepared. maxDraws bounds the compacted
// list; zero means no bound.
func (r *Renderer) PrepareCull(rec gpu.Recorder, viewProj math.Mat4, maxDraws uint32) {
	if !r.built || r.cmds.count == 0 || !r.cull.enabled {
		return
	}
	if !r.cull.ready() {
		r.once.Warn("cull-skipped", "cull pass skipped, pipeline unavailable")
		return
	}
	r.cull.record(rec, &r.cmds, viewProj, maxDraws)
	r.culled = true
}

// DrawPrepared binds the merged buffers and issues the indirect draw.
// It must be recorded inside a render pass.
func (r *Renderer) DrawPrepared(rec gpu.Recorder, maxDraws uint32) {
	if !r.ready() {
		r.once.Warn("draw-before-rebuild", "draw skipped, buffers not built")
		return
	}
	r.BindBuffers(rec)
	r.DrawIndirectOnly(rec, maxDraws)
}

// BindBuffers binds the merged vertex and index buffers.
func (r *Renderer) BindBuffers(rec gpu.Recorder) {
	if !r.ready() {
		r.once.Warn("bind-before-rebuild", "bind skipped, buffers not built")
		return
	}
	rec.SetVertexBuffer(r.geom.vertices, VertexLayout)
	rec.SetIndexBuffer(r.geom.indices)
}

// DrawIndirectOnly issues the indirect draw against already bound buffers.
//
// After a cull pass on a device with indirect-count draws it draws the
// compacted list, bounded by maxDraws when non-zero. Otherwise it draws
// the full command list and culling has no effect.
func (r *Renderer) DrawIndirectOnly(rec gpu.Recorder, maxDraws uint32) {
	if !r.ready() {
		r.once.Warn("draw-before-rebuild", "draw skipped, buffers not built")
		return
	}
	n := uint32(r.cmds.count)
	if n == 0 {
		return
	}
	if r.useIndirectCount() {
		limit := n
		if maxDraws != 0 && maxDraws < n {
			limit = maxDraws
		}
		rec.DrawIndexedIndirectCount(r.cmds.compact, 0, r.cmds.visible, 0, limit, IndirectCommandSize)
		return
	}
	rec.DrawIndexedIndirect(r.cmds.commands, 0, n, IndirectCommandSize)
}

func (r *Renderer) ready() bool {
	return r.built && r.geom.ready() && r.cmds.commands != nil
}

// indirectCountActive decides between the compacted and the full list.
func (r *Renderer) indirectCountActive() bool {
	return r.culled && r.cull.ready() &&
		r.opts.IndirectCount != config.IndirectCountOff &&
		r.dev.Features().DrawIndirectCount
}

// useIndirectCount is indirectCountActive for the draw path. It logs once
// when culling ran but the device cannot consume the compacted list.
func (r *Renderer) useIndirectCount() bool {
	if r.indirectCountActive() {
		return true
	}
	if !r.culled || !r.cull.ready() || r.dev.Features().DrawIndirectCount {
		return false
	}
	switch r.opts.IndirectCount {
	case config.IndirectCountOff:
	case config.IndirectCountOn:
		r.once.Warn("indirect-count-missing", "indirect count draws requested but unsupported, drawing full list")
	default:
		r.once.Info("indirect-count-fallback", "indirect count draws unsupported, culling is advisory")
	}
	return false
}

// ReadVisibleCount waits for the device to go idle and reads the number of
// meshes the last cull pass kept. It stalls the pipeline and is meant for
// diagnostics only.
func (r *Renderer) ReadVisibleCount() (uint32, error) {
	if r.cmds.visible == nil {
		return 0, nil
	}
	if err := r.dev.WaitIdle(); err != nil {
		return 0, fmt.Errorf("read visible count: %w", err)
	}
	var b [4]byte
	if err := r.dev.ReadBuffer(r.cmds.visible, 0, b[:]); err != nil {
		return 0, fmt.Errorf("read visible count: %w", err)
	}
	return decodeCount(b), nil
}

// Stats returns counters describing the last rebuild.
func (r *Renderer) Stats() Stats {
	s := r.stats
	s.Culling = r.cull.ready()
	s.IndirectCount = r.indirectCountActive()
	return s
}

// Generation increments whenever the GPU buffers are replaced. Callers
// that bind the buffers themselves rebind when it changes.
func (r *Renderer) Generation() uint64 { return r.generation }

// MeshCount returns the number of draws uploaded by the last rebuild.
func (r *Renderer) MeshCount() int { return r.cmds.count }

func (r *Renderer) VertexBuffer() gpu.Buffer       { return r.geom.vertices }
func (r *Renderer) IndexBuffer() gpu.Buffer        { return r.geom.indices }
func (r *Renderer) IndirectBuffer() gpu.Buffer     { return r.cmds.commands }
func (r *Renderer) CompactBuffer() gpu.Buffer      { return r.cmds.compact }
func (r *Renderer) ModelsBuffer() gpu.Buffer       { return r.cmds.models }
func (r *Renderer) BoundsBuffer() gpu.Buffer       { return r.cmds.bounds }
func (r *Renderer) VisibleCountBuffer() gpu.Buffer { return r.cmds.visible }

// CullPipeline returns the cull pipeline, or nil if it was never created.
func (r *Renderer) CullPipeline() gpu.ComputePipeline { return r.cull.pipeline }

func (r *Renderer) VertexCapacity() int { return r.geom.vertexCapacity }
func (r *Renderer) IndexCapacity() int  { return r.geom.indexCapacity }
func (r *Renderer) MeshCapacity() int   { return r.cmds.capacity }

// Close waits for the device and destroys every GPU resource. Readbacks
// still in flight after a second are abandoned and reported in the error.
func (r *Renderer) Close() error {
	err := r.dev.WaitIdle()
	if derr := r.readbacks.Drain(time.Second, func(gpu.Buffer) {}); derr != nil {
		r.readbacks.Discard(func(gpu.Buffer) {})
		err = errors.Join(err, fmt.Errorf("draining readbacks: %w", derr))
	}
	r.reg.Close()
	r.geom = geometryBuffer{dev: r.dev, reg: r.reg}
	r.cmds = commandSet{dev: r.dev, reg: r.reg}
	r.cull.pipeline, r.cull.group = nil, nil
	r.staging, r.free = nil, nil
	r.built = false
	return err
}
