package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	gomath "math"
	"math/rand/v2"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/camera"
	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/gpu/soft"
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/internal/engine/terrain"
	"github.com/Faultbox/strata/pkg/math"
)

const benchChunkSize = 32

// rig is a software device with a mesh table and renderer on top.
type rig struct {
	dev   *soft.Device
	table *indirect.MeshTable
	r     *indirect.Renderer
	hm    *terrain.Heightmap
}

func newRig(headroom float64, seed int64, log *zap.Logger) *rig {
	dev := soft.New(soft.Config{Features: soft.AllFeatures()})
	opts := indirect.OptionsFromConfig(config.Default().Indirect)
	opts.Headroom = headroom
	table, r := indirect.New(dev, opts, log)
	return &rig{dev: dev, table: table, r: r, hm: terrain.NewHeightmap(seed, 12)}
}

// chunk builds a terrain chunk turned by yaw about its own origin.
func (g *rig) chunk(c terrain.ChunkCoord, res int, yaw float32) terrain.Chunk {
	ch := terrain.BuildChunk(g.hm, c, benchChunkSize, res)
	if yaw != 0 {
		spin := math.QuatFromAxisAngle(math.Vec3{Y: 1}, yaw).ToMat4()
		ch.Model = ch.Model.Mul(spin)
	}
	return ch
}

// drawAll records an unculled draw of the full list and returns the number of
// decoded draws.
func (g *rig) drawAll() (int, error) {
	before := len(g.dev.Draws())
	err := g.dev.Submit(func(rec gpu.Recorder) {
		rec.BeginRenderPass(gpu.RenderPassDesc{Label: "packbench"})
		g.r.DrawPrepared(rec, 0)
		rec.EndRenderPass()
	})
	return len(g.dev.Draws()) - before, err
}

type churnOptions struct {
	Steps        int
	Meshes       int
	RebuildEvery int
	Resolution   int
	Headroom     float64
	Seed         int64
}

type churnReport struct {
	Adds, Replaces, Removes int
	Rebuilds                int
	Reallocations           int
	Live                    int
	Mismatches              int
	Violations              int
	Stats                   indirect.Stats
	RebuildTime             time.Duration
}

// runChurn drives random mutations against the table and checks after every
// rebuild that the device draws exactly the live meshes.
func runChurn(o churnOptions, log *zap.Logger) (churnReport, error) {
	var rep churnReport
	if o.Meshes < 1 || o.Resolution < 1 || o.RebuildEvery < 1 {
		return rep, fmt.Errorf("meshes, resolution and rebuild-every must be positive")
	}
	g := newRig(o.Headroom, o.Seed, log)
	defer g.r.Close()

	rng := rand.New(rand.NewPCG(uint64(o.Seed), 0x5eed))
	side := int(gomath.Ceil(gomath.Sqrt(float64(o.Meshes))))
	live := make(map[uint32]bool)

	for step := 1; step <= o.Steps; step++ {
		i := rng.IntN(o.Meshes)
		coord := terrain.ChunkCoord{X: int32(i % side), Z: int32(i / side)}
		id := coord.ID()

		if live[id] && rng.IntN(3) == 0 {
			g.table.Remove(id)
			// Meshes added since the last rebuild are not on the GPU yet.
			if err := g.r.EraseMeshFromGPU(id); err != nil && !errors.Is(err, indirect.ErrUnknownMesh) {
				return rep, fmt.Errorf("step %d: %w", step, err)
			}
			delete(live, id)
			rep.Removes++
		} else {
			ch := g.chunk(coord, 1+rng.IntN(o.Resolution), rng.Float32()*2*gomath.Pi)
			if _, err := g.table.AddOrReplace(ch.Geometry, ch.Model, id); err != nil {
				return rep, fmt.Errorf("step %d: %w", step, err)
			}
			if live[id] {
				rep.Replaces++
			} else {
				rep.Adds++
			}
			live[id] = true
		}

		if step%o.RebuildEvery != 0 && step != o.Steps {
			continue
		}
		start := time.Now()
		if err := g.r.Rebuild(); err != nil {
			return rep, fmt.Errorf("step %d: %w", step, err)
		}
		rep.RebuildTime += time.Since(start)
		n, err := g.drawAll()
		if err != nil {
			return rep, fmt.Errorf("step %d: %w", step, err)
		}
		if n != len(live) {
			rep.Mismatches++
		}
	}

	rep.Live = len(live)
	rep.Stats = g.r.Stats()
	rep.Rebuilds = rep.Stats.Rebuilds
	rep.Reallocations = rep.Stats.Reallocations
	rep.Violations = len(g.dev.Violations())
	return rep, nil
}

func cmdChurn(args []string) error {
	fs := flag.NewFlagSet("churn", flag.ExitOnError)
	var o churnOptions
	fs.IntVar(&o.Steps, "steps", 1000, "Number of mutations")
	fs.IntVar(&o.Meshes, "meshes", 200, "Size of the mesh id pool")
	fs.IntVar(&o.RebuildEvery, "rebuild-every", 10, "Rebuild after this many mutations")
	fs.IntVar(&o.Resolution, "res", 16, "Maximum chunk resolution")
	fs.Float64Var(&o.Headroom, "headroom", 0.25, "Growth headroom")
	fs.Int64Var(&o.Seed, "seed", 1, "Random seed")
	verbose := commonFlags(fs)
	fs.Parse(args)

	log, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	rep, err := runChurn(o, log)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Mutations:\t%d adds, %d replaces, %d removes\n", rep.Adds, rep.Replaces, rep.Removes)
	fmt.Fprintf(w, "Live meshes:\t%d\n", rep.Live)
	fmt.Fprintf(w, "Rebuilds:\t%d (%d reallocations)\n", rep.Rebuilds, rep.Reallocations)
	if rep.Rebuilds > 0 {
		fmt.Fprintf(w, "Rebuild time:\t%v total, %v avg\n", rep.RebuildTime, rep.RebuildTime/time.Duration(rep.Rebuilds))
	}
	fmt.Fprintf(w, "Vertices:\t%d / %d\n", rep.Stats.Vertices, rep.Stats.VertexCapacity)
	fmt.Fprintf(w, "Indices:\t%d / %d\n", rep.Stats.Indices, rep.Stats.IndexCapacity)
	fmt.Fprintf(w, "Meshes:\t%d / %d\n", rep.Stats.Meshes, rep.Stats.MeshCapacity)
	fmt.Fprintf(w, "Draw mismatches:\t%d\n", rep.Mismatches)
	fmt.Fprintf(w, "Device violations:\t%d\n", rep.Violations)
	w.Flush()

	if rep.Mismatches > 0 || rep.Violations > 0 {
		return fmt.Errorf("churn found %d mismatches and %d violations", rep.Mismatches, rep.Violations)
	}
	return nil
}

type capacityOptions struct {
	Meshes     int
	Resolution int
	Headroom   float64
	Seed       int64
}

type capacityRow struct {
	Meshes         int
	Vertices       int
	Indices        int
	VertexCapacity int
	IndexCapacity  int
	MeshCapacity   int
	Reallocated    bool
}

// runCapacity adds one chunk per rebuild and records the buffer capacities.
func runCapacity(o capacityOptions, log *zap.Logger) ([]capacityRow, error) {
	g := newRig(o.Headroom, o.Seed, log)
	defer g.r.Close()

	side := int(gomath.Ceil(gomath.Sqrt(float64(o.Meshes))))
	rows := make([]capacityRow, 0, o.Meshes)
	reallocs := 0
	for i := range o.Meshes {
		coord := terrain.ChunkCoord{X: int32(i % side), Z: int32(i / side)}
		ch := g.chunk(coord, o.Resolution, 0)
		if _, err := g.table.AddOrReplace(ch.Geometry, ch.Model, coord.ID()); err != nil {
			return rows, err
		}
		if err := g.r.Rebuild(); err != nil {
			return rows, err
		}
		s := g.r.Stats()
		rows = append(rows, capacityRow{
			Meshes:         s.Meshes,
			Vertices:       s.Vertices,
			Indices:        s.Indices,
			VertexCapacity: s.VertexCapacity,
			IndexCapacity:  s.IndexCapacity,
			MeshCapacity:   s.MeshCapacity,
			Reallocated:    s.Reallocations > reallocs,
		})
		reallocs = s.Reallocations
	}
	return rows, nil
}

func cmdCapacity(args []string) error {
	fs := flag.NewFlagSet("capacity", flag.ExitOnError)
	var o capacityOptions
	fs.IntVar(&o.Meshes, "meshes", 100, "Number of chunks to add")
	fs.IntVar(&o.Resolution, "res", 16, "Chunk resolution")
	fs.Float64Var(&o.Headroom, "headroom", 0.25, "Growth headroom")
	fs.Int64Var(&o.Seed, "seed", 1, "Terrain seed")
	all := fs.Bool("all", false, "Print every step, not only reallocations")
	verbose := commonFlags(fs)
	fs.Parse(args)

	log, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	rows, err := runCapacity(o, log)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "meshes\tvertices\tvertex cap\tindices\tindex cap\tmesh cap\t")
	grows := 0
	for _, r := range rows {
		if r.Reallocated {
			grows++
		}
		if !r.Reallocated && !*all {
			continue
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t\n",
			r.Meshes, r.Vertices, r.VertexCapacity, r.Indices, r.IndexCapacity, r.MeshCapacity)
	}
	w.Flush()
	fmt.Printf("\n%d reallocations over %d rebuilds\n", grows, len(rows))
	return nil
}

type cullOptions struct {
	Grid       int
	Resolution int
	Angles     int
	MaxDraws   uint32
	Seed       int64
}

type cullRow struct {
	Yaw       float32
	GPU       int
	Reference int
	Match     bool
}

// runCull orbits a camera over a grid of chunks and compares the compacted
// list the cull pass writes with the CPU reference.
func runCull(o cullOptions, log *zap.Logger) ([]cullRow, error) {
	if o.Grid < 1 || o.Angles < 1 {
		return nil, fmt.Errorf("grid and angles must be positive")
	}
	g := newRig(0.25, o.Seed, log)
	defer g.r.Close()

	half := int32(o.Grid / 2)
	for z := range int32(o.Grid) {
		for x := range int32(o.Grid) {
			ch := g.chunk(terrain.ChunkCoord{X: x - half, Z: z - half}, o.Resolution, 0)
			if _, err := g.table.AddOrReplace(ch.Geometry, ch.Model, ch.Coord.ID()); err != nil {
				return nil, err
			}
		}
	}
	if err := g.r.Rebuild(); err != nil {
		return nil, err
	}
	records := g.table.ActiveMeshInfos()

	cam := camera.NewOrbitCamera()
	cam.Distance = float32(o.Grid) * benchChunkSize * 0.4
	cam.RotationX = 0.35

	rows := make([]cullRow, 0, o.Angles)
	for a := range o.Angles {
		cam.RotationY = float32(a) * 2 * gomath.Pi / float32(o.Angles)
		vp := cam.ViewProjection(16.0 / 9.0)

		if err := g.dev.Submit(func(rec gpu.Recorder) {
			g.r.PrepareCull(rec, vp, o.MaxDraws)
		}); err != nil {
			return rows, err
		}
		visible, err := g.r.ReadVisibleCount()
		if err != nil {
			return rows, err
		}

		want := indirect.CullReference(records, vp, o.MaxDraws)
		got := readCompact(g.dev.Bytes(g.r.CompactBuffer()), min(int(visible), len(want)))

		rows = append(rows, cullRow{
			Yaw:       cam.RotationY,
			GPU:       int(visible),
			Reference: len(indirect.CullReference(records, vp, 0)),
			Match:     sameDraws(got, want),
		})
	}
	return rows, nil
}

// readCompact decodes the first n commands of the compacted list.
func readCompact(raw []byte, n int) []indirect.IndirectCommand {
	out := make([]indirect.IndirectCommand, 0, n)
	for i := range n {
		c := raw[i*indirect.IndirectCommandSize:]
		out = append(out, indirect.IndirectCommand{
			IndexCount:    binary.LittleEndian.Uint32(c[0:]),
			InstanceCount: binary.LittleEndian.Uint32(c[4:]),
			FirstIndex:    binary.LittleEndian.Uint32(c[8:]),
			VertexOffset:  int32(binary.LittleEndian.Uint32(c[12:])),
			FirstInstance: binary.LittleEndian.Uint32(c[16:]),
		})
	}
	return out
}

// sameDraws compares two command lists ignoring order. The cull pass
// compacts in completion order, not draw order.
func sameDraws(got, want []indirect.IndirectCommand) bool {
	if len(got) != len(want) {
		return false
	}
	key := func(c indirect.IndirectCommand) uint32 { return c.FirstInstance }
	a := make([]uint32, len(got))
	b := make([]uint32, len(want))
	for i := range got {
		a[i], b[i] = key(got[i]), key(want[i])
	}
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func cmdCull(args []string) error {
	fs := flag.NewFlagSet("cull", flag.ExitOnError)
	var o cullOptions
	fs.IntVar(&o.Grid, "grid", 16, "Chunks per side")
	fs.IntVar(&o.Resolution, "res", 8, "Chunk resolution")
	fs.IntVar(&o.Angles, "angles", 8, "Camera positions around the orbit")
	maxDraws := fs.Uint("max-draws", 0, "Bound on the compacted list (0 = none)")
	fs.Int64Var(&o.Seed, "seed", 1, "Terrain seed")
	verbose := commonFlags(fs)
	fs.Parse(args)
	o.MaxDraws = uint32(*maxDraws)

	log, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	rows, err := runCull(o, log)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "yaw\tgpu visible\treference\tmatch")
	mismatches := 0
	for _, r := range rows {
		if !r.Match {
			mismatches++
		}
		fmt.Fprintf(w, "%.2f\t%d\t%d\t%v\n", r.Yaw, r.GPU, r.Reference, r.Match)
	}
	w.Flush()
	fmt.Printf("\n%d meshes, %d/%d views match\n", o.Grid*o.Grid, len(rows)-mismatches, len(rows))
	if mismatches > 0 {
		return fmt.Errorf("%d views disagree with the reference", mismatches)
	}
	return nil
}
