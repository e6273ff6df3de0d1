package terrain

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/pkg/math"
)

// Table is the part of indirect.MeshTable the streamer mutates.
type Table interface {
	AddOrReplace(g indirect.Geometry, model math.Mat4, id uint32) (uint32, error)
	Remove(id uint32) bool
	EnsureCapacity(vertices, indices, meshes int) (bool, error)
}

type chunkState uint8

const (
	chunkPending chunkState = iota
	chunkResident
	chunkFailed
)

type chunkEntry struct {
	state chunkState
	// ticket distinguishes a re-requested chunk from a stale job for it.
	ticket uint64
}

type chunkJob struct {
	coord  ChunkCoord
	ticket uint64
}

// Streamer keeps the chunks within a radius of the camera resident in a mesh
// table. Meshes are built on worker goroutines and written to the table
// concurrently with rendering.
type Streamer struct {
	cfg   config.TerrainConfig
	hm    *Heightmap
	table Table
	log   *zap.Logger

	mu      sync.Mutex
	chunks  map[ChunkCoord]*chunkEntry
	pending int
	ticket  uint64
	center  ChunkCoord
	started bool

	jobs    chan chunkJob
	changed chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewStreamer starts cfg.Workers build goroutines feeding table.
func NewStreamer(cfg config.TerrainConfig, table Table, log *zap.Logger) *Streamer {
	if log == nil {
		log = zap.NewNop()
	}
	workers := max(cfg.Workers, 1)
	side := 2*cfg.ViewRadius + 1

	s := &Streamer{
		cfg:     cfg,
		hm:      NewHeightmap(cfg.Seed, cfg.HeightScale),
		table:   table,
		log:     log.Named("terrain"),
		chunks:  make(map[ChunkCoord]*chunkEntry),
		jobs:    make(chan chunkJob, side*side),
		changed: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	s.reserve()
	for range workers {
		s.wg.Add(1)
		go s.worker()
	}
	s.log.Info("terrain streamer started",
		zap.Int("workers", workers),
		zap.Int("view_radius", cfg.ViewRadius),
		zap.Int("chunk_resolution", cfg.ChunkResolution),
	)
	return s
}

// Heightmap returns the height field chunks are built from.
func (s *Streamer) Heightmap() *Heightmap { return s.hm }

// SetViewRadius changes the resident radius and reserves table capacity
// for it. The next Update loads or drops chunks to match.
func (s *Streamer) SetViewRadius(r int) {
	r = max(r, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == s.cfg.ViewRadius {
		return
	}
	s.log.Info("view radius changed", zap.Int("from", s.cfg.ViewRadius), zap.Int("to", r))
	s.cfg.ViewRadius = r
	s.started = false
	s.reserve()
}

// ViewRadius returns the resident radius in chunks.
func (s *Streamer) ViewRadius() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ViewRadius
}

// reserve asks the table for room for a full resident set, so streaming
// in a new radius does not grow the buffers chunk by chunk. Callers hold
// s.mu.
func (s *Streamer) reserve() {
	meshes := chunksInRadius(s.cfg.ViewRadius)
	res := s.cfg.ChunkResolution
	vertices := meshes * (res + 1) * (res + 1)
	indices := meshes * res * res * 6
	grow, err := s.table.EnsureCapacity(vertices, indices, meshes)
	if err != nil {
		s.log.Error("failed to reserve terrain capacity",
			zap.Int("view_radius", s.cfg.ViewRadius),
			zap.Int("chunks", meshes),
			zap.Error(err),
		)
		return
	}
	if grow {
		s.log.Debug("reserved terrain capacity",
			zap.Int("chunks", meshes),
			zap.Int("vertices", vertices),
			zap.Int("indices", indices),
		)
	}
}

// chunksInRadius counts the grid cells within a circle of radius r.
func chunksInRadius(r int) int {
	n := 0
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dz*dz <= r*r {
				n++
			}
		}
	}
	return n
}

// Update recenters the resident set on pos. Chunks that left the radius are
// removed from the table; chunks that entered it are queued for building.
// Chunks outside the addressable range are never loaded.
func (s *Streamer) Update(pos math.Vec3) {
	center := ChunkAt(pos, s.cfg.ChunkSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && center == s.center && !s.hasMissing() {
		return
	}
	if !center.Addressable() && (!s.started || center != s.center) {
		s.log.Warn("camera is outside the addressable terrain",
			zap.Int32("x", center.X),
			zap.Int32("z", center.Z),
		)
	}
	s.started = true
	s.center = center

	for coord, e := range s.chunks {
		if s.inRange(coord) {
			continue
		}
		if e.state == chunkResident {
			s.table.Remove(coord.ID())
		}
		if e.state == chunkPending {
			s.pending--
		}
		delete(s.chunks, coord)
	}

	r := int32(s.cfg.ViewRadius)
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			coord := ChunkCoord{X: center.X + dx, Z: center.Z + dz}
			if _, ok := s.chunks[coord]; ok || !s.inRange(coord) || !coord.Addressable() {
				continue
			}
			s.ticket++
			job := chunkJob{coord: coord, ticket: s.ticket}
			select {
			case s.jobs <- job:
				s.chunks[coord] = &chunkEntry{state: chunkPending, ticket: job.ticket}
				s.pending++
			default:
				// Queue full of stale jobs; the next Update retries.
			}
		}
	}
	s.notify()
}

// hasMissing reports whether some in-range chunk is neither resident nor
// queued. Callers hold s.mu.
func (s *Streamer) hasMissing() bool {
	r := int32(s.cfg.ViewRadius)
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			coord := ChunkCoord{X: s.center.X + dx, Z: s.center.Z + dz}
			if !s.inRange(coord) || !coord.Addressable() {
				continue
			}
			if _, ok := s.chunks[coord]; !ok {
				return true
			}
		}
	}
	return false
}

// inRange reports whether coord lies within the circular view radius of the
// current center.
func (s *Streamer) inRange(coord ChunkCoord) bool {
	dx := int64(coord.X - s.center.X)
	dz := int64(coord.Z - s.center.Z)
	r := int64(s.cfg.ViewRadius)
	return dx*dx+dz*dz <= r*r
}

func (s *Streamer) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case job := <-s.jobs:
			s.build(job)
		}
	}
}

func (s *Streamer) build(job chunkJob) {
	if !s.wanted(job) {
		return
	}
	chunk := BuildChunk(s.hm, job.coord, s.cfg.ChunkSize, s.cfg.ChunkResolution)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chunks[job.coord]
	if !ok || e.ticket != job.ticket || e.state != chunkPending {
		return
	}
	s.pending--
	if _, err := s.table.AddOrReplace(chunk.Geometry, chunk.Model, job.coord.ID()); err != nil {
		e.state = chunkFailed
		s.log.Error("failed to add terrain chunk",
			zap.Int32("x", job.coord.X),
			zap.Int32("z", job.coord.Z),
			zap.Error(err),
		)
	} else {
		e.state = chunkResident
		s.log.Debug("terrain chunk resident",
			zap.Int32("x", job.coord.X),
			zap.Int32("z", job.coord.Z),
			zap.Int("vertices", len(chunk.Geometry.Vertices)),
		)
	}
	s.notify()
}

func (s *Streamer) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Streamer) wanted(job chunkJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chunks[job.coord]
	return ok && e.ticket == job.ticket && e.state == chunkPending
}

// Resident returns the number of chunks currently in the table.
func (s *Streamer) Resident() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.chunks {
		if e.state == chunkResident {
			n++
		}
	}
	return n
}

// Pending returns the number of chunks queued or being built.
func (s *Streamer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// IsResident reports whether the chunk is in the table.
func (s *Streamer) IsResident(c ChunkCoord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chunks[c]
	return ok && e.state == chunkResident
}

// WaitIdle blocks until no chunk is pending or ctx is done.
func (s *Streamer) WaitIdle(ctx context.Context) error {
	for {
		if s.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.changed:
		}
	}
}

// Close stops the workers. Resident chunks stay in the table.
func (s *Streamer) Close() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info("terrain streamer stopped", zap.Int("resident", s.Resident()))
}
