package main

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/gpu/soft"
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/internal/engine/terrain"
	"github.com/Faultbox/strata/internal/viewer"
	"github.com/Faultbox/strata/pkg/math"
)

// meshRow is one line of the mesh table panel.
type meshRow struct {
	ID       uint32
	Label    string
	Record   indirect.MeshRecord
	Drawn    bool
	Expected bool
	// InFrustum is the plane test on the world bounds, ignoring maxDraws.
	InFrustum bool
}

// session runs a viewer on the software device so every command it records
// can be inspected.
type session struct {
	path string
	cfg  *config.Config
	log  *zap.Logger
	dev  *soft.Device
	v    *viewer.Viewer

	rows  []meshRow
	drawn int
	// stale is set when the table changed after the frame was recorded, so
	// the rows may not match the draws.
	stale      bool
	mismatches int
	violations []string
}

func openSession(cfg *config.Config, path string, log *zap.Logger) (*session, error) {
	dev := soft.New(soft.Config{Features: soft.AllFeatures()})
	v, err := viewer.New(dev, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating viewer: %w", err)
	}
	return &session{path: path, cfg: cfg, log: log, dev: dev, v: v}, nil
}

// step advances the viewer one frame and refreshes the mesh rows from the
// draws it recorded.
func (s *session) step(dt float32) error {
	s.dev.ResetLog()
	if err := s.v.Step(dt); err != nil {
		return err
	}
	s.collect()
	return nil
}

func (s *session) collect() {
	drawn := make(map[uint32]bool)
	s.drawn = 0
	for _, d := range s.dev.Draws() {
		if d.Pipeline == "scene.solid" && d.InstanceCount > 0 {
			drawn[d.FirstInstance] = true
			s.drawn++
		}
	}

	table := s.v.Table()
	records := table.ActiveMeshInfos()
	s.stale = table.IsDirty()
	expected := make(map[uint32]bool)
	for _, c := range indirect.CullReference(records, s.viewProj(), s.cfg.Indirect.MaxDraws) {
		expected[c.FirstInstance] = true
	}

	frustum := s.v.Camera().Frustum(s.aspect())
	s.rows = s.rows[:0]
	s.mismatches = 0
	for _, rec := range records {
		row := meshRow{
			ID:       rec.ID,
			Label:    meshLabel(rec.ID),
			Record:   rec,
			Drawn:    drawn[rec.DrawIndex],
			Expected: expected[rec.DrawIndex],
		}
		row.InFrustum = frustum.IntersectsAABB(rec.Bounds.Transform(rec.Model))
		if !s.stale && row.Drawn != row.Expected {
			s.mismatches++
		}
		s.rows = append(s.rows, row)
	}
	slices.SortFunc(s.rows, func(a, b meshRow) int { return int(a.Record.DrawIndex) - int(b.Record.DrawIndex) })
	s.violations = s.dev.Violations()
}

func (s *session) aspect() float32 {
	return float32(s.cfg.Graphics.Width) / float32(max(s.cfg.Graphics.Height, 1))
}

func (s *session) viewProj() math.Mat4 {
	return s.v.Camera().ViewProjection(s.aspect())
}

func meshLabel(id uint32) string {
	if terrain.IsChunkID(id) {
		c := terrain.CoordFromID(id)
		return fmt.Sprintf("chunk %d,%d", c.X, c.Z)
	}
	return fmt.Sprintf("mesh %d", id)
}

// erase zeroes the mesh's draw until the next rebuild.
func (s *session) erase(id uint32) error {
	err := s.v.Renderer().EraseMeshFromGPU(id)
	if errors.Is(err, indirect.ErrUnknownMesh) {
		return fmt.Errorf("mesh %d has not been uploaded yet", id)
	}
	return err
}

// remove drops the mesh from the table; the next step repacks.
func (s *session) remove(id uint32) bool {
	return s.v.Table().Remove(id)
}

func (s *session) stats() viewer.Stats { return s.v.Stats() }

func (s *session) close() {
	s.v.Close()
}
