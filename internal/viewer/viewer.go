// Package viewer ties the streamed terrain, the indirect renderer and the
// camera into a frame loop.
package viewer

import (
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/camera"
	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/internal/engine/input"
	"github.com/Faultbox/strata/internal/engine/scene"
	"github.com/Faultbox/strata/internal/engine/terrain"
	"github.com/Faultbox/strata/internal/logger"
	"github.com/Faultbox/strata/pkg/math"
)

// Stats describes the most recent frame.
type Stats struct {
	Frame    uint64
	Meshes   int
	Visible  uint32
	Resident int
	Pending  int
	InFlight int
	Render   indirect.Stats
}

// Viewer owns everything drawn in a frame. It is driven from one goroutine;
// only the terrain streamer works in the background.
type Viewer struct {
	cfg  *config.Config
	log  *zap.Logger
	once *logger.Once
	dev  gpu.Device

	table    *indirect.MeshTable
	renderer *indirect.Renderer
	solid    *scene.SolidRenderer
	streamer *terrain.Streamer
	camera   *camera.OrbitCamera
	pacer    *gpu.FramePacer

	width, height int
	visible       uint32
	running       bool
}

// autoOrbitSpeed is the orbit rate toggled by the space key, in radians per
// second.
const autoOrbitSpeed = 0.1

// New builds a viewer on dev. The terrain streamer starts immediately.
func New(dev gpu.Device, cfg *config.Config, log *zap.Logger) (*Viewer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("viewer")

	v := &Viewer{
		cfg:     cfg,
		log:     log,
		once:    logger.NewOnce(log),
		dev:     dev,
		camera:  camera.NewOrbitCamera(),
		pacer:   gpu.NewFramePacer(dev, gpu.FramesInFlight),
		width:   cfg.Graphics.Width,
		height:  cfg.Graphics.Height,
		running: true,
	}

	v.table, v.renderer = indirect.New(dev, indirect.OptionsFromConfig(cfg.Indirect), log)

	var err error
	v.solid, err = scene.NewSolidRenderer(dev, scene.ConfigFrom(cfg.Scene), log)
	if err != nil {
		_ = v.renderer.Close()
		return nil, fmt.Errorf("creating solid renderer: %w", err)
	}

	v.streamer = terrain.NewStreamer(cfg.Terrain, v.table, log)
	v.followGround()

	log.Info("viewer initialized",
		zap.Int("width", v.width),
		zap.Int("height", v.height),
		zap.Bool("cull", cfg.Indirect.Cull),
		zap.String("indirect_count", cfg.Indirect.IndirectCount),
	)
	return v, nil
}

// Camera returns the viewer camera.
func (v *Viewer) Camera() *camera.OrbitCamera { return v.camera }

// Renderer returns the indirect renderer.
func (v *Viewer) Renderer() *indirect.Renderer { return v.renderer }

// Table returns the mesh table the streamer writes to.
func (v *Viewer) Table() *indirect.MeshTable { return v.table }

// Streamer returns the terrain streamer.
func (v *Viewer) Streamer() *terrain.Streamer { return v.streamer }

// Running reports whether the viewer has not been asked to quit.
func (v *Viewer) Running() bool { return v.running }

// Resize changes the projection aspect ratio.
func (v *Viewer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	v.width, v.height = width, height
}

func (v *Viewer) aspect() float32 {
	if v.height == 0 {
		return 1
	}
	return float32(v.width) / float32(v.height)
}

// followGround keeps the orbit center on the terrain surface.
func (v *Viewer) followGround() {
	c := v.camera
	c.CenterY = v.streamer.Heightmap().Height(c.CenterX, c.CenterZ)
}

// HandleEvent applies one input event.
func (v *Viewer) HandleEvent(e input.Event) {
	switch e.Type {
	case input.EventQuit:
		v.running = false
	case input.EventWindowResize:
		v.Resize(e.Width, e.Height)
	case input.EventKeyDown:
		switch e.Key {
		case sdl.SCANCODE_ESCAPE:
			v.running = false
		case sdl.SCANCODE_F:
			v.FrameAll()
		case sdl.SCANCODE_SPACE:
			// Toggle the automatic orbit.
			if v.camera.OrbitSpeed == 0 {
				v.camera.OrbitSpeed = autoOrbitSpeed
			} else {
				v.camera.OrbitSpeed = 0
			}
		}
	case input.EventMouseWheel:
		v.camera.HandleZoom(e.Wheel)
	}
}

// FrameAll points the camera at the union of every mesh in the table.
func (v *Viewer) FrameAll() {
	b := math.InvertedAABB()
	for _, rec := range v.table.ActiveMeshInfos() {
		b = b.Union(rec.Bounds.Transform(rec.Model))
	}
	v.camera.FitToBounds(b)
}

// HandleInput applies held keys and mouse drag for a frame of dt seconds.
func (v *Viewer) HandleInput(in *input.Input, dt float32) {
	if in.IsButtonDown(sdl.BUTTON_LEFT) {
		v.camera.HandleDrag(in.Drag())
	}
	var forward, right float32
	if in.IsKeyDown(sdl.SCANCODE_W) {
		forward++
	}
	if in.IsKeyDown(sdl.SCANCODE_S) {
		forward--
	}
	if in.IsKeyDown(sdl.SCANCODE_D) {
		right++
	}
	if in.IsKeyDown(sdl.SCANCODE_A) {
		right--
	}
	if forward != 0 || right != 0 {
		// HandleMovement moves a fixed step per call; scale it to 60 steps a second.
		v.camera.HandleMovement(forward*dt*60, right*dt*60, 0)
	}
}

// Step advances the camera, streams terrain and renders one frame.
func (v *Viewer) Step(dt float32) error {
	v.camera.Update(dt)
	v.followGround()
	v.streamer.Update(v.camera.Center())

	if err := v.pacer.Begin(); err != nil {
		return err
	}

	if v.renderer.IsDirty() {
		start := time.Now()
		if err := v.renderer.Rebuild(); err != nil {
			return fmt.Errorf("rebuilding mesh buffers: %w", err)
		}
		v.log.Debug("mesh buffers rebuilt",
			zap.Int("meshes", v.renderer.MeshCount()),
			zap.Duration("took", time.Since(start)),
		)
	}

	frame := scene.Frame{
		ViewProj: v.camera.ViewProjection(v.aspect()),
		MaxDraws: v.cfg.Indirect.MaxDraws,
	}
	var renderErr error
	if err := v.dev.Submit(func(rec gpu.Recorder) {
		renderErr = v.solid.Render(rec, v.renderer, frame)
	}); err != nil {
		return fmt.Errorf("submitting frame: %w", err)
	}
	if renderErr != nil {
		return fmt.Errorf("recording frame: %w", renderErr)
	}

	if err := v.renderer.RequestVisibleCount(); err != nil {
		v.once.Warn("visible-readback", "visible count readback failed", zap.Error(err))
	}
	if n, ok := v.renderer.PollVisibleCount(); ok {
		v.visible = n
	}
	return v.pacer.End()
}

// Stats returns counters for the last frame.
func (v *Viewer) Stats() Stats {
	return Stats{
		Frame:    v.pacer.Frame(),
		Meshes:   v.renderer.MeshCount(),
		Visible:  v.visible,
		Resident: v.streamer.Resident(),
		Pending:  v.streamer.Pending(),
		InFlight: v.pacer.InFlight(),
		Render:   v.renderer.Stats(),
	}
}

// Close stops streaming and releases GPU resources.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")
	v.streamer.Close()
	v.pacer.Close()
	v.solid.Destroy()
	if err := v.renderer.Close(); err != nil {
		v.log.Warn("failed to release indirect renderer", zap.Error(err))
	}
}
