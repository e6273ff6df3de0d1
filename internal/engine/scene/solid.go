// Package scene draws the contents of the indirect mesh table.
package scene

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/internal/engine/lighting"
	"github.com/Faultbox/strata/pkg/math"
)

// frameSize is the std140 size of the Frame uniform block.
const frameSize = 96

// Config contains solid renderer options.
type Config struct {
	ClearColor [4]float32
	// DepthPrepass lays down depth before the color pass so shading runs
	// once per pixel.
	DepthPrepass bool
	LightDir     [3]float32
	Ambient      float32
	FogColor     [3]float32
	FogDensity   float32
}

// DefaultConfig returns a default solid renderer configuration.
func DefaultConfig() Config {
	return Config{
		ClearColor:   [4]float32{0.53, 0.68, 0.85, 1},
		DepthPrepass: true,
		LightDir:     [3]float32{0.5, 0.866, 0.0},
		Ambient:      0.3,
		FogColor:     [3]float32{0.53, 0.68, 0.85},
		FogDensity:   0.0015,
	}
}

// ConfigFrom builds a renderer configuration from the scene settings.
func ConfigFrom(c config.SceneConfig) Config {
	cfg := DefaultConfig()
	cfg.DepthPrepass = c.DepthPrepass
	cfg.LightDir = lighting.SunDirection(c.SunAzimuth, c.SunElevation)
	cfg.Ambient = c.Ambient
	cfg.FogDensity = c.FogDensity
	return cfg
}

// Frame holds the per-frame inputs of Render.
type Frame struct {
	ViewProj math.Mat4
	// MaxDraws bounds the culled draw list; zero means no bound.
	MaxDraws uint32
}

// SolidRenderer draws every mesh in an indirect renderer with one pipeline.
// The vertex stage fetches the model matrix from the models buffer using
// the draw's first instance.
type SolidRenderer struct {
	dev    gpu.Device
	config Config
	log    *zap.Logger

	depth gpu.RenderPipeline
	color gpu.RenderPipeline

	group  gpu.BindGroup
	models gpu.Buffer
}

// NewSolidRenderer creates the depth and color pipelines.
func NewSolidRenderer(dev gpu.Device, cfg Config, log *zap.Logger) (*SolidRenderer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &SolidRenderer{
		dev:    dev,
		config: cfg,
		log:    log.Named("scene"),
	}

	var err error
	s.color, err = dev.CreateRenderPipeline(gpu.RenderPipelineDesc{
		Label:               "scene.solid",
		VertexGLSL:          solidVertexShader,
		FragmentGLSL:        solidFragmentShader,
		Layout:              indirect.VertexLayout,
		DepthTest:           true,
		DepthWrite:          !cfg.DepthPrepass,
		DepthCompare:        s.colorCompare(),
		ColorWrite:          true,
		CullBackFaces:       true,
		PushConstantSize:    frameSize,
		PushConstantBinding: frameBinding,
	})
	if err != nil {
		return nil, fmt.Errorf("solid pipeline: %w", err)
	}

	if cfg.DepthPrepass {
		s.depth, err = dev.CreateRenderPipeline(gpu.RenderPipelineDesc{
			Label:               "scene.depth",
			VertexGLSL:          solidVertexShader,
			FragmentGLSL:        depthFragmentShader,
			Layout:              indirect.VertexLayout,
			DepthTest:           true,
			DepthWrite:          true,
			DepthCompare:        gpu.CompareLess,
			CullBackFaces:       true,
			PushConstantSize:    frameSize,
			PushConstantBinding: frameBinding,
		})
		if err != nil {
			s.color.Destroy()
			return nil, fmt.Errorf("depth pipeline: %w", err)
		}
	}

	s.log.Info("solid renderer created", zap.Bool("depth_prepass", cfg.DepthPrepass))
	return s, nil
}

func (s *SolidRenderer) colorCompare() gpu.CompareFunc {
	if s.config.DepthPrepass {
		return gpu.CompareLessEqual
	}
	return gpu.CompareLess
}

// Config returns the renderer configuration.
func (s *SolidRenderer) Config() Config { return s.config }

// SetFog changes the fog parameters for subsequent frames.
func (s *SolidRenderer) SetFog(color [3]float32, density float32) {
	s.config.FogColor = color
	s.config.FogDensity = density
}

// Render records the cull pass and a render pass drawing r. It must be
// called outside any render pass, after r has been rebuilt for the frame.
func (s *SolidRenderer) Render(rec gpu.Recorder, r *indirect.Renderer, f Frame) error {
	if err := s.bindModels(r); err != nil {
		return err
	}

	r.PrepareCull(rec, f.ViewProj, f.MaxDraws)

	rec.BeginRenderPass(gpu.RenderPassDesc{
		Label:      "scene",
		ClearColor: true,
		Color:      s.config.ClearColor,
		ClearDepth: true,
		Depth:      1,
	})
	defer rec.EndRenderPass()

	if s.group == nil {
		return nil
	}
	constants := s.encodeFrame(f.ViewProj)
	r.BindBuffers(rec)
	if s.depth != nil {
		rec.SetRenderPipeline(s.depth)
		rec.SetBindGroup(s.group)
		rec.PushConstants(constants)
		r.DrawIndirectOnly(rec, f.MaxDraws)
	}
	rec.SetRenderPipeline(s.color)
	rec.SetBindGroup(s.group)
	rec.PushConstants(constants)
	r.DrawIndirectOnly(rec, f.MaxDraws)
	return nil
}

// bindModels points the bind group at the renderer's current models buffer.
// The buffer changes whenever a rebuild grows the mesh capacity.
func (s *SolidRenderer) bindModels(r *indirect.Renderer) error {
	models := r.ModelsBuffer()
	if models == nil || models == s.models {
		return nil
	}
	entries := []gpu.BindGroupEntry{{Binding: modelsBinding, Buffer: models}}
	if s.group == nil {
		g, err := s.dev.CreateBindGroup(entries)
		if err != nil {
			return fmt.Errorf("creating models bind group: %w", err)
		}
		s.group = g
	} else if err := s.group.Update(entries); err != nil {
		return fmt.Errorf("rebinding models buffer: %w", err)
	}
	s.models = models
	s.log.Debug("models buffer bound", zap.Int64("size", models.Size()))
	return nil
}

// encodeFrame lays out the Frame uniform block.
func (s *SolidRenderer) encodeFrame(viewProj math.Mat4) []byte {
	out := make([]byte, frameSize)
	put := func(at int, v float32) {
		binary.LittleEndian.PutUint32(out[at:], gomath.Float32bits(v))
	}
	for i, v := range viewProj {
		put(i*4, v)
	}
	light := math.Vec3{X: s.config.LightDir[0], Y: s.config.LightDir[1], Z: s.config.LightDir[2]}.Normalize()
	put(64, light.X)
	put(68, light.Y)
	put(72, light.Z)
	put(76, s.config.Ambient)
	put(80, s.config.FogColor[0])
	put(84, s.config.FogColor[1])
	put(88, s.config.FogColor[2])
	put(92, s.config.FogDensity)
	return out
}

// Destroy releases all resources.
func (s *SolidRenderer) Destroy() {
	if s.group != nil {
		s.group.Destroy()
		s.group = nil
	}
	if s.depth != nil {
		s.depth.Destroy()
		s.depth = nil
	}
	if s.color != nil {
		s.color.Destroy()
		s.color = nil
	}
	s.models = nil
}
