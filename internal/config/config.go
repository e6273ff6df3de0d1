// Package config handles viewer and packer configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// Indirect-count modes.
const (
	IndirectCountAuto = "auto"
	IndirectCountOn   = "on"
	IndirectCountOff  = "off"
)

// Cull shader sources.
const (
	CullShaderGLSL  = "glsl"
	CullShaderSPIRV = "spirv"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Indirect IndirectConfig `yaml:"indirect"`
	Terrain  TerrainConfig  `yaml:"terrain"`
	Scene    SceneConfig    `yaml:"scene"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display settings.
type GraphicsConfig struct {
	Width        int  `yaml:"width"`
	Height       int  `yaml:"height"`
	Fullscreen   bool `yaml:"fullscreen"`
	VSync        bool `yaml:"vsync"`
	DebugContext bool `yaml:"debug_context"`
}

// IndirectConfig holds mesh packing and GPU culling settings.
type IndirectConfig struct {
	// Headroom is the fractional slack added when a buffer has to grow.
	Headroom        float64 `yaml:"headroom"`
	InitialVertices int     `yaml:"initial_vertices"`
	InitialIndices  int     `yaml:"initial_indices"`
	InitialMeshes   int     `yaml:"initial_meshes"`
	IndirectCount   string  `yaml:"indirect_count"`
	Cull            bool    `yaml:"cull"`
	CullShader      string  `yaml:"cull_shader"`
	// MaxDraws bounds the compacted draw count; 0 means the mesh count.
	MaxDraws uint32 `yaml:"max_draws"`
}

// TerrainConfig holds procedural terrain streaming settings.
type TerrainConfig struct {
	Seed            int64   `yaml:"seed"`
	ChunkSize       float32 `yaml:"chunk_size"`
	ChunkResolution int     `yaml:"chunk_resolution"`
	ViewRadius      int     `yaml:"view_radius"`
	HeightScale     float32 `yaml:"height_scale"`
	Workers         int     `yaml:"workers"`
}

// SceneConfig holds shading settings for the solid pass.
type SceneConfig struct {
	DepthPrepass bool `yaml:"depth_prepass"`
	// Sun angles are in degrees; elevation is measured from the horizon.
	SunAzimuth   float32 `yaml:"sun_azimuth"`
	SunElevation float32 `yaml:"sun_elevation"`
	Ambient      float32 `yaml:"ambient"`
	FogDensity   float32 `yaml:"fog_density"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
		},
		Indirect: IndirectConfig{
			Headroom:        0.25,
			InitialVertices: 0,
			InitialIndices:  0,
			InitialMeshes:   0,
			IndirectCount:   IndirectCountAuto,
			Cull:            true,
			CullShader:      CullShaderGLSL,
		},
		Terrain: TerrainConfig{
			Seed:            1337,
			ChunkSize:       32,
			ChunkResolution: 32,
			ViewRadius:      6,
			HeightScale:     12,
			Workers:         4,
		},
		Scene: SceneConfig{
			DepthPrepass: true,
			SunAzimuth:   90,
			SunElevation: 60,
			Ambient:      0.3,
			FogDensity:   0.0015,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports the first setting that is out of range.
func (c *Config) Validate() error {
	switch {
	case c.Graphics.Width <= 0 || c.Graphics.Height <= 0:
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Graphics.Width, c.Graphics.Height)
	case c.Indirect.Headroom < 0:
		return fmt.Errorf("%w: negative headroom %g", ErrInvalid, c.Indirect.Headroom)
	case c.Indirect.InitialVertices < 0 || c.Indirect.InitialIndices < 0 || c.Indirect.InitialMeshes < 0:
		return fmt.Errorf("%w: negative initial capacity", ErrInvalid)
	case c.Terrain.ChunkResolution < 1:
		return fmt.Errorf("%w: chunk resolution %d", ErrInvalid, c.Terrain.ChunkResolution)
	case c.Terrain.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %g", ErrInvalid, c.Terrain.ChunkSize)
	case c.Terrain.ViewRadius < 0:
		return fmt.Errorf("%w: view radius %d", ErrInvalid, c.Terrain.ViewRadius)
	case c.Terrain.Workers < 1:
		return fmt.Errorf("%w: %d terrain workers", ErrInvalid, c.Terrain.Workers)
	case c.Scene.SunElevation < 0 || c.Scene.SunElevation > 90:
		return fmt.Errorf("%w: sun elevation %g", ErrInvalid, c.Scene.SunElevation)
	case c.Scene.Ambient < 0 || c.Scene.Ambient > 1:
		return fmt.Errorf("%w: ambient %g", ErrInvalid, c.Scene.Ambient)
	case c.Scene.FogDensity < 0:
		return fmt.Errorf("%w: fog density %g", ErrInvalid, c.Scene.FogDensity)
	}
	switch c.Indirect.IndirectCount {
	case IndirectCountAuto, IndirectCountOn, IndirectCountOff:
	default:
		return fmt.Errorf("%w: indirect_count %q", ErrInvalid, c.Indirect.IndirectCount)
	}
	switch c.Indirect.CullShader {
	case CullShaderGLSL, CullShaderSPIRV:
	default:
		return fmt.Errorf("%w: cull_shader %q", ErrInvalid, c.Indirect.CullShader)
	}
	return nil
}
