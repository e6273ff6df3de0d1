package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagNoCull     = flag.Bool("no-cull", false, "Disable GPU frustum culling")
	flagSPIRV      = flag.Bool("spirv", false, "Load the cull shader as SPIR-V")
	flagCount      = flag.String("indirect-count", "", "Indirect count draws: auto, on or off")
	flagSeed       = flag.Int64("seed", 0, "Terrain seed")
	flagRadius     = flag.Int("radius", -1, "Terrain view radius in chunks")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Graphics.DebugContext = true
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagNoCull {
		cfg.Indirect.Cull = false
	}
	if *flagSPIRV {
		cfg.Indirect.CullShader = CullShaderSPIRV
	}
	if *flagCount != "" {
		cfg.Indirect.IndirectCount = *flagCount
	}
	if *flagSeed != 0 {
		cfg.Terrain.Seed = *flagSeed
	}
	if *flagRadius >= 0 {
		cfg.Terrain.ViewRadius = *flagRadius
	}
}
