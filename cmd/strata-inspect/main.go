// Strata Inspect - An ImGui tool for watching the mesh table, the packed
// buffers and the GPU cull on the software device.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/AllenDang/cimgui-go/backend"
	"github.com/AllenDang/cimgui-go/backend/sdlbackend"
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/sqweek/dialog"
	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/config"
	"github.com/Faultbox/strata/internal/logger"
)

func main() {
	runtime.LockOSThread()

	configPath := flag.String("config", "", "Path to a YAML config to inspect")
	verbose := flag.Bool("v", false, "Log at debug level")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, Console: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	app := NewApp(log)
	defer app.Close()

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := app.Open(cfg, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting session: %v\n", err)
		os.Exit(1)
	}

	app.Run()
}

// App is the inspector window state.
type App struct {
	backend backend.Backend[sdlbackend.SDLWindowFlags]
	log     *zap.Logger
	session *session

	lastFrame time.Time
	paused    bool
	stepOnce  bool
	status    string
	lastErr   error

	selected    uint32
	hasSelected bool

	// File dialog results, consumed on the main thread.
	pendingConfig chan string
}

// NewApp creates the window and ImGui context.
func NewApp(log *zap.Logger) *App {
	app := &App{
		log:           log.Named("inspect"),
		pendingConfig: make(chan string, 1),
	}

	var err error
	app.backend, err = backend.CreateBackend(sdlbackend.NewSDLBackend())
	if err != nil {
		panic(fmt.Sprintf("failed to create backend: %v", err))
	}
	app.backend.SetBgColor(imgui.NewVec4(0.1, 0.1, 0.12, 1.0))
	app.backend.CreateWindow("Strata Inspect", 1280, 800)
	return app
}

// Open replaces the running session with one built from cfg.
func (app *App) Open(cfg *config.Config, path string) error {
	s, err := openSession(cfg, path, app.log)
	if err != nil {
		return err
	}
	if app.session != nil {
		app.session.close()
	}
	app.session = s
	app.hasSelected = false
	app.lastFrame = time.Now()

	title := "Strata Inspect - defaults"
	if path != "" {
		title = "Strata Inspect - " + filepath.Base(path)
	}
	app.backend.SetWindowTitle(title)
	app.log.Info("session opened", zap.String("config", path))
	return nil
}

// Close releases the session.
func (app *App) Close() {
	if app.session != nil {
		app.session.close()
		app.session = nil
	}
}

// Run starts the main loop.
func (app *App) Run() {
	app.backend.Run(app.render)
}

// openConfigDialog shows a native file dialog to pick a config file.
func (app *App) openConfigDialog() {
	// SDL window operations must stay on the main thread; render picks the
	// path up from the channel.
	go func() {
		filename, err := dialog.File().
			Filter("YAML Config", "yaml", "yml").
			Filter("All Files", "*").
			Title("Open Strata Config").
			Load()
		if err != nil {
			if err != dialog.ErrCancelled {
				app.log.Warn("file dialog failed", zap.Error(err))
			}
			return
		}
		select {
		case app.pendingConfig <- filename:
		default:
		}
	}()
}

func (app *App) loadConfig(path string) {
	cfg, err := config.LoadFile(path)
	if err == nil {
		err = app.Open(cfg, path)
	}
	if err != nil {
		app.lastErr = err
		app.log.Error("failed to open config", zap.String("path", path), zap.Error(err))
	}
}

// render is called each frame to draw the UI.
func (app *App) render() {
	select {
	case path := <-app.pendingConfig:
		app.loadConfig(path)
	default:
	}

	now := time.Now()
	dt := float32(now.Sub(app.lastFrame).Seconds())
	app.lastFrame = now
	if app.session != nil && (!app.paused || app.stepOnce) {
		app.stepOnce = false
		if err := app.session.step(dt); err != nil {
			app.lastErr = err
			app.paused = true
			app.log.Error("frame failed", zap.Error(err))
		}
	}

	if imgui.BeginMainMenuBar() {
		if imgui.BeginMenu("File") {
			if imgui.MenuItemBool("Open Config...") {
				app.openConfigDialog()
			}
			if imgui.MenuItemBool("Reset to Defaults") {
				if err := app.Open(config.Default(), ""); err != nil {
					app.lastErr = err
				}
			}
			imgui.Separator()
			if imgui.MenuItemBool("Exit") {
				os.Exit(0)
			}
			imgui.EndMenu()
		}
		imgui.EndMainMenuBar()
	}

	viewport := imgui.MainViewport()
	workPos := viewport.WorkPos()
	workSize := viewport.WorkSize()

	leftPanelWidth := float32(320)
	statusBarHeight := float32(30)
	contentHeight := workSize.Y - statusBarHeight

	flags := imgui.WindowFlagsNoMove | imgui.WindowFlagsNoResize | imgui.WindowFlagsNoCollapse

	imgui.SetNextWindowPos(workPos)
	imgui.SetNextWindowSize(imgui.NewVec2(leftPanelWidth, contentHeight))
	if imgui.BeginV("Controls", nil, flags) {
		app.renderControls()
	}
	imgui.End()

	imgui.SetNextWindowPos(imgui.NewVec2(workPos.X+leftPanelWidth, workPos.Y))
	imgui.SetNextWindowSize(imgui.NewVec2(workSize.X-leftPanelWidth, contentHeight))
	if imgui.BeginV("Mesh Table", nil, flags) {
		app.renderMeshTable()
	}
	imgui.End()

	imgui.SetNextWindowPos(imgui.NewVec2(workPos.X, workPos.Y+contentHeight))
	imgui.SetNextWindowSize(imgui.NewVec2(workSize.X, statusBarHeight))
	if imgui.BeginV("Status", nil, flags|imgui.WindowFlagsNoTitleBar) {
		app.renderStatusBar()
	}
	imgui.End()
}
