package viewer

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/engine/input"
	"github.com/Faultbox/strata/internal/engine/window"
)

// Surface is the window the frame loop presents to.
type Surface interface {
	SwapBuffers()
	DrawableSize() (int, int)
	SetTitle(title string)
}

// Resizer is implemented by devices that track the framebuffer size.
type Resizer interface {
	Resize(width, height int)
}

var _ Surface = (*window.Window)(nil)

// Run drives frames until the window closes or Escape is pressed.
func (v *Viewer) Run(win Surface, in *input.Input) error {
	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	if w, h := win.DrawableSize(); w > 0 && h > 0 {
		v.resize(w, h)
	}

	v.log.Info("starting frame loop")

	for v.running {
		now := time.Now()
		dt := float32(now.Sub(lastTime).Seconds())
		lastTime = now

		// 1. Process input
		if in.Update() {
			v.running = false
			break
		}
		for _, event := range in.Events() {
			v.HandleEvent(event)
			if event.Type == input.EventWindowResize {
				// Window events report points; the framebuffer is in pixels.
				v.resize(win.DrawableSize())
			}
		}
		v.HandleInput(in, dt)

		// 2. Stream, rebuild, cull and draw
		if err := v.Step(dt); err != nil {
			return fmt.Errorf("frame %d: %w", v.pacer.Frame(), err)
		}

		// 3. Present
		win.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			s := v.Stats()
			win.SetTitle(fmt.Sprintf("strata | %d fps | %d/%d meshes visible | %d chunks loading",
				frameCount, s.Visible, s.Meshes, s.Pending))
			v.log.Debug("fps",
				zap.Int("count", frameCount),
				zap.String("dt", fmt.Sprintf("%.2fms", dt*1000)),
				zap.Uint32("visible", s.Visible),
				zap.Int("meshes", s.Meshes),
			)
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (v *Viewer) resize(width, height int) {
	v.Resize(width, height)
	if r, ok := v.dev.(Resizer); ok {
		r.Resize(width, height)
	}
}
