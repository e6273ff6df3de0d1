package soft

import (
	"fmt"
	"time"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

type buffer struct {
	dev       *Device
	label     string
	usage     gpu.BufferUsage
	data      []byte
	destroyed bool
}

func (b *buffer) Label() string          { return b.label }
func (b *buffer) Size() int64            { return int64(len(b.data)) }
func (b *buffer) Usage() gpu.BufferUsage { return b.usage }

func (b *buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.dev.allocated -= int64(len(b.data))
	b.dev.liveBuffers--
}

type computePipeline struct {
	label     string
	kernel    gpu.Kernel
	destroyed bool
}

func (p *computePipeline) Label() string { return p.label }
func (p *computePipeline) Destroy()      { p.destroyed = true }

type renderPipeline struct {
	desc      gpu.RenderPipelineDesc
	destroyed bool
}

func (p *renderPipeline) Label() string { return p.desc.Label }
func (p *renderPipeline) Destroy()      { p.destroyed = true }

type bindGroup struct {
	dev       *Device
	entries   []gpu.BindGroupEntry
	destroyed bool
}

func (g *bindGroup) Update(entries []gpu.BindGroupEntry) error {
	for _, e := range entries {
		buf, err := g.dev.buffer(e.Buffer)
		if err != nil {
			return fmt.Errorf("soft: binding %d: %w", e.Binding, err)
		}
		if e.Offset < 0 || e.Offset+e.Size > int64(len(buf.data)) {
			return fmt.Errorf("soft: binding %d on %q: %w", e.Binding, buf.label, gpu.ErrOutOfRange)
		}
	}
	g.entries = append(g.entries[:0], entries...)
	return nil
}

func (g *bindGroup) Destroy() { g.destroyed = true }

// bindings resolves the group to byte slices aliasing buffer storage.
func (g *bindGroup) bindings() (gpu.Bindings, error) {
	out := make(gpu.Bindings, len(g.entries))
	for _, e := range g.entries {
		buf, err := g.dev.buffer(e.Buffer)
		if err != nil {
			return nil, fmt.Errorf("binding %d: %w", e.Binding, err)
		}
		end := int64(len(buf.data))
		if e.Size > 0 {
			end = e.Offset + e.Size
		}
		out[e.Binding] = buf.data[e.Offset:end]
	}
	return out, nil
}

type fence struct {
	dev       *Device
	value     uint64
	destroyed bool
}

func (f *fence) Signaled() bool {
	return !f.dev.cfg.StallFences && f.dev.completed >= f.value
}

// Wait lets the emulated queue catch up to the fence.
func (f *fence) Wait(time.Duration) bool {
	if f.dev.cfg.StallFences {
		return false
	}
	if f.dev.completed < f.value {
		f.dev.completed = f.value
	}
	return true
}

func (f *fence) Destroy() {
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.dev.liveFences--
}
