package gl46

import (
	"fmt"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

type buffer struct {
	id    uint32
	label string
	size  int64
	usage gpu.BufferUsage
}

func (b *buffer) Label() string          { return b.label }
func (b *buffer) Size() int64            { return b.size }
func (b *buffer) Usage() gpu.BufferUsage { return b.usage }

func (b *buffer) Destroy() {
	if b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
}

// target is the indexed binding point the buffer binds to.
func (b *buffer) target() uint32 {
	if b.usage&gpu.UsageUniform != 0 && b.usage&gpu.UsageStorage == 0 {
		return gl.UNIFORM_BUFFER
	}
	return gl.SHADER_STORAGE_BUFFER
}

func asBuffer(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("gl46: foreign buffer %T", b)
	}
	if buf.id == 0 {
		return nil, fmt.Errorf("gl46: buffer %q: %w", buf.label, gpu.ErrDestroyed)
	}
	return buf, nil
}

// pushBlock is the uniform buffer standing in for push constants.
type pushBlock struct {
	buf     *buffer
	binding uint32
}

func (p *pushBlock) destroy() {
	if p != nil {
		p.buf.Destroy()
	}
}

type computePipeline struct {
	label   string
	program uint32
	push    *pushBlock
}

func (p *computePipeline) Label() string { return p.label }

func (p *computePipeline) Destroy() {
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		p.program = 0
	}
	p.push.destroy()
}

type renderPipeline struct {
	desc    gpu.RenderPipelineDesc
	program uint32
	vao     uint32
	push    *pushBlock
}

func (p *renderPipeline) Label() string { return p.desc.Label }

func (p *renderPipeline) Destroy() {
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		p.program = 0
	}
	if p.vao != 0 {
		gl.DeleteVertexArrays(1, &p.vao)
		p.vao = 0
	}
	p.push.destroy()
}

type bindGroup struct {
	entries []gpu.BindGroupEntry
}

func (g *bindGroup) Update(entries []gpu.BindGroupEntry) error {
	for _, e := range entries {
		buf, err := asBuffer(e.Buffer)
		if err != nil {
			return fmt.Errorf("gl46: binding %d: %w", e.Binding, err)
		}
		if e.Offset < 0 || e.Offset+e.Size > buf.size {
			return fmt.Errorf("gl46: binding %d on %q: %w", e.Binding, buf.label, gpu.ErrOutOfRange)
		}
	}
	g.entries = append(g.entries[:0], entries...)
	return nil
}

func (g *bindGroup) Destroy() { g.entries = nil }

// bind attaches every entry to its indexed binding point.
func (g *bindGroup) bind() error {
	for _, e := range g.entries {
		buf, err := asBuffer(e.Buffer)
		if err != nil {
			return fmt.Errorf("binding %d: %w", e.Binding, err)
		}
		if e.Size == 0 && e.Offset == 0 {
			gl.BindBufferBase(buf.target(), e.Binding, buf.id)
			continue
		}
		size := e.Size
		if size == 0 {
			size = buf.size - e.Offset
		}
		gl.BindBufferRange(buf.target(), e.Binding, buf.id, int(e.Offset), int(size))
	}
	return nil
}

type fence struct {
	sync uintptr
}

func (f *fence) Signaled() bool {
	if f.sync == 0 {
		return true
	}
	r := gl.ClientWaitSync(f.sync, 0, 0)
	return r == gl.ALREADY_SIGNALED || r == gl.CONDITION_SATISFIED
}

func (f *fence) Wait(timeout time.Duration) bool {
	if f.sync == 0 {
		return true
	}
	r := gl.ClientWaitSync(f.sync, gl.SYNC_FLUSH_COMMANDS_BIT, uint64(timeout.Nanoseconds()))
	return r == gl.ALREADY_SIGNALED || r == gl.CONDITION_SATISFIED
}

func (f *fence) Destroy() {
	if f.sync != 0 {
		gl.DeleteSync(f.sync)
		f.sync = 0
	}
}
