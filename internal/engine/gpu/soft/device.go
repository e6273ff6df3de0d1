// Package soft implements gpu.Device on the CPU.
//
// Buffers are byte slices, compute pipelines run their gpu.Kernel on
// Dispatch and indirect draws are decoded and validated against the bound
// vertex and index buffers. Every recorded command is logged so tests can
// assert on ordering. The device is not safe for concurrent use.
package soft

import (
	"fmt"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

// Config controls the emulated device.
type Config struct {
	Features gpu.Features
	// MemoryLimit caps the bytes of live buffers. Zero means unlimited.
	MemoryLimit int64
	// FenceLatency is how many submissions a fence trails before it
	// signals on its own.
	FenceLatency int
	// FailPipelines makes every compute pipeline creation fail.
	FailPipelines bool
	// StallFences keeps fences unsignaled; Wait times out.
	StallFences bool
}

// AllFeatures enables every optional capability.
func AllFeatures() gpu.Features {
	return gpu.Features{ComputeShaders: true, DrawIndirectCount: true, SPIRV: true}
}

// Device is a CPU-emulated gpu.Device.
type Device struct {
	cfg Config

	allocated   int64
	liveBuffers int
	liveFences  int
	pipelines   int

	submitted uint64
	completed uint64
	waitIdle  int

	commands   []Command
	draws      []DrawCall
	violations []string
}

// New returns a device configured by cfg.
func New(cfg Config) *Device {
	return &Device{cfg: cfg}
}

// Features implements gpu.Device.
func (d *Device) Features() gpu.Features {
	return d.cfg.Features
}

// SetFeatures changes the advertised capabilities.
func (d *Device) SetFeatures(f gpu.Features) {
	d.cfg.Features = f
}

// SetFailPipelines toggles compute pipeline creation failures.
func (d *Device) SetFailPipelines(fail bool) {
	d.cfg.FailPipelines = fail
}

// SetMemoryLimit changes the cap on live buffer bytes.
func (d *Device) SetMemoryLimit(n int64) {
	d.cfg.MemoryLimit = n
}

// SetStallFences toggles whether fences can signal.
func (d *Device) SetStallFences(stall bool) {
	d.cfg.StallFences = stall
}

// CreateBuffer implements gpu.Device.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("soft: buffer %q: invalid size %d", desc.Label, desc.Size)
	}
	if d.cfg.MemoryLimit > 0 && d.allocated+desc.Size > d.cfg.MemoryLimit {
		return nil, fmt.Errorf("soft: buffer %q (%d bytes): %w", desc.Label, desc.Size, gpu.ErrOutOfMemory)
	}
	d.allocated += desc.Size
	d.liveBuffers++
	return &buffer{
		dev:   d,
		label: desc.Label,
		usage: desc.Usage,
		data:  make([]byte, desc.Size),
	}, nil
}

// WriteBuffer implements gpu.Device.
func (d *Device) WriteBuffer(b gpu.Buffer, offset int64, data []byte) error {
	buf, err := d.buffer(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+int64(len(data)) > int64(len(buf.data)) {
		return fmt.Errorf("soft: write %d bytes at %d into %q: %w", len(data), offset, buf.label, gpu.ErrOutOfRange)
	}
	copy(buf.data[offset:], data)
	return nil
}

// ReadBuffer implements gpu.Device.
func (d *Device) ReadBuffer(b gpu.Buffer, offset int64, dst []byte) error {
	buf, err := d.buffer(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+int64(len(dst)) > int64(len(buf.data)) {
		return fmt.Errorf("soft: read %d bytes at %d from %q: %w", len(dst), offset, buf.label, gpu.ErrOutOfRange)
	}
	copy(dst, buf.data[offset:])
	return nil
}

// CreateComputePipeline implements gpu.Device. Only the Kernel of desc is used.
func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.ComputePipeline, error) {
	if !d.cfg.Features.ComputeShaders {
		return nil, fmt.Errorf("soft: compute pipeline %q: %w", desc.Label, gpu.ErrUnsupported)
	}
	if d.cfg.FailPipelines {
		return nil, fmt.Errorf("soft: compute pipeline %q: %w", desc.Label, gpu.ErrShader)
	}
	if desc.Kernel == nil {
		return nil, fmt.Errorf("soft: compute pipeline %q has no CPU kernel: %w", desc.Label, gpu.ErrUnsupported)
	}
	d.pipelines++
	return &computePipeline{label: desc.Label, kernel: desc.Kernel}, nil
}

// CreateRenderPipeline implements gpu.Device.
func (d *Device) CreateRenderPipeline(desc gpu.RenderPipelineDesc) (gpu.RenderPipeline, error) {
	if desc.VertexGLSL == "" {
		return nil, fmt.Errorf("soft: render pipeline %q: empty vertex stage: %w", desc.Label, gpu.ErrShader)
	}
	return &renderPipeline{desc: desc}, nil
}

// CreateBindGroup implements gpu.Device.
func (d *Device) CreateBindGroup(entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	g := &bindGroup{dev: d}
	if err := g.Update(entries); err != nil {
		return nil, err
	}
	return g, nil
}

// Submit implements gpu.Device. Commands execute as they are recorded.
func (d *Device) Submit(fn func(rec gpu.Recorder)) error {
	d.submitted++
	rec := &recorder{dev: d, submission: d.submitted}
	fn(rec)
	if rec.inPass {
		d.violate("submission %d: render pass left open", d.submitted)
	}
	d.retire()
	return nil
}

// InsertFence implements gpu.Device.
func (d *Device) InsertFence() (gpu.Fence, error) {
	d.liveFences++
	return &fence{dev: d, value: d.submitted}, nil
}

// WaitIdle implements gpu.Device.
func (d *Device) WaitIdle() error {
	d.waitIdle++
	d.completed = d.submitted
	return nil
}

func (d *Device) retire() {
	lag := uint64(d.cfg.FenceLatency)
	if d.submitted > lag && d.submitted-lag > d.completed {
		d.completed = d.submitted - lag
	}
}

func (d *Device) buffer(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("soft: foreign buffer %T", b)
	}
	if buf.destroyed {
		return nil, fmt.Errorf("soft: buffer %q: %w", buf.label, gpu.ErrDestroyed)
	}
	return buf, nil
}

func (d *Device) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// Bytes returns a copy of the contents of b.
func (d *Device) Bytes(b gpu.Buffer) []byte {
	buf, err := d.buffer(b)
	if err != nil {
		return nil
	}
	return append([]byte(nil), buf.data...)
}

// Commands returns the commands recorded since the last ResetLog.
func (d *Device) Commands() []Command {
	return append([]Command(nil), d.commands...)
}

// Draws returns the draws executed since the last ResetLog.
func (d *Device) Draws() []DrawCall {
	return append([]DrawCall(nil), d.draws...)
}

// Violations returns the API misuse detected since the last ResetLog.
func (d *Device) Violations() []string {
	return append([]string(nil), d.violations...)
}

// ResetLog clears recorded commands, draws and violations.
func (d *Device) ResetLog() {
	d.commands = d.commands[:0]
	d.draws = d.draws[:0]
	d.violations = d.violations[:0]
}

// WaitIdleCount returns how many times WaitIdle was called.
func (d *Device) WaitIdleCount() int { return d.waitIdle }

// LiveFences returns the number of fences not yet destroyed.
func (d *Device) LiveFences() int { return d.liveFences }

// LiveBuffers returns the number of buffers not yet destroyed.
func (d *Device) LiveBuffers() int { return d.liveBuffers }

// Allocated returns the bytes held by live buffers.
func (d *Device) Allocated() int64 { return d.allocated }

// PipelinesCreated returns the number of compute pipelines created.
func (d *Device) PipelinesCreated() int { return d.pipelines }

// Submissions returns the number of Submit calls.
func (d *Device) Submissions() uint64 { return d.submitted }

var _ gpu.Device = (*Device)(nil)
