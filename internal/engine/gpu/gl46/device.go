// Package gl46 implements gpu.Device on an OpenGL 4.6 core context.
//
// GL has no command buffers, so recorded commands execute immediately on
// the context's thread. Push constants are emulated with a small uniform
// buffer per pipeline. All calls must come from the thread that owns the
// context.
package gl46

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

// Options configures the device.
type Options struct {
	// Debug installs a debug-output callback and labels GL objects.
	Debug bool
	// DisableSPIRV ignores ARB_gl_spirv even when the driver has it.
	DisableSPIRV bool
}

// Device drives the current OpenGL context.
type Device struct {
	opts     Options
	log      *zap.Logger
	features gpu.Features

	version  string
	renderer string
}

// New initializes GL function pointers for the current context and probes
// its capabilities. It must be called after the context is made current.
func New(opts Options, log *zap.Logger) (*Device, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("gl46")

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	d := &Device{
		opts:     opts,
		log:      log,
		version:  gl.GoStr(gl.GetString(gl.VERSION)),
		renderer: gl.GoStr(gl.GetString(gl.RENDERER)),
	}

	var major, minor int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	gl.GetIntegerv(gl.MINOR_VERSION, &minor)
	v := major*10 + minor
	d.features = gpu.Features{
		ComputeShaders:    v >= 43,
		DrawIndirectCount: v >= 46 || d.hasExtension("GL_ARB_indirect_parameters"),
		SPIRV:             !opts.DisableSPIRV && (v >= 46 || d.hasExtension("GL_ARB_gl_spirv")),
	}

	if opts.Debug {
		d.installDebugOutput()
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)

	log.Info("OpenGL initialized",
		zap.String("version", d.version),
		zap.String("renderer", d.renderer),
		zap.Bool("compute", d.features.ComputeShaders),
		zap.Bool("indirect_count", d.features.DrawIndirectCount),
		zap.Bool("spirv", d.features.SPIRV),
	)
	return d, nil
}

func (d *Device) hasExtension(name string) bool {
	var n int32
	gl.GetIntegerv(gl.NUM_EXTENSIONS, &n)
	for i := int32(0); i < n; i++ {
		if gl.GoStr(gl.GetStringi(gl.EXTENSIONS, uint32(i))) == name {
			return true
		}
	}
	return false
}

// Features implements gpu.Device.
func (d *Device) Features() gpu.Features { return d.features }

// Version returns the GL_VERSION string.
func (d *Device) Version() string { return d.version }

// Renderer returns the GL_RENDERER string.
func (d *Device) Renderer() string { return d.renderer }

// Resize sets the viewport to the drawable size.
func (d *Device) Resize(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
	d.log.Debug("viewport resized", zap.Int("width", width), zap.Int("height", height))
}

// CreateBuffer implements gpu.Device with immutable DSA storage.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("gl46: buffer %q: invalid size %d", desc.Label, desc.Size)
	}
	drainErrors()

	var id uint32
	gl.CreateBuffers(1, &id)
	flags := uint32(gl.DYNAMIC_STORAGE_BIT)
	if desc.Usage&gpu.UsageReadback != 0 {
		flags |= gl.MAP_READ_BIT | gl.CLIENT_STORAGE_BIT
	}
	gl.NamedBufferStorage(id, int(desc.Size), nil, flags)
	if e := gl.GetError(); e != gl.NO_ERROR {
		gl.DeleteBuffers(1, &id)
		if e == gl.OUT_OF_MEMORY {
			return nil, fmt.Errorf("gl46: buffer %q (%d bytes): %w", desc.Label, desc.Size, gpu.ErrOutOfMemory)
		}
		return nil, fmt.Errorf("gl46: buffer %q: GL error 0x%X", desc.Label, e)
	}
	d.label(gl.BUFFER, id, desc.Label)
	return &buffer{id: id, label: desc.Label, size: desc.Size, usage: desc.Usage}, nil
}

// WriteBuffer implements gpu.Device.
func (d *Device) WriteBuffer(b gpu.Buffer, offset int64, data []byte) error {
	buf, err := asBuffer(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+int64(len(data)) > buf.size {
		return fmt.Errorf("gl46: write %d bytes at %d into %q: %w", len(data), offset, buf.label, gpu.ErrOutOfRange)
	}
	if len(data) == 0 {
		return nil
	}
	gl.NamedBufferSubData(buf.id, int(offset), len(data), unsafe.Pointer(&data[0]))
	return nil
}

// ReadBuffer implements gpu.Device. The read blocks until prior GPU writes
// to b have landed.
func (d *Device) ReadBuffer(b gpu.Buffer, offset int64, dst []byte) error {
	buf, err := asBuffer(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+int64(len(dst)) > buf.size {
		return fmt.Errorf("gl46: read %d bytes at %d from %q: %w", len(dst), offset, buf.label, gpu.ErrOutOfRange)
	}
	if len(dst) == 0 {
		return nil
	}
	gl.GetNamedBufferSubData(buf.id, int(offset), len(dst), unsafe.Pointer(&dst[0]))
	return nil
}

// CreateComputePipeline implements gpu.Device. SPIR-V is preferred when
// the device supports it; a module the driver rejects falls back to GLSL.
func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.ComputePipeline, error) {
	if !d.features.ComputeShaders {
		return nil, fmt.Errorf("gl46: compute pipeline %q: %w", desc.Label, gpu.ErrUnsupported)
	}

	var (
		program uint32
		err     error
	)
	if len(desc.SPIRV) > 0 && d.features.SPIRV {
		program, err = compileComputeSPIRV(desc.SPIRV, desc.EntryPoint)
		if err != nil {
			d.log.Warn("SPIR-V module rejected, using GLSL",
				zap.String("pipeline", desc.Label), zap.Error(err))
		}
	}
	if program == 0 {
		if desc.GLSL == "" {
			return nil, fmt.Errorf("gl46: compute pipeline %q: no GLSL source: %w", desc.Label, gpu.ErrShader)
		}
		program, err = compileComputeGLSL(desc.GLSL)
		if err != nil {
			return nil, fmt.Errorf("gl46: compute pipeline %q: %w: %v", desc.Label, gpu.ErrShader, err)
		}
	}
	d.label(gl.PROGRAM, program, desc.Label)

	p := &computePipeline{label: desc.Label, program: program}
	p.push, err = d.newPushBlock(desc.Label, desc.PushConstantSize, desc.PushConstantBinding)
	if err != nil {
		gl.DeleteProgram(program)
		return nil, err
	}
	d.log.Debug("compute pipeline created", zap.String("label", desc.Label), zap.Uint32("program", program))
	return p, nil
}

// CreateRenderPipeline implements gpu.Device.
func (d *Device) CreateRenderPipeline(desc gpu.RenderPipelineDesc) (gpu.RenderPipeline, error) {
	program, err := CompileProgram(desc.VertexGLSL, desc.FragmentGLSL)
	if err != nil {
		return nil, fmt.Errorf("gl46: render pipeline %q: %w: %v", desc.Label, gpu.ErrShader, err)
	}
	d.label(gl.PROGRAM, program, desc.Label)

	var vao uint32
	gl.CreateVertexArrays(1, &vao)
	for _, a := range desc.Layout.Attributes {
		gl.EnableVertexArrayAttrib(vao, a.Location)
		gl.VertexArrayAttribFormat(vao, a.Location, a.Components, gl.FLOAT, false, a.Offset)
		gl.VertexArrayAttribBinding(vao, a.Location, 0)
	}

	p := &renderPipeline{desc: desc, program: program, vao: vao}
	p.push, err = d.newPushBlock(desc.Label, desc.PushConstantSize, desc.PushConstantBinding)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	d.log.Debug("render pipeline created", zap.String("label", desc.Label), zap.Uint32("program", program))
	return p, nil
}

func (d *Device) newPushBlock(label string, size int, binding uint32) (*pushBlock, error) {
	if size <= 0 {
		return nil, nil
	}
	b, err := d.CreateBuffer(gpu.BufferDesc{
		Label: label + ".push",
		Size:  int64(size),
		Usage: gpu.UsageUniform | gpu.UsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	return &pushBlock{buf: b.(*buffer), binding: binding}, nil
}

// CreateBindGroup implements gpu.Device.
func (d *Device) CreateBindGroup(entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	g := &bindGroup{}
	if err := g.Update(entries); err != nil {
		return nil, err
	}
	return g, nil
}

// Submit implements gpu.Device. Commands run as they are recorded; the
// first recording error is returned.
func (d *Device) Submit(fn func(rec gpu.Recorder)) error {
	rec := &recorder{dev: d}
	fn(rec)
	if rec.inPass {
		rec.fail("render pass left open")
		rec.EndRenderPass()
	}
	gl.Flush()
	return rec.err
}

// InsertFence implements gpu.Device.
func (d *Device) InsertFence() (gpu.Fence, error) {
	s := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	if s == 0 {
		return nil, fmt.Errorf("gl46: glFenceSync failed")
	}
	return &fence{sync: s}, nil
}

// WaitIdle implements gpu.Device.
func (d *Device) WaitIdle() error {
	gl.Finish()
	return nil
}

func (d *Device) label(kind, id uint32, name string) {
	if !d.opts.Debug || name == "" {
		return
	}
	gl.ObjectLabel(kind, id, int32(len(name)), gl.Str(name+"\x00"))
}

func drainErrors() {
	for i := 0; i < 16 && gl.GetError() != gl.NO_ERROR; i++ {
	}
}

// installDebugOutput routes driver messages to the logger.
func (d *Device) installDebugOutput() {
	gl.Enable(gl.DEBUG_OUTPUT)
	gl.Enable(gl.DEBUG_OUTPUT_SYNCHRONOUS)
	log := d.log.Named("driver")
	gl.DebugMessageCallback(func(source, gltype, id, severity uint32, length int32, message string, userParam unsafe.Pointer) {
		msg := strings.TrimSpace(message)
		fields := []zap.Field{zap.Uint32("id", id), zap.Uint32("type", gltype), zap.Uint32("source", source)}
		switch severity {
		case gl.DEBUG_SEVERITY_HIGH:
			log.Error(msg, fields...)
		case gl.DEBUG_SEVERITY_MEDIUM:
			log.Warn(msg, fields...)
		case gl.DEBUG_SEVERITY_LOW:
			log.Info(msg, fields...)
		default:
			log.Debug(msg, fields...)
		}
	}, nil)
}

var _ gpu.Device = (*Device)(nil)
