package gl46

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

// recorder issues GL calls as commands are recorded.
type recorder struct {
	dev *Device
	err error

	inPass  bool
	compute *computePipeline
	render  *renderPipeline

	vertex *buffer
	stride uint32
	index  *buffer
}

func (r *recorder) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("gl46: "+format, args...)
	}
}

func (r *recorder) resolve(b gpu.Buffer) *buffer {
	buf, err := asBuffer(b)
	if err != nil {
		r.fail("%v", err)
		return nil
	}
	return buf
}

func (r *recorder) FillBuffer(b gpu.Buffer, offset, size int64, value uint32) {
	buf := r.resolve(b)
	if buf == nil {
		return
	}
	if size <= 0 {
		size = buf.size - offset
	}
	gl.ClearNamedBufferSubData(buf.id, gl.R32UI, int(offset), int(size), gl.RED_INTEGER, gl.UNSIGNED_INT, unsafe.Pointer(&value))
}

func (r *recorder) CopyBuffer(src gpu.Buffer, srcOffset int64, dst gpu.Buffer, dstOffset int64, size int64) {
	s, d := r.resolve(src), r.resolve(dst)
	if s == nil || d == nil {
		return
	}
	gl.CopyNamedBufferSubData(s.id, d.id, int(srcOffset), int(dstOffset), int(size))
}

func (r *recorder) SetComputePipeline(p gpu.ComputePipeline) {
	cp, ok := p.(*computePipeline)
	if !ok || cp == nil || cp.program == 0 {
		r.fail("invalid compute pipeline %T", p)
		return
	}
	r.compute = cp
	gl.UseProgram(cp.program)
}

func (r *recorder) SetRenderPipeline(p gpu.RenderPipeline) {
	rp, ok := p.(*renderPipeline)
	if !ok || rp == nil || rp.program == 0 {
		r.fail("invalid render pipeline %T", p)
		return
	}
	r.render = rp
	gl.UseProgram(rp.program)
	applyState(rp.desc)
}

func (r *recorder) SetBindGroup(g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok || bg == nil {
		r.fail("invalid bind group %T", g)
		return
	}
	if err := bg.bind(); err != nil {
		r.fail("%v", err)
	}
}

// PushConstants uploads data into the push block of the pipeline set last.
func (r *recorder) PushConstants(data []byte) {
	var push *pushBlock
	switch {
	case r.inPass && r.render != nil:
		push = r.render.push
	case r.compute != nil:
		push = r.compute.push
	case r.render != nil:
		push = r.render.push
	}
	if push == nil {
		r.fail("push constants without a pipeline that declares them")
		return
	}
	if int64(len(data)) > push.buf.size {
		r.fail("push constants of %d bytes exceed block of %d", len(data), push.buf.size)
		return
	}
	if len(data) > 0 {
		gl.NamedBufferSubData(push.buf.id, 0, len(data), unsafe.Pointer(&data[0]))
	}
	gl.BindBufferBase(gl.UNIFORM_BUFFER, push.binding, push.buf.id)
}

func (r *recorder) Dispatch(x, y, z uint32) {
	if r.compute == nil {
		r.fail("dispatch without compute pipeline")
		return
	}
	if r.inPass {
		r.fail("dispatch inside render pass")
		return
	}
	gl.UseProgram(r.compute.program)
	gl.DispatchCompute(x, y, z)
}

// Barrier maps the destination accesses to glMemoryBarrier bits.
func (r *recorder) Barrier(_, dst gpu.Access) {
	var bits uint32
	if dst&(gpu.AccessShaderRead|gpu.AccessShaderWrite) != 0 {
		bits |= gl.SHADER_STORAGE_BARRIER_BIT | gl.UNIFORM_BARRIER_BIT
	}
	if dst&gpu.AccessIndirectRead != 0 {
		bits |= gl.COMMAND_BARRIER_BIT
	}
	if dst&gpu.AccessVertexRead != 0 {
		bits |= gl.VERTEX_ATTRIB_ARRAY_BARRIER_BIT
	}
	if dst&gpu.AccessIndexRead != 0 {
		bits |= gl.ELEMENT_ARRAY_BARRIER_BIT
	}
	if dst&(gpu.AccessTransferRead|gpu.AccessTransferWrite) != 0 {
		bits |= gl.BUFFER_UPDATE_BARRIER_BIT
	}
	if dst&gpu.AccessHostRead != 0 {
		bits |= gl.BUFFER_UPDATE_BARRIER_BIT | gl.CLIENT_MAPPED_BUFFER_BARRIER_BIT
	}
	if bits != 0 {
		gl.MemoryBarrier(bits)
	}
}

func (r *recorder) BeginRenderPass(desc gpu.RenderPassDesc) {
	if r.inPass {
		r.fail("render pass %q begun inside another pass", desc.Label)
		return
	}
	r.inPass = true
	gl.PushDebugGroup(gl.DEBUG_SOURCE_APPLICATION, 0, int32(len(desc.Label)), gl.Str(desc.Label+"\x00"))

	var mask uint32
	if desc.ClearColor {
		gl.ColorMask(true, true, true, true)
		gl.ClearColor(desc.Color[0], desc.Color[1], desc.Color[2], desc.Color[3])
		mask |= gl.COLOR_BUFFER_BIT
	}
	if desc.ClearDepth {
		gl.DepthMask(true)
		gl.ClearDepthf(desc.Depth)
		mask |= gl.DEPTH_BUFFER_BIT
	}
	if mask != 0 {
		gl.Clear(mask)
	}
}

func (r *recorder) EndRenderPass() {
	if !r.inPass {
		r.fail("end of render pass without begin")
		return
	}
	r.inPass = false
	gl.PopDebugGroup()
	gl.BindVertexArray(0)
}

func (r *recorder) SetVertexBuffer(b gpu.Buffer, layout gpu.VertexLayout) {
	if buf := r.resolve(b); buf != nil {
		r.vertex, r.stride = buf, layout.Stride
	}
}

func (r *recorder) SetIndexBuffer(b gpu.Buffer) {
	if buf := r.resolve(b); buf != nil {
		r.index = buf
	}
}

// bindGeometry attaches the vertex and index buffers to the pipeline's VAO.
func (r *recorder) bindGeometry() bool {
	switch {
	case !r.inPass:
		r.fail("draw outside render pass")
		return false
	case r.render == nil:
		r.fail("draw without render pipeline")
		return false
	case r.vertex == nil || r.index == nil:
		r.fail("draw without vertex or index buffer")
		return false
	}
	vao := r.render.vao
	gl.VertexArrayVertexBuffer(vao, 0, r.vertex.id, 0, int32(r.stride))
	gl.VertexArrayElementBuffer(vao, r.index.id)
	gl.BindVertexArray(vao)
	return true
}

func (r *recorder) DrawIndexedIndirect(b gpu.Buffer, offset int64, drawCount, stride uint32) {
	buf := r.resolve(b)
	if buf == nil || drawCount == 0 || !r.bindGeometry() {
		return
	}
	gl.BindBuffer(gl.DRAW_INDIRECT_BUFFER, buf.id)
	gl.MultiDrawElementsIndirect(gl.TRIANGLES, gl.UNSIGNED_INT, gl.PtrOffset(int(offset)), int32(drawCount), int32(stride))
}

func (r *recorder) DrawIndexedIndirectCount(b gpu.Buffer, offset int64, count gpu.Buffer, countOffset int64, maxDraws, stride uint32) {
	if !r.dev.features.DrawIndirectCount {
		r.fail("indirect count draw: %v", gpu.ErrUnsupported)
		return
	}
	buf, cnt := r.resolve(b), r.resolve(count)
	if buf == nil || cnt == nil || maxDraws == 0 || !r.bindGeometry() {
		return
	}
	gl.BindBuffer(gl.DRAW_INDIRECT_BUFFER, buf.id)
	gl.BindBuffer(gl.PARAMETER_BUFFER, cnt.id)
	gl.MultiDrawElementsIndirectCount(gl.TRIANGLES, gl.UNSIGNED_INT, gl.PtrOffset(int(offset)), int(countOffset), int32(maxDraws), int32(stride))
}

// applyState sets the fixed-function state of a render pipeline.
func applyState(d gpu.RenderPipelineDesc) {
	if d.DepthTest {
		gl.Enable(gl.DEPTH_TEST)
		gl.DepthFunc(compareFunc(d.DepthCompare))
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}
	gl.DepthMask(d.DepthWrite)
	gl.ColorMask(d.ColorWrite, d.ColorWrite, d.ColorWrite, d.ColorWrite)
	if d.CullBackFaces {
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	} else {
		gl.Disable(gl.CULL_FACE)
	}
}

func compareFunc(c gpu.CompareFunc) uint32 {
	switch c {
	case gpu.CompareLessEqual:
		return gl.LEQUAL
	case gpu.CompareEqual:
		return gl.EQUAL
	case gpu.CompareAlways:
		return gl.ALWAYS
	default:
		return gl.LESS
	}
}

var _ gpu.Recorder = (*recorder)(nil)
