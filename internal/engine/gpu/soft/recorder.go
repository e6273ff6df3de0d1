package soft

import (
	"encoding/binary"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

// Op identifies a recorded command.
type Op uint8

const (
	OpFill Op = iota
	OpCopy
	OpSetComputePipeline
	OpSetRenderPipeline
	OpSetBindGroup
	OpPushConstants
	OpDispatch
	OpBarrier
	OpBeginRenderPass
	OpEndRenderPass
	OpSetVertexBuffer
	OpSetIndexBuffer
	OpDrawIndexedIndirect
	OpDrawIndexedIndirectCount
)

var opNames = [...]string{
	OpFill:                     "fill",
	OpCopy:                     "copy",
	OpSetComputePipeline:       "set-compute-pipeline",
	OpSetRenderPipeline:        "set-render-pipeline",
	OpSetBindGroup:             "set-bind-group",
	OpPushConstants:            "push-constants",
	OpDispatch:                 "dispatch",
	OpBarrier:                  "barrier",
	OpBeginRenderPass:          "begin-render-pass",
	OpEndRenderPass:            "end-render-pass",
	OpSetVertexBuffer:          "set-vertex-buffer",
	OpSetIndexBuffer:           "set-index-buffer",
	OpDrawIndexedIndirect:      "draw-indexed-indirect",
	OpDrawIndexedIndirectCount: "draw-indexed-indirect-count",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Command is one recorded command. Fields irrelevant to Op are zero.
type Command struct {
	Op         Op
	Submission uint64
	InPass     bool
	// Label names the buffer, pipeline or pass the command targets.
	Label  string
	Offset int64
	Size   int64
	Value  uint32
	Groups [3]uint32
	// DrawCount is the number of commands the draw consumed.
	DrawCount uint32
	MaxDraws  uint32
	Stride    uint32
	Src, Dst  gpu.Access
}

// DrawCall is one decoded indirect draw.
type DrawCall struct {
	Submission    uint64
	Pipeline      string
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

const indirectCommandSize = 20

type recorder struct {
	dev        *Device
	submission uint64
	inPass     bool

	compute *computePipeline
	render  *renderPipeline
	group   *bindGroup
	push    []byte

	vertex *buffer
	layout gpu.VertexLayout
	index  *buffer
}

func (r *recorder) log(c Command) {
	c.Submission = r.submission
	c.InPass = r.inPass
	r.dev.commands = append(r.dev.commands, c)
}

func (r *recorder) resolve(b gpu.Buffer, op Op) *buffer {
	buf, err := r.dev.buffer(b)
	if err != nil {
		r.dev.violate("%s: %v", op, err)
		return nil
	}
	return buf
}

func (r *recorder) FillBuffer(b gpu.Buffer, offset, size int64, value uint32) {
	buf := r.resolve(b, OpFill)
	if buf == nil {
		return
	}
	if size <= 0 {
		size = int64(len(buf.data)) - offset
	}
	r.log(Command{Op: OpFill, Label: buf.label, Offset: offset, Size: size, Value: value})
	if r.inPass {
		r.dev.violate("fill of %q inside render pass", buf.label)
	}
	if offset < 0 || size%4 != 0 || offset+size > int64(len(buf.data)) {
		r.dev.violate("fill of %q out of range", buf.label)
		return
	}
	for i := offset; i < offset+size; i += 4 {
		binary.LittleEndian.PutUint32(buf.data[i:], value)
	}
}

func (r *recorder) CopyBuffer(src gpu.Buffer, srcOffset int64, dst gpu.Buffer, dstOffset int64, size int64) {
	s := r.resolve(src, OpCopy)
	d := r.resolve(dst, OpCopy)
	if s == nil || d == nil {
		return
	}
	r.log(Command{Op: OpCopy, Label: s.label + "->" + d.label, Offset: dstOffset, Size: size})
	if r.inPass {
		r.dev.violate("copy %q->%q inside render pass", s.label, d.label)
	}
	if srcOffset < 0 || dstOffset < 0 || srcOffset+size > int64(len(s.data)) || dstOffset+size > int64(len(d.data)) {
		r.dev.violate("copy %q->%q out of range", s.label, d.label)
		return
	}
	copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
}

func (r *recorder) SetComputePipeline(p gpu.ComputePipeline) {
	cp, ok := p.(*computePipeline)
	if !ok || cp == nil || cp.destroyed {
		r.dev.violate("%s: invalid pipeline %T", OpSetComputePipeline, p)
		return
	}
	r.compute = cp
	r.log(Command{Op: OpSetComputePipeline, Label: cp.label})
}

func (r *recorder) SetRenderPipeline(p gpu.RenderPipeline) {
	rp, ok := p.(*renderPipeline)
	if !ok || rp == nil || rp.destroyed {
		r.dev.violate("%s: invalid pipeline %T", OpSetRenderPipeline, p)
		return
	}
	r.render = rp
	r.log(Command{Op: OpSetRenderPipeline, Label: rp.desc.Label})
}

func (r *recorder) SetBindGroup(g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok || bg == nil || bg.destroyed {
		r.dev.violate("%s: invalid bind group %T", OpSetBindGroup, g)
		return
	}
	r.group = bg
	r.log(Command{Op: OpSetBindGroup})
}

func (r *recorder) PushConstants(data []byte) {
	r.push = append(r.push[:0], data...)
	r.log(Command{Op: OpPushConstants, Size: int64(len(data))})
}

func (r *recorder) Dispatch(x, y, z uint32) {
	r.log(Command{Op: OpDispatch, Groups: [3]uint32{x, y, z}})
	if r.inPass {
		r.dev.violate("dispatch inside render pass")
		return
	}
	if r.compute == nil || r.group == nil {
		r.dev.violate("dispatch without pipeline or bind group")
		return
	}
	b, err := r.group.bindings()
	if err != nil {
		r.dev.violate("dispatch %q: %v", r.compute.label, err)
		return
	}
	r.compute.kernel(b, r.push, [3]uint32{x, y, z})
}

func (r *recorder) Barrier(src, dst gpu.Access) {
	r.log(Command{Op: OpBarrier, Src: src, Dst: dst})
}

func (r *recorder) BeginRenderPass(desc gpu.RenderPassDesc) {
	if r.inPass {
		r.dev.violate("render pass %q begun inside another pass", desc.Label)
	}
	r.log(Command{Op: OpBeginRenderPass, Label: desc.Label})
	r.inPass = true
}

func (r *recorder) EndRenderPass() {
	if !r.inPass {
		r.dev.violate("end of render pass without begin")
	}
	r.inPass = false
	r.log(Command{Op: OpEndRenderPass})
}

func (r *recorder) SetVertexBuffer(b gpu.Buffer, layout gpu.VertexLayout) {
	buf := r.resolve(b, OpSetVertexBuffer)
	if buf == nil {
		return
	}
	if layout.Stride == 0 {
		r.dev.violate("vertex buffer %q bound with zero stride", buf.label)
		return
	}
	r.vertex, r.layout = buf, layout
	r.log(Command{Op: OpSetVertexBuffer, Label: buf.label, Stride: layout.Stride})
}

func (r *recorder) SetIndexBuffer(b gpu.Buffer) {
	buf := r.resolve(b, OpSetIndexBuffer)
	if buf == nil {
		return
	}
	r.index = buf
	r.log(Command{Op: OpSetIndexBuffer, Label: buf.label})
}

func (r *recorder) DrawIndexedIndirect(b gpu.Buffer, offset int64, drawCount, stride uint32) {
	buf := r.resolve(b, OpDrawIndexedIndirect)
	if buf == nil {
		return
	}
	r.log(Command{Op: OpDrawIndexedIndirect, Label: buf.label, Offset: offset, DrawCount: drawCount, Stride: stride})
	r.draw(buf, offset, drawCount, stride)
}

func (r *recorder) DrawIndexedIndirectCount(b gpu.Buffer, offset int64, count gpu.Buffer, countOffset int64, maxDraws, stride uint32) {
	buf := r.resolve(b, OpDrawIndexedIndirectCount)
	cnt := r.resolve(count, OpDrawIndexedIndirectCount)
	if buf == nil || cnt == nil {
		return
	}
	if !r.dev.cfg.Features.DrawIndirectCount {
		r.dev.violate("indirect count draw on a device without support")
		return
	}
	if countOffset < 0 || countOffset+4 > int64(len(cnt.data)) {
		r.dev.violate("count offset %d out of range of %q", countOffset, cnt.label)
		return
	}
	n := min(binary.LittleEndian.Uint32(cnt.data[countOffset:]), maxDraws)
	r.log(Command{Op: OpDrawIndexedIndirectCount, Label: buf.label, Offset: offset, DrawCount: n, MaxDraws: maxDraws, Stride: stride})
	r.draw(buf, offset, n, stride)
}

// draw decodes drawCount commands and checks every referenced vertex.
func (r *recorder) draw(cmds *buffer, offset int64, drawCount, stride uint32) {
	if !r.inPass {
		r.dev.violate("draw outside render pass")
		return
	}
	if r.vertex == nil || r.index == nil {
		r.dev.violate("draw without vertex or index buffer")
		return
	}
	if stride == 0 {
		stride = indirectCommandSize
	}
	label := ""
	if r.render != nil {
		label = r.render.desc.Label
	}
	indices := r.index.data
	vertexCount := int64(len(r.vertex.data)) / int64(r.layout.Stride)

	for i := uint32(0); i < drawCount; i++ {
		at := offset + int64(i)*int64(stride)
		if at < 0 || at+indirectCommandSize > int64(len(cmds.data)) {
			r.dev.violate("indirect command %d past the end of %q", i, cmds.label)
			return
		}
		c := cmds.data[at:]
		dc := DrawCall{
			Submission:    r.submission,
			Pipeline:      label,
			IndexCount:    binary.LittleEndian.Uint32(c[0:]),
			InstanceCount: binary.LittleEndian.Uint32(c[4:]),
			FirstIndex:    binary.LittleEndian.Uint32(c[8:]),
			VertexOffset:  int32(binary.LittleEndian.Uint32(c[12:])),
			FirstInstance: binary.LittleEndian.Uint32(c[16:]),
		}
		if dc.IndexCount == 0 || dc.InstanceCount == 0 {
			continue
		}
		end := int64(dc.FirstIndex) + int64(dc.IndexCount)
		if end*4 > int64(len(indices)) {
			r.dev.violate("draw %d reads indices %d..%d past the end of %q", i, dc.FirstIndex, end, r.index.label)
			continue
		}
		for k := int64(dc.FirstIndex); k < end; k++ {
			v := int64(binary.LittleEndian.Uint32(indices[k*4:])) + int64(dc.VertexOffset)
			if v < 0 || v >= vertexCount {
				r.dev.violate("draw %d references vertex %d of %d", i, v, vertexCount)
				break
			}
		}
		r.dev.draws = append(r.dev.draws, dc)
	}
}
