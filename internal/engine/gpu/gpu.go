// Package gpu defines the device capability interfaces the renderer is
// written against: buffers, compute and render pipelines, bind groups,
// command recording and fences.
//
// Two implementations exist. gl46 drives an OpenGL 4.6 core context and
// soft emulates a device on the CPU for tests and headless tools.
package gpu

import (
	"errors"
	"time"
)

var (
	// ErrOutOfMemory is returned when a buffer allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("gpu: out of device memory")
	// ErrUnsupported is returned when a feature the call needs is missing.
	ErrUnsupported = errors.New("gpu: unsupported feature")
	// ErrOutOfRange is returned for buffer accesses past the end of a buffer.
	ErrOutOfRange = errors.New("gpu: access out of range")
	// ErrDestroyed is returned when a destroyed resource is used.
	ErrDestroyed = errors.New("gpu: resource destroyed")
	// ErrShader is returned when a shader fails to compile or link.
	ErrShader = errors.New("gpu: shader compilation failed")
	// ErrFenceTimeout is returned when a fence wait gives up.
	ErrFenceTimeout = errors.New("gpu: fence wait timed out")
)

// Features lists optional device capabilities.
type Features struct {
	// ComputeShaders allows compute pipelines and Dispatch.
	ComputeShaders bool
	// DrawIndirectCount allows DrawIndexedIndirectCount.
	DrawIndirectCount bool
	// SPIRV allows pipelines created from SPIR-V modules.
	SPIRV bool
}

// BufferUsage is a bit set describing how a buffer will be bound.
type BufferUsage uint32

const (
	UsageVertex BufferUsage = 1 << iota
	UsageIndex
	UsageStorage
	UsageUniform
	UsageIndirect
	UsageCopySrc
	UsageCopyDst
	// UsageReadback keeps the buffer host readable.
	UsageReadback
)

// Access is a bit set of memory access kinds used by Barrier.
type Access uint32

const (
	AccessShaderRead Access = 1 << iota
	AccessShaderWrite
	AccessIndirectRead
	AccessVertexRead
	AccessIndexRead
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
)

// Destroyer is implemented by every device resource.
type Destroyer interface {
	Destroy()
}

// Buffer is a linear device allocation.
type Buffer interface {
	Destroyer
	Label() string
	Size() int64
	Usage() BufferUsage
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  int64
	Usage BufferUsage
}

// Bindings maps binding slots to the raw bytes of the bound buffers.
// Kernels write results straight into these slices.
type Bindings map[uint32][]byte

// Kernel is a CPU implementation of a compute shader. Devices without a
// shader compiler execute it once per Dispatch with the bound buffers.
type Kernel func(b Bindings, push []byte, groups [3]uint32)

// ComputePipelineDesc describes a compute pipeline. A device uses the first
// representation it supports: SPIRV, then GLSL, then Kernel.
type ComputePipelineDesc struct {
	Label            string
	GLSL             string
	SPIRV            []byte
	EntryPoint       string
	PushConstantSize int
	// PushConstantBinding is the uniform block slot devices without
	// native push constants bind the constants to.
	PushConstantBinding uint32
	Kernel              Kernel
}

// ComputePipeline is a compiled compute program.
type ComputePipeline interface {
	Destroyer
	Label() string
}

// VertexAttribute is one float vector attribute inside an interleaved vertex.
type VertexAttribute struct {
	Location   uint32
	Components int32
	Offset     uint32
}

// VertexLayout describes an interleaved vertex buffer.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// CompareFunc is a depth comparison.
type CompareFunc uint8

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareEqual
	CompareAlways
)

// RenderPipelineDesc describes a graphics program plus its fixed state.
type RenderPipelineDesc struct {
	Label            string
	VertexGLSL       string
	FragmentGLSL     string
	Layout           VertexLayout
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareFunc
	ColorWrite       bool
	CullBackFaces    bool
	PushConstantSize int
	// PushConstantBinding is as in ComputePipelineDesc.
	PushConstantBinding uint32
}

// RenderPipeline is a compiled graphics program.
type RenderPipeline interface {
	Destroyer
	Label() string
}

// BindGroupEntry binds a buffer range to a storage or uniform slot.
// Buffers created with UsageUniform and without UsageStorage bind as
// uniform blocks. A zero Size binds the whole buffer.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  int64
	Size    int64
}

// BindGroup is a set of buffer bindings for one pipeline.
type BindGroup interface {
	Destroyer
	// Update rewrites the bindings in place.
	Update(entries []BindGroupEntry) error
}

// Fence signals when all work submitted before it has completed.
type Fence interface {
	Destroyer
	Signaled() bool
	Wait(timeout time.Duration) bool
}

// RenderPassDesc describes the attachments' load behavior.
type RenderPassDesc struct {
	Label      string
	ClearColor bool
	Color      [4]float32
	ClearDepth bool
	Depth      float32
}

// Recorder records GPU commands. Recorders are only valid inside the
// Submit callback that produced them.
type Recorder interface {
	FillBuffer(b Buffer, offset, size int64, value uint32)
	CopyBuffer(src Buffer, srcOffset int64, dst Buffer, dstOffset int64, size int64)

	SetComputePipeline(p ComputePipeline)
	SetRenderPipeline(p RenderPipeline)
	SetBindGroup(g BindGroup)
	PushConstants(data []byte)
	Dispatch(x, y, z uint32)
	Barrier(src, dst Access)

	BeginRenderPass(desc RenderPassDesc)
	EndRenderPass()
	SetVertexBuffer(b Buffer, layout VertexLayout)
	SetIndexBuffer(b Buffer)
	DrawIndexedIndirect(b Buffer, offset int64, drawCount, stride uint32)
	DrawIndexedIndirectCount(b Buffer, offset int64, count Buffer, countOffset int64, maxDraws, stride uint32)
}

// Device is a logical GPU with a single queue.
type Device interface {
	Features() Features

	CreateBuffer(desc BufferDesc) (Buffer, error)
	// WriteBuffer copies data into b synchronously.
	WriteBuffer(b Buffer, offset int64, data []byte) error
	// ReadBuffer copies from b into dst. It waits for pending writes to b.
	ReadBuffer(b Buffer, offset int64, dst []byte) error

	CreateComputePipeline(desc ComputePipelineDesc) (ComputePipeline, error)
	CreateRenderPipeline(desc RenderPipelineDesc) (RenderPipeline, error)
	CreateBindGroup(entries []BindGroupEntry) (BindGroup, error)

	// Submit records commands through fn and submits them to the queue.
	Submit(fn func(rec Recorder)) error
	// InsertFence returns a fence that signals once all work submitted so
	// far has completed.
	InsertFence() (Fence, error)
	// WaitIdle blocks until the queue has drained.
	WaitIdle() error
}
