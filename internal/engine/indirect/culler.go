package indirect

import (
	"go.uber.org/zap"

	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/shader"
	"github.com/Faultbox/strata/internal/logger"
	"github.com/Faultbox/strata/pkg/math"
)

// CullPipelineLabel names the compute pipeline of the cull pass.
const CullPipelineLabel = "indirect.cull"

// culler owns the frustum-cull compute pipeline and its bind group.
type culler struct {
	dev  gpu.Device
	reg  *gpu.Registry
	log  *zap.Logger
	once *logger.Once

	enabled  bool
	useSPIRV bool

	pipeline gpu.ComputePipeline
	group    gpu.BindGroup
	failed   bool
}

// bind points the pipeline at the current buffers, creating the pipeline
// and bind group on first use. Creation is attempted only once; after a
// failure culling stays off.
func (c *culler) bind(cs *commandSet) {
	if !c.enabled || c.failed {
		return
	}
	entries := []gpu.BindGroupEntry{
		{Binding: bindCommands, Buffer: cs.commands},
		{Binding: bindCompact, Buffer: cs.compact},
		{Binding: bindModels, Buffer: cs.models},
		{Binding: bindBounds, Buffer: cs.bounds},
		{Binding: bindVisible, Buffer: cs.visible},
	}

	if c.pipeline == nil {
		if !c.dev.Features().ComputeShaders {
			c.failed = true
			c.once.Info("cull-no-compute", "device has no compute shaders, GPU culling disabled")
			return
		}
		p, err := c.dev.CreateComputePipeline(c.pipelineDesc())
		if err != nil {
			c.failed = true
			c.once.Error("cull-pipeline", "cull pipeline creation failed, GPU culling disabled", zap.Error(err))
			return
		}
		c.reg.Track(p, CullPipelineLabel)
		c.pipeline = p
		c.log.Debug("cull pipeline created", zap.Bool("spirv", c.useSPIRV))
	}

	if c.group == nil {
		g, err := c.dev.CreateBindGroup(entries)
		if err != nil {
			c.failed = true
			c.once.Error("cull-bind-group", "cull bind group creation failed, GPU culling disabled", zap.Error(err))
			return
		}
		c.reg.Track(g, CullPipelineLabel+".bindings")
		c.group = g
		return
	}
	if err := c.group.Update(entries); err != nil {
		c.failed = true
		c.once.Error("cull-bind-group", "cull bind group update failed, GPU culling disabled", zap.Error(err))
	}
}

func (c *culler) pipelineDesc() gpu.ComputePipelineDesc {
	desc := gpu.ComputePipelineDesc{
		Label:               CullPipelineLabel,
		GLSL:                cullGLSL,
		EntryPoint:          "main",
		PushConstantSize:    cullParamsSize,
		PushConstantBinding: cullParamsBinding,
		Kernel:              cullKernel,
	}
	if c.useSPIRV {
		if !c.dev.Features().SPIRV {
			c.once.Info("cull-spirv-unsupported", "device cannot load SPIR-V, using GLSL cull shader")
			return desc
		}
		spv, err := shader.CompileWGSL(cullWGSL)
		if err != nil {
			c.once.Warn("cull-spirv", "cull shader WGSL compilation failed, using GLSL", zap.Error(err))
			return desc
		}
		desc.SPIRV = spv
	}
	return desc
}

// ready reports whether a cull pass can be recorded.
func (c *culler) ready() bool {
	return c.pipeline != nil && c.group != nil && !c.failed
}

// record records the cull pass for count meshes. It must be called outside
// a render pass.
func (c *culler) record(rec gpu.Recorder, cs *commandSet, viewProj math.Mat4, maxDraws uint32) {
	count := uint32(cs.count)
	rec.FillBuffer(cs.visible, 0, 4, 0)
	rec.Barrier(gpu.AccessTransferWrite, gpu.AccessShaderRead|gpu.AccessShaderWrite)
	rec.SetComputePipeline(c.pipeline)
	rec.SetBindGroup(c.group)
	rec.PushConstants(cullParams{ViewProj: viewProj, MeshCount: count, MaxDraws: maxDraws}.encode())
	rec.Dispatch((count+cullWorkgroupSize-1)/cullWorkgroupSize, 1, 1)
	rec.Barrier(gpu.AccessShaderWrite, gpu.AccessIndirectRead|gpu.AccessShaderRead)
}
