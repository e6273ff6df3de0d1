package indirect

import (
	"fmt"
	"unsafe"

	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/pkg/math"
)

// IndirectCommand matches the layout of an indexed indirect draw record.
type IndirectCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// IndirectCommandSize is the byte stride of IndirectCommand.
const IndirectCommandSize = 20

// gpuBounds is the std430 bounds record consumed by the cull shader.
type gpuBounds struct {
	Min [4]float32
	Max [4]float32
}

const (
	boundsSize = int64(unsafe.Sizeof(gpuBounds{}))
	modelSize  = int64(unsafe.Sizeof(math.Mat4{}))
)

func toGPUBounds(b math.AABB) gpuBounds {
	return gpuBounds{
		Min: [4]float32{b.Min.X, b.Min.Y, b.Min.Z, 1},
		Max: [4]float32{b.Max.X, b.Max.Y, b.Max.Z, 1},
	}
}

// buildCommands derives the per-draw arrays from active records in draw order.
func buildCommands(records []MeshRecord) ([]IndirectCommand, []math.Mat4, []gpuBounds) {
	cmds := make([]IndirectCommand, len(records))
	models := make([]math.Mat4, len(records))
	bounds := make([]gpuBounds, len(records))
	for i, r := range records {
		cmds[i] = IndirectCommand{
			IndexCount:    r.IndexCount,
			InstanceCount: 1,
			FirstIndex:    r.FirstIndex,
			VertexOffset:  r.BaseVertex,
			FirstInstance: uint32(i),
		}
		models[i] = r.Model
		bounds[i] = toGPUBounds(r.Bounds)
	}
	return cmds, models, bounds
}

// commandSet owns the per-draw GPU buffers: the full command list, the
// compacted list the culler writes, model matrices, bounds and the
// visible counter.
type commandSet struct {
	dev gpu.Device
	reg *gpu.Registry

	commands gpu.Buffer
	compact  gpu.Buffer
	models   gpu.Buffer
	bounds   gpu.Buffer
	visible  gpu.Buffer

	capacity int
	count    int
	// slots maps mesh ids to draw slots of the last upload.
	slots map[uint32]uint32
}

// reserve recreates every per-draw buffer when meshes exceeds the current
// capacity. The device must be idle.
func (c *commandSet) reserve(meshes int) (bool, error) {
	if meshes <= c.capacity && c.commands != nil {
		return false, nil
	}
	n := int64(meshes)
	descs := []struct {
		dst  *gpu.Buffer
		desc gpu.BufferDesc
	}{
		{&c.commands, gpu.BufferDesc{Label: "indirect.commands", Size: n * IndirectCommandSize, Usage: gpu.UsageIndirect | gpu.UsageStorage | gpu.UsageCopyDst}},
		{&c.compact, gpu.BufferDesc{Label: "indirect.compact", Size: n * IndirectCommandSize, Usage: gpu.UsageIndirect | gpu.UsageStorage}},
		{&c.models, gpu.BufferDesc{Label: "indirect.models", Size: n * modelSize, Usage: gpu.UsageStorage | gpu.UsageCopyDst}},
		{&c.bounds, gpu.BufferDesc{Label: "indirect.bounds", Size: n * boundsSize, Usage: gpu.UsageStorage | gpu.UsageCopyDst}},
		{&c.visible, gpu.BufferDesc{Label: "indirect.visible", Size: 4, Usage: gpu.UsageIndirect | gpu.UsageStorage | gpu.UsageCopySrc | gpu.UsageCopyDst}},
	}
	for _, d := range descs {
		b, err := c.dev.CreateBuffer(d.desc)
		if err != nil {
			return false, fmt.Errorf("allocating %s for %d meshes: %w", d.desc.Label, meshes, err)
		}
		c.reg.Release(*d.dst)
		c.reg.Track(b, d.desc.Label)
		*d.dst = b
	}
	c.capacity = meshes
	return true, nil
}

// upload writes the per-draw arrays for records.
func (c *commandSet) upload(records []MeshRecord) error {
	cmds, models, bounds := buildCommands(records)
	if len(records) > 0 {
		if err := c.dev.WriteBuffer(c.commands, 0, unsafe.Slice((*byte)(unsafe.Pointer(&cmds[0])), len(cmds)*IndirectCommandSize)); err != nil {
			return fmt.Errorf("uploading commands: %w", err)
		}
		if err := c.dev.WriteBuffer(c.models, 0, unsafe.Slice((*byte)(unsafe.Pointer(&models[0])), int64(len(models))*modelSize)); err != nil {
			return fmt.Errorf("uploading models: %w", err)
		}
		if err := c.dev.WriteBuffer(c.bounds, 0, unsafe.Slice((*byte)(unsafe.Pointer(&bounds[0])), int64(len(bounds))*boundsSize)); err != nil {
			return fmt.Errorf("uploading bounds: %w", err)
		}
	}
	if err := c.dev.WriteBuffer(c.visible, 0, make([]byte, 4)); err != nil {
		return fmt.Errorf("clearing visible count: %w", err)
	}

	c.slots = make(map[uint32]uint32, len(records))
	for i, r := range records {
		c.slots[r.ID] = uint32(i)
	}
	c.count = len(records)
	return nil
}

// erase hides the draw slot of id until the next upload.
func (c *commandSet) erase(id uint32) error {
	slot, ok := c.slots[id]
	if !ok || c.commands == nil {
		return fmt.Errorf("%w: %d", ErrUnknownMesh, id)
	}
	var zero [IndirectCommandSize]byte
	if err := c.dev.WriteBuffer(c.commands, int64(slot)*IndirectCommandSize, zero[:]); err != nil {
		return fmt.Errorf("erasing command of mesh %d: %w", id, err)
	}
	inv := toGPUBounds(math.InvertedAABB())
	if err := c.dev.WriteBuffer(c.bounds, int64(slot)*boundsSize, unsafe.Slice((*byte)(unsafe.Pointer(&inv)), boundsSize)); err != nil {
		return fmt.Errorf("erasing bounds of mesh %d: %w", id, err)
	}
	return nil
}
