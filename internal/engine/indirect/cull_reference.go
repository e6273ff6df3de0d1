package indirect

import (
	"encoding/binary"
	gomath "math"

	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/pkg/math"
)

// cullParams is the push-constant block of the cull pass.
type cullParams struct {
	ViewProj  math.Mat4
	MeshCount uint32
	MaxDraws  uint32
}

func (p cullParams) encode() []byte {
	out := make([]byte, cullParamsSize)
	for i, f := range p.ViewProj {
		binary.LittleEndian.PutUint32(out[i*4:], gomath.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(out[64:], p.MeshCount)
	binary.LittleEndian.PutUint32(out[68:], p.MaxDraws)
	return out
}

func decodeCullParams(b []byte) cullParams {
	var p cullParams
	if len(b) < 72 {
		return p
	}
	for i := range p.ViewProj {
		p.ViewProj[i] = gomath.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	p.MeshCount = binary.LittleEndian.Uint32(b[64:])
	p.MaxDraws = binary.LittleEndian.Uint32(b[68:])
	return p
}

// Visible reports whether the object-space box b, placed by model, is at
// least partly inside the clip volume of viewProj. A box is rejected only
// when all eight corners lie outside the same clip plane. Inverted boxes
// are always rejected.
func Visible(viewProj, model math.Mat4, b math.AABB) bool {
	if b.IsInverted() {
		return false
	}
	mvp := viewProj.Mul(model)

	var clip [8]math.Vec4
	for i, c := range b.Corners() {
		clip[i] = mvp.MulVec4(math.Vec4{c.X, c.Y, c.Z, 1})
	}
	for axis := 0; axis < 3; axis++ {
		below, above := true, true
		for _, c := range clip {
			if c[axis] >= -c[3] {
				below = false
			}
			if c[axis] <= c[3] {
				above = false
			}
		}
		if below || above {
			return false
		}
	}
	return true
}

// cullKernel is the CPU form of the cull shader.
func cullKernel(b gpu.Bindings, push []byte, groups [3]uint32) {
	p := decodeCullParams(push)
	commands, compact := b[bindCommands], b[bindCompact]
	models, bounds, visible := b[bindModels], b[bindBounds], b[bindVisible]

	n := min(p.MeshCount, groups[0]*cullWorkgroupSize)
	for id := uint32(0); id < n; id++ {
		bo := int(id) * int(boundsSize)
		mo := int(id) * int(modelSize)
		if bo+int(boundsSize) > len(bounds) || mo+int(modelSize) > len(models) {
			return
		}
		box := math.AABB{
			Min: math.Vec3{X: f32(bounds, bo), Y: f32(bounds, bo+4), Z: f32(bounds, bo+8)},
			Max: math.Vec3{X: f32(bounds, bo+16), Y: f32(bounds, bo+20), Z: f32(bounds, bo+24)},
		}
		var model math.Mat4
		for i := range model {
			model[i] = f32(models, mo+i*4)
		}
		if !Visible(p.ViewProj, model, box) {
			continue
		}

		slot := binary.LittleEndian.Uint32(visible)
		binary.LittleEndian.PutUint32(visible, slot+1)
		if p.MaxDraws != 0 && slot >= p.MaxDraws {
			continue
		}
		src := int(id) * IndirectCommandSize
		dst := int(slot) * IndirectCommandSize
		if dst+IndirectCommandSize > len(compact) {
			continue
		}
		copy(compact[dst:dst+IndirectCommandSize], commands[src:src+IndirectCommandSize])
	}
}

func f32(b []byte, off int) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

// CullReference returns the commands a cull pass over records would emit,
// in draw order.
func CullReference(records []MeshRecord, viewProj math.Mat4, maxDraws uint32) []IndirectCommand {
	cmds, _, _ := buildCommands(records)
	var out []IndirectCommand
	for i, r := range records {
		if !Visible(viewProj, r.Model, r.Bounds) {
			continue
		}
		if maxDraws != 0 && uint32(len(out)) >= maxDraws {
			break
		}
		out = append(out, cmds[i])
	}
	return out
}
