package indirect

import (
	"encoding/binary"
	"fmt"

	"github.com/Faultbox/strata/internal/engine/gpu"
)

// maxReadbacks bounds the staging buffers used for visible-count readback.
const maxReadbacks = gpu.FramesInFlight + 1

func decodeCount(b [4]byte) uint32 {
	return binary.LittleEndian.Uint32(b[:])
}

// RequestVisibleCount copies the visible counter of the last cull pass
// into a staging buffer and fences the copy. The result is picked up by
// PollVisibleCount once the fence signals, without stalling. Requests are
// dropped while every staging buffer is in flight.
func (r *Renderer) RequestVisibleCount() error {
	if !r.culled || r.cmds.visible == nil {
		return nil
	}
	buf, err := r.stagingBuffer()
	if err != nil || buf == nil {
		return err
	}

	visible := r.cmds.visible
	if err := r.dev.Submit(func(rec gpu.Recorder) {
		rec.Barrier(gpu.AccessShaderWrite, gpu.AccessTransferRead)
		rec.CopyBuffer(visible, 0, buf, 0, 4)
		rec.Barrier(gpu.AccessTransferWrite, gpu.AccessHostRead)
	}); err != nil {
		r.free = append(r.free, buf)
		return fmt.Errorf("visible count readback: %w", err)
	}
	f, err := r.dev.InsertFence()
	if err != nil {
		r.free = append(r.free, buf)
		return fmt.Errorf("visible count readback: %w", err)
	}
	r.readbacks.Push(f, buf)
	return nil
}

// PollVisibleCount returns the newest completed visible count, if any
// readback finished since the previous poll.
func (r *Renderer) PollVisibleCount() (uint32, bool) {
	got := false
	r.readbacks.Poll(func(buf gpu.Buffer) {
		var b [4]byte
		if err := r.dev.ReadBuffer(buf, 0, b[:]); err == nil {
			r.lastCount = decodeCount(b)
			got = true
		}
		r.free = append(r.free, buf)
	})
	return r.lastCount, got
}

// stagingBuffer returns an idle staging buffer, or nil when all are busy.
func (r *Renderer) stagingBuffer() (gpu.Buffer, error) {
	if n := len(r.free); n > 0 {
		buf := r.free[n-1]
		r.free = r.free[:n-1]
		return buf, nil
	}
	if len(r.staging) >= maxReadbacks {
		return nil, nil
	}
	buf, err := r.dev.CreateBuffer(gpu.BufferDesc{
		Label: fmt.Sprintf("indirect.readback.%d", len(r.staging)),
		Size:  4,
		Usage: gpu.UsageReadback | gpu.UsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("allocating readback buffer: %w", err)
	}
	r.reg.Track(buf, buf.Label())
	r.staging = append(r.staging, buf)
	return buf, nil
}
