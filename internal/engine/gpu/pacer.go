package gpu

import (
	"fmt"
	"time"
)

// FramesInFlight is the number of frames the CPU may run ahead of the GPU.
const FramesInFlight = 2

// FramePacer bounds how far the CPU runs ahead of the GPU. Each frame slot
// carries the fence inserted at the end of the frame that last used it;
// Begin waits on that fence before the slot is reused.
type FramePacer struct {
	dev     Device
	slots   []Fence
	frame   uint64
	timeout time.Duration
}

// NewFramePacer returns a pacer with n frame slots. n < 1 selects FramesInFlight.
func NewFramePacer(dev Device, n int) *FramePacer {
	if n < 1 {
		n = FramesInFlight
	}
	return &FramePacer{
		dev:     dev,
		slots:   make([]Fence, n),
		timeout: time.Second,
	}
}

// Slot returns the frame slot of the current frame.
func (p *FramePacer) Slot() int {
	return int(p.frame % uint64(len(p.slots)))
}

// Frame returns the number of frames ended so far.
func (p *FramePacer) Frame() uint64 {
	return p.frame
}

// Begin waits until the current slot's previous frame has retired.
func (p *FramePacer) Begin() error {
	f := p.slots[p.Slot()]
	if f == nil {
		return nil
	}
	if !f.Wait(p.timeout) {
		return fmt.Errorf("frame %d: %w", p.frame, ErrFenceTimeout)
	}
	f.Destroy()
	p.slots[p.Slot()] = nil
	return nil
}

// End fences the work submitted for the current frame and advances.
func (p *FramePacer) End() error {
	f, err := p.dev.InsertFence()
	if err != nil {
		return fmt.Errorf("frame %d: %w", p.frame, err)
	}
	p.slots[p.Slot()] = f
	p.frame++
	return nil
}

// InFlight returns the number of frames whose fence has not yet signaled.
func (p *FramePacer) InFlight() int {
	n := 0
	for _, f := range p.slots {
		if f != nil && !f.Signaled() {
			n++
		}
	}
	return n
}

// Close waits for all outstanding frames and releases their fences.
func (p *FramePacer) Close() {
	for i, f := range p.slots {
		if f != nil {
			f.Wait(p.timeout)
			f.Destroy()
			p.slots[i] = nil
		}
	}
}
