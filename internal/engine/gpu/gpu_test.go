package gpu_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/gpu/soft"
)

type countingDestroyer struct{ destroyed int }

func (c *countingDestroyer) Destroy() { c.destroyed++ }

func TestRegistryDefersRelease(t *testing.T) {
	r := gpu.NewRegistry(nil)
	a, b := &countingDestroyer{}, &countingDestroyer{}
	r.Track(a, "vertices")
	r.Track(b, "indices")

	r.Release(a)
	r.Release(&countingDestroyer{})
	assert.Equal(t, 0, a.destroyed, "release must not destroy immediately")
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, 1, r.Live())

	assert.Equal(t, 1, r.Collect())
	assert.Equal(t, 1, a.destroyed)

	r.Close()
	assert.Equal(t, 1, b.destroyed)
	assert.Equal(t, 0, r.Live())
}

func TestRegistryWithDevice(t *testing.T) {
	dev := soft.New(soft.Config{})
	r := gpu.NewRegistry(nil)

	for _, label := range []string{"a", "b", "c"} {
		buf, err := dev.CreateBuffer(gpu.BufferDesc{Label: label, Size: 16})
		require.NoError(t, err)
		r.Track(buf, label)
	}
	assert.Equal(t, 3, dev.LiveBuffers())

	r.Close()
	assert.Equal(t, 0, dev.LiveBuffers())
}

func TestCompletionQueueOrder(t *testing.T) {
	dev := soft.New(soft.Config{FenceLatency: 2})
	var q gpu.CompletionQueue[int]

	for i := 0; i < 3; i++ {
		require.NoError(t, dev.Submit(func(gpu.Recorder) {}))
		f, err := dev.InsertFence()
		require.NoError(t, err)
		q.Push(f, i)
	}

	var got []int
	collect := func(v int) { got = append(got, v) }

	// Three submissions with a latency of two: only the first has retired.
	assert.Equal(t, 1, q.Poll(collect))
	assert.Equal(t, []int{0}, got)
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Drain(time.Second, collect))
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 0, q.Len())
}

func TestCompletionQueueDrainTimeout(t *testing.T) {
	dev := soft.New(soft.Config{StallFences: true})
	var q gpu.CompletionQueue[int]

	for i := 0; i < 2; i++ {
		require.NoError(t, dev.Submit(func(gpu.Recorder) {}))
		f, err := dev.InsertFence()
		require.NoError(t, err)
		q.Push(f, i)
	}

	var got []int
	collect := func(v int) { got = append(got, v) }
	require.ErrorIs(t, q.Drain(time.Millisecond, collect), gpu.ErrFenceTimeout)
	assert.Empty(t, got)
	assert.Equal(t, 2, q.Len(), "unsignaled entries stay queued")
	assert.Equal(t, 2, dev.LiveFences())

	q.Discard(collect)
	assert.Equal(t, []int{0, 1}, got)
	assert.Zero(t, q.Len())
	assert.Zero(t, dev.LiveFences())
}

func TestFramePacer(t *testing.T) {
	dev := soft.New(soft.Config{FenceLatency: 5})
	p := gpu.NewFramePacer(dev, 0)

	for frame := 0; frame < 4; frame++ {
		require.NoError(t, p.Begin())
		require.NoError(t, dev.Submit(func(gpu.Recorder) {}))
		require.NoError(t, p.End())
		assert.LessOrEqual(t, p.InFlight(), gpu.FramesInFlight)
	}
	assert.Equal(t, uint64(4), p.Frame())
	assert.Equal(t, 0, p.Slot())

	p.Close()
	assert.Equal(t, 0, p.InFlight())
}
