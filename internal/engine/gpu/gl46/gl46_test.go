package gl46

import (
	"testing"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/strata/internal/engine/gpu"
	"github.com/Faultbox/strata/internal/engine/gpu/soft"
)

// These tests cover the translation helpers only; nothing here touches a
// GL context.

func TestCompareFunc(t *testing.T) {
	assert.Equal(t, uint32(gl.LESS), compareFunc(gpu.CompareLess))
	assert.Equal(t, uint32(gl.LEQUAL), compareFunc(gpu.CompareLessEqual))
	assert.Equal(t, uint32(gl.EQUAL), compareFunc(gpu.CompareEqual))
	assert.Equal(t, uint32(gl.ALWAYS), compareFunc(gpu.CompareAlways))
}

func TestBufferTarget(t *testing.T) {
	tests := []struct {
		name  string
		usage gpu.BufferUsage
		want  uint32
	}{
		{"uniform", gpu.UsageUniform | gpu.UsageCopyDst, gl.UNIFORM_BUFFER},
		{"storage", gpu.UsageStorage, gl.SHADER_STORAGE_BUFFER},
		{"both", gpu.UsageUniform | gpu.UsageStorage, gl.SHADER_STORAGE_BUFFER},
		{"indirect", gpu.UsageIndirect | gpu.UsageStorage, gl.SHADER_STORAGE_BUFFER},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &buffer{usage: tt.usage}
			assert.Equal(t, tt.want, b.target())
		})
	}
}

func TestAsBuffer(t *testing.T) {
	live := &buffer{id: 7, label: "live"}
	got, err := asBuffer(live)
	require.NoError(t, err)
	assert.Same(t, live, got)

	_, err = asBuffer(&buffer{label: "gone"})
	assert.ErrorIs(t, err, gpu.ErrDestroyed)

	dev := soft.New(soft.Config{})
	foreign, err := dev.CreateBuffer(gpu.BufferDesc{Label: "soft", Size: 16, Usage: gpu.UsageStorage})
	require.NoError(t, err)
	_, err = asBuffer(foreign)
	assert.Error(t, err)
}
