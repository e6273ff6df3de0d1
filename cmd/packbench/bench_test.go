package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/internal/logger"
)

func TestChurn(t *testing.T) {
	rep, err := runChurn(churnOptions{
		Steps:        300,
		Meshes:       40,
		RebuildEvery: 7,
		Resolution:   4,
		Headroom:     0.25,
		Seed:         3,
	}, logger.Nop())
	require.NoError(t, err)

	assert.Zero(t, rep.Mismatches)
	assert.Zero(t, rep.Violations)
	assert.Equal(t, 300, rep.Adds+rep.Replaces+rep.Removes)
	assert.Equal(t, rep.Adds-rep.Removes, rep.Live)
	assert.Equal(t, rep.Live, rep.Stats.Meshes)
	assert.Positive(t, rep.Rebuilds)
	assert.LessOrEqual(t, rep.Reallocations, rep.Rebuilds)
}

func TestChurnRejectsBadOptions(t *testing.T) {
	_, err := runChurn(churnOptions{Steps: 1, Meshes: 0, RebuildEvery: 1, Resolution: 1}, logger.Nop())
	assert.Error(t, err)
}

func TestCapacityIsMonotonic(t *testing.T) {
	rows, err := runCapacity(capacityOptions{Meshes: 30, Resolution: 4, Headroom: 0.5, Seed: 1}, logger.Nop())
	require.NoError(t, err)
	require.Len(t, rows, 30)

	assert.True(t, rows[0].Reallocated, "first rebuild allocates")
	grows := 0
	for i, r := range rows {
		assert.Equal(t, i+1, r.Meshes)
		assert.Equal(t, (i+1)*25, r.Vertices)
		assert.GreaterOrEqual(t, r.VertexCapacity, r.Vertices)
		assert.GreaterOrEqual(t, r.IndexCapacity, r.Indices)
		assert.GreaterOrEqual(t, r.MeshCapacity, r.Meshes)
		if i > 0 {
			prev := rows[i-1]
			assert.GreaterOrEqual(t, r.VertexCapacity, prev.VertexCapacity)
			assert.GreaterOrEqual(t, r.IndexCapacity, prev.IndexCapacity)
			assert.GreaterOrEqual(t, r.MeshCapacity, prev.MeshCapacity)
		}
		if r.Reallocated {
			grows++
		}
	}
	assert.Less(t, grows, len(rows)/2, "headroom amortizes growth")
}

func TestCullMatchesReference(t *testing.T) {
	rows, err := runCull(cullOptions{Grid: 8, Resolution: 2, Angles: 6, Seed: 2}, logger.Nop())
	require.NoError(t, err)
	require.Len(t, rows, 6)
	for _, r := range rows {
		assert.True(t, r.Match, "yaw %.2f", r.Yaw)
		assert.Equal(t, r.Reference, r.GPU, "yaw %.2f", r.Yaw)
		assert.Positive(t, r.GPU)
	}
}

func TestCullWithMaxDraws(t *testing.T) {
	rows, err := runCull(cullOptions{Grid: 6, Resolution: 2, Angles: 2, MaxDraws: 3, Seed: 2}, logger.Nop())
	require.NoError(t, err)
	for _, r := range rows {
		assert.True(t, r.Match)
		assert.Equal(t, r.Reference, r.GPU, "the counter still counts every visible mesh")
	}
}

func TestSameDraws(t *testing.T) {
	a := []indirect.IndirectCommand{{FirstInstance: 2}, {FirstInstance: 0}}
	b := []indirect.IndirectCommand{{FirstInstance: 0}, {FirstInstance: 2}}
	assert.True(t, sameDraws(a, b))
	assert.False(t, sameDraws(a, b[:1]))
	assert.False(t, sameDraws(a, []indirect.IndirectCommand{{FirstInstance: 0}, {FirstInstance: 1}}))
}
