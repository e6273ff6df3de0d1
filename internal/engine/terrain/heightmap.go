package terrain

import (
	gomath "math"

	"github.com/Faultbox/strata/pkg/math"
)

// Heightmap is an unbounded fractal value-noise height field. Heights are
// in [-HeightScale, HeightScale]. It is immutable and safe for concurrent use.
type Heightmap struct {
	Seed        int64
	HeightScale float32
	// Frequency is the lattice density of the first octave, in cells per
	// world unit.
	Frequency  float32
	Octaves    int
	Lacunarity float32
	Gain       float32
}

// NewHeightmap returns a heightmap with four octaves at 1/64 base frequency.
func NewHeightmap(seed int64, heightScale float32) *Heightmap {
	return &Heightmap{
		Seed:        seed,
		HeightScale: heightScale,
		Frequency:   1.0 / 64,
		Octaves:     4,
		Lacunarity:  2,
		Gain:        0.5,
	}
}

// Height returns the terrain height at a world position.
func (h *Heightmap) Height(x, z float32) float32 {
	freq := h.Frequency
	amp := float32(1)
	var sum, norm float32
	for o := range h.Octaves {
		sum += amp * valueNoise(h.Seed+int64(o)*7919, x*freq, z*freq)
		norm += amp
		freq *= h.Lacunarity
		amp *= h.Gain
	}
	if norm == 0 {
		return 0
	}
	return (sum/norm*2 - 1) * h.HeightScale
}

// Normal returns the unit surface normal at a world position using central
// differences.
func (h *Heightmap) Normal(x, z float32) math.Vec3 {
	dx, dz := h.Slope(x, z)
	return math.Vec3{X: -dx, Y: 1, Z: -dz}.Normalize()
}

// Slope returns the height derivatives along X and Z.
func (h *Heightmap) Slope(x, z float32) (float32, float32) {
	const eps = 0.5
	dx := (h.Height(x+eps, z) - h.Height(x-eps, z)) / (2 * eps)
	dz := (h.Height(x, z+eps) - h.Height(x, z-eps)) / (2 * eps)
	return dx, dz
}

// valueNoise returns smoothly interpolated lattice noise in [0,1).
func valueNoise(seed int64, x, z float32) float32 {
	fx := gomath.Floor(float64(x))
	fz := gomath.Floor(float64(z))
	ix, iz := int32(fx), int32(fz)
	tx := smoothstep(x - float32(fx))
	tz := smoothstep(z - float32(fz))

	v00 := lattice(seed, ix, iz)
	v10 := lattice(seed, ix+1, iz)
	v01 := lattice(seed, ix, iz+1)
	v11 := lattice(seed, ix+1, iz+1)

	south := v00 + (v10-v00)*tx
	north := v01 + (v11-v01)*tx
	return south + (north-south)*tz
}

func smoothstep(t float32) float32 {
	return t * t * (3 - 2*t)
}

// lattice hashes a grid point to [0,1).
func lattice(seed int64, x, z int32) float32 {
	h := uint64(seed) ^ uint64(uint32(x))*0x9e3779b97f4a7c15 ^ uint64(uint32(z))*0xc2b2ae3d27d4eb4f
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return float32(h>>40) / (1 << 24)
}
