// Package terrain generates procedural heightmap terrain and streams it into
// the indirect mesh table as square chunks.
package terrain

import (
	gomath "math"

	"github.com/Faultbox/strata/internal/engine/indirect"
	"github.com/Faultbox/strata/pkg/math"
)

// ChunkCoord addresses a chunk on the XZ grid. Chunk (0,0) spans
// [0,size) on both axes.
type ChunkCoord struct {
	X, Z int32
}

// chunkIDBit tags mesh ids owned by terrain so they never collide with the
// table's automatic ids in normal use.
const chunkIDBit = 1 << 31

// Chunk coordinate ranges ID can encode. X keeps 15 bits and Z keeps 16.
const (
	MinChunkX = -1 << 14
	MaxChunkX = 1<<14 - 1
	MinChunkZ = -1 << 15
	MaxChunkZ = 1<<15 - 1
)

// Addressable reports whether c lies in the range ID encodes without
// aliasing another chunk.
func (c ChunkCoord) Addressable() bool {
	return c.X >= MinChunkX && c.X <= MaxChunkX && c.Z >= MinChunkZ && c.Z <= MaxChunkZ
}

// ID returns the mesh table id of the chunk. Coordinates that are not
// Addressable alias in-range chunks.
func (c ChunkCoord) ID() uint32 {
	return chunkIDBit | (uint32(c.X)&0x7fff)<<16 | uint32(c.Z)&0xffff
}

// IsChunkID reports whether id was produced by ChunkCoord.ID.
func IsChunkID(id uint32) bool {
	return id&chunkIDBit != 0
}

// CoordFromID inverts ChunkCoord.ID.
func CoordFromID(id uint32) ChunkCoord {
	x := int32(id>>16&0x7fff) << 17 >> 17
	z := int32(int16(id & 0xffff))
	return ChunkCoord{X: x, Z: z}
}

// ChunkAt returns the chunk containing the world position.
func ChunkAt(pos math.Vec3, size float32) ChunkCoord {
	return ChunkCoord{
		X: int32(gomath.Floor(float64(pos.X / size))),
		Z: int32(gomath.Floor(float64(pos.Z / size))),
	}
}

// Origin returns the world position of the chunk's minimum corner.
func (c ChunkCoord) Origin(size float32) math.Vec3 {
	return math.Vec3{X: float32(c.X) * size, Z: float32(c.Z) * size}
}

// Chunk is a built chunk ready for the mesh table. Vertex positions are
// relative to the chunk origin; Model places them in the world.
type Chunk struct {
	Coord    ChunkCoord
	Geometry indirect.Geometry
	Model    math.Mat4
}
