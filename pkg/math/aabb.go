package math

import "math"

// AABB is an axis-aligned bounding box.
//
// A box whose Min.X is greater than its Max.X is inverted. Inverted boxes
// are the "never visible" marker: culling rejects them unconditionally.
type AABB struct {
	Min, Max Vec3
}

// EmptyAABB returns an inverted box that any Extend call will replace.
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// InvertedAABB returns the finite sentinel written for erased meshes.
func InvertedAABB() AABB {
	return AABB{
		Min: Vec3{1, 1, 1},
		Max: Vec3{-1, -1, -1},
	}
}

// IsInverted reports whether the box is the never-visible sentinel.
func (b AABB) IsInverted() bool {
	return b.Min.X > b.Max.X
}

// Extend grows the box to contain p.
func (b AABB) Extend(p Vec3) AABB {
	return AABB{
		Min: Vec3{min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z)},
		Max: Vec3{max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z)},
	}
}

// Union returns the smallest box containing both boxes.
// Inverted operands are ignored.
func (b AABB) Union(o AABB) AABB {
	if o.IsInverted() {
		return b
	}
	if b.IsInverted() {
		return o
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Center returns the midpoint of the box.
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the box extents along each axis.
func (b AABB) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Corners returns the eight corners of the box.
func (b AABB) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// Transform returns the world-space box enclosing b after transformation by m.
func (b AABB) Transform(m Mat4) AABB {
	if b.IsInverted() {
		return b
	}
	out := EmptyAABB()
	for _, c := range b.Corners() {
		out = out.Extend(m.TransformVec3(c))
	}
	return out
}
