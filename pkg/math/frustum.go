package math

// Plane is n·p + D = 0 with the normal pointing into the kept half-space.
type Plane struct {
	Normal Vec3
	D      float32
}

// Distance returns the signed distance from p to the plane.
// It is only a true distance when the plane is normalized.
func (p Plane) Distance(pt Vec3) float32 {
	return p.Normal.Dot(pt) + p.D
}

func (p Plane) normalize() Plane {
	l := p.Normal.Length()
	if l == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Scale(1 / l), D: p.D / l}
}

// Frustum planes, in the order left, right, bottom, top, near, far.
type Frustum [6]Plane

// FrustumFromMatrix extracts the clip planes of a view-projection matrix
// (Gribb/Hartmann). With a model-view-projection matrix the planes are in
// object space.
func FrustumFromMatrix(m Mat4) Frustum {
	row := func(i int) (Vec3, float32) {
		return Vec3{m[i], m[4+i], m[8+i]}, m[12+i]
	}
	r0, w0 := row(0)
	r1, w1 := row(1)
	r2, w2 := row(2)
	r3, w3 := row(3)

	f := Frustum{
		{Normal: r3.Add(r0), D: w3 + w0},
		{Normal: r3.Sub(r0), D: w3 - w0},
		{Normal: r3.Add(r1), D: w3 + w1},
		{Normal: r3.Sub(r1), D: w3 - w1},
		{Normal: r3.Add(r2), D: w3 + w2},
		{Normal: r3.Sub(r2), D: w3 - w2},
	}
	for i := range f {
		f[i] = f[i].normalize()
	}
	return f
}

// ContainsPoint reports whether p lies inside every plane.
func (f Frustum) ContainsPoint(p Vec3) bool {
	for _, pl := range f {
		if pl.Distance(p) < 0 {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether any part of b may be inside the frustum.
// It tests the corner furthest along each plane normal, so it can report
// false positives near frustum edges but never false negatives.
// Inverted boxes never intersect.
func (f Frustum) IntersectsAABB(b AABB) bool {
	if b.IsInverted() {
		return false
	}
	for _, pl := range f {
		p := b.Min
		if pl.Normal.X >= 0 {
			p.X = b.Max.X
		}
		if pl.Normal.Y >= 0 {
			p.Y = b.Max.Y
		}
		if pl.Normal.Z >= 0 {
			p.Z = b.Max.Z
		}
		if pl.Distance(p) < 0 {
			return false
		}
	}
	return true
}
