// Package camera provides camera implementations for 3D rendering.
package camera

import (
	gomath "math"

	"github.com/Faultbox/strata/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	// Center point to orbit around
	CenterX, CenterY, CenterZ float32

	// Spherical coordinates
	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32

	// Projection
	FovY float32 // Vertical field of view (radians)
	Near float32
	Far  float32

	// OrbitSpeed turns the camera by this many radians per second in Update.
	OrbitSpeed float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        120.0,
		RotationX:       0.6,
		RotationY:       0.0,
		MinDistance:     5.0,
		MaxDistance:     2000.0,
		MinPitch:        0.05,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		FovY:            gomath.Pi / 3,
		Near:            0.5,
		Far:             2000.0,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	x := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Sin(float64(c.RotationY)))
	y := c.Distance * float32(gomath.Sin(float64(c.RotationX)))
	z := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Cos(float64(c.RotationY)))

	return math.Vec3{
		X: c.CenterX + x,
		Y: c.CenterY + y,
		Z: c.CenterZ + z,
	}
}

// Center returns the orbit center.
func (c *OrbitCamera) Center() math.Vec3 {
	return math.Vec3{X: c.CenterX, Y: c.CenterY, Z: c.CenterZ}
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	up := math.Vec3{X: 0, Y: 1, Z: 0}
	return math.LookAt(c.Position(), c.Center(), up)
}

// ProjectionMatrix returns the perspective projection for the aspect ratio.
func (c *OrbitCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return math.Perspective(c.FovY, aspect, c.Near, c.Far)
}

// ViewProjection returns projection * view, the matrix the cull pass uses.
func (c *OrbitCamera) ViewProjection(aspect float32) math.Mat4 {
	return c.ProjectionMatrix(aspect).Mul(c.ViewMatrix())
}

// Frustum returns the world-space view frustum.
func (c *OrbitCamera) Frustum(aspect float32) math.Frustum {
	return math.FrustumFromMatrix(c.ViewProjection(aspect))
}

// Update advances the automatic orbit by dt seconds.
func (c *OrbitCamera) Update(dt float32) {
	if c.OrbitSpeed == 0 {
		return
	}
	c.RotationY += c.OrbitSpeed * dt
	if c.RotationY > 2*gomath.Pi {
		c.RotationY -= 2 * gomath.Pi
	}
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity
	c.RotationX = min(max(c.RotationX, c.MinPitch), c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)
}

// HandleMovement pans the camera center point based on keyboard input.
func (c *OrbitCamera) HandleMovement(forward, right, up float32) {
	// Speed scales with distance for consistent feel
	speed := c.Distance * 0.01

	dirX := float32(gomath.Sin(float64(c.RotationY)))
	dirZ := float32(gomath.Cos(float64(c.RotationY)))

	rightX := float32(gomath.Cos(float64(c.RotationY)))
	rightZ := float32(-gomath.Sin(float64(c.RotationY)))

	// Negate forward so W moves "into" the scene
	c.CenterX += (-dirX*forward + rightX*right) * speed
	c.CenterZ += (-dirZ*forward + rightZ*right) * speed
	c.CenterY += up * speed
}

// SetCenter sets the camera's center point.
func (c *OrbitCamera) SetCenter(x, y, z float32) {
	c.CenterX = x
	c.CenterY = y
	c.CenterZ = z
}

// FitToBounds centers the camera on b and backs off far enough to see it.
func (c *OrbitCamera) FitToBounds(b math.AABB) {
	if b.IsInverted() {
		return
	}
	center := b.Center()
	c.SetCenter(center.X, center.Y, center.Z)

	size := b.Size()
	radius := 0.5 * size.Length()
	c.Distance = 1.1 * radius / float32(gomath.Sin(float64(c.FovY)/2))
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)

	c.RotationX = 0.6 // Look down at ~35 degrees
	c.RotationY = 0.0
}
