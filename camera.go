package clouds

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/clouds/gpucore"
)

// Camera is the host camera a frame is rendered for.
type Camera struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat

	// FieldOfView is the vertical field of view in degrees.
	FieldOfView float32
	Aspect      float32
	Near, Far   float32

	// CullingMask lists the layers the camera renders.
	CullingMask LayerMask
}

// DefaultCamera returns a camera at the origin looking down -Z with a 60
// degree field of view and clip planes at 0.1 and 1000.
func DefaultCamera() Camera {
	return Camera{
		Rotation:    mgl32.QuatIdent(),
		FieldOfView: DefaultFieldOfView,
		Aspect:      1,
		Near:        DefaultNear,
		Far:         DefaultFar,
		CullingMask: AllLayers,
	}
}

// Default camera parameters, used for fields the host leaves unset.
const (
	DefaultFieldOfView = 60
	DefaultNear        = 0.1
	DefaultFar         = 1000
)

// Projection returns the OpenGL-style perspective projection.
func (c *Camera) Projection() mgl32.Mat4 {
	aspect := c.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	fov := c.FieldOfView
	if fov <= 0 || fov >= 180 {
		fov = DefaultFieldOfView
	}
	near, far := c.ClipPlanes()
	return mgl32.Perspective(mgl32.DegToRad(fov), aspect, near, far)
}

// ClipPlanes returns Near and Far, falling back to the defaults when
// they do not describe a valid range.
func (c *Camera) ClipPlanes() (near, far float32) {
	if c.Near <= 0 || c.Far <= c.Near {
		return DefaultNear, DefaultFar
	}
	return c.Near, c.Far
}

// CameraToWorld returns the camera's world transform.
func (c *Camera) CameraToWorld() mgl32.Mat4 {
	return mgl32.Translate3D(c.Position[0], c.Position[1], c.Position[2]).Mul4(c.rotation().Mat4())
}

// InvViewProjection maps clip space to world-space view directions. The
// translation is dropped because the clouds sit at infinity.
func (c *Camera) InvViewProjection() mgl32.Mat4 {
	view := c.rotation().Mat4().Transpose()
	return c.Projection().Mul4(view).Inv()
}

func (c *Camera) rotation() mgl32.Quat {
	if c.Rotation.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return c.Rotation.Normalize()
}

// cubeFaceBasis holds, per face, the world directions of the view
// camera's x, y and z axes. Texel (s, t) of face k looks along
// -z + (2s-1)x - (2t-1)y, matching the cube sampling convention.
var cubeFaceBasis = [gpucore.CubeFaces][3]mgl32.Vec3{
	{{0, 0, -1}, {0, 1, 0}, {-1, 0, 0}}, // +X
	{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}},   // -X
	{{1, 0, 0}, {0, 0, -1}, {0, -1, 0}}, // +Y
	{{1, 0, 0}, {0, 0, 1}, {0, 1, 0}},   // -Y
	{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}},  // +Z
	{{-1, 0, 0}, {0, 1, 0}, {0, 0, 1}},  // -Z
}

// FaceCameraToWorld returns the transform of the camera rendering one
// cube face from position.
func FaceCameraToWorld(position mgl32.Vec3, face int) mgl32.Mat4 {
	b := cubeFaceBasis[face]
	return mgl32.Mat4FromCols(
		b[0].Vec4(0),
		b[1].Vec4(0),
		b[2].Vec4(0),
		position.Vec4(1),
	)
}

// FaceProjection is the 90 degree square projection used for cube faces.
func FaceProjection(near, far float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(90), 1, near, far)
}
