package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	amath "github.com/spaghettifunk/anima-rendergraph/engine/math"
)

/**
 * @brief A perspective camera. The view matrix is rebuilt lazily
 * when position or rotation changed.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/** @brief The rotation of this camera using Euler angles (pitch, yaw, roll) in radians. */
	EulerRotation mgl32.Vec3
	/** @brief Vertical field of view in degrees. */
	FieldOfView float32
	Near        float32
	Far         float32

	isDirty    bool
	viewMatrix mgl32.Mat4
}

/** @brief The name of the default camera. */
const DefaultCameraName string = "default"

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.FieldOfView = 60
	c.Near = 0.1
	c.Far = 1000
	c.isDirty = false
	c.viewMatrix = mgl32.Ident4()
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.isDirty = true
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.isDirty = true
}

// LocalToWorld places the camera in the world: translation then XYZ rotation.
func (c *Camera) LocalToWorld() mgl32.Mat4 {
	rotation := mgl32.AnglesToQuat(c.EulerRotation.X(), c.EulerRotation.Y(), c.EulerRotation.Z(), mgl32.XYZ).Mat4()
	return mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z()).Mul4(rotation)
}

func (c *Camera) View() mgl32.Mat4 {
	if c.isDirty {
		c.viewMatrix = c.LocalToWorld().Inv()
		c.isDirty = false
	}
	return c.viewMatrix
}

func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(amath.DegToRad(c.FieldOfView), aspect, c.Near, c.Far)
}

// Forward is the local +Z axis in world space.
func (c *Camera) Forward() mgl32.Vec3 {
	return amath.TransformDirection(c.LocalToWorld(), mgl32.Vec3{0, 0, 1})
}

func (c *Camera) Right() mgl32.Vec3 {
	return amath.TransformDirection(c.LocalToWorld(), mgl32.Vec3{1, 0, 0})
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.Position.Add(c.Forward().Mul(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.Position.Add(c.Right().Mul(amount)))
}

func (c *Camera) MoveUp(amount float32) {
	c.SetPosition(c.Position.Add(mgl32.Vec3{0, amount, 0}))
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := float32(1.55334306) // 89 degrees
	c.EulerRotation[0] = amath.Clamp(c.EulerRotation[0], -limit, limit)

	c.isDirty = true
}
