package math

import (
	m "math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief An approximate representation of PI multiplied by 2. */
	K_PI_2 float32 = 2.0 * K_PI
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief The smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

// HalfAngleCos is cos(radians(angle)/2), the form cone angles take on the GPU.
func HalfAngleCos(degrees float32) float32 {
	return float32(m.Cos(float64(DegToRad(degrees)) / 2))
}

// TransformPoint applies the full affine transform, origin included.
func TransformPoint(t mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	return t.Mul4x1(p.Vec4(1)).Vec3()
}

// TransformDirection ignores translation and normalizes the result. A
// degenerate result stays zero instead of turning into NaNs.
func TransformDirection(t mgl32.Mat4, d mgl32.Vec3) mgl32.Vec3 {
	v := t.Mul4x1(d.Vec4(0)).Vec3()
	if v.Len() < K_FLOAT_EPSILON {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}

// AlignUp rounds n up to the next multiple of align, which must be a power of two.
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
