package scene

import "github.com/go-gl/mathgl/mgl32"

type LightKind int

const (
	LightKindDirectional LightKind = iota
	LightKindPoint
	LightKindSpot
	LightKindRect
	LightKindDisk

	LightKindCount = 5
)

func (k LightKind) String() string {
	switch k {
	case LightKindDirectional:
		return "directional"
	case LightKindPoint:
		return "point"
	case LightKindSpot:
		return "spot"
	case LightKindRect:
		return "rect"
	case LightKindDisk:
		return "disk"
	}
	return "unknown"
}

// Light is one of DirectionalLight, PointLight, SpotLight, RectLight or
// DiskLight. Each variant carries only the fields its kind uses.
type Light interface {
	Kind() LightKind
	Base() LightBase
}

type LightBase struct {
	Color     mgl32.Vec3
	Intensity float32
}

func (b LightBase) Base() LightBase {
	return b
}

// Radiance is the color scaled by the intensity.
func (b LightBase) Radiance() mgl32.Vec3 {
	return b.Color.Mul(b.Intensity)
}

type DirectionalLight struct {
	LightBase
}

func (DirectionalLight) Kind() LightKind { return LightKindDirectional }

type PointLight struct {
	LightBase
	Range float32
}

func (PointLight) Kind() LightKind { return LightKindPoint }

// SpotLight angles are full cone angles in degrees.
type SpotLight struct {
	LightBase
	Range      float32
	InnerAngle float32
	OuterAngle float32
}

func (SpotLight) Kind() LightKind { return LightKindSpot }

type RectLight struct {
	LightBase
	Range  float32
	Width  float32
	Height float32
}

func (RectLight) Kind() LightKind { return LightKindRect }

type DiskLight struct {
	LightBase
	Range  float32
	Radius float32
}

func (DiskLight) Kind() LightKind { return LightKindDisk }
