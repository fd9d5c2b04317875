package systems

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	amath "github.com/spaghettifunk/anima-rendergraph/engine/math"
	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
)

// MaxLightsPerKind is the capacity of each per-kind light array on the GPU.
const MaxLightsPerKind = 16

const (
	// size of one packed ShaderLight
	ShaderLightSize = 64
	// counts (5 x uint32) padded to a 16 byte boundary, then 16 lights of each kind
	LightArraySize = 8*4 + scene.LightKindCount*MaxLightsPerKind*ShaderLightSize
)

// ShaderLight is the GPU layout shared by every light kind. F0..F2 are kind
// specific: spot inner/outer half-angle cosines, rect width/height, disk radius.
type ShaderLight struct {
	Color      mgl32.Vec3
	Range      float32
	Direction  mgl32.Vec3
	F0         float32
	Position   mgl32.Vec3
	F1         float32
	Horizontal mgl32.Vec3
	F2         float32
}

type LightArray struct {
	Counts [scene.LightKindCount]uint32
	Lights [scene.LightKindCount][MaxLightsPerKind]ShaderLight
}

func (la *LightArray) Count(kind scene.LightKind) int {
	return int(la.Counts[kind])
}

// Of returns the packed lights of kind.
func (la *LightArray) Of(kind scene.LightKind) []ShaderLight {
	return la.Lights[kind][:la.Counts[kind]]
}

// Marshal packs the array little-endian in the layout the shaders expect.
func (la *LightArray) Marshal() []byte {
	buf := make([]byte, 0, LightArraySize)
	for _, c := range la.Counts {
		buf = binary.LittleEndian.AppendUint32(buf, c)
	}
	for i := len(la.Counts); i < 8; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, 0)
	}
	appendVec := func(v mgl32.Vec3, w float32) {
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(w))
	}
	for kind := range la.Lights {
		for _, l := range la.Lights[kind] {
			appendVec(l.Color, l.Range)
			appendVec(l.Direction, l.F0)
			appendVec(l.Position, l.F1)
			appendVec(l.Horizontal, l.F2)
		}
	}
	return buf
}

// PackLights gathers the lights of every partition. The first pass counts
// lights per kind, capped at MaxLightsPerKind; the second fills the arrays in
// discovery order and never visits lights past the cap.
func PackLights(partitions ...scene.Query) LightArray {
	var la LightArray
	var capped, total [scene.LightKindCount]int
	for _, q := range partitions {
		q.EachLight(func(le scene.LightEmitter) {
			k := le.Light.Kind()
			total[k]++
			if capped[k] < MaxLightsPerKind {
				capped[k]++
			}
		})
	}
	for k := range total {
		if total[k] > capped[k] {
			core.LogDebug("%d %s lights exceed the capacity of %d, dropping %d", total[k], scene.LightKind(k), MaxLightsPerKind, total[k]-capped[k])
		}
	}

	for _, q := range partitions {
		q.EachLight(func(le scene.LightEmitter) {
			k := le.Light.Kind()
			if la.Counts[k] >= uint32(capped[k]) {
				return
			}
			la.Lights[k][la.Counts[k]] = packLight(le)
			la.Counts[k]++
		})
	}
	return la
}

func packLight(le scene.LightEmitter) ShaderLight {
	l2w := le.Transform.LocalToWorld
	sl := ShaderLight{
		Color:     le.Light.Base().Radiance(),
		Direction: amath.TransformDirection(l2w, mgl32.Vec3{0, 0, 1}),
		Position:  amath.TransformPoint(l2w, mgl32.Vec3{}),
	}
	switch l := le.Light.(type) {
	case scene.PointLight:
		sl.Range = l.Range
	case scene.SpotLight:
		sl.Range = l.Range
		sl.F0 = amath.HalfAngleCos(l.InnerAngle)
		sl.F1 = amath.HalfAngleCos(l.OuterAngle)
	case scene.RectLight:
		sl.Range = l.Range
		sl.Horizontal = amath.TransformDirection(l2w, mgl32.Vec3{1, 0, 0})
		sl.F0 = l.Width
		sl.F1 = l.Height
	case scene.DiskLight:
		sl.Range = l.Range
		sl.F0 = l.Radius
	}
	return sl
}
