package systems

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
)

func vecInDelta(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d of %v", i, got)
	}
}

func TestPackLightsCapsPerKind(t *testing.T) {
	w := scene.NewWorld("lights")
	for i := 0; i < 20; i++ {
		e := w.CreateEntity("point")
		w.SetTransform(e, scene.TRS(mgl32.Vec3{float32(i), 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}))
		w.SetLight(e, scene.PointLight{LightBase: scene.LightBase{Color: mgl32.Vec3{1, 1, 1}, Intensity: 1}, Range: float32(i)})
	}
	w.SetLight(w.CreateEntity("sun"), scene.DirectionalLight{LightBase: scene.LightBase{Color: mgl32.Vec3{1, 1, 1}, Intensity: 3}})

	la := PackLights(w)
	assert.Equal(t, 16, la.Count(scene.LightKindPoint))
	assert.Equal(t, 1, la.Count(scene.LightKindDirectional))
	assert.Equal(t, 0, la.Count(scene.LightKindSpot))

	points := la.Of(scene.LightKindPoint)
	require.Len(t, points, 16)
	// first come, first served
	for i, p := range points {
		assert.Equal(t, float32(i), p.Range)
		vecInDelta(t, mgl32.Vec3{float32(i), 0, 0}, p.Position)
	}
	vecInDelta(t, mgl32.Vec3{3, 3, 3}, la.Of(scene.LightKindDirectional)[0].Color)
}

func TestPackLightsKindFields(t *testing.T) {
	w := scene.NewWorld("kinds")
	// rotate +90 degrees around Y: local +Z points to world +X, local +X to world -Z
	rot := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	at := scene.TRS(mgl32.Vec3{1, 2, 3}, rot, mgl32.Vec3{1, 1, 1})
	base := scene.LightBase{Color: mgl32.Vec3{1, 0.5, 0.25}, Intensity: 2}

	spot := w.CreateEntity("spot")
	w.SetTransform(spot, at)
	w.SetLight(spot, scene.SpotLight{LightBase: base, Range: 10, InnerAngle: 30, OuterAngle: 60})
	rect := w.CreateEntity("rect")
	w.SetTransform(rect, at)
	w.SetLight(rect, scene.RectLight{LightBase: base, Range: 4, Width: 2, Height: 1})
	disk := w.CreateEntity("disk")
	w.SetTransform(disk, at)
	w.SetLight(disk, scene.DiskLight{LightBase: base, Range: 3, Radius: 0.5})

	la := PackLights(w)

	s := la.Of(scene.LightKindSpot)[0]
	vecInDelta(t, mgl32.Vec3{2, 1, 0.5}, s.Color)
	vecInDelta(t, mgl32.Vec3{1, 0, 0}, s.Direction)
	vecInDelta(t, mgl32.Vec3{1, 2, 3}, s.Position)
	assert.Equal(t, float32(10), s.Range)
	assert.InDelta(t, math.Cos(math.Pi/12), s.F0, 1e-6)
	assert.InDelta(t, math.Cos(math.Pi/6), s.F1, 1e-6)

	r := la.Of(scene.LightKindRect)[0]
	vecInDelta(t, mgl32.Vec3{0, 0, -1}, r.Horizontal)
	assert.Equal(t, float32(2), r.F0)
	assert.Equal(t, float32(1), r.F1)

	d := la.Of(scene.LightKindDisk)[0]
	assert.Equal(t, float32(0.5), d.F0)
	assert.Equal(t, float32(3), d.Range)
}

func TestLightArrayMarshal(t *testing.T) {
	var la LightArray
	la.Counts[scene.LightKindPoint] = 1
	la.Lights[scene.LightKindPoint][0] = ShaderLight{
		Color:    mgl32.Vec3{1, 2, 3},
		Range:    4,
		Position: mgl32.Vec3{5, 6, 7},
		F1:       8,
	}

	buf := la.Marshal()
	require.Len(t, buf, LightArraySize)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[4:]))

	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	point := 32 + MaxLightsPerKind*ShaderLightSize
	assert.Equal(t, float32(1), f(point))
	assert.Equal(t, float32(4), f(point+12))
	assert.Equal(t, float32(5), f(point+32))
	assert.Equal(t, float32(8), f(point+44))
}
