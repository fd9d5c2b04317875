package systems

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
)

// Frame constant buffer layout: camera block, light block, then one block per
// drawn entity, each aligned to ConstantBufferAlignment.
const (
	ConstantBufferAlignment = 256

	CameraConstantsSize = 432
	ObjectConstantsSize = 128

	CameraConstantsOffset = 0
	LightArrayOffset      = (CameraConstantsSize + ConstantBufferAlignment - 1) &^ (ConstantBufferAlignment - 1)
	ObjectConstantsBase   = LightArrayOffset + (LightArraySize+ConstantBufferAlignment-1)&^(ConstantBufferAlignment-1)
	ObjectConstantsStride = (ObjectConstantsSize + ConstantBufferAlignment - 1) &^ (ConstantBufferAlignment - 1)
)

type CameraConstants struct {
	View                mgl32.Mat4
	InvView             mgl32.Mat4
	Proj                mgl32.Mat4
	InvProj             mgl32.Mat4
	ViewProj            mgl32.Mat4
	InvViewProj         mgl32.Mat4
	EyePosition         mgl32.Vec3
	_                   float32
	RenderTargetSize    mgl32.Vec2
	InvRenderTargetSize mgl32.Vec2
	NearZ               float32
	FarZ                float32
	TotalTime           float32
	DeltaTime           float32
}

func NewCameraConstants(camera *scene.Camera, width, height uint32, total, delta time.Duration) CameraConstants {
	aspect := float32(width) / float32(max(height, 1))
	view := camera.View()
	proj := camera.Projection(aspect)
	viewProj := proj.Mul4(view)
	return CameraConstants{
		View:                view,
		InvView:             view.Inv(),
		Proj:                proj,
		InvProj:             proj.Inv(),
		ViewProj:            viewProj,
		InvViewProj:         viewProj.Inv(),
		EyePosition:         camera.Position,
		RenderTargetSize:    mgl32.Vec2{float32(width), float32(height)},
		InvRenderTargetSize: mgl32.Vec2{1 / float32(max(width, 1)), 1 / float32(max(height, 1))},
		NearZ:               camera.Near,
		FarZ:                camera.Far,
		TotalTime:           float32(total.Seconds()),
		DeltaTime:           float32(delta.Seconds()),
	}
}

type ObjectConstants struct {
	World    mgl32.Mat4
	InvWorld mgl32.Mat4
}

func NewObjectConstants(t scene.Transform) ObjectConstants {
	return ObjectConstants{World: t.LocalToWorld, InvWorld: t.WorldToLocal}
}

func marshalLE(v any, size int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	// fixed size structs of float32 cannot fail to encode
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func (c *CameraConstants) Marshal() []byte {
	return marshalLE(c, CameraConstantsSize)
}

func (o *ObjectConstants) Marshal() []byte {
	return marshalLE(o, ObjectConstantsSize)
}

// FrameConstants serializes the whole constant buffer of a frame.
func FrameConstants(camera CameraConstants, rc *RenderContext) []byte {
	out := make([]byte, rc.ConstantBufferSize())
	copy(out[CameraConstantsOffset:], camera.Marshal())
	copy(out[LightArrayOffset:], rc.Lights.Marshal())
	for _, e := range rc.Entities() {
		c, _ := rc.Constants(e)
		oc := NewObjectConstants(c.Transform)
		copy(out[c.Offset:], oc.Marshal())
	}
	return out
}
