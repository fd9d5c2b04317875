package resources

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientImage(t *testing.T, w, h, channels int) *Image {
	t.Helper()
	img, err := NewImage(w, h, channels)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := img.Pixel(x, y)
			for c := range p {
				p[c] = float32(x*(c+1)) + float32(y)*0.5
			}
		}
	}
	return img
}

func TestSampleLinear(t *testing.T) {
	img := gradientImage(t, 3, 2, 1)
	dst := make([]float32, 1)

	img.SampleLinear(0, 0, dst)
	assert.Equal(t, float32(0), dst[0])

	img.SampleLinear(1, 1, dst)
	assert.Equal(t, img.Pixel(2, 1)[0], dst[0])

	img.SampleLinear(0.25, 0, dst)
	assert.InDelta(t, 0.5, dst[0], 1e-6)

	// out of range coordinates clamp to the border
	img.SampleLinear(-3, 7, dst)
	assert.Equal(t, img.Pixel(0, 1)[0], dst[0])
}

func TestEquirectangularUV(t *testing.T) {
	u, v := EquirectangularUV(mgl32.Vec3{1, 0, 0})
	assert.InDelta(t, 0.5, u, 1e-6)
	assert.InDelta(t, 0.5, v, 1e-6)

	u, v = EquirectangularUV(mgl32.Vec3{0, 0, -1})
	assert.InDelta(t, 0.75, u, 1e-6)
	assert.InDelta(t, 0.5, v, 1e-6)

	_, v = EquirectangularUV(mgl32.Vec3{0, 1, 0})
	assert.InDelta(t, 1.0, v, 1e-6)
}

func TestProjectFaceCenterSamplesPanoramaCenter(t *testing.T) {
	src := gradientImage(t, 16, 8, 3)
	cube, err := NewTextureCubeFromEquirectangular("sky", src, ProjectOptions{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, 8, cube.Size)

	want := make([]float32, 3)
	src.SampleLinear(0.5, 0.5, want)
	assert.Equal(t, want, cube.Faces[FacePositiveX].Pixel(4, 4))
}

func TestProjectIndependentOfWorkerCount(t *testing.T) {
	src := gradientImage(t, 32, 16, 4)

	single, err := NewTextureCubeFromEquirectangular("a", src, ProjectOptions{Workers: 1})
	require.NoError(t, err)
	many, err := NewTextureCubeFromEquirectangular("b", src, ProjectOptions{Workers: 5})
	require.NoError(t, err)

	for f := range single.Faces {
		assert.Equal(t, single.Faces[f].Pix, many.Faces[f].Pix, "face %s", CubeFace(f))
	}
}

func TestProjectHalfResolution(t *testing.T) {
	src := gradientImage(t, 32, 16, 4)
	cube, err := NewTextureCubeFromEquirectangular("half", src, ProjectOptions{HalfResolution: true})
	require.NoError(t, err)
	assert.Equal(t, 8, cube.Size)
	for _, face := range cube.Faces {
		assert.Equal(t, 8, face.Width)
		assert.Equal(t, 4, face.Channels)
	}
}

func TestProjectInvalidImage(t *testing.T) {
	_, err := NewTextureCubeFromEquirectangular("empty", &Image{}, ProjectOptions{})
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = NewTextureCubeFromEquirectangular("nil", nil, ProjectOptions{})
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = NewImage(4, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidImage)

	tiny := gradientImage(t, 2, 1, 1)
	_, err = NewTextureCubeFromEquirectangular("tiny", tiny, ProjectOptions{HalfResolution: true})
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestNewTextureCubeRejectsMismatchedFaces(t *testing.T) {
	var faces [6]*Image
	for i := range faces {
		faces[i] = gradientImage(t, 4, 4, 3)
	}
	_, err := NewTextureCube("ok", faces)
	require.NoError(t, err)

	faces[3] = gradientImage(t, 2, 2, 3)
	_, err = NewTextureCube("bad", faces)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestBlackTextureCube(t *testing.T) {
	cube := BlackTextureCube()
	require.NotNil(t, cube)
	assert.Equal(t, 1, cube.Size)
	assert.Equal(t, []float32{0, 0, 0, 1}, cube.Faces[FaceNegativeZ].Pixel(0, 0))
}
