package views

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

func readFloat(b []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[offset:]))
}

func TestIBLConstants(t *testing.T) {
	data := IBLConstants()
	require.Len(t, data, IBLConstantsSize)

	for f := resources.FacePositiveX; f <= resources.FaceNegativeZ; f++ {
		origin, right, up := resources.FaceBasis(f)
		base := int(f) * IBLConstantsStride
		// first corner is the face origin, the last one is origin + right + up
		for i := 0; i < 3; i++ {
			assert.Equal(t, origin[i], readFloat(data, base+4*i), "face %s", f)
			assert.Equal(t, origin.Add(right).Add(up)[i], readFloat(data, base+48+4*i), "face %s", f)
		}
		assert.Equal(t, float32(1), readFloat(data, base+12))
	}

	tests := []struct {
		mip        int
		roughness  float32
		resolution float32
	}{
		{0, 0, 512},
		{1, 0.25, 256},
		{2, 0.5, 128},
		{4, 1, 32},
	}
	for _, tt := range tests {
		base := (6 + tt.mip) * IBLConstantsStride
		assert.Equal(t, tt.roughness, readFloat(data, base), "mip %d", tt.mip)
		assert.Equal(t, tt.resolution, readFloat(data, base+4), "mip %d", tt.mip)
	}
}

func TestIBLViews(t *testing.T) {
	irradiance := IrradianceViews()
	require.Len(t, irradiance, 6)
	assert.Equal(t, framegraph.RenderTargetSliceView(ColorFormat, 0, 5), irradiance[5])

	prefilter := PreFilterViews()
	require.Len(t, prefilter, 6*PreFilterMapMipLevels)
	assert.Equal(t, framegraph.RenderTargetSliceView(ColorFormat, 2, 3), prefilter[6*2+3])
}
