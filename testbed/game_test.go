package testbed

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

func TestGradientSky(t *testing.T) {
	cube, err := GradientSky(resources.ProjectOptions{Workers: 2, HalfResolution: true})
	require.NoError(t, err)
	assert.Equal(t, 128, cube.Size)

	c := cube.Size / 2
	up := cube.Faces[resources.FacePositiveY].Pixel(c, c)
	down := cube.Faces[resources.FaceNegativeY].Pixel(c, c)
	// zenith is blue, the ground is dim
	assert.Greater(t, up[2], up[0])
	assert.Less(t, down[0]+down[1]+down[2], up[0]+up[1]+up[2])
}

func TestTestbedRendersHeadless(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Renderer.Width = 64
	cfg.Renderer.Height = 32
	cfg.Cubemap.HalfResolution = true

	backend := headless.New(headless.Options{AutoComplete: true})
	g := NewTestGame(cfg, Options{Environment: "environments/missing.png"})
	e, err := engine.New(g, backend)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() {
		require.NoError(t, e.Shutdown(context.Background()))
		require.NoError(t, backend.Shutdown())
	}()

	state := g.State.(*gameState)
	require.Len(t, state.cubes, 3)
	assert.Equal(t, uint32(64), state.width)
	cube, ok := state.skyMat.TextureCubeProperty("gSkybox")
	require.True(t, ok)
	assert.Equal(t, "gradient_sky", cube.Name)

	before := state.transforms[2].GetWorld()
	require.NoError(t, e.RunFrames(context.Background(), 3))
	assert.Len(t, backend.Submissions(), 3)
	assert.Greater(t, e.Pipeline().Pipelines().Len(), 0)
	assert.NotEqual(t, before, state.transforms[2].GetWorld())
}

func TestTestbedLoadsEnvironmentFromAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "environments"), 0o755))
	src := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 255, 255
	}
	f, err := os.Create(filepath.Join(dir, "environments", "red.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	cfg := core.DefaultConfig()
	cfg.Renderer.Width = 32
	cfg.Renderer.Height = 32
	cfg.Assets.Dir = dir

	backend := headless.New(headless.Options{AutoComplete: true})
	g := NewTestGame(cfg, Options{Environment: "environments/red.png"})
	e, err := engine.New(g, backend)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() {
		require.NoError(t, e.Shutdown(context.Background()))
		require.NoError(t, backend.Shutdown())
	}()

	state := g.State.(*gameState)
	cube, ok := state.skyMat.TextureCubeProperty("gSkybox")
	require.True(t, ok)
	assert.Equal(t, 4, cube.Size)
	assert.Equal(t, []float32{1, 0, 0, 1}, cube.Faces[resources.FacePositiveZ].Pixel(1, 1))

	replacement, err := resources.NewSolidTextureCube("blue", 2, []float32{0, 0, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Assets().RebindEnvironment("environments/red.png", replacement))
	rebound, _ := state.skyMat.TextureCubeProperty("gSkybox")
	assert.Same(t, replacement, rebound)
}
