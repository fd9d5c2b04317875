package command_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/cmd/anima/internal/command"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cli := command.NewCLI(buf)
	root := command.NewRootCommand(cli)
	command.AddCommands(root, cli)
	root.SetArgs(args)
	root.SetOut(buf)
	root.SetErr(buf)
	err := root.Execute()
	return buf.String(), err
}

func TestGraphWritesDOT(t *testing.T) {
	out, err := execute(t, "graph", "--width", "320", "--height", "200")
	require.NoError(t, err)
	assert.Contains(t, out, `digraph "Std Pipeline" {`)
	assert.Contains(t, out, `label="0: GBuffer Pass"`)
	assert.Contains(t, out, `label="5: Post Process"`)

	out, err = execute(t, "graph", "--unplaced")
	require.NoError(t, err)
	assert.Contains(t, out, `label="Post Process"`)
	assert.NotContains(t, out, `label="5: Post Process"`)
}

func TestGraphToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "std.dot")
	out, err := execute(t, "graph", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Forward Depth Stencil")
}

func TestCubemapWritesSixFaces(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pano.png")
	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{G: 255, A: 255})
		}
	}
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	outDir := filepath.Join(dir, "faces")
	out, err := execute(t, "cubemap", src, outDir, "--half", "--workers", "2")
	require.NoError(t, err)

	for _, face := range []string{"posx", "negx", "posy", "negy", "posz", "negz"} {
		path := filepath.Join(outDir, "pano_"+face+".png")
		assert.Contains(t, out, path)
		f, err := os.Open(path)
		require.NoError(t, err)
		decoded, err := png.Decode(f)
		require.NoError(t, f.Close())
		require.NoError(t, err)
		assert.Equal(t, 4, decoded.Bounds().Dx(), face)
		_, g, _, _ := decoded.At(1, 1).RGBA()
		assert.Equal(t, uint32(0xffff), g, face)
	}
}

func TestCubemapRejectsNonImages(t *testing.T) {
	_, err := execute(t, "cubemap", "notes.txt", t.TempDir())
	assert.Error(t, err)

	_, err = execute(t, "cubemap", "only-one-arg.png")
	assert.Error(t, err)
}

func TestConfigFileAndLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nwidth = 320\nheight = 200\nframes_in_flight = 2\n"), 0o644))

	out, err := execute(t, "--config", path, "--log-level", "debug", "config")
	require.NoError(t, err)
	cfg, err := core.ParseConfig([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, uint32(320), cfg.Renderer.Width)
	assert.Equal(t, 2, cfg.Renderer.FramesInFlight)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = execute(t, "--log-level", "loud", "config")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "config")
	assert.Error(t, err)
}

func TestRunHeadless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nwidth = 64\nheight = 32\n[assets]\ndir = \"\"\n[cubemap]\nhalf_resolution = true\n"), 0o644))

	out, err := execute(t, "--config", path, "--log-level", "error", "run", "--frames", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "rendered 2 frames with headless")
}

func TestRunRejectsUnknownBackend(t *testing.T) {
	_, err := execute(t, "run", "--backend", "software", "--frames", "1")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestRunHeadlessCannotScreenshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nwidth = 16\nheight = 16\n[assets]\ndir = \"\"\n"), 0o644))

	shot := filepath.Join(t.TempDir(), "frame.png")
	_, err := execute(t, "--config", path, "run", "--frames", "1", "--screenshot", shot)
	assert.ErrorContains(t, err, "cannot read textures back")
	assert.NoFileExists(t, shot)
}
