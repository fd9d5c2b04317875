package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/pipeline"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
)

type testGame struct {
	*Game
	world   *scene.World
	updates int
	resized [][2]uint32
	quitAt  int
}

func newTestGame(assetDir string) *testGame {
	cfg := core.DefaultConfig()
	cfg.Renderer.Width = 64
	cfg.Renderer.Height = 32
	cfg.Renderer.FramesInFlight = 2
	cfg.Assets.Dir = assetDir

	tg := &testGame{world: scene.NewWorld("test")}
	mesh := &resources.Mesh{Name: "cube", SubMeshes: []resources.SubMesh{{IndexCount: 36}}}
	lit := tg.world.CreateEntity("lit")
	tg.world.SetMeshRenderer(lit, mesh, &resources.Material{
		Name: "Lit",
		Shader: &resources.Shader{Name: "Lit", Passes: []resources.ShaderPass{{
			Name: "Deferred",
			Tags: map[string]string{resources.ShaderTagLightMode: "Deferred"},
		}}},
	})

	tg.Game = &Game{
		Config: cfg,
		FnUpdate: func(e *Engine, delta time.Duration) error {
			tg.updates++
			if tg.quitAt > 0 && tg.updates == tg.quitAt {
				e.Quit()
			}
			return nil
		},
		FnRender: func(e *Engine, in *pipeline.FrameInput) error {
			in.Camera = tg.world.Camera()
			in.Partitions = append(in.Partitions, tg.world)
			return nil
		},
		FnOnResize: func(width, height uint32) error {
			tg.resized = append(tg.resized, [2]uint32{width, height})
			return nil
		},
	}
	return tg
}

func newEngine(t *testing.T, tg *testGame) (*Engine, *headless.Backend) {
	t.Helper()
	backend := headless.New(headless.Options{AutoComplete: true})
	e, err := New(tg.Game, backend)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() {
		_ = e.Shutdown(context.Background())
		_ = backend.Shutdown()
	})
	return e, backend
}

func TestNewValidates(t *testing.T) {
	backend := headless.New(headless.Options{AutoComplete: true})
	_, err := New(&Game{}, backend)
	assert.ErrorIs(t, err, ErrNoRender)

	tg := newTestGame("")
	_, err = New(tg.Game, nil)
	assert.ErrorIs(t, err, pipeline.ErrNoBackend)

	tg.Config.Renderer.FramesInFlight = 0
	_, err = New(tg.Game, backend)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestRunFramesRendersIntoPresent(t *testing.T) {
	tg := newTestGame("")
	e, backend := newEngine(t, tg)
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.Nil(t, e.Assets())
	assert.Equal(t, [][2]uint32{{64, 32}}, tg.resized)

	require.NoError(t, e.RunFrames(context.Background(), 3))
	assert.Equal(t, uint64(3), e.Pipeline().Frames())
	assert.Equal(t, 3, tg.updates)
	assert.Len(t, backend.Submissions(), 3)
	assert.Equal(t, EngineStageInitialized, e.Stage())

	present, ok := backend.Texture(e.Present())
	require.True(t, ok)
	assert.Equal(t, uint32(64), present.Desc.Width)
	assert.Equal(t, PresentFormat, present.Desc.Format)
}

func TestRunRequiresInitialize(t *testing.T) {
	tg := newTestGame("")
	e, err := New(tg.Game, headless.New(headless.Options{AutoComplete: true}))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background()), core.ErrNotInitialized)
}

func TestQuitStopsRun(t *testing.T) {
	tg := newTestGame("")
	tg.quitAt = 2
	e, _ := newEngine(t, tg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, uint64(2), e.Pipeline().Frames())
}

func TestResizeAppliesBeforeNextFrame(t *testing.T) {
	tg := newTestGame("")
	e, backend := newEngine(t, tg)
	require.NoError(t, e.RunFrames(context.Background(), 1))
	old := e.Present()

	e.Resize(32, 16)
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(64), w, "resize is deferred to the frame loop")
	assert.Equal(t, uint32(32), h)

	require.NoError(t, e.RunFrames(context.Background(), 1))
	w, h = e.GetFramebufferSize()
	assert.Equal(t, [2]uint32{32, 16}, [2]uint32{w, h})
	pw, ph := e.Pipeline().Size()
	assert.Equal(t, [2]uint32{32, 16}, [2]uint32{pw, ph})
	assert.Equal(t, [2]uint32{32, 16}, tg.resized[len(tg.resized)-1])

	present, ok := backend.Texture(e.Present())
	require.True(t, ok)
	assert.Equal(t, uint32(32), present.Desc.Width)
	if old != e.Present() {
		_, ok = backend.Texture(old)
		assert.False(t, ok)
	}
}

func TestZeroSizeSuspends(t *testing.T) {
	tg := newTestGame("")
	e, _ := newEngine(t, tg)
	e.Resize(0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.RunFrames(ctx, 1))
	assert.Zero(t, e.Pipeline().Frames())
	pw, ph := e.Pipeline().Size()
	assert.Equal(t, [2]uint32{64, 32}, [2]uint32{pw, ph})

	e.Resize(64, 32)
	require.NoError(t, e.RunFrames(context.Background(), 1))
	assert.Equal(t, uint64(1), e.Pipeline().Frames())
}

func TestShutdownReleasesResources(t *testing.T) {
	tg := newTestGame("")
	backend := headless.New(headless.Options{AutoComplete: true})
	e, err := New(tg.Game, backend)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.RunFrames(context.Background(), 2))

	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.Zero(t, backend.LiveResources())
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestAssetsGetPipelineShaders(t *testing.T) {
	tg := newTestGame(t.TempDir())
	e, _ := newEngine(t, tg)
	require.NotNil(t, e.Assets())

	sky, ok := e.Assets().Shader("Skybox")
	require.True(t, ok)
	assert.Same(t, e.Pipeline().Shaders().Skybox, sky)
}

func TestEnvironmentChangeWithWrongPayloadIsIgnored(t *testing.T) {
	tg := newTestGame("")
	e, _ := newEngine(t, tg)
	assert.False(t, e.Events().Fire(core.EventCodeEnvironmentChanged, t, core.EventContext{Payload: "not a cube"}))
	require.NoError(t, e.RunFrames(context.Background(), 1))
}
