package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rendergraph/engine/assets"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/pipeline"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it created
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shutdown"
	}
	return "uninitialized"
}

// PresentFormat is the format of the image every frame ends up in.
const PresentFormat = gputypes.TextureFormatRGBA8Unorm

var ErrNoRender = errors.New("game has no render function")

type environmentChange struct {
	path string
	cube *resources.TextureCube
}

type size struct {
	width, height uint32
}

/**
 * @brief Drives a Game over a backend: it owns the standard pipeline, the
 * asset manager, the job system, the event bus and the present target.
 * Every engine call except Quit and Resize belongs to the frame goroutine.
 */
type Engine struct {
	currentStage Stage
	game         *Game
	config       *core.Config
	backend      renderer.Backend
	events       *core.EventBus
	clock        *core.Clock
	metrics      *core.Metrics
	jobs         *systems.JobSystem
	assetManager *assets.AssetManager
	pipeline     *pipeline.StdPipeline
	present      framegraph.Handle
	width        uint32
	height       uint32
	isRunning    atomic.Bool
	isSuspended  bool

	mutex         sync.Mutex
	pendingResize *size
	pendingEnvs   []environmentChange
}

// New prepares an engine; the backend stays owned by the caller.
func New(g *Game, backend renderer.Backend) (*Engine, error) {
	if g == nil || g.FnRender == nil {
		return nil, ErrNoRender
	}
	if backend == nil {
		return nil, pipeline.ErrNoBackend
	}
	config := g.Config
	if config == nil {
		config = core.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		game:         g,
		config:       config,
		backend:      backend,
		events:       core.NewEventBus(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        config.Renderer.Width,
		height:       config.Renderer.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine cannot initialize while %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	core.SetLogLevel(e.config.LogLevel())

	jobs, err := systems.NewJobSystem(max(e.config.Cubemap.Workers, 1), 16)
	if err != nil {
		return err
	}
	e.jobs = jobs

	if err := e.initializeAssets(); err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.InitDesc{
		Backend:        e.backend,
		FramesInFlight: e.config.Renderer.FramesInFlight,
		Width:          e.width,
		Height:         e.height,
		Metrics:        e.metrics,
	})
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	e.pipeline = p
	if e.assetManager != nil {
		shaders := p.Shaders()
		for _, s := range []*resources.Shader{shaders.Skybox, shaders.Lighting, shaders.Irradiance, shaders.PreFilter, shaders.PostProcess} {
			e.assetManager.RegisterShader(s)
		}
	}

	if err := e.createPresent(); err != nil {
		return err
	}

	// register some events
	e.events.Register(core.EventCodeApplicationQuit, e, e.onQuit)
	e.events.Register(core.EventCodeResized, e, e.onResized)
	e.events.Register(core.EventCodeResized, p, p.OnResized)
	e.events.Register(core.EventCodeEnvironmentChanged, e, e.onEnvironmentChanged)

	if e.game.FnInitialize != nil {
		if err := e.game.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// initializeAssets indexes the configured asset directory. A missing
// directory leaves the engine without an asset manager.
func (e *Engine) initializeAssets() error {
	dir := e.config.Assets.Dir
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		core.LogWarn("asset directory %s not available, running without assets: %s", dir, err.Error())
		return nil
	}
	am, err := assets.NewAssetManager(assets.Options{
		Dir:   dir,
		Watch: e.config.Assets.Watch,
		Projection: resources.ProjectOptions{
			Workers:        e.config.Cubemap.Workers,
			HalfResolution: e.config.Cubemap.HalfResolution || e.config.Renderer.Debug,
		},
		Jobs:   e.jobs,
		Events: e.events,
	})
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	if err := am.Initialize(); err != nil {
		return err
	}
	e.assetManager = am
	return nil
}

func (e *Engine) createPresent() error {
	desc := framegraph.Texture2D(e.width, e.height, PresentFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc)
	h, err := e.backend.CreateResource("Present", desc, framegraph.StatePresent)
	if err != nil {
		return fmt.Errorf("failed to create present target: %w", err)
	}
	e.present = h
	return nil
}

// Run renders frames until Quit is called or ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.RunFrames(ctx, 0)
}

// RunFrames renders at most frames frames; 0 means no limit.
func (e *Engine) RunFrames(ctx context.Context, frames uint64) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: engine is %s", core.ErrNotInitialized, e.currentStage)
	}
	e.currentStage = EngineStageRunning
	defer func() {
		if e.currentStage == EngineStageRunning {
			e.currentStage = EngineStageInitialized
		}
	}()

	e.isRunning.Store(true)
	e.clock.Start()
	for rendered := uint64(0); e.isRunning.Load() && (frames == 0 || rendered < frames); {
		if err := ctx.Err(); err != nil {
			return nil
		}
		e.clock.Update()
		e.applyPending()

		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		delta := e.clock.Delta()
		if e.game.FnUpdate != nil {
			if err := e.game.FnUpdate(e, delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err.Error())
				return err
			}
		}

		in := pipeline.FrameInput{
			Present:       e.present,
			PresentFormat: PresentFormat,
			Total:         e.clock.Elapsed(),
			Delta:         delta,
		}
		if err := e.game.FnRender(e, &in); err != nil {
			core.LogError("game render failed, shutting down: %s", err.Error())
			return err
		}
		if err := e.pipeline.Render(ctx, in); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		rendered++
	}
	return nil
}

// Quit stops the frame loop after the current frame. Safe from any goroutine.
func (e *Engine) Quit() {
	e.events.Fire(core.EventCodeApplicationQuit, e, core.EventContext{})
}

// Resize requests a new render size, applied before the next frame. Safe
// from any goroutine.
func (e *Engine) Resize(width, height uint32) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.pendingResize = &size{width: width, height: height}
}

func (e *Engine) applyPending() {
	e.mutex.Lock()
	resize := e.pendingResize
	envs := e.pendingEnvs
	e.pendingResize = nil
	e.pendingEnvs = nil
	e.mutex.Unlock()

	if resize != nil {
		var data core.EventContext
		data.Data.U32[0] = resize.width
		data.Data.U32[1] = resize.height
		e.events.Fire(core.EventCodeResized, e, data)
	}
	for _, env := range envs {
		if e.assetManager == nil {
			continue
		}
		n := e.assetManager.RebindEnvironment(env.path, env.cube)
		core.LogInfo("environment %s reloaded, %d material bindings updated", env.path, n)
	}
}

func (e *Engine) onQuit(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	core.LogInfo("application quit received, shutting down")
	e.isRunning.Store(false)
	return false
}

// onResized runs before the pipeline's handler so the present target has
// the new size when the next frame is built.
func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == 0 || height == 0 {
		if !e.isSuspended {
			core.LogInfo("render target minimized, suspending")
		}
		e.isSuspended = true
		// the pipeline rejects an empty size
		return true
	}
	if e.isSuspended {
		core.LogInfo("render target restored, resuming")
		e.isSuspended = false
	}
	if width == e.width && height == e.height {
		return false
	}
	core.LogDebug("resize: %d, %d", width, height)
	e.width, e.height = width, height

	// the old present target may still be in flight
	if err := e.backend.WaitIdle(context.Background()); err != nil {
		core.LogError("failed to wait for the GPU before resizing: %s", err.Error())
	}
	if err := e.backend.DestroyResource(e.present); err != nil {
		core.LogWarn("failed to destroy present target: %s", err.Error())
	}
	if err := e.createPresent(); err != nil {
		core.LogError("%s", err)
	}
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(width, height); err != nil {
			core.LogError("%s", err)
		}
	}
	return false
}

// onEnvironmentChanged may run on a job worker; the rebind happens on the
// frame goroutine.
func (e *Engine) onEnvironmentChanged(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	cube, ok := data.Payload.(*resources.TextureCube)
	if !ok {
		core.LogError("wrong payload %T for environment change", data.Payload)
		return false
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.pendingEnvs = append(e.pendingEnvs, environmentChange{path: data.Data.C[0], cube: cube})
	return false
}

// Shutdown waits for the GPU and releases everything the engine created.
// The backend is left to its owner.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.game.FnShutdown != nil {
		errs = append(errs, e.game.FnShutdown())
	}
	if e.pipeline != nil {
		errs = append(errs, e.pipeline.Shutdown(ctx))
	}
	if e.present != 0 {
		errs = append(errs, e.backend.DestroyResource(e.present))
		e.present = 0
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	e.events.Shutdown()
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Config() *core.Config {
	return e.config
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) Pipeline() *pipeline.StdPipeline {
	return e.pipeline
}

// Assets is nil when no asset directory is configured.
func (e *Engine) Assets() *assets.AssetManager {
	return e.assetManager
}

func (e *Engine) Jobs() *systems.JobSystem {
	return e.jobs
}

// Present is the image the last frame was rendered into, in StatePresent.
func (e *Engine) Present() framegraph.Handle {
	return e.present
}

// GetFramebufferSize returns the width and height (in this order) of the
// render target.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}
