package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/views"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
	"github.com/spaghettifunk/anima-rendergraph/engine/systems"
)

// Names of the resources every frame slot owns.
const (
	ResourceConstantBuffer = "ConstantBuffer"
	ResourceResourcePool   = "ResourcePool"
	ResourceIBLData        = "IBLData"
)

var ErrNoBackend = errors.New("pipeline needs a backend")

// Shaders are the built-in shaders of the standard pipeline.
type Shaders struct {
	Skybox      *resources.Shader
	Lighting    *resources.Shader
	Irradiance  *resources.Shader
	PreFilter   *resources.Shader
	PostProcess *resources.Shader
}

func builtinShader(name string) *resources.Shader {
	return &resources.Shader{
		Name: name,
		Passes: []resources.ShaderPass{{
			Name: "Main",
			Tags: map[string]string{resources.ShaderTagLightMode: "Always"},
		}},
	}
}

func DefaultShaders() Shaders {
	return Shaders{
		Skybox:      builtinShader("Skybox"),
		Lighting:    builtinShader("Anima/DeferredLighting"),
		Irradiance:  builtinShader("Anima/Irradiance"),
		PreFilter:   builtinShader("Anima/PreFilter"),
		PostProcess: builtinShader("Anima/PostProcess"),
	}
}

type InitDesc struct {
	Backend        renderer.Backend
	FramesInFlight int
	Width, Height  uint32
	// Shaders default to DefaultShaders() when left empty.
	Shaders Shaders
	// DefaultEnvironment is used when no scene has a skybox. A black cube
	// is used when nil.
	DefaultEnvironment *resources.TextureCube
	Metrics            *core.Metrics
}

// FrameInput is what the application hands over for one frame.
type FrameInput struct {
	Camera     *scene.Camera
	Partitions []scene.Query
	// Present is the image this frame ends up in, in StatePresent.
	Present       framegraph.Handle
	PresentFormat gputypes.TextureFormat
	Total, Delta  time.Duration
}

// ConstantBuffer is the frame constant buffer of a slot. It grows when a
// frame needs more room than it has.
type ConstantBuffer struct {
	Handle renderer.BufferHandle
	Size   uint64
}

func (cb *ConstantBuffer) upload(backend renderer.Backend, label string, data []byte) error {
	need := uint64(len(data))
	if need > cb.Size {
		size := max(need, 2*cb.Size)
		h, err := backend.CreateBuffer(label, size)
		if err != nil {
			return err
		}
		if cb.Handle != 0 {
			if err := backend.DestroyBuffer(cb.Handle); err != nil {
				core.LogWarn("failed to destroy constant buffer %d: %s", cb.Handle, err.Error())
			}
		}
		cb.Handle, cb.Size = h, size
	}
	return backend.WriteBuffer(cb.Handle, 0, data)
}

/**
 * @brief The deferred standard pipeline. Every frame it rebuilds the graph,
 * compiles it and records it into the command list of the next frame slot.
 *
 * StdPipeline is not safe for concurrent use; it is driven by the frame loop.
 */
type StdPipeline struct {
	backend  renderer.Backend
	shaders  Shaders
	metrics  *core.Metrics
	width    uint32
	height   uint32
	ring     *renderer.FrameRingBuffer
	builder  *systems.RenderContextBuilder
	graph    *framegraph.Graph
	registry *framegraph.Registry
	compiler *framegraph.Compiler
	executor *renderer.Executor
	psos     *PSOCache
	envs     *environmentCache
	nodes    Nodes
	views    []views.RenderView
	passes   []framegraph.PassID
	lastPlan *framegraph.Plan
	frames   uint64
	shutdown bool
}

func New(desc InitDesc) (*StdPipeline, error) {
	if desc.Backend == nil {
		return nil, ErrNoBackend
	}
	if desc.FramesInFlight < 1 || desc.FramesInFlight > core.MaxFramesInFlight {
		return nil, fmt.Errorf("%w: frames in flight must be in [1, %d], got %d", core.ErrInvalidConfig, core.MaxFramesInFlight, desc.FramesInFlight)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: render size must be non-zero, got %dx%d", core.ErrInvalidConfig, desc.Width, desc.Height)
	}
	if desc.Shaders == (Shaders{}) {
		desc.Shaders = DefaultShaders()
	}

	ring, err := renderer.NewFrameRingBuffer(desc.FramesInFlight, desc.Backend)
	if err != nil {
		return nil, err
	}
	p := &StdPipeline{
		backend:  desc.Backend,
		shaders:  desc.Shaders,
		metrics:  desc.Metrics,
		width:    desc.Width,
		height:   desc.Height,
		ring:     ring,
		builder:  systems.NewRenderContextBuilder(desc.Shaders.Skybox, desc.DefaultEnvironment),
		graph:    framegraph.NewGraph(GraphName),
		registry: framegraph.NewRegistry(),
		compiler: framegraph.NewCompiler(),
		executor: renderer.NewExecutor(),
		psos:     NewPSOCache(desc.Backend),
		envs:     newEnvironmentCache(desc.Backend, desc.FramesInFlight),
	}
	if err := p.registerSlotResources(); err != nil {
		p.destroySlotResources()
		return nil, err
	}
	if err := p.envs.pin(p.builder.DefaultEnvironment()); err != nil {
		p.destroySlotResources()
		return nil, err
	}

	// node ids are stable across rebuilds, so the views are bound once
	p.nodes = BuildStdGraph(p.graph, p.registry, p.width, p.height, Imports{})
	p.createViews()
	p.graph.Clear()
	p.registry.Clear()

	core.LogInfo("standard pipeline initialized on %s backend with %d frames in flight at %dx%d", desc.Backend.Name(), desc.FramesInFlight, desc.Width, desc.Height)
	return p, nil
}

func (p *StdPipeline) registerSlotResources() error {
	backend := p.backend
	err := p.ring.RegisterResource(ResourceConstantBuffer, func(slot *renderer.FrameSlot) (any, error) {
		return &ConstantBuffer{}, nil
	})
	if err != nil {
		return err
	}
	err = p.ring.RegisterResource(ResourceResourcePool, func(slot *renderer.FrameSlot) (any, error) {
		return renderer.NewResourcePool(backend), nil
	})
	if err != nil {
		return err
	}
	constants := views.IBLConstants()
	return p.ring.RegisterResource(ResourceIBLData, func(slot *renderer.FrameSlot) (any, error) {
		data := &views.IBLData{}
		var err error
		if data.IrradianceMap, err = backend.CreateResource(fmt.Sprintf("Irradiance Map #%d", slot.Index()), IrradianceDesc(), framegraph.StatePixelShaderResource); err != nil {
			return nil, err
		}
		if data.PreFilterMap, err = backend.CreateResource(fmt.Sprintf("PreFilter Map #%d", slot.Index()), PreFilterDesc(), framegraph.StatePixelShaderResource); err != nil {
			_ = backend.DestroyResource(data.IrradianceMap)
			return nil, err
		}
		if data.Constants, err = backend.CreateBuffer(fmt.Sprintf("IBL Constants #%d", slot.Index()), views.IBLConstantsSize); err != nil {
			_ = backend.DestroyResource(data.IrradianceMap)
			_ = backend.DestroyResource(data.PreFilterMap)
			return nil, err
		}
		if err := backend.WriteBuffer(data.Constants, 0, constants); err != nil {
			return nil, err
		}
		return data, nil
	})
}

func (p *StdPipeline) createViews() {
	n := p.nodes
	gbuffer := views.NewRenderViewWorld("GBuffer Pass", "Deferred", n.GBuffer[:], n.DeferDepth)
	gbuffer.Clear = true

	ibl := &views.RenderViewIBL{
		IrradianceShader: p.shaders.Irradiance,
		PreFilterShader:  p.shaders.PreFilter,
		Irradiance:       n.Irradiance,
		PreFilter:        n.PreFilter,
		Data:             p.currentIBLData,
	}
	lighting := &views.RenderViewLighting{
		Shader:     p.shaders.Lighting,
		GBuffers:   n.GBuffer,
		Depth:      n.DeferDepth,
		Irradiance: n.Irradiance,
		PreFilter:  n.PreFilter,
		Target:     n.DeferLighted,
	}
	skybox := views.NewRenderViewSkybox(p.shaders.Skybox, n.DeferLightedSky, n.DeferDepth)

	forward := views.NewRenderViewWorld("Forward", "Forward", []framegraph.ResourceID{n.Scene}, n.ForwardDepth)
	forward.UseIBL = true
	forward.Irradiance = n.Irradiance
	forward.PreFilter = n.PreFilter

	post := &views.RenderViewPostProcess{
		Shader: p.shaders.PostProcess,
		Source: n.Scene,
		Target: n.Present,
	}

	p.views = []views.RenderView{gbuffer, ibl, lighting, skybox, forward, post}
	p.passes = []framegraph.PassID{n.GBufferPass, n.IBLPass, n.DeferLightingPass, n.SkyboxPass, n.ForwardPass, n.PostProcessPass}
	for _, v := range p.views {
		v.OnResizeRenderView(p.width, p.height)
	}
}

func (p *StdPipeline) currentIBLData() *views.IBLData {
	data, err := renderer.SlotResource[*views.IBLData](p.ring.Current(), ResourceIBLData)
	if err != nil {
		core.LogError("%s", err)
		return &views.IBLData{}
	}
	return data
}

/**
 * @brief Records and submits one frame. The frame slot is always closed: on
 * success its fence value is updated, on any failure the frame is aborted and
 * the slot can be used again.
 */
func (p *StdPipeline) Render(ctx context.Context, in FrameInput) (err error) {
	if p.shutdown {
		return core.ErrShuttingDown
	}
	if in.Camera == nil {
		return fmt.Errorf("%w: frame without camera", core.ErrInvalidConfig)
	}
	start := time.Now()

	slot, err := p.ring.BeginFrame(ctx)
	if err != nil {
		return err
	}
	cl := slot.CommandList()
	recording := false
	var ibl *views.IBLData
	defer func() {
		if err == nil {
			return
		}
		// maps recorded by an aborted frame were never rendered
		if ibl != nil {
			ibl.LastEnvironment = nil
		}
		if recording {
			if eerr := cl.End(); eerr != nil {
				err = errors.Join(err, eerr)
			}
		}
		p.ring.AbortFrame()
		core.LogError("frame %d aborted: %s", p.frames, err.Error())
	}()

	constants, err := renderer.SlotResource[*ConstantBuffer](slot, ResourceConstantBuffer)
	if err != nil {
		return err
	}
	pool, err := renderer.SlotResource[*renderer.ResourcePool](slot, ResourceResourcePool)
	if err != nil {
		return err
	}
	ibl, err = renderer.SlotResource[*views.IBLData](slot, ResourceIBLData)
	if err != nil {
		return err
	}

	rc := p.builder.Build(in.Partitions...)
	camera := systems.NewCameraConstants(in.Camera, p.width, p.height, in.Total, in.Delta)
	label := fmt.Sprintf("Frame Constants #%d", slot.Index())
	if err := constants.upload(p.backend, label, systems.FrameConstants(camera, rc)); err != nil {
		return fmt.Errorf("failed to upload frame constants: %w", err)
	}
	envView, err := p.envs.acquire(slot.Index(), rc.Environment)
	if err != nil {
		return err
	}
	frame := &views.Frame{
		Context:            rc,
		Constants:          constants.Handle,
		Pipelines:          p.psos,
		Environment:        envView,
		DefaultEnvironment: rc.Environment == p.builder.DefaultEnvironment(),
	}

	pool.NewFrame()
	p.executor.NewFrame()
	p.graph.Clear()
	p.registry.Clear()
	BuildStdGraph(p.graph, p.registry, p.width, p.height, Imports{
		Present:       in.Present,
		PresentFormat: in.PresentFormat,
		Irradiance:    ibl.IrradianceMap,
		PreFilter:     ibl.PreFilterMap,
	})
	for i, v := range p.views {
		p.executor.RegisterPassFunc(p.passes[i], v.OnRenderRenderView(frame))
	}

	plan, err := p.compiler.Compile(p.graph, p.registry)
	if err != nil {
		return err
	}
	p.lastPlan = plan

	transitions := p.executor.Transitions()
	stats := pool.Stats()
	if err := cl.Begin(); err != nil {
		return err
	}
	recording = true
	if err := p.executor.Execute(cl, plan, pool); err != nil {
		return err
	}
	recording = false
	if err := cl.End(); err != nil {
		return err
	}
	if err := p.backend.Submit(cl); err != nil {
		return err
	}
	if err := p.ring.EndFrame(p.backend); err != nil {
		return err
	}
	p.frames++

	if p.metrics != nil {
		after := pool.Stats()
		p.metrics.AddTransitions(int(p.executor.Transitions() - transitions))
		p.metrics.AddPoolStats(after.Hits-stats.Hits, after.Misses-stats.Misses)
		p.metrics.Update(time.Since(start))
	}
	return nil
}

// Resize changes the render size. Pooled targets of the old size are
// destroyed by each slot the next time it begins a frame.
func (p *StdPipeline) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: render size must be non-zero, got %dx%d", core.ErrInvalidConfig, width, height)
	}
	if width == p.width && height == p.height {
		return nil
	}
	core.LogInfo("resizing standard pipeline from %dx%d to %dx%d", p.width, p.height, width, height)
	p.width, p.height = width, height
	for _, v := range p.views {
		v.OnResizeRenderView(width, height)
	}
	p.ring.DelayUpdateResource(ResourceResourcePool, func(value any) any {
		pool := value.(*renderer.ResourcePool)
		if err := errors.Join(pool.Clear(), pool.Views().Clear()); err != nil {
			core.LogWarn("failed to clear resource pool: %s", err.Error())
		}
		return pool
	})
	return nil
}

// OnResized handles EventCodeResized.
func (p *StdPipeline) OnResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	if err := p.Resize(data.Data.U32[0], data.Data.U32[1]); err != nil {
		core.LogWarn("ignoring resize: %s", err.Error())
	}
	return false
}

func (p *StdPipeline) Size() (uint32, uint32) {
	return p.width, p.height
}

func (p *StdPipeline) Shaders() Shaders {
	return p.shaders
}

// LastPlan is the plan of the most recently compiled frame.
func (p *StdPipeline) LastPlan() *framegraph.Plan {
	return p.lastPlan
}

// Graph is the graph of the most recently built frame.
func (p *StdPipeline) Graph() *framegraph.Graph {
	return p.graph
}

func (p *StdPipeline) Frames() uint64 {
	return p.frames
}

func (p *StdPipeline) Pipelines() *PSOCache {
	return p.psos
}

func (p *StdPipeline) FramesInFlight() int {
	return p.ring.Len()
}

// Shutdown waits for the GPU and destroys everything the pipeline created.
// The backend itself is left to its owner.
func (p *StdPipeline) Shutdown(ctx context.Context) error {
	if p.shutdown {
		return nil
	}
	p.shutdown = true
	if err := p.backend.WaitIdle(ctx); err != nil {
		return fmt.Errorf("failed to wait for GPU idle: %w", err)
	}
	return errors.Join(p.destroySlotResources(), p.envs.clear())
}

func (p *StdPipeline) destroySlotResources() error {
	var errs []error
	for _, slot := range p.ring.Slots() {
		if pool, err := renderer.SlotResource[*renderer.ResourcePool](slot, ResourceResourcePool); err == nil {
			errs = append(errs, pool.Clear(), pool.Views().Clear())
		}
		if cb, err := renderer.SlotResource[*ConstantBuffer](slot, ResourceConstantBuffer); err == nil && cb.Handle != 0 {
			errs = append(errs, p.backend.DestroyBuffer(cb.Handle))
			cb.Handle, cb.Size = 0, 0
		}
		if ibl, err := renderer.SlotResource[*views.IBLData](slot, ResourceIBLData); err == nil {
			errs = append(errs,
				p.backend.DestroyResource(ibl.IrradianceMap),
				p.backend.DestroyResource(ibl.PreFilterMap),
				p.backend.DestroyBuffer(ibl.Constants))
		}
	}
	return errors.Join(errs...)
}
