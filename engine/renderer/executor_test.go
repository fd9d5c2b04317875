package renderer_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/headless"
)

var colorDesc = framegraph.Texture2D(64, 32, gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)

type chain struct {
	g                *framegraph.Graph
	reg              *framegraph.Registry
	a, b, c, present framegraph.ResourceID
	passes           []framegraph.PassID
}

// newChain builds Draw A -> Blur A into B -> Tonemap B into C -> Present C,
// where A, B and C share a descriptor so C can reuse A's allocation.
func newChain(presentHandle framegraph.Handle) *chain {
	g := framegraph.NewGraph("chain")
	reg := framegraph.NewRegistry()
	c := &chain{g: g, reg: reg}

	c.a = g.RegisterResourceNode("A")
	c.b = g.RegisterResourceNode("B")
	c.c = g.RegisterResourceNode("C")
	c.present = g.RegisterResourceNode("Present")
	reg.RegisterTemporal(c.a, colorDesc).
		RegisterTemporal(c.b, colorDesc).
		RegisterTemporal(c.c, colorDesc).
		RegisterImported(c.present, presentHandle, framegraph.StatePresent)

	rt := framegraph.RenderTargetView(gputypes.TextureFormatUndefined)
	srv := framegraph.ShaderResourceView(gputypes.TextureFormatUndefined)

	draw := g.RegisterPassNode("Draw A", nil, []framegraph.ResourceID{c.a})
	reg.RegisterPassResource(draw, c.a, framegraph.StateRenderTarget, rt)

	blur := g.RegisterPassNode("Blur", []framegraph.ResourceID{c.a}, []framegraph.ResourceID{c.b})
	reg.RegisterPassResource(blur, c.a, framegraph.StatePixelShaderResource, srv).
		RegisterPassResource(blur, c.b, framegraph.StateRenderTarget, rt)

	tonemap := g.RegisterPassNode("Tonemap", []framegraph.ResourceID{c.b}, []framegraph.ResourceID{c.c})
	reg.RegisterPassResource(tonemap, c.b, framegraph.StatePixelShaderResource, srv).
		RegisterPassResource(tonemap, c.c, framegraph.StateRenderTarget, rt)

	present := g.RegisterPassNode("Present", []framegraph.ResourceID{c.c}, []framegraph.ResourceID{c.present})
	reg.RegisterPassResource(present, c.c, framegraph.StatePixelShaderResource, srv).
		RegisterPassState(present, c.present, framegraph.StateRenderTarget)

	c.passes = []framegraph.PassID{draw, blur, tonemap, present}
	return c
}

func TestExecuteRecordsTransitionsAndReusesMemory(t *testing.T) {
	backend := headless.New(headless.Options{AutoComplete: true})
	presentHandle, err := backend.CreateResource("swapchain", colorDesc, framegraph.StatePresent)
	require.NoError(t, err)

	c := newChain(presentHandle)
	plan, err := framegraph.NewCompiler().Compile(c.g, c.reg)
	require.NoError(t, err)

	pool := renderer.NewResourcePool(backend)
	exec := renderer.NewExecutor()
	var ran []string
	bound := map[string]renderer.BoundResource{}
	for _, p := range c.passes {
		exec.RegisterPassFunc(p, func(cl renderer.CommandList, table *renderer.PassResources) error {
			ran = append(ran, table.PassName())
			switch table.PassName() {
			case "Draw A":
				bound["A"], _ = table.Resource(c.a)
				assert.NotZero(t, table.View(c.a, 0))
			case "Tonemap":
				bound["C"], _ = table.Resource(c.c)
				bound["B"], _ = table.Resource(c.b)
			}
			cl.Draw(3, 1)
			return nil
		})
	}

	cl, err := backend.NewCommandList()
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	require.NoError(t, exec.Execute(cl, plan, pool))
	require.NoError(t, cl.End())

	assert.Equal(t, []string{"Draw A", "Blur", "Tonemap", "Present"}, ran)

	hA, hB, hC := bound["A"].Handle, bound["B"].Handle, bound["C"].Handle
	assert.Equal(t, hA, hC, "C reuses the allocation A released after Blur")
	assert.NotEqual(t, hA, hB)
	assert.Equal(t, framegraph.StateRenderTarget, bound["C"].State)

	want := []renderer.Barrier{
		{Resource: hA, Before: framegraph.StateRenderTarget, After: framegraph.StatePixelShaderResource},
		{Resource: hA, Before: framegraph.StatePixelShaderResource, After: framegraph.StateRenderTarget},
		{Resource: hB, Before: framegraph.StateRenderTarget, After: framegraph.StatePixelShaderResource},
		{Resource: hC, Before: framegraph.StateRenderTarget, After: framegraph.StatePixelShaderResource},
		{Resource: presentHandle, Before: framegraph.StatePresent, After: framegraph.StateRenderTarget},
		{Resource: presentHandle, Before: framegraph.StateRenderTarget, After: framegraph.StatePresent},
	}
	assert.Equal(t, want, cl.(*headless.CommandList).Barriers())
	assert.Equal(t, uint64(len(want)), exec.Transitions())

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, 3, backend.CreatedResources())

	// a consumed plan cannot run twice
	assert.ErrorIs(t, exec.Execute(cl, plan, pool), framegraph.ErrPlanConsumed)
}

func TestExecuteSecondFrameReusesPool(t *testing.T) {
	backend := headless.New(headless.Options{AutoComplete: true})
	presentHandle, err := backend.CreateResource("swapchain", colorDesc, framegraph.StatePresent)
	require.NoError(t, err)
	pool := renderer.NewResourcePool(backend)
	exec := renderer.NewExecutor()

	for frame := 0; frame < 3; frame++ {
		pool.NewFrame()
		exec.NewFrame()
		c := newChain(presentHandle)
		plan, err := framegraph.NewCompiler().Compile(c.g, c.reg)
		require.NoError(t, err)
		cl, err := backend.NewCommandList()
		require.NoError(t, err)
		require.NoError(t, cl.Begin())
		require.NoError(t, exec.Execute(cl, plan, pool))
		require.NoError(t, cl.End())
	}
	// only the first frame allocates
	assert.Equal(t, 3, backend.CreatedResources())
	assert.Equal(t, uint64(2), pool.Stats().Misses)
}

func TestExecuteUnresolvedImportReleasesAcquired(t *testing.T) {
	backend := headless.New(headless.Options{})
	g := framegraph.NewGraph("broken")
	reg := framegraph.NewRegistry()
	scratch := g.RegisterResourceNode("Scratch")
	output := g.RegisterResourceNode("Output")
	reg.RegisterTemporal(scratch, colorDesc).
		RegisterImported(output, 0, framegraph.StateCommon)

	fill := g.RegisterPassNode("Fill", nil, []framegraph.ResourceID{scratch})
	reg.RegisterPassState(fill, scratch, framegraph.StateRenderTarget)
	copyOut := g.RegisterPassNode("Copy", []framegraph.ResourceID{scratch}, []framegraph.ResourceID{output})
	reg.RegisterPassState(copyOut, scratch, framegraph.StateCopySource).
		RegisterPassState(copyOut, output, framegraph.StateCopyDest)

	plan, err := framegraph.NewCompiler().Compile(g, reg)
	require.NoError(t, err)

	pool := renderer.NewResourcePool(backend)
	exec := renderer.NewExecutor()
	called := false
	exec.RegisterPassFunc(copyOut, func(renderer.CommandList, *renderer.PassResources) error {
		called = true
		return nil
	})

	cl, err := backend.NewCommandList()
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	err = exec.Execute(cl, plan, pool)
	assert.ErrorIs(t, err, renderer.ErrUnresolvedResource)
	assert.Contains(t, err.Error(), "Output")
	assert.False(t, called)
	assert.Equal(t, 0, pool.Stats().InUse)
}

func TestExecutePassErrorAborts(t *testing.T) {
	backend := headless.New(headless.Options{})
	presentHandle, err := backend.CreateResource("swapchain", colorDesc, framegraph.StatePresent)
	require.NoError(t, err)
	c := newChain(presentHandle)
	plan, err := framegraph.NewCompiler().Compile(c.g, c.reg)
	require.NoError(t, err)

	boom := errors.New("boom")
	pool := renderer.NewResourcePool(backend)
	exec := renderer.NewExecutor()
	reached := 0
	for i, p := range c.passes {
		exec.RegisterPassFunc(p, func(renderer.CommandList, *renderer.PassResources) error {
			reached++
			if i == 1 {
				return boom
			}
			return nil
		})
	}

	cl, err := backend.NewCommandList()
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	err = exec.Execute(cl, plan, pool)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "Blur")
	assert.Equal(t, 2, reached)
	assert.Equal(t, 0, pool.Stats().InUse)
}
