package framegraph

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

var testDesc = Texture2D(4, 4, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)

type testPass struct {
	name   string
	reads  []string
	writes []string
}

// testGraph declares a graph by names. Every resource that is not a move
// destination is registered as temporal.
type testGraph struct {
	resources []string
	moves     [][2]string // {dst, src}
	passes    []testPass
}

func (tg testGraph) build(t *testing.T) (*Graph, *Registry) {
	t.Helper()
	g := NewGraph("test")
	reg := NewRegistry()
	ids := make(map[string]ResourceID)
	for _, r := range tg.resources {
		ids[r] = g.RegisterResourceNode(r)
	}
	dsts := make(map[string]bool)
	for _, m := range tg.moves {
		g.RegisterMoveNode(ids[m[0]], ids[m[1]])
		dsts[m[0]] = true
	}
	for _, r := range tg.resources {
		if !dsts[r] {
			reg.RegisterTemporal(ids[r], testDesc)
		}
	}
	lookup := func(names []string) []ResourceID {
		var out []ResourceID
		for _, n := range names {
			id, ok := ids[n]
			require.True(t, ok, "unknown resource %q", n)
			out = append(out, id)
		}
		return out
	}
	for _, p := range tg.passes {
		g.RegisterPassNode(p.name, lookup(p.reads), lookup(p.writes))
	}
	return g, reg
}

// checkValidOrder asserts that for every resource node, any two accesses of
// which at least one is a write run in declaration order.
func checkValidOrder(t *testing.T, g *Graph, plan *Plan) {
	t.Helper()
	pos := make(map[PassID]int)
	for i, pp := range plan.Passes() {
		pos[pp.Pass] = i
	}
	require.Len(t, pos, len(g.Passes()), "every pass must be scheduled exactly once")

	type use struct {
		pass  PassID
		write bool
	}
	uses := make(map[ResourceID][]use)
	for _, p := range g.Passes() {
		for _, r := range p.Reads {
			uses[r] = append(uses[r], use{p.ID, false})
		}
		for _, r := range p.Writes {
			uses[r] = append(uses[r], use{p.ID, true})
		}
	}
	for r, list := range uses {
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				if list[i].pass == list[j].pass || !(list[i].write || list[j].write) {
					continue
				}
				assert.Less(t, pos[list[i].pass], pos[list[j].pass],
					"resource %d: pass %d must run before pass %d", r, list[i].pass, list[j].pass)
			}
		}
	}
}

func TestCompileOrder(t *testing.T) {
	tests := []struct {
		name  string
		graph testGraph
		want  []string
	}{
		{
			name: "independent passes keep declaration order",
			graph: testGraph{
				resources: []string{"A", "B", "C"},
				passes: []testPass{
					{name: "P0", writes: []string{"A"}},
					{name: "P1", writes: []string{"B"}},
					{name: "P2", writes: []string{"C"}},
				},
			},
			want: []string{"P0", "P1", "P2"},
		},
		{
			name: "linear chain",
			graph: testGraph{
				resources: []string{"A", "B"},
				passes: []testPass{
					{name: "P0", writes: []string{"A"}},
					{name: "P1", reads: []string{"A"}, writes: []string{"B"}},
					{name: "P2", reads: []string{"B"}},
				},
			},
			want: []string{"P0", "P1", "P2"},
		},
		{
			name: "move destination reader declared before source writer",
			graph: testGraph{
				resources: []string{"A", "B"},
				moves:     [][2]string{{"B", "A"}},
				passes: []testPass{
					{name: "Consume", reads: []string{"B"}},
					{name: "Produce", writes: []string{"A"}},
				},
			},
			want: []string{"Produce", "Consume"},
		},
		{
			name: "move chain orders through an unused identity",
			graph: testGraph{
				resources: []string{"A", "B", "C"},
				moves:     [][2]string{{"B", "A"}, {"C", "B"}},
				passes: []testPass{
					{name: "Late", reads: []string{"C"}},
					{name: "Unrelated", writes: []string{}},
					{name: "Early", writes: []string{"A"}},
				},
			},
			want: []string{"Unrelated", "Early", "Late"},
		},
		{
			name: "deferred pipeline",
			graph: testGraph{
				resources: []string{"GBuffer", "Depth", "Lit", "LitSky", "Scene", "ForwardDepth", "Final"},
				moves:     [][2]string{{"LitSky", "Lit"}, {"Scene", "LitSky"}, {"ForwardDepth", "Depth"}},
				passes: []testPass{
					{name: "GBuffer Pass", writes: []string{"GBuffer", "Depth"}},
					{name: "Defer Lighting", reads: []string{"GBuffer"}, writes: []string{"Lit"}},
					{name: "Skybox", reads: []string{"Depth"}, writes: []string{"LitSky"}},
					{name: "Forward", writes: []string{"Scene", "ForwardDepth"}},
					{name: "Post Process", reads: []string{"Scene"}, writes: []string{"Final"}},
				},
			},
			want: []string{"GBuffer Pass", "Defer Lighting", "Skybox", "Forward", "Post Process"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, reg := tt.graph.build(t)
			plan, err := NewCompiler().Compile(g, reg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.PassOrder())
			checkValidOrder(t, g, plan)
		})
	}
}

func TestCompileRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	states := []ResourceState{StateUndefined, StateRenderTarget, StatePixelShaderResource, StateCopySource}

	for iter := 0; iter < 200; iter++ {
		g := NewGraph(fmt.Sprintf("random-%d", iter))
		reg := NewRegistry()
		nRes := 1 + rng.IntN(8)
		for i := 0; i < nRes; i++ {
			reg.RegisterTemporal(g.RegisterResourceNode(fmt.Sprintf("R%d", i)), testDesc)
		}
		nPass := 1 + rng.IntN(10)
		for i := 0; i < nPass; i++ {
			var reads, writes []ResourceID
			for r := 0; r < nRes; r++ {
				switch rng.IntN(4) {
				case 0:
					reads = append(reads, ResourceID(r))
				case 1:
					writes = append(writes, ResourceID(r))
				}
			}
			p := g.RegisterPassNode(fmt.Sprintf("P%d", i), reads, writes)
			for _, r := range append(reads, writes...) {
				reg.RegisterPassState(p, r, states[rng.IntN(len(states))])
			}
		}

		first, err := NewCompiler().Compile(g, reg)
		require.NoError(t, err, "iteration %d", iter)
		checkValidOrder(t, g, first)

		second, err := NewCompiler().Compile(g, reg)
		require.NoError(t, err)
		assert.Equal(t, first.Passes(), second.Passes(), "iteration %d: pass entries differ", iter)
		assert.Equal(t, first.Resources(), second.Resources(), "iteration %d: resources differ", iter)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		build    func(t *testing.T) (*Graph, *Registry)
		wantErr  error
		wantKind NodeKind
		wantName string
	}{
		{
			name: "dangling read",
			build: func(t *testing.T) (*Graph, *Registry) {
				g := NewGraph("test")
				g.RegisterPassNode("P0", []ResourceID{5}, nil)
				return g, NewRegistry()
			},
			wantErr:  ErrDanglingReference,
			wantKind: NodePass,
			wantName: "P0",
		},
		{
			name: "dangling registry entry",
			build: func(t *testing.T) (*Graph, *Registry) {
				g := NewGraph("test")
				reg := NewRegistry().RegisterTemporal(9, testDesc)
				return g, reg
			},
			wantErr:  ErrDanglingReference,
			wantKind: NodeResource,
			wantName: "<resource 9>",
		},
		{
			name: "source moved twice",
			build: testGraph{
				resources: []string{"A", "B", "C"},
				moves:     [][2]string{{"B", "A"}, {"C", "A"}},
			}.build,
			wantErr:  ErrDoubleMove,
			wantKind: NodeResource,
			wantName: "A",
		},
		{
			name: "two sources moved into one destination",
			build: testGraph{
				resources: []string{"A", "B", "C"},
				moves:     [][2]string{{"C", "A"}, {"C", "B"}},
			}.build,
			wantErr:  ErrDoubleMove,
			wantKind: NodeResource,
			wantName: "C",
		},
		{
			name: "self move",
			build: testGraph{
				resources: []string{"A"},
				moves:     [][2]string{{"A", "A"}},
			}.build,
			wantErr:  ErrCycle,
			wantKind: NodeResource,
			wantName: "A",
		},
		{
			name: "move cycle",
			build: testGraph{
				resources: []string{"A", "B"},
				moves:     [][2]string{{"B", "A"}, {"A", "B"}},
			}.build,
			wantErr:  ErrCycle,
			wantKind: NodeResource,
			wantName: "A",
		},
		{
			name: "pass touches source and destination",
			build: testGraph{
				resources: []string{"A", "B"},
				moves:     [][2]string{{"B", "A"}},
				passes: []testPass{
					{name: "P0", writes: []string{"A"}},
					{name: "P1", reads: []string{"A"}, writes: []string{"B"}},
				},
			}.build,
			wantErr:  ErrMoveAfterUse,
			wantKind: NodePass,
			wantName: "P1",
		},
		{
			name: "source written after destination is produced",
			build: testGraph{
				resources: []string{"A", "B", "C"},
				moves:     [][2]string{{"B", "A"}},
				passes: []testPass{
					{name: "P0", writes: []string{"A"}},
					{name: "P1", writes: []string{"B", "C"}},
					{name: "P2", reads: []string{"C"}, writes: []string{"A"}},
				},
			}.build,
			wantErr:  ErrMoveAfterUse,
			wantKind: NodePass,
			wantName: "P2",
		},
		{
			name: "source rewritten after destination is read",
			build: testGraph{
				resources: []string{"A", "B"},
				moves:     [][2]string{{"B", "A"}},
				passes: []testPass{
					{name: "P0", writes: []string{"A"}},
					{name: "P1", reads: []string{"B"}},
					{name: "P2", writes: []string{"A"}},
				},
			}.build,
			wantErr:  ErrMoveAfterUse,
			wantKind: NodePass,
			wantName: "P2",
		},
		{
			name: "source read after destination is produced",
			build: testGraph{
				resources: []string{"A", "B", "C"},
				moves:     [][2]string{{"B", "A"}},
				passes: []testPass{
					{name: "P0", writes: []string{"A"}},
					{name: "P1", writes: []string{"B", "C"}},
					{name: "P2", reads: []string{"C", "A"}},
				},
			}.build,
			wantErr:  ErrCycle,
			wantKind: NodePass,
			wantName: "P1",
		},
		{
			name: "unregistered resource",
			build: func(t *testing.T) (*Graph, *Registry) {
				g := NewGraph("test")
				a := g.RegisterResourceNode("A")
				g.RegisterPassNode("P0", nil, []ResourceID{a})
				return g, NewRegistry()
			},
			wantErr:  ErrUnregisteredResource,
			wantKind: NodeResource,
			wantName: "A",
		},
		{
			name: "move destination registered with another descriptor",
			build: func(t *testing.T) (*Graph, *Registry) {
				g, reg := testGraph{
					resources: []string{"A", "B"},
					moves:     [][2]string{{"B", "A"}},
					passes: []testPass{
						{name: "P0", writes: []string{"A"}},
						{name: "P1", reads: []string{"B"}},
					},
				}.build(t)
				other := testDesc
				other.Width = 8
				reg.RegisterTemporal(1, other)
				return g, reg
			},
			wantErr:  ErrConflictingRegistration,
			wantKind: NodeResource,
			wantName: "B",
		},
		{
			name: "temporal and imported at once",
			build: func(t *testing.T) (*Graph, *Registry) {
				g := NewGraph("test")
				a := g.RegisterResourceNode("A")
				g.RegisterPassNode("P0", nil, []ResourceID{a})
				reg := NewRegistry().
					RegisterTemporal(a, testDesc).
					RegisterImported(a, 1, StateCommon)
				return g, reg
			},
			wantErr:  ErrConflictingRegistration,
			wantKind: NodeResource,
			wantName: "A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, reg := tt.build(t)
			plan, err := NewCompiler().Compile(g, reg)
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, tt.wantErr)

			ce, ok := AsCompileError(err)
			require.True(t, ok, "expected a CompileError, got %T", err)
			assert.Equal(t, tt.wantKind, ce.Kind)
			assert.Equal(t, tt.wantName, ce.Name)
		})
	}
}

func TestCompileCycleListsStuckPasses(t *testing.T) {
	g, reg := testGraph{
		resources: []string{"A", "B", "C"},
		moves:     [][2]string{{"B", "A"}},
		passes: []testPass{
			{name: "P0", writes: []string{"A"}},
			{name: "P1", writes: []string{"B", "C"}},
			{name: "P2", reads: []string{"C", "A"}},
		},
	}.build(t)
	_, err := NewCompiler().Compile(g, reg)
	ce, ok := AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"P1", "P2"}, ce.Cycle)
	assert.Contains(t, err.Error(), "P1 -> P2")
}

func TestCompileTemporalAndImported(t *testing.T) {
	build := func(entry ResourceState) (*Graph, *Registry, ResourceID, ResourceID) {
		g := NewGraph("e2e")
		a := g.RegisterResourceNode("A")
		b := g.RegisterResourceNode("B")
		p1 := g.RegisterPassNode("P1", nil, []ResourceID{a})
		p2 := g.RegisterPassNode("P2", []ResourceID{a}, []ResourceID{b})
		reg := NewRegistry().
			RegisterTemporal(a, testDesc).
			RegisterImported(b, 42, entry).
			RegisterPassState(p1, a, StateRenderTarget).
			RegisterPassResource(p2, a, StatePixelShaderResource, ShaderResourceView(gputypes.TextureFormatRGBA8Unorm)).
			RegisterPassState(p2, b, StateRenderTarget)
		return g, reg, a, b
	}

	t.Run("entry state already matches", func(t *testing.T) {
		g, reg, a, b := build(StateRenderTarget)
		plan, err := NewCompiler().Compile(g, reg)
		require.NoError(t, err)

		assert.Equal(t, []string{"P1", "P2"}, plan.PassOrder())
		assert.Equal(t, []Transition{{Resource: a, Physical: 0, Before: StateRenderTarget, After: StatePixelShaderResource}}, plan.TransitionsFor(a))
		assert.Empty(t, plan.TransitionsFor(b))
		assert.Equal(t, 1, plan.Transitions())

		passes := plan.Passes()
		assert.Empty(t, passes[0].Before, "temporal resources start in their first-use state")
		assert.Len(t, passes[1].Before, 1)
		assert.Empty(t, passes[1].After)

		res := plan.Resources()
		require.Len(t, res, 2)
		assert.Equal(t, LifetimeTemporal, res[0].Lifetime)
		assert.Equal(t, StateRenderTarget, res[0].InitialState)
		assert.Equal(t, 0, res[0].FirstPass)
		assert.Equal(t, 1, res[0].LastPass)
		assert.Equal(t, LifetimeImported, res[1].Lifetime)
		assert.Equal(t, Handle(42), res[1].Handle)
		assert.Equal(t, 1, res[1].FirstPass)

		require.Len(t, passes[1].Resources, 2)
		assert.Equal(t, []ViewDesc{ShaderResourceView(gputypes.TextureFormatRGBA8Unorm)}, passes[1].Resources[0].Views)
		assert.True(t, passes[1].Resources[0].Read)
		assert.True(t, passes[1].Resources[1].Write)
	})

	t.Run("imported resource returns to its entry state", func(t *testing.T) {
		g, reg, a, b := build(StatePresent)
		plan, err := NewCompiler().Compile(g, reg)
		require.NoError(t, err)

		last := plan.Passes()[1]
		assert.Equal(t, []Transition{
			{Resource: a, Physical: 0, Before: StateRenderTarget, After: StatePixelShaderResource},
			{Resource: b, Physical: 1, Before: StatePresent, After: StateRenderTarget},
		}, last.Before)
		assert.Equal(t, []Transition{{Resource: b, Physical: 1, Before: StateRenderTarget, After: StatePresent}}, last.After)
		assert.Equal(t, 3, plan.Transitions())
	})
}

func TestCompileMoveSharesPhysicalResource(t *testing.T) {
	g := NewGraph("move")
	a := g.RegisterResourceNode("A")
	b := g.RegisterResourceNode("B")
	g.RegisterMoveNode(b, a)
	p0 := g.RegisterPassNode("P0", nil, []ResourceID{a})
	p1 := g.RegisterPassNode("P1", []ResourceID{b}, nil)
	reg := NewRegistry().
		RegisterTemporal(a, testDesc).
		RegisterPassState(p0, a, StateRenderTarget).
		RegisterPassState(p1, b, StatePixelShaderResource)

	plan, err := NewCompiler().Compile(g, reg)
	require.NoError(t, err)
	require.Len(t, plan.Resources(), 1)
	assert.Equal(t, a, plan.Resources()[0].Root)
	assert.Equal(t, 1, plan.Resources()[0].LastPass)

	p := plan.Passes()[1]
	assert.Equal(t, []Transition{{Resource: b, Physical: 0, Before: StateRenderTarget, After: StatePixelShaderResource}}, p.Before)
	assert.Equal(t, "B", p.Resources[0].Name)
}

func TestCompileUndefinedStateKeepsCurrent(t *testing.T) {
	g := NewGraph("undefined")
	a := g.RegisterResourceNode("A")
	g.RegisterPassNode("P0", nil, []ResourceID{a})
	p1 := g.RegisterPassNode("P1", []ResourceID{a}, nil)
	reg := NewRegistry().RegisterTemporal(a, testDesc)

	plan, err := NewCompiler().Compile(g, reg)
	require.NoError(t, err)
	assert.Zero(t, plan.Transitions())
	assert.Equal(t, StateCommon, plan.Resources()[0].InitialState)

	reg.RegisterPassState(p1, a, StateCopySource)
	plan, err = NewCompiler().Compile(g, reg)
	require.NoError(t, err)
	assert.Equal(t, []Transition{{Resource: a, Physical: 0, Before: StateCommon, After: StateCopySource}}, plan.TransitionsFor(a))
}

func TestPlanConsume(t *testing.T) {
	g, reg := testGraph{
		resources: []string{"A"},
		passes:    []testPass{{name: "P0", writes: []string{"A"}}},
	}.build(t)
	plan, err := NewCompiler().Compile(g, reg)
	require.NoError(t, err)
	require.NoError(t, plan.Consume())
	assert.ErrorIs(t, plan.Consume(), ErrPlanConsumed)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	core.SetLogOutput(buf)
	core.SetLogLevel(core.DebugLevel)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })
	return buf
}

func TestCompileErrorLogNamesNode(t *testing.T) {
	buf := captureLog(t)
	g := NewGraph("log")
	a := g.RegisterResourceNode("Bloom 50%s")
	g.RegisterPassNode("P0", nil, []ResourceID{a})

	_, err := NewCompiler().Compile(g, NewRegistry())
	require.ErrorIs(t, err, ErrUnregisteredResource)
	assert.Contains(t, buf.String(), "Bloom 50%s")
	assert.NotContains(t, buf.String(), "MISSING")
}

func TestCompileReadWriteFirstUseIsNotReportedAsUninitialized(t *testing.T) {
	buf := captureLog(t)
	g := NewGraph("rw")
	a := g.RegisterResourceNode("Accumulation")
	b := g.RegisterResourceNode("Unwritten")
	g.RegisterPassNode("Blend", []ResourceID{a}, []ResourceID{a})
	g.RegisterPassNode("Sample", []ResourceID{b}, nil)
	reg := NewRegistry().RegisterTemporal(a, testDesc).RegisterTemporal(b, testDesc)

	_, err := NewCompiler().Compile(g, reg)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), `"Accumulation" is read before being written`)
	assert.Contains(t, buf.String(), `"Unwritten" is read before being written`)
}
