package headless

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

func TestFenceWait(t *testing.T) {
	f := NewFence()
	assert.NoError(t, f.Wait(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx, 1), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- f.Wait(context.Background(), 3) }()

	f.Complete(2)
	select {
	case <-done:
		t.Fatal("wait returned before value 3 completed")
	case <-time.After(10 * time.Millisecond):
	}

	f.Complete(3)
	require.NoError(t, <-done)
	f.Complete(1)
	assert.Equal(t, uint64(3), f.CompletedValue(), "completed values never go backwards")
}

func TestSignalAutoComplete(t *testing.T) {
	b := New(Options{AutoComplete: true})
	v, err := b.Signal()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, uint64(1), b.Fence().CompletedValue())

	manual := New(Options{})
	_, err = manual.Signal()
	require.NoError(t, err)
	assert.Zero(t, manual.Fence().CompletedValue())
	manual.CompleteAll()
	assert.NoError(t, manual.WaitIdle(context.Background()))
}

func TestCommandListRecording(t *testing.T) {
	b := New(Options{})
	l, err := b.NewCommandList()
	require.NoError(t, err)
	cl := l.(*CommandList)

	require.NoError(t, cl.Begin())
	assert.ErrorIs(t, cl.Begin(), ErrAlreadyRecording)

	mesh := &resources.Mesh{Name: "cube", SubMeshes: []resources.SubMesh{{IndexCount: 36}}}
	cl.SetViewport(renderer.FullViewport(8, 8))
	cl.DrawMesh(mesh, 0, 1)
	cl.Draw(3, 1)
	assert.Error(t, b.Submit(cl), "cannot submit while recording")

	require.NoError(t, cl.End())
	assert.ErrorIs(t, cl.End(), ErrNotRecording)
	require.NoError(t, b.Submit(cl))

	subs := b.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, 1, Count(subs[0], CommandDrawMesh))
	assert.Equal(t, "DrawMesh cube[0] x1", subs[0][1].String())

	// Begin resets the recording, earlier submissions are kept
	require.NoError(t, cl.Begin())
	assert.Empty(t, cl.Commands())
	assert.Len(t, b.Submissions()[0], 3)
}

func TestResourcesAndBuffers(t *testing.T) {
	b := New(Options{})
	desc := framegraph.Texture2D(4, 4, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageTextureBinding)

	h, err := b.CreateResource("tex", desc, framegraph.StateCommon)
	require.NoError(t, err)
	_, err = b.CreateResource("empty", framegraph.TextureDesc{}, framegraph.StateCommon)
	assert.Error(t, err)

	v, err := b.CreateView(h, framegraph.ShaderResourceView(gputypes.TextureFormatRGBA8Unorm))
	require.NoError(t, err)
	require.NoError(t, b.DestroyView(v))
	assert.ErrorIs(t, b.DestroyView(v), ErrUnknownHandle)
	require.NoError(t, b.DestroyResource(h))
	assert.ErrorIs(t, b.DestroyResource(h), ErrUnknownHandle)

	buf, err := b.CreateBuffer("constants", 8)
	require.NoError(t, err)
	require.NoError(t, b.WriteBuffer(buf, 4, []byte{1, 2, 3, 4}))
	assert.Error(t, b.WriteBuffer(buf, 6, []byte{1, 2, 3}))
	data, ok := b.Buffer(buf)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, data)

	cube := resources.BlackTextureCube()
	ch, err := b.CreateTextureCube("env", cube)
	require.NoError(t, err)
	tex, ok := b.Texture(ch)
	require.True(t, ok)
	assert.True(t, tex.Desc.Cube)
	assert.Equal(t, framegraph.StatePixelShaderResource, tex.State)

	require.NoError(t, b.Shutdown())
	_, err = b.Signal()
	assert.ErrorIs(t, err, ErrShutdown)
}
