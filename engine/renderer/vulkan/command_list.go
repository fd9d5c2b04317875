package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

var (
	ErrNotRecording     = errors.New("command list is not recording")
	ErrAlreadyRecording = errors.New("command list is already recording")
	ErrNoRenderTargets  = errors.New("draw without render targets")
	ErrNoPipeline       = errors.New("draw without a pipeline")
)

type depthClear struct {
	depth   float32
	stencil uint8
}

/**
 * @brief Records into one primary command buffer. Render passes are opened
 * lazily on the first draw after SetRenderTargets so clears issued before
 * or after binding the targets become load operations of the pass.
 */
type CommandList struct {
	backend        *Backend
	id             int
	cb             *VulkanCommandBuffer
	descriptorPool vk.DescriptorPool
	recording      bool
	err            error

	colors      []*VulkanImageView
	depth       *VulkanImageView
	colorClears map[*VulkanImageView][4]float32
	depthClears map[*VulkanImageView]depthClear

	renderPass  *VulkanRenderpass
	framebuffer *VulkanFramebuffer
	pipeline    *VulkanPipeline
	bindings    descriptorBindings
}

func newCommandList(b *Backend, id int) (*CommandList, error) {
	cb, err := NewVulkanCommandBuffer(b.context, b.context.Device.GraphicsCommandPool)
	if err != nil {
		return nil, err
	}
	pool, err := createDescriptorPool(b.context, descriptorSetsPerList)
	if err != nil {
		cb.Free(b.context, b.context.Device.GraphicsCommandPool)
		return nil, err
	}
	return &CommandList{
		backend:        b,
		id:             id,
		cb:             cb,
		descriptorPool: pool,
		colorClears:    make(map[*VulkanImageView][4]float32),
		depthClears:    make(map[*VulkanImageView]depthClear),
	}, nil
}

// fail keeps the first recording error; End returns it.
func (l *CommandList) fail(err error) {
	if l.err == nil {
		l.err = fmt.Errorf("command list %d: %w", l.id, err)
	}
}

func (l *CommandList) Begin() error {
	if l.recording {
		return ErrAlreadyRecording
	}
	if err := l.cb.Reset(); err != nil {
		return err
	}
	if err := check("vkResetDescriptorPool", vk.ResetDescriptorPool(l.backend.context.Device.LogicalDevice, l.descriptorPool, 0)); err != nil {
		return err
	}
	if err := l.cb.Begin(true); err != nil {
		return err
	}
	l.recording = true
	l.err = nil
	l.colors = nil
	l.depth = nil
	l.renderPass = nil
	l.framebuffer = nil
	l.pipeline = nil
	l.bindings.reset()
	clear(l.colorClears)
	clear(l.depthClears)
	return nil
}

func (l *CommandList) End() error {
	if !l.recording {
		return ErrNotRecording
	}
	l.flushPass()
	l.recording = false
	if err := l.cb.End(); err != nil {
		return err
	}
	return l.err
}

func (l *CommandList) ResourceBarrier(barriers ...renderer.Barrier) {
	l.flushPass()
	var srcStages, dstStages vk.PipelineStageFlags
	images := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		if b.Before == b.After {
			continue
		}
		img, ok := l.backend.image(b.Resource)
		if !ok {
			l.fail(fmt.Errorf("%w: barrier on resource %d", ErrUnknownHandle, b.Resource))
			continue
		}
		images = append(images, img.barrier(b.Before, b.After))
		srcStages |= stateStages(b.Before)
		dstStages |= stateStages(b.After)
	}
	if len(images) == 0 {
		return
	}
	vk.CmdPipelineBarrier(l.cb.Handle, srcStages, dstStages, 0, 0, nil, 0, nil, uint32(len(images)), images)
}

func (l *CommandList) SetPipeline(pipeline renderer.PipelineHandle) {
	p, ok := l.backend.pipeline(pipeline)
	if !ok {
		l.fail(fmt.Errorf("%w: pipeline %d", ErrUnknownHandle, pipeline))
		return
	}
	l.pipeline = p
	vk.CmdBindPipeline(l.cb.Handle, vk.PipelineBindPointGraphics, p.Handle)
	l.bindings.dirty = true
}

func (l *CommandList) SetRenderTargets(colors []renderer.ViewHandle, depth renderer.ViewHandle) {
	l.flushPass()
	if len(colors) > maxColorAttachments {
		l.fail(fmt.Errorf("%d render targets, at most %d are supported", len(colors), maxColorAttachments))
		return
	}
	l.colors = l.colors[:0]
	for _, c := range colors {
		v, ok := l.backend.view(c)
		if !ok {
			l.fail(fmt.Errorf("%w: render target view %d", ErrUnknownHandle, c))
			return
		}
		l.colors = append(l.colors, v)
	}
	l.depth = nil
	if depth != 0 {
		v, ok := l.backend.view(depth)
		if !ok {
			l.fail(fmt.Errorf("%w: depth view %d", ErrUnknownHandle, depth))
			return
		}
		l.depth = v
	}
}

func (l *CommandList) SetViewport(viewport renderer.Viewport) {
	vk.CmdSetViewport(l.cb.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
	vk.CmdSetScissor(l.cb.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(viewport.X), Y: int32(viewport.Y)},
		Extent: vk.Extent2D{Width: uint32(viewport.Width), Height: uint32(viewport.Height)},
	}})
}

func (l *CommandList) ClearRenderTarget(view renderer.ViewHandle, color [4]float32) {
	v, ok := l.backend.view(view)
	if !ok {
		l.fail(fmt.Errorf("%w: cleared view %d", ErrUnknownHandle, view))
		return
	}
	if l.framebuffer != nil && l.framebuffer.uses(v.Handle) {
		l.endPass()
	}
	l.colorClears[v] = color
}

func (l *CommandList) ClearDepthStencil(view renderer.ViewHandle, depth float32, stencil uint8) {
	v, ok := l.backend.view(view)
	if !ok {
		l.fail(fmt.Errorf("%w: cleared view %d", ErrUnknownHandle, view))
		return
	}
	if l.framebuffer != nil && l.framebuffer.uses(v.Handle) {
		l.endPass()
	}
	l.depthClears[v] = depthClear{depth: depth, stencil: stencil}
}

func (l *CommandList) BindConstants(slot uint32, buffer renderer.BufferHandle, offset uint64) {
	buf, ok := l.backend.buffer(buffer)
	if !ok {
		l.fail(fmt.Errorf("%w: buffer %d", ErrUnknownHandle, buffer))
		return
	}
	if !l.bindings.bindConstants(slot, buf, offset) {
		l.fail(fmt.Errorf("constant slot %d out of range", slot))
	}
}

func (l *CommandList) BindTexture(slot uint32, view renderer.ViewHandle) {
	v, ok := l.backend.view(view)
	if !ok {
		l.fail(fmt.Errorf("%w: texture view %d", ErrUnknownHandle, view))
		return
	}
	if !l.bindings.bindTexture(slot, v) {
		l.fail(fmt.Errorf("texture slot %d out of range", slot))
	}
}

// DrawMesh draws the index range of a submesh; the shaders fetch vertices
// themselves.
func (l *CommandList) DrawMesh(mesh *resources.Mesh, submesh int, instances uint32) {
	if mesh == nil || submesh < 0 || submesh >= mesh.SubMeshCount() {
		l.fail(fmt.Errorf("draw of missing submesh %d", submesh))
		return
	}
	if !l.prepareDraw() {
		return
	}
	sub := mesh.SubMeshes[submesh]
	vk.CmdDraw(l.cb.Handle, sub.IndexCount, instances, sub.IndexStart, 0)
}

func (l *CommandList) Draw(vertexCount, instanceCount uint32) {
	if !l.prepareDraw() {
		return
	}
	vk.CmdDraw(l.cb.Handle, vertexCount, instanceCount, 0, 0)
}

func (l *CommandList) prepareDraw() bool {
	if l.pipeline == nil {
		l.fail(ErrNoPipeline)
		return false
	}
	if !l.beginPass() {
		return false
	}
	if !l.bindings.dirty {
		return true
	}
	set, err := allocateDescriptorSet(l.backend.context, l.descriptorPool, l.backend.setLayout)
	if err != nil {
		l.fail(err)
		return false
	}
	writes := l.bindings.writes(set, l.backend.sampler)
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(l.backend.context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	vk.CmdBindDescriptorSets(l.cb.Handle, vk.PipelineBindPointGraphics, l.pipeline.PipelineLayout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
	l.bindings.dirty = false
	return true
}

// passKey describes the bound targets and which of them have a pending clear.
func (l *CommandList) passKey() renderPassKey {
	var key renderPassKey
	key.colorCount = len(l.colors)
	for i, v := range l.colors {
		key.colors[i] = v.Format
		if _, ok := l.colorClears[v]; ok {
			key.colorClear |= 1 << i
		}
	}
	if l.depth != nil {
		key.depth = l.depth.Format
		key.depthReadOnly = l.depth.Desc.Kind == framegraph.ViewDepthStencilReadOnly
		_, key.depthClear = l.depthClears[l.depth]
	}
	return key
}

func (l *CommandList) beginPass() bool {
	if l.renderPass != nil {
		return true
	}
	if len(l.colors) == 0 && l.depth == nil {
		l.fail(ErrNoRenderTargets)
		return false
	}
	key := l.passKey()
	rp, err := l.backend.renderPassFor(key)
	if err != nil {
		l.fail(err)
		return false
	}
	attachments := append([]*VulkanImageView(nil), l.colors...)
	if l.depth != nil {
		attachments = append(attachments, l.depth)
	}
	fb, err := l.backend.framebufferFor(rp, attachments)
	if err != nil {
		l.fail(err)
		return false
	}

	clearValues := make([]vk.ClearValue, len(attachments))
	for i, v := range l.colors {
		if c, ok := l.colorClears[v]; ok {
			clearValues[i] = vk.NewClearValue(c[:])
			delete(l.colorClears, v)
		}
	}
	if l.depth != nil {
		if c, ok := l.depthClears[l.depth]; ok {
			clearValues[len(l.colors)] = vk.NewClearDepthStencil(c.depth, uint32(c.stencil))
			delete(l.depthClears, l.depth)
		}
	}
	rp.Begin(l.cb, fb, clearValues)
	l.renderPass = rp
	l.framebuffer = fb
	return true
}

func (l *CommandList) endPass() {
	if l.renderPass == nil {
		return
	}
	l.renderPass.End(l.cb)
	l.renderPass = nil
	l.framebuffer = nil
}

// flushPass closes the open pass. Clears pending on the bound targets are
// executed by an empty pass so they are not lost.
func (l *CommandList) flushPass() {
	if l.renderPass == nil && l.hasPendingClears() {
		l.beginPass()
	}
	l.endPass()
}

func (l *CommandList) hasPendingClears() bool {
	for _, v := range l.colors {
		if _, ok := l.colorClears[v]; ok {
			return true
		}
	}
	if l.depth != nil {
		if _, ok := l.depthClears[l.depth]; ok {
			return true
		}
	}
	return false
}

func (l *CommandList) destroy() {
	context := l.backend.context
	if l.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, l.descriptorPool, context.Allocator)
		l.descriptorPool = vk.NullDescriptorPool
	}
	if l.cb.Handle != nil {
		l.cb.Free(context, context.Device.GraphicsCommandPool)
	}
}

var _ renderer.CommandList = (*CommandList)(nil)
