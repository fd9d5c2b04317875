// Package vulkan is an offscreen Vulkan backend for the render graph. Frames
// are rendered into images owned by the resource pool and read back on
// request; there is no surface or swapchain.
package vulkan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

var (
	ErrUnknownHandle = errors.New("unknown handle")
	ErrShutdown      = errors.New("backend is shut down")
)

type Options struct {
	AppName string
	// Debug enables the validation layer when it is installed.
	Debug bool
	// ShaderDir holds the SPIR-V binaries named by ShaderFileName.
	ShaderDir string
}

type Backend struct {
	mutex   sync.Mutex
	context *VulkanContext
	opts    Options
	ids     *core.IdentifierPool

	images       map[framegraph.Handle]*VulkanImage
	views        map[renderer.ViewHandle]*VulkanImageView
	pipelines    map[renderer.PipelineHandle]*VulkanPipeline
	pipelineByID map[renderer.PipelineDesc]renderer.PipelineHandle
	buffers      map[renderer.BufferHandle]*VulkanBuffer
	renderPasses map[renderPassKey]*VulkanRenderpass
	framebuffers map[framebufferKey]*VulkanFramebuffer
	lists        []*CommandList

	setLayout      vk.DescriptorSetLayout
	pipelineLayout vk.PipelineLayout
	sampler        vk.Sampler

	fence    *QueueFence
	signaled uint64
	shutdown bool
}

func New(opts Options) (*Backend, error) {
	if opts.AppName == "" {
		opts.AppName = "anima"
	}
	vc, err := NewVulkanContext(opts.AppName, opts.Debug)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		context:      vc,
		opts:         opts,
		ids:          core.NewIdentifierPool(),
		images:       make(map[framegraph.Handle]*VulkanImage),
		views:        make(map[renderer.ViewHandle]*VulkanImageView),
		pipelines:    make(map[renderer.PipelineHandle]*VulkanPipeline),
		pipelineByID: make(map[renderer.PipelineDesc]renderer.PipelineHandle),
		buffers:      make(map[renderer.BufferHandle]*VulkanBuffer),
		renderPasses: make(map[renderPassKey]*VulkanRenderpass),
		framebuffers: make(map[framebufferKey]*VulkanFramebuffer),
		fence:        NewQueueFence(vc),
	}
	if b.setLayout, err = createDescriptorSetLayout(vc); err != nil {
		vc.Destroy()
		return nil, err
	}
	if b.pipelineLayout, err = createPipelineLayout(vc, b.setLayout); err != nil {
		vk.DestroyDescriptorSetLayout(vc.Device.LogicalDevice, b.setLayout, vc.Allocator)
		vc.Destroy()
		return nil, err
	}
	if b.sampler, err = createSampler(vc); err != nil {
		vk.DestroyPipelineLayout(vc.Device.LogicalDevice, b.pipelineLayout, vc.Allocator)
		vk.DestroyDescriptorSetLayout(vc.Device.LogicalDevice, b.setLayout, vc.Allocator)
		vc.Destroy()
		return nil, err
	}
	core.LogInfo("vulkan backend running on %s", vc.Device.Name)
	return b, nil
}

func (b *Backend) Name() string {
	return "vulkan"
}

// DeviceName is the name of the physical device in use.
func (b *Backend) DeviceName() string {
	return b.context.Device.Name
}

func (b *Backend) image(h framegraph.Handle) (*VulkanImage, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	img, ok := b.images[h]
	return img, ok
}

func (b *Backend) view(h renderer.ViewHandle) (*VulkanImageView, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	v, ok := b.views[h]
	return v, ok
}

func (b *Backend) pipeline(h renderer.PipelineHandle) (*VulkanPipeline, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	p, ok := b.pipelines[h]
	return p, ok
}

func (b *Backend) buffer(h renderer.BufferHandle) (*VulkanBuffer, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	buf, ok := b.buffers[h]
	return buf, ok
}

func (b *Backend) renderPassFor(key renderPassKey) (*VulkanRenderpass, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if rp, ok := b.renderPasses[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(b.context, key)
	if err != nil {
		return nil, err
	}
	b.renderPasses[key] = rp
	return rp, nil
}

// framebufferFor returns a framebuffer over views, sized to the smallest of them.
func (b *Backend) framebufferFor(rp *VulkanRenderpass, views []*VulkanImageView) (*VulkanFramebuffer, error) {
	key := framebufferKey{renderPass: rp.Handle, count: len(views)}
	width, height := uint32(math.MaxUint32), uint32(math.MaxUint32)
	handles := make([]vk.ImageView, len(views))
	for i, v := range views {
		key.attachments[i] = v.Handle
		handles[i] = v.Handle
		width = min(width, v.Width)
		height = min(height, v.Height)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if fb, ok := b.framebuffers[key]; ok {
		return fb, nil
	}
	fb, err := FramebufferCreate(b.context, rp, width, height, handles)
	if err != nil {
		return nil, err
	}
	b.framebuffers[key] = fb
	return fb, nil
}

// transition moves img between states outside of any frame and waits for it.
func (b *Backend) transition(img *VulkanImage, before, after framegraph.ResourceState) error {
	if before == after {
		return nil
	}
	cb, err := AllocateAndBeginSingleUse(b.context)
	if err != nil {
		return err
	}
	barrier := img.barrier(before, after)
	vk.CmdPipelineBarrier(cb.Handle, stateStages(before), stateStages(after), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return cb.EndSingleUse(b.context)
}

func (b *Backend) CreateResource(label string, desc framegraph.TextureDesc, initial framegraph.ResourceState) (framegraph.Handle, error) {
	b.mutex.Lock()
	if b.shutdown {
		b.mutex.Unlock()
		return 0, ErrShutdown
	}
	b.mutex.Unlock()

	img, err := NewImage(b.context, label, desc)
	if err != nil {
		return 0, err
	}
	if err := b.transition(img, framegraph.StateUndefined, initial); err != nil {
		img.Destroy(b.context)
		return 0, fmt.Errorf("image '%s': %w", label, err)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	h := framegraph.Handle(b.ids.Acquire(label))
	b.images[h] = img
	return h, nil
}

func (b *Backend) DestroyResource(resource framegraph.Handle) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	img, ok := b.images[resource]
	if !ok {
		return fmt.Errorf("%w: resource %d", ErrUnknownHandle, resource)
	}
	img.Destroy(b.context)
	delete(b.images, resource)
	return b.ids.Release(uint64(resource))
}

// CreateTextureCube uploads the six faces as RGBA32F layers and leaves the
// image readable by pixel shaders.
func (b *Backend) CreateTextureCube(label string, cube *resources.TextureCube) (framegraph.Handle, error) {
	if cube == nil || cube.Size <= 0 {
		return 0, fmt.Errorf("%w: no cube for '%s'", resources.ErrInvalidImage, label)
	}
	size := uint32(cube.Size)
	desc := framegraph.TextureCube(size, 1, gputypes.TextureFormatRGBA32Float,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)

	faceBytes := uint64(size) * uint64(size) * 16
	staging, err := NewBuffer(b.context, label+" staging", faceBytes*6, vk.BufferUsageTransferSrcBit)
	if err != nil {
		return 0, err
	}
	defer staging.Destroy(b.context)
	for f, face := range cube.Faces {
		if face == nil || face.Width != cube.Size || face.Height != cube.Size {
			return 0, fmt.Errorf("%w: face %s of '%s'", resources.ErrInvalidImage, resources.CubeFace(f), label)
		}
		if err := staging.Write(uint64(f)*faceBytes, rgba32f(face)); err != nil {
			return 0, err
		}
	}

	img, err := NewImage(b.context, label, desc)
	if err != nil {
		return 0, err
	}
	cb, err := AllocateAndBeginSingleUse(b.context)
	if err != nil {
		img.Destroy(b.context)
		return 0, err
	}
	toCopy := img.barrier(framegraph.StateUndefined, framegraph.StateCopyDest)
	vk.CmdPipelineBarrier(cb.Handle, stateStages(framegraph.StateUndefined), stateStages(framegraph.StateCopyDest), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toCopy})
	regions := make([]vk.BufferImageCopy, 6)
	for f := range regions {
		regions[f] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(uint64(f) * faceBytes),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: uint32(f),
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{Width: size, Height: size, Depth: 1},
		}
	}
	vk.CmdCopyBufferToImage(cb.Handle, staging.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)
	toRead := img.barrier(framegraph.StateCopyDest, framegraph.StatePixelShaderResource)
	vk.CmdPipelineBarrier(cb.Handle, stateStages(framegraph.StateCopyDest), stateStages(framegraph.StatePixelShaderResource), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toRead})
	if err := cb.EndSingleUse(b.context); err != nil {
		img.Destroy(b.context)
		return 0, fmt.Errorf("cube '%s': %w", label, err)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	h := framegraph.Handle(b.ids.Acquire(label))
	b.images[h] = img
	return h, nil
}

// rgba32f expands an image to four little endian float32 channels; missing
// alpha is opaque.
func rgba32f(img *resources.Image) []byte {
	out := make([]byte, img.Width*img.Height*16)
	for i := 0; i < img.Width*img.Height; i++ {
		for c := 0; c < 4; c++ {
			v := float32(0)
			switch {
			case c < img.Channels:
				v = img.Pix[i*img.Channels+c]
			case c == 3:
				v = 1
			}
			binary.LittleEndian.PutUint32(out[(i*4+c)*4:], math.Float32bits(v))
		}
	}
	return out
}

func (b *Backend) CreateView(resource framegraph.Handle, desc framegraph.ViewDesc) (renderer.ViewHandle, error) {
	img, ok := b.image(resource)
	if !ok {
		return 0, fmt.Errorf("%w: resource %d", ErrUnknownHandle, resource)
	}
	v, err := NewImageView(b.context, img, desc)
	if err != nil {
		return 0, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	h := renderer.ViewHandle(b.ids.Acquire(desc))
	b.views[h] = v
	return h, nil
}

// DestroyView also drops the framebuffers the view is attached to.
func (b *Backend) DestroyView(view renderer.ViewHandle) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	v, ok := b.views[view]
	if !ok {
		return fmt.Errorf("%w: view %d", ErrUnknownHandle, view)
	}
	for key, fb := range b.framebuffers {
		if fb.uses(v.Handle) {
			fb.Destroy(b.context)
			delete(b.framebuffers, key)
		}
	}
	v.Destroy(b.context)
	delete(b.views, view)
	return b.ids.Release(uint64(view))
}

// CreatePipeline loads the vertex and fragment SPIR-V of the shader pass and
// builds a pipeline for the described targets. Identical descriptions share
// one pipeline.
func (b *Backend) CreatePipeline(desc renderer.PipelineDesc) (renderer.PipelineHandle, error) {
	if desc.Shader == nil {
		return 0, errors.New("pipeline without shader")
	}
	b.mutex.Lock()
	if h, ok := b.pipelineByID[desc]; ok {
		b.mutex.Unlock()
		return h, nil
	}
	b.mutex.Unlock()

	key := renderPassKey{colorCount: desc.RenderTargetCount}
	if desc.RenderTargetCount > maxColorAttachments {
		return 0, fmt.Errorf("pipeline '%s' wants %d render targets, at most %d are supported", desc.Shader.Name, desc.RenderTargetCount, maxColorAttachments)
	}
	if desc.RenderTargetCount > 0 {
		format, err := vulkanFormat(desc.RenderTargetFormat)
		if err != nil {
			return 0, err
		}
		for i := 0; i < desc.RenderTargetCount; i++ {
			key.colors[i] = format
		}
	}
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		format, err := vulkanFormat(desc.DepthFormat)
		if err != nil {
			return 0, err
		}
		key.depth = format
	}
	rp, err := b.renderPassFor(key.compatible())
	if err != nil {
		return 0, err
	}

	vert, err := NewShaderModule(b.context, b.opts.ShaderDir, desc.Shader, desc.Pass, ShaderStageVertex)
	if err != nil {
		return 0, err
	}
	defer vert.Destroy(b.context)
	frag, err := NewShaderModule(b.context, b.opts.ShaderDir, desc.Shader, desc.Pass, ShaderStageFragment)
	if err != nil {
		return 0, err
	}
	defer frag.Destroy(b.context)

	p, err := NewGraphicsPipeline(b.context, &VulkanPipelineConfig{
		Renderpass: rp,
		Stages:     []vk.PipelineShaderStageCreateInfo{vert.ShaderStageCreateInfo, frag.ShaderStageCreateInfo},
		Layout:     b.pipelineLayout,
		Tags:       passTags(desc.Shader, desc.Pass),
	})
	if err != nil {
		return 0, fmt.Errorf("pipeline '%s' pass %d: %w", desc.Shader.Name, desc.Pass, err)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	h := renderer.PipelineHandle(b.ids.Acquire(desc))
	b.pipelines[h] = p
	b.pipelineByID[desc] = h
	return h, nil
}

func (b *Backend) CreateBuffer(label string, size uint64) (renderer.BufferHandle, error) {
	buf, err := NewBuffer(b.context, label, size, vk.BufferUsageUniformBufferBit)
	if err != nil {
		return 0, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	h := renderer.BufferHandle(b.ids.Acquire(label))
	b.buffers[h] = buf
	return h, nil
}

func (b *Backend) WriteBuffer(buffer renderer.BufferHandle, offset uint64, data []byte) error {
	buf, ok := b.buffer(buffer)
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownHandle, buffer)
	}
	return buf.Write(offset, data)
}

func (b *Backend) DestroyBuffer(buffer renderer.BufferHandle) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	buf, ok := b.buffers[buffer]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownHandle, buffer)
	}
	buf.Destroy(b.context)
	delete(b.buffers, buffer)
	return b.ids.Release(uint64(buffer))
}

func (b *Backend) NewCommandList() (renderer.CommandList, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.shutdown {
		return nil, ErrShutdown
	}
	cl, err := newCommandList(b, len(b.lists))
	if err != nil {
		return nil, err
	}
	b.lists = append(b.lists, cl)
	return cl, nil
}

// Submit hands the lists to the graphics queue in one batch.
func (b *Backend) Submit(lists ...renderer.CommandList) error {
	b.mutex.Lock()
	shutdown := b.shutdown
	b.mutex.Unlock()
	if shutdown {
		return ErrShutdown
	}
	if len(lists) == 0 {
		return nil
	}
	handles := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok || cl.backend != b {
			return fmt.Errorf("command list %T does not belong to the vulkan backend", l)
		}
		if cl.recording {
			return fmt.Errorf("submit of command list %d: %w", cl.id, errors.New("still recording"))
		}
		handles = append(handles, cl.cb.Handle)
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}
	err := b.context.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(b.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence))
	})
	if err != nil {
		return err
	}
	for _, l := range lists {
		l.(*CommandList).cb.UpdateSubmitted()
	}
	return nil
}

// Signal submits an empty batch carrying a fence; queue order makes it
// signal after everything submitted before it.
func (b *Backend) Signal() (uint64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.shutdown {
		return 0, ErrShutdown
	}
	fence, err := b.fence.acquire()
	if err != nil {
		return 0, err
	}
	submitInfo := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
	err = b.context.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(b.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	})
	if err != nil {
		b.fence.release(fence)
		return 0, err
	}
	b.signaled++
	b.fence.track(b.signaled, fence)
	return b.signaled, nil
}

func (b *Backend) Fence() renderer.Fence {
	return b.fence
}

func (b *Backend) WaitIdle(ctx context.Context) error {
	b.mutex.Lock()
	value := b.signaled
	b.mutex.Unlock()
	return b.fence.Wait(ctx, value)
}

// ReadTexture copies mip 0, layer 0 of a color texture that is currently in
// state back to the CPU, tightly packed. The texture is returned to state.
func (b *Backend) ReadTexture(resource framegraph.Handle, state framegraph.ResourceState) ([]byte, error) {
	img, ok := b.image(resource)
	if !ok {
		return nil, fmt.Errorf("%w: resource %d", ErrUnknownHandle, resource)
	}
	texel := texelSize(img.Desc.Format)
	if texel == 0 {
		return nil, fmt.Errorf("%w: cannot read back %s", ErrUnsupportedFormat, img.Desc.Format)
	}
	size := uint64(img.Desc.Width) * uint64(img.Desc.Height) * texel
	staging, err := NewBuffer(b.context, img.Label+" readback", size, vk.BufferUsageTransferDstBit)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(b.context)

	cb, err := AllocateAndBeginSingleUse(b.context)
	if err != nil {
		return nil, err
	}
	if state != framegraph.StateCopySource {
		toCopy := img.barrier(state, framegraph.StateCopySource)
		vk.CmdPipelineBarrier(cb.Handle, stateStages(state), stateStages(framegraph.StateCopySource), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toCopy})
	}
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: img.Desc.Width, Height: img.Desc.Height, Depth: 1},
	}
	vk.CmdCopyImageToBuffer(cb.Handle, img.Handle, vk.ImageLayoutTransferSrcOptimal, staging.Handle, 1, []vk.BufferImageCopy{region})
	if state != framegraph.StateCopySource {
		back := img.barrier(framegraph.StateCopySource, state)
		vk.CmdPipelineBarrier(cb.Handle, stateStages(framegraph.StateCopySource), stateStages(state), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{back})
	}
	if err := cb.EndSingleUse(b.context); err != nil {
		return nil, fmt.Errorf("readback of '%s': %w", img.Label, err)
	}
	return staging.Read(), nil
}

// Shutdown waits for the device and releases everything the backend created.
func (b *Backend) Shutdown() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.shutdown {
		return nil
	}
	b.shutdown = true
	if err := b.context.Device.WaitIdle(); err != nil {
		core.LogWarn("vulkan device did not go idle on shutdown: %s", err)
	}

	for _, l := range b.lists {
		l.destroy()
	}
	for _, fb := range b.framebuffers {
		fb.Destroy(b.context)
	}
	for _, p := range b.pipelines {
		p.Destroy(b.context)
	}
	for _, rp := range b.renderPasses {
		rp.Destroy(b.context)
	}
	for _, v := range b.views {
		v.Destroy(b.context)
	}
	if n := len(b.images); n > 0 {
		core.LogDebug("vulkan backend released %d live resources on shutdown", n)
	}
	for _, img := range b.images {
		img.Destroy(b.context)
	}
	for _, buf := range b.buffers {
		buf.Destroy(b.context)
	}
	b.lists = nil
	b.framebuffers = make(map[framebufferKey]*VulkanFramebuffer)
	b.pipelines = make(map[renderer.PipelineHandle]*VulkanPipeline)
	b.pipelineByID = make(map[renderer.PipelineDesc]renderer.PipelineHandle)
	b.renderPasses = make(map[renderPassKey]*VulkanRenderpass)
	b.views = make(map[renderer.ViewHandle]*VulkanImageView)
	b.images = make(map[framegraph.Handle]*VulkanImage)
	b.buffers = make(map[renderer.BufferHandle]*VulkanBuffer)

	b.fence.Destroy()
	device := b.context.Device.LogicalDevice
	vk.DestroySampler(device, b.sampler, b.context.Allocator)
	vk.DestroyPipelineLayout(device, b.pipelineLayout, b.context.Allocator)
	vk.DestroyDescriptorSetLayout(device, b.setLayout, b.context.Allocator)
	b.context.Destroy()
	return nil
}

var _ renderer.Backend = (*Backend)(nil)
