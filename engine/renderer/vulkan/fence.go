package vulkan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
)

var ErrFenceNeverSignaled = errors.New("fence value was never signaled")

// pollTimeout bounds a single vkWaitForFences so waiters can observe
// context cancellation.
const pollTimeout = uint64(1_000_000)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &handle)); err != nil {
		return nil, err
	}
	return &VulkanFence{Handle: handle, IsSignaled: createSignaled}, nil
}

func (vf *VulkanFence) Destroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait reports whether the fence signaled within timeoutNs.
func (vf *VulkanFence) Wait(context *VulkanContext, timeoutNs uint64) (bool, error) {
	if vf.IsSignaled {
		return true, nil
	}
	switch result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs); result {
	case vk.Success:
		vf.IsSignaled = true
		return true, nil
	case vk.Timeout:
		return false, nil
	default:
		return false, check("vkWaitForFences", result)
	}
}

func (vf *VulkanFence) Reset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := check("vkResetFences", vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle})); err != nil {
		return err
	}
	vf.IsSignaled = false
	return nil
}

type pendingSignal struct {
	value uint64
	fence *VulkanFence
}

/**
 * @brief A monotonic progress counter for the graphics queue built from
 * binary fences: every signaled value owns one fence until the GPU reaches it.
 */
type QueueFence struct {
	context   *VulkanContext
	mutex     sync.Mutex
	completed uint64
	pending   []pendingSignal
	free      []*VulkanFence
}

func NewQueueFence(context *VulkanContext) *QueueFence {
	return &QueueFence{context: context}
}

// acquire hands out an unsignaled fence, recycling completed ones.
func (qf *QueueFence) acquire() (*VulkanFence, error) {
	qf.mutex.Lock()
	defer qf.mutex.Unlock()
	if n := len(qf.free); n > 0 {
		f := qf.free[n-1]
		qf.free = qf.free[:n-1]
		return f, nil
	}
	return NewFence(qf.context, false)
}

// track records that fence signals when the queue reaches value. Values must
// be tracked in increasing order.
func (qf *QueueFence) track(value uint64, fence *VulkanFence) {
	qf.mutex.Lock()
	defer qf.mutex.Unlock()
	qf.pending = append(qf.pending, pendingSignal{value: value, fence: fence})
}

// release returns a fence that was acquired but never submitted.
func (qf *QueueFence) release(fence *VulkanFence) {
	qf.mutex.Lock()
	defer qf.mutex.Unlock()
	qf.free = append(qf.free, fence)
}

// poll retires every pending signal the GPU has passed, waiting at most
// timeoutNs on the oldest one. Callers hold the mutex.
func (qf *QueueFence) poll(timeoutNs uint64) error {
	for len(qf.pending) > 0 {
		head := qf.pending[0]
		done, err := head.fence.Wait(qf.context, timeoutNs)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		if err := head.fence.Reset(qf.context); err != nil {
			return err
		}
		qf.completed = head.value
		qf.pending = qf.pending[1:]
		qf.free = append(qf.free, head.fence)
		timeoutNs = 0
	}
	return nil
}

func (qf *QueueFence) CompletedValue() uint64 {
	qf.mutex.Lock()
	defer qf.mutex.Unlock()
	_ = qf.poll(0)
	return qf.completed
}

func (qf *QueueFence) Wait(ctx context.Context, value uint64) error {
	for {
		qf.mutex.Lock()
		if err := qf.poll(pollTimeout); err != nil {
			qf.mutex.Unlock()
			return err
		}
		if qf.completed >= value {
			qf.mutex.Unlock()
			return nil
		}
		if len(qf.pending) == 0 || qf.pending[len(qf.pending)-1].value < value {
			completed := qf.completed
			qf.mutex.Unlock()
			return fmt.Errorf("%w: waiting for %d, completed %d", ErrFenceNeverSignaled, value, completed)
		}
		qf.mutex.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Destroy releases every fence. The queue must be idle.
func (qf *QueueFence) Destroy() {
	qf.mutex.Lock()
	defer qf.mutex.Unlock()
	for _, p := range qf.pending {
		p.fence.Destroy(qf.context)
	}
	for _, f := range qf.free {
		f.Destroy(qf.context)
	}
	qf.pending = nil
	qf.free = nil
}
