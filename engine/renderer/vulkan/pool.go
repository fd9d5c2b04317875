package vulkan

import "sync"

type LockGroup string

// Vulkan requires external synchronization of queues, command pools and
// descriptor pools; each group guards one of them.
const (
	QueueManagement       LockGroup = "queue_management"
	CommandPoolManagement LockGroup = "command_pool_management"
	ResourceManagement    LockGroup = "resource_management"
	PipelineManagement    LockGroup = "pipeline_management"
)

type VulkanLockPool struct {
	mutex sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

func (lp *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	lp.mutex.Lock()
	l, ok := lp.locks[group]
	if !ok {
		l = &sync.Mutex{}
		lp.locks[group] = l
	}
	lp.mutex.Unlock()
	return l
}

// SafeCall runs fn while holding the lock of group.
func (lp *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
