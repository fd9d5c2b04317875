package pipeline

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
)

// PSOCache creates each pipeline state object once per distinct description.
type PSOCache struct {
	mutex   sync.Mutex
	backend renderer.Backend
	entries map[renderer.PipelineDesc]renderer.PipelineHandle
	hits    uint64
}

func NewPSOCache(backend renderer.Backend) *PSOCache {
	return &PSOCache{
		backend: backend,
		entries: make(map[renderer.PipelineDesc]renderer.PipelineHandle),
	}
}

func (c *PSOCache) Pipeline(desc renderer.PipelineDesc) (renderer.PipelineHandle, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if pso, ok := c.entries[desc]; ok {
		c.hits++
		return pso, nil
	}
	pso, err := c.backend.CreatePipeline(desc)
	if err != nil {
		err = fmt.Errorf("failed to create pipeline for shader '%s' pass %d: %w", desc.Shader.Name, desc.Pass, err)
		core.LogError("%s", err)
		return 0, err
	}
	core.LogDebug("created pipeline for shader '%s' pass %d (%d targets)", desc.Shader.Name, desc.Pass, desc.RenderTargetCount)
	c.entries[desc] = pso
	return pso, nil
}

func (c *PSOCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

func (c *PSOCache) Hits() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.hits
}
