package engine

import (
	"time"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/pipeline"
)

/**
 * @brief The application driven by the engine. Only FnRender is required;
 * it fills the camera and scene partitions of every frame.
 */
type Game struct {
	Config       *core.Config
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func(e *Engine) error
type Update func(e *Engine, delta time.Duration) error
type Render func(e *Engine, in *pipeline.FrameInput) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
