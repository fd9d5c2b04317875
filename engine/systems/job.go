package systems

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

/** @brief Describes a type of job */
type JobType int

const (
	/** @brief A general job that does not have any specific thread requirements. */
	JobTypeGeneral JobType = 0x02
	/** @brief A resource loading job, e.g. decoding and projecting an environment map. */
	JobTypeResourceLoad JobType = 0x04
)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	Name string
	Type JobType
	/** @brief Invoked on a worker. Required. */
	Run func(ctx context.Context) (interface{}, error)
	/** @brief Invoked with the result when Run succeeds. Optional. */
	OnComplete func(result interface{})
	/** @brief Invoked with the error when Run fails. Optional. */
	OnFailure func(err error)
	/** @brief Invoked after OnComplete or OnFailure. Optional. */
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	mutex      sync.RWMutex
	closed     bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	result, err := job.Run(js.ctx)
	if err != nil {
		core.LogError("job '%s' failed: %s", job.Name, err.Error())
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete(result)
	}

	// Call the completion callback if set
	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run; their context is
 * cancelled so long running ones can stop early.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.closed {
		js.mutex.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mutex.Unlock()

	js.cancel()
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return fmt.Errorf("job '%s' has no Run function", jt.Name)
	}
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.closed {
		return core.ErrShuttingDown
	}
	js.jobQueue <- jt
	return nil
}
