package core

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spaghettifunk/anima-rendergraph/engine/containers"
)

const AVG_COUNT int = 30

// Metrics keeps a rolling frame-time average and mirrors it into a private
// prometheus registry.
type Metrics struct {
	mutex sync.Mutex

	frameTimes         *containers.RingQueue[float64]
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	registry     *prometheus.Registry
	frameSeconds prometheus.Histogram
	fpsGauge     prometheus.Gauge
	framesTotal  prometheus.Counter
	transitions  prometheus.Counter
	poolHits     prometheus.Counter
	poolMisses   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		frameTimes: containers.NewRingQueue[float64](AVG_COUNT),
		registry:   prometheus.NewRegistry(),
		frameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "anima",
			Name:      "frame_duration_seconds",
			Help:      "CPU time spent building and submitting a frame.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		fpsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anima",
			Name:      "frames_per_second",
			Help:      "Frames completed during the last second.",
		}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anima",
			Name:      "frames_total",
			Help:      "Frames submitted since start.",
		}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anima",
			Name:      "resource_transitions_total",
			Help:      "Resource state transitions recorded by the executor.",
		}),
		poolHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anima",
			Name:      "resource_pool_hits_total",
			Help:      "Temporal resources served from the pool.",
		}),
		poolMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anima",
			Name:      "resource_pool_misses_total",
			Help:      "Temporal resources created because the pool had none.",
		}),
	}
	m.registry.MustRegister(m.frameSeconds, m.fpsGauge, m.framesTotal, m.transitions, m.poolHits, m.poolMisses)
	return m
}

// Update records one frame.
func (m *Metrics) Update(frameElapsed time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	frameMS := float64(frameElapsed) / float64(time.Millisecond)
	if m.frameTimes.IsFull() {
		_, _ = m.frameTimes.Dequeue()
	}
	_ = m.frameTimes.Enqueue(frameMS)

	sum := 0.0
	m.frameTimes.Each(func(v float64) { sum += v })
	m.msAvg = sum / float64(m.frameTimes.Len())

	// Calculate Frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++

	m.frameSeconds.Observe(frameElapsed.Seconds())
	m.fpsGauge.Set(m.fps)
	m.framesTotal.Inc()
}

func (m *Metrics) AddTransitions(n int) {
	m.transitions.Add(float64(n))
}

func (m *Metrics) AddPoolStats(hits, misses uint64) {
	m.poolHits.Add(float64(hits))
	m.poolMisses.Add(float64(misses))
}

func (m *Metrics) FPS() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last AVG_COUNT frames.
func (m *Metrics) FrameTime() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.msAvg
}

func (m *Metrics) Frame() (float64, float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.fps, m.msAvg
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
