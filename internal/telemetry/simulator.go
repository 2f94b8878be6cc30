// Package telemetry simulates the fleet metrics shown on the dashboard: a fixed-length window of
// load and token samples driven by a bounded random walk, plus memory and pending task gauges.
package telemetry

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/devilai/devil-console/internal/models"
)

const (
	// DefaultWindowSize is the number of points kept in the series.
	DefaultWindowSize = 21
	// DefaultInterval is both the spacing of the initial points and the tick period.
	DefaultInterval = 2 * time.Second

	minLoad, maxLoad     = 10, 95
	minTokens, maxTokens = 100, 4000
	minMemory, maxMemory = 20.0, 80.0

	loadStep   = 5.0
	tokensStep = 200.0
	memoryStep = 1.0

	initialMemory       = 45.0
	initialPendingTasks = 12

	pendingChangeProbability = 0.2
)

// Snapshot is the dashboard's view of the simulator after a tick.
type Snapshot struct {
	Series       []models.MetricPoint `json:"series"`
	Memory       float64              `json:"memory"`
	PendingTasks int                  `json:"pendingTasks"`
}

// Options configures a Simulator. Zero values fall back to the defaults.
type Options struct {
	WindowSize int
	Interval   time.Duration

	// Rand is the source of randomness. Tests inject a seeded generator.
	Rand *rand.Rand
	// Now returns the current time.
	Now func() time.Time
}

// Simulator owns the synthetic series and gauges. It is not safe for concurrent use, each
// dashboard view owns its own instance.
type Simulator struct {
	windowSize int
	interval   time.Duration
	rnd        *rand.Rand
	now        func() time.Time

	series       []models.MetricPoint
	memory       float64
	pendingTasks int
}

// New creates a Simulator and fills its initial window.
func New(opts Options) *Simulator {
	s := &Simulator{
		windowSize: opts.WindowSize,
		interval:   opts.Interval,
		rnd:        opts.Rand,
		now:        opts.Now,
	}
	if s.windowSize <= 0 {
		s.windowSize = DefaultWindowSize
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.Initialize(s.windowSize)
	return s
}

// Initialize discards the current state and synthesizes windowSize independent points spaced one
// interval apart, the last one stamped now. Gauges return to their starting values.
func (s *Simulator) Initialize(windowSize int) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	s.windowSize = windowSize

	now := s.now()
	s.series = make([]models.MetricPoint, 0, windowSize)
	for i := windowSize - 1; i >= 0; i-- {
		t := now.Add(-time.Duration(i) * s.interval)
		s.series = append(s.series, models.NewMetricPoint(t, 40+s.rnd.IntN(30), 500+s.rnd.IntN(1000)))
	}
	s.memory = initialMemory
	s.pendingTasks = initialPendingTasks
}

// Tick advances the random walk by one step: a new point derived from the last one is appended,
// the oldest is evicted, and both gauges are perturbed.
func (s *Simulator) Tick() Snapshot {
	last := s.series[len(s.series)-1]

	load := clamp(math.Round(float64(last.Load)+s.uniform(loadStep)), minLoad, maxLoad)
	tokens := clamp(math.Round(float64(last.Tokens)+s.uniform(tokensStep)), minTokens, maxTokens)

	next := models.NewMetricPoint(s.now(), int(load), int(tokens))
	s.series = append(s.series[1:], next)

	s.memory = clamp(s.memory+s.uniform(memoryStep), minMemory, maxMemory)

	if s.rnd.Float64() < pendingChangeProbability {
		if s.rnd.Float64() < 0.5 {
			s.pendingTasks++
		} else {
			s.pendingTasks--
		}
	}
	s.pendingTasks = max(0, s.pendingTasks)

	return s.Snapshot()
}

// Snapshot returns a copy of the current state.
func (s *Simulator) Snapshot() Snapshot {
	return Snapshot{
		Series:       slices.Clone(s.series),
		Memory:       s.memory,
		PendingTasks: s.pendingTasks,
	}
}

// Interval is the tick period the simulator was configured with.
func (s *Simulator) Interval() time.Duration {
	return s.interval
}

// uniform returns a value drawn uniformly from [-step, step).
func (s *Simulator) uniform(step float64) float64 {
	return s.rnd.Float64()*2*step - step
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
