package graph

import "time"

// Options configures an Engine. All fields have workable zero-value
// defaults (see New), following the teacher's "Options struct +
// functional option" dual API.
type Options struct {
	// MaxSteps caps the number of node dispatches in a single Execute
	// call, as a loop-safety net. 0 means no limit.
	MaxSteps int

	// MaxConcurrentNodes limits how many nodes execute in parallel.
	// Default: 8.
	MaxConcurrentNodes int

	// QueueDepth sets the Frontier's bounded capacity. Default: 1024.
	QueueDepth int

	// BackpressureTimeout bounds how long Enqueue blocks when the
	// Frontier is full before Execute fails with ErrBackpressureTimeout.
	// Default: 30s.
	BackpressureTimeout time.Duration

	// DefaultNodeTimeout is applied to nodes without a PolicyProvider
	// override. Default: 30s.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds total Execute duration. Default: 10m. 0
	// disables the budget.
	RunWallClockBudget time.Duration

	// Metrics, if set, receives Prometheus instrumentation for the run.
	Metrics *PrometheusMetrics

	// CostTracker is stored with the options; the engine itself does not
	// read it. llm_generator records LLM token cost through the tracker
	// passed in agent.Deps.
	CostTracker *CostTracker
}

// Option is a functional option for configuring an Engine, passed to New.
type Option func(*Options)

func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

func WithMaxConcurrent(n int) Option {
	return func(o *Options) { o.MaxConcurrentNodes = n }
}

func WithQueueDepth(n int) Option {
	return func(o *Options) { o.QueueDepth = n }
}

func WithBackpressureTimeout(d time.Duration) Option {
	return func(o *Options) { o.BackpressureTimeout = d }
}

func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

func WithRunWallClockBudget(d time.Duration) Option {
	return func(o *Options) { o.RunWallClockBudget = d }
}

func WithMetrics(m *PrometheusMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func WithCostTracker(t *CostTracker) Option {
	return func(o *Options) { o.CostTracker = t }
}

func defaultOptions() Options {
	return Options{
		MaxConcurrentNodes:  8,
		QueueDepth:          1024,
		BackpressureTimeout: 30 * time.Second,
		DefaultNodeTimeout:  30 * time.Second,
		RunWallClockBudget:  10 * time.Minute,
	}
}
