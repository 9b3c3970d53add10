package metrictree

type options struct {
	logger       *Logger
	metrics      *Metrics
	store        any // NodeStore[T]
	detach       bool
	globalPivots any // []Item[T]
}

// Option configures Build and Open.
type Option func(*options)

// WithLogger sets the logger for build and query events.
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics records builds and queries into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithStore materializes every node into s as soon as it is built. The
// store's item type must match the tree's.
func WithStore[T any](s NodeStore[T]) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithDetachedChildren makes internal nodes keep only the handles of their
// children, so queries page nodes in from the store. It requires WithStore.
func WithDetachedChildren() Option {
	return func(o *options) {
		o.detach = true
	}
}

// WithGlobalPivots supplies the pivot set used at every level in global
// mode instead of selecting one from the data.
func WithGlobalPivots[T any](pivots []Item[T]) Option {
	return func(o *options) {
		o.globalPivots = pivots
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: NoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
