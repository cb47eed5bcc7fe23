package dumpster

import (
	"context"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dumpster/pkg/collections"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/utils"
)

const tracerName = "github.com/dumpster/pkg/dumpster"

// Default tuning values.
const (
	DefaultDumpsterCapacity = 64
	DefaultTruckThreshold   = 256
	DefaultLiveRatio        = 0.5
)

// Options configures a Collector.
type Options struct {
	// DumpsterCapacity is the shard size at which candidates move to the truck.
	DumpsterCapacity int
	// TruckThreshold is the minimum number of waiting candidates before the
	// default policy starts a pass.
	TruckThreshold int
	// LiveRatio is the number of drops per live allocation the default policy
	// waits for between passes.
	LiveRatio float64
	// Shards is the number of dumpster shards, rounded up to a power of two.
	Shards int
	// Policy overrides the default AdaptivePolicy.
	Policy TriggerPolicy
	// Timing records per-phase durations of every pass.
	Timing bool

	Logger   utils.Logger
	Tracer   trace.Tracer
	Clock    utils.Clock
	Observer Observer
}

// Option mutates Options.
type Option func(*Options)

// WithDumpsterCapacity sets the shard flush size.
func WithDumpsterCapacity(n int) Option {
	return func(o *Options) { o.DumpsterCapacity = n }
}

// WithTruckThreshold sets the minimum candidates for an automatic pass.
func WithTruckThreshold(n int) Option {
	return func(o *Options) { o.TruckThreshold = n }
}

// WithLiveRatio sets the drops-per-live-allocation ratio of automatic passes.
func WithLiveRatio(r float64) Option {
	return func(o *Options) { o.LiveRatio = r }
}

// WithShards sets the number of dumpster shards.
func WithShards(n int) Option {
	return func(o *Options) { o.Shards = n }
}

// WithPolicy replaces the trigger policy. Use Manual to disable automatic
// passes.
func WithPolicy(p TriggerPolicy) Option {
	return func(o *Options) { o.Policy = p }
}

// WithTiming enables per-phase timing of passes.
func WithTiming(enabled bool) Option {
	return func(o *Options) { o.Timing = enabled }
}

// WithLogger sets the collector logger.
func WithLogger(l utils.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithTracer sets the tracer used for pass spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) { o.Tracer = t }
}

// WithClock sets the clock used for pass durations.
func WithClock(c utils.Clock) Option {
	return func(o *Options) { o.Clock = c }
}

// WithObserver registers a hook called after every pass.
func WithObserver(obs Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

func defaultOptions() Options {
	return Options{
		DumpsterCapacity: DefaultDumpsterCapacity,
		TruckThreshold:   DefaultTruckThreshold,
		LiveRatio:        DefaultLiveRatio,
		Shards:           4 * runtime.GOMAXPROCS(0),
	}
}

func (o *Options) normalize() {
	if o.DumpsterCapacity <= 0 {
		o.DumpsterCapacity = DefaultDumpsterCapacity
	}
	if o.TruckThreshold < 0 {
		o.TruckThreshold = 0
	}
	if o.LiveRatio < 0 {
		o.LiveRatio = 0
	}
	if o.Shards <= 0 {
		o.Shards = 4 * runtime.GOMAXPROCS(0)
	}
	o.Shards = 1 << bits.Len(uint(o.Shards-1))
	if o.Policy == nil {
		o.Policy = AdaptivePolicy{MinPending: o.TruckThreshold, LiveRatio: o.LiveRatio}
	}
	if o.Logger == nil {
		o.Logger = utils.GetGlobalLogger()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	if o.Clock == nil {
		o.Clock = utils.NewRealClock()
	}
}

var collectorSeq atomic.Uint64

// Collector owns a set of allocations and reclaims the unreachable cycles
// among them. Handles of different collectors may point at each other, but
// a cycle is only reclaimed when all of its allocations share a collector.
type Collector struct {
	id       uint64
	opts     Options
	policy   TriggerPolicy
	logger   utils.Logger
	tracer   trace.Tracer
	clock    utils.Clock
	observer Observer

	nextID    atomic.Uint64
	shards    []dumpsterShard
	shardMask uint64
	truck     garbageTruck

	passMu    sync.Mutex
	sincePass atomic.Int64
	stats     counters

	foreignWarned atomic.Bool

	indexPool *collections.MapPool[*allocation, int32]
	seenPool  *collections.MapPool[*allocation, struct{}]
}

// NewCollector creates a collector.
func NewCollector(opts ...Option) *Collector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()

	c := &Collector{
		id:        collectorSeq.Add(1),
		opts:      o,
		policy:    o.Policy,
		tracer:    o.Tracer,
		clock:     o.Clock,
		observer:  o.Observer,
		shards:    make([]dumpsterShard, o.Shards),
		shardMask: uint64(o.Shards - 1),
		indexPool: collections.NewMapPool[*allocation, int32](256),
		seenPool:  collections.NewMapPool[*allocation, struct{}](256),
	}
	c.logger = o.Logger.WithField("collector", c.id)
	for i := range c.shards {
		c.shards[i].items = make(map[*allocation]struct{}, o.DumpsterCapacity)
	}
	return c
}

// ID identifies the collector in logs and spans.
func (c *Collector) ID() uint64 {
	return c.id
}

// Options returns the effective configuration.
func (c *Collector) Options() Options {
	return c.opts
}

func (c *Collector) live() int64 {
	return int64(c.stats.created.Load() - c.stats.destroyed.Load())
}

// Pending returns the number of queued candidates, in shards and in the truck.
func (c *Collector) Pending() int {
	n := c.truck.len()
	for i := range c.shards {
		n += c.shards[i].len()
	}
	return n
}

var defaultCollector atomic.Pointer[Collector]

func init() {
	defaultCollector.Store(NewCollector())
}

// Default returns the process-wide collector used by New.
func Default() *Collector {
	return defaultCollector.Load()
}

// SetDefault replaces the default collector and returns the previous one.
//
// Allocations keep the collector they were created with, and a pass never
// follows edges into another collector, so a cycle mixing allocations made
// before and after the switch would never be reclaimed. SetDefault therefore
// panics with an INVALID_INPUT error while the current default still owns
// live allocations. Call it during start-up, before the first New.
func SetDefault(c *Collector) *Collector {
	if c == nil {
		panic(errors.New(errors.CodeInvalidInput, "default collector must not be nil"))
	}
	for {
		prev := defaultCollector.Load()
		if prev == c {
			return prev
		}
		if live := prev.live(); live > 0 {
			panic(errors.Newf(errors.CodeInvalidInput,
				"cannot replace default collector %d: it owns %d live allocations", prev.id, live))
		}
		if defaultCollector.CompareAndSwap(prev, c) {
			return prev
		}
	}
}

// Collect runs a pass on the default collector.
func Collect(ctx context.Context) (PassStats, error) {
	return Default().Collect(ctx)
}
