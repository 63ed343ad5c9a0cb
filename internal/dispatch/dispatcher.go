// Package dispatch implements the generic fetch/execute loop shared by
// the orchestrator and activity dispatchers, and the host that couples
// both of them to the traffic signal.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/log"
	"github.com/cuemby/durabletask-sidecar/internal/metrics"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
	"github.com/rs/zerolog"
)

// throttleLogInterval rate-limits the "blocked on concurrency/traffic
// signal" log line.
const throttleLogInterval = time.Minute

// stopPollInterval is how often Stop polls the in-flight counter while
// waiting for it to drain.
const stopPollInterval = 200 * time.Millisecond

// Ops is the set of operations a concrete dispatcher supplies for its
// work-item type T.
type Ops[T any] struct {
	// Name labels this dispatcher in logs and metrics ("orchestrator" |
	// "activity").
	Name string

	MaxConcurrency func() int

	// Fetch blocks (respecting ctx) until a work item is available, ctx
	// is cancelled, or an error occurs. ok is false with a nil error when
	// ctx was cancelled or no work arrived before ctx ended.
	Fetch func(ctx context.Context) (item T, ok bool, err error)

	Execute func(ctx context.Context, item T) error
	Abandon func(ctx context.Context, item T)
	Release func(ctx context.Context, item T)

	// BackoffAfterFetchError returns how long to sleep after a fetch
	// error before retrying.
	BackoffAfterFetchError func(err error) time.Duration
}

// Dispatcher runs one fetch loop and up to MaxConcurrency() concurrent
// execution tasks for work-item type T.
type Dispatcher[T any] struct {
	ops     Ops[T]
	traffic *signal.Signal
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight int
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New constructs a Dispatcher, not yet started.
func New[T any](ops Ops[T], traffic *signal.Signal) *Dispatcher[T] {
	return &Dispatcher[T]{
		ops:     ops,
		traffic: traffic,
		logger:  log.WithComponent("dispatcher." + ops.Name),
	}
}

// InFlight reports the current number of executing work items.
func (d *Dispatcher[T]) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Start spawns the fetch loop. Re-entrant after Stop.
func (d *Dispatcher[T]) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancel = cancel
	d.loopDone = make(chan struct{})
	loopDone := d.loopDone
	d.mu.Unlock()

	go func() {
		defer close(loopDone)
		d.loop(ctx)
	}()
}

// Stop cancels the fetch loop and waits for in-flight executions to
// drain, bounded by ctx (the caller supplies the grace-period deadline).
func (d *Dispatcher[T]) Stop(ctx context.Context) {
	d.mu.Lock()
	cancel := d.cancel
	loopDone := d.loopDone
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-loopDone

	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	for {
		if d.InFlight() == 0 {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			d.logger.Warn().Msg("stop grace period elapsed with work items still in flight")
			return
		}
	}
}

func (d *Dispatcher[T]) loop(ctx context.Context) {
	var lastThrottleLog time.Time
	for {
		if !d.waitForAllClear(ctx, &lastThrottleLog) {
			return
		}

		timer := metrics.NewTimer()
		item, ok, err := d.ops.Fetch(ctx)
		timer.ObserveDurationVec(metrics.FetchDuration, d.ops.Name)

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			metrics.FetchErrorsTotal.WithLabelValues(d.ops.Name).Inc()
			d.logger.Error().Err(err).Msg("fetch failed")
			d.sleep(ctx, d.ops.BackoffAfterFetchError(err))
			continue
		}
		if !ok {
			continue
		}

		d.incInFlight()
		go d.executeItem(item)
	}
}

// waitForAllClear blocks while at-capacity or the traffic signal is
// reset. Returns false iff ctx was cancelled while waiting.
func (d *Dispatcher[T]) waitForAllClear(ctx context.Context, lastThrottleLog *time.Time) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		atCapacity := d.InFlight() >= d.ops.MaxConcurrency()
		trafficClear := d.traffic.IsSet()
		if !atCapacity && trafficClear {
			return true
		}

		if time.Since(*lastThrottleLog) >= throttleLogInterval {
			*lastThrottleLog = time.Now()
			switch {
			case atCapacity:
				d.logger.Info().Msg("throttled: at max concurrency")
			default:
				d.logger.Info().Msg("throttled: waiting for worker connection")
			}
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (d *Dispatcher[T]) executeItem(item T) {
	metrics.DispatcherInFlight.WithLabelValues(d.ops.Name).Set(float64(d.InFlight()))
	defer func() {
		d.decInFlight()
		metrics.DispatcherInFlight.WithLabelValues(d.ops.Name).Set(float64(d.InFlight()))
	}()

	ctx := context.Background()
	timer := metrics.NewTimer()
	err := d.ops.Execute(ctx, item)
	timer.ObserveDurationVec(metrics.ExecuteDuration, d.ops.Name)

	if err != nil {
		d.logger.Error().Err(err).Msg("execute failed, abandoning")
		metrics.AbandonedTotal.WithLabelValues(d.ops.Name).Inc()
		safeCall(func() { d.ops.Abandon(ctx, item) }, d.logger, "abandon failed")
	}
	safeCall(func() { d.ops.Release(ctx, item) }, d.logger, "release failed")
}

func safeCall(fn func(), logger zerolog.Logger, msgOnPanic string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg(msgOnPanic)
		}
	}()
	fn()
}

func (d *Dispatcher[T]) incInFlight() {
	d.mu.Lock()
	d.inFlight++
	d.mu.Unlock()
}

func (d *Dispatcher[T]) decInFlight() {
	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
}

func (d *Dispatcher[T]) sleep(ctx context.Context, dur time.Duration) {
	select {
	case <-time.After(dur):
	case <-ctx.Done():
	}
}
