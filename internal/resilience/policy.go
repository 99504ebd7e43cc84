// Package resilience provides an adaptive CircuitBreaker plus a
// strict-mode failure policy layered on top of the processor's "keep
// going" default: a driver loop that wants to abort a batch after task
// closures keep failing wraps ProcessTask calls with
// ClosureFailurePolicy instead of reaching into scheduler internals.
package resilience

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
)

// ErrBatchAborted is returned by ClosureFailurePolicy.Drive once the
// circuit breaker trips, meaning the caller asked to stop feeding
// processTask() after closure failures made up too large a share of the
// recent outcomes.
var ErrBatchAborted = errors.New("resilience: batch aborted after repeated task closure failures")

// ClosureFailurePolicy wraps a processor's ProcessTask loop with an
// adaptive circuit breaker over closure-failure outcomes, implementing an
// optional strict mode that aborts the remaining batch. In the processor's
// own default mode, closure failures never stop the batch; this type is
// the layered opt-in, kept outside dag.Processor so the core stays
// failure-policy-agnostic.
type ClosureFailurePolicy struct {
	breaker *CircuitBreaker
}

// NewClosureFailurePolicy builds a policy whose breaker opens once its
// 30-second rolling window holds at least minSamples processTask outcomes
// and the share of closure failures among them reaches the breaker's
// threshold. That threshold starts at failureRate and is adjusted within
// bounds derived from failureRate as outcomes are recorded.
func NewClosureFailurePolicy(minSamples int, failureRate float64) *ClosureFailurePolicy {
	return &ClosureFailurePolicy{
		breaker: NewCircuitBreakerAdaptive(30*time.Second, 6, minSamples, failureRate, 10*time.Second, 1),
	}
}

// Drive repeatedly calls processTask (a caller-supplied func matching
// dag.Processor.ProcessTask's signature) until it returns false or the
// breaker trips, returning ErrBatchAborted in the latter case.
func (p *ClosureFailurePolicy) Drive(processTask func() (bool, error)) error {
	for {
		if !p.breaker.Allow() {
			return ErrBatchAborted
		}
		ok, err := processTask()
		if !ok {
			return nil
		}
		p.breaker.RecordResult(err == nil)
	}
}

// CircuitBreaker is an adaptive circuit breaker that opens based on
// failure rate over a rolling window and supports half-open probes.
type CircuitBreaker struct {
	mu sync.Mutex

	minSamples        int
	failureRateOpen   float64
	halfOpenAfter     time.Duration
	maxHalfOpenProbes int
	adaptive          bool
	minAdaptiveOpen   float64
	maxAdaptiveOpen   float64
	lastEval          time.Time
	evalInterval      time.Duration
	dynamicThreshold  float64

	openedAt       time.Time
	state          breakerState
	window         *slidingWindow
	halfOpenProbes int
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// NewCircuitBreakerAdaptive constructs a breaker using a rolling window of
// size with bucket resolution buckets.
func NewCircuitBreakerAdaptive(windowSize time.Duration, buckets int, minSamples int, failureRateOpen float64, halfOpenAfter time.Duration, maxHalfOpenProbes int) *CircuitBreaker {
	if buckets <= 0 {
		buckets = 1
	}
	return &CircuitBreaker{
		minSamples:        minSamples,
		failureRateOpen:   math.Min(math.Max(failureRateOpen, 0), 1),
		halfOpenAfter:     halfOpenAfter,
		maxHalfOpenProbes: maxHalfOpenProbes,
		state:             stateClosed,
		window:            newSlidingWindow(windowSize, buckets),
		adaptive:          true,
		minAdaptiveOpen:   math.Min(math.Max(failureRateOpen*0.5, 0.05), failureRateOpen),
		maxAdaptiveOpen:   math.Min(0.95, math.Max(failureRateOpen*1.5, failureRateOpen)),
		evalInterval:      5 * time.Second,
		dynamicThreshold:  failureRateOpen,
	}
}

// Allow returns whether a request is permitted.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateOpen:
		if time.Since(c.openedAt) >= c.halfOpenAfter {
			c.state = stateHalfOpen
			c.halfOpenProbes = 0
		} else {
			return false
		}
	case stateHalfOpen:
		if c.halfOpenProbes >= c.maxHalfOpenProbes {
			return false
		}
		c.halfOpenProbes++
	}
	return true
}

// RecordResult records a success or failure outcome.
func (c *CircuitBreaker) RecordResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.add(success)

	if c.adaptive && time.Since(c.lastEval) >= c.evalInterval {
		total, failures := c.window.stats()
		if total > 0 {
			fr := float64(failures) / float64(total)
			if fr > c.failureRateOpen {
				c.dynamicThreshold = math.Max(c.minAdaptiveOpen, c.dynamicThreshold*0.7)
			} else {
				c.dynamicThreshold = math.Min(c.maxAdaptiveOpen, c.dynamicThreshold*1.05)
			}
		}
		c.lastEval = time.Now()
	}

	switch c.state {
	case stateClosed:
		total, failures := c.window.stats()
		if total >= c.minSamples {
			threshold := c.failureRateOpen
			if c.adaptive {
				threshold = c.dynamicThreshold
			}
			if float64(failures)/float64(total) >= threshold {
				c.transitionToOpen()
			}
		}
	case stateHalfOpen:
		if !success {
			c.transitionToOpen()
		} else if c.halfOpenProbes >= c.maxHalfOpenProbes {
			c.reset()
		}
	case stateOpen:
	}
}

func (c *CircuitBreaker) transitionToOpen() {
	meter := otel.GetMeterProvider().Meter("unshacled")
	c.state = stateOpen
	c.openedAt = time.Now()
	counter, _ := meter.Int64Counter("unshacled_resilience_circuit_open_total")
	counter.Add(context.Background(), 1)
}

func (c *CircuitBreaker) reset() {
	meter := otel.GetMeterProvider().Meter("unshacled")
	c.state = stateClosed
	c.openedAt = time.Time{}
	c.window.reset()
	counter, _ := meter.Int64Counter("unshacled_resilience_circuit_closed_total")
	counter.Add(context.Background(), 1)
}

type slidingWindow struct {
	size     time.Duration
	buckets  int
	interval time.Duration
	data     []bucket
	nowFn    func() time.Time
}

type bucket struct {
	epoch         int64
	success, fail int
}

func newSlidingWindow(size time.Duration, buckets int) *slidingWindow {
	return &slidingWindow{
		size:     size,
		buckets:  buckets,
		interval: size / time.Duration(buckets),
		data:     make([]bucket, buckets),
		nowFn:    time.Now,
	}
}

func (w *slidingWindow) add(success bool) {
	epoch := w.nowFn().UnixNano() / w.interval.Nanoseconds()
	idx := int(epoch) % w.buckets
	// reset the bucket when its interval has rolled over
	if w.data[idx].epoch != epoch {
		w.data[idx] = bucket{epoch: epoch}
	}
	if success {
		w.data[idx].success++
	} else {
		w.data[idx].fail++
	}
}

func (w *slidingWindow) stats() (total int, failures int) {
	for _, b := range w.data {
		total += b.success + b.fail
		failures += b.fail
	}
	return
}

func (w *slidingWindow) reset() {
	for i := range w.data {
		w.data[i] = bucket{}
	}
}
