// Package dispatch implements the serializing, rate-limited request
// dispatcher. All requests submitted to one Dispatcher are funneled
// through a single FIFO queue drained by one worker goroutine; server-side
// rate-limit rejections are absorbed and retried with bounded backoff.
//
// A Dispatcher is an explicit handle: clients that should share one queue
// inject the same *Dispatcher. There is no process-global state.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for dispatcher operations.
var (
	dispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_dispatch_queue_depth",
		Help: "Current number of requests waiting in the dispatch queue",
	})

	dispatchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_rate_limit_retries_total",
		Help: "Total number of rate-limited requests requeued for retry",
	})

	dispatchExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_rate_limit_exhausted_total",
		Help: "Total number of requests dropped after exhausting rate-limit retries",
	})

	dispatchDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvas_dispatch_delay_seconds",
		Help:    "Backoff delay applied before dequeuing a request",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// RateLimitMarker is the literal the Canvas API places in the body of a
// 403 that signals a rate-limit rejection (as opposed to an ordinary 403).
const RateLimitMarker = "Rate Limit Exceeded"

// QuotaHeader is the response header carrying the remaining request quota.
const QuotaHeader = "X-Rate-Limit-Remaining"

// maxSeq is the ceiling for item sequence ids; the counter wraps back to 1.
const maxSeq = 1<<53 - 1

// ErrRetryExhausted is returned when a request was rate-limited more times
// than the retry ceiling allows.
var ErrRetryExhausted = errors.New("rate limit retries exhausted")

// SendFunc performs one transport-level attempt of a request.
type SendFunc func() (*http.Response, error)

// Result is the terminal outcome of a queued request.
type Result struct {
	Resp *http.Response
	Err  error
}

// outcome tags the classification of one dispatch attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRateLimited
	outcomeFailed
)

// Options configures a Dispatcher.
type Options struct {
	// Interval is the rate window length. Default: 1 second.
	Interval time.Duration

	// MaxRetries is the rate-limit retry ceiling per request. Default: 5.
	MaxRetries int

	// LowQuotaThreshold triggers a preemptive slowdown when the remaining
	// quota reported by the server falls below it. Default: 50.
	LowQuotaThreshold float64

	// Logger receives dispatcher lifecycle and timing diagnostics.
	Logger zerolog.Logger
}

// DefaultOptions returns the default dispatcher configuration.
func DefaultOptions() Options {
	return Options{
		Interval:          time.Second,
		MaxRetries:        5,
		LowQuotaThreshold: 50,
	}
}

type item struct {
	send    SendFunc
	done    chan Result
	seq     uint64
	retries int
}

// Dispatcher owns a FIFO request queue drained by a single worker
// goroutine. Requests with equal retry count dispatch in submission
// order; a rate-limited request is reinserted at the head of the queue,
// so retries are favored over fresh work.
type Dispatcher struct {
	interval   time.Duration
	maxRetries int
	lowQuota   float64
	logger     zerolog.Logger

	mu      sync.Mutex
	queue   []*item
	seq     uint64
	started bool
	wake    chan struct{}

	// worker-owned; never touched outside the worker goroutine
	nextDelay   time.Duration
	windowStart time.Time
}

// New creates a Dispatcher. Zero-valued options fall back to defaults.
func New(opts Options) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.LowQuotaThreshold <= 0 {
		opts.LowQuotaThreshold = 50
	}

	return &Dispatcher{
		interval:   opts.Interval,
		maxRetries: opts.MaxRetries,
		lowQuota:   opts.LowQuotaThreshold,
		logger:     opts.Logger,
		wake:       make(chan struct{}, 1),
	}
}

// Interval returns the configured rate window length.
func (d *Dispatcher) Interval() time.Duration {
	return d.interval
}

// Do submits one request to the queue and blocks until it settles or ctx
// is done. A ctx expiry abandons the wait but does not block the queue:
// the worker settles the item into its buffered channel and moves on.
func (d *Dispatcher) Do(ctx context.Context, send SendFunc) (*http.Response, error) {
	it := &item{
		send: send,
		done: make(chan Result, 1),
	}

	d.mu.Lock()
	d.seq++
	if d.seq > maxSeq {
		d.seq = 1
	}
	it.seq = d.seq
	d.queue = append(d.queue, it)
	dispatchQueueDepth.Set(float64(len(d.queue)))
	start := !d.started
	d.started = true
	d.mu.Unlock()

	if start {
		go d.worker()
	}
	d.signal()

	d.logger.Debug().
		Uint64("seq", it.seq).
		Msg("Request enqueued")

	select {
	case res := <-it.done:
		return res.Resp, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// signal wakes the worker without blocking.
func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// worker is the single drain loop. It is the only goroutine that pops
// the queue or touches nextDelay/windowStart.
func (d *Dispatcher) worker() {
	d.windowStart = time.Now()

	for {
		if d.empty() {
			<-d.wake
			continue
		}

		if d.nextDelay > 0 {
			d.logger.Debug().
				Dur("delay", d.nextDelay).
				Msg("Waiting before dequeue")
			dispatchDelaySeconds.Observe(d.nextDelay.Seconds())
			time.Sleep(d.nextDelay)
		}

		// Reset the rate window once it has elapsed.
		if time.Since(d.windowStart) > d.interval {
			d.windowStart = time.Now()
			d.nextDelay = 0
		}

		it := d.pop()
		if it == nil {
			continue
		}

		resp, err := it.send()
		out, resp, err := classify(resp, err)

		switch out {
		case outcomeRateLimited:
			d.handleRateLimited(it, resp)
		case outcomeSuccess:
			d.handleSuccess(it, resp)
		case outcomeFailed:
			it.done <- Result{Err: err}
		}
	}
}

// empty reports whether the queue has no waiting items.
func (d *Dispatcher) empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) == 0
}

// pop removes and returns the head item, or nil when the queue is empty.
func (d *Dispatcher) pop() *item {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		dispatchQueueDepth.Set(0)
		return nil
	}
	it := d.queue[0]
	d.queue = d.queue[1:]
	dispatchQueueDepth.Set(float64(len(d.queue)))
	return it
}

// pushHead reinserts an item at the head of the queue, ahead of all
// not-yet-attempted requests.
func (d *Dispatcher) pushHead(it *item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append([]*item{it}, d.queue...)
	dispatchQueueDepth.Set(float64(len(d.queue)))
}

// handleRateLimited requeues a rate-limited item at the head, or settles
// it with ErrRetryExhausted once the ceiling is reached.
func (d *Dispatcher) handleRateLimited(it *item, resp *http.Response) {
	if resp != nil {
		resp.Body.Close()
	}

	if it.retries >= d.maxRetries {
		dispatchExhaustedTotal.Inc()
		d.logger.Warn().
			Uint64("seq", it.seq).
			Int("retries", it.retries).
			Msg("Rate limit retries exhausted")
		it.done <- Result{Err: fmt.Errorf("%w after %d attempts", ErrRetryExhausted, it.retries+1)}
		return
	}

	retry := &item{
		send:    it.send,
		done:    it.done,
		seq:     it.seq,
		retries: it.retries + 1,
	}
	d.pushHead(retry)
	d.raiseDelay()
	dispatchRetriesTotal.Inc()

	d.logger.Debug().
		Uint64("seq", it.seq).
		Int("retry", retry.retries).
		Dur("next_delay", d.nextDelay).
		Msg("Rate limited, requeued at head")
}

// handleSuccess settles the item and applies the preemptive slowdown when
// the server reports a low remaining quota.
func (d *Dispatcher) handleSuccess(it *item, resp *http.Response) {
	if quota, ok := parseQuota(resp.Header); ok && quota < d.lowQuota {
		d.raiseDelay()
		d.logger.Debug().
			Uint64("seq", it.seq).
			Float64("quota_remaining", quota).
			Dur("next_delay", d.nextDelay).
			Msg("Low quota, slowing down preemptively")
	}
	it.done <- Result{Resp: resp}
}

// raiseDelay lifts nextDelay to at least the time remaining in the
// current rate window. nextDelay never decreases within a window.
func (d *Dispatcher) raiseDelay() {
	remaining := d.interval - time.Since(d.windowStart)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > d.nextDelay {
		d.nextDelay = remaining
	}
}

// classify tags one attempt as Success, RateLimited, or Failed. For a 403
// the body is buffered to look for the rate-limit marker and then replayed,
// so an ordinary 403 reaches the caller with its body intact.
func classify(resp *http.Response, err error) (outcome, *http.Response, error) {
	if err != nil {
		return outcomeFailed, nil, err
	}

	if resp.StatusCode == http.StatusForbidden {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return outcomeFailed, nil, readErr
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if strings.Contains(string(body), RateLimitMarker) {
			return outcomeRateLimited, resp, nil
		}
	}

	return outcomeSuccess, resp, nil
}

// parseQuota extracts the remaining-quota header value.
func parseQuota(h http.Header) (float64, bool) {
	raw := h.Get(QuotaHeader)
	if raw == "" {
		return 0, false
	}
	quota, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return quota, true
}
