// Package workers provides the bounded worker pool that fans probes out
// across a fixed number of goroutines. Every port submitted to a run
// produces exactly one result; results are collected on a single goroutine
// so callers never need to synchronize the returned map.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anstrom/dualscan/internal/logging"
)

// DefaultSize is the worker ceiling used when Config.Size is not set.
const DefaultSize = 400

// ProbeFunc checks a single port and returns its outcome. It must honor ctx.
type ProbeFunc[R any] func(ctx context.Context, port int) R

// FallbackFunc yields the outcome recorded for a port whose probe panicked
// or was never dispatched because the run was canceled.
type FallbackFunc[R any] func(port int) R

// ProgressFunc receives the number of completed tasks after each completion.
// It is called from the collector goroutine, one call at a time.
type ProgressFunc func(done, total int)

// Config holds configuration for the worker pool.
type Config struct {
	// Name labels log lines, e.g. "tcp" or "udp".
	Name string
	// Size is the maximum number of probes running at once.
	Size int
	// RateLimit is the maximum number of probes started per second (0 = no limit).
	RateLimit float64
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{Size: DefaultSize}
}

// Pool runs a probe function over a set of ports.
type Pool[R any] struct {
	config   Config
	probe    ProbeFunc[R]
	fallback FallbackFunc[R]
	logger   *logging.Logger
}

type outcome[R any] struct {
	port   int
	result R
}

// New creates a pool. A nil fallback records the zero value of R.
func New[R any](config Config, probe ProbeFunc[R], fallback FallbackFunc[R]) *Pool[R] {
	if config.Size <= 0 {
		config.Size = DefaultSize
	}
	if fallback == nil {
		fallback = func(int) R {
			var zero R
			return zero
		}
	}
	return &Pool[R]{
		config:   config,
		probe:    probe,
		fallback: fallback,
		logger:   logging.Default().WithComponent("workers"),
	}
}

// Size returns the configured worker ceiling.
func (p *Pool[R]) Size() int {
	return p.config.Size
}

// Run probes every port and returns one result per port. It returns only
// after all workers have exited, including when ctx is canceled; ports that
// were not dispatched before cancellation get the fallback outcome.
func (p *Pool[R]) Run(ctx context.Context, ports []int, onProgress ProgressFunc) map[int]R {
	ports = uniquePorts(ports)
	total := len(ports)
	results := make(map[int]R, total)
	if total == 0 {
		return results
	}

	workerCount := min(p.config.Size, total)
	start := time.Now()
	p.logger.Debug("Starting worker pool",
		"pool", p.config.Name,
		"worker_count", workerCount,
		"tasks", total,
		"rate_limit", p.config.RateLimit)

	jobs := make(chan int)
	done := make(chan outcome[R], workerCount)

	go p.dispatch(ctx, ports, jobs)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for port := range jobs {
				done <- outcome[R]{port: port, result: p.execute(ctx, port)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for o := range done {
		results[o.port] = o.result
		completed++
		if onProgress != nil {
			onProgress(completed, total)
		}
	}

	if completed < total {
		for _, port := range ports {
			if _, ok := results[port]; !ok {
				results[port] = p.fallback(port)
			}
		}
		p.logger.Warn("Worker pool stopped before all tasks ran",
			"pool", p.config.Name,
			"completed", completed,
			"tasks", total,
			"error", ctx.Err())
	}

	p.logger.Debug("Worker pool drained",
		"pool", p.config.Name,
		"completed", completed,
		"duration", time.Since(start))

	return results
}

// dispatch feeds ports to the workers until they are exhausted or ctx ends.
func (p *Pool[R]) dispatch(ctx context.Context, ports []int, jobs chan<- int) {
	defer close(jobs)

	var limiter *rate.Limiter
	if p.config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.config.RateLimit), 1)
	}

	for _, port := range ports {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		select {
		case jobs <- port:
		case <-ctx.Done():
			return
		}
	}
}

// execute runs one probe, converting a panic into the fallback outcome.
func (p *Pool[R]) execute(ctx context.Context, port int) (result R) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Probe panicked",
				"pool", p.config.Name,
				"port", port,
				"panic", fmt.Sprint(r))
			result = p.fallback(port)
		}
	}()
	return p.probe(ctx, port)
}

func uniquePorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Run is a convenience wrapper around New(config, probe, fallback).Run.
func Run[R any](ctx context.Context, config Config, ports []int,
	probe ProbeFunc[R], fallback FallbackFunc[R], onProgress ProgressFunc) map[int]R {
	return New(config, probe, fallback).Run(ctx, ports, onProgress)
}
