package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/textgen/pkg/generation"
)

var (
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 64
)

// job is a unit of work for a device pool. result is buffered so a worker
// never blocks on a caller that stopped waiting.
type job struct {
	ctx    context.Context
	req    *BackendRequest
	result chan jobResult
}

type jobResult struct {
	resp *BackendResponse
	err  error
}

func newJob(ctx context.Context, req *BackendRequest) *job {
	return &job{
		ctx:    ctx,
		req:    req,
		result: make(chan jobResult, 1),
	}
}

// poolConfig is the configuration for one device pool.
type poolConfig struct {
	device     generation.Device
	backend    Backend
	numWorkers uint
	queueSize  uint
	logger     *slog.Logger
}

// pool feeds one device's Backend from a bounded queue. With a single worker,
// jobs for the device run one at a time in arrival order.
type pool struct {
	config *poolConfig
	queue  chan *job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func newPool(c *poolConfig) (*pool, error) {
	if c.numWorkers == 0 {
		c.numWorkers = defaultNumWorkers
	}

	if c.queueSize == 0 {
		c.queueSize = defaultJobQueueSize
	}

	if c.numWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("numWorkers %d exceeds max int", c.numWorkers)
	}

	p := &pool{
		config: c,
		queue:  make(chan *job, c.queueSize),
		logger: c.logger.With("device", c.device.String()),
	}

	p.wg.Add(int(c.numWorkers))
	for i := range c.numWorkers {
		go p.worker(i)
	}

	return p, nil
}

// enqueue submits a job. Returns false if the queue is full or the pool is
// closed.
func (p *pool) enqueue(j *job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	select {
	case p.queue <- j:
		p.logger.Debug("job queued", "depth", len(p.queue))
		return true
	default:
		p.logger.Warn("job not queued, queue full", "capacity", cap(p.queue))
		return false
	}
}

// depth is the number of jobs waiting for a worker.
func (p *pool) depth() int {
	return len(p.queue)
}

// close stops accepting jobs and waits for queued jobs to drain.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for j := range p.queue {
		p.processJob(j)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob runs j unless its caller has already given up.
func (p *pool) processJob(j *job) {
	if err := j.ctx.Err(); err != nil {
		p.logger.Debug("skipping abandoned job", "error", err)
		j.result <- jobResult{err: err}
		return
	}

	resp, err := p.config.backend.Generate(j.ctx, j.req)
	if err != nil {
		j.result <- jobResult{err: err}
		return
	}

	j.result <- jobResult{resp: resp}
}
