package intake

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/chainledger/musicgraph/internal/logging"
)

// Pool is a fixed-size worker pool consuming a channel of anchored events
// (spec §5: "concurrent handlers served by a pool of worker tasks"),
// grounded in the teacher's indexer Syncer/worker shape but built around a
// work channel instead of a ticking block-range scan, since anchored
// events arrive individually rather than in a block range. Each worker
// calls Intake.Handle for its event's entire lifetime, so a worker holds
// at most one graph transaction open at a time.
type Pool struct {
	intake  *Intake
	workers int
	queue   chan job
	wg      sync.WaitGroup
	log     *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

type job struct {
	id   string
	ev   AnchoredEvent
	done chan<- jobResult
}

// jobResult is delivered on a job's done channel after Handle returns.
type jobResult struct {
	outcome Outcome
	err     error
}

// NewPool builds a Pool with workers fixed-size goroutines and a queue
// buffered to queueSize pending events.
func NewPool(in *Intake, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		intake:  in,
		workers: workers,
		queue:   make(chan job, queueSize),
		log:     logging.NewFromEnv("intake-pool"),
	}
}

// Start spins up the worker goroutines. It is a no-op if the pool is
// already running.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(runCtx)
	}
	p.log.WithContext(ctx).Infof("intake pool started with %d workers", p.workers)
}

// Stop cancels outstanding workers and waits for them to drain their
// current job before returning.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			outcome, err := p.intake.Handle(ctx, j.ev)
			if err != nil {
				p.log.WithContext(ctx).WithField("job_id", j.id).WithError(err).Warn("intake job failed")
			}
			if j.done != nil {
				j.done <- jobResult{outcome: outcome, err: err}
			}
		}
	}
}

// Submit enqueues ev for processing and blocks until a worker has
// finished it (or ctx is cancelled first), returning that worker's
// outcome. ctx bounds only the wait for a queue slot and the wait for the
// result: cancelling it before the job is queued leaves no trace, but a job
// already queued still runs to completion under the pool's own context
// (the one given to Start, cancelled by Stop), and its writes are kept.
func (p *Pool) Submit(ctx context.Context, ev AnchoredEvent) (Outcome, error) {
	done := make(chan jobResult, 1)
	select {
	case p.queue <- job{id: uuid.NewString(), ev: ev, done: done}:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	select {
	case res := <-done:
		return res.outcome, res.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
