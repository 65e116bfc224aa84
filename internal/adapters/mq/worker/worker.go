// Package worker applies queued game results. A single dispatcher routes each
// result to the worker that owns its player, so results for one player are
// applied one at a time and in arrival order.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/pkg/logger"
	"github.com/okian/mathboard/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	defaultInboxSize        = 1024
	defaultApplyTimeout     = 5 * time.Second
)

// Applier folds one result into the store.
type Applier interface {
	Apply(ctx context.Context, r model.GameResult) (model.PlayerStats, error)
}

// Queue is where the dispatcher reads results from.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.GameResult
}

// ErrorHandler is told about every result that could not be applied.
type ErrorHandler func(ctx context.Context, r model.GameResult, err error)

// InMemoryWorker applies the results routed to its inbox.
type InMemoryWorker struct {
	name         string
	applier      Applier
	inbox        chan model.GameResult
	applyTimeout time.Duration
	onError      ErrorHandler
	logger       logger.Logger
	done         chan struct{}
}

// Run applies results until the inbox is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-w.inbox:
			if !ok {
				return
			}
			w.process(ctx, r)
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, r model.GameResult) {
	start := time.Now()
	metrics.AddWorkerActive(1)
	defer func() {
		metrics.AddWorkerActive(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	actx, cancel := context.WithTimeout(ctx, w.applyTimeout)
	defer cancel()

	if _, err := w.applier.Apply(actx, r); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply")
		w.logger.Error(ctx, "applying result failed",
			logger.String("result_id", r.ResultID),
			logger.String("player_id", r.PlayerID),
			logger.Error(err))
		if w.onError != nil {
			w.onError(ctx, r, err)
		}
	}
}

// Pool owns the dispatcher and the workers.
type Pool struct {
	workers      []*InMemoryWorker
	queue        Queue
	applier      Applier
	workerCount  int
	inboxSize    int
	applyTimeout time.Duration
	onError      ErrorHandler
	logger       logger.Logger

	startOnce    sync.Once
	started      atomic.Bool
	dispatchDone chan struct{}
}

// NewPool creates a pool reading from queue and applying through applier.
func NewPool(queue Queue, applier Applier, opts ...Option) *Pool {
	p := &Pool{
		queue:        queue,
		applier:      applier,
		workerCount:  runtime.NumCPU() * defaultWorkerMultiplier,
		inboxSize:    defaultInboxSize,
		applyTimeout: defaultApplyTimeout,
		dispatchDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Nop()
	}

	p.workers = make([]*InMemoryWorker, p.workerCount)
	for i := range p.workers {
		name := "worker-" + strconv.Itoa(i)
		p.workers[i] = &InMemoryWorker{
			name:         name,
			applier:      applier,
			inbox:        make(chan model.GameResult, p.inboxSize),
			applyTimeout: p.applyTimeout,
			onError:      p.onError,
			logger:       p.logger.Named(name),
			done:         make(chan struct{}),
		}
	}
	metrics.UpdateWorkerCount(p.workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches the workers and the dispatcher. Calling it again is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		go p.dispatch(ctx)
		p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	})
}

// dispatch is the only sender on worker inboxes, so it closes them on exit.
func (p *Pool) dispatch(ctx context.Context) {
	defer close(p.dispatchDone)
	defer func() {
		for _, w := range p.workers {
			close(w.inbox)
		}
	}()

	for r := range p.queue.Dequeue(ctx) {
		w := p.owner(r.PlayerID)
		select {
		case w.inbox <- r:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) owner(playerID string) *InMemoryWorker {
	return p.workers[xxhash.Sum64String(playerID)%uint64(len(p.workers))]
}

// Shutdown closes the queue if it can be closed and waits for every queued
// result to be applied. It returns an error if ctx ends first.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		return nil
	}

	select {
	case <-p.dispatchDone:
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatcher: %w", ctx.Err())
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.name))
			return fmt.Errorf("waiting for %s: %w", w.name, ctx.Err())
		}
	}
	p.logger.Info(ctx, "worker pool stopped")
	return nil
}
