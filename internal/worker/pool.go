// Package worker provides a fixed-size worker pool that runs the pipeline per partition lane
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/pipeline"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/queue"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"go.uber.org/zap"
)

// Handler processes one raw message value
type Handler interface {
	Process(ctx context.Context, raw []byte) pipeline.Result
}

// Acknowledger commits the offset of a handled message
type Acknowledger interface {
	Commit(ctx context.Context, msg *types.Message) error
}

// Pool runs one worker per lane. Each lane has its own bounded queue and a message is
// routed to lane partition mod workerCount, so messages of a partition are handled one
// at a time in fetch order.
type Pool struct {
	workerCount int
	lanes       []*queue.Queue
	handler     Handler
	acker       Acknowledger
	metrics     *obs.Metrics
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// NewPool creates a new worker pool with the specified number of lanes.
// workerCount and queueSize must be greater than 0
func NewPool(workerCount, queueSize int, handler Handler, acker Acknowledger, metrics *obs.Metrics, logger *zap.Logger) (*Pool, error) {
	if workerCount <= 0 {
		return nil, fmt.Errorf("worker count must be greater than 0, got: %d", workerCount)
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be greater than 0, got: %d", queueSize)
	}
	if handler == nil || acker == nil {
		return nil, fmt.Errorf("handler and acknowledger are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	lanes := make([]*queue.Queue, workerCount)
	for i := range lanes {
		lanes[i] = queue.NewQueue(queueSize, metrics)
	}

	return &Pool{
		workerCount: workerCount,
		lanes:       lanes,
		handler:     handler,
		acker:       acker,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Start launches one worker goroutine per lane.
// Returns an error if the pool is already started
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	p.logger.Info("Starting worker pool",
		zap.Int("workerCount", p.workerCount),
		zap.Int("queueSize", p.lanes[0].Size()),
	)

	p.metrics.NullifyQueueDepth()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	for i := range p.workerCount {
		p.wg.Add(1)
		go p.worker(p.ctx, i)
	}

	return nil
}

// Submit routes msg to its partition lane, blocking while that lane is full
func (p *Pool) Submit(ctx context.Context, msg *types.Message) error {
	lane := p.lanes[p.laneFor(msg)]
	if err := lane.Enqueue(ctx, msg); err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			return ErrPoolStopped
		}
		return err
	}
	return nil
}

func (p *Pool) laneFor(msg *types.Message) int {
	partition := msg.Partition()
	if partition < 0 {
		partition = -partition
	}
	return partition % p.workerCount
}

// worker is the main loop for a single lane
// It pulls messages from its queue and handles them until the pool is stopped
func (p *Pool) worker(ctx context.Context, lane int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("lane", lane))

	for {
		msg, err := p.lanes[lane].Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrQueueClosed) {
				p.logger.Debug("Worker stopping", zap.Int("lane", lane), zap.Error(err))
				return
			}

			// Log unexpected errors but continue
			p.logger.Error("Failed to dequeue message", zap.Error(err), zap.Int("lane", lane))
			continue
		}

		p.handle(ctx, msg, lane)
	}
}

// handle runs the pipeline and then commits the offset whatever the outcome.
// Shutdown does not interrupt a message already taken from the lane.
func (p *Pool) handle(ctx context.Context, msg *types.Message, lane int) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	res := p.handler.Process(ctx, msg.Value)

	fields := []zap.Field{
		zap.Int("lane", lane),
		zap.Int("partition", msg.Partition()),
		zap.Int64("offset", offsetOf(msg)),
		zap.Int("valueLength", len(msg.Value)),
		zap.Duration("duration", time.Since(start)),
	}
	if category := res.Category(); category != "" {
		p.logger.Info("Message dead-lettered", append(fields, zap.String("category", category))...)
	} else {
		p.logger.Debug("Message processed", fields...)
	}

	if err := p.acker.Commit(ctx, msg); err != nil {
		p.logger.Error("Failed to commit message", append(fields, zap.Error(err))...)
	}
}

func offsetOf(msg *types.Message) int64 {
	if msg.Meta == nil {
		return -1
	}
	return msg.Meta.Offset
}

// Stop gracefully stops the worker pool
// It cancels the workers, waits for in-flight messages to finish, and closes the lanes.
// Messages still queued are left uncommitted and will be redelivered.
func (p *Pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	p.started = false

	p.logger.Info("Stopping worker pool", zap.Int("workerCount", p.workerCount))

	for _, lane := range p.lanes {
		lane.Close()
	}
	if p.cancel != nil {
		p.cancel()
	}

	// Wait for all workers to finish
	p.wg.Wait()
	p.metrics.NullifyQueueDepth()

	p.logger.Info("Worker pool stopped", zap.Int("workerCount", p.workerCount))

	// Clear context and cancel function to make it obviously invalid
	p.ctx = nil
	p.cancel = nil

	return nil
}

// Errors
var (
	ErrPoolAlreadyStarted = &PoolError{msg: "worker pool is already started"}
	ErrPoolStopped        = &PoolError{msg: "worker pool is stopped"}
)

// PoolError represents a worker pool operation error
type PoolError struct {
	msg string
}

func (e *PoolError) Error() string {
	return e.msg
}
