// Package blockgen implements the block generation and delivery pipeline.
package blockgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/internal/ratelimit"
	"github.com/jittakal/kafblockstore/internal/timer"
	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/blockgen"
)

// Ensure implementation satisfies interface at compile time.
var _ blockgen.Generator = (*Generator)(nil)

// State describes the generator lifecycle.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MetricsCollector defines metrics operations for the generator.
type MetricsCollector interface {
	IncRecordsIngested(stream int)
	ObserveRateLimitWait(stream int, duration float64)
	IncBlocksGenerated(stream int, split bool)
	ObserveBlockRecordCount(stream int, count float64)
	SetQueueDepth(stream int, depth float64)
	IncBlocksPushed(stream int, status string)
	ObservePushDuration(stream int, duration float64)
}

// Config contains block generator configuration.
type Config struct {
	StreamID      int
	Interval      time.Duration
	QueueCapacity int
	RateLimit     float64 // records per second, zero or less means unlimited
}

// Generator owns the active record buffer, finalizes it into blocks on a
// periodic tick and delivers blocks through a bounded hand-off queue on
// an independent drain goroutine.
//
// Exactly one active buffer exists at any instant. The buffer and the
// swap operation share one mutex: record additions serialize against
// buffer swaps, trading add latency for swap correctness. The hand-off
// queue is a buffered channel; a full queue blocks the tick path, which
// is the pipeline's backpressure valve against a slow delivery path.
type Generator struct {
	cfg      Config
	listener blockgen.Listener
	limiter  *ratelimit.Limiter
	timer    *timer.Timer
	logger   *slog.Logger
	metrics  MetricsCollector

	mu     sync.Mutex
	buffer []block.Record

	queue  chan *block.Block
	ratios atomic.Pointer[[]float64]

	state         atomic.Int32
	splitEnabled  atomic.Bool
	stopRequested chan struct{}
	workerDone    chan struct{}
}

// New creates a block generator in the Created state.
func New(
	cfg Config,
	listener blockgen.Listener,
	logger *slog.Logger,
	metrics MetricsCollector,
) *Generator {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10
	}

	g := &Generator{
		cfg:           cfg,
		listener:      listener,
		limiter:       ratelimit.New(cfg.RateLimit),
		logger:        logger,
		metrics:       metrics,
		buffer:        make([]block.Record, 0),
		queue:         make(chan *block.Block, cfg.QueueCapacity),
		stopRequested: make(chan struct{}),
		workerDone:    make(chan struct{}),
	}
	g.timer = timer.New(
		fmt.Sprintf("block-generator-%d", cfg.StreamID),
		cfg.Interval,
		g.updateBuffer,
		logger,
	)
	return g
}

// State returns the current lifecycle state.
func (g *Generator) State() State {
	return State(g.state.Load())
}

// Start launches the recurring timer and the drain worker.
func (g *Generator) Start() error {
	if !g.state.CompareAndSwap(int32(StateCreated), int32(StateStarted)) {
		return fmt.Errorf("cannot start generator in state %s", g.State())
	}

	g.timer.Start()
	go g.drainLoop()

	g.logger.Info("block generator started",
		"stream", g.cfg.StreamID,
		"interval_ms", g.cfg.Interval.Milliseconds(),
		"queue_capacity", g.cfg.QueueCapacity,
		"rate_limit", g.cfg.RateLimit,
	)
	return nil
}

// AddData appends one record to the active buffer after waiting on the
// ingestion rate limiter.
func (g *Generator) AddData(ctx context.Context, record block.Record) error {
	return g.addData(ctx, record, nil, false)
}

// AddDataWithCallback behaves like AddData and additionally invokes the
// listener's OnAddData inside the buffer critical section, so the
// listener observes additions serialized against buffer swaps.
func (g *Generator) AddDataWithCallback(ctx context.Context, record block.Record, metadata any) error {
	return g.addData(ctx, record, metadata, true)
}

func (g *Generator) addData(ctx context.Context, record block.Record, metadata any, withCallback bool) error {
	if err := g.checkStarted(); err != nil {
		return err
	}

	waitStart := time.Now()
	if err := g.limiter.WaitToPush(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	if g.metrics != nil {
		g.metrics.ObserveRateLimitWait(g.cfg.StreamID, time.Since(waitStart).Seconds())
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Re-check under the lock: a concurrent Stop may have flushed the
	// final buffer, and a late append would be silently lost.
	if err := g.checkStarted(); err != nil {
		return err
	}

	g.buffer = append(g.buffer, record)
	if withCallback {
		g.listener.OnAddData(record, metadata)
	}

	if g.metrics != nil {
		g.metrics.IncRecordsIngested(g.cfg.StreamID)
	}
	return nil
}

func (g *Generator) checkStarted() error {
	switch g.State() {
	case StateStarted:
		return nil
	case StateCreated:
		return apperrors.ErrGeneratorNotStarted
	default:
		return apperrors.ErrGeneratorStopped
	}
}

// SetSplitRatios replaces the split ratio table wholesale. The first call
// switches the tick callback from the plain buffer swap to the splitting
// buffer swap; the switch is one-way.
func (g *Generator) SetSplitRatios(ratios []float64) {
	rs := make([]float64, len(ratios))
	copy(rs, ratios)
	g.ratios.Store(&rs)

	if g.splitEnabled.CompareAndSwap(false, true) {
		g.timer.SetCallback(g.updateBufferWithSlices)
		g.logger.Info("block splitting enabled",
			"stream", g.cfg.StreamID,
			"slices", len(rs),
		)
	}
}

// Stop halts intake, lets any in-flight tick finish, flushes the residual
// buffer with the currently installed tick callback, then blocks until
// the drain worker has delivered every queued block and exited.
func (g *Generator) Stop() error {
	if !g.state.CompareAndSwap(int32(StateStarted), int32(StateStopping)) {
		return fmt.Errorf("cannot stop generator in state %s", g.State())
	}

	g.logger.Info("stopping block generator", "stream", g.cfg.StreamID)

	g.timer.Stop(false)

	// One final swap so records added since the last tick are not lost.
	// The callback is read after the timer has stopped, so a ratio update
	// racing with Stop still gets its splitting callback applied here.
	tick := g.timer.Callback()
	tick(time.Now())

	close(g.stopRequested)
	<-g.workerDone

	g.state.Store(int32(StateStopped))
	g.logger.Info("block generator stopped", "stream", g.cfg.StreamID)
	return nil
}

// updateBuffer is the plain tick callback: the whole buffer becomes a
// single block.
func (g *Generator) updateBuffer(tick time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finalizeBuffer(tick, false)
}

// updateBufferWithSlices is the splitting tick callback: the buffer is
// partitioned into slices per the current ratio table snapshot.
func (g *Generator) updateBufferWithSlices(tick time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finalizeBuffer(tick, true)
}

// finalizeBuffer swaps the active buffer and enqueues the resulting
// block(s). Caller must hold g.mu; enqueueing inside the critical section
// is deliberate, so a full queue stalls both the tick and data addition.
func (g *Generator) finalizeBuffer(tick time.Time, split bool) {
	finalized := g.buffer
	g.buffer = make([]block.Record, 0, len(finalized))

	if len(finalized) == 0 {
		return
	}

	// The block carries the logical start time of its batching window.
	blockTime := tick.Add(-g.cfg.Interval)

	var ratios []float64
	if split {
		if p := g.ratios.Load(); p != nil {
			ratios = *p
		}
	}

	if len(ratios) <= 1 {
		// Empty (or single-entry) ratio table: one slice, the whole buffer.
		g.emit(&block.Block{
			ID:      block.NewID(g.cfg.StreamID, blockTime),
			Records: finalized,
		}, false)
		return
	}

	// Every slice except the last takes floor(size*ratio); the last slice
	// absorbs the remainder, so no record is ever dropped by truncation.
	start := 0
	for i := range ratios {
		end := len(finalized)
		if i < len(ratios)-1 {
			end = start + int(float64(len(finalized))*ratios[i])
			if end > len(finalized) {
				end = len(finalized)
			}
		}

		// Small buffers can floor a slice down to zero records. Storage
		// handlers have nothing to write for such a block, so the slice
		// index is consumed but no block is emitted.
		if end == start {
			continue
		}

		b := &block.Block{
			ID:      block.NewSliceID(g.cfg.StreamID, blockTime, i),
			Records: finalized[start:end],
		}
		if !g.emit(b, true) {
			// Tick abandoned; remaining slices are not enqueued.
			return
		}
		start = end
	}
}

// emit notifies the listener of a generated block and enqueues it.
// Returns false when the listener rejected the block and the tick should
// be abandoned.
func (g *Generator) emit(b *block.Block, split bool) bool {
	if err := g.listener.OnGenerateBlock(b.ID); err != nil {
		g.listener.OnError("failed to generate block", &apperrors.TickError{BlockID: b.ID, Err: err})
		return false
	}

	// Blocking send: backpressure against a slow delivery path.
	g.queue <- b

	if g.metrics != nil {
		g.metrics.IncBlocksGenerated(g.cfg.StreamID, split)
		g.metrics.ObserveBlockRecordCount(g.cfg.StreamID, float64(len(b.Records)))
		g.metrics.SetQueueDepth(g.cfg.StreamID, float64(len(g.queue)))
	}

	g.logger.Debug("generated block",
		"block_id", b.ID.String(),
		"records", len(b.Records),
		"queue_depth", len(g.queue),
	)
	return true
}

// drainLoop dequeues and delivers blocks until stop has been requested
// and the queue is empty.
func (g *Generator) drainLoop() {
	defer close(g.workerDone)

	for {
		select {
		case b := <-g.queue:
			if !g.pushBlock(b) {
				return
			}
		case <-g.stopRequested:
			// Unconditional drain: deliver every remaining block.
			for {
				select {
				case b := <-g.queue:
					if !g.pushBlock(b) {
						return
					}
				default:
					g.logger.Info("drain worker finished", "stream", g.cfg.StreamID)
					return
				}
			}
		}
	}
}

// pushBlock delivers one block to the listener. Delivery failures are
// reported and the drain continues; a context cancellation is treated as
// an interruption of the worker and ends the loop.
func (g *Generator) pushBlock(b *block.Block) bool {
	start := time.Now()
	err := g.listener.OnPushBlock(b.ID, b.Records)
	duration := time.Since(start)

	if g.metrics != nil {
		g.metrics.SetQueueDepth(g.cfg.StreamID, float64(len(g.queue)))
		g.metrics.ObservePushDuration(g.cfg.StreamID, duration.Seconds())
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			g.logger.Info("drain worker interrupted",
				"stream", g.cfg.StreamID,
				"block_id", b.ID.String(),
			)
			return false
		}

		if g.metrics != nil {
			g.metrics.IncBlocksPushed(g.cfg.StreamID, "error")
		}
		g.listener.OnError("failed to push block", &apperrors.PushError{BlockID: b.ID, Err: err})
		return true
	}

	if g.metrics != nil {
		g.metrics.IncBlocksPushed(g.cfg.StreamID, "success")
	}
	g.logger.Debug("pushed block",
		"block_id", b.ID.String(),
		"records", len(b.Records),
		"duration_ms", duration.Milliseconds(),
	)
	return true
}
