// Package supervisor implements the receiver supervisor. It owns the
// block generator, forwards finished blocks to the storage handler,
// reports stored blocks to the coordinator, and applies relocation
// decisions pushed from the control plane.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jittakal/kafblockstore/pkg/block"
	pkgblockgen "github.com/jittakal/kafblockstore/pkg/blockgen"
	"github.com/jittakal/kafblockstore/pkg/coordinator"
	"github.com/jittakal/kafblockstore/pkg/source"
	"github.com/jittakal/kafblockstore/pkg/storage"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ pkgblockgen.Listener = (*Supervisor)(nil)
	_ source.Receiver      = (*Supervisor)(nil)
)

// Config contains supervisor configuration.
type Config struct {
	StreamID int
	Host     string
}

// Supervisor connects the block generator to the storage handler and
// the coordinator. It implements the generator's listener callbacks
// and the source receiver interface, so records flow
// source -> Store -> generator -> OnPushBlock -> storage -> coordinator.
type Supervisor struct {
	cfg         Config
	generator   pkgblockgen.Generator
	handler     storage.Handler
	coordClient coordinator.Client
	logger      *slog.Logger

	// relocation maps slice index to destination host. Blocks whose
	// slice maps to a different host are reallocated after storing.
	relocation atomic.Pointer[map[int]string]

	started atomic.Bool
	stopped atomic.Bool
}

// New creates a supervisor wired to the given generator factory. The
// generator is created by the caller with the supervisor as listener;
// use Attach to close the cycle.
func New(
	cfg Config,
	handler storage.Handler,
	coordClient coordinator.Client,
	logger *slog.Logger,
) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		handler:     handler,
		coordClient: coordClient,
		logger:      logger,
	}
	empty := make(map[int]string)
	s.relocation.Store(&empty)
	return s
}

// Attach sets the block generator. Must be called before Start.
func (s *Supervisor) Attach(gen pkgblockgen.Generator) {
	s.generator = gen
}

// Start registers the receiver with the coordinator and starts the
// block generator.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("supervisor already started")
	}
	if s.generator == nil {
		return fmt.Errorf("no generator attached")
	}

	if err := s.coordClient.RegisterReceiver(ctx, s.cfg.StreamID, s.cfg.Host); err != nil {
		return fmt.Errorf("failed to register receiver: %w", err)
	}

	if err := s.generator.Start(); err != nil {
		return fmt.Errorf("failed to start block generator: %w", err)
	}

	s.logger.Info("supervisor started",
		"stream", s.cfg.StreamID,
		"host", s.cfg.Host,
	)
	return nil
}

// Stop drains the block generator, deregisters the receiver and closes
// the storage handler. Safe to call once.
func (s *Supervisor) Stop(ctx context.Context, message string) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Info("stopping supervisor",
		"stream", s.cfg.StreamID,
		"message", message,
	)

	var firstErr error
	if err := s.generator.Stop(); err != nil {
		s.logger.Error("failed to stop block generator", "error", err)
		firstErr = err
	}

	if err := s.coordClient.DeregisterReceiver(ctx, s.cfg.StreamID, message); err != nil {
		s.logger.Error("failed to deregister receiver", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := s.handler.Close(); err != nil {
		s.logger.Error("failed to close storage handler", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	s.logger.Info("supervisor stopped", "stream", s.cfg.StreamID)
	return firstErr
}

// Store hands one record to the block generator. It blocks under rate
// limiting and queue backpressure.
func (s *Supervisor) Store(ctx context.Context, record block.Record) error {
	return s.generator.AddData(ctx, record)
}

// UpdateRatioAndRelocation installs new split ratios on the generator
// and the slice-to-host relocation table, as one atomic control update.
func (s *Supervisor) UpdateRatioAndRelocation(ratios []float64, relocation map[int]string) {
	if relocation == nil {
		relocation = make(map[int]string)
	}
	copied := make(map[int]string, len(relocation))
	for k, v := range relocation {
		copied[k] = v
	}
	s.relocation.Store(&copied)
	s.generator.SetSplitRatios(ratios)

	s.logger.Info("updated split ratios and relocation table",
		"stream", s.cfg.StreamID,
		"ratios", ratios,
		"relocation_entries", len(copied),
	)
}

// CleanupOldBlocks removes blocks stored before the threshold.
func (s *Supervisor) CleanupOldBlocks(ctx context.Context, threshold time.Time) error {
	return s.handler.CleanupOldBlocks(ctx, threshold)
}

// OnAddData is invoked for each record accepted into the buffer.
func (s *Supervisor) OnAddData(record block.Record, metadata any) {
	if metadata != nil {
		s.logger.Debug("record buffered",
			"stream", s.cfg.StreamID,
			"metadata", metadata,
		)
	}
}

// OnGenerateBlock is invoked when a block is cut from the buffer,
// before it is queued for pushing.
func (s *Supervisor) OnGenerateBlock(id block.ID) error {
	s.logger.Debug("block generated",
		"stream", s.cfg.StreamID,
		"block_id", id.String(),
	)
	return nil
}

// OnPushBlock stores a finished block, reports it to the coordinator
// and applies any relocation decision for the block's slice.
func (s *Supervisor) OnPushBlock(id block.ID, records []block.Record) error {
	ctx := context.Background()

	result, err := s.handler.StoreBlock(ctx, id, records)
	if err != nil {
		return fmt.Errorf("failed to store block %s: %w", id.String(), err)
	}

	info := block.Info{
		ID:          id,
		RecordCount: result.RecordCount,
		SizeBytes:   result.SizeBytes,
		Host:        s.cfg.Host,
		StoredAt:    time.Now(),
	}

	host := s.cfg.Host
	if dest := s.destinationFor(id); dest != "" && dest != s.cfg.Host {
		if err := s.handler.ReallocateBlock(ctx, id, dest); err != nil {
			s.logger.Error("failed to reallocate block",
				"block_id", id.String(),
				"dest", dest,
				"error", err,
			)
		} else {
			host = dest
			info.Host = dest
		}
	}

	if err := s.coordClient.AddBlock(ctx, info); err != nil {
		return fmt.Errorf("failed to report block %s: %w", id.String(), err)
	}

	s.coordClient.ReportSize(ctx, result.SizeBytes, host)

	s.logger.Info("block pushed",
		"stream", s.cfg.StreamID,
		"block_id", id.String(),
		"records", result.RecordCount,
		"size_bytes", result.SizeBytes,
		"host", host,
	)
	return nil
}

// OnError forwards a generator error to the coordinator.
func (s *Supervisor) OnError(message string, err error) {
	s.logger.Error("block generator error",
		"stream", s.cfg.StreamID,
		"message", message,
		"error", err,
	)
	if reportErr := s.coordClient.ReportError(context.Background(), message, err); reportErr != nil {
		s.logger.Error("failed to report error to coordinator", "error", reportErr)
	}
}

// destinationFor returns the destination host for a block's slice, or
// empty when no relocation applies.
func (s *Supervisor) destinationFor(id block.ID) string {
	table := *s.relocation.Load()
	if len(table) == 0 {
		return ""
	}
	if !id.Split {
		return table[0]
	}
	return table[id.Slice]
}
