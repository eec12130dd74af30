// Package blockgen implements the time-driven block generator.
//
// This package converts a continuous record stream into time-bounded blocks.
// Records accumulate in an in-memory buffer; a periodic tick cuts the buffer
// into one or more blocks and hands them to a listener through a bounded
// queue drained by a dedicated worker.
//
// # Creating a Generator
//
// A generator is created with a listener that receives its callbacks:
//
//	gen := blockgen.New(blockgen.Config{
//	    StreamID:      3,
//	    Interval:      200 * time.Millisecond,
//	    QueueCapacity: 10,
//	    RateLimit:     0, // unlimited
//	}, listener, logger, metrics)
//
//	if err := gen.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Ingesting Records
//
// Records enter through AddData. The call blocks when the configured
// ingestion rate limit is exceeded:
//
//	err := gen.AddData(ctx, block.Record{
//	    Key:       key,
//	    Data:      payload,
//	    Timestamp: time.Now(),
//	})
//
// # Block Generation
//
// On every tick the active buffer is swapped out and finalized. Without
// split ratios the whole buffer becomes one block. With split ratios the
// buffer is partitioned into consecutive slices, one block per slice:
//
//	gen.SetSplitRatios([]float64{0.3, 0.7})
//
// The ratio table is replaced wholesale on each call. The switch from
// whole-buffer to splitting generation is one-way.
//
// # Delivery
//
// Finished blocks are enqueued for the drain worker, which invokes the
// listener's OnPushBlock outside the buffer lock. A full queue blocks the
// tick, which in turn backpressures AddData callers.
//
// # Shutdown
//
// Stop halts intake, performs a final flush of the active buffer through
// the current tick callback, drains the queue to completion and waits for
// the drain worker to exit:
//
//	if err := gen.Stop(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// All generator operations are safe for concurrent use. Listener callbacks
// OnAddData and OnGenerateBlock run inside the generator's critical section
// and must return quickly; OnPushBlock runs on the drain path with no lock
// held.
package blockgen
