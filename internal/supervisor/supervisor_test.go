package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/kafblockstore/pkg/block"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGenerator struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	added    []block.Record
	ratios   []float64
	startErr error
	stopErr  error
}

func (g *fakeGenerator) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = true
	return g.startErr
}

func (g *fakeGenerator) AddData(ctx context.Context, record block.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.added = append(g.added, record)
	return nil
}

func (g *fakeGenerator) AddDataWithCallback(ctx context.Context, record block.Record, metadata any) error {
	return g.AddData(ctx, record)
}

func (g *fakeGenerator) SetSplitRatios(ratios []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ratios = ratios
}

func (g *fakeGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	return g.stopErr
}

type fakeHandler struct {
	mu          sync.Mutex
	stored      []block.ID
	reallocated map[string]string
	cleanedAt   time.Time
	closed      bool
	storeErr    error
	reallocErr  error
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{reallocated: make(map[string]string)}
}

func (h *fakeHandler) StoreBlock(ctx context.Context, id block.ID, records []block.Record) (*block.StoreResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.storeErr != nil {
		return nil, h.storeErr
	}
	h.stored = append(h.stored, id)
	var size int64
	for _, r := range records {
		size += r.Size()
	}
	return &block.StoreResult{RecordCount: len(records), SizeBytes: size}, nil
}

func (h *fakeHandler) ReallocateBlock(ctx context.Context, id block.ID, host string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reallocErr != nil {
		return h.reallocErr
	}
	h.reallocated[id.String()] = host
	return nil
}

func (h *fakeHandler) CleanupOldBlocks(ctx context.Context, threshold time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanedAt = threshold
	return nil
}

func (h *fakeHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

type coordCall struct {
	op   string
	info block.Info
	size int64
	host string
}

type fakeCoordinator struct {
	mu          sync.Mutex
	calls       []coordCall
	registerErr error
	addBlockErr error
}

func (c *fakeCoordinator) RegisterReceiver(ctx context.Context, stream int, host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, coordCall{op: "register", host: host})
	return c.registerErr
}

func (c *fakeCoordinator) DeregisterReceiver(ctx context.Context, stream int, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, coordCall{op: "deregister"})
	return nil
}

func (c *fakeCoordinator) AddBlock(ctx context.Context, info block.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, coordCall{op: "add_block", info: info})
	return c.addBlockErr
}

func (c *fakeCoordinator) ReportError(ctx context.Context, message string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, coordCall{op: "report_error"})
	return nil
}

func (c *fakeCoordinator) ReportSize(ctx context.Context, sizeBytes int64, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, coordCall{op: "report_size", size: sizeBytes, host: host})
}

func (c *fakeCoordinator) callsByOp(op string) []coordCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []coordCall
	for _, call := range c.calls {
		if call.op == op {
			out = append(out, call)
		}
	}
	return out
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeGenerator, *fakeHandler, *fakeCoordinator) {
	t.Helper()
	gen := &fakeGenerator{}
	handler := newFakeHandler()
	coord := &fakeCoordinator{}
	sup := New(Config{StreamID: 3, Host: "node-a"}, handler, coord, testLogger())
	sup.Attach(gen)
	return sup, gen, handler, coord
}

func TestStartRegistersThenStartsGenerator(t *testing.T) {
	sup, gen, _, coord := newTestSupervisor(t)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !gen.started {
		t.Error("generator not started")
	}
	if calls := coord.callsByOp("register"); len(calls) != 1 {
		t.Errorf("register calls = %d, want 1", len(calls))
	}

	if err := sup.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}

func TestStartFailsWhenRegistrationFails(t *testing.T) {
	sup, gen, _, coord := newTestSupervisor(t)
	coord.registerErr = errors.New("coordinator down")

	if err := sup.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded with failing registration")
	}
	if gen.started {
		t.Error("generator started despite failed registration")
	}
}

func TestStopOrdering(t *testing.T) {
	sup, gen, handler, coord := newTestSupervisor(t)
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := sup.Stop(context.Background(), "maintenance"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !gen.stopped {
		t.Error("generator not stopped")
	}
	if calls := coord.callsByOp("deregister"); len(calls) != 1 {
		t.Errorf("deregister calls = %d, want 1", len(calls))
	}
	if !handler.closed {
		t.Error("storage handler not closed")
	}

	// Second Stop is a no-op.
	if err := sup.Stop(context.Background(), "again"); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if calls := coord.callsByOp("deregister"); len(calls) != 1 {
		t.Errorf("deregister calls after second Stop = %d, want 1", len(calls))
	}
}

func TestStoreForwardsToGenerator(t *testing.T) {
	sup, gen, _, _ := newTestSupervisor(t)

	record := block.Record{Data: []byte("payload"), Timestamp: time.Now()}
	if err := sup.Store(context.Background(), record); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.added) != 1 {
		t.Fatalf("records forwarded = %d, want 1", len(gen.added))
	}
	if string(gen.added[0].Data) != "payload" {
		t.Errorf("forwarded data = %q, want %q", gen.added[0].Data, "payload")
	}
}

func TestOnPushBlockStoresAndReports(t *testing.T) {
	sup, _, handler, coord := newTestSupervisor(t)

	id := block.NewID(3, time.Now())
	records := []block.Record{{Data: []byte("abc")}, {Data: []byte("de")}}
	if err := sup.OnPushBlock(id, records); err != nil {
		t.Fatalf("OnPushBlock() error = %v", err)
	}

	if len(handler.stored) != 1 || handler.stored[0] != id {
		t.Errorf("stored blocks = %v, want [%v]", handler.stored, id)
	}

	added := coord.callsByOp("add_block")
	if len(added) != 1 {
		t.Fatalf("add_block calls = %d, want 1", len(added))
	}
	if added[0].info.RecordCount != 2 {
		t.Errorf("reported RecordCount = %d, want 2", added[0].info.RecordCount)
	}
	if added[0].info.SizeBytes != 5 {
		t.Errorf("reported SizeBytes = %d, want 5", added[0].info.SizeBytes)
	}
	if added[0].info.Host != "node-a" {
		t.Errorf("reported Host = %q, want node-a", added[0].info.Host)
	}

	sizes := coord.callsByOp("report_size")
	if len(sizes) != 1 {
		t.Fatalf("report_size calls = %d, want 1", len(sizes))
	}
	if sizes[0].host != "node-a" {
		t.Errorf("size reported under host %q, want node-a", sizes[0].host)
	}
}

func TestOnPushBlockStoreFailure(t *testing.T) {
	sup, _, handler, coord := newTestSupervisor(t)
	handler.storeErr = errors.New("disk full")

	err := sup.OnPushBlock(block.NewID(3, time.Now()), []block.Record{{Data: []byte("x")}})
	if err == nil {
		t.Fatal("OnPushBlock() succeeded with failing storage")
	}
	if calls := coord.callsByOp("add_block"); len(calls) != 0 {
		t.Errorf("add_block calls = %d, want 0 after store failure", len(calls))
	}
}

func TestRelocationForSplitBlock(t *testing.T) {
	sup, gen, handler, coord := newTestSupervisor(t)

	sup.UpdateRatioAndRelocation([]float64{0.5, 0.5}, map[int]string{1: "node-b"})
	if len(gen.ratios) != 2 {
		t.Fatalf("ratios forwarded = %v, want 2 entries", gen.ratios)
	}

	ts := time.Now()
	slice0 := block.NewSliceID(3, ts, 0)
	slice1 := block.NewSliceID(3, ts, 1)

	if err := sup.OnPushBlock(slice0, []block.Record{{Data: []byte("a")}}); err != nil {
		t.Fatalf("OnPushBlock(slice0) error = %v", err)
	}
	if err := sup.OnPushBlock(slice1, []block.Record{{Data: []byte("b")}}); err != nil {
		t.Fatalf("OnPushBlock(slice1) error = %v", err)
	}

	// Slice 0 has no relocation entry; slice 1 moves to node-b.
	if _, ok := handler.reallocated[slice0.String()]; ok {
		t.Error("slice 0 reallocated without a table entry")
	}
	if got := handler.reallocated[slice1.String()]; got != "node-b" {
		t.Errorf("slice 1 reallocated to %q, want node-b", got)
	}

	added := coord.callsByOp("add_block")
	if len(added) != 2 {
		t.Fatalf("add_block calls = %d, want 2", len(added))
	}
	if added[1].info.Host != "node-b" {
		t.Errorf("relocated block reported under host %q, want node-b", added[1].info.Host)
	}
}

func TestRelocationForUnsplitBlockUsesSliceZero(t *testing.T) {
	sup, _, handler, _ := newTestSupervisor(t)

	sup.UpdateRatioAndRelocation(nil, map[int]string{0: "node-c"})

	id := block.NewID(3, time.Now())
	if err := sup.OnPushBlock(id, []block.Record{{Data: []byte("a")}}); err != nil {
		t.Fatalf("OnPushBlock() error = %v", err)
	}
	if got := handler.reallocated[id.String()]; got != "node-c" {
		t.Errorf("unsplit block reallocated to %q, want node-c", got)
	}
}

func TestRelocationToLocalHostIsNoop(t *testing.T) {
	sup, _, handler, _ := newTestSupervisor(t)

	sup.UpdateRatioAndRelocation(nil, map[int]string{0: "node-a"})

	id := block.NewID(3, time.Now())
	if err := sup.OnPushBlock(id, []block.Record{{Data: []byte("a")}}); err != nil {
		t.Fatalf("OnPushBlock() error = %v", err)
	}
	if len(handler.reallocated) != 0 {
		t.Errorf("reallocations = %v, want none for local destination", handler.reallocated)
	}
}

func TestRelocationFailureKeepsLocalHost(t *testing.T) {
	sup, _, handler, coord := newTestSupervisor(t)
	handler.reallocErr = errors.New("copy failed")

	sup.UpdateRatioAndRelocation(nil, map[int]string{0: "node-b"})

	id := block.NewID(3, time.Now())
	if err := sup.OnPushBlock(id, []block.Record{{Data: []byte("a")}}); err != nil {
		t.Fatalf("OnPushBlock() error = %v", err)
	}

	added := coord.callsByOp("add_block")
	if len(added) != 1 {
		t.Fatalf("add_block calls = %d, want 1", len(added))
	}
	if added[0].info.Host != "node-a" {
		t.Errorf("block reported under host %q after failed relocation, want node-a", added[0].info.Host)
	}
}

func TestOnErrorForwardsToCoordinator(t *testing.T) {
	sup, _, _, coord := newTestSupervisor(t)

	sup.OnError("tick failed", errors.New("boom"))

	if calls := coord.callsByOp("report_error"); len(calls) != 1 {
		t.Errorf("report_error calls = %d, want 1", len(calls))
	}
}

func TestCleanupDelegatesToHandler(t *testing.T) {
	sup, _, handler, _ := newTestSupervisor(t)

	threshold := time.Now().Add(-time.Hour)
	if err := sup.CleanupOldBlocks(context.Background(), threshold); err != nil {
		t.Fatalf("CleanupOldBlocks() error = %v", err)
	}
	if !handler.cleanedAt.Equal(threshold) {
		t.Errorf("cleanup threshold = %v, want %v", handler.cleanedAt, threshold)
	}
}
