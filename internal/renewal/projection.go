package renewal

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Config carries the projection's policy constants. These are the main
// tuning levers for convergence speed versus responsiveness.
type Config struct {
	// WorksetBudget is the max number of workset keys recomputed per Tick.
	WorksetBudget int
	// PropagationRadius is the Chebyshev neighborhood (in chunks) a changed
	// forgettability value invalidates.
	PropagationRadius int
	// LivelinessThreshold is the fraction of the world max inhabited time at
	// or above which a chunk counts as lively.
	LivelinessThreshold float64
	// ChunkBatchCap bounds chunk-granularity decisions.
	ChunkBatchCap int
}

func (c Config) Validate() error {
	if c.WorksetBudget <= 0 {
		return fmt.Errorf("workset budget must be positive, got %d", c.WorksetBudget)
	}
	if c.PropagationRadius <= 0 {
		return fmt.Errorf("propagation radius must be positive, got %d", c.PropagationRadius)
	}
	if c.LivelinessThreshold <= 0 || c.LivelinessThreshold > 1 {
		return fmt.Errorf("liveliness threshold must be in (0,1], got %v", c.LivelinessThreshold)
	}
	if c.ChunkBatchCap <= 0 {
		return fmt.Errorf("chunk batch cap must be positive, got %d", c.ChunkBatchCap)
	}
	return nil
}

func DefaultConfig() Config {
	return Config{
		WorksetBudget:       256,
		PropagationRadius:   32,
		LivelinessThreshold: 0.8,
		ChunkBatchCap:       64,
	}
}

// Projection is the incremental renewal analysis engine. All state
// transitions (ObserveFactApplied, Tick, Attach, Detach) happen on the tick
// thread; only the workset is shared, guarded by its own mutex, so that
// notification may be decoupled from ticking.
type Projection struct {
	cfg    Config
	logger *log.Logger

	wm       *WorldMap
	attached bool

	// Workset: deduplicated, FIFO insertion order.
	wsMu    sync.Mutex
	pending []ChunkKey
	inSet   map[ChunkKey]struct{}

	state   atomic.Int32
	tracked atomic.Int64
	stable  atomic.Pointer[StableSnapshot]

	// Tick-thread only.
	metrics   map[ChunkKey]*ChunkMetrics
	decision  *Decision
	passCount uint64
	listeners []StableListener
}

func NewProjection(cfg Config, logger *log.Logger) (*Projection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("projection config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &Projection{
		cfg:     cfg,
		logger:  logger,
		inSet:   map[ChunkKey]struct{}{},
		metrics: map[ChunkKey]*ChunkMetrics{},
	}
	p.state.Store(int32(StateComputing))
	return p, nil
}

// RegisterStableListener adds a listener for completed stabilization passes.
// Tick-thread only (or before the loop starts).
func (p *Projection) RegisterStableListener(l StableListener) {
	p.listeners = append(p.listeners, l)
}

// Attach binds the projection to a world map and seeds the workset from the
// current snapshot. The lifecycle starts fresh from COMPUTING.
func (p *Projection) Attach(wm *WorldMap) error {
	if wm == nil {
		return fmt.Errorf("attach: nil world map")
	}
	if p.attached {
		return fmt.Errorf("attach: already attached")
	}
	p.wm = wm
	p.attached = true
	p.resetDerived()
	for _, e := range wm.Snapshot() {
		p.enqueue(e.Key)
	}
	return nil
}

// Detach clears all projection state. Any decision in flight is discarded.
func (p *Projection) Detach() {
	p.attached = false
	p.wm = nil
	p.resetDerived()
}

func (p *Projection) resetDerived() {
	p.wsMu.Lock()
	p.pending = nil
	p.inSet = map[ChunkKey]struct{}{}
	p.wsMu.Unlock()
	p.metrics = map[ChunkKey]*ChunkMetrics{}
	p.decision = nil
	p.tracked.Store(0)
	p.stable.Store(nil)
	p.state.Store(int32(StateComputing))
}

// ObserveFactApplied is called by the gate when a factual change occurred.
// Enqueues the key and demotes STABLE back to COMPUTING.
func (p *Projection) ObserveFactApplied(fact ChunkMetadataFact) {
	if !p.attached {
		return
	}
	p.enqueue(fact.Key)
	p.state.CompareAndSwap(int32(StateStable), int32(StateComputing))
	p.state.CompareAndSwap(int32(StateStabilizing), int32(StateComputing))
}

// ObserveWorldScanCompleted signals that a full scan sweep finished with no
// individual key left to enqueue; it forces one fresh stabilization so the
// decision reflects the now-complete world.
func (p *Projection) ObserveWorldScanCompleted() {
	if !p.attached {
		return
	}
	p.state.CompareAndSwap(int32(StateStable), int32(StateComputing))
}

func (p *Projection) enqueue(key ChunkKey) {
	p.wsMu.Lock()
	defer p.wsMu.Unlock()
	if _, ok := p.inSet[key]; ok {
		return
	}
	p.inSet[key] = struct{}{}
	p.pending = append(p.pending, key)
}

func (p *Projection) dequeue() (ChunkKey, bool) {
	p.wsMu.Lock()
	defer p.wsMu.Unlock()
	if len(p.pending) == 0 {
		return ChunkKey{}, false
	}
	key := p.pending[0]
	p.pending = p.pending[1:]
	delete(p.inSet, key)
	return key, true
}

func (p *Projection) pendingSize() int {
	p.wsMu.Lock()
	defer p.wsMu.Unlock()
	return len(p.pending)
}

// State reports the current lifecycle state. Safe to call anytime.
func (p *Projection) State() AnalysisState {
	return AnalysisState(p.state.Load())
}

// StatusView is safe to call from any goroutine.
func (p *Projection) StatusView() StatusView {
	st := p.State()
	snap := p.stable.Load()
	return StatusView{
		State:             st,
		PendingWorkSet:    p.pendingSize(),
		TrackedChunks:     int(p.tracked.Load()),
		HasStableDecision: st == StateStable && snap != nil && snap.Decision != nil,
	}
}

// StableSnapshot returns the last completed pass only while STABLE, else nil.
// Callers must never read a mid-computation decision.
func (p *Projection) StableSnapshot() *StableSnapshot {
	if p.State() != StateStable {
		return nil
	}
	return p.stable.Load()
}

// Tick runs one scheduling cycle. Never blocks: COMPUTING drains at most the
// configured budget; STABILIZING is one full pass; STABLE is a no-op.
func (p *Projection) Tick() {
	if !p.attached {
		return
	}
	switch p.State() {
	case StateComputing:
		p.tickComputing()
	case StateStabilizing:
		p.tickStabilizing()
	case StateStable:
	}
}

func (p *Projection) tickComputing() {
	var idx *snapshotIndex
	for i := 0; i < p.cfg.WorksetBudget; i++ {
		key, ok := p.dequeue()
		if !ok {
			break
		}
		if idx == nil {
			idx = indexSnapshot(p.wm.Snapshot())
		}
		p.recompute(key, idx)
	}
	if p.pendingSize() == 0 {
		p.state.CompareAndSwap(int32(StateComputing), int32(StateStabilizing))
	}
}

// recompute refreshes one chunk's forgettability; on a value change it
// re-enqueues the radius neighborhood, since forgettability is only ever a
// function of a chunk and its neighbors.
func (p *Projection) recompute(key ChunkKey, idx *snapshotIndex) {
	sig, tracked := idx.byKey[key]
	if !tracked {
		// Chunk left the snapshot (e.g. fresh attach raced a writer): drop
		// its metric; it will be re-enqueued when its fact arrives.
		if _, had := p.metrics[key]; had {
			delete(p.metrics, key)
			p.tracked.Store(int64(len(p.metrics)))
		}
		return
	}
	next := forgettability(key, sig, idx, p.cfg.PropagationRadius)
	m, ok := p.metrics[key]
	if !ok {
		m = &ChunkMetrics{Forgettability: -1}
		p.metrics[key] = m
		p.tracked.Store(int64(len(p.metrics)))
	}
	if m.Forgettability == next {
		return
	}
	m.Forgettability = next
	for _, n := range idx.neighbors(key, p.cfg.PropagationRadius) {
		p.enqueue(n)
	}
}

func (p *Projection) tickStabilizing() {
	snap := p.wm.Snapshot()
	p.stabilize(snap)
	p.passCount++

	out := &StableSnapshot{
		Pass:     p.passCount,
		Metrics:  make(map[ChunkKey]ChunkMetrics, len(p.metrics)),
		Decision: p.decision,
	}
	for k, m := range p.metrics {
		out.Metrics[k] = *m
	}
	p.stable.Store(out)
	p.state.Store(int32(StateStable))
	// A fact may have landed while stabilizing; do not strand it.
	if p.pendingSize() > 0 {
		p.state.CompareAndSwap(int32(StateStable), int32(StateComputing))
	}

	for _, l := range p.listeners {
		p.notify(l, out)
	}
}

func (p *Projection) notify(l StableListener, snap *StableSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("stable listener panic: %v", r)
		}
	}()
	l.OnStable(snap)
}
