package renewal

// AnalysisState is the projection lifecycle. A decision is trustworthy only
// in StateStable.
type AnalysisState int32

const (
	StateComputing AnalysisState = iota
	StateStabilizing
	StateStable
)

func (s AnalysisState) String() string {
	switch s {
	case StateComputing:
		return "COMPUTING"
	case StateStabilizing:
		return "STABILIZING"
	case StateStable:
		return "STABLE"
	}
	return "UNKNOWN"
}

// ChunkMetrics is the derived per-chunk view owned by the projection.
// Indices are 0.0 or 1.0 today; modeled as floats for future refinement.
type ChunkMetrics struct {
	Forgettability         float64
	Liveliness             float64
	EligibleByRegionChoice float64
	EligibleByChunkChoice  float64
}

// DecisionKind tags the renewal decision union.
type DecisionKind int

const (
	DecisionRegion DecisionKind = iota
	DecisionChunkBatch
)

// Decision is the current renewal target: one whole region, or a capped
// batch of individual chunks. Fully replaced at every stabilization pass.
type Decision struct {
	Kind   DecisionKind
	Region RegionKey
	Chunks []ChunkKey
}

// StatusView is a cheap, always-safe progress report.
type StatusView struct {
	State             AnalysisState
	PendingWorkSet    int
	TrackedChunks     int
	HasStableDecision bool
}

// StableSnapshot is the immutable result of one stabilization pass.
// Decision is nil when nothing is currently eligible.
type StableSnapshot struct {
	Pass     uint64
	Metrics  map[ChunkKey]ChunkMetrics
	Decision *Decision
}

// StableListener receives each completed stabilization pass exactly once.
// A panicking listener is caught and logged; it never aborts the pass.
type StableListener interface {
	OnStable(snap *StableSnapshot)
}

// StableListenerFunc adapts a function to StableListener.
type StableListenerFunc func(snap *StableSnapshot)

func (f StableListenerFunc) OnStable(snap *StableSnapshot) { f(snap) }
