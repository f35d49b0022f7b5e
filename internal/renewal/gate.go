package renewal

import (
	"fmt"
	"log"
)

// Gate is the single authoritative entry point applying facts to the world
// map. Not safe to call concurrently with itself: the owning runtime must
// serialize every ApplyFactOnTickThread call onto one execution context.
type Gate struct {
	logger *log.Logger

	wm   *WorldMap
	proj *Projection

	attached     bool
	scanComplete bool
	applied      uint64
	notified     uint64

	// Optional fact logger (may be nil). Implemented in internal/persistence/*.
	factLog FactLogger
}

type FactLogger interface {
	WriteFact(entry FactLogEntry) error
}

// FactLogEntry records one applied observation for provenance.
type FactLogEntry struct {
	Key          ChunkKey
	ScanTick     uint64
	Source       string
	Unresolved   UnresolvedReason
	Inhabited    *int64
	Changed      bool
	FirstScanned bool
}

func NewGate(logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	return &Gate{logger: logger}
}

// Attach binds the gate to its world map and projection.
func (g *Gate) Attach(wm *WorldMap, proj *Projection) error {
	if wm == nil || proj == nil {
		return fmt.Errorf("gate attach: nil world map or projection")
	}
	g.wm = wm
	g.proj = proj
	g.attached = true
	g.scanComplete = false
	return nil
}

// Detach revokes the gate's authority; subsequent facts are dropped.
func (g *Gate) Detach() {
	g.attached = false
}

// ApplyFactOnTickThread applies one observation. The projection is notified
/// only when something factually changed: redundant re-delivery of unchanged
// facts (duplicate or retried scans) must not restart the analysis, or
// convergence would thrash under scanner retry storms.
func (g *Gate) ApplyFactOnTickThread(fact ChunkMetadataFact) {
	if !g.attached {
		return
	}
	g.applied++

	signalsChanged := false
	if fact.Signals != nil {
		signalsChanged = g.wm.UpsertSignals(fact.Key, *fact.Signals)
	}

	// Record the scan attempt even when signals are absent (e.g. the chunk
	// was unresolvable); the first such mark is itself new information.
	firstScanned := g.wm.MarkScanned(fact.Key, fact.ScanTick, fact.Source)

	if g.factLog != nil {
		entry := FactLogEntry{
			Key:          fact.Key,
			ScanTick:     fact.ScanTick,
			Source:       fact.Source,
			Unresolved:   fact.Unresolved,
			Changed:      signalsChanged,
			FirstScanned: firstScanned,
		}
		if fact.Signals != nil {
			entry.Inhabited = fact.Signals.InhabitedTimeTicks
		}
		if err := g.factLog.WriteFact(entry); err != nil {
			g.logger.Printf("fact log: %v", err)
		}
	}

	if signalsChanged || firstScanned {
		g.notified++
		g.proj.ObserveFactApplied(fact)
	}

	if !g.scanComplete && g.wm.IsComplete() {
		g.scanComplete = true
		g.proj.ObserveWorldScanCompleted()
	}
}

// SetFactLogger installs the optional provenance logger.
func (g *Gate) SetFactLogger(l FactLogger) { g.factLog = l }

// AppliedFacts reports how many facts the gate has applied since attach.
func (g *Gate) AppliedFacts() uint64 { return g.applied }

// NotifiedFacts reports how many of those were forwarded as factual changes.
func (g *Gate) NotifiedFacts() uint64 { return g.notified }
