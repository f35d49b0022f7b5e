package renewal

import (
	"sort"
	"sync"
)

type mapEntry struct {
	signals      *ChunkSignals
	scanned      bool
	lastScanTick uint64
	lastSource   string
}

// WorldMap is the authoritative store of per-chunk facts. Writes come only
// from the ingestion gate on the tick thread; reads may come from anywhere.
// A key's presence means the chunk is known to exist; non-nil signals mean it
// has been scanned with usable content at least once.
type WorldMap struct {
	mu      sync.RWMutex
	entries map[ChunkKey]*mapEntry
	scanned int
}

func NewWorldMap() *WorldMap {
	return &WorldMap{entries: map[ChunkKey]*mapEntry{}}
}

// EnsureExists registers a chunk as known without signals. Idempotent.
func (m *WorldMap) EnsureExists(key ChunkKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = &mapEntry{}
	}
}

// UpsertSignals inserts or replaces signals for key and reports whether the
// stored facts changed: first-ever signals, or a value differing from the old.
func (m *WorldMap) UpsertSignals(key ChunkKey, signals ChunkSignals) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &mapEntry{}
		m.entries[key] = e
	}
	changed := e.signals == nil || !e.signals.Equal(signals)
	cp := signals
	e.signals = &cp
	return changed
}

// MarkScanned records a scan attempt (with provenance) regardless of whether
// usable signals were attached. Returns true only on the first transition
// from unscanned to scanned for this key.
func (m *WorldMap) MarkScanned(key ChunkKey, scanTick uint64, source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &mapEntry{}
		m.entries[key] = e
	}
	e.lastScanTick = scanTick
	e.lastSource = source
	if e.scanned {
		return false
	}
	e.scanned = true
	m.scanned++
	return true
}

// MissingSignals returns up to limit keys that have no signals yet, ordered
// by (WorldID, RegionX, RegionZ, ChunkX, ChunkZ).
func (m *WorldMap) MissingSignals(limit int) []ChunkKey {
	m.mu.RLock()
	keys := make([]ChunkKey, 0)
	for k, e := range m.entries {
		if e.signals == nil {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

// SnapshotEntry pairs a key with its scanned signals.
type SnapshotEntry struct {
	Key     ChunkKey
	Signals ChunkSignals
}

// Snapshot copies out all chunks with signals, ordered deterministically.
// Copy-on-read: safe to call concurrently with writers; the view is weakly
// consistent, which is fine because the projection re-triggers on change.
func (m *WorldMap) Snapshot() []SnapshotEntry {
	m.mu.RLock()
	out := make([]SnapshotEntry, 0, len(m.entries))
	for k, e := range m.entries {
		if e.signals != nil {
			out = append(out, SnapshotEntry{Key: k, Signals: *e.signals})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

func (m *WorldMap) TotalChunks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *WorldMap) ScannedChunks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanned
}

func (m *WorldMap) IsComplete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries) > 0 && m.scanned == len(m.entries)
}
