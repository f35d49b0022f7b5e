package renewal

// snapshotIndex is a per-Tick view over one world-map snapshot: signal lookup
// by key plus per-world entry lists for neighborhood scans.
type snapshotIndex struct {
	byKey   map[ChunkKey]ChunkSignals
	byWorld map[string][]SnapshotEntry
}

func indexSnapshot(snap []SnapshotEntry) *snapshotIndex {
	idx := &snapshotIndex{
		byKey:   make(map[ChunkKey]ChunkSignals, len(snap)),
		byWorld: map[string][]SnapshotEntry{},
	}
	for _, e := range snap {
		idx.byKey[e.Key] = e.Signals
		idx.byWorld[e.Key.WorldID] = append(idx.byWorld[e.Key.WorldID], e)
	}
	return idx
}

// neighbors returns the scanned same-world chunks within Chebyshev radius of
// key, excluding key itself. Only known chunks are returned; coordinates with
// no snapshot entry have nothing to recompute.
func (idx *snapshotIndex) neighbors(key ChunkKey, radius int) []ChunkKey {
	var out []ChunkKey
	for _, e := range idx.byWorld[key.WorldID] {
		if e.Key == key {
			continue
		}
		if chebyshev(key.ChunkX, key.ChunkZ, e.Key.ChunkX, e.Key.ChunkZ) <= radius {
			out = append(out, e.Key)
		}
	}
	return out
}

// forgettability: 1.0 only when the chunk's own inhabited time is known zero
// and no scanned same-world chunk within the radius has unknown or positive
// inhabited time. Unknown counts as activity: the bias is toward not
// forgetting when information is incomplete.
func forgettability(key ChunkKey, sig ChunkSignals, idx *snapshotIndex, radius int) float64 {
	if sig.InhabitedTimeTicks == nil || *sig.InhabitedTimeTicks != 0 {
		return 0.0
	}
	for _, e := range idx.byWorld[key.WorldID] {
		if e.Key == key {
			continue
		}
		if chebyshev(key.ChunkX, key.ChunkZ, e.Key.ChunkX, e.Key.ChunkZ) > radius {
			continue
		}
		if e.Signals.InhabitedTimeTicks == nil || *e.Signals.InhabitedTimeTicks > 0 {
			return 0.0
		}
	}
	return 1.0
}
