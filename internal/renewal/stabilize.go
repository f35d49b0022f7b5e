package renewal

import (
	"math"
	"sort"
)

// stabilize runs the full (non-incremental) pass: recompute liveliness for
// every scanned chunk against the global per-world threshold, then replace
// the decision. Cheap linear work producing a globally consistent view.
func (p *Projection) stabilize(snap []SnapshotEntry) {
	if len(snap) == 0 {
		p.metrics = map[ChunkKey]*ChunkMetrics{}
		p.decision = nil
		p.tracked.Store(0)
		return
	}

	idx := indexSnapshot(snap)

	// Drop metrics for chunks that left the snapshot.
	for k := range p.metrics {
		if _, ok := idx.byKey[k]; !ok {
			delete(p.metrics, k)
		}
	}

	maxByWorld := map[string]int64{}
	for _, e := range snap {
		if e.Signals.InhabitedTimeTicks == nil {
			continue
		}
		if v := *e.Signals.InhabitedTimeTicks; v > maxByWorld[e.Key.WorldID] {
			maxByWorld[e.Key.WorldID] = v
		}
	}

	for _, e := range snap {
		m, ok := p.metrics[e.Key]
		if !ok {
			m = &ChunkMetrics{Forgettability: forgettability(e.Key, e.Signals, idx, p.cfg.PropagationRadius)}
			p.metrics[e.Key] = m
		}
		m.EligibleByRegionChoice = 0.0
		m.EligibleByChunkChoice = 0.0
		switch {
		case e.Signals.InhabitedTimeTicks == nil:
			// Unknown content: assume lively.
			m.Liveliness = 1.0
		case maxByWorld[e.Key.WorldID] == 0:
			m.Liveliness = 0.0
		case float64(*e.Signals.InhabitedTimeTicks) >= p.cfg.LivelinessThreshold*float64(maxByWorld[e.Key.WorldID]):
			m.Liveliness = 1.0
		default:
			m.Liveliness = 0.0
		}
	}
	p.tracked.Store(int64(len(p.metrics)))

	p.decision = p.computeDecision(snap)
	switch {
	case p.decision == nil:
	case p.decision.Kind == DecisionRegion:
		for _, e := range snap {
			if e.Key.Region() == p.decision.Region {
				p.metrics[e.Key].EligibleByRegionChoice = 1.0
			}
		}
	default:
		for _, k := range p.decision.Chunks {
			p.metrics[k].EligibleByChunkChoice = 1.0
		}
	}
}

// computeDecision picks the next renewal target. Deterministic: identical
// snapshot and metrics always produce the identical result. Prefers one
// whole region (cheapest to regenerate downstream); falls back to a capped
// chunk batch so sparse worlds still make progress.
func (p *Projection) computeDecision(snap []SnapshotEntry) *Decision {
	byRegion := map[RegionKey][]ChunkKey{}
	livelyRegions := map[string][]RegionKey{}
	livelyChunks := map[string][]ChunkKey{}
	for _, e := range snap {
		rk := e.Key.Region()
		byRegion[rk] = append(byRegion[rk], e.Key)
		if p.metrics[e.Key].Liveliness == 1.0 {
			livelyChunks[e.Key.WorldID] = append(livelyChunks[e.Key.WorldID], e.Key)
		}
	}
	fully := map[RegionKey]bool{}
	for rk, keys := range byRegion {
		all := true
		anyLively := false
		for _, k := range keys {
			if p.metrics[k].Forgettability != 1.0 {
				all = false
			}
			if p.metrics[k].Liveliness == 1.0 {
				anyLively = true
			}
		}
		fully[rk] = all
		if anyLively {
			livelyRegions[rk.WorldID] = append(livelyRegions[rk.WorldID], rk)
		}
	}

	// Region tier: a candidate must be fully forgettable, and every
	// 8-connected neighbor region that has scanned chunks must be fully
	// forgettable too. Neighbors with no scanned chunks pass vacuously.
	var candidates []RegionKey
	for rk, all := range fully {
		if !all {
			continue
		}
		ok := true
		for dz := -1; dz <= 1 && ok; dz++ {
			for dx := -1; dx <= 1 && ok; dx++ {
				if dx == 0 && dz == 0 {
					continue
				}
				nk := RegionKey{WorldID: rk.WorldID, RegionX: rk.RegionX + dx, RegionZ: rk.RegionZ + dz}
				if _, occupied := byRegion[nk]; occupied && !fully[nk] {
					ok = false
				}
			}
		}
		if ok {
			candidates = append(candidates, rk)
		}
	}

	if len(candidates) > 0 {
		dist := func(rk RegionKey) float64 {
			lively := livelyRegions[rk.WorldID]
			if len(lively) == 0 {
				return math.Inf(1)
			}
			best := math.Inf(1)
			for _, lr := range lively {
				d := float64(chebyshev(rk.RegionX, rk.RegionZ, lr.RegionX, lr.RegionZ))
				if d < best {
					best = d
				}
			}
			return best
		}
		sort.Slice(candidates, func(i, j int) bool {
			di, dj := dist(candidates[i]), dist(candidates[j])
			if di != dj {
				return di > dj
			}
			a, b := candidates[i], candidates[j]
			if a.WorldID != b.WorldID {
				return a.WorldID < b.WorldID
			}
			if a.RegionZ != b.RegionZ {
				return a.RegionZ < b.RegionZ
			}
			return a.RegionX < b.RegionX
		})
		return &Decision{Kind: DecisionRegion, Region: candidates[0]}
	}

	// Chunk tier: farthest forgettable chunks from any lively chunk.
	type scored struct {
		key  ChunkKey
		dist float64
	}
	var pool []scored
	for _, e := range snap {
		if p.metrics[e.Key].Forgettability != 1.0 {
			continue
		}
		lively := livelyChunks[e.Key.WorldID]
		d := math.Inf(1)
		for _, lk := range lively {
			v := float64(chebyshev(e.Key.ChunkX, e.Key.ChunkZ, lk.ChunkX, lk.ChunkZ))
			if v < d {
				d = v
			}
		}
		pool = append(pool, scored{key: e.Key, dist: d})
	}
	if len(pool) == 0 {
		return nil
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].dist != pool[j].dist {
			return pool[i].dist > pool[j].dist
		}
		a, b := pool[i].key, pool[j].key
		if a.WorldID != b.WorldID {
			return a.WorldID < b.WorldID
		}
		if a.ChunkZ != b.ChunkZ {
			return a.ChunkZ < b.ChunkZ
		}
		return a.ChunkX < b.ChunkX
	})
	if len(pool) > p.cfg.ChunkBatchCap {
		pool = pool[:p.cfg.ChunkBatchCap]
	}
	out := make([]ChunkKey, 0, len(pool))
	for _, s := range pool {
		out = append(out, s.key)
	}
	return &Decision{Kind: DecisionChunkBatch, Chunks: out}
}
