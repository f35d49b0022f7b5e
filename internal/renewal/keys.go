package renewal

// ChunkKey identifies one chunk. Region coordinates are carried rather than
// derived so the store stays decoupled from the region-file layout arithmetic.
type ChunkKey struct {
	WorldID string
	RegionX int
	RegionZ int
	ChunkX  int
	ChunkZ  int
}

func (k ChunkKey) Region() RegionKey {
	return RegionKey{WorldID: k.WorldID, RegionX: k.RegionX, RegionZ: k.RegionZ}
}

// Less orders keys by (WorldID, RegionX, RegionZ, ChunkX, ChunkZ).
func (k ChunkKey) Less(o ChunkKey) bool {
	if k.WorldID != o.WorldID {
		return k.WorldID < o.WorldID
	}
	if k.RegionX != o.RegionX {
		return k.RegionX < o.RegionX
	}
	if k.RegionZ != o.RegionZ {
		return k.RegionZ < o.RegionZ
	}
	if k.ChunkX != o.ChunkX {
		return k.ChunkX < o.ChunkX
	}
	return k.ChunkZ < o.ChunkZ
}

// RegionKey is the coarser grain used for region-level renewal decisions.
type RegionKey struct {
	WorldID string
	RegionX int
	RegionZ int
}

// ChunkSignals holds scan-derived facts about one chunk. A nil
// InhabitedTimeTicks means the chunk's content has not been inspected yet;
// zero means known empty of recent activity.
type ChunkSignals struct {
	InhabitedTimeTicks *int64
	DominantStone      string
}

func (s ChunkSignals) Equal(o ChunkSignals) bool {
	if s.DominantStone != o.DominantStone {
		return false
	}
	if (s.InhabitedTimeTicks == nil) != (o.InhabitedTimeTicks == nil) {
		return false
	}
	if s.InhabitedTimeTicks == nil {
		return true
	}
	return *s.InhabitedTimeTicks == *o.InhabitedTimeTicks
}

// UnresolvedReason explains a scan attempt that produced no usable signals.
type UnresolvedReason string

const (
	UnresolvedNone      UnresolvedReason = ""
	UnresolvedIOError   UnresolvedReason = "IO_ERROR"
	UnresolvedCorrupt   UnresolvedReason = "CORRUPT"
	UnresolvedNotStored UnresolvedReason = "NOT_STORED"
)

// ChunkMetadataFact is one external observation. Produced on any goroutine,
// immutable once built.
type ChunkMetadataFact struct {
	Key        ChunkKey
	Signals    *ChunkSignals
	ScanTick   uint64
	Source     string
	Unresolved UnresolvedReason
}

func chebyshev(ax, az, bx, bz int) int {
	dx := ax - bx
	if dx < 0 {
		dx = -dx
	}
	dz := az - bz
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}
