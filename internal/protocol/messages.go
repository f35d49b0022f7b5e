package protocol

// HELLO (scanner -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ScannerName     string `json:"scanner_name"`
}

// WELCOME (server -> scanner)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ScannerID       string `json:"scanner_id"`
}

// FACT (scanner -> server): one chunk-metadata observation.
type FactMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	RegionX         int    `json:"region_x"`
	RegionZ         int    `json:"region_z"`
	ChunkX          int    `json:"chunk_x"`
	ChunkZ          int    `json:"chunk_z"`
	// Absent means existence known, content not inspected.
	InhabitedTimeTicks *int64 `json:"inhabited_time_ticks,omitempty"`
	DominantStone      string `json:"dominant_stone,omitempty"`
	ScanTick           uint64 `json:"scan_tick"`
	Source             string `json:"source,omitempty"`
	UnresolvedReason   string `json:"unresolved_reason,omitempty"`
}

// STATUS (server -> consumer)
type StatusMsg struct {
	Type              string `json:"type"`
	ProtocolVersion   string `json:"protocol_version"`
	State             string `json:"state"`
	PendingWorkSet    int    `json:"pending_work_set"`
	TrackedChunks     int    `json:"tracked_chunks"`
	TotalChunks       int    `json:"total_chunks"`
	ScannedChunks     int    `json:"scanned_chunks"`
	HasStableDecision bool   `json:"has_stable_decision"`
}

// DECISION (server -> consumer): the current stable renewal target.
// Decision is null while no stable pass has completed or nothing is eligible.
type DecisionMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Pass            uint64       `json:"pass"`
	Decision        *DecisionRef `json:"decision"`
}

type DecisionRef struct {
	Kind   string     `json:"kind"` // "REGION" or "CHUNK_BATCH"
	Region *RegionRef `json:"region,omitempty"`
	Chunks []ChunkRef `json:"chunks,omitempty"`
}

type RegionRef struct {
	WorldID string `json:"world_id"`
	RegionX int    `json:"region_x"`
	RegionZ int    `json:"region_z"`
}

type ChunkRef struct {
	WorldID string `json:"world_id"`
	RegionX int    `json:"region_x"`
	RegionZ int    `json:"region_z"`
	ChunkX  int    `json:"chunk_x"`
	ChunkZ  int    `json:"chunk_z"`
}
