package status

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"worldrenew/internal/protocol"
	"worldrenew/internal/renewal"
)

// Server is the read-only consumer surface: progress reporting, the current
// stable decision, and the missing-signals work queue for scanners. It never
// touches the tick thread beyond the store's own mutexes.
type Server struct {
	wm   *renewal.WorldMap
	proj *renewal.Projection
	log  *log.Logger

	missingPageSize int
}

func NewServer(wm *renewal.WorldMap, proj *renewal.Projection, missingPageSize int, logger *log.Logger) *Server {
	if missingPageSize <= 0 {
		missingPageSize = 512
	}
	return &Server{wm: wm, proj: proj, log: logger, missingPageSize: missingPageSize}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Get("/decision", s.handleDecision)
	r.Get("/missing", s.handleMissing)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view := s.proj.StatusView()
	writeJSON(w, protocol.StatusMsg{
		Type:              protocol.TypeStatus,
		ProtocolVersion:   protocol.Version,
		State:             view.State.String(),
		PendingWorkSet:    view.PendingWorkSet,
		TrackedChunks:     view.TrackedChunks,
		TotalChunks:       s.wm.TotalChunks(),
		ScannedChunks:     s.wm.ScannedChunks(),
		HasStableDecision: view.HasStableDecision,
	})
}

// handleDecision serves the last stable pass. A nil decision means nothing
// is currently eligible; consumers retry later. The decision is a hint, not
// a commitment: the next stabilization may replace it wholesale.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	snap := s.proj.StableSnapshot()
	if snap == nil {
		http.Error(w, `{"error":"no stable decision"}`, http.StatusConflict)
		return
	}
	writeJSON(w, protocol.DecisionMsg{
		Type:            protocol.TypeDecision,
		ProtocolVersion: protocol.Version,
		Pass:            snap.Pass,
		Decision:        DecisionRef(snap.Decision),
	})
}

func (s *Server) handleMissing(w http.ResponseWriter, r *http.Request) {
	limit := s.missingPageSize
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v < limit {
			limit = v
		}
	}
	keys := s.wm.MissingSignals(limit)
	out := make([]protocol.ChunkRef, 0, len(keys))
	for _, k := range keys {
		out = append(out, protocol.ChunkRef{
			WorldID: k.WorldID,
			RegionX: k.RegionX,
			RegionZ: k.RegionZ,
			ChunkX:  k.ChunkX,
			ChunkZ:  k.ChunkZ,
		})
	}
	writeJSON(w, map[string]any{"missing": out})
}

// DecisionRef converts an engine decision to its wire form.
func DecisionRef(d *renewal.Decision) *protocol.DecisionRef {
	if d == nil {
		return nil
	}
	if d.Kind == renewal.DecisionRegion {
		return &protocol.DecisionRef{
			Kind: "REGION",
			Region: &protocol.RegionRef{
				WorldID: d.Region.WorldID,
				RegionX: d.Region.RegionX,
				RegionZ: d.Region.RegionZ,
			},
		}
	}
	chunks := make([]protocol.ChunkRef, 0, len(d.Chunks))
	for _, k := range d.Chunks {
		chunks = append(chunks, protocol.ChunkRef{
			WorldID: k.WorldID,
			RegionX: k.RegionX,
			RegionZ: k.RegionZ,
			ChunkX:  k.ChunkX,
			ChunkZ:  k.ChunkZ,
		})
	}
	return &protocol.DecisionRef{Kind: "CHUNK_BATCH", Chunks: chunks}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
