package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"worldrenew/internal/protocol"
	"worldrenew/internal/renewal"
)

func setup(t *testing.T) (*renewal.WorldMap, *renewal.Projection, *renewal.Gate, *httptest.Server) {
	t.Helper()
	wm := renewal.NewWorldMap()
	proj, err := renewal.NewProjection(renewal.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if err := proj.Attach(wm); err != nil {
		t.Fatalf("attach: %v", err)
	}
	g := renewal.NewGate(nil)
	if err := g.Attach(wm, proj); err != nil {
		t.Fatalf("gate: %v", err)
	}
	srv := httptest.NewServer(NewServer(wm, proj, 16, nil).Routes())
	t.Cleanup(srv.Close)
	return wm, proj, g, srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func inhabited(v int64) *renewal.ChunkSignals {
	return &renewal.ChunkSignals{InhabitedTimeTicks: &v}
}

func TestStatusEndpoint(t *testing.T) {
	_, proj, g, srv := setup(t)
	g.ApplyFactOnTickThread(renewal.ChunkMetadataFact{
		Key:     renewal.ChunkKey{WorldID: "w", ChunkX: 1},
		Signals: inhabited(0),
	})

	var msg protocol.StatusMsg
	if code := getJSON(t, srv.URL+"/status", &msg); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if msg.State != "COMPUTING" || msg.PendingWorkSet != 1 {
		t.Fatalf("unexpected status: %+v", msg)
	}

	for i := 0; i < 10 && proj.State() != renewal.StateStable; i++ {
		proj.Tick()
	}
	if code := getJSON(t, srv.URL+"/status", &msg); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if msg.State != "STABLE" || !msg.HasStableDecision {
		t.Fatalf("unexpected stable status: %+v", msg)
	}
	if msg.TotalChunks != 1 || msg.ScannedChunks != 1 || msg.TrackedChunks != 1 {
		t.Fatalf("unexpected counts: %+v", msg)
	}
}

func TestDecisionEndpoint(t *testing.T) {
	_, proj, g, srv := setup(t)
	if code := getJSON(t, srv.URL+"/decision", nil); code != http.StatusConflict {
		t.Fatalf("no stable pass yet: want 409, got %d", code)
	}

	g.ApplyFactOnTickThread(renewal.ChunkMetadataFact{
		Key:     renewal.ChunkKey{WorldID: "w", RegionX: 2, RegionZ: 3, ChunkX: 70, ChunkZ: 100},
		Signals: inhabited(0),
	})
	for i := 0; i < 10 && proj.State() != renewal.StateStable; i++ {
		proj.Tick()
	}

	var msg protocol.DecisionMsg
	if code := getJSON(t, srv.URL+"/decision", &msg); code != http.StatusOK {
		t.Fatalf("decision code %d", code)
	}
	if msg.Decision == nil || msg.Decision.Kind != "REGION" {
		t.Fatalf("expected region decision, got %+v", msg.Decision)
	}
	if msg.Decision.Region.RegionX != 2 || msg.Decision.Region.RegionZ != 3 {
		t.Fatalf("wrong region: %+v", msg.Decision.Region)
	}
}

func TestMissingEndpoint(t *testing.T) {
	wm, _, _, srv := setup(t)
	for i := 0; i < 5; i++ {
		wm.EnsureExists(renewal.ChunkKey{WorldID: "w", ChunkX: i})
	}

	var out struct {
		Missing []protocol.ChunkRef `json:"missing"`
	}
	if code := getJSON(t, srv.URL+"/missing?limit=3", &out); code != http.StatusOK {
		t.Fatalf("missing code %d", code)
	}
	if len(out.Missing) != 3 {
		t.Fatalf("limit not honored: %d", len(out.Missing))
	}
	if out.Missing[0].ChunkX != 0 || out.Missing[2].ChunkX != 2 {
		t.Fatalf("ordering wrong: %+v", out.Missing)
	}
}
