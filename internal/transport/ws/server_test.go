package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"worldrenew/internal/protocol"
	"worldrenew/internal/renewal"
)

func dial(t *testing.T, facts chan renewal.ChunkMetadataFact) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(facts, nil).Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestIngest_HelloThenFact(t *testing.T) {
	facts := make(chan renewal.ChunkMetadataFact, 8)
	conn := dial(t, facts)

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ScannerName:     "probe",
	}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.ScannerID == "" {
		t.Fatalf("bad welcome: %+v", welcome)
	}

	inhabited := int64(7)
	if err := conn.WriteJSON(protocol.FactMsg{
		Type:               protocol.TypeFact,
		ProtocolVersion:    protocol.Version,
		WorldID:            "w",
		RegionX:            1,
		RegionZ:            2,
		ChunkX:             33,
		ChunkZ:             66,
		InhabitedTimeTicks: &inhabited,
		ScanTick:           100,
	}); err != nil {
		t.Fatalf("fact: %v", err)
	}

	select {
	case f := <-facts:
		if f.Key != (renewal.ChunkKey{WorldID: "w", RegionX: 1, RegionZ: 2, ChunkX: 33, ChunkZ: 66}) {
			t.Fatalf("bad key: %+v", f.Key)
		}
		if f.Signals == nil || *f.Signals.InhabitedTimeTicks != 7 {
			t.Fatalf("bad signals: %+v", f.Signals)
		}
		if f.Source != welcome.ScannerID {
			t.Fatalf("source must default to the scanner id, got %q", f.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fact never reached the inbox")
	}
}

func TestIngest_RejectsNonHelloHandshake(t *testing.T) {
	facts := make(chan renewal.ChunkMetadataFact, 1)
	conn := dial(t, facts)

	if err := conn.WriteJSON(protocol.FactMsg{Type: protocol.TypeFact, ProtocolVersion: protocol.Version, WorldID: "w"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close on bad handshake")
	}
	select {
	case f := <-facts:
		t.Fatalf("no fact should pass the handshake: %+v", f)
	default:
	}
}

func TestFactFromMsg_Validation(t *testing.T) {
	if _, ok := factFromMsg(protocol.FactMsg{}, "S1"); ok {
		t.Fatalf("empty world id must be rejected")
	}
	neg := int64(-1)
	if _, ok := factFromMsg(protocol.FactMsg{WorldID: "w", InhabitedTimeTicks: &neg}, "S1"); ok {
		t.Fatalf("negative inhabited time must be rejected")
	}
	if f, ok := factFromMsg(protocol.FactMsg{WorldID: "w", Source: "disk-sweep"}, "S1"); !ok || f.Source != "disk-sweep" {
		t.Fatalf("explicit source must win: %+v", f)
	}
	if f, ok := factFromMsg(protocol.FactMsg{WorldID: "w", UnresolvedReason: "CORRUPT"}, "S1"); !ok || f.Unresolved != renewal.UnresolvedCorrupt {
		t.Fatalf("unresolved reason must map: %+v", f)
	}
}
