package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"worldrenew/internal/protocol"
	"worldrenew/internal/renewal"
)

// Server accepts scanner connections and forwards FACT messages into the
// engine inbox. One reader loop per connection; the engine's tick thread is
// the only consumer.
type Server struct {
	facts chan<- renewal.ChunkMetadataFact
	log   *log.Logger

	nextScanner atomic.Uint64

	upgrader websocket.Upgrader
}

func NewServer(facts chan<- renewal.ChunkMetadataFact, logger *log.Logger) *Server {
	return &Server{
		facts: facts,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		scannerID := s.handshake(conn)
		if scannerID == "" {
			return
		}

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeFact {
				continue
			}
			var fm protocol.FactMsg
			if err := json.Unmarshal(msg, &fm); err != nil {
				continue
			}
			if fm.ProtocolVersion != protocol.Version {
				continue
			}
			fact, ok := factFromMsg(fm, scannerID)
			if !ok {
				continue
			}
			s.facts <- fact
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "protocol version mismatch"), time.Now().Add(time.Second))
		return ""
	}

	id := fmt.Sprintf("S%d", s.nextScanner.Add(1))
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ScannerID:       id,
	}
	b, _ := json.Marshal(welcome)
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return ""
	}
	if s.log != nil {
		s.log.Printf("scanner %s connected (%s)", id, hello.ScannerName)
	}
	return id
}

func factFromMsg(fm protocol.FactMsg, scannerID string) (renewal.ChunkMetadataFact, bool) {
	if fm.WorldID == "" {
		return renewal.ChunkMetadataFact{}, false
	}
	fact := renewal.ChunkMetadataFact{
		Key: renewal.ChunkKey{
			WorldID: fm.WorldID,
			RegionX: fm.RegionX,
			RegionZ: fm.RegionZ,
			ChunkX:  fm.ChunkX,
			ChunkZ:  fm.ChunkZ,
		},
		ScanTick:   fm.ScanTick,
		Source:     scannerID,
		Unresolved: renewal.UnresolvedReason(fm.UnresolvedReason),
	}
	if fm.Source != "" {
		fact.Source = fm.Source
	}
	if fm.InhabitedTimeTicks != nil {
		if *fm.InhabitedTimeTicks < 0 {
			return renewal.ChunkMetadataFact{}, false
		}
		v := *fm.InhabitedTimeTicks
		fact.Signals = &renewal.ChunkSignals{
			InhabitedTimeTicks: &v,
			DominantStone:      fm.DominantStone,
		}
	}
	return fact, true
}
