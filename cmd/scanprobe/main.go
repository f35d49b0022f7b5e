package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"worldrenew/internal/protocol"
)

// scanprobe replays chunk-metadata facts from a JSONL file against a running
// renewd, exercising the scanner producer contract end to end.
func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "scanprobe", "scanner name")
		facts = flag.String("facts", "", "path to a JSONL file of FACT messages")
		delay = flag.Duration("delay", 10*time.Millisecond, "delay between facts")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[scanprobe] ", log.LstdFlags|log.Lmicroseconds)
	if *facts == "" {
		logger.Fatalf("-facts is required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ScannerName:     *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	logger.Printf("WELCOME scanner_id=%s", welcome.ScannerID)

	f, err := os.Open(*facts)
	if err != nil {
		logger.Fatalf("open facts: %v", err)
	}
	defer f.Close()

	sent := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var fm protocol.FactMsg
		if err := json.Unmarshal(line, &fm); err != nil {
			logger.Printf("skip malformed line: %v", err)
			continue
		}
		fm.Type = protocol.TypeFact
		fm.ProtocolVersion = protocol.Version
		if err := conn.WriteJSON(fm); err != nil {
			logger.Fatalf("send FACT: %v", err)
		}
		sent++
		time.Sleep(*delay)
	}
	if err := sc.Err(); err != nil {
		logger.Fatalf("read facts: %v", err)
	}
	logger.Printf("done: %d facts sent", sent)
}
