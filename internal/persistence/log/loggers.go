package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"worldrenew/internal/renewal"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// StabilizationEntry is one JSONL line per completed stabilization pass.
type StabilizationEntry struct {
	Pass          uint64 `json:"pass"`
	TrackedChunks int    `json:"tracked_chunks"`
	DecisionKind  string `json:"decision_kind"` // NONE, REGION, CHUNK_BATCH
	WorldID       string `json:"world_id,omitempty"`
	RegionX       int    `json:"region_x,omitempty"`
	RegionZ       int    `json:"region_z,omitempty"`
	ChunkCount    int    `json:"chunk_count,omitempty"`
	RecordedAt    string `json:"recorded_at"`
}

// StabilizationLogger writes one compressed JSONL entry per stable pass.
// Registered as a stable-listener on the projection.
type StabilizationLogger struct{ w *JSONLZstdWriter }

func NewStabilizationLogger(dataDir string) *StabilizationLogger {
	return &StabilizationLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "stabilizations"), "stabilizations")}
}

func (l *StabilizationLogger) OnStable(snap *renewal.StableSnapshot) {
	if snap == nil {
		return
	}
	e := StabilizationEntry{
		Pass:          snap.Pass,
		TrackedChunks: len(snap.Metrics),
		DecisionKind:  "NONE",
		RecordedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if d := snap.Decision; d != nil {
		if d.Kind == renewal.DecisionRegion {
			e.DecisionKind = "REGION"
			e.WorldID = d.Region.WorldID
			e.RegionX = d.Region.RegionX
			e.RegionZ = d.Region.RegionZ
		} else {
			e.DecisionKind = "CHUNK_BATCH"
			e.ChunkCount = len(d.Chunks)
		}
	}
	// Listener contract: never let a sink error abort the pass.
	_ = l.w.Write(e)
}

func (l *StabilizationLogger) Close() error { return l.w.Close() }
