package journal

import (
	"path/filepath"
	"testing"

	"worldrenew/internal/renewal"
)

func TestJournal_FactsAndDecisionsPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renewal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	inhabited := int64(42)
	for i := 0; i < 3; i++ {
		err := j.WriteFact(renewal.FactLogEntry{
			Key:          renewal.ChunkKey{WorldID: "w", ChunkX: i},
			ScanTick:     uint64(i),
			Source:       "s1",
			Inhabited:    &inhabited,
			Changed:      i == 0,
			FirstScanned: i == 0,
		})
		if err != nil {
			t.Fatalf("write fact: %v", err)
		}
	}
	j.OnStable(&renewal.StableSnapshot{
		Pass: 1,
		Decision: &renewal.Decision{
			Kind:   renewal.DecisionRegion,
			Region: renewal.RegionKey{WorldID: "w", RegionX: 2, RegionZ: -1},
		},
	})
	j.OnStable(&renewal.StableSnapshot{Pass: 2})
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen and verify the writer committed everything on close.
	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()
	if n, err := j2.FactCount(); err != nil || n != 3 {
		t.Fatalf("facts=%d err=%v", n, err)
	}
	if n, err := j2.DecisionCount(); err != nil || n != 2 {
		t.Fatalf("decisions=%d err=%v", n, err)
	}
}

func TestJournal_ClosedWritesAreNoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renewal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := j.WriteFact(renewal.FactLogEntry{}); err != nil {
		t.Fatalf("closed write must be a silent no-op, got %v", err)
	}
	j.OnStable(&renewal.StableSnapshot{Pass: 9})
}
