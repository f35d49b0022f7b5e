package renewal

import "testing"

func newAttached(t *testing.T) (*WorldMap, *Projection, *Gate) {
	t.Helper()
	wm := NewWorldMap()
	proj, err := NewProjection(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if err := proj.Attach(wm); err != nil {
		t.Fatalf("attach projection: %v", err)
	}
	g := NewGate(nil)
	if err := g.Attach(wm, proj); err != nil {
		t.Fatalf("attach gate: %v", err)
	}
	return wm, proj, g
}

func fact(k ChunkKey, inhabited *int64) ChunkMetadataFact {
	f := ChunkMetadataFact{Key: k, ScanTick: 1, Source: "test"}
	if inhabited != nil {
		f.Signals = &ChunkSignals{InhabitedTimeTicks: inhabited}
	}
	return f
}

func TestGate_DetachedDropsFacts(t *testing.T) {
	wm, _, g := newAttached(t)
	g.Detach()
	g.ApplyFactOnTickThread(fact(key(0, 0), ticks(0)))
	if wm.TotalChunks() != 0 {
		t.Fatalf("detached gate must not write")
	}
	if g.AppliedFacts() != 0 {
		t.Fatalf("detached gate must not count applies")
	}
}

func TestGate_DuplicateFactDoesNotRenotify(t *testing.T) {
	_, proj, g := newAttached(t)
	f := fact(key(0, 0), ticks(5))
	g.ApplyFactOnTickThread(f)
	if g.NotifiedFacts() != 1 {
		t.Fatalf("first fact must notify, got %d", g.NotifiedFacts())
	}
	g.ApplyFactOnTickThread(f)
	if g.NotifiedFacts() != 1 {
		t.Fatalf("unchanged re-delivery must not notify, got %d", g.NotifiedFacts())
	}
	if got := proj.StatusView().PendingWorkSet; got != 1 {
		t.Fatalf("workset must hold exactly one key, got %d", got)
	}
}

func TestGate_DuplicateNeverDemotesStable(t *testing.T) {
	_, proj, g := newAttached(t)
	f := fact(key(0, 0), ticks(0))
	g.ApplyFactOnTickThread(f)
	for i := 0; i < 10 && proj.State() != StateStable; i++ {
		proj.Tick()
	}
	if proj.State() != StateStable {
		t.Fatalf("expected STABLE, got %v", proj.State())
	}
	g.ApplyFactOnTickThread(f)
	if proj.State() != StateStable {
		t.Fatalf("unchanged fact demoted STABLE to %v", proj.State())
	}
}

func TestGate_UnresolvedFactNotifiesOnFirstScanOnly(t *testing.T) {
	wm, proj, g := newAttached(t)
	f := ChunkMetadataFact{Key: key(2, 2), ScanTick: 7, Source: "s1", Unresolved: UnresolvedCorrupt}
	g.ApplyFactOnTickThread(f)
	if wm.ScannedChunks() != 1 {
		t.Fatalf("scan attempt must mark scanned")
	}
	if g.NotifiedFacts() != 1 {
		t.Fatalf("first scan mark is a factual change")
	}
	g.ApplyFactOnTickThread(f)
	if g.NotifiedFacts() != 1 {
		t.Fatalf("retried unresolved scan must not notify")
	}
	_ = proj
}

func TestGate_ChangedSignalsDemoteStable(t *testing.T) {
	_, proj, g := newAttached(t)
	g.ApplyFactOnTickThread(fact(key(0, 0), ticks(0)))
	for i := 0; i < 10 && proj.State() != StateStable; i++ {
		proj.Tick()
	}
	g.ApplyFactOnTickThread(fact(key(0, 0), ticks(100)))
	if proj.State() != StateComputing {
		t.Fatalf("changed fact must demote to COMPUTING, got %v", proj.State())
	}
}

type recordingFactLogger struct{ entries []FactLogEntry }

func (r *recordingFactLogger) WriteFact(e FactLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestGate_FactLoggerSeesEveryApply(t *testing.T) {
	_, _, g := newAttached(t)
	rec := &recordingFactLogger{}
	g.SetFactLogger(rec)
	f := fact(key(0, 0), ticks(5))
	g.ApplyFactOnTickThread(f)
	g.ApplyFactOnTickThread(f)
	if len(rec.entries) != 2 {
		t.Fatalf("logger must see duplicates too, got %d", len(rec.entries))
	}
	if !rec.entries[0].Changed || rec.entries[1].Changed {
		t.Fatalf("changed flags wrong: %+v", rec.entries)
	}
}

func TestGate_ScanCompletionFiresOnce(t *testing.T) {
	wm, _, g := newAttached(t)
	wm.EnsureExists(key(0, 0))
	wm.EnsureExists(key(1, 0))

	g.ApplyFactOnTickThread(fact(key(0, 0), ticks(0)))
	if g.scanComplete {
		t.Fatalf("one of two chunks scanned, completion fired early")
	}
	g.ApplyFactOnTickThread(fact(key(1, 0), ticks(0)))
	if !g.scanComplete {
		t.Fatalf("all chunks scanned, completion not observed")
	}
	g.ApplyFactOnTickThread(fact(key(1, 0), ticks(0)))
	if !g.scanComplete {
		t.Fatalf("completion latch must survive duplicate facts")
	}
}
